package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/m1ser4ble/mixfollower/pkg/mixp"
)

func statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the last reconciliation run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), app.timeout)
			defer cancel()

			reply, err := app.request(ctx, "mix.status", mixp.StatusBody{})
			if err != nil {
				return err
			}

			var body mixp.StatusReply
			if err := json.Unmarshal(reply.Body, &body); err != nil {
				return err
			}
			if app.json {
				return printJSON(body)
			}

			if body.LastRun == 0 {
				pterm.Info.Println("no reconciliation run yet")
				return nil
			}
			pterm.Info.Printfln("last run %s", time.Unix(body.LastRun, 0).Format(time.RFC3339))
			printResults(body.Results)
			return nil
		},
	}
}
