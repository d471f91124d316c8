package main

import (
	"context"
	"encoding/json"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/m1ser4ble/mixfollower/pkg/mixp"
)

func sourcesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List configured mix sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), app.timeout)
			defer cancel()

			reply, err := app.request(ctx, "mix.sources", mixp.SourcesBody{})
			if err != nil {
				return err
			}

			var body mixp.SourcesReply
			if err := json.Unmarshal(reply.Body, &body); err != nil {
				return err
			}
			if app.json {
				return printJSON(body)
			}

			rows := pterm.TableData{{"NAME", "KIND"}}
			for _, src := range body.Sources {
				rows = append(rows, []string{src.Name, src.Kind})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
		},
	}
}
