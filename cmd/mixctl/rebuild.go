package main

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/m1ser4ble/mixfollower/pkg/mixp"
)

func rebuildCommand() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild followed playlists now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), app.timeout)
			defer cancel()

			reply, err := app.request(ctx, "mix.rebuild", mixp.RebuildBody{Source: source})
			if err != nil {
				return err
			}

			var body mixp.RebuildReply
			if err := json.Unmarshal(reply.Body, &body); err != nil {
				return err
			}
			if app.json {
				return printJSON(body)
			}
			printResults(body.Results)
			return nil
		},
	}
	cmd.Flags().StringVarP(&source, "source", "s", "", "rebuild only the named source")

	return cmd
}
