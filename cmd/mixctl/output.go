package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pterm/pterm"

	"github.com/m1ser4ble/mixfollower/pkg/mixp"
)

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func printResults(results []mixp.MixResult) {
	if len(results) == 0 {
		pterm.Info.Println("no mixes processed")
		return
	}

	rows := pterm.TableData{{"SOURCE", "PLAYLIST", "RESOLVED", "STATUS"}}
	for _, result := range results {
		status := "ok"
		if result.Error != "" {
			status = result.Error
		}
		rows = append(rows, []string{
			result.Source,
			result.Playlist,
			fmt.Sprintf("%d/%d", result.Resolved, result.Requested),
			status,
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}
