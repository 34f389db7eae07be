package commands

import (
	"dataweb-backend/internal/roster"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(rosterCmd)
}

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Reads the live instrument list once and prints it.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := readConfig()
		tel, shutdown := setupTelemetry(cmd.Context())
		defer shutdown()

		source := roster.NewSource(cfg.variableReader(tel), cfg.RosterVariable, nil, tel)
		entries := source.Retrieve(cmd.Context())
		if code := source.ErrorOnRetrieve(); code != "" {
			fmt.Fprintln(os.Stderr, code)
			os.Exit(1)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Name", "Host", "Prefix"})
		for _, e := range entries {
			t.AppendRow(table.Row{e.Name, e.Host, e.Prefix})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
