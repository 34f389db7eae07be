package commands

import (
	"context"
	"dataweb-backend/internal/archive"
	"dataweb-backend/internal/components/serviceutil"
	"dataweb-backend/internal/instconfig"
	"dataweb-backend/internal/snapshot"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var scrapeJson *bool

func init() {
	scrapeJson = scrapeCmd.Flags().Bool("json", false, "Print the snapshot as the front end receives it.")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape <host> <prefix>",
	Short: "Builds the snapshot of a single instrument once.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		host, prefix := args[0], args[1]
		cfg := readConfig()
		tel, shutdown := setupTelemetry(cmd.Context())
		defer shutdown()

		builder := snapshot.NewBuilder(
			instconfig.NewReader(host, prefix, cfg.variableReader(tel), cfg.configOptions(), tel),
			archive.NewClient(host, cfg.archiveOptions(), tel),
			tel,
		)

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()
		snap, err := builder.Build(ctx)
		if err != nil {
			serviceutil.Fatal("failed to build snapshot", err)
		}

		if *scrapeJson {
			encoded, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				serviceutil.Fatal("failed to encode snapshot", err)
			}
			fmt.Println(string(encoded))
			return
		}
		printSnapshot(snap)
	},
}

func printSnapshot(snap *snapshot.InstrumentSnapshot) {
	fmt.Printf("Configuration: %s\n", snap.ConfigName)
	for _, status := range snap.ErrorStatuses {
		fmt.Printf("Error: %s\n", status)
	}

	blocks := table.NewWriter()
	blocks.SetOutputMirror(os.Stdout)
	blocks.AppendHeader(table.Row{"Group", "Block", "Status", "Value", "Alarm", "Visible"})
	for _, g := range snap.Groups {
		for _, b := range g.Blocks {
			blocks.AppendRow(table.Row{
				g.Name, b.Name, b.Reading.State, b.Reading.Display, b.Reading.Alarm, b.Reading.Visible,
			})
		}
	}
	blocks.SetStyle(table.StyleRounded)
	blocks.Render()

	names := make([]string, 0, len(snap.InstrumentPVs))
	for name := range snap.InstrumentPVs {
		names = append(names, name)
	}
	slices.Sort(names)

	statuses := table.NewWriter()
	statuses.SetOutputMirror(os.Stdout)
	statuses.AppendHeader(table.Row{"Status", "Value"})
	for _, name := range names {
		statuses.AppendRow(table.Row{name, snap.InstrumentPVs[name].Display})
	}
	statuses.SetStyle(table.StyleRounded)
	statuses.Render()
}
