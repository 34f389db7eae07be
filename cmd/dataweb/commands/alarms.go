package commands

import (
	"dataweb-backend/internal/alarmlog"
	"dataweb-backend/internal/components/serviceutil"
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

var alarmsIgnore *[]string

func init() {
	alarmsIgnore = alarmsCmd.Flags().StringSlice("ignore", nil, "Blocks whose alarms are left out.")
	rootCmd.AddCommand(alarmsCmd)
}

var alarmsCmd = &cobra.Command{
	Use:   "alarms [--ignore <block>,<block>...]",
	Short: "Prints the alarms recorded in the EMU alarm logs.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := readConfig()

		logs, err := alarmlog.ReadLogs(cfg.AlarmLog.Path)
		if err != nil {
			serviceutil.Fatal("failed to read alarm logs", err)
		}

		names := make([]string, 0, len(logs))
		for name := range logs {
			names = append(names, name)
		}
		slices.Sort(names)

		for _, name := range names {
			fmt.Printf("%s:\n", name)
			for _, line := range alarmlog.Filter(logs[name], *alarmsIgnore) {
				fmt.Printf("  %s\n", line)
			}
		}
	},
}
