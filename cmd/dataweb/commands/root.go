package commands

import (
	"context"
	"dataweb-backend/internal/components/telemetry"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath *string
	verbose    *bool
)

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "config.json5", "The service configuration file.")
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging.")
}

var rootCmd = &cobra.Command{
	Use:   "dataweb",
	Short: "dataweb scrapes instrument archives and serves their latest state to the dataweb front end.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(*verbose)
	},
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupTelemetry returns the reporting API every component is given and a function flushing
// the otel exporters, which are only set up when a telemetry.json5 is found.
func setupTelemetry(ctx context.Context) (telemetry.API, func()) {
	var tel telemetry.API = telemetry.NewSlogAPI(nil)

	otelSetup, err := telemetry.SetupFromEnv(ctx, "dataweb")
	if errors.Is(err, os.ErrNotExist) {
		slog.Debug("telemetry.json5 not found, otel export disabled")
		return tel, func() {}
	}
	if err != nil {
		slog.Warn("failed to setup otel export", "err", err)
		return tel, func() {}
	}

	otelAPI, err := telemetry.NewOtelAPI("dataweb", tel)
	if err != nil {
		slog.Warn("failed to create otel meters", "err", err)
		return tel, func() { otelSetup.Shutdown(context.Background()) }
	}
	telemetry.InstrumentPerfStats(ctx, otelAPI)

	return otelAPI, func() {
		err := otelSetup.Shutdown(context.Background())
		if err != nil {
			slog.Warn("failed to flush telemetry", "err", err)
		}
	}
}
