package commands

import (
	"context"
	"dataweb-backend/internal/alarmlog"
	"dataweb-backend/internal/archive"
	"dataweb-backend/internal/components/chrono"
	"dataweb-backend/internal/components/serviceutil"
	"dataweb-backend/internal/components/telemetry"
	"dataweb-backend/internal/instconfig"
	"dataweb-backend/internal/notify"
	"dataweb-backend/internal/poller"
	"dataweb-backend/internal/pv"
	"dataweb-backend/internal/roster"
	"dataweb-backend/internal/snapshot"
	"dataweb-backend/internal/store"
	"dataweb-backend/internal/supervisor"
	"dataweb-backend/internal/webserver"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Polls every instrument in the roster and serves their snapshots over jsonp.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := serviceutil.SignalContext()
		cfg := readConfig()

		tel, shutdown := setupTelemetry(ctx)
		defer shutdown()

		vars := cfg.variableReader(tel)
		source := openRosterSource(ctx, cfg, vars, tel)

		clock, err := chrono.NewStandardImpl(cfg.AlarmLog.Timezone)
		if err != nil {
			serviceutil.Fatal("failed to load alarm log timezone", err)
		}
		cron := chrono.NewStandardCron(clock, tel)
		defer cron.Stop()

		alarms, err := alarmlog.NewLogger(cfg.AlarmLog.Path, cfg.AlarmLog.Backups, clock, cron, tel)
		if err != nil {
			serviceutil.Fatal("failed to open alarm log", err)
		}
		defer alarms.Close()
		observers := []poller.Observer{alarms}

		if cfg.Notify.Smtp.Enabled() {
			notifier := notify.NewNotifier(
				notify.NewSmtpSender(cfg.Notify.Smtp),
				time.Duration(cfg.Notify.IntervalMinutes)*time.Minute,
				cfg.Notify.Burst,
				tel,
			)
			defer notifier.Close()
			observers = append(observers, notifier)
		}

		st := store.New()
		factory := func(entry roster.Entry) supervisor.Handle {
			builder := snapshot.NewBuilder(
				instconfig.NewReader(entry.Host, entry.Prefix, vars, cfg.configOptions(), tel),
				archive.NewClient(entry.Host, cfg.archiveOptions(), tel),
				tel,
			)
			return poller.New(entry.Name, entry.Host, builder, st, cfg.pollerOptions(observers...), tel)
		}
		sup := supervisor.New(source, factory, supervisor.Options{
			Interval: seconds(cfg.ReconcileIntervalSeconds),
			Forget:   st.Remove,
		}, tel)

		supervised := make(chan struct{})
		go func() {
			defer close(supervised)
			sup.Run(ctx)
		}()

		err = serviceutil.ServeHttp(ctx, cfg.Port, webserver.NewHandler(st, tel))
		if err != nil {
			serviceutil.Fatal("http server stopped", err)
		}

		<-supervised
		slog.Info("every poller has stopped")
	},
}

func openRosterSource(ctx context.Context, cfg Config, vars pv.Reader, tel telemetry.API) *roster.Source {
	var cache *roster.Cache
	db, err := cfg.RosterCache.OpenDB()
	if err == nil {
		cache, err = roster.NewCache(ctx, db)
	}
	if err != nil {
		slog.Warn("roster cache disabled", "err", err)
		cache = nil
	}

	source := roster.NewSource(vars, cfg.RosterVariable, cache, tel)
	err = source.Prime(ctx)
	if err != nil {
		slog.Warn("failed to load cached roster", "err", err)
	}
	return source
}
