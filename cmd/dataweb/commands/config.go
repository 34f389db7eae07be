package commands

import (
	"dataweb-backend/internal/alarmlog"
	"dataweb-backend/internal/archive"
	"dataweb-backend/internal/components/configutil"
	"dataweb-backend/internal/components/serviceutil"
	"dataweb-backend/internal/components/telemetry"
	"dataweb-backend/internal/instconfig"
	"dataweb-backend/internal/notify"
	"dataweb-backend/internal/poller"
	"dataweb-backend/internal/pv"
	"dataweb-backend/internal/roster"
	"path/filepath"
	"time"
)

type PollerConfig struct {
	SuccessWaitSeconds int `json:"success_wait_seconds"`
	FailureWaitSeconds int `json:"failure_wait_seconds"`
	TickMillis         int `json:"tick_millis"`
	RetriesBetweenLogs int `json:"retries_between_logs"`
}

type ArchiveConfig struct {
	TimeoutSeconds    int     `json:"timeout_seconds"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	Legacy            bool    `json:"legacy"`
	// DisableLegacyConfig stops falling back to the block server's http page for the configuration.
	DisableLegacyConfig bool `json:"disable_legacy_config"`
}

type CagetConfig struct {
	Binary         string `json:"binary"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type AlarmLogConfig struct {
	Path     string `json:"path"`
	Backups  int    `json:"backups"`
	Timezone string `json:"timezone"`
}

type NotifyConfig struct {
	Smtp            notify.SmtpConfig `json:"smtp"`
	IntervalMinutes int               `json:"interval_minutes"`
	Burst           int               `json:"burst"`
}

type Config struct {
	Port                     int             `json:"port"`
	RosterVariable           string          `json:"roster_variable"`
	ReconcileIntervalSeconds int             `json:"reconcile_interval_seconds"`
	RosterCache              roster.Database `json:"roster_cache"`
	Poller                   PollerConfig    `json:"poller"`
	Archive                  ArchiveConfig   `json:"archive"`
	Caget                    CagetConfig     `json:"caget"`
	AlarmLog                 AlarmLogConfig  `json:"alarm_log"`
	Notify                   NotifyConfig    `json:"notify"`
}

func defaultConfig() Config {
	return Config{
		Port:                     60000,
		RosterVariable:           roster.DefaultVariable,
		ReconcileIntervalSeconds: 30,
		RosterCache: roster.Database{
			File: filepath.Join("state", "roster.db"),
		},
		Poller: PollerConfig{
			SuccessWaitSeconds: 5,
			FailureWaitSeconds: 60,
			TickMillis:         250,
			RetriesBetweenLogs: 60,
		},
		Archive: ArchiveConfig{
			TimeoutSeconds:    30,
			RequestsPerSecond: 5,
		},
		Caget: CagetConfig{
			Binary:         "caget",
			TimeoutSeconds: 10,
		},
		AlarmLog: AlarmLogConfig{
			Path:    filepath.Join("log", alarmlog.DefaultFilename),
			Backups: alarmlog.DefaultBackups,
		},
		Notify: NotifyConfig{
			IntervalMinutes: 10,
			Burst:           5,
		},
	}
}

func readConfig() Config {
	cfg, err := configutil.ReadConfigWithDefaults(*configPath, defaultConfig())
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	return cfg
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func (c Config) pollerOptions(observers ...poller.Observer) poller.Options {
	return poller.Options{
		SuccessWait:        seconds(c.Poller.SuccessWaitSeconds),
		FailureWait:        seconds(c.Poller.FailureWaitSeconds),
		Tick:               time.Duration(c.Poller.TickMillis) * time.Millisecond,
		RetriesBetweenLogs: c.Poller.RetriesBetweenLogs,
		Observers:          observers,
	}
}

func (c Config) archiveOptions() archive.Options {
	return archive.Options{
		Timeout:           seconds(c.Archive.TimeoutSeconds),
		RequestsPerSecond: c.Archive.RequestsPerSecond,
		Legacy:            c.Archive.Legacy,
	}
}

func (c Config) configOptions() instconfig.Options {
	return instconfig.Options{
		Timeout:       seconds(c.Archive.TimeoutSeconds),
		DisableLegacy: c.Archive.DisableLegacyConfig,
	}
}

func (c Config) variableReader(tel telemetry.API) pv.CagetReader {
	return pv.NewCagetReader(c.Caget.Binary, seconds(c.Caget.TimeoutSeconds), tel)
}
