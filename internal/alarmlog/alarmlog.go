// Package alarmlog keeps a daily log of the blocks in alarm on the EMU instrument.
package alarmlog

import (
	"context"
	"dataweb-backend/internal/components/assert"
	"dataweb-backend/internal/components/chrono"
	"dataweb-backend/internal/components/telemetry"
	"dataweb-backend/internal/snapshot"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

const (
	report_logger_write  = "logger.write"
	report_logger_rotate = "logger.rotate"
)

const (
	// Host is the only instrument host whose alarms are logged.
	Host = "ndxemu"

	DefaultFilename = "emu_alarm.log"
	DefaultBackups  = 30

	timestampLayout = "2006-01-02 15:04:05,000"
	checkedLayout   = "2006-01-02 15:04"
	backupLayout    = "2006-01-02"
)

func IsAlarmHost(host string) bool {
	return strings.EqualFold(host, Host)
}

type Logger struct {
	path    string
	backups int
	time    chrono.API
	tel     telemetry.API

	mutex sync.Mutex
	file  *os.File
}

// NewLogger opens (appending) the log at path and rotates it every midnight, keeping backups
// old logs.
func NewLogger(path string, backups int, time chrono.API, cron chrono.CronAPI, tel telemetry.API) (*Logger, error) {
	assert.NotEmptyStr(path)
	assert.NotNil(time)
	assert.NotNil(cron)
	assert.NotNil(tel)

	l := &Logger{
		path:    path,
		backups: backups,
		time:    time,
		tel:     telemetry.NewScopedAPI("alarmlog", tel),
	}
	err := l.open()
	if err != nil {
		return nil, err
	}
	err = cron.Cron("0 0 * * *", func() {
		err := l.Rotate()
		if err != nil {
			l.tel.ReportBroken(report_logger_rotate, err)
		}
	})
	if err != nil {
		l.file.Close()
		return nil, err
	}

	l.write("Started emu alarm logger")
	return l, nil
}

func (l *Logger) open() error {
	err := os.MkdirAll(filepath.Dir(l.path), 0o755)
	if err != nil {
		return err
	}
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	l.file = file
	return nil
}

func (l *Logger) write(lines ...string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.file == nil {
		return
	}

	var buf strings.Builder
	timestamp := l.time.Now().Format(timestampLayout)
	for _, line := range lines {
		fmt.Fprintf(&buf, "%s %s\n", timestamp, line)
	}
	_, err := l.file.WriteString(buf.String())
	if err != nil {
		l.tel.ReportWarning(report_logger_write, err)
	}
}

// Observe logs the blocks in alarm of every snapshot built for the alarm host.
func (l *Logger) Observe(_ context.Context, _, host string, snap *snapshot.InstrumentSnapshot, err error) {
	if err != nil || snap == nil || !IsAlarmHost(host) {
		return
	}

	lines := []string{fmt.Sprintf("Alarms checked at: %s", l.time.Now().Format(checkedLayout))}
	seen := map[string]bool{}
	for _, g := range snap.Groups {
		for _, b := range g.Blocks {
			if seen[b.Name] || b.Reading.Alarm == "" {
				continue
			}
			seen[b.Name] = true
			lines = append(lines, fmt.Sprintf("[%s: %s", b.Name, b.Reading.Alarm))
		}
	}
	l.write(lines...)
}

// Rotate moves the current log to <path>.<yesterday's date> and removes the oldest backups.
func (l *Logger) Rotate() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.file != nil {
		err := l.file.Close()
		if err != nil {
			return err
		}
		l.file = nil
	}

	suffix := l.time.Now().AddDate(0, 0, -1).Format(backupLayout)
	err := os.Rename(l.path, fmt.Sprintf("%s.%s", l.path, suffix))
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	backups, err := Backups(l.path)
	if err != nil {
		return err
	}
	if l.backups > 0 && len(backups) > l.backups {
		for _, old := range backups[:len(backups)-l.backups] {
			err = os.Remove(old)
			if err != nil {
				return err
			}
		}
	}

	return l.open()
}

func (l *Logger) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Backups lists the rotated logs of path, oldest first.
func Backups(path string) ([]string, error) {
	matches, err := filepath.Glob(path + ".*")
	if err != nil {
		return nil, err
	}
	slices.Sort(matches)
	return matches, nil
}
