package snapshot

import (
	"context"
	"dataweb-backend/internal/archive"
	"dataweb-backend/internal/components/assert"
	"dataweb-backend/internal/components/telemetry"
	"dataweb-backend/internal/display"
	"dataweb-backend/internal/instconfig"
	"dataweb-backend/internal/normalize"
	"dataweb-backend/internal/reading"
	"dataweb-backend/internal/runcontrol"
	"errors"
	"fmt"
	"sync"
)

const (
	report_builder_source = "builder.source"
	report_builder_build  = "builder.build"
)

// ErrArchiveUnavailable is returned when none of the archive groups could be read.
var ErrArchiveUnavailable = errors.New("no archive group could be read")

// RequiredStatuses are the instrument status values published with every snapshot.
var RequiredStatuses = []string{
	"RUNSTATE", "RUNNUMBER", "_RBNUMBER", "TITLE", "DISPLAY", "_USERNAME", "STARTTIME",
	"RUNDURATION", "RUNDURATION_PD", "GOODFRAMES", "GOODFRAMES_PD", "RAWFRAMES", "RAWFRAMES_PD",
	"PERIOD", "NUMPERIODS", "PERIODSEQ", "BEAMCURRENT", "TOTALUAMPS", "COUNTRATE", "DAEMEMORYUSED",
	"TOTALCOUNTS", "DAETIMINGSOURCE", "MONITORCOUNTS", "MONITORSPECTRUM", "MONITORFROM",
	"MONITORTO", "NUMTIMECHANNELS", "NUMSPECTRA",
}

type ConfigReader interface {
	Read(ctx context.Context) (instconfig.Config, error)
}

type ArchiveReader interface {
	Group(ctx context.Context, group archive.Group) (normalize.Batch, error)
}

// Builder builds the snapshot of one instrument.
type Builder struct {
	config     ConfigReader
	archive    ArchiveReader
	normalizer normalize.Normalizer
	tel        telemetry.API
}

func NewBuilder(config ConfigReader, archive ArchiveReader, tel telemetry.API) Builder {
	assert.NotNil(config)
	assert.NotNil(archive)
	assert.NotNil(tel)

	return Builder{
		config:     config,
		archive:    archive,
		normalizer: normalize.NewNormalizer(tel),
		tel:        telemetry.NewScopedAPI("snapshot", tel),
	}
}

type sourceResult struct {
	set reading.Set
	err error
}

func (b Builder) readGroups(ctx context.Context, groups ...archive.Group) []sourceResult {
	results := make([]sourceResult, len(groups))
	var wg sync.WaitGroup
	for i, group := range groups {
		wg.Add(1)
		go func(i int, group archive.Group) {
			defer wg.Done()
			batch, err := b.archive.Group(ctx, group)
			if err != nil {
				results[i] = sourceResult{err: err}
				return
			}
			results[i] = sourceResult{set: b.normalizer.Batch(batch)}
		}(i, group)
	}
	wg.Wait()
	return results
}

// Build runs one cycle. An unreadable configuration fails the cycle with an error wrapping
// instconfig.ErrConfigUnreadable. A failing archive group is recorded in ErrorStatuses and read
// as empty, unless every group fails.
func (b Builder) Build(ctx context.Context) (*InstrumentSnapshot, error) {
	config, err := b.config.Read(ctx)
	if err != nil {
		if !errors.Is(err, instconfig.ErrConfigUnreadable) {
			err = fmt.Errorf("%w: %w", instconfig.ErrConfigUnreadable, err)
		}
		return nil, err
	}

	groups := []archive.Group{archive.GroupBlocks, archive.GroupDataweb, archive.GroupInst}
	results := b.readGroups(ctx, groups...)

	var errorStatuses []string
	var failures []error
	for i, res := range results {
		if res.err == nil {
			continue
		}
		b.tel.ReportDebug(report_builder_source, string(groups[i]), res.err)
		errorStatuses = append(errorStatuses, fmt.Sprintf("Failed to read %s archive: %v", groups[i], res.err))
		failures = append(failures, res.err)
	}
	if len(failures) == len(groups) {
		return nil, fmt.Errorf("%w: %w", ErrArchiveUnavailable, errors.Join(failures...))
	}

	blocks, blocksRC := runcontrol.Split(results[0].set)
	dataweb, datawebRC := runcontrol.Split(results[1].set)
	inst, instRC := runcontrol.Split(results[2].set)

	all := blocks.Merge(dataweb)
	all = runcontrol.Merge(all, blocksRC.Merge(instRC).Merge(datawebRC))
	for name, r := range all {
		r.Visible = config.IsVisible(name)
		all[name] = r
	}

	snapshot := &InstrumentSnapshot{
		ConfigName:    config.Name,
		Groups:        buildGroups(config, display.FormatSet(all)),
		InstrumentPVs: buildStatuses(inst),
		ErrorStatuses: errorStatuses,
	}
	b.tel.ReportDebug(report_builder_build, config.Name, len(all), len(snapshot.InstrumentPVs))
	return snapshot, nil
}

// buildGroups keeps the configured group order and, within a group, the configured block order.
// A declared block that was not read this cycle is left out.
func buildGroups(config instconfig.Config, formatted map[string]reading.Formatted) []Group {
	out := make([]Group, 0, len(config.Groups))
	for _, g := range config.Groups {
		group := Group{Name: g.Name, Blocks: []Block{}}
		for _, name := range g.Blocks {
			f, ok := formatted[name]
			if !ok {
				continue
			}
			group.Blocks = append(group.Blocks, Block{Name: name, Reading: f})
		}
		out = append(out, group)
	}
	return out
}

func buildStatuses(inst reading.Set) map[string]reading.Formatted {
	out := make(map[string]reading.Formatted, len(RequiredStatuses))
	for _, name := range RequiredStatuses {
		r, ok := inst[name+".VAL"]
		if !ok {
			continue
		}
		if name == display.FieldRunDuration || name == display.FieldPeriodRunTime {
			r = display.HumanizeDuration(r)
		}
		out[name] = display.Format(r)
	}
	display.Redact(out)
	return out
}
