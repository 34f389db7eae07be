package snapshot

import (
	"context"
	"dataweb-backend/internal/archive"
	"dataweb-backend/internal/components/telemetry"
	"dataweb-backend/internal/instconfig"
	"dataweb-backend/internal/normalize"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeConfig struct {
	config instconfig.Config
	err    error
}

func (f fakeConfig) Read(context.Context) (instconfig.Config, error) {
	return f.config, f.err
}

type fakeArchive map[archive.Group]string

func (f fakeArchive) Group(_ context.Context, group archive.Group) (normalize.Batch, error) {
	body, ok := f[group]
	if !ok {
		return nil, fmt.Errorf("connection refused")
	}
	return normalize.DecodeJSONBatch([]byte(body))
}

func channel(name, value string) string {
	return fmt.Sprintf(
		`{"Channel": "IN:DEMO:%s", "Connected": true, "Current Value": {"Value": %q, "Alarm": ""}}`,
		name, value,
	)
}

func channels(entries ...string) string {
	return fmt.Sprintf(`{"Channels": [%s]}`, strings.Join(entries, ","))
}

func mustConfig(t *testing.T, literal string) instconfig.Config {
	config, err := instconfig.ParseLiteral(literal)
	require.NoError(t, err)
	return config
}

const demoConfig = `{'name': 'DEMO', 'groups': [
	{'name': 'Zeta', 'blocks': ['Z2', 'Z1', 'MISSING']},
	{'name': 'Alpha', 'blocks': ['A1']},
	{'name': 'Empty', 'blocks': []}
], 'blocks': [
	{'name': 'Z1', 'visible': False},
	{'name': 'Z2', 'visible': True},
	{'name': 'A1', 'visible': True}
]}`

func TestGroupOrdering(t *testing.T) {
	builder := NewBuilder(
		fakeConfig{config: mustConfig(t, demoConfig)},
		fakeArchive{
			archive.GroupBlocks:  channels(channel("CS:SB:Z1", "1"), channel("CS:SB:Z2", "2")),
			archive.GroupDataweb: channels(channel("CS:SB:A1", "3"), channel("CS:SB:UNDECLARED", "4")),
			archive.GroupInst:    channels(channel("DAE:RUNSTATE.VAL", "RUNNING")),
		},
		telemetry.NewRecorder(),
	)

	snapshot, err := builder.Build(context.Background())
	require.NoError(t, err)
	require.Equal(t, "DEMO", snapshot.ConfigName)
	require.Empty(t, snapshot.ErrorStatuses)

	require.Len(t, snapshot.Groups, 3)
	require.Equal(t, "Zeta", snapshot.Groups[0].Name)
	require.Equal(t, "Z2", snapshot.Groups[0].Blocks[0].Name)
	require.Equal(t, "Z1", snapshot.Groups[0].Blocks[1].Name)
	require.Len(t, snapshot.Groups[0].Blocks, 2)
	require.False(t, snapshot.Groups[0].Blocks[1].Reading.Visible)
	require.Equal(t, "Alpha", snapshot.Groups[1].Name)
	require.Empty(t, snapshot.Groups[2].Blocks)

	encoded, err := json.Marshal(snapshot)
	require.NoError(t, err)
	text := string(encoded)
	require.Less(t, strings.Index(text, `"Zeta"`), strings.Index(text, `"Alpha"`))
	require.Less(t, strings.Index(text, `"Z2"`), strings.Index(text, `"Z1"`))
	require.Contains(t, text, `"Empty":{}`)
	require.Contains(t, text, `"error_statuses":[]`)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	require.Equal(t, "RUNNING", decoded["inst_pvs"].(map[string]any)["RUNSTATE"].(map[string]any)["value"])
}

func TestPartialFailure(t *testing.T) {
	builder := NewBuilder(
		fakeConfig{config: mustConfig(t, demoConfig)},
		fakeArchive{
			archive.GroupBlocks: channels(channel("CS:SB:Z1", "1")),
		},
		telemetry.NewRecorder(),
	)

	snapshot, err := builder.Build(context.Background())
	require.NoError(t, err)
	require.Len(t, snapshot.ErrorStatuses, 2)
	require.Contains(t, snapshot.ErrorStatuses[0], "DATAWEB")
	require.Contains(t, snapshot.ErrorStatuses[1], "INST")
	require.Empty(t, snapshot.InstrumentPVs)
	require.Len(t, snapshot.Groups[0].Blocks, 1)
}

func TestTotalFailure(t *testing.T) {
	builder := NewBuilder(
		fakeConfig{config: mustConfig(t, demoConfig)},
		fakeArchive{},
		telemetry.NewRecorder(),
	)

	_, err := builder.Build(context.Background())
	require.ErrorIs(t, err, ErrArchiveUnavailable)
}

func TestConfigUnreadable(t *testing.T) {
	builder := NewBuilder(
		fakeConfig{err: errors.New("timed out")},
		fakeArchive{},
		telemetry.NewRecorder(),
	)

	_, err := builder.Build(context.Background())
	require.ErrorIs(t, err, instconfig.ErrConfigUnreadable)
}

func TestRunControlAndStatuses(t *testing.T) {
	builder := NewBuilder(
		fakeConfig{config: mustConfig(t, `{'name': 'DEMO', 'groups': [{'name': 'G', 'blocks': ['TEMP']}], 'blocks': []}`)},
		fakeArchive{
			archive.GroupBlocks: channels(channel("CS:SB:TEMP", "12.5")),
			archive.GroupDataweb: channels(
				channel("CS:SB:TEMP:RC:LOW.VAL", "10"),
				channel("CS:SB:TEMP:RC:HIGH.VAL", "20"),
			),
			archive.GroupInst: channels(
				channel("CS:SB:TEMP:RC:INRANGE.VAL", "YES"),
				channel("DAE:TITLE.VAL", "Secret"),
				channel("DAE:RUNDURATION.VAL", "5025"),
				channel("DAE:RUNNUMBER.VAL", "00012345"),
				channel("DAE:NOT_REQUIRED.VAL", "1"),
			),
		},
		telemetry.NewRecorder(),
	)

	snapshot, err := builder.Build(context.Background())
	require.NoError(t, err)

	temp := snapshot.Groups[0].Blocks[0].Reading
	require.Equal(t, "10", *temp.RunControl.Low)
	require.Equal(t, "20", *temp.RunControl.High)
	require.Equal(t, "YES", *temp.RunControl.InRange)
	require.Nil(t, temp.RunControl.Enabled)

	title, ok := snapshot.Status("TITLE")
	require.True(t, ok)
	require.Equal(t, "Unavailable", title.Display)

	duration, ok := snapshot.Status("RUNDURATION")
	require.True(t, ok)
	require.Equal(t, "1 hr 23 min 45 s", duration.Display)

	number, ok := snapshot.Status("RUNNUMBER")
	require.True(t, ok)
	require.Equal(t, "00012345", number.Display)

	_, ok = snapshot.Status("NOT_REQUIRED")
	require.False(t, ok)
}
