package normalize

import (
	"dataweb-backend/internal/components/telemetry"
	"dataweb-backend/internal/reading"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int {
	return &i
}

func TestShortenTitle(t *testing.T) {
	table := []struct {
		input    string
		expected string
	}{
		{input: "TEMP", expected: "TEMP"},
		{input: "IN:DEMO:CS:SB:TEMP", expected: "TEMP"},
		{input: "IN:DEMO:CS:SB:TEMP:RC:LOW.VAL", expected: "TEMP:RC:LOW.VAL"},
		{input: "IN:DEMO:CS:SB:TEMP:RC:HIGH.VAL", expected: "TEMP:RC:HIGH.VAL"},
		{input: "IN:DEMO:CS:SB:TEMP:RC:INRANGE.VAL", expected: "TEMP:RC:INRANGE.VAL"},
		{input: "IN:DEMO:CS:SB:TEMP:RC:ENABLE.VAL", expected: "TEMP:RC:ENABLE.VAL"},
		{input: "IN:DEMO:CS:SB:TEMP:RC:BAD.VAL", expected: "BAD.VAL"},
		{input: "IN:DEMO:DAE:RUNSTATE.VAL", expected: "RUNSTATE.VAL"},
		{input: "INRANGE.VAL", expected: "INRANGE.VAL"},
		{input: "RC:INRANGE.VAL", expected: "RC:INRANGE.VAL"},
		{input: "TE:NDLT910:RC.VAL", expected: "RC.VAL"},
	}

	for _, row := range table {
		require.Equal(t, row.expected, ShortenTitle(row.input), row.input)
	}
}

func TestClassify(t *testing.T) {
	require.Equal(t, StrategyJSON, Classify(RawChannel{Format: FormatJSON}))
	require.Equal(t, StrategyStartTime, Classify(RawChannel{Format: FormatLegacy, ID: "IN:DEMO:DAE:STARTTIME.VAL"}))
	require.Equal(t, StrategyCharCodes, Classify(RawChannel{Format: FormatLegacy, ID: "IN:DEMO:DAE:TITLE.VAL"}))
	require.Equal(t, StrategyCharCodes, Classify(RawChannel{Format: FormatLegacy, ID: "IN:DEMO:DAE:_USERNAME.VAL"}))
	require.Equal(t, StrategyPositional, Classify(RawChannel{Format: FormatLegacy, ID: "IN:DEMO:DAE:RUNSTATE.VAL"}))
}

func TestDecodeJSONBatch(t *testing.T) {
	batch, err := DecodeJSONBatch([]byte(`{"Channels": [{"Channel": "A"}, {"Channel": "B"}]}`))
	require.NoError(t, err)
	require.Len(t, batch, 2)

	_, err = DecodeJSONBatch([]byte(`{"Something": []}`))
	require.ErrorIs(t, err, ErrNoChannels)

	_, err = DecodeJSONBatch([]byte(`[1, 2, 3]`))
	require.ErrorIs(t, err, ErrNoChannels)

	batch, err = DecodeJSONBatch([]byte(`{"Channels": []}`))
	require.NoError(t, err)
	require.Empty(t, batch)
}

func TestJSONChannels(t *testing.T) {
	n := NewNormalizer(telemetry.NewRecorder())

	table := []struct {
		name     string
		payload  string
		expected reading.Reading
	}{
		{
			name: "connected with units and precision",
			payload: `{"Channel": "IN:DEMO:CS:SB:TEMP", "Connected": true,
				"Current Value": {"Value": "12.5", "Alarm": "MINOR", "Units": "K", "Precision": 3}}`,
			expected: reading.Reading{
				Name: "TEMP", State: reading.Connected, Value: "12.5", Alarm: "MINOR",
				Visible: true, Units: "K", Precision: intPtr(3),
			},
		},
		{
			name: "numeric value without units",
			payload: `{"Channel": "IN:DEMO:CS:SB:COUNT", "Connected": true,
				"Current Value": {"Value": 42, "Alarm": ""}}`,
			expected: reading.Reading{
				Name: "COUNT", State: reading.Connected, Value: "42", Visible: true,
			},
		},
		{
			name: "negative precision is dropped",
			payload: `{"Channel": "IN:DEMO:CS:SB:COUNT", "Connected": true,
				"Current Value": {"Value": "1", "Alarm": "", "Precision": -1}}`,
			expected: reading.Reading{
				Name: "COUNT", State: reading.Connected, Value: "1", Visible: true,
			},
		},
		{
			name: "disconnected keeps nothing",
			payload: `{"Channel": "IN:DEMO:CS:SB:TEMP", "Connected": false,
				"Current Value": {"Value": "12.5", "Alarm": "INVALID", "Units": "K"}}`,
			expected: reading.NewDisconnected("TEMP"),
		},
		{
			name: "null value is disconnected",
			payload: `{"Channel": "IN:DEMO:CS:SB:TEMP", "Connected": true,
				"Current Value": {"Value": "null", "Alarm": "", "Units": "K"}}`,
			expected: reading.NewDisconnected("TEMP"),
		},
		{
			name:     "run-control channel",
			payload:  `{"Channel": "IN:DEMO:CS:SB:TEMP:RC:LOW.VAL", "Connected": true, "Current Value": {"Value": "10", "Alarm": ""}}`,
			expected: reading.Reading{Name: "TEMP:RC:LOW.VAL", State: reading.Connected, Value: "10", Visible: true},
		},
	}

	for _, row := range table {
		r, ok, err := n.Channel(RawChannel{Format: FormatJSON, Payload: []byte(row.payload)})
		require.NoError(t, err, row.name)
		require.True(t, ok, row.name)
		if diff := cmp.Diff(row.expected, r); diff != "" {
			t.Errorf("%s: (-want +got)\n%s", row.name, diff)
		}
	}
}

func TestDisconnectedInvariant(t *testing.T) {
	n := NewNormalizer(telemetry.NewRecorder())
	batch := Batch{
		{Format: FormatJSON, Payload: []byte(`{"Channel": "A", "Connected": false, "Current Value": {"Value": "1", "Alarm": "MAJOR", "Units": "mm"}}`)},
		{Format: FormatJSON, Payload: []byte(`{"Channel": "B", "Connected": false, "Current Value": null}`)},
		{Format: FormatLegacy, ID: "IN:DEMO:CS:SB:C", Status: "Disconnected", Text: "a b 3 MAJOR"},
		{Format: FormatLegacy, ID: "IN:DEMO:CS:SB:D", Status: "", Text: "a b 4 MAJOR"},
		{Format: FormatLegacy, ID: "IN:DEMO:CS:SB:E", Status: "Connected", Text: "null"},
	}

	set := n.Batch(batch)
	require.Len(t, set, len(batch))
	for name, r := range set {
		require.False(t, r.IsConnected(), name)
		require.Equal(t, "null", r.Value, name)
		require.Equal(t, "", r.Alarm, name)
		require.Equal(t, "", r.Units, name)
	}
}

func TestPartialBatchResilience(t *testing.T) {
	rec := telemetry.NewRecorder()
	n := NewNormalizer(rec)

	body := []byte(`{"Channels": [
		{"Channel": "IN:DEMO:CS:SB:A", "Connected": true, "Current Value": {"Value": "1", "Alarm": ""}},
		{"Channel": "IN:DEMO:CS:SB:B", "Current Value": {"Value": "2", "Alarm": ""}},
		{"Channel": "IN:DEMO:CS:SB:C", "Connected": true, "Current Value": {"Value": "3", "Alarm": ""}},
		{"Channel": "IN:DEMO:CS:SB:D", "Connected": true, "Current Value": {"Value": "4", "Alarm": ""}}
	]}`)
	batch, err := DecodeJSONBatch(body)
	require.NoError(t, err)

	set := n.Batch(batch)
	require.Len(t, set, 3)
	require.Contains(t, set, "A")
	require.NotContains(t, set, "B")
	require.Contains(t, set, "C")
	require.Contains(t, set, "D")
	require.Len(t, rec.Reports("warning", report_normalizer_channel), 1)
}

func TestLegacyRows(t *testing.T) {
	n := NewNormalizer(telemetry.NewRecorder())

	table := []struct {
		name     string
		raw      RawChannel
		ok       bool
		expected reading.Reading
	}{
		{
			name: "positional",
			raw:  RawChannel{Format: FormatLegacy, ID: "IN:DEMO:CS:SB:TEMP", Status: "Connected", Text: "01/02/2024 10:00:00 12.5 NO_ALARM"},
			ok:   true,
			expected: reading.Reading{
				Name: "TEMP", State: reading.Connected, Value: "12.5", Alarm: "NO_ALARM", Visible: true,
			},
		},
		{
			name: "positional remainder stays in the alarm field",
			raw:  RawChannel{Format: FormatLegacy, ID: "IN:DEMO:CS:SB:TEMP", Status: "Connected", Text: "  d t 1 HIHI MAJOR"},
			ok:   true,
			expected: reading.Reading{
				Name: "TEMP", State: reading.Connected, Value: "1", Alarm: "HIHI MAJOR", Visible: true,
			},
		},
		{
			name: "positional with a missing value is skipped",
			raw:  RawChannel{Format: FormatLegacy, ID: "IN:DEMO:CS:SB:TEMP", Status: "Connected", Text: "d t 1"},
			ok:   false,
		},
		{
			name: "start time",
			raw:  RawChannel{Format: FormatLegacy, ID: "IN:DEMO:DAE:STARTTIME.VAL", Status: "Connected", Text: "01/02/2024 10:00:00\tTue 02-Jan-2024 09:58:12\tNO_ALARM"},
			ok:   true,
			expected: reading.Reading{
				Name: "STARTTIME.VAL", State: reading.Connected, Value: "Tue 02-Jan-2024 09:58:12", Alarm: "NO_ALARM", Visible: true,
			},
		},
		{
			name: "start time without alarm is skipped",
			raw:  RawChannel{Format: FormatLegacy, ID: "IN:DEMO:DAE:STARTTIME.VAL", Status: "Connected", Text: "01/02/2024 10:00:00\tTue"},
			ok:   false,
		},
		{
			name: "title character codes",
			raw:  RawChannel{Format: FormatLegacy, ID: "IN:DEMO:DAE:TITLE.VAL", Status: "Connected", Text: "01/02/2024 10:00:00 72, 105, 0, 0, 33,"},
			ok:   true,
			expected: reading.Reading{
				Name: "TITLE.VAL", State: reading.Connected, Value: "Hi!", Visible: true,
			},
		},
		{
			name: "undecodable username",
			raw:  RawChannel{Format: FormatLegacy, ID: "IN:DEMO:DAE:_USERNAME.VAL", Status: "Connected", Text: "d t 72, 99999999999"},
			ok:   true,
			expected: reading.Reading{
				Name: "_USERNAME.VAL", State: reading.Connected, Value: "Unknown", Alarm: "null", Visible: true,
			},
		},
	}

	for _, row := range table {
		r, ok, err := n.Channel(row.raw)
		require.NoError(t, err, row.name)
		require.Equal(t, row.ok, ok, row.name)
		if !row.ok {
			continue
		}
		if diff := cmp.Diff(row.expected, r); diff != "" {
			t.Errorf("%s: (-want +got)\n%s", row.name, diff)
		}
	}
}

func TestSplitWhitespace(t *testing.T) {
	require.Equal(t, []string{"a", "b", "c d  e"}, splitWhitespace("  a \t b   c d  e", 3))
	require.Equal(t, []string{"a", "b"}, splitWhitespace("a b  ", 3))
	require.Empty(t, splitWhitespace("   ", 3))
}
