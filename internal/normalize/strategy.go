package normalize

import (
	"bytes"
	"dataweb-backend/internal/reading"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Strategy is the parse rule used for one raw channel.
type Strategy int

const (
	StrategyJSON Strategy = iota
	// StrategyStartTime is the tab separated run start time row.
	StrategyStartTime
	// StrategyCharCodes is a row whose value is a list of character codes.
	StrategyCharCodes
	// StrategyPositional is an ordinary whitespace separated row.
	StrategyPositional
)

func (s Strategy) String() string {
	switch s {
	case StrategyJSON:
		return "json"
	case StrategyStartTime:
		return "start-time"
	case StrategyCharCodes:
		return "char-codes"
	case StrategyPositional:
		return "positional"
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// Classify picks the parse strategy for a raw channel from its format and identifier.
func Classify(raw RawChannel) Strategy {
	if raw.Format == FormatJSON {
		return StrategyJSON
	}
	switch {
	case strings.Contains(raw.ID, "DAE:STARTTIME.VAL"):
		return StrategyStartTime
	case strings.Contains(raw.ID, "DAE:TITLE.VAL"), strings.Contains(raw.ID, "DAE:_USERNAME.VAL"):
		return StrategyCharCodes
	}
	return StrategyPositional
}

// errIncomplete marks a source row with fewer fields than its strategy needs.
var errIncomplete = errors.New("incomplete row")

const (
	unknownValue = "Unknown"
	unknownAlarm = "null"
)

// parseChannel turns a raw channel into a reading using the given strategy.
func parseChannel(strategy Strategy, raw RawChannel) (reading.Reading, error) {
	switch strategy {
	case StrategyJSON:
		return parseJSON(raw.Payload)
	case StrategyStartTime:
		return parseLegacy(raw, func(text string) (string, string, error) {
			fields := strings.SplitN(text, "\t", 3)
			if len(fields) < 3 {
				return "", "", errIncomplete
			}
			return fields[1], fields[2], nil
		})
	case StrategyCharCodes:
		return parseLegacy(raw, func(text string) (string, string, error) {
			fields := splitWhitespace(text, 3)
			if len(fields) < 3 {
				return "", "", errIncomplete
			}
			value, err := decodeCharCodes(strings.Split(fields[2], ", "))
			if err != nil {
				return unknownValue, unknownAlarm, nil
			}
			return value, "", nil
		})
	case StrategyPositional:
		return parseLegacy(raw, func(text string) (string, string, error) {
			fields := splitWhitespace(text, 4)
			if len(fields) < 4 {
				return "", "", errIncomplete
			}
			return fields[2], fields[3], nil
		})
	}
	return reading.Reading{}, fmt.Errorf("unknown strategy %s", strategy)
}

func isNullPayload(text string) bool {
	text = strings.TrimSpace(text)
	return text == "" || text == reading.NullValue
}

func parseLegacy(raw RawChannel, fields func(text string) (value, alarm string, err error)) (reading.Reading, error) {
	name := ShortenTitle(raw.ID)
	if name == "" {
		return reading.Reading{}, fmt.Errorf("channel has no identifier")
	}
	// a disconnected channel's status cell is wrapped in an extra <font> and reads as empty
	status := strings.TrimSpace(raw.Status)
	if status == "" || strings.EqualFold(status, reading.Disconnected.String()) || isNullPayload(raw.Text) {
		return reading.NewDisconnected(name), nil
	}

	value, alarm, err := fields(raw.Text)
	if err != nil {
		return reading.Reading{}, err
	}
	return reading.Reading{
		Name:    name,
		State:   reading.Connected,
		Value:   value,
		Alarm:   alarm,
		Visible: true,
	}, nil
}

// splitWhitespace splits s around runs of whitespace into at most n fields, the last field
// holding the unsplit remainder. Leading whitespace is ignored.
func splitWhitespace(s string, n int) []string {
	var out []string
	rest := strings.TrimLeftFunc(s, unicode.IsSpace)
	for rest != "" {
		if len(out) == n-1 {
			out = append(out, rest)
			break
		}
		end := strings.IndexFunc(rest, unicode.IsSpace)
		if end < 0 {
			out = append(out, rest)
			break
		}
		out = append(out, rest[:end])
		rest = strings.TrimLeftFunc(rest[end:], unicode.IsSpace)
	}
	return out
}

// decodeCharCodes converts tokens such as "72", "105," into text. Non-digit characters are
// dropped from every token, empty and zero tokens are skipped.
func decodeCharCodes(tokens []string) (string, error) {
	var out strings.Builder
	for _, token := range tokens {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, token)
		if digits == "" {
			continue
		}
		code, err := strconv.ParseUint(digits, 10, 32)
		if err != nil {
			return "", err
		}
		if code == 0 {
			continue
		}
		if code > unicode.MaxRune || !utf8.ValidRune(rune(code)) {
			return "", fmt.Errorf("invalid character code %d", code)
		}
		out.WriteRune(rune(code))
	}
	return out.String(), nil
}

type jsonChannel struct {
	Channel      *string         `json:"Channel"`
	Connected    *bool           `json:"Connected"`
	CurrentValue json.RawMessage `json:"Current Value"`
}

type jsonCurrentValue struct {
	Value     json.RawMessage `json:"Value"`
	Alarm     json.RawMessage `json:"Alarm"`
	Units     *flexString     `json:"Units"`
	Precision *json.Number    `json:"Precision"`
}

func parseJSON(payload json.RawMessage) (reading.Reading, error) {
	var channel jsonChannel
	err := json.Unmarshal(payload, &channel)
	if err != nil {
		return reading.Reading{}, err
	}
	if channel.Channel == nil {
		return reading.Reading{}, fmt.Errorf("missing key 'Channel'")
	}
	if channel.Connected == nil {
		return reading.Reading{}, fmt.Errorf("missing key 'Connected'")
	}
	if channel.CurrentValue == nil {
		return reading.Reading{}, fmt.Errorf("missing key 'Current Value'")
	}

	name := ShortenTitle(*channel.Channel)
	if !*channel.Connected || bytes.Equal(bytes.TrimSpace(channel.CurrentValue), []byte("null")) {
		return reading.NewDisconnected(name), nil
	}

	var current jsonCurrentValue
	err = json.Unmarshal(channel.CurrentValue, &current)
	if err != nil {
		return reading.Reading{}, fmt.Errorf("current value: %w", err)
	}
	if current.Value == nil {
		return reading.Reading{}, fmt.Errorf("missing key 'Value'")
	}
	if current.Alarm == nil {
		return reading.Reading{}, fmt.Errorf("missing key 'Alarm'")
	}
	var value, alarm flexString
	err = json.Unmarshal(current.Value, &value)
	if err != nil {
		return reading.Reading{}, fmt.Errorf("value: %w", err)
	}
	if isNullPayload(string(value)) {
		return reading.NewDisconnected(name), nil
	}
	err = json.Unmarshal(current.Alarm, &alarm)
	if err != nil {
		return reading.Reading{}, fmt.Errorf("alarm: %w", err)
	}

	out := reading.Reading{
		Name:    name,
		State:   reading.Connected,
		Value:   string(value),
		Alarm:   string(alarm),
		Visible: true,
	}
	if current.Units != nil {
		out.Units = string(*current.Units)
	}
	if current.Precision != nil {
		precision, err := current.Precision.Int64()
		if err == nil && precision >= 0 {
			p := int(precision)
			out.Precision = &p
		}
	}
	return out, nil
}

// flexString accepts a json string, number or boolean and keeps its text. A json null decodes
// to the empty string.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		err := json.Unmarshal(data, &s)
		if err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if len(data) == 0 || data[0] == '{' || data[0] == '[' {
		return fmt.Errorf("expected a scalar, got %q", data)
	}
	*f = flexString(data)
	return nil
}
