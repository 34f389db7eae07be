// Package snapshot assembles everything known about one instrument in a single poll cycle.
package snapshot

import (
	"bytes"
	"dataweb-backend/internal/reading"
	"encoding/json"
)

// Block is a configured block and its formatted reading.
type Block struct {
	Name    string
	Reading reading.Formatted
}

type Group struct {
	Name   string
	Blocks []Block
}

// InstrumentSnapshot is immutable once built.
type InstrumentSnapshot struct {
	ConfigName    string
	Groups        []Group
	InstrumentPVs map[string]reading.Formatted
	ErrorStatuses []string
}

// Status returns the formatted instrument status value with the given name.
func (s *InstrumentSnapshot) Status(name string) (reading.Formatted, bool) {
	if s == nil {
		return reading.Formatted{}, false
	}
	f, ok := s.InstrumentPVs[name]
	return f, ok
}

func writeKey(buf *bytes.Buffer, key string) error {
	encoded, err := json.Marshal(key)
	if err != nil {
		return err
	}
	buf.Write(encoded)
	buf.WriteByte(':')
	return nil
}

func (g Group) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, b := range g.Blocks {
		if i > 0 {
			buf.WriteByte(',')
		}
		err := writeKey(&buf, b.Name)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(b.Reading)
		if err != nil {
			return nil, err
		}
		buf.Write(encoded)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type orderedGroups []Group

func (groups orderedGroups) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, g := range groups {
		if i > 0 {
			buf.WriteByte(',')
		}
		err := writeKey(&buf, g.Name)
		if err != nil {
			return nil, err
		}
		encoded, err := g.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(encoded)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type snapshotJSON struct {
	ConfigName    string                       `json:"config_name"`
	Groups        orderedGroups                `json:"groups"`
	InstrumentPVs map[string]reading.Formatted `json:"inst_pvs"`
	ErrorStatuses []string                     `json:"error_statuses"`
}

// MarshalJSON keeps groups, and the blocks within them, in their configured order.
func (s InstrumentSnapshot) MarshalJSON() ([]byte, error) {
	out := snapshotJSON{
		ConfigName:    s.ConfigName,
		Groups:        orderedGroups(s.Groups),
		InstrumentPVs: s.InstrumentPVs,
		ErrorStatuses: s.ErrorStatuses,
	}
	if out.InstrumentPVs == nil {
		out.InstrumentPVs = map[string]reading.Formatted{}
	}
	if out.ErrorStatuses == nil {
		out.ErrorStatuses = []string{}
	}
	return json.Marshal(out)
}
