// Package reading holds the canonical record every raw channel is normalized into.
package reading

import (
	"encoding/json"
)

type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "Connected"
	}
	return "Disconnected"
}

// NullValue is how a disconnected reading's value is spelled on the wire.
const NullValue = "null"

// RunControl holds the optional run-control limits of a block. A nil field was not reported.
type RunControl struct {
	Low     *string
	High    *string
	InRange *string
	Enabled *string
}

func (rc RunControl) IsZero() bool {
	return rc.Low == nil && rc.High == nil && rc.InRange == nil && rc.Enabled == nil
}

// Reading is one named measurement as read during a single poll cycle.
type Reading struct {
	Name    string
	State   State
	Value   string
	Alarm   string
	Visible bool
	Units   string
	// Precision is nil when the source did not declare one.
	Precision  *int
	RunControl RunControl
}

// NewDisconnected returns the canonical reading of a channel that could not be read.
func NewDisconnected(name string) Reading {
	return Reading{
		Name:    name,
		State:   Disconnected,
		Value:   NullValue,
		Visible: true,
	}
}

func (r Reading) IsConnected() bool {
	return r.State == Connected
}

// Set is the readings of one batch keyed by name.
type Set map[string]Reading

// Merge returns a new set holding the readings of s overlaid by those of other.
func (s Set) Merge(other Set) Set {
	out := make(Set, len(s)+len(other))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Formatted is a reading together with the value string shown to consumers.
type Formatted struct {
	Reading
	Display string
}

type formattedJSON struct {
	Status     string  `json:"status"`
	Value      string  `json:"value"`
	Alarm      string  `json:"alarm"`
	Visibility bool    `json:"visibility"`
	RcLow      *string `json:"rc_low,omitempty"`
	RcHigh     *string `json:"rc_high,omitempty"`
	RcInRange  *string `json:"rc_inrange,omitempty"`
	RcEnabled  *string `json:"rc_enabled,omitempty"`
}

func (f Formatted) MarshalJSON() ([]byte, error) {
	return json.Marshal(formattedJSON{
		Status:     f.State.String(),
		Value:      f.Display,
		Alarm:      f.Alarm,
		Visibility: f.Visible,
		RcLow:      f.RunControl.Low,
		RcHigh:     f.RunControl.High,
		RcInRange:  f.RunControl.InRange,
		RcEnabled:  f.RunControl.Enabled,
	})
}
