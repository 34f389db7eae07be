package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoChannels is returned for an archive document that has no channel list at all.
var ErrNoChannels = errors.New("there is no json object for channels")

type Format int

const (
	// FormatJSON is a channel object from the archive's json group page.
	FormatJSON Format = iota
	// FormatLegacy is a row scraped from the archive's html group page.
	FormatLegacy
)

// RawChannel is one undecoded channel entry of a batch.
type RawChannel struct {
	Format Format

	// Payload is the whole channel object for FormatJSON.
	Payload json.RawMessage

	// ID, Status and Text are the header link, first and third cells of a FormatLegacy row.
	ID     string
	Status string
	Text   string
}

// Batch is the channel list of one archive group.
type Batch []RawChannel

// DecodeJSONBatch splits an archive json document into its channel entries without decoding
// them, so that a single malformed entry can be skipped later on.
func DecodeJSONBatch(body []byte) (Batch, error) {
	var doc struct {
		Channels *[]json.RawMessage `json:"Channels"`
	}
	err := json.Unmarshal(body, &doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoChannels, err)
	}
	if doc.Channels == nil {
		return nil, ErrNoChannels
	}

	out := make(Batch, len(*doc.Channels))
	for i, payload := range *doc.Channels {
		out[i] = RawChannel{Format: FormatJSON, Payload: payload}
	}
	return out, nil
}
