// Package normalize turns archive channel entries of every historical shape into readings.
package normalize

import (
	"dataweb-backend/internal/components/assert"
	"dataweb-backend/internal/components/telemetry"
	"dataweb-backend/internal/reading"
	"errors"
	"fmt"
)

const (
	report_normalizer_channel = "normalizer.channel"
)

type Normalizer struct {
	tel telemetry.API
}

func NewNormalizer(tel telemetry.API) Normalizer {
	assert.NotNil(tel)
	return Normalizer{tel: telemetry.NewScopedAPI("normalize", tel)}
}

// Channel parses a single raw channel. ok is false when the channel should be left out of the
// batch, either because its row is incomplete (err is nil) or because it is malformed.
func (n Normalizer) Channel(raw RawChannel) (r reading.Reading, ok bool, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r = reading.Reading{}
			ok = false
			err = fmt.Errorf("panic while parsing channel: %v", recovered)
		}
	}()

	strategy := Classify(raw)
	r, err = parseChannel(strategy, raw)
	if errors.Is(err, errIncomplete) {
		return reading.Reading{}, false, nil
	}
	if err != nil {
		return reading.Reading{}, false, fmt.Errorf("%s: %w", strategy, err)
	}
	return r, true, nil
}

// Batch parses every channel of a batch. A malformed channel is reported and skipped, it never
// prevents the rest of the batch from being read.
func (n Normalizer) Batch(batch Batch) reading.Set {
	out := make(reading.Set, len(batch))
	for _, raw := range batch {
		r, ok, err := n.Channel(raw)
		if err != nil {
			n.tel.ReportWarning(report_normalizer_channel, err, describe(raw))
			continue
		}
		if !ok {
			n.tel.ReportDebug("skipped incomplete channel", describe(raw))
			continue
		}
		out[r.Name] = r
	}
	return out
}

func describe(raw RawChannel) string {
	if raw.Format == FormatJSON {
		const limit = 256
		if len(raw.Payload) > limit {
			return string(raw.Payload[:limit]) + "..."
		}
		return string(raw.Payload)
	}
	return fmt.Sprintf("%s: %q", raw.ID, raw.Text)
}
