// Package webserver serves instrument snapshots to the dataweb front end as jsonp.
package webserver

import (
	"bytes"
	"dataweb-backend/internal/components/assert"
	"dataweb-backend/internal/components/telemetry"
	"dataweb-backend/internal/store"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/antzucaro/matchr"
	"github.com/mazen160/go-random"
)

const (
	report_handler_request = "handler.request"
	report_handler_reject  = "handler.reject"
	report_handler_encode  = "handler.encode"
)

var (
	ErrUnknownInstrument = errors.New("not known")
	ErrUnavailable       = errors.New("Instrument has become unavailable")
)

// suggestionThreshold is the lowest Jaro-Winkler similarity worth suggesting.
const suggestionThreshold = 0.8

type Store interface {
	Get(name string) (store.Entry, bool)
	Names() []string
	Summary() []store.SummaryItem
}

type Handler struct {
	store Store
	tel   telemetry.API
}

func NewHandler(s Store, tel telemetry.API) *Handler {
	assert.NotNil(s)
	assert.NotNil(tel)
	return &Handler{
		store: s,
		tel:   telemetry.NewScopedAPI("webserver", tel),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	requestId, err := random.String(8)
	if err != nil {
		requestId = "unknown"
	}

	instrument, callback, err := ParseRequest(r.RequestURI)
	if err != nil {
		h.reject(w, requestId, err)
		return
	}
	h.tel.ReportDebug(report_handler_request, requestId, r.RemoteAddr, instrument)

	body, err := h.payload(instrument)
	if err != nil {
		h.reject(w, requestId, err)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "%s(%s)", callback, body)
}

func (h *Handler) reject(w http.ResponseWriter, requestId string, err error) {
	h.tel.ReportDebug(report_handler_reject, requestId, err)
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func (h *Handler) payload(instrument string) ([]byte, error) {
	if instrument == AllInstruments {
		return encodeSummary(h.store.Summary())
	}

	entry, ok := h.store.Get(instrument)
	if !ok {
		err := fmt.Errorf("%s %w", instrument, ErrUnknownInstrument)
		if suggestion := h.suggest(instrument); suggestion != "" {
			err = fmt.Errorf("%w, did you mean %s?", err, suggestion)
		}
		return nil, err
	}
	if !entry.Available() {
		return nil, ErrUnavailable
	}

	body, err := json.Marshal(entry.Snapshot)
	if err != nil {
		h.tel.ReportBroken(report_handler_encode, instrument, err)
		return nil, fmt.Errorf("unable to convert instrument data to json: %w", err)
	}
	return body, nil
}

func (h *Handler) suggest(instrument string) string {
	best := ""
	bestScore := suggestionThreshold
	for _, name := range h.store.Names() {
		score := matchr.JaroWinkler(instrument, name, false)
		if score >= bestScore {
			best = name
			bestScore = score
		}
	}
	return best
}

type summaryJSON struct {
	IsUp     bool   `json:"is_up"`
	RunState string `json:"run_state"`
}

// encodeSummary writes the summary as an object keeping the summary's order.
func encodeSummary(items []store.SummaryItem) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, item := range items {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(item.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(summaryJSON{IsUp: item.IsUp, RunState: item.RunState})
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
