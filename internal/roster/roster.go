// Package roster resolves the instruments that should currently be polled.
package roster

import (
	"context"
	"dataweb-backend/internal/components/assert"
	"dataweb-backend/internal/components/telemetry"
	"dataweb-backend/internal/pv"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

const (
	report_source_retrieve = "source.retrieve"
	report_source_cache    = "source.cache"
)

const DefaultVariable = "CS:INSTLIST"

var (
	ErrCanNotBeRead     = errors.New("INSTRUMENT_LIST_CAN_NOT_BE_READ")
	ErrNotDecompressed  = errors.New("INSTRUMENT_LIST_NOT_DECOMPRESSED")
	ErrNotJSON          = errors.New("INSTRUMENT_LIST_NOT_JSON")
	ErrNotCorrectFormat = errors.New("INSTRUMENT_LIST_NOT_CORRECT_FORMAT")
)

// Entry is one live instrument, instruments are told apart by (Name, Host).
type Entry struct {
	Name   string `json:"name"`
	Host   string `json:"hostName"`
	Prefix string `json:"pvPrefix"`
}

type rawEntry struct {
	Name   *string `json:"name"`
	Host   *string `json:"hostName"`
	Prefix *string `json:"pvPrefix"`
}

// Parse decodes the value of the instrument list variable.
func Parse(value string) ([]Entry, error) {
	data, err := pv.DehexAndDecompress(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotDecompressed, err)
	}

	var raw []json.RawMessage
	err = json.Unmarshal(data, &raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotJSON, err)
	}

	seen := map[string]int{}
	out := make([]Entry, 0, len(raw))
	for i, item := range raw {
		var entry rawEntry
		err = json.Unmarshal(item, &entry)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %w", ErrNotCorrectFormat, i, err)
		}
		if entry.Name == nil || entry.Host == nil || entry.Prefix == nil {
			return nil, fmt.Errorf("%w: entry %d is missing a field", ErrNotCorrectFormat, i)
		}

		e := Entry{Name: *entry.Name, Host: *entry.Host, Prefix: *entry.Prefix}
		// a repeated name replaces the earlier entry
		if j, ok := seen[e.Name]; ok {
			out[j] = e
			continue
		}
		seen[e.Name] = len(out)
		out = append(out, e)
	}
	return out, nil
}

// Source reads the instrument list, falling back to the last list it read successfully.
type Source struct {
	vars     pv.Reader
	variable string
	cache    *Cache
	tel      telemetry.API

	mutex   sync.Mutex
	last    []Entry
	lastErr error
}

// NewSource creates a source reading variable through vars. cache may be nil.
func NewSource(vars pv.Reader, variable string, cache *Cache, tel telemetry.API) *Source {
	assert.NotNil(vars)
	assert.NotEmptyStr(variable)
	assert.NotNil(tel)

	return &Source{
		vars:     vars,
		variable: variable,
		cache:    cache,
		tel:      telemetry.NewScopedAPI("roster", tel),
		last:     []Entry{},
	}
}

// Prime loads the list persisted by a previous run, so that pollers can start before the
// instrument list variable answers.
func (s *Source) Prime(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	entries, err := s.cache.Load(ctx)
	if err != nil {
		return err
	}
	if entries == nil {
		return nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.last = entries
	return nil
}

func (s *Source) read(ctx context.Context) ([]Entry, error) {
	value, err := s.vars.Read(ctx, s.variable)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCanNotBeRead, err)
	}
	return Parse(value)
}

// Retrieve returns the current instrument list. On failure it returns the last good list (empty
// if there never was one) and the failure is kept for ErrorOnRetrieve.
func (s *Source) Retrieve(ctx context.Context) []Entry {
	entries, err := s.read(ctx)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.lastErr = err
	if err != nil {
		s.tel.ReportWarning(report_source_retrieve, err)
		return append([]Entry(nil), s.last...)
	}

	s.last = entries
	if s.cache != nil {
		err = s.cache.Save(ctx, entries)
		if err != nil {
			s.tel.ReportWarning(report_source_cache, err)
		}
	}
	s.tel.ReportCount(report_source_retrieve, int64(len(entries)))
	return append([]Entry(nil), entries...)
}

// ErrorOnRetrieve is the error code of the last Retrieve, or "" if it succeeded.
func (s *Source) ErrorOnRetrieve() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, code := range []error{ErrCanNotBeRead, ErrNotDecompressed, ErrNotJSON, ErrNotCorrectFormat} {
		if errors.Is(s.lastErr, code) {
			return code.Error()
		}
	}
	if s.lastErr != nil {
		return s.lastErr.Error()
	}
	return ""
}
