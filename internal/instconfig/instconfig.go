// Package instconfig reads the current configuration of an instrument: its name, its block
// groups and the visibility of its blocks.
package instconfig

import (
	"context"
	"dataweb-backend/internal/components/assert"
	"dataweb-backend/internal/components/telemetry"
	"dataweb-backend/internal/pv"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/titanous/json5"
)

const (
	report_reader_pv     = "reader.pv"
	report_reader_legacy = "reader.legacy"
)

const PortConfig = 8008

// ConfigVariable is the name of the configuration variable relative to the instrument prefix.
const ConfigVariable = "CS:BLOCKSERVER:GET_CURR_CONFIG_DETAILS"

var ErrConfigUnreadable = errors.New("configuration could not be read")

type Group struct {
	Name   string   `json:"name"`
	Blocks []string `json:"blocks"`
}

type Block struct {
	Name    string `json:"name"`
	Visible bool   `json:"visible"`
}

type Config struct {
	Name   string  `json:"name"`
	Groups []Group `json:"groups"`
	Blocks []Block `json:"blocks"`

	visibility map[string]bool
}

// IsVisible reports the configured visibility of a block, a block the configuration does not
// declare is visible.
func (c Config) IsVisible(block string) bool {
	visible, ok := c.visibility[block]
	if !ok {
		return true
	}
	return visible
}

func parseConfig(data []byte, unmarshal func([]byte, any) error) (Config, error) {
	var doc struct {
		Name   *string `json:"name"`
		Groups *[]Group `json:"groups"`
		Blocks []Block  `json:"blocks"`
	}
	err := unmarshal(data, &doc)
	if err != nil {
		return Config{}, err
	}
	if doc.Name == nil {
		return Config{}, fmt.Errorf("missing key 'name'")
	}
	if doc.Groups == nil {
		return Config{}, fmt.Errorf("missing key 'groups'")
	}

	out := Config{
		Name:       *doc.Name,
		Groups:     *doc.Groups,
		Blocks:     doc.Blocks,
		visibility: make(map[string]bool, len(doc.Blocks)),
	}
	for _, b := range doc.Blocks {
		out.visibility[b.Name] = b.Visible
	}
	return out, nil
}

// ParseCompressed parses the hex encoded, zlib compressed json of the configuration variable.
func ParseCompressed(value string) (Config, error) {
	data, err := pv.DehexAndDecompress(value)
	if err != nil {
		return Config{}, err
	}
	return parseConfig(data, json.Unmarshal)
}

// ParseLiteral parses the block server's literal dump of the configuration.
func ParseLiteral(text string) (Config, error) {
	corrected := strings.NewReplacer(
		"'", `"`,
		"None", "null",
		"True", "true",
		"False", "false",
	).Replace(text)
	return parseConfig([]byte(corrected), json5.Unmarshal)
}

type Options struct {
	Timeout time.Duration
	// LegacyUrl overrides http://{host}:8008/, used by tests.
	LegacyUrl string
	// DisableLegacy stops the reader from falling back to the http transport.
	DisableLegacy bool
}

// Reader reads the configuration of one instrument, over the variable channel first and the
// block server's http page when that fails.
type Reader struct {
	prefix  string
	host    string
	options Options
	vars    pv.Reader
	http    *resty.Client
	cache   *expirable.LRU[string, Config]
	tel     telemetry.API
}

func NewReader(host, prefix string, vars pv.Reader, options Options, tel telemetry.API) *Reader {
	assert.NotEmptyStr(host)
	assert.NotNil(vars)
	assert.Positive("config timeout", options.Timeout)
	assert.NotNil(tel)

	tel = telemetry.NewScopedAPI("instconfig", tel)
	if options.LegacyUrl == "" {
		options.LegacyUrl = fmt.Sprintf("http://%s:%d/", host, PortConfig)
	}

	httpClient := resty.New()
	httpClient.SetTimeout(options.Timeout)
	telemetry.InstrumentResty(httpClient, "instconfig", tel)

	return &Reader{
		prefix:  prefix,
		host:    host,
		options: options,
		vars:    vars,
		http:    httpClient,
		// keyed by the raw payload
		cache: expirable.NewLRU[string, Config](8, nil, time.Hour),
		tel:   tel,
	}
}

func (r *Reader) Read(ctx context.Context) (Config, error) {
	config, pvErr := r.readPV(ctx)
	if pvErr == nil {
		return config, nil
	}
	r.tel.ReportDebug(report_reader_pv, r.host, pvErr)
	if r.options.DisableLegacy {
		return Config{}, fmt.Errorf("%w: %w", ErrConfigUnreadable, pvErr)
	}

	config, httpErr := r.readLegacy(ctx)
	if httpErr == nil {
		return config, nil
	}
	r.tel.ReportDebug(report_reader_legacy, r.host, httpErr)
	return Config{}, fmt.Errorf("%w: %w", ErrConfigUnreadable, errors.Join(pvErr, httpErr))
}

func (r *Reader) cached(key string, parse func(string) (Config, error)) (Config, error) {
	config, ok := r.cache.Get(key)
	if ok {
		return config, nil
	}
	config, err := parse(key)
	if err != nil {
		return Config{}, err
	}
	r.cache.Add(key, config)
	return config, nil
}

func (r *Reader) readPV(ctx context.Context) (Config, error) {
	value, err := r.vars.Read(ctx, r.prefix+ConfigVariable)
	if err != nil {
		return Config{}, err
	}
	return r.cached("pv:"+value, func(key string) (Config, error) {
		return ParseCompressed(strings.TrimPrefix(key, "pv:"))
	})
}

func (r *Reader) readLegacy(ctx context.Context) (Config, error) {
	res, err := r.http.R().
		SetContext(ctx).
		Get(r.options.LegacyUrl)
	if err != nil {
		return Config{}, err
	}
	if res.IsError() {
		return Config{}, fmt.Errorf("unexpected status %s", res.Status())
	}
	return r.cached("http:"+res.String(), func(key string) (Config, error) {
		return ParseLiteral(strings.TrimPrefix(key, "http:"))
	})
}
