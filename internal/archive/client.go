// Package archive reads channel groups from an instrument's channel-archive web endpoints.
package archive

import (
	"context"
	"dataweb-backend/internal/components/assert"
	"dataweb-backend/internal/components/telemetry"
	"dataweb-backend/internal/normalize"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	report_client_group = "client.group"
)

const (
	PortBlocks = 4813
	PortInst   = 4812
)

// Group names a channel group served by the archive.
type Group string

const (
	GroupBlocks  Group = "BLOCKS"
	GroupDataweb Group = "DATAWEB"
	GroupInst    Group = "INST"
)

func (g Group) port() int {
	if g == GroupInst {
		return PortInst
	}
	return PortBlocks
}

type Options struct {
	Timeout time.Duration
	// RequestsPerSecond paces requests made to the host, zero disables pacing.
	RequestsPerSecond float64
	// Legacy reads the html group page instead of the json one.
	Legacy bool
	// Ports overrides the archive port of a group, used by tests.
	Ports map[Group]int
	// Scheme defaults to http.
	Scheme string
}

// Client reads the channel groups of a single instrument host.
type Client struct {
	host    string
	options Options
	http    *resty.Client
	tel     telemetry.API
}

func NewClient(host string, options Options, tel telemetry.API) *Client {
	assert.NotEmptyStr(host)
	assert.Positive("archive timeout", options.Timeout)
	assert.NotNil(tel)

	tel = telemetry.NewScopedAPI("archive", tel)
	if options.Scheme == "" {
		options.Scheme = "http"
	}

	httpClient := resty.New()
	httpClient.SetTimeout(options.Timeout)
	httpClient.SetHeader("user-agent", "dataweb-backend")
	if options.RequestsPerSecond > 0 {
		rateLimiter := rate.NewLimiter(rate.Limit(options.RequestsPerSecond), 3)
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}
	telemetry.InstrumentResty(httpClient, "archive", tel)

	return &Client{
		host:    host,
		options: options,
		http:    httpClient,
		tel:     tel,
	}
}

func (c *Client) groupUrl(group Group) string {
	port, ok := c.options.Ports[group]
	if !ok {
		port = group.port()
	}
	return fmt.Sprintf("%s://%s:%d/group", c.options.Scheme, c.host, port)
}

// Group fetches one channel group and splits it into undecoded channels.
func (c *Client) Group(ctx context.Context, group Group) (normalize.Batch, error) {
	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("name", string(group))
	if !c.options.Legacy {
		req.SetQueryParam("format", "json")
	}

	res, err := req.Get(c.groupUrl(group))
	if err != nil {
		return nil, fmt.Errorf("get %s group: %w", group, err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("get %s group: unexpected status %s", group, res.Status())
	}

	var batch normalize.Batch
	if c.options.Legacy {
		batch, err = parseLegacyPage(res.Body())
	} else {
		batch, err = normalize.DecodeJSONBatch(res.Body())
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s group: %w", group, err)
	}
	c.tel.ReportDebug(report_client_group, c.host, string(group), len(batch))
	return batch, nil
}
