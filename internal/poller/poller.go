// Package poller keeps the snapshot of one instrument fresh in the store.
package poller

import (
	"context"
	"dataweb-backend/internal/components/assert"
	"dataweb-backend/internal/components/telemetry"
	"dataweb-backend/internal/instconfig"
	"dataweb-backend/internal/snapshot"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const (
	report_poller_started     = "poller.started"
	report_poller_cycle       = "poller.cycle"
	report_poller_config      = "poller.config"
	report_poller_reconnected = "poller.reconnected"
	report_poller_failures    = "poller.consecutive-failures"
)

type Builder interface {
	Build(ctx context.Context) (*snapshot.InstrumentSnapshot, error)
}

type Publisher interface {
	Put(name string, snap *snapshot.InstrumentSnapshot)
	MarkUnavailable(name string)
}

// Observer is told about the outcome of every cycle, snap is nil when err is not.
type Observer interface {
	Observe(ctx context.Context, name, host string, snap *snapshot.InstrumentSnapshot, err error)
}

type Options struct {
	SuccessWait time.Duration
	FailureWait time.Duration
	// Tick bounds how long a stop request may go unnoticed while waiting.
	Tick time.Duration
	// RetriesBetweenLogs is the number of failures reported quietly between two detailed
	// failure reports.
	RetriesBetweenLogs int
	Observers          []Observer
}

func DefaultOptions() Options {
	return Options{
		SuccessWait:        time.Second * 5,
		FailureWait:        time.Minute,
		Tick:               time.Millisecond * 250,
		RetriesBetweenLogs: 60,
	}
}

type Poller struct {
	name    string
	host    string
	builder Builder
	store   Publisher
	options Options
	tel     telemetry.API

	mutex   sync.Mutex
	cancel  context.CancelFunc
	stopped bool
	done    chan struct{}
	alive   atomic.Bool

	// only touched by the polling goroutine
	failures  int
	published bool
}

func New(name, host string, builder Builder, store Publisher, options Options, tel telemetry.API) *Poller {
	assert.NotEmptyStr(name)
	assert.NotNil(builder)
	assert.NotNil(store)
	assert.Positive("success wait", options.SuccessWait)
	assert.Positive("failure wait", options.FailureWait)
	assert.Positive("tick", options.Tick)
	assert.NotNil(tel)
	if options.RetriesBetweenLogs <= 0 {
		options.RetriesBetweenLogs = 1
	}

	return &Poller{
		name:    name,
		host:    host,
		builder: builder,
		store:   store,
		options: options,
		tel:     telemetry.NewScopedAPI(fmt.Sprintf("poller(%s)", name), tel),
		done:    make(chan struct{}),
	}
}

func (p *Poller) Name() string {
	return p.name
}

func (p *Poller) Host() string {
	return p.host
}

// Start launches the polling goroutine, calling it more than once does nothing.
func (p *Poller) Start(ctx context.Context) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.alive.Store(true)
	go p.run(ctx)
}

// Stop asks the poller to stop, it is safe to call any number of times. Wait on Done to know
// when it has. Nothing is published to the store once Stop has returned.
func (p *Poller) Stop() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.stopped = true
	if p.cancel == nil {
		p.cancel = func() {}
		close(p.done)
		return
	}
	p.cancel()
}

func (p *Poller) Alive() bool {
	return p.alive.Load()
}

// Done is closed once the polling goroutine has exited.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)
	defer p.alive.Store(false)

	p.tel.ReportInfo(report_poller_started, p.host)
	for {
		wait := p.options.SuccessWait
		if !p.cycle(ctx) {
			wait = p.options.FailureWait
		}
		if !p.wait(ctx, wait) {
			return
		}
	}
}

// wait sleeps for d in steps of one tick, it returns false if ctx was cancelled meanwhile.
func (p *Poller) wait(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	ticker := time.NewTicker(p.options.Tick)
	defer ticker.Stop()

	start := time.Now()
	for time.Since(start) < d {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
	return ctx.Err() == nil
}

func (p *Poller) build(ctx context.Context) (snap *snapshot.InstrumentSnapshot, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			snap = nil
			err = fmt.Errorf("panic while building snapshot: %v", recovered)
		}
	}()
	return p.builder.Build(ctx)
}

// publish runs write unless the poller was stopped, a replacement poller may own the name by then.
func (p *Poller) publish(write func()) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.stopped {
		return false
	}
	write()
	return true
}

// cycle builds and publishes one snapshot, it reports whether that succeeded.
func (p *Poller) cycle(ctx context.Context) bool {
	snap, err := p.build(ctx)
	if ctx.Err() != nil {
		// stopping, the instrument is not at fault
		return false
	}

	for _, o := range p.options.Observers {
		o.Observe(ctx, p.name, p.host, snap, err)
	}

	if err == nil {
		if !p.publish(func() { p.store.Put(p.name, snap) }) {
			return false
		}
		p.published = true
		if p.failures > 0 {
			p.tel.ReportInfo(report_poller_reconnected, p.host, p.failures)
		}
		p.failures = 0
		p.tel.ReportCount(report_poller_failures, 0)
		return true
	}

	configErr := errors.Is(err, instconfig.ErrConfigUnreadable)
	if !configErr || !p.published {
		if !p.publish(func() { p.store.MarkUnavailable(p.name) }) {
			return false
		}
	}

	id := report_poller_cycle
	if configErr {
		id = report_poller_config
	}
	if p.failures%p.options.RetriesBetweenLogs == 0 {
		p.tel.ReportWarning(id, p.host, err)
	} else {
		p.tel.ReportDebug(id, p.host, err)
	}
	p.failures++
	p.tel.ReportCount(report_poller_failures, int64(p.failures))
	return false
}
