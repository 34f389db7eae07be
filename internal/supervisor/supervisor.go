// Package supervisor keeps exactly one running poller per live instrument.
package supervisor

import (
	"context"
	"dataweb-backend/internal/components/assert"
	"dataweb-backend/internal/components/telemetry"
	"dataweb-backend/internal/roster"
	"sync"
	"time"
)

const (
	report_supervisor_start   = "supervisor.start"
	report_supervisor_stop    = "supervisor.stop"
	report_supervisor_pollers = "supervisor.pollers"
)

type Roster interface {
	Retrieve(ctx context.Context) []roster.Entry
}

// Handle is a running poller as seen by the supervisor.
type Handle interface {
	Name() string
	Host() string
	Alive() bool
	Start(ctx context.Context)
	Stop()
	Done() <-chan struct{}
}

// Factory creates the (not yet started) poller of a roster entry.
type Factory func(entry roster.Entry) Handle

type Options struct {
	Interval time.Duration
	// Forget is called with the name of an instrument that left the roster once its poller has
	// exited, unless the name is supervised again by then. It may be nil.
	Forget func(name string)
}

type Supervisor struct {
	roster  Roster
	factory Factory
	options Options
	tel     telemetry.API

	mutex   sync.Mutex
	handles []Handle
	retired sync.WaitGroup
}

func New(r Roster, factory Factory, options Options, tel telemetry.API) *Supervisor {
	assert.NotNil(r)
	assert.NotNil(factory)
	assert.Positive("reconcile interval", options.Interval)
	assert.NotNil(tel)

	return &Supervisor{
		roster:  r,
		factory: factory,
		options: options,
		tel:     telemetry.NewScopedAPI("supervisor", tel),
	}
}

type key struct {
	name string
	host string
}

// Reconcile runs one pass: a poller is kept only if it is alive and its (name, host) is still
// in the roster, every roster entry left without a poller gets a new one.
func (s *Supervisor) Reconcile(ctx context.Context) {
	entries := s.roster.Retrieve(ctx)
	listed := make(map[key]roster.Entry, len(entries))
	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		listed[key{name: e.Name, host: e.Host}] = e
		names[e.Name] = true
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	kept := make([]Handle, 0, len(s.handles))
	running := make(map[key]bool, len(s.handles))
	for _, h := range s.handles {
		k := key{name: h.Name(), host: h.Host()}
		_, ok := listed[k]
		if ok && h.Alive() {
			kept = append(kept, h)
			running[k] = true
			continue
		}
		s.tel.ReportInfo(report_supervisor_stop, h.Name(), h.Host())
		h.Stop()
		s.retire(h, !names[h.Name()])
	}

	for _, e := range entries {
		k := key{name: e.Name, host: e.Host}
		if running[k] {
			continue
		}
		h := s.factory(e)
		h.Start(ctx)
		s.tel.ReportInfo(report_supervisor_start, e.Name, e.Host)
		kept = append(kept, h)
		running[k] = true
	}

	s.handles = kept
	s.tel.ReportCount(report_supervisor_pollers, int64(len(kept)))
}

func (s *Supervisor) retire(h Handle, forget bool) {
	if !forget || s.options.Forget == nil {
		return
	}
	s.retired.Add(1)
	go func() {
		defer s.retired.Done()
		<-h.Done()

		s.mutex.Lock()
		defer s.mutex.Unlock()
		// the instrument may have come back while the old poller was finishing its cycle
		for _, current := range s.handles {
			if current.Name() == h.Name() {
				return
			}
		}
		s.options.Forget(h.Name())
	}()
}

// Run reconciles right away and then every interval until ctx is done, it then stops every
// poller and returns once they have all exited.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.options.Interval)
	defer ticker.Stop()

	s.Reconcile(ctx)
	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return
		case <-ticker.C:
			s.Reconcile(ctx)
		}
	}
}

// Stop stops every poller and waits for all of them to exit.
func (s *Supervisor) Stop() {
	s.mutex.Lock()
	handles := s.handles
	s.handles = nil
	s.mutex.Unlock()

	for _, h := range handles {
		h.Stop()
	}
	for _, h := range handles {
		<-h.Done()
	}
	s.retired.Wait()
}

// Pollers returns the pollers currently supervised.
func (s *Supervisor) Pollers() []Handle {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]Handle(nil), s.handles...)
}
