package store

import (
	"dataweb-backend/internal/reading"
	"dataweb-backend/internal/snapshot"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func withRunState(state string) *snapshot.InstrumentSnapshot {
	return &snapshot.InstrumentSnapshot{
		ConfigName: "CONFIG",
		InstrumentPVs: map[string]reading.Formatted{
			"RUNSTATE": {
				Reading: reading.Reading{Name: "RUNSTATE.VAL", State: reading.Connected, Value: state},
				Display: state,
			},
		},
	}
}

func TestPutAndMarkUnavailable(t *testing.T) {
	s := New()

	_, ok := s.Get("DEMO")
	require.False(t, ok)

	s.Put("DEMO", withRunState("SETUP"))
	entry, ok := s.Get("DEMO")
	require.True(t, ok)
	require.True(t, entry.Available())
	require.Equal(t, "CONFIG", entry.Snapshot.ConfigName)

	s.MarkUnavailable("DEMO")
	entry, ok = s.Get("DEMO")
	require.True(t, ok)
	require.False(t, entry.Available())

	s.Remove("DEMO")
	_, ok = s.Get("DEMO")
	require.False(t, ok)
}

func TestSummary(t *testing.T) {
	s := New()
	s.Put("zoom", withRunState("RUNNING"))
	s.Put("ALF", withRunState("SETUP"))
	s.MarkUnavailable("Larmor")
	s.Put("EMU", &snapshot.InstrumentSnapshot{ConfigName: "NO_STATUS"})

	expected := []SummaryItem{
		{Name: "ALF", IsUp: true, RunState: "SETUP"},
		{Name: "EMU", IsUp: true, RunState: "UNKNOWN"},
		{Name: "Larmor", IsUp: false, RunState: "UNKNOWN"},
		{Name: "zoom", IsUp: true, RunState: "RUNNING"},
	}
	if diff := cmp.Diff(expected, s.Summary()); diff != "" {
		t.Fatalf("(-want +got)\n%s", diff)
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for _, name := range []string{"A", "B", "C", "D"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if i%2 == 0 {
					s.Put(name, withRunState("RUNNING"))
				} else {
					s.MarkUnavailable(name)
				}
				s.Summary()
			}
		}(name)
	}
	wg.Wait()
	require.Equal(t, []string{"A", "B", "C", "D"}, s.Names())
}
