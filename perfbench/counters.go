// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perfbench

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/aclements/go-kperf/events"
	"github.com/aclements/go-kperf/perf"
)

var defaultEvents = events.All()

// Counters is a set of performance counters that will be reported in benchmark
// results.
//
// A [perf.Session] supports a single Start/Stop interval, so each interval
// between Start and Stop uses its own session and Counters sums them.
type Counters struct {
	b  testingB
	bN int

	session *perf.Session // Non-nil while counting
	totals  perf.Results
	failed  bool
}

var printUnits = sync.OnceFunc(func() {
	// Print unit metadata.
	for _, event := range defaultEvents {
		// Currently all events are better=lower.
		fmt.Printf("Unit %s better=lower\n", event.String())
	}
	fmt.Printf("\n")
})

// testingB is the *testing.B interface needed by Counters. Used for testing.
type testingB interface {
	ReportMetric(n float64, unit string)
	Logf(format string, args ...any)
	Cleanup(func())
}

var _ testingB = (*testing.B)(nil)

var openErrors sync.Map

func open(b testingB, bN int) *Counters {
	cs := &Counters{
		b:      b,
		bN:     bN,
		totals: make(perf.Results),
	}
	b.Cleanup(cs.close)

	// Start all of the counters.
	cs.Start()

	return cs
}

// logOnce reports err once per distinct message, to avoid flooding the
// benchmark log.
func (cs *Counters) logOnce(err error) {
	msg := fmt.Sprintf("error opening hardware counters: %v", err)
	if _, prev := openErrors.Swap(msg, true); !prev {
		cs.b.Logf("%s", msg)
	}
}

func openSession() (*perf.Session, error) {
	s, err := perf.NewSession()
	if err != nil {
		return nil, err
	}
	if err := s.AddEvents(false, defaultEvents...); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.Start(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (cs *Counters) start() {
	if cs == nil || cs.b == nil || cs.failed || cs.session != nil {
		return
	}
	s, err := openSession()
	if err != nil {
		cs.logOnce(err)
		cs.failed = true
		return
	}
	cs.session = s
}

func (cs *Counters) stop() {
	if cs == nil || cs.session == nil {
		return
	}
	res, err := cs.session.Stop()
	if errors.Is(err, perf.ErrFetchCounters) {
		// The session is still started. Try once more before giving up.
		res, err = cs.session.Stop()
	}
	cs.session.Close()
	cs.session = nil
	if err != nil {
		if errors.Is(err, perf.ErrFetchCounters) {
			cs.b.Logf("%v; hardware counters are still running", err)
			cs.failed = true
			return
		}
		if res == nil {
			cs.logOnce(err)
			cs.failed = true
			return
		}
		// The counts are still good, but counters may be left running.
		cs.b.Logf("%v", err)
	}
	for ev, v := range res {
		cs.totals[ev] += v
	}
}

func (cs *Counters) reset() {
	if cs == nil {
		return
	}
	running := cs.session != nil
	cs.stop()
	clear(cs.totals)
	if running {
		cs.start()
	}
}

func (cs *Counters) total(name string) (float64, bool) {
	if cs == nil || cs.failed {
		return 0, false
	}
	ev, err := events.Parse(name)
	if err != nil {
		return 0, false
	}
	v, ok := cs.totals[ev]
	return float64(v), ok
}

func (cs *Counters) close() {
	if cs.b == nil {
		return
	}

	cs.Stop()
	if !cs.failed {
		for _, ev := range defaultEvents {
			if v, ok := cs.totals[ev]; ok {
				cs.b.ReportMetric(float64(v)/float64(cs.bN), ev.String()+"/op")
			}
		}
	}
	cs.b = nil
}
