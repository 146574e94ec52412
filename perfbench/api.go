// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// perfbench is a utility for counting hardware performance events in a Go
// benchmark.
package perfbench

import "testing"

// Open starts a set of hardware performance counters for benchmark b. These
// counters will be reported as metrics when the benchmark ends. The counters
// only count events on the calling goroutine, which stays locked to its OS
// thread while they run.
//
// The counters are running on return. In general, any calls to b.StopTimer,
// b.StartTimer, or b.ResetTimer should be paired with the equivalent calls on
// Counters.
//
// The final value of the counters is captured in a b.Cleanup function. If the
// benchmark does substantial other work in cleanup functions, it may want to
// explicitly call [Counters.Stop] before returning.
//
// If the counters cannot be opened, for example because the process is not
// running as root, the error is logged once and no metrics are reported.
func Open(b *testing.B) *Counters {
	printUnits()
	return open(b, b.N)
}

// Start resumes counting after [Counters.Stop].
func (cs *Counters) Start() {
	cs.start()
}

// Stop pauses counting and adds the counts since the last Start to the totals.
func (cs *Counters) Stop() {
	cs.stop()
}

// Reset discards the totals. If the counters are running, they keep running
// from zero.
func (cs *Counters) Reset() {
	cs.reset()
}

// Total returns the total count of the named counter, which is a reported
// metric name without the "/op". Only completed Start/Stop intervals are
// included. If the named counter is unknown or could not be opened, this
// returns 0, false.
func (cs *Counters) Total(name string) (float64, bool) {
	return cs.total(name)
}
