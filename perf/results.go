// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perf

import (
	"slices"

	"github.com/aclements/go-kperf/events"
)

// Results maps each registered event to the number of times it occurred
// between [Session.Start] and [Session.Stop].
type Results map[events.Event]uint64

// Get returns the count for ev and whether ev was measured.
func (r Results) Get(ev events.Event) (uint64, bool) {
	v, ok := r[ev]
	return v, ok
}

// Sorted returns the measured events in catalog order.
func (r Results) Sorted() []events.Event {
	evs := make([]events.Event, 0, len(r))
	for ev := range r {
		evs = append(evs, ev)
	}
	slices.Sort(evs)
	return evs
}

// IPC returns instructions retired per cycle. It returns false if either
// event was not measured or no cycles elapsed.
func (r Results) IPC() (float64, bool) {
	cycles, ok1 := r[events.Cycles]
	ins, ok2 := r[events.Instructions]
	if !ok1 || !ok2 || cycles == 0 {
		return 0, false
	}
	return float64(ins) / float64(cycles), true
}
