// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package events defines the hardware events that a
// [github.com/aclements/go-kperf/perf.Session] can count.
//
// Each Event has a short textual name, used by flags and configuration files,
// and an internal name understood by the kperf event database of the running
// CPU. The internal names are selected at build time by GOARCH.
package events

import (
	"fmt"
	"strings"
)

// An Event is a logical hardware event.
type Event int

const (
	Cycles       Event = iota // Unhalted core cycles.
	Instructions              // Instructions retired.
	Branches                  // Branch instructions retired.
	BranchMisses              // Mispredicted branches.

	numEvents
)

// names are the canonical short names, indexed by Event.
var names = [numEvents]string{
	Cycles:       "cycles",
	Instructions: "instructions",
	Branches:     "branches",
	BranchMisses: "branch-misses",
}

// byName maps every accepted spelling to its Event. Besides the canonical
// names, this accepts the perf(1) spellings of the same hardware events.
var byName = func() map[string]Event {
	m := make(map[string]Event)
	alias := func(ev Event, names ...string) {
		for _, name := range names {
			m[name] = ev
		}
	}
	for ev, name := range names {
		alias(Event(ev), name)
	}
	alias(Cycles, "cpu-cycles")
	alias(Branches, "branch-instructions")
	return m
}()

// All returns every supported event in declaration order.
func All() []Event {
	evs := make([]Event, numEvents)
	for i := range evs {
		evs[i] = Event(i)
	}
	return evs
}

func (e Event) valid() bool {
	return e >= 0 && e < numEvents
}

// String returns the canonical short name of e, such as "branch-misses".
func (e Event) String() string {
	if !e.valid() {
		return fmt.Sprintf("Event(%d)", int(e))
	}
	return names[e]
}

// InternalName returns the name of e in the kperf event database for this
// architecture, for example "FIXED_CYCLES" on arm64. It returns "" if this
// architecture has no mapping for e. It panics if e is not a valid Event.
func (e Event) InternalName() string {
	if !e.valid() {
		panic(fmt.Sprintf("events: no internal name for %s", e))
	}
	return internalNames[e]
}

// Parse returns the Event named by name. It accepts the canonical names
// returned by [Event.String] and a few perf-style aliases.
func Parse(name string) (Event, error) {
	if ev, ok := byName[name]; ok {
		return ev, nil
	}
	return 0, fmt.Errorf("unknown event %q", name)
}

// MustParse is like [Parse] but panics if name is not a known event. It is
// intended for names that are compile-time constants.
func MustParse(name string) Event {
	ev, err := Parse(name)
	if err != nil {
		panic("events: " + err.Error())
	}
	return ev
}

// ParseList parses a comma-separated list of event names. Order is preserved
// and duplicates are kept.
func ParseList(list string) ([]Event, error) {
	var evs []Event
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		ev, err := Parse(name)
		if err != nil {
			return nil, err
		}
		evs = append(evs, ev)
	}
	return evs, nil
}

// MarshalText implements [encoding.TextMarshaler].
func (e Event) MarshalText() ([]byte, error) {
	if !e.valid() {
		return nil, fmt.Errorf("invalid event %d", int(e))
	}
	return []byte(names[e]), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (e *Event) UnmarshalText(text []byte) error {
	ev, err := Parse(string(text))
	if err != nil {
		return err
	}
	*e = ev
	return nil
}

// List is a list of events that can be used as a command-line flag value.
// Each call to Set appends the events in a comma-separated list.
type List []Event

func (l *List) String() string {
	if l == nil {
		return ""
	}
	s := make([]string, len(*l))
	for i, ev := range *l {
		s[i] = ev.String()
	}
	return strings.Join(s, ",")
}

func (l *List) Set(value string) error {
	evs, err := ParseList(value)
	if err != nil {
		return err
	}
	*l = append(*l, evs...)
	return nil
}

func (l *List) Type() string {
	return "events"
}
