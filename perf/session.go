// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package perf counts hardware performance events on the calling thread using
// the macOS kperf framework.
//
// A [Session] is used in a fixed sequence:
//
//	s, err := perf.NewSession()
//	...
//	defer s.Close()
//	err = s.AddEvents(false, events.Cycles, events.Instructions)
//	err = s.Start()
//	workload()
//	results, err := s.Stop()
//
// Counting requires root.
package perf

import (
	"fmt"
	"os"
	"runtime"

	"k8s.io/klog/v2"

	"github.com/aclements/go-kperf/events"
	"github.com/aclements/go-kperf/internal/kpc"
)

// State is the lifecycle state of a [Session]. States only advance, and
// [Session.Close] moves a session from any state to StateClosed.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateEventsRegistered
	StateStarted
	StateStopped
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateEventsRegistered:
		return "events registered"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// A Session counts a set of [events.Event]s on the calling OS thread.
//
// A Session owns a kpep database and configuration and must be released with
// [Session.Close]. It is not safe for concurrent use, and because the counters
// are per-thread, all methods must be called from the goroutine that called
// [NewSession]. NewSession locks that goroutine to its OS thread until Close.
//
// A Session supports one Start/Stop cycle.
type Session struct {
	lib   kpc.Backend
	state State

	db     kpc.DB
	config kpc.Config

	// events are the registered events, in registration order. events[i]
	// is counted by counter index counterMap[i].
	events     []events.Event
	classes    kpc.Class
	counterMap [kpc.MaxCounters]int
	regs       [kpc.MaxCounters]uint64

	// Raw counter readings, indexed by counter index.
	startCounters [kpc.MaxCounters]uint64
	stopCounters  [kpc.MaxCounters]uint64
}

// NewSession checks that the process may use the performance counters and
// returns a new Session with no events. Callers are expected to call
// [Session.Close] when done with it.
func NewSession() (*Session, error) {
	lib, err := kpc.Load()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInit, err)
	}
	return newSession(lib)
}

func newSession(lib kpc.Backend) (*Session, error) {
	if err := checkPermission(lib); err != nil {
		return nil, err
	}

	runtime.LockOSThread()
	success := false
	defer func() {
		if !success {
			runtime.UnlockOSThread()
		}
	}()

	s := &Session{lib: lib}
	db, err := lib.NewDB("")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInit, err)
	}
	config, err := lib.NewConfig(db)
	if err != nil {
		lib.FreeDB(db)
		return nil, fmt.Errorf("%w: %w", ErrInit, err)
	}
	lib.ForceCounters(config)
	s.db, s.config = db, config
	s.state = StateInitialized

	success = true
	klog.V(2).Infof("kperf: session initialized")
	return s, nil
}

// geteuid is replaced in tests.
var geteuid = os.Geteuid

// checkPermission checks whether the process can force all counters. This
// touches no other framework state.
func checkPermission(lib kpc.Backend) error {
	if _, err := lib.ForceAllCounters(); err != nil {
		if geteuid() != 0 {
			return fmt.Errorf("%w (consider running as root): %w", ErrPermissionDenied, err)
		}
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}
	return nil
}

// State returns the lifecycle state of s.
func (s *Session) State() State {
	return s.state
}

// Events returns the registered events in registration order.
func (s *Session) Events() []events.Event {
	return append([]events.Event(nil), s.events...)
}

// AddEvent registers ev to be counted. If userOnly is set, ev counts only
// user-mode execution; otherwise it counts user and kernel mode.
//
// Events must be added before [Session.Start]. If AddEvent fails, the set of
// registered events is unchanged.
func (s *Session) AddEvent(userOnly bool, ev events.Event) error {
	if s.state != StateInitialized && s.state != StateEventsRegistered {
		return fmt.Errorf("%w: cannot add event %s to %s session", ErrState, ev, s.state)
	}
	name := ev.InternalName()
	if name == "" {
		return fmt.Errorf("%w: %s has no kpep name on %s", ErrInvalidEvent, ev, runtime.GOARCH)
	}
	ref, err := s.lib.DBEvent(s.db, name)
	if err != nil {
		return fmt.Errorf("%w: %s (%s): %w", ErrInvalidEvent, ev, name, err)
	}
	if err := s.lib.AddEvent(s.config, ref, userOnly); err != nil {
		return fmt.Errorf("%w: %s (%s): %w", ErrInvalidEvent, ev, name, err)
	}
	s.events = append(s.events, ev)
	s.state = StateEventsRegistered
	return nil
}

// AddEvents registers each of evs in order, as if by [Session.AddEvent]. It
// stops at the first failure; events before it remain registered.
func (s *Session) AddEvents(userOnly bool, evs ...events.Event) error {
	for _, ev := range evs {
		if err := s.AddEvent(userOnly, ev); err != nil {
			return err
		}
	}
	return nil
}

// Start programs the counters for the registered events and starts counting
// on the calling thread. If no events are registered, Start does nothing.
//
// If Start fails, the session is not started, though some global counter
// state may already have been changed.
func (s *Session) Start() error {
	switch s.state {
	case StateInitialized, StateEventsRegistered:
	case StateStopped:
		return fmt.Errorf("%w: restarting a stopped session is not supported", ErrState)
	default:
		return fmt.Errorf("%w: cannot start %s session", ErrState, s.state)
	}
	if len(s.events) == 0 {
		s.state = StateStarted
		return nil
	}

	initErr := func(err error) error {
		return fmt.Errorf("%w: %w", ErrInit, err)
	}
	classes, err := s.lib.Classes(s.config)
	if err != nil {
		return initErr(err)
	}
	regCount, err := s.lib.Count(s.config)
	if err != nil {
		return initErr(err)
	}
	if err := s.lib.Map(s.config, &s.counterMap); err != nil {
		return initErr(err)
	}
	for i := range s.events {
		if idx := s.counterMap[i]; idx < 0 || idx >= kpc.MaxCounters {
			return fmt.Errorf("%w: event %s mapped to counter %d", ErrInit, s.events[i], idx)
		}
	}
	if err := s.lib.Registers(s.config, &s.regs); err != nil {
		return initErr(err)
	}
	if err := s.lib.SetForceAllCounters(true); err != nil {
		return initErr(err)
	}
	if classes&kpc.ConfigurableMask != 0 && regCount != 0 {
		if err := s.lib.SetConfig(classes, &s.regs); err != nil {
			return initErr(err)
		}
	}
	if err := s.setCounting(classes); err != nil {
		return initErr(err)
	}
	if err := s.lib.ThreadCounters(&s.startCounters); err != nil {
		return fmt.Errorf("%w: %w", ErrFetchCounters, err)
	}

	s.classes = classes
	s.state = StateStarted
	klog.V(2).Infof("kperf: counting %d events, classes %#x, %d registers", len(s.events), classes, regCount)
	return nil
}

// setCounting enables the given classes globally and for the calling thread.
// A zero mask disables counting.
func (s *Session) setCounting(classes kpc.Class) error {
	if err := s.lib.SetCounting(classes); err != nil {
		return err
	}
	return s.lib.SetThreadCounting(classes)
}

// Stop reads the counters, stops counting, and returns the count of each
// registered event since [Session.Start]. If no events are registered, it
// returns empty Results.
//
// If the counters were read but counting could not be disabled, Stop returns
// both the Results and an error wrapping [ErrDeinit]. The counters are then
// left running. If reading the counters fails, the session remains started.
func (s *Session) Stop() (Results, error) {
	if s.state != StateStarted {
		return nil, fmt.Errorf("%w: cannot stop %s session", ErrState, s.state)
	}
	if len(s.events) == 0 {
		s.state = StateStopped
		return Results{}, nil
	}

	if err := s.lib.ThreadCounters(&s.stopCounters); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchCounters, err)
	}
	s.state = StateStopped
	if err := s.setCounting(0); err != nil {
		klog.Warningf("kperf: failed to disable counting, counters are still running: %v", err)
		return s.Results(), fmt.Errorf("%w: %w", ErrDeinit, err)
	}
	klog.V(2).Infof("kperf: counting stopped")
	return s.Results(), nil
}

// Results returns the count of each registered event between Start and Stop.
// It is computed from the stored counter readings, so it may be called any
// number of times after [Session.Stop]. It returns nil if s is not stopped.
//
// If the same event was registered more than once, its last registration
// wins.
func (s *Session) Results() Results {
	if s.state != StateStopped {
		return nil
	}
	r := make(Results, len(s.events))
	for i, ev := range s.events {
		idx := s.counterMap[i]
		// Counters may wrap. The difference is only meaningful if they
		// wrapped at most once.
		r[ev] = s.stopCounters[idx] - s.startCounters[idx]
	}
	return r
}

// Close releases the kpep configuration and database and unlocks the calling
// goroutine from its OS thread. Close does not stop counting; a started
// session should be stopped first. Calling Close more than once is a no-op.
func (s *Session) Close() {
	if s == nil || s.state == StateUninitialized || s.state == StateClosed {
		return
	}
	if s.state == StateStarted && len(s.events) > 0 {
		klog.Warningf("kperf: closing session while counting")
	}
	s.lib.FreeConfig(s.config)
	s.lib.FreeDB(s.db)
	s.config, s.db = 0, 0
	s.state = StateClosed
	runtime.UnlockOSThread()
}
