// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package kpc binds the private macOS performance counter frameworks:
// kperf.framework, which provides the kpc_* calls that program and read the
// hardware counters, and kperfdata.framework, which provides the kpep_*
// database of events for the running CPU.
package kpc

import (
	"errors"
	"fmt"
)

// MaxCounters is KPC_MAX_COUNTERS from <kern/kpc.h> (osfmk/kern/kpc.h in
// xnu). The framework is reached without cgo, so there is no header to take
// it from; TestHeaderConstants pins the value. Every counter, register and map
// buffer passed across the framework boundary has this many entries.
const MaxCounters = 32

// A Class is a bitmask of kpc counting classes.
type Class uint32

const (
	ClassFixed        Class = 1 << iota // KPC_CLASS_FIXED_MASK
	ClassConfigurable                   // KPC_CLASS_CONFIGURABLE_MASK
	ClassPower                          // KPC_CLASS_POWER_MASK
	ClassRawPMU                         // KPC_CLASS_RAWPMU_MASK
)

// ConfigurableMask selects the classes whose counters must be programmed with
// kpc_set_config before counting.
const ConfigurableMask = ClassConfigurable

// Opaque framework handles.
type (
	DB       uintptr // kpep_db *
	Config   uintptr // kpep_config *
	EventRef uintptr // kpep_event *
)

// Status is a non-zero return code from a framework call.
type Status struct {
	Call string
	Code int32
}

func (s *Status) Error() string {
	return fmt.Sprintf("%s returned %d", s.Call, s.Code)
}

func status(call string, code int32) error {
	if code == 0 {
		return nil
	}
	return &Status{call, code}
}

// ErrUnsupported is returned by [Load] on platforms without kperf.
var ErrUnsupported = errors.New("kperf framework is only available on darwin")

// ErrNoEvent is returned by [Backend.DBEvent] when the database has no event
// with the requested name.
var ErrNoEvent = errors.New("no such event in kpep database")

// A Backend performs the framework calls. There is one method per call; each
// returns a *[Status] error for a non-zero return code.
type Backend interface {
	// kpc_force_all_ctrs_get
	ForceAllCounters() (bool, error)
	// kpc_force_all_ctrs_set
	SetForceAllCounters(on bool) error
	// kpc_set_counting
	SetCounting(classes Class) error
	// kpc_set_thread_counting
	SetThreadCounting(classes Class) error
	// kpc_set_config
	SetConfig(classes Class, regs *[MaxCounters]uint64) error
	// kpc_get_thread_counters for the calling thread.
	ThreadCounters(buf *[MaxCounters]uint64) error

	// kpep_db_create. An empty name selects the database of the running CPU.
	NewDB(name string) (DB, error)
	// kpep_db_free
	FreeDB(db DB)
	// kpep_db_event
	DBEvent(db DB, name string) (EventRef, error)

	// kpep_config_create
	NewConfig(db DB) (Config, error)
	// kpep_config_free
	FreeConfig(cfg Config)
	// kpep_config_force_counters. Its result is not meaningful.
	ForceCounters(cfg Config)
	// kpep_config_add_event. If userOnly, the event counts only user mode.
	AddEvent(cfg Config, ev EventRef, userOnly bool) error
	// kpep_config_kpc_classes
	Classes(cfg Config) (Class, error)
	// kpep_config_kpc_count
	Count(cfg Config) (int, error)
	// kpep_config_kpc_map. m[i] is the counter index of the i'th added event.
	Map(cfg Config, m *[MaxCounters]int) error
	// kpep_config_kpc
	Registers(cfg Config, regs *[MaxCounters]uint64) error
}

// override replaces the framework backend. It is set by tests.
var override Backend

// Load returns the framework backend, loading the frameworks on first use.
func Load() (Backend, error) {
	if override != nil {
		return override, nil
	}
	return load()
}

// Override makes [Load] return b until the returned restore function is
// called. It is intended for tests.
func Override(b Backend) (restore func()) {
	prev := override
	override = b
	return func() { override = prev }
}
