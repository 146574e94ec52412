// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package kpctest provides an in-memory [kpc.Backend] for tests.
package kpctest

import (
	"fmt"

	"github.com/aclements/go-kperf/internal/kpc"
)

// Fake is a [kpc.Backend] that models the counters of a single thread.
//
// Every framework call is recorded in Calls by its C name. A call whose name
// appears in Fail returns that status code. Handles are tracked so tests can
// check that every DB and Config is freed exactly once.
type Fake struct {
	// Fail maps a C function name, such as "kpep_db_create", to the
	// non-zero status code it should return.
	Fail map[string]int32

	// FailTimes maps a C function name to the number of times it should
	// fail with status 1 before it succeeds again. Fail takes precedence.
	FailTimes map[string]int

	// Unknown lists internal event names missing from the database.
	Unknown map[string]bool

	// ClassMask is reported by kpep_config_kpc_classes. If zero, the
	// fixed and configurable classes are reported.
	ClassMask kpc.Class

	// Slot returns the counter index assigned to the i'th added event. If
	// nil, events are assigned from the highest counter downward, so that
	// registration order and counter order never coincide by accident.
	Slot func(i int) int

	// Step is added to each counter every time the counters are read while
	// thread counting is enabled.
	Step [kpc.MaxCounters]uint64

	// Counters holds the current counter values.
	Counters [kpc.MaxCounters]uint64

	// Calls lists every framework call in order.
	Calls []string

	// UserOnly lists the mode flag of every successful
	// kpep_config_add_event, in order, across all configs.
	UserOnly []bool

	// Force is the state of kpc_force_all_ctrs.
	Force bool

	// Counting and ThreadCounting are the enabled class masks.
	Counting, ThreadCounting kpc.Class

	// Config is the register set last passed to kpc_set_config.
	Config [kpc.MaxCounters]uint64

	nextHandle uintptr
	live       map[uintptr]string
	freed      map[uintptr]int
	added      map[kpc.Config][]string
	modes      map[kpc.Config][]bool
	names      map[kpc.EventRef]string
}

var _ kpc.Backend = (*Fake)(nil)

func (f *Fake) call(name string) error {
	f.Calls = append(f.Calls, name)
	if code := f.Fail[name]; code != 0 {
		return &kpc.Status{Call: name, Code: code}
	}
	if f.FailTimes[name] > 0 {
		f.FailTimes[name]--
		return &kpc.Status{Call: name, Code: 1}
	}
	return nil
}

func (f *Fake) alloc(kind string) uintptr {
	if f.live == nil {
		f.live = make(map[uintptr]string)
		f.freed = make(map[uintptr]int)
		f.nextHandle = 0x1000
	}
	f.nextHandle += 0x10
	f.live[f.nextHandle] = kind
	return f.nextHandle
}

func (f *Fake) free(h uintptr) {
	if f.freed == nil {
		f.freed = make(map[uintptr]int)
	}
	f.freed[h]++
	delete(f.live, h)
}

// Live returns the number of allocated handles that have not been freed.
func (f *Fake) Live() int {
	return len(f.live)
}

// DoubleFrees returns a description of every handle freed more than once or
// freed without being allocated.
func (f *Fake) DoubleFrees() []string {
	var bad []string
	for h, n := range f.freed {
		if n != 1 {
			bad = append(bad, fmt.Sprintf("handle %#x freed %d times", h, n))
		}
	}
	return bad
}

// Called returns how many times the named framework call was made.
func (f *Fake) Called(name string) int {
	n := 0
	for _, c := range f.Calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *Fake) ForceAllCounters() (bool, error) {
	if err := f.call("kpc_force_all_ctrs_get"); err != nil {
		return false, err
	}
	return f.Force, nil
}

func (f *Fake) SetForceAllCounters(on bool) error {
	if err := f.call("kpc_force_all_ctrs_set"); err != nil {
		return err
	}
	f.Force = on
	return nil
}

func (f *Fake) SetCounting(classes kpc.Class) error {
	if err := f.call("kpc_set_counting"); err != nil {
		return err
	}
	f.Counting = classes
	return nil
}

func (f *Fake) SetThreadCounting(classes kpc.Class) error {
	if err := f.call("kpc_set_thread_counting"); err != nil {
		return err
	}
	f.ThreadCounting = classes
	return nil
}

func (f *Fake) SetConfig(classes kpc.Class, regs *[kpc.MaxCounters]uint64) error {
	if err := f.call("kpc_set_config"); err != nil {
		return err
	}
	f.Config = *regs
	return nil
}

func (f *Fake) ThreadCounters(buf *[kpc.MaxCounters]uint64) error {
	if err := f.call("kpc_get_thread_counters"); err != nil {
		return err
	}
	if f.Counting != 0 && f.ThreadCounting != 0 {
		for i := range f.Counters {
			f.Counters[i] += f.Step[i]
		}
	}
	*buf = f.Counters
	return nil
}

func (f *Fake) NewDB(name string) (kpc.DB, error) {
	if err := f.call("kpep_db_create"); err != nil {
		return 0, err
	}
	return kpc.DB(f.alloc("db")), nil
}

func (f *Fake) FreeDB(db kpc.DB) {
	f.call("kpep_db_free")
	f.free(uintptr(db))
}

func (f *Fake) DBEvent(db kpc.DB, name string) (kpc.EventRef, error) {
	if err := f.call("kpep_db_event"); err != nil {
		return 0, err
	}
	if f.live[uintptr(db)] != "db" {
		return 0, fmt.Errorf("kpep_db_event on bad handle %#x", db)
	}
	if name == "" || f.Unknown[name] {
		return 0, kpc.ErrNoEvent
	}
	if f.names == nil {
		f.names = make(map[kpc.EventRef]string)
	}
	ref := kpc.EventRef(f.alloc("event"))
	// Event references are owned by the database.
	delete(f.live, uintptr(ref))
	f.names[ref] = name
	return ref, nil
}

func (f *Fake) NewConfig(db kpc.DB) (kpc.Config, error) {
	if err := f.call("kpep_config_create"); err != nil {
		return 0, err
	}
	if f.live[uintptr(db)] != "db" {
		return 0, fmt.Errorf("kpep_config_create on bad handle %#x", db)
	}
	return kpc.Config(f.alloc("config")), nil
}

func (f *Fake) FreeConfig(cfg kpc.Config) {
	f.call("kpep_config_free")
	f.free(uintptr(cfg))
}

func (f *Fake) ForceCounters(cfg kpc.Config) {
	f.call("kpep_config_force_counters")
}

func (f *Fake) AddEvent(cfg kpc.Config, ev kpc.EventRef, userOnly bool) error {
	if err := f.call("kpep_config_add_event"); err != nil {
		return err
	}
	if f.added == nil {
		f.added = make(map[kpc.Config][]string)
		f.modes = make(map[kpc.Config][]bool)
	}
	f.added[cfg] = append(f.added[cfg], f.names[ev])
	f.modes[cfg] = append(f.modes[cfg], userOnly)
	f.UserOnly = append(f.UserOnly, userOnly)
	return nil
}

// Added returns the internal names added to cfg, in order.
func (f *Fake) Added(cfg kpc.Config) []string {
	return f.added[cfg]
}

// AddedUserOnly returns the mode flag passed with each event added to cfg,
// in the same order as [Fake.Added].
func (f *Fake) AddedUserOnly(cfg kpc.Config) []bool {
	return f.modes[cfg]
}

func (f *Fake) Classes(cfg kpc.Config) (kpc.Class, error) {
	if err := f.call("kpep_config_kpc_classes"); err != nil {
		return 0, err
	}
	if f.ClassMask == 0 {
		return kpc.ClassFixed | kpc.ClassConfigurable, nil
	}
	return f.ClassMask, nil
}

func (f *Fake) Count(cfg kpc.Config) (int, error) {
	if err := f.call("kpep_config_kpc_count"); err != nil {
		return 0, err
	}
	return len(f.added[cfg]), nil
}

// SlotOf returns the counter index assigned to the i'th added event.
func (f *Fake) SlotOf(i int) int {
	if f.Slot != nil {
		return f.Slot(i)
	}
	return kpc.MaxCounters - 1 - i
}

func (f *Fake) Map(cfg kpc.Config, m *[kpc.MaxCounters]int) error {
	if err := f.call("kpep_config_kpc_map"); err != nil {
		return err
	}
	*m = [kpc.MaxCounters]int{}
	for i := range f.added[cfg] {
		m[i] = f.SlotOf(i)
	}
	return nil
}

func (f *Fake) Registers(cfg kpc.Config, regs *[kpc.MaxCounters]uint64) error {
	if err := f.call("kpep_config_kpc"); err != nil {
		return err
	}
	*regs = [kpc.MaxCounters]uint64{}
	for i := range f.added[cfg] {
		regs[i] = 0xc0de0000 | uint64(i)
	}
	return nil
}
