// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build darwin

package kpc

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"golang.org/x/sys/unix"
)

const (
	kperfPath     = "/System/Library/PrivateFrameworks/kperf.framework/kperf"
	kperfdataPath = "/System/Library/PrivateFrameworks/kperfdata.framework/kperfdata"
)

// framework holds the resolved framework functions. Pointer arguments always
// point into heap buffers owned by the caller.
type framework struct {
	forceAllCtrsGet   func(val *int32) int32
	forceAllCtrsSet   func(val int32) int32
	setCounting       func(classes uint32) int32
	setThreadCounting func(classes uint32) int32
	setConfig         func(classes uint32, config *uint64) int32
	getThreadCounters func(tid uint32, bufCount uint32, buf *uint64) int32

	dbCreate            func(name *byte, db *uintptr) int32
	dbFree              func(db uintptr)
	dbEvent             func(db uintptr, name *byte, ev *uintptr) int32
	configCreate        func(db uintptr, cfg *uintptr) int32
	configFree          func(cfg uintptr)
	configForceCounters func(cfg uintptr) int32
	configAddEvent      func(cfg uintptr, ev *uintptr, flag uint32, err *uint32) int32
	configKpcClasses    func(cfg uintptr, classes *uint32) int32
	configKpcCount      func(cfg uintptr, count *uintptr) int32
	configKpcMap        func(cfg uintptr, buf *uintptr, size uintptr) int32
	configKpc           func(cfg uintptr, buf *uint64, size uintptr) int32
}

var load = sync.OnceValues(func() (Backend, error) {
	kperf, err := purego.Dlopen(kperfPath, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("loading kperf.framework: %w", err)
	}
	kperfdata, err := purego.Dlopen(kperfdataPath, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("loading kperfdata.framework: %w", err)
	}

	f := new(framework)
	syms := []struct {
		lib  uintptr
		name string
		fn   any
	}{
		{kperf, "kpc_force_all_ctrs_get", &f.forceAllCtrsGet},
		{kperf, "kpc_force_all_ctrs_set", &f.forceAllCtrsSet},
		{kperf, "kpc_set_counting", &f.setCounting},
		{kperf, "kpc_set_thread_counting", &f.setThreadCounting},
		{kperf, "kpc_set_config", &f.setConfig},
		{kperf, "kpc_get_thread_counters", &f.getThreadCounters},
		{kperfdata, "kpep_db_create", &f.dbCreate},
		{kperfdata, "kpep_db_free", &f.dbFree},
		{kperfdata, "kpep_db_event", &f.dbEvent},
		{kperfdata, "kpep_config_create", &f.configCreate},
		{kperfdata, "kpep_config_free", &f.configFree},
		{kperfdata, "kpep_config_force_counters", &f.configForceCounters},
		{kperfdata, "kpep_config_add_event", &f.configAddEvent},
		{kperfdata, "kpep_config_kpc_classes", &f.configKpcClasses},
		{kperfdata, "kpep_config_kpc_count", &f.configKpcCount},
		{kperfdata, "kpep_config_kpc_map", &f.configKpcMap},
		{kperfdata, "kpep_config_kpc", &f.configKpc},
	}
	for _, sym := range syms {
		addr, err := purego.Dlsym(sym.lib, sym.name)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", sym.name, err)
		}
		purego.RegisterFunc(sym.fn, addr)
	}
	return f, nil
})

func (f *framework) ForceAllCounters() (bool, error) {
	val := new(int32)
	if err := status("kpc_force_all_ctrs_get", f.forceAllCtrsGet(val)); err != nil {
		return false, err
	}
	return *val != 0, nil
}

func (f *framework) SetForceAllCounters(on bool) error {
	var val int32
	if on {
		val = 1
	}
	return status("kpc_force_all_ctrs_set", f.forceAllCtrsSet(val))
}

func (f *framework) SetCounting(classes Class) error {
	return status("kpc_set_counting", f.setCounting(uint32(classes)))
}

func (f *framework) SetThreadCounting(classes Class) error {
	return status("kpc_set_thread_counting", f.setThreadCounting(uint32(classes)))
}

func (f *framework) SetConfig(classes Class, regs *[MaxCounters]uint64) error {
	ret := f.setConfig(uint32(classes), &regs[0])
	runtime.KeepAlive(regs)
	return status("kpc_set_config", ret)
}

func (f *framework) ThreadCounters(buf *[MaxCounters]uint64) error {
	// A tid of 0 is the calling thread.
	ret := f.getThreadCounters(0, MaxCounters, &buf[0])
	runtime.KeepAlive(buf)
	return status("kpc_get_thread_counters", ret)
}

func (f *framework) NewDB(name string) (DB, error) {
	var cname *byte
	if name != "" {
		var err error
		if cname, err = unix.BytePtrFromString(name); err != nil {
			return 0, err
		}
	}
	db := new(uintptr)
	ret := f.dbCreate(cname, db)
	runtime.KeepAlive(cname)
	if err := status("kpep_db_create", ret); err != nil {
		return 0, err
	}
	return DB(*db), nil
}

func (f *framework) FreeDB(db DB) {
	f.dbFree(uintptr(db))
}

func (f *framework) DBEvent(db DB, name string) (EventRef, error) {
	cname, err := unix.BytePtrFromString(name)
	if err != nil {
		return 0, err
	}
	ev := new(uintptr)
	ret := f.dbEvent(uintptr(db), cname, ev)
	runtime.KeepAlive(cname)
	if err := status("kpep_db_event", ret); err != nil {
		return 0, err
	}
	if *ev == 0 {
		return 0, ErrNoEvent
	}
	return EventRef(*ev), nil
}

func (f *framework) NewConfig(db DB) (Config, error) {
	cfg := new(uintptr)
	if err := status("kpep_config_create", f.configCreate(uintptr(db), cfg)); err != nil {
		return 0, err
	}
	return Config(*cfg), nil
}

func (f *framework) FreeConfig(cfg Config) {
	f.configFree(uintptr(cfg))
}

func (f *framework) ForceCounters(cfg Config) {
	f.configForceCounters(uintptr(cfg))
}

func (f *framework) AddEvent(cfg Config, ev EventRef, userOnly bool) error {
	var flag uint32
	if userOnly {
		flag = 1
	}
	evp := new(uintptr)
	*evp = uintptr(ev)
	return status("kpep_config_add_event", f.configAddEvent(uintptr(cfg), evp, flag, nil))
}

func (f *framework) Classes(cfg Config) (Class, error) {
	classes := new(uint32)
	if err := status("kpep_config_kpc_classes", f.configKpcClasses(uintptr(cfg), classes)); err != nil {
		return 0, err
	}
	return Class(*classes), nil
}

func (f *framework) Count(cfg Config) (int, error) {
	count := new(uintptr)
	if err := status("kpep_config_kpc_count", f.configKpcCount(uintptr(cfg), count)); err != nil {
		return 0, err
	}
	return int(*count), nil
}

func (f *framework) Map(cfg Config, m *[MaxCounters]int) error {
	// The framework fills an array of size_t.
	buf := new([MaxCounters]uintptr)
	ret := f.configKpcMap(uintptr(cfg), &buf[0], unsafe.Sizeof(*buf))
	runtime.KeepAlive(buf)
	if err := status("kpep_config_kpc_map", ret); err != nil {
		return err
	}
	for i, idx := range buf {
		m[i] = int(idx)
	}
	return nil
}

func (f *framework) Registers(cfg Config, regs *[MaxCounters]uint64) error {
	ret := f.configKpc(uintptr(cfg), &regs[0], unsafe.Sizeof(*regs))
	runtime.KeepAlive(regs)
	return status("kpep_config_kpc", ret)
}

// CPUBrand returns the machdep.cpu.brand_string sysctl, or "" if it is not
// available.
func CPUBrand() string {
	brand, err := unix.Sysctl("machdep.cpu.brand_string")
	if err != nil {
		return ""
	}
	return brand
}
