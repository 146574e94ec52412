// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/pflag"

	"github.com/aclements/go-kperf/events"
	"github.com/aclements/go-kperf/internal/config"
	"github.com/aclements/go-kperf/internal/kpc"
	"github.com/aclements/go-kperf/internal/kpc/kpctest"
	"github.com/aclements/go-kperf/internal/workload"
	"github.com/aclements/go-kperf/perf"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kperf.yaml")
	if err := os.WriteFile(path, []byte("workload: branchy\niterations: 50\nuser_only: true\n"), 0o666); err != nil {
		t.Fatal(err)
	}

	statCmd.Flags().VisitAll(func(f *pflag.Flag) { f.Changed = false })
	statFlags.events = nil
	if err := statCmd.Flags().Parse([]string{"-c", path, "-e", "cycles,instructions", "-n", "7"}); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig(statCmd.Flags())
	if err != nil {
		t.Fatal(err)
	}
	want := config.Config{
		Events:     []events.Event{events.Cycles, events.Instructions},
		UserOnly:   true,
		Workload:   "branchy",
		Iterations: 7,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config (-want +got):\n%s", diff)
	}
}

func TestMeasure(t *testing.T) {
	for _, ev := range events.All() {
		if ev.InternalName() == "" {
			t.Skip("no kpep event names on this architecture")
		}
	}
	f := &kpctest.Fake{}
	f.Step[f.SlotOf(0)] = 400
	f.Step[f.SlotOf(1)] = 1000
	defer kpc.Override(f)()

	cfg := config.Default()
	cfg.Events = []events.Event{events.Cycles, events.Instructions}
	cfg.Iterations = 10
	wl, err := workload.Lookup("sum")
	if err != nil {
		t.Fatal(err)
	}
	m, err := measure(cfg, wl)
	if err != nil {
		t.Fatal(err)
	}
	res := m.res
	if m.sink != 45 {
		t.Errorf("sum workload returned %d, want 45", m.sink)
	}
	if diff := cmp.Diff(perf.Results{events.Cycles: 400, events.Instructions: 1000}, res); diff != "" {
		t.Errorf("results (-want +got):\n%s", diff)
	}
	if f.Live() != 0 {
		t.Errorf("%d framework handles leaked", f.Live())
	}

	var buf bytes.Buffer
	printResults(&buf, wl.Name, cfg.Iterations, time.Millisecond, res)
	out := buf.String()
	for _, want := range []string{"sum, 10 iterations", "2.500 instructions per cycle"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	var rows [][]string
	for _, line := range strings.Split(out, "\n") {
		if f := strings.Fields(line); len(f) == 2 {
			rows = append(rows, f)
		}
	}
	if diff := cmp.Diff([][]string{{"400", "cycles"}, {"1000", "instructions"}}, rows); diff != "" {
		t.Errorf("result rows (-want +got):\n%s", diff)
	}
}

func TestMeasurePermission(t *testing.T) {
	f := &kpctest.Fake{Fail: map[string]int32{"kpc_force_all_ctrs_get": 1}}
	defer kpc.Override(f)()
	_, err := measure(config.Default(), workload.Workload{Run: func(int) uint64 { return 0 }})
	if err == nil || !strings.Contains(err.Error(), "permission denied") {
		t.Errorf("got %v, want permission error", err)
	}
}

func TestMeasureUserOnly(t *testing.T) {
	for _, userOnly := range []bool{false, true} {
		f := &kpctest.Fake{}
		restore := kpc.Override(f)
		cfg := config.Default()
		cfg.Events = []events.Event{events.Cycles, events.Instructions}
		cfg.UserOnly = userOnly
		_, err := measure(cfg, workload.Workload{Run: func(int) uint64 { return 0 }})
		restore()
		if err != nil {
			if errors.Is(err, perf.ErrInvalidEvent) {
				t.Skip("no kpep event names on this architecture")
			}
			t.Fatal(err)
		}
		if diff := cmp.Diff([]bool{userOnly, userOnly}, f.UserOnly); diff != "" {
			t.Errorf("UserOnly=%v: flags passed to the framework (-want +got):\n%s", userOnly, diff)
		}
	}
}

// slowSetup is a framework whose database takes a long time to create.
type slowSetup struct {
	*kpctest.Fake
	delay time.Duration
}

func (s slowSetup) NewDB(name string) (kpc.DB, error) {
	time.Sleep(s.delay)
	return s.Fake.NewDB(name)
}

func TestMeasureElapsed(t *testing.T) {
	const setup, run = 200 * time.Millisecond, 10 * time.Millisecond
	defer kpc.Override(slowSetup{&kpctest.Fake{}, setup})()
	cfg := config.Default()
	cfg.Events = nil
	m, err := measure(cfg, workload.Workload{Run: func(int) uint64 {
		time.Sleep(run)
		return 0
	}})
	if err != nil {
		t.Fatal(err)
	}
	// Only the workload is timed, not session setup.
	if m.elapsed < run || m.elapsed >= setup {
		t.Errorf("elapsed = %v, want at least %v and under %v", m.elapsed, run, setup)
	}
}
