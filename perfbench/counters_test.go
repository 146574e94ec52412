// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perfbench

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/aclements/go-kperf/internal/kpc"
	"github.com/aclements/go-kperf/internal/kpc/kpctest"
)

type testB struct {
	t       *testing.T
	metrics map[string]float64
	logs    []string
	cleanup func()
}

func (tb *testB) ReportMetric(n float64, unit string) {
	if tb.metrics == nil {
		tb.metrics = map[string]float64{}
	}
	tb.metrics[unit] = n
}

func (tb *testB) Logf(format string, args ...any) {
	tb.logs = append(tb.logs, fmt.Sprintf(format, args...))
}

func (tb *testB) Cleanup(fn func()) {
	tb.cleanup = fn
}

// fakeCounters installs a fake framework in which each event advances by
// 100*(i+1) per interval, where i is its registration index.
func fakeCounters(t *testing.T, f *kpctest.Fake) *kpctest.Fake {
	t.Helper()
	for _, ev := range defaultEvents {
		if ev.InternalName() == "" {
			t.Skip("no kpep event names on this architecture")
		}
	}
	for i := range defaultEvents {
		f.Step[f.SlotOf(i)] = 100 * uint64(i+1)
	}
	t.Cleanup(kpc.Override(f))
	return f
}

func TestBasic(t *testing.T) {
	f := fakeCounters(t, &kpctest.Fake{})
	tb := &testB{t: t}
	open(tb, 10)
	tb.cleanup()

	want := map[string]float64{
		"cycles/op":        10,
		"instructions/op":  20,
		"branches/op":      30,
		"branch-misses/op": 40,
	}
	if diff := cmp.Diff(want, tb.metrics); diff != "" {
		t.Errorf("metrics (-want +got):\n%s", diff)
	}
	if len(tb.logs) != 0 {
		t.Errorf("unexpected logs: %v", tb.logs)
	}
	if f.Live() != 0 {
		t.Errorf("%d framework handles leaked", f.Live())
	}
}

func TestStopStart(t *testing.T) {
	f := fakeCounters(t, &kpctest.Fake{})
	tb := &testB{t: t}
	cs := open(tb, 1)
	cs.Stop()
	if got, ok := cs.Total("instructions"); !ok || got != 200 {
		t.Errorf("Total after one interval = %v, %v; want 200, true", got, ok)
	}
	// Stopped time is not counted.
	cs.Stop()
	cs.Start()
	cs.Stop()
	if got, ok := cs.Total("instructions"); !ok || got != 400 {
		t.Errorf("Total after two intervals = %v, %v; want 400, true", got, ok)
	}
	tb.cleanup()
	if got := tb.metrics["cycles/op"]; got != 200 {
		t.Errorf("cycles/op = %v, want 200", got)
	}
	if n := f.Called("kpep_db_create"); n != 2 {
		t.Errorf("opened %d sessions, want 2", n)
	}
	if f.Live() != 0 {
		t.Errorf("%d framework handles leaked", f.Live())
	}
}

func TestResetRunning(t *testing.T) {
	fakeCounters(t, &kpctest.Fake{})
	tb := &testB{t: t}
	cs := open(tb, 1)
	cs.Reset()
	tb.cleanup()
	// Only the interval after Reset is reported.
	if got := tb.metrics["branches/op"]; got != 300 {
		t.Errorf("branches/op = %v, want 300", got)
	}
}

func TestResetStopped(t *testing.T) {
	fakeCounters(t, &kpctest.Fake{})
	tb := &testB{t: t}
	cs := open(tb, 1)
	cs.Stop()
	cs.Reset()
	tb.cleanup()
	if len(tb.metrics) != 0 {
		t.Errorf("reset didn't reset counters: %v", tb.metrics)
	}
	if _, ok := cs.Total("cycles"); ok {
		t.Error("Total reported a value after reset")
	}
}

func TestUnknownTotal(t *testing.T) {
	fakeCounters(t, &kpctest.Fake{})
	tb := &testB{t: t}
	cs := open(tb, 1)
	cs.Stop()
	if _, ok := cs.Total("cache-misses"); ok {
		t.Error("Total of unknown counter reported ok")
	}
	tb.cleanup()
}

func TestOpenError(t *testing.T) {
	f := fakeCounters(t, &kpctest.Fake{Fail: map[string]int32{"kpc_force_all_ctrs_get": 1}})
	for i := 0; i < 2; i++ {
		tb := &testB{t: t}
		cs := open(tb, 1)
		tb.cleanup()
		if len(tb.metrics) != 0 {
			t.Errorf("metrics reported despite open failure: %v", tb.metrics)
		}
		if _, ok := cs.Total("cycles"); ok {
			t.Error("Total reported a value despite open failure")
		}
		if i == 0 {
			if len(tb.logs) != 1 || !strings.Contains(tb.logs[0], "permission denied") {
				t.Errorf("logs = %q, want one permission error", tb.logs)
			}
		} else if len(tb.logs) != 0 {
			// Each distinct error is only logged once.
			t.Errorf("error logged again: %q", tb.logs)
		}
	}
	if f.Live() != 0 {
		t.Errorf("%d framework handles leaked", f.Live())
	}
}

func TestStopRetry(t *testing.T) {
	f := fakeCounters(t, &kpctest.Fake{})
	tb := &testB{t: t}
	cs := open(tb, 1)
	// The first stop reading fails; the second succeeds.
	f.FailTimes = map[string]int{"kpc_get_thread_counters": 1}
	cs.Stop()
	if got, ok := cs.Total("cycles"); !ok || got != 100 {
		t.Errorf("Total after retried stop = %v, %v; want 100, true", got, ok)
	}
	if n := f.Called("kpc_get_thread_counters"); n != 3 {
		t.Errorf("read counters %d times, want 3", n)
	}
	if len(tb.logs) != 0 {
		t.Errorf("unexpected logs: %v", tb.logs)
	}
	tb.cleanup()
	if f.Live() != 0 {
		t.Errorf("%d framework handles leaked", f.Live())
	}
}

func TestStopFetchFailure(t *testing.T) {
	f := fakeCounters(t, &kpctest.Fake{})
	tb := &testB{t: t}
	cs := open(tb, 1)
	f.Fail = map[string]int32{"kpc_get_thread_counters": 5}
	cs.Stop()
	if n := f.Called("kpc_get_thread_counters"); n != 3 {
		t.Errorf("read counters %d times, want 3", n)
	}
	if len(tb.logs) != 1 || !strings.Contains(tb.logs[0], "still running") {
		t.Errorf("logs = %q, want one error saying counters are still running", tb.logs)
	}
	if _, ok := cs.Total("cycles"); ok {
		t.Error("Total reported a value despite failed stop")
	}
	tb.cleanup()
	if len(tb.metrics) != 0 {
		t.Errorf("metrics reported despite failed stop: %v", tb.metrics)
	}
	if f.Live() != 0 {
		t.Errorf("%d framework handles leaked", f.Live())
	}
}
