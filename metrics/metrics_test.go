// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/aclements/go-kperf/events"
	"github.com/aclements/go-kperf/perf"
)

func TestRecord(t *testing.T) {
	Record("sum", perf.Results{
		events.Cycles:       1000,
		events.Instructions: 2500,
		events.BranchMisses: 3,
	})

	for _, tc := range []struct {
		ev   events.Event
		want float64
	}{
		{events.Cycles, 1000},
		{events.Instructions, 2500},
		{events.BranchMisses, 3},
	} {
		if got := testutil.ToFloat64(EventCount.WithLabelValues("sum", tc.ev.String())); got != tc.want {
			t.Errorf("%s = %v, want %v", tc.ev, got, tc.want)
		}
	}
	if got := testutil.ToFloat64(IPC.WithLabelValues("sum")); got != 2.5 {
		t.Errorf("ipc = %v, want 2.5", got)
	}

	// Without cycles there is no IPC.
	Record("branchy", perf.Results{events.Branches: 10})
	if n := testutil.CollectAndCount(IPC); n != 1 {
		t.Errorf("%d ipc series, want 1", n)
	}
	if n := testutil.CollectAndCount(EventCount); n != 4 {
		t.Errorf("%d event series, want 4", n)
	}
}
