// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metrics publishes counter results as Prometheus gauges.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aclements/go-kperf/perf"
)

const (
	Namespace = "kperf"
	Workload  = "workload"
	Event     = "event"
)

var (
	EventCount = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "event_count",
		Help:      "Hardware events counted during the last measured run of a workload.",
	}, []string{Workload, Event})
	IPC = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "ipc",
		Help:      "Instructions retired per cycle during the last measured run of a workload.",
	}, []string{Workload})
	Collectors = []prometheus.Collector{EventCount, IPC}
)

func init() {
	prometheus.MustRegister(Collectors...)
}

// Record sets the gauges for workload from r. IPC is only set if r includes
// both cycles and instructions.
func Record(workload string, r perf.Results) {
	labels := prometheus.Labels{Workload: workload}
	for ev, v := range r {
		labels[Event] = ev.String()
		EventCount.With(labels).Set(float64(v))
	}
	if ipc, ok := r.IPC(); ok {
		IPC.WithLabelValues(workload).Set(ipc)
	}
}
