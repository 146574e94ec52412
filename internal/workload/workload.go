// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package workload provides small in-process workloads to measure.
package workload

import (
	"fmt"
	"sort"
)

// A Workload runs for a number of iterations on the calling goroutine. Run
// returns a value derived from its work so the work cannot be optimized away.
type Workload struct {
	Name        string
	Description string
	Run         func(n int) uint64
}

var workloads = map[string]Workload{}

func register(w Workload) {
	workloads[w.Name] = w
}

func init() {
	register(Workload{"sum", "append n integers to a slice, then sum them", sum})
	register(Workload{"branchy", "take n data-dependent, hard to predict branches", branchy})
}

// Lookup returns the workload with the given name.
func Lookup(name string) (Workload, error) {
	w, ok := workloads[name]
	if !ok {
		return Workload{}, fmt.Errorf("unknown workload %q", name)
	}
	return w, nil
}

// All returns every workload, sorted by name.
func All() []Workload {
	ws := make([]Workload, 0, len(workloads))
	for _, w := range workloads {
		ws = append(ws, w)
	}
	sort.Slice(ws, func(i, j int) bool { return ws[i].Name < ws[j].Name })
	return ws
}

func sum(n int) uint64 {
	var v []uint64
	for i := 0; i < n; i++ {
		v = append(v, uint64(i))
	}
	var s uint64
	for _, x := range v {
		s += x
	}
	return s
}

func branchy(n int) uint64 {
	// xorshift64 makes each branch direction look random to the predictor.
	x := uint64(0x9e3779b97f4a7c15)
	var taken uint64
	for i := 0; i < n; i++ {
		x ^= x << 13
		x ^= x >> 7
		x ^= x << 17
		if x&1 != 0 {
			taken++
		}
	}
	return taken
}
