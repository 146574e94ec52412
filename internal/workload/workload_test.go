// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package workload

import "testing"

func TestSum(t *testing.T) {
	w, err := Lookup("sum")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := w.Run(1000), uint64(999*1000/2); got != want {
		t.Errorf("sum(1000) = %d, want %d", got, want)
	}
	if got := w.Run(0); got != 0 {
		t.Errorf("sum(0) = %d", got)
	}
}

func TestBranchy(t *testing.T) {
	w, err := Lookup("branchy")
	if err != nil {
		t.Fatal(err)
	}
	// Roughly half the branches should be taken.
	if got := w.Run(10000); got < 4000 || got > 6000 {
		t.Errorf("branchy took %d of 10000 branches", got)
	}
}

func TestLookupUnknown(t *testing.T) {
	if _, err := Lookup("nope"); err == nil {
		t.Error("Lookup of unknown workload succeeded")
	}
	all := All()
	if len(all) != 2 || all[0].Name != "branchy" || all[1].Name != "sum" {
		t.Errorf("All() = %v", all)
	}
}
