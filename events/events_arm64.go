// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package events

// Apple silicon event names from the kpep database.
var internalNames = [numEvents]string{
	Cycles:       "FIXED_CYCLES",
	Instructions: "FIXED_INSTRUCTIONS",
	Branches:     "INST_BRANCH",
	BranchMisses: "BRANCH_MISPRED_NONSPEC",
}
