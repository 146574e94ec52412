// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package events

// Intel event names from the kpep database.
var internalNames = [numEvents]string{
	Cycles:       "CPU_CLK_UNHALTED.THREAD",
	Instructions: "INST_RETIRED.ANY",
	Branches:     "BR_INST_RETIRED.ALL_BRANCHES",
	BranchMisses: "BR_MISP_RETIRED.ALL_BRANCHES",
}
