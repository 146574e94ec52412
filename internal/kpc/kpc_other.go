// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !darwin

package kpc

func load() (Backend, error) {
	return nil, ErrUnsupported
}

// CPUBrand returns "" on platforms without kperf.
func CPUBrand() string {
	return ""
}
