// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perf

import "errors"

// Errors returned by [Session] methods. Framework failures wrap one of these
// together with the underlying *kpc.Status, so callers can use [errors.Is] to
// classify an error and [errors.As] to recover the failing call.
var (
	// ErrPermissionDenied means the process may not force the counters.
	// Usually this means it is not running as root.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInit means allocating, configuring or enabling the counters failed.
	ErrInit = errors.New("failed to initialize kperf")

	// ErrDeinit means the counters could not be disabled. They may still be
	// counting.
	ErrDeinit = errors.New("failed to deinitialize kperf")

	// ErrInvalidEvent means the event database does not know an event, or
	// rejected adding it to the configuration.
	ErrInvalidEvent = errors.New("failed to enable kperf event")

	// ErrFetchCounters means the thread counters could not be read.
	ErrFetchCounters = errors.New("failed to fetch counter values")

	// ErrUnknown is not returned by any current code path.
	ErrUnknown = errors.New("unknown error")

	// ErrState means a method was called in a state that does not allow it,
	// such as starting a session that has already been stopped.
	ErrState = errors.New("invalid session state")
)
