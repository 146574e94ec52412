// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"runtime"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aclements/go-kperf/events"
	"github.com/aclements/go-kperf/internal/kpc"
	"github.com/aclements/go-kperf/internal/workload"
	"github.com/aclements/go-kperf/perf"
)

var listCheck bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List supported events and workloads",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList(cmd.OutOrStdout(), listCheck)
	},
}

func init() {
	listCmd.Flags().BoolVar(&listCheck, "check", false, "check each event against the kpep database (requires root)")
}

func runList(w io.Writer, check bool) error {
	brand := kpc.CPUBrand()
	if brand == "" {
		brand = "unknown CPU"
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%s (%s)", brand, runtime.GOARCH)))

	var status map[events.Event]string
	if check {
		var err error
		if status, err = checkEvents(); err != nil {
			return err
		}
	}

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "EVENT\tKPEP NAME\t")
	for _, ev := range events.All() {
		name := ev.InternalName()
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", ev, name, status[ev])
	}
	tw.Flush()

	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("Workloads"))
	for _, wl := range workload.All() {
		fmt.Fprintf(w, "  %-10s %s\n", wl.Name, wl.Description)
	}
	return nil
}

// checkEvents adds each event to its own session and reports whether the
// kpep database accepted it.
func checkEvents() (map[events.Event]string, error) {
	status := make(map[events.Event]string)
	for _, ev := range events.All() {
		s, err := perf.NewSession()
		if err != nil {
			return nil, err
		}
		if err := s.AddEvent(false, ev); err != nil {
			status[ev] = "unavailable"
		} else {
			status[ev] = "ok"
		}
		s.Close()
	}
	return status, nil
}
