// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command kperf counts hardware performance events while running a built-in
// workload.
//
// Usage:
//
//	sudo kperf list
//	sudo kperf stat [-e events] [--user-only] [--workload name] [-n iterations]
//
// Counting requires root.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

var rootCmd = &cobra.Command{
	Use:           "kperf",
	Short:         "Count CPU hardware events with the macOS kperf framework",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var headerStyle = lipgloss.NewStyle().Bold(true)

func main() {
	klog.InitFlags(nil)
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	rootCmd.AddCommand(listCmd, statCmd)

	err := rootCmd.Execute()
	klog.Flush()
	if err != nil {
		fmt.Fprintln(os.Stderr, "kperf:", err)
		os.Exit(1)
	}
}
