// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"github.com/aclements/go-kperf/events"
	"github.com/aclements/go-kperf/internal/config"
	"github.com/aclements/go-kperf/internal/workload"
	"github.com/aclements/go-kperf/metrics"
	"github.com/aclements/go-kperf/perf"
)

var statFlags struct {
	config     string
	events     events.List
	userOnly   bool
	workload   string
	iterations int
	listen     string
}

var _ pflag.Value = (*events.List)(nil)

var statCmd = &cobra.Command{
	Use:   "stat",
	Short: "Count events while running a workload",
	Args:  cobra.NoArgs,
	RunE:  runStat,
}

func init() {
	f := statCmd.Flags()
	f.StringVarP(&statFlags.config, "config", "c", "", "YAML configuration `file`")
	f.VarP(&statFlags.events, "events", "e", "comma-separated events to count (default all)")
	f.BoolVar(&statFlags.userOnly, "user-only", false, "count only user-mode execution")
	f.StringVarP(&statFlags.workload, "workload", "w", "", "workload to run (see kperf list)")
	f.IntVarP(&statFlags.iterations, "iterations", "n", 0, "workload iterations")
	f.StringVar(&statFlags.listen, "listen", "", "serve Prometheus metrics on this `address` after measuring")
}

// loadConfig builds the configuration from the config file, if any, and
// overrides it with flags that were set explicitly.
func loadConfig(flags *pflag.FlagSet) (config.Config, error) {
	cfg := config.Default()
	if statFlags.config != "" {
		var err error
		if cfg, err = config.Load(statFlags.config); err != nil {
			return config.Config{}, err
		}
	}
	if flags.Changed("events") {
		cfg.Events = statFlags.events
	}
	if flags.Changed("user-only") {
		cfg.UserOnly = statFlags.userOnly
	}
	if flags.Changed("workload") {
		cfg.Workload = statFlags.workload
	}
	if flags.Changed("iterations") {
		cfg.Iterations = statFlags.iterations
	}
	if flags.Changed("listen") {
		cfg.Listen = statFlags.listen
	}
	return cfg, cfg.Validate()
}

func runStat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	wl, err := workload.Lookup(cfg.Workload)
	if err != nil {
		return err
	}

	m, err := measure(cfg, wl)
	if err != nil {
		return err
	}
	klog.V(1).Infof("workload %s returned %d", wl.Name, m.sink)

	printResults(cmd.OutOrStdout(), wl.Name, cfg.Iterations, m.elapsed, m.res)
	metrics.Record(wl.Name, m.res)

	if cfg.Listen == "" {
		return nil
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cfg.Listen)
}

// A measurement is the outcome of one counted workload run.
type measurement struct {
	res     perf.Results
	sink    uint64        // Value returned by the workload
	elapsed time.Duration // Wall time of the workload alone
}

// measure runs wl under a new session. Counting happens on the calling
// goroutine.
func measure(cfg config.Config, wl workload.Workload) (measurement, error) {
	s, err := perf.NewSession()
	if err != nil {
		return measurement{}, err
	}
	defer s.Close()

	if err := s.AddEvents(cfg.UserOnly, cfg.Events...); err != nil {
		return measurement{}, err
	}
	if err := s.Start(); err != nil {
		return measurement{}, err
	}
	start := time.Now()
	sink := wl.Run(cfg.Iterations)
	elapsed := time.Since(start)
	res, err := s.Stop()
	if errors.Is(err, perf.ErrDeinit) {
		// The counts were captured before disabling failed.
		klog.Warning(err)
		err = nil
	}
	if err != nil {
		return measurement{}, err
	}
	return measurement{res: res, sink: sink, elapsed: elapsed}, nil
}

func printResults(w io.Writer, name string, iters int, elapsed time.Duration, res perf.Results) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%s, %d iterations, %v", name, iters, elapsed.Round(time.Microsecond))))
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', tabwriter.AlignRight)
	for _, ev := range res.Sorted() {
		fmt.Fprintf(tw, "%d\t%s\t\n", res[ev], ev)
	}
	tw.Flush()
	if ipc, ok := res.IPC(); ok {
		fmt.Fprintf(w, "%.3f instructions per cycle\n", ipc)
	}
}

func serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errc := make(chan error, 1)
	go func() {
		klog.Infof("serving metrics on %s", addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
