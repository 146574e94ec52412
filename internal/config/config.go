// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads kperf command configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aclements/go-kperf/events"
	"github.com/aclements/go-kperf/internal/workload"
)

// Config describes one measurement.
type Config struct {
	Events   []events.Event `yaml:"events"`
	UserOnly bool           `yaml:"user_only"`

	// Workload names a workload from package workload, run for Iterations.
	Workload   string `yaml:"workload"`
	Iterations int    `yaml:"iterations"`

	// Listen is the address to serve /metrics on after measuring. If empty,
	// kperf exits after printing results.
	Listen string `yaml:"listen"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Events:     events.All(),
		Workload:   "sum",
		Iterations: 100_000_000,
	}
}

// Load reads the YAML file at path. Fields not set in the file keep their
// [Default] values.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML configuration. Unknown fields are an error.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate reports the first problem with c.
func (c Config) Validate() error {
	if len(c.Events) == 0 {
		return errors.New("no events to count")
	}
	if _, err := workload.Lookup(c.Workload); err != nil {
		return err
	}
	if c.Iterations <= 0 {
		return fmt.Errorf("iterations must be positive, got %d", c.Iterations)
	}
	return nil
}

// Marshal encodes c as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
