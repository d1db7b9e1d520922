/*
 *
 * Copyright 2025 The Concurrent-KVS Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// Config holds the server's tunables. Flags override file values.
type Config struct {
	Segment     string `json:"segment"`
	Socket      string `json:"socket"`
	InfoFile    string `json:"info_file,omitempty"`
	Workers     int    `json:"workers,omitempty"`
	Stripes     int    `json:"stripes,omitempty"`
	DrainOnTerm bool   `json:"drain_on_term,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Segment:  "kvs",
		Socket:   filepath.Join(os.TempDir(), "kvs_control.sock"),
		InfoFile: filepath.Join(os.TempDir(), "kvs_info.json"),
	}
}

// LoadConfig reads an optional HuJSON config file over the defaults.
// Comments and trailing commas in the file are fine.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC in %s: %w", path, err)
	}
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config in %s: %w", path, err)
	}

	if cfg.Segment == "" {
		return Config{}, fmt.Errorf("config %s: segment cannot be empty", path)
	}
	if cfg.Socket == "" {
		return Config{}, fmt.Errorf("config %s: socket cannot be empty", path)
	}
	return cfg, nil
}
