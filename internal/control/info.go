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

package control

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/natefinch/atomic"
)

// Info is the discovery record the server publishes next to its socket.
// Clients that can read it skip the socket exchange entirely.
type Info struct {
	Segment string `json:"segment"`
	Socket  string `json:"socket"`
	PID     int    `json:"pid"`
}

// WriteInfoFile publishes info at path. The write is an atomic replace so a
// concurrent reader never observes a torn file.
func WriteInfoFile(path string, info Info) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode info file: %w", err)
	}
	data = append(data, '\n')
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write info file %s: %w", path, err)
	}
	return nil
}

// ReadInfoFile loads a discovery record written by WriteInfoFile.
func ReadInfoFile(path string) (Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Info{}, fmt.Errorf("failed to read info file %s: %w", path, err)
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return Info{}, fmt.Errorf("failed to decode info file %s: %w", path, err)
	}
	return info, nil
}
