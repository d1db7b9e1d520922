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

// kvs-stat attaches to a live segment and dumps its header and ring state.
// Diagnostic only; it submits nothing.
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/Leoul-Dem/Concurrent-KVS/internal/kvs"
	"github.com/Leoul-Dem/Concurrent-KVS/internal/shm"
)

func main() {
	segment := flag.String("segment", "kvs", "shared memory segment name")
	flag.Parse()

	if err := run(*segment); err != nil {
		fmt.Fprintln(os.Stderr, "kvs-stat:", err)
		os.Exit(1)
	}
}

func run(name string) error {
	seg, err := shm.OpenSegment(name)
	if err != nil {
		return err
	}
	defer seg.Close()

	h := seg.Header()
	fmt.Printf("segment %s (%s)\n", name, seg.Path)
	fmt.Printf("  version:      %d\n", h.Version())
	fmt.Printf("  total size:   %d bytes\n", h.TotalSize())
	fmt.Printf("  context:      %d bytes at offset %d\n", h.ContextSize(), h.ContextOffset())
	fmt.Printf("  server pid:   %d (ready=%v)\n", h.ServerPID(), h.ServerReady())
	fmt.Printf("  client pid:   %d (ready=%v)\n", h.ClientPID(), h.ClientReady())
	fmt.Printf("  closed:       %v\n", h.Closed())

	if h.ContextSize() != kvs.ContextSize[int64, int64]() {
		fmt.Printf("  context shape does not match int64/int64; skipping ring state\n")
		return nil
	}

	shared, err := kvs.Attach[int64, int64](seg.ContextBytes())
	if err != nil {
		return err
	}
	ring := shared.Ring()
	fmt.Printf("ring\n")
	fmt.Printf("  capacity:     %d (usable %d)\n", kvs.RingCapacity, kvs.RingCapacity-1)
	fmt.Printf("  queued:       %d\n", ring.Size())
	fmt.Printf("  empty/full:   %v/%v\n", ring.Empty(), ring.Full())
	fmt.Printf("  version:      %d operations\n", ring.Version())
	return nil
}
