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

// kvs-server creates the shared memory segment, initializes the request
// ring and response table in place, and runs the worker pool plus the
// control-plane rendezvous until interrupted.
//
// The demo instantiation is K = int64, V = int64.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/Leoul-Dem/Concurrent-KVS/internal/control"
	"github.com/Leoul-Dem/Concurrent-KVS/internal/kvs"
	"github.com/Leoul-Dem/Concurrent-KVS/internal/shm"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "kvs-server:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "HuJSON config file")
		segment    = flag.String("segment", "", "shared memory segment name")
		socket     = flag.String("socket", "", "control socket path")
		infoFile   = flag.String("info-file", "", "rendezvous info file path")
		workers    = flag.Int("workers", 0, "worker threads (0 = hardware parallelism)")
		stripes    = flag.Int("stripes", 0, "store lock stripes (0 = hardware parallelism)")
		drain      = flag.Bool("drain", false, "drain the ring before stopping")
	)
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *segment != "" {
		cfg.Segment = *segment
	}
	if *socket != "" {
		cfg.Socket = *socket
	}
	if *infoFile != "" {
		cfg.InfoFile = *infoFile
	}
	if *workers != 0 {
		cfg.Workers = *workers
	}
	if *stripes != 0 {
		cfg.Stripes = *stripes
	}
	if *drain {
		cfg.DrainOnTerm = true
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}

	log := slog.With("component", "kvs-server", "segment", cfg.Segment)

	// Create and initialize the shared region; exactly-once is enforced by
	// the exclusive create.
	seg, err := shm.CreateSegment(cfg.Segment, kvs.ContextSize[int64, int64]())
	if err != nil {
		return fmt.Errorf("create segment: %w", err)
	}
	defer func() {
		seg.Close()
		shm.RemoveSegment(cfg.Segment)
	}()

	shared, err := kvs.InitInPlace[int64, int64](seg.ContextBytes())
	if err != nil {
		return fmt.Errorf("initialize shared context: %w", err)
	}

	server, err := kvs.NewServerFromContext(shared, cfg.Stripes)
	if err != nil {
		return err
	}
	if !server.Start(cfg.Workers) {
		return fmt.Errorf("server already running")
	}
	defer server.Stop()

	// Announce only after the context is live.
	seg.Header().SetServerReady(true)

	ctl, err := control.NewServer(cfg.Socket, cfg.Segment)
	if err != nil {
		return fmt.Errorf("control server: %w", err)
	}
	defer os.Remove(cfg.Socket)
	defer ctl.Close()

	if cfg.InfoFile != "" {
		info := control.Info{Segment: cfg.Segment, Socket: cfg.Socket, PID: os.Getpid()}
		if err := control.WriteInfoFile(cfg.InfoFile, info); err != nil {
			return err
		}
		defer os.Remove(cfg.InfoFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go ctl.Serve(ctx)

	log.Info("serving", "socket", cfg.Socket, "workers", cfg.Workers)
	<-ctx.Done()

	log.Info("shutting down", "peers", len(ctl.Peers()), "stored", server.StorageSize())
	seg.Header().SetClosed(true)

	if cfg.DrainOnTerm {
		server.DrainStop(5 * time.Second)
	} else {
		server.Stop()
	}

	// Clients that rendezvoused get a term signal so they stop using the
	// mapping before the segment file goes away.
	for _, pid := range ctl.Peers() {
		if proc, err := os.FindProcess(pid); err == nil {
			proc.Signal(syscall.SIGTERM)
		}
	}
	return nil
}
