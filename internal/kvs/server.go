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

package kvs

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrNilRing indicates a server was constructed without a request ring.
	ErrNilRing = errors.New("ring cannot be nil")

	// ErrNilTable indicates a server was constructed without a response table.
	ErrNilTable = errors.New("response table cannot be nil")
)

const (
	// workerDequeueRetries is the per-attempt CAS budget of the worker loop.
	// Small on purpose: an idle worker should reach its sleep quickly.
	workerDequeueRetries = 100

	// workerIdleSleep is how long a worker sleeps when the ring is empty.
	workerIdleSleep = 100 * time.Microsecond

	// drainPollInterval is how often DrainStop re-checks the ring.
	drainPollInterval = 1 * time.Millisecond
)

// Server drains the request ring with a pool of workers, executes each
// request against the striped store, and publishes the outcome into the
// response table. The ring and table live in shared memory; the store and
// the workers are private to this process.
type Server[K comparable, V any] struct {
	storage *Map[K, V]
	ring    *Ring[K, V]
	table   *ResponseTable[V]

	running atomic.Bool
	workers int
	wg      sync.WaitGroup
	log     *slog.Logger
}

// NewServer creates a server over the shared ring and table. stripeCount
// sizes the store's lock striping; <= 0 uses the hardware parallelism.
func NewServer[K comparable, V any](ring *Ring[K, V], table *ResponseTable[V], stripeCount int) (*Server[K, V], error) {
	if ring == nil {
		return nil, ErrNilRing
	}
	if table == nil {
		return nil, ErrNilTable
	}
	return &Server[K, V]{
		storage: NewMap[K, V](stripeCount),
		ring:    ring,
		table:   table,
		log:     slog.With("component", "kvs-server"),
	}, nil
}

// NewServerFromContext is a convenience wrapper over NewServer for callers
// holding a SharedContext.
func NewServerFromContext[K comparable, V any](ctx *SharedContext[K, V], stripeCount int) (*Server[K, V], error) {
	if ctx == nil {
		return nil, ErrNilRing
	}
	return NewServer(ctx.Ring(), ctx.Table(), stripeCount)
}

// Start spawns n worker goroutines and returns immediately. It returns
// false if the server is already running.
func (s *Server[K, V]) Start(n int) bool {
	if n <= 0 {
		n = 1
	}
	if !s.running.CompareAndSwap(false, true) {
		return false
	}

	s.workers = n
	s.wg.Add(n)
	for i := 0; i < n; i++ {
		go s.workerLoop(i)
	}
	s.log.Info("started", "workers", n)
	return true
}

// Stop signals the workers and waits for them to exit. Requests still
// queued in the ring are abandoned; their clients time out. Idempotent.
func (s *Server[K, V]) Stop() {
	if !s.running.Swap(false) {
		return
	}
	s.wg.Wait()
	s.workers = 0
	s.log.Info("stopped")
}

// DrainStop keeps the workers running until the ring is observed empty or
// timeout lapses, then stops. timeout <= 0 means drain without bound.
func (s *Server[K, V]) DrainStop(timeout time.Duration) {
	if !s.running.Load() {
		return
	}
	deadline := time.Now().Add(timeout)
	for !s.ring.Empty() {
		if timeout > 0 && !time.Now().Before(deadline) {
			s.log.Warn("drain timed out", "queued", s.ring.Size())
			break
		}
		time.Sleep(drainPollInterval)
	}
	s.Stop()
}

// IsRunning reports whether the worker pool is active.
func (s *Server[K, V]) IsRunning() bool {
	return s.running.Load()
}

// WorkerCount returns the number of workers of the current run.
func (s *Server[K, V]) WorkerCount() int {
	return s.workers
}

// StorageSize returns the exact number of stored entries.
func (s *Server[K, V]) StorageSize() int {
	return s.storage.Size()
}

// workerLoop alternates between draining the ring and a short idle sleep,
// re-reading the running flag after every miss.
func (s *Server[K, V]) workerLoop(id int) {
	defer s.wg.Done()

	var req Request[K, V]
	for s.running.Load() {
		if s.ring.TryDequeue(&req, workerDequeueRetries) {
			s.process(id, &req)
		} else {
			time.Sleep(workerIdleSleep)
		}
	}
}

// process executes one request and publishes its outcome. The value is
// stored into the slot before the status release, and exactly one terminal
// transition happens per submitted ticket.
func (s *Server[K, V]) process(id int, req *Request[K, V]) {
	var zero V

	switch req.Cmd {
	case CmdGet:
		if value, found := s.storage.Find(req.Key); found {
			s.table.Publish(req.Ticket, StatusSuccess, value)
		} else {
			s.table.Publish(req.Ticket, StatusNotFound, zero)
		}

	case CmdSet:
		s.storage.Upsert(req.Key, req.Value)
		s.table.Publish(req.Ticket, StatusSuccess, zero)

	case CmdPost:
		if s.storage.Insert(req.Key, req.Value) {
			s.table.Publish(req.Ticket, StatusSuccess, zero)
		} else {
			s.table.Publish(req.Ticket, StatusFailed, zero)
		}

	case CmdDelete:
		if s.storage.Erase(req.Key) {
			s.table.Publish(req.Ticket, StatusSuccess, zero)
		} else {
			s.table.Publish(req.Ticket, StatusNotFound, zero)
		}

	default:
		// Fail the slot rather than leaving the submitter to time out on a
		// request no worker understands.
		s.log.Error("unknown command",
			"worker", id, "cmd", int32(req.Cmd),
			"client_pid", req.ClientPID, "ticket", req.Ticket)
		s.table.Publish(req.Ticket, StatusFailed, zero)
	}
}
