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
	"os"
	"sync/atomic"
	"time"
)

var (
	// ErrDisconnected indicates the client holds no shared context.
	ErrDisconnected = errors.New("client is not attached to a shared region")

	// ErrQueueFull indicates the ring rejected the request within the retry
	// budget, whether genuinely full or under heavy contention; callers
	// treat both alike.
	ErrQueueFull = errors.New("request ring is full")
)

// DefaultTimeout is how long synchronous operations wait for a response
// when the client was built with no explicit timeout.
const DefaultTimeout = 5 * time.Second

// waitPollInterval is the sleep between response slot checks.
const waitPollInterval = 100 * time.Microsecond

// Client submits requests into the shared ring and waits on response slots.
// Safe for concurrent use by multiple goroutines; each submission draws a
// fresh ticket from the process-local counter.
//
// Tickets start at 1 and increase monotonically. Because the response table
// has ResponseTableSize slots, a client must not keep more than that many
// operations outstanding, or tickets begin to share live slots.
type Client[K comparable, V any] struct {
	ctx        *SharedContext[K, V]
	pid        int32
	nextTicket atomic.Uint64
	timeout    time.Duration
}

// NewClient wraps an attached shared context. pid <= 0 uses the calling
// process's PID. timeout <= 0 uses DefaultTimeout.
func NewClient[K comparable, V any](ctx *SharedContext[K, V], pid int, timeout time.Duration) (*Client[K, V], error) {
	if ctx == nil {
		return nil, ErrDisconnected
	}
	if pid <= 0 {
		pid = os.Getpid()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client[K, V]{ctx: ctx, pid: int32(pid), timeout: timeout}, nil
}

// GetAsync submits a GET and returns its ticket without waiting.
func (c *Client[K, V]) GetAsync(key K) (uint64, error) {
	var novalue V
	return c.submit(CmdGet, key, novalue, false)
}

// Get looks key up, waiting at most the client timeout. The second result
// is false on NOT_FOUND, timeout, or submission failure.
func (c *Client[K, V]) Get(key K) (V, bool) {
	return c.GetTimeout(key, c.timeout)
}

// GetTimeout is Get with an explicit timeout.
func (c *Client[K, V]) GetTimeout(key K, timeout time.Duration) (V, bool) {
	var zero V
	ticket, err := c.GetAsync(key)
	if err != nil {
		return zero, false
	}
	status, value, ok := c.Await(ticket, timeout)
	if !ok || status != StatusSuccess {
		return zero, false
	}
	return value, true
}

// SetAsync submits a SET (upsert) and returns its ticket.
func (c *Client[K, V]) SetAsync(key K, value V) (uint64, error) {
	return c.submit(CmdSet, key, value, true)
}

// Set upserts key, reporting success within the client timeout.
func (c *Client[K, V]) Set(key K, value V) bool {
	return c.SetTimeout(key, value, c.timeout)
}

// SetTimeout is Set with an explicit timeout.
func (c *Client[K, V]) SetTimeout(key K, value V, timeout time.Duration) bool {
	ticket, err := c.SetAsync(key, value)
	if err != nil {
		return false
	}
	status, _, ok := c.Await(ticket, timeout)
	return ok && status == StatusSuccess
}

// PostAsync submits a POST (insert-if-absent) and returns its ticket.
func (c *Client[K, V]) PostAsync(key K, value V) (uint64, error) {
	return c.submit(CmdPost, key, value, true)
}

// Post inserts key only if absent; false when the key already exists, on
// timeout, or on submission failure.
func (c *Client[K, V]) Post(key K, value V) bool {
	return c.PostTimeout(key, value, c.timeout)
}

// PostTimeout is Post with an explicit timeout.
func (c *Client[K, V]) PostTimeout(key K, value V, timeout time.Duration) bool {
	ticket, err := c.PostAsync(key, value)
	if err != nil {
		return false
	}
	status, _, ok := c.Await(ticket, timeout)
	return ok && status == StatusSuccess
}

// DelAsync submits a DELETE and returns its ticket.
func (c *Client[K, V]) DelAsync(key K) (uint64, error) {
	var novalue V
	return c.submit(CmdDelete, key, novalue, false)
}

// Del removes key; false when the key was absent, on timeout, or on
// submission failure.
func (c *Client[K, V]) Del(key K) bool {
	return c.DelTimeout(key, c.timeout)
}

// DelTimeout is Del with an explicit timeout.
func (c *Client[K, V]) DelTimeout(key K, timeout time.Duration) bool {
	ticket, err := c.DelAsync(key)
	if err != nil {
		return false
	}
	status, _, ok := c.Await(ticket, timeout)
	return ok && status == StatusSuccess
}

// Await blocks until the response for ticket is published or timeout
// lapses. ok is false on timeout; the operation may still complete later,
// in which case its publication is ignored by every future waiter thanks to
// the slot's ticket stamp.
func (c *Client[K, V]) Await(ticket uint64, timeout time.Duration) (ResponseStatus, V, bool) {
	var zero V
	table := c.ctx.Table()
	deadline := time.Now().Add(timeout)

	for {
		if status, done := table.Complete(ticket); done {
			if status == StatusSuccess {
				return status, table.Slot(ticket).Value(), true
			}
			return status, zero, true
		}
		if !time.Now().Before(deadline) {
			return StatusPending, zero, false
		}
		time.Sleep(waitPollInterval)
	}
}

// submit allocates a ticket, reclaims its response slot, and enqueues the
// request. The clear must precede the enqueue: a worker may publish the
// moment the request is visible in the ring.
func (c *Client[K, V]) submit(cmd Command, key K, value V, hasValue bool) (uint64, error) {
	if c.ctx == nil {
		return 0, ErrDisconnected
	}

	ticket := c.nextTicket.Add(1)
	c.ctx.Table().Clear(ticket)

	req := Request[K, V]{
		Cmd:       cmd,
		HasValue:  hasValue,
		ClientPID: c.pid,
		Ticket:    ticket,
		Key:       key,
		Value:     value,
	}
	if !c.ctx.Ring().TryEnqueue(&req, MaxRetries) {
		return 0, ErrQueueFull
	}
	return ticket, nil
}

// IsConnected reports whether the client holds a shared context.
func (c *Client[K, V]) IsConnected() bool {
	return c != nil && c.ctx != nil
}

// QueueSize returns the approximate number of queued requests.
func (c *Client[K, V]) QueueSize() int {
	if !c.IsConnected() {
		return 0
	}
	return c.ctx.Ring().Size()
}

// QueueFull reports whether the ring looked full at the time of the call.
func (c *Client[K, V]) QueueFull() bool {
	if !c.IsConnected() {
		return true
	}
	return c.ctx.Ring().Full()
}
