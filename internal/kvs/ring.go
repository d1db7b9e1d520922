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
	"runtime"
	"sync/atomic"
)

const (
	// RingCapacity is the number of request slots in the ring. One slot is
	// sacrificed as a sentinel, so at most RingCapacity-1 requests are in
	// flight at once.
	RingCapacity = 1024

	// MaxRetries bounds the CAS retry loop of TryEnqueue and TryDequeue so a
	// call under contention gives up and returns false instead of spinning
	// without end.
	MaxRetries = 1000

	// backoffMask caps the exponential pause count between CAS retries.
	backoffMask = 0xFF
)

// Ring is a bounded multi-producer multi-consumer queue of requests living
// in shared memory. Producers and consumers in any process coordinate
// through two 64-bit monotone cursors: head (consumer side) and tail
// (producer side). A cursor's slot index is cursor mod RingCapacity; the
// cursors themselves never wrap within the lifetime of a deployment, which
// is what keeps CAS claims ABA-safe.
//
// The request payload is written into its slot before the cursor CAS that
// publishes it. A losing producer leaves the slot partially stomped, but the
// slot is not yet claimed (tail unchanged) so no consumer can read it, and
// the next winning producer rewrites the same bytes.
type Ring[K comparable, V any] struct {
	head atomic.Uint64 // consumer cursor
	_    [56]byte
	tail atomic.Uint64 // producer cursor
	_    [56]byte
	// version counts successful enqueues and dequeues. Observability only;
	// nothing synchronizes on it.
	version atomic.Uint64
	_       [56]byte
	slots   [RingCapacity]Request[K, V]
}

// TryEnqueue attempts to publish req, retrying the cursor CAS up to
// maxRetries times with capped exponential backoff. It returns false when
// the ring is full or the retry budget is exhausted under contention;
// callers treat both the same way. maxRetries <= 0 uses MaxRetries.
func (r *Ring[K, V]) TryEnqueue(req *Request[K, V], maxRetries int) bool {
	if maxRetries <= 0 {
		maxRetries = MaxRetries
	}
	backoff := 1

	for retries := 0; retries < maxRetries; retries++ {
		tail := r.tail.Load()
		head := r.head.Load()
		next := tail + 1

		if next%RingCapacity == head%RingCapacity {
			return false // full
		}

		r.slots[tail%RingCapacity] = *req

		if r.tail.CompareAndSwap(tail, next) {
			r.version.Add(1)
			return true
		}

		spinPause(backoff)
		backoff = (backoff<<1 | 1) & backoffMask
	}
	return false
}

// TryDequeue attempts to consume one request into out, mirroring TryEnqueue.
// It returns false when the ring is empty or the retry budget is exhausted.
// maxRetries <= 0 uses MaxRetries.
func (r *Ring[K, V]) TryDequeue(out *Request[K, V], maxRetries int) bool {
	if maxRetries <= 0 {
		maxRetries = MaxRetries
	}
	backoff := 1

	for retries := 0; retries < maxRetries; retries++ {
		head := r.head.Load()
		tail := r.tail.Load()

		if head%RingCapacity == tail%RingCapacity {
			return false // empty
		}

		// Copy before claiming. If the CAS loses, another consumer owns the
		// slot and this copy is discarded, so a torn read is harmless.
		*out = r.slots[head%RingCapacity]

		if r.head.CompareAndSwap(head, head+1) {
			r.version.Add(1)
			return true
		}

		spinPause(backoff)
		backoff = (backoff<<1 | 1) & backoffMask
	}
	return false
}

// Enqueue blocks until req is published, yielding the scheduler between
// bounded retry rounds.
func (r *Ring[K, V]) Enqueue(req *Request[K, V]) {
	for !r.TryEnqueue(req, MaxRetries) {
		runtime.Gosched()
	}
}

// Dequeue blocks until a request is consumed into out.
func (r *Ring[K, V]) Dequeue(out *Request[K, V]) {
	for !r.TryDequeue(out, MaxRetries) {
		runtime.Gosched()
	}
}

// Size returns a best-effort count of queued requests. The two cursor loads
// are not a consistent snapshot, so the result is advisory only.
func (r *Ring[K, V]) Size() int {
	tail := r.tail.Load()
	head := r.head.Load()
	if tail < head {
		return 0
	}
	used := tail - head
	if used > RingCapacity {
		used = RingCapacity
	}
	return int(used)
}

// Empty reports whether the ring looked empty at the time of the call.
func (r *Ring[K, V]) Empty() bool {
	return r.head.Load()%RingCapacity == r.tail.Load()%RingCapacity
}

// Full reports whether the ring looked full at the time of the call.
func (r *Ring[K, V]) Full() bool {
	tail := r.tail.Load()
	head := r.head.Load()
	return (tail+1)%RingCapacity == head%RingCapacity
}

// Version returns the operation counter. Observability only.
func (r *Ring[K, V]) Version() uint64 {
	return r.version.Load()
}

// spinPause burns roughly n iterations between CAS retries without touching
// the scheduler. The blocking wrappers yield between whole retry rounds.
func spinPause(n int) {
	for i := 0; i < n; i++ {
	}
}
