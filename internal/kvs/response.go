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

import "sync/atomic"

// ResponseTableSize is the number of response slots. The slot for a ticket
// is ticket mod ResponseTableSize, so at most ResponseTableSize tickets may
// be outstanding before slots are shared.
const ResponseTableSize = 1024

// ResponseStatus is the state word of a response slot.
type ResponseStatus uint32

const (
	// StatusPending marks a slot awaiting its worker.
	StatusPending ResponseStatus = 0
	// StatusSuccess marks a completed operation; on GET the slot value is
	// meaningful.
	StatusSuccess ResponseStatus = 1
	// StatusNotFound marks a GET or DELETE against an absent key.
	StatusNotFound ResponseStatus = 2
	// StatusFailed marks a POST conflict or an unrecognized command.
	StatusFailed ResponseStatus = 3
)

// String returns the status mnemonic.
func (s ResponseStatus) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusSuccess:
		return "SUCCESS"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusFailed:
		return "FAILED"
	default:
		return "INVALID"
	}
}

// ResponseSlot is one entry of the response table. The status word is the
// publication point: the value and the owning ticket are stored first, then
// the status transitions out of pending exactly once per submission.
//
// The ticket word is what makes slot sharing tolerable. Two tickets that
// collide mod ResponseTableSize can race on a slot, and a worker can publish
// into a slot whose client already timed out; the waiter accepts a terminal
// status only when the stamped ticket matches its own, so a stale or
// colliding publication is never misdelivered.
type ResponseSlot[V any] struct {
	status atomic.Uint32
	_      [4]byte
	ticket atomic.Uint64
	value  V
	// Pads a word-sized V out to its own cache line so waiters polling one
	// slot do not thrash their neighbors.
	_ [40]byte
}

// Status returns the current state word.
func (s *ResponseSlot[V]) Status() ResponseStatus {
	return ResponseStatus(s.status.Load())
}

// Value returns the slot payload. Meaningful only after Status reports
// StatusSuccess for a GET.
func (s *ResponseSlot[V]) Value() V {
	return s.value
}

// ResponseTable is the fixed array of response slots in shared memory.
type ResponseTable[V any] struct {
	slots [ResponseTableSize]ResponseSlot[V]
}

// Slot returns the slot addressed by ticket.
func (t *ResponseTable[V]) Slot(ticket uint64) *ResponseSlot[V] {
	return &t.slots[ticket%ResponseTableSize]
}

// Clear reclaims the slot for ticket ahead of a submission: the slot is
// stamped with the new owner and reset to pending. Only the ticket holder
// may clear its slot, and only before enqueueing the matching request.
func (t *ResponseTable[V]) Clear(ticket uint64) {
	slot := t.Slot(ticket)
	slot.ticket.Store(ticket)
	slot.status.Store(uint32(StatusPending))
}

// Publish commits the outcome for ticket: payload first, owner stamp second,
// status release last. Exactly one worker publishes per submitted ticket.
func (t *ResponseTable[V]) Publish(ticket uint64, status ResponseStatus, value V) {
	slot := t.Slot(ticket)
	slot.value = value
	slot.ticket.Store(ticket)
	slot.status.Store(uint32(status))
}

// Complete reports whether ticket's operation has finished. A terminal
// status stamped with a different ticket belongs to a collided submission
// and is not completion for this one.
func (t *ResponseTable[V]) Complete(ticket uint64) (ResponseStatus, bool) {
	slot := t.Slot(ticket)
	status := ResponseStatus(slot.status.Load())
	if status == StatusPending {
		return StatusPending, false
	}
	if slot.ticket.Load() != ticket {
		return StatusPending, false
	}
	return status, true
}
