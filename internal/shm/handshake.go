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

package shm

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// pollFallback is the wait granularity when futexes are unavailable, and the
// upper bound on a single futex wait so context cancellation stays responsive.
const pollFallback = 1 * time.Millisecond

// WaitForClient blocks until a client marks itself ready on the segment.
// The server calls this after initializing the context area.
func (s *Segment) WaitForClient(ctx context.Context) error {
	return waitForReady(ctx, &s.Header().clientReady)
}

// WaitForServer blocks until the server marks the context area initialized.
// Clients call this after opening a segment.
func (s *Segment) WaitForServer(ctx context.Context) error {
	return waitForReady(ctx, &s.Header().serverReady)
}

// waitForReady waits for a readiness word to become non-zero. Wakeups are
// futex-driven where supported; elsewhere it degrades to a poll loop.
func waitForReady(ctx context.Context, addr *uint32) error {
	for {
		if atomic.LoadUint32(addr) != 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		err := futexWaitTimeout(addr, 0, int64(pollFallback))
		switch {
		case err == nil, errors.Is(err, ErrFutexTimeout):
			// Re-check the word and the context.
		case errors.Is(err, ErrFutexNotSupported):
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollFallback):
			}
		default:
			return err
		}
	}
}
