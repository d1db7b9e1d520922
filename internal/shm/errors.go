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

import "errors"

var (
	// ErrFutexTimeout is returned by futexWaitTimeout when the wait times out.
	ErrFutexTimeout = errors.New("futex wait timed out")

	// ErrFutexNotSupported indicates futex operations are unavailable on
	// this platform; callers fall back to polling.
	ErrFutexNotSupported = errors.New("futex operations not supported on this platform")
)

// futexWakeAll wakes every waiter on an address.
const futexWakeAll = 1 << 30
