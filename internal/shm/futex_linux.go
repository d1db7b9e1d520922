//go:build linux

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
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// The readiness words live in a file-backed mapping shared across processes,
// so the non-private futex ops are required here.

// FUTEX_WAIT and FUTEX_WAKE are not exposed by golang.org/x/sys/unix; their
// values are fixed by the Linux kernel futex(2) ABI.
const (
	futexWaitOp = 0
	futexWakeOp = 1
)

// futexWaitTimeout waits on addr until the value changes from val, a waker
// fires, or timeoutNs elapses. timeoutNs <= 0 waits indefinitely. Spurious
// returns are possible; callers re-check their condition.
func futexWaitTimeout(addr *uint32, val uint32, timeoutNs int64) error {
	// Re-check atomically before entering the syscall to avoid the
	// lost-wake race between snapshot and futex entry.
	if atomic.LoadUint32(addr) != val {
		return nil
	}

	var tsPtr uintptr
	var ts unix.Timespec
	if timeoutNs > 0 {
		ts.Sec = timeoutNs / 1e9
		ts.Nsec = timeoutNs % 1e9
		tsPtr = uintptr(unsafe.Pointer(&ts))
	}

	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexWaitOp,
		uintptr(val),
		tsPtr,
		0,
		0,
	)

	switch errno {
	case 0, unix.EAGAIN, unix.EINTR:
		return nil
	case unix.ETIMEDOUT:
		return ErrFutexTimeout
	default:
		return fmt.Errorf("futex wait failed: %w", errno)
	}
}

// futexWake wakes up to n waiters on addr. Returns the number woken.
func futexWake(addr *uint32, n int) (int, error) {
	r1, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexWakeOp,
		uintptr(n),
		0,
		0,
		0,
	)
	if errno != 0 {
		return 0, fmt.Errorf("futex wake failed: %w", errno)
	}
	return int(r1), nil
}
