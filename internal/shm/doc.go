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

// Package shm manages the shared memory segment that carries the key-value
// store's request ring and response table between processes.
//
// A segment is a memory-mapped file (under /dev/shm where available) with a
// fixed 128-byte header followed by an opaque context area whose shape is
// owned by the kvs package. The server creates and initializes a segment
// exactly once; clients attach to an existing segment after validating the
// header. Readiness between the two sides is signalled through atomic words
// in the header, with futex-based wakeups on Linux.
package shm
