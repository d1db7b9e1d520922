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

// Package kvs implements the shared-memory request/response core of the
// key-value store: a bounded multi-producer multi-consumer ring of requests,
// a ticketed table of response slots, a striped-lock associative store, the
// worker pool that ties them together, and the client handle that submits
// requests and waits on responses.
//
// The ring and the response table are laid out as a single SharedContext
// value that is constructed in place over a mapped region (see package shm)
// and shared by every participating process. The store and the worker pool
// are private to the server process.
//
// All shared types are generic over K and V. Because request and response
// payloads are copied bit-for-bit across address spaces, K and V must be
// fixed-size and pointer-free; InitInPlace and Attach reject pointer-bearing
// shapes at construction.
package kvs
