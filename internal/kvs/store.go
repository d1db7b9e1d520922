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
	"hash/maphash"
	"runtime"
	"sync"
)

// bucketsPerStripe sizes the bucket array relative to the stripe count.
const bucketsPerStripe = 10

type entry[K comparable, V any] struct {
	key   K
	value V
}

// Map is the striped-lock associative store executing requests on the
// server side. Keys are partitioned into stripes by hash; each stripe owns
// a disjoint set of buckets and a mutex serializing every operation on keys
// that hash to it. Operations on different stripes run concurrently.
//
// The map lives in ordinary server memory, never in the shared region.
type Map[K comparable, V any] struct {
	stripes []sync.Mutex
	buckets [][]entry[K, V]
	seed    maphash.Seed
}

// NewMap creates a store with stripeCount lock stripes and ten buckets per
// stripe. stripeCount <= 0 defaults to the hardware parallelism.
func NewMap[K comparable, V any](stripeCount int) *Map[K, V] {
	if stripeCount <= 0 {
		stripeCount = runtime.NumCPU()
	}
	return &Map[K, V]{
		stripes: make([]sync.Mutex, stripeCount),
		buckets: make([][]entry[K, V], stripeCount*bucketsPerStripe),
		seed:    maphash.MakeSeed(),
	}
}

func (m *Map[K, V]) locate(key K) (stripe, bucket uint64) {
	h := maphash.Comparable(m.seed, key)
	return h % uint64(len(m.stripes)), h % uint64(len(m.buckets))
}

// Insert adds key only if absent. It returns false, leaving the existing
// value untouched, when the key is already present.
func (m *Map[K, V]) Insert(key K, value V) bool {
	stripe, bucket := m.locate(key)
	m.stripes[stripe].Lock()
	defer m.stripes[stripe].Unlock()

	for i := range m.buckets[bucket] {
		if m.buckets[bucket][i].key == key {
			return false
		}
	}
	m.buckets[bucket] = append(m.buckets[bucket], entry[K, V]{key: key, value: value})
	return true
}

// Upsert sets key to value, inserting or overwriting as needed.
func (m *Map[K, V]) Upsert(key K, value V) {
	stripe, bucket := m.locate(key)
	m.stripes[stripe].Lock()
	defer m.stripes[stripe].Unlock()

	for i := range m.buckets[bucket] {
		if m.buckets[bucket][i].key == key {
			m.buckets[bucket][i].value = value
			return
		}
	}
	m.buckets[bucket] = append(m.buckets[bucket], entry[K, V]{key: key, value: value})
}

// Find returns a copy of the value for key, if present.
func (m *Map[K, V]) Find(key K) (V, bool) {
	stripe, bucket := m.locate(key)
	m.stripes[stripe].Lock()
	defer m.stripes[stripe].Unlock()

	for i := range m.buckets[bucket] {
		if m.buckets[bucket][i].key == key {
			return m.buckets[bucket][i].value, true
		}
	}
	var zero V
	return zero, false
}

// Erase removes key, reporting whether it was present. Chain order of the
// remaining entries is preserved.
func (m *Map[K, V]) Erase(key K) bool {
	stripe, bucket := m.locate(key)
	m.stripes[stripe].Lock()
	defer m.stripes[stripe].Unlock()

	chain := m.buckets[bucket]
	for i := range chain {
		if chain[i].key == key {
			m.buckets[bucket] = append(chain[:i], chain[i+1:]...)
			return true
		}
	}
	return false
}

// Size returns the exact entry count. All stripe locks are taken in index
// order, so concurrent Size calls cannot deadlock against each other.
func (m *Map[K, V]) Size() int {
	for i := range m.stripes {
		m.stripes[i].Lock()
	}
	defer func() {
		for i := range m.stripes {
			m.stripes[i].Unlock()
		}
	}()

	total := 0
	for i := range m.buckets {
		total += len(m.buckets[i])
	}
	return total
}
