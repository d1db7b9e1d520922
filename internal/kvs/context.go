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
	"fmt"
	"reflect"
	"unsafe"
)

var (
	// ErrRegionTooSmall indicates the mapped region cannot hold the context.
	ErrRegionTooSmall = errors.New("region too small for shared context")

	// ErrRegionMisaligned indicates the region base is not aligned for the
	// context's atomic words.
	ErrRegionMisaligned = errors.New("region not 64-byte aligned")

	// ErrUnsharableType indicates K or V carries pointers and cannot cross
	// address spaces.
	ErrUnsharableType = errors.New("type contains pointers and cannot live in shared memory")
)

// SharedContext is the complete shared-memory object: the request ring
// followed by the response table. It is never allocated with new; the server
// constructs it in place over the segment's context area exactly once, and
// clients attach to the same bytes.
type SharedContext[K comparable, V any] struct {
	ring  Ring[K, V]
	table ResponseTable[V]
}

// Ring returns the request ring.
func (c *SharedContext[K, V]) Ring() *Ring[K, V] {
	return &c.ring
}

// Table returns the response table.
func (c *SharedContext[K, V]) Table() *ResponseTable[V] {
	return &c.table
}

// ContextSize returns the byte size of the shared context for a given K, V
// instantiation. External collaborators size the region with it.
func ContextSize[K comparable, V any]() uint64 {
	return uint64(unsafe.Sizeof(SharedContext[K, V]{}))
}

// InitInPlace constructs a fresh shared context over mem. It zeroes the
// context bytes, so the ring cursors and every response slot start in their
// ground state. Only the region's creator may call this, and only once;
// attaching processes use Attach instead, which is what prevents double-init
// from clobbering live cursors.
func InitInPlace[K comparable, V any](mem []byte) (*SharedContext[K, V], error) {
	ctx, err := overlay[K, V](mem)
	if err != nil {
		return nil, err
	}
	clear(mem[:ContextSize[K, V]()])
	return ctx, nil
}

// Attach overlays an already-initialized shared context onto mem without
// disturbing its state.
func Attach[K comparable, V any](mem []byte) (*SharedContext[K, V], error) {
	return overlay[K, V](mem)
}

func overlay[K comparable, V any](mem []byte) (*SharedContext[K, V], error) {
	size := ContextSize[K, V]()
	if uint64(len(mem)) < size {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrRegionTooSmall, size, len(mem))
	}
	base := unsafe.Pointer(unsafe.SliceData(mem))
	if uintptr(base)%64 != 0 {
		return nil, ErrRegionMisaligned
	}
	if err := checkSharable(reflect.TypeFor[K]()); err != nil {
		return nil, fmt.Errorf("key %w", err)
	}
	if err := checkSharable(reflect.TypeFor[V]()); err != nil {
		return nil, fmt.Errorf("value %w", err)
	}
	return (*SharedContext[K, V])(base), nil
}

// checkSharable rejects shapes that embed process-local references. Values
// in the region must be bit-copyable: a pointer, slice header, or string
// header from one process is garbage in another.
func checkSharable(t reflect.Type) error {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return nil
	case reflect.Array:
		return checkSharable(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if err := checkSharable(t.Field(i).Type); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: kind %s", ErrUnsharableType, t.Kind())
	}
}
