//go:build linux || darwin

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
	"os"

	"golang.org/x/sys/unix"
)

// CreateSegment creates a new segment sized to carry contextSize bytes of
// context. Creation is exclusive: a second creator for the same name fails,
// which is what makes initialize-exactly-once hold across processes. The
// header is written but serverReady is left unset; the caller flips it after
// constructing the context in place.
func CreateSegment(name string, contextSize uint64) (*Segment, error) {
	path := segmentPath(name)

	totalSize, contextOff, err := CalculateSegmentLayout(contextSize)
	if err != nil {
		return nil, fmt.Errorf("layout calculation failed: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create segment file %s: %w", path, err)
	}

	cleanup := func() {
		file.Close()
		os.Remove(path)
	}

	if err := file.Truncate(int64(totalSize)); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to resize segment file: %w", err)
	}

	mem, err := mmapFile(file, int(totalSize))
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to mmap segment: %w", err)
	}

	seg := &Segment{File: file, Mem: mem, Path: path}

	h := seg.Header()
	var magic [8]byte
	copy(magic[:], SegmentMagic)
	h.SetMagic(magic)
	h.SetVersion(SegmentVersion)
	h.SetTotalSize(totalSize)
	h.SetContextOffset(contextOff)
	h.SetContextSize(contextSize)
	h.SetServerPID(uint32(unix.Getpid()))

	return seg, nil
}

// OpenSegment maps an existing segment and validates its header. The caller
// still has to check the context size against its own compiled layout before
// touching the context area.
func OpenSegment(name string) (*Segment, error) {
	path := segmentPath(name)

	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open segment file %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat segment file: %w", err)
	}

	size := info.Size()
	if size < SegmentHeaderSize {
		file.Close()
		return nil, fmt.Errorf("segment file too small: %d bytes", size)
	}

	mem, err := mmapFile(file, int(size))
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to mmap segment: %w", err)
	}

	seg := &Segment{File: file, Mem: mem, Path: path}

	if err := ValidateSegmentHeader(seg.Header()); err != nil {
		munmap(mem)
		file.Close()
		return nil, fmt.Errorf("invalid segment header: %w", err)
	}
	if uint64(size) < seg.Header().TotalSize() {
		munmap(mem)
		file.Close()
		return nil, fmt.Errorf("segment file truncated: %d bytes, header declares %d", size, seg.Header().TotalSize())
	}

	seg.Header().SetClientPID(uint32(unix.Getpid()))

	return seg, nil
}

// mmapFile maps the whole file shared and read-write.
func mmapFile(file *os.File, size int) ([]byte, error) {
	data, err := unix.Mmap(int(file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap failed: %w", err)
	}
	return data, nil
}

// munmap unmaps a region mapped by mmapFile.
func munmap(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("munmap failed: %w", err)
	}
	return nil
}
