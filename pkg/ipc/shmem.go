// Copyright 2024 The Shadow-Go Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ipc implements the shared-memory IPC channel (spec.md §4.1, C2):
// named shared-memory regions, the ShMem block descriptor that crosses the
// process boundary, and the single-slot alternating-protocol Cell used by
// one shim thread and its paired shadow worker.
package ipc

import (
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
)

// maxRegionNameLen is the fixed ASCII name length from spec.md §3.
const maxRegionNameLen = 256

// ShMem identifies a block within a named shared-memory region: the region
// name, the block's byte offset, and the region's byte length (the block's
// own length travels separately, as SerializedBlock.Block). It is the thing
// that gets serialized across the process boundary (spec.md §6's wire
// format).
type ShMem struct {
	RegionName string
	Offset     uint64
	Size       uint64
}

// SerializedBlock is the fixed-size wire form from spec.md §6.
type SerializedBlock struct {
	Name   [maxRegionNameLen]byte
	Offset uint64
	Size   uint64
	Block  uint64
}

// Serialize encodes blk for transfer across the process boundary. blockLen
// is the byte length of the logical block carried within the region (as
// opposed to Size, the region's total mapped length).
func (blk ShMem) Serialize(blockLen uint64) (SerializedBlock, error) {
	if len(blk.RegionName) >= maxRegionNameLen {
		return SerializedBlock{}, fmt.Errorf("ipc: region name %q exceeds %d bytes", blk.RegionName, maxRegionNameLen-1)
	}
	var out SerializedBlock
	copy(out.Name[:], blk.RegionName)
	out.Offset = blk.Offset
	out.Size = blk.Size
	out.Block = blockLen
	return out, nil
}

// Deserialize decodes a SerializedBlock back into a ShMem descriptor.
func Deserialize(s SerializedBlock) ShMem {
	n := 0
	for n < len(s.Name) && s.Name[n] != 0 {
		n++
	}
	return ShMem{
		RegionName: string(s.Name[:n]),
		Offset:     s.Offset,
		Size:       s.Size,
	}
}

// Region is a mapped shared-memory region, ref-counted so that the last
// unref also unlinks the backing file (spec.md §5, "Resource acquisition").
type Region struct {
	Name string
	Data []byte

	mu       sync.Mutex
	refcount int
	unlinker func(name string) error
}

// Ref increments the region's reference count.
func (r *Region) Ref() {
	r.mu.Lock()
	r.refcount++
	r.mu.Unlock()
}

// Unref decrements the region's reference count and, if it reaches zero,
// unlinks the backing shared-memory file.
func (r *Region) Unref() error {
	r.mu.Lock()
	r.refcount--
	n := r.refcount
	r.mu.Unlock()
	if n > 0 {
		return nil
	}
	if r.unlinker != nil {
		return r.unlinker(r.Name)
	}
	return nil
}

// Mapper maps named shared-memory regions on first use by a receiving
// process and caches the mapping, per spec.md §3: "the receiver maps the
// named region on first deserialization and caches the mapping."
type Mapper struct {
	mu      sync.Mutex
	regions map[string]*Region
	open    func(name string, size uint64) ([]byte, error)
	unlink  func(name string) error
}

// NewMapper returns a Mapper that uses open to map a region by name and
// unlink to remove it when its last reference is dropped. Tests and the
// in-process scheduler (where shim and shadow share a single address space)
// can pass an in-memory open/unlink pair instead of real shm_open/shm_unlink
// calls.
func NewMapper(open func(name string, size uint64) ([]byte, error), unlink func(name string) error) *Mapper {
	return &Mapper{regions: make(map[string]*Region), open: open, unlink: unlink}
}

// mapRetryPolicy bounds the backoff used when a region named by a
// just-forked stub process isn't visible yet: a benign create/attach race,
// not a fatal condition, so a few short retries are appropriate before
// giving up.
func mapRetryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Microsecond
	b.MaxInterval = 20 * time.Millisecond
	b.MaxElapsedTime = 200 * time.Millisecond
	return b
}

// Map returns the Region for blk, mapping and caching it on first use. A
// map failure is fatal per spec.md §7 ("Shared-memory mapping failures are
// fatal"); callers that can tolerate a transient race (the region not yet
// existing right after a fork) should use MapRetry instead.
func (m *Mapper) Map(blk ShMem) (*Region, error) {
	m.mu.Lock()
	if r, ok := m.regions[blk.RegionName]; ok {
		m.mu.Unlock()
		r.Ref()
		return r, nil
	}
	m.mu.Unlock()

	data, err := m.open(blk.RegionName, blk.Size)
	if err != nil {
		return nil, fmt.Errorf("ipc: mapping region %q: %w", blk.RegionName, err)
	}
	r := &Region{Name: blk.RegionName, Data: data, refcount: 1, unlinker: m.unlink}

	m.mu.Lock()
	if existing, ok := m.regions[blk.RegionName]; ok {
		m.mu.Unlock()
		existing.Ref()
		return existing, nil
	}
	m.regions[blk.RegionName] = r
	m.mu.Unlock()
	return r, nil
}

// MapRetry maps blk, retrying with backoff if the region isn't visible yet
// (the stub-just-forked race). It never retries other error classes.
func (m *Mapper) MapRetry(blk ShMem, notFound func(error) bool) (*Region, error) {
	var r *Region
	op := func() error {
		var err error
		r, err = m.Map(blk)
		if err != nil && notFound != nil && notFound(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}
	if err := backoff.Retry(op, mapRetryPolicy()); err != nil {
		return nil, err
	}
	return r, nil
}
