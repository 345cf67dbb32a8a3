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

package ipc

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
)

// TestSerializeDeserializeRoundTrip is spec.md §8's round-trip property:
// Serialize then Deserialize yields a ShMem describing the same region.
func TestSerializeDeserializeRoundTrip(t *testing.T) {
	blk := ShMem{RegionName: "shadow-host-3-shimshmem", Offset: 4096, Size: 65536}
	wire, err := blk.Serialize(128)
	assert.NilError(t, err)
	assert.Equal(t, wire.Block, uint64(128))

	back := Deserialize(wire)
	assert.Equal(t, back.RegionName, blk.RegionName)
	assert.Equal(t, back.Offset, blk.Offset)
	assert.Equal(t, back.Size, blk.Size)
}

func TestSerializeRejectsOverlongName(t *testing.T) {
	blk := ShMem{RegionName: strings.Repeat("x", maxRegionNameLen)}
	_, err := blk.Serialize(0)
	assert.ErrorContains(t, err, "exceeds")
}

func TestMapperCachesRegionByName(t *testing.T) {
	opens := 0
	m := NewMapper(func(name string, size uint64) ([]byte, error) {
		opens++
		return make([]byte, size), nil
	}, nil)

	r1, err := m.Map(ShMem{RegionName: "host-0", Size: 128})
	assert.NilError(t, err)
	r2, err := m.Map(ShMem{RegionName: "host-0", Size: 128})
	assert.NilError(t, err)

	assert.Equal(t, r1, r2)
	assert.Equal(t, opens, 1)
}

func TestRegionUnrefUnlinksAtZero(t *testing.T) {
	unlinked := ""
	m := NewMapper(
		func(name string, size uint64) ([]byte, error) { return make([]byte, size), nil },
		func(name string) error { unlinked = name; return nil },
	)

	r, err := m.Map(ShMem{RegionName: "host-1", Size: 64})
	assert.NilError(t, err)
	r.Ref() // refcount now 2

	assert.NilError(t, r.Unref())
	assert.Equal(t, unlinked, "")

	assert.NilError(t, r.Unref())
	assert.Equal(t, unlinked, "host-1")
}

func TestMapRetrySucceedsAfterTransientNotFound(t *testing.T) {
	attempts := 0
	m := NewMapper(func(name string, size uint64) ([]byte, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("not found yet")
		}
		return make([]byte, size), nil
	}, nil)

	notFound := func(err error) bool { return err != nil }
	r, err := m.MapRetry(ShMem{RegionName: "host-2", Size: 32}, notFound)
	assert.NilError(t, err)
	assert.Equal(t, len(r.Data), 32)
	assert.Equal(t, attempts, 3)
}

func TestMapRetryGivesUpOnPermanentError(t *testing.T) {
	wantErr := errors.New("permanent failure")
	m := NewMapper(func(name string, size uint64) ([]byte, error) {
		return nil, wantErr
	}, nil)

	_, err := m.MapRetry(ShMem{RegionName: "host-3", Size: 32}, func(error) bool { return false })
	assert.ErrorContains(t, err, fmt.Sprintf("mapping region %q", "host-3"))
}
