/*
 * Copyright 2024 CloudWeGo Authors
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
 */

package arena

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskarena/corepool/core"
	"github.com/taskarena/corepool/layout"
)

func TestAllocateSizeAndAlignment(t *testing.T) {
	h, capacity := Allocate(100)
	defer h.Release()

	assert.Equal(t, uint32(128), capacity) // rounded up to a power of two

	wantCap, wantBytes := layout.ComputeSize(100)
	assert.Equal(t, wantCap, capacity)
	assert.Equal(t, wantBytes, uint64(len(h.Region())))

	addr := uintptr(unsafe.Pointer(&h.Region()[0]))
	assert.Equal(t, uintptr(0), addr%alignment)
}

func TestAllocateZeroInitialized(t *testing.T) {
	h, _ := Allocate(16)
	defer h.Release()

	for _, b := range h.Region() {
		require.Equal(t, byte(0), b)
	}
}

func TestAllocatedRegionUsableByCore(t *testing.T) {
	h, capacity := Allocate(8)
	defer h.Release()

	r, err := core.New(h.Region(), capacity)
	require.NoError(t, err)

	slot, err := r.Allocate()
	require.NoError(t, err)
	assert.True(t, r.IsAllocated(slot))
}

func TestReleaseClearsHandle(t *testing.T) {
	h, _ := Allocate(8)
	h.Release()
	assert.Nil(t, h.Region())
}
