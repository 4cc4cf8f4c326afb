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

package dispatch

import (
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bytedancegopool "github.com/bytedance/gopkg/util/gopool"

	"github.com/taskarena/corepool/core"
	"github.com/taskarena/corepool/registry"
)

func newTestRegion(t *testing.T, capacity uint32) *core.Region {
	t.Helper()
	_, bytes := core.ComputeSize(capacity)
	data := make([]byte, bytes)
	r, err := core.New(data, capacity)
	require.NoError(t, err)
	return r
}

func TestPoolDrainsRingTasks(t *testing.T) {
	region := newTestRegion(t, 16)
	reg := registry.New()
	pool := New(region, reg, SourceRing, &Option{PollBackoff: time.Millisecond})

	var count int32
	methodID := pool.RegisterHandler("echo", func(taskID, methodID, priority uint32, timestamp uint64) {
		atomic.AddInt32(&count, 1)
	})

	const n = 20
	for i := uint32(0); i < n; i++ {
		slot, err := region.Allocate()
		require.NoError(t, err)
		region.SetMethodID(slot, methodID)
		require.NoError(t, region.RingPush(slot, 1))
	}

	pool.Start(2)
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&count) == n
	}, 2*time.Second, time.Millisecond)
	pool.Stop()

	assert.Equal(t, uint32(0), region.AllocatedCount())
}

func TestPoolDrainsPriorityTasks(t *testing.T) {
	region := newTestRegion(t, 16)
	reg := registry.New()
	pool := New(region, reg, SourcePriority, nil)

	var mu sync.Mutex
	var order []uint32
	methodID := pool.RegisterHandler("job", func(taskID, methodID, priority uint32, timestamp uint64) {
		mu.Lock()
		order = append(order, priority)
		mu.Unlock()
	})

	priorities := []uint32{3, 9, 1, 7}
	for _, p := range priorities {
		slot, err := region.Allocate()
		require.NoError(t, err)
		region.SetMethodID(slot, methodID)
		require.NoError(t, region.PQPush(slot, p))
	}

	pool.Start(1)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == len(priorities)
	}, 2*time.Second, time.Millisecond)
	pool.Stop()

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(order); i++ {
		assert.GreaterOrEqual(t, order[i-1], order[i])
	}
}

func TestPoolPanicRecovery(t *testing.T) {
	region := newTestRegion(t, 4)
	reg := registry.New()
	pool := New(region, reg, SourceRing, &Option{PollBackoff: time.Millisecond})

	var recovered int32
	pool.SetPanicHandler(func(taskID uint32, r interface{}) {
		atomic.AddInt32(&recovered, 1)
	})

	methodID := pool.RegisterHandler("boom", func(taskID, methodID, priority uint32, timestamp uint64) {
		panic("boom")
	})

	slot, err := region.Allocate()
	require.NoError(t, err)
	region.SetMethodID(slot, methodID)
	require.NoError(t, region.RingPush(slot, 1))

	pool.Start(1)
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&recovered) == 1
	}, 2*time.Second, time.Millisecond)
	pool.Stop()

	// the slot is still released even though the handler panicked
	assert.Equal(t, uint32(0), region.AllocatedCount())
}

func TestPoolUnknownMethodIsSkippedNotFatal(t *testing.T) {
	region := newTestRegion(t, 4)
	reg := registry.New()
	pool := New(region, reg, SourceRing, &Option{PollBackoff: time.Millisecond})

	slot, err := region.Allocate()
	require.NoError(t, err)
	region.SetMethodID(slot, 123) // never registered
	require.NoError(t, region.RingPush(slot, 1))

	pool.Start(1)
	require.Eventually(t, func() bool {
		return region.AllocatedCount() == 0
	}, 2*time.Second, time.Millisecond)
	pool.Stop()
}

// TestPoolDrainsSameCountAsBytedanceGoPoolBaseline drains n tasks through a
// Pool, runs n no-op tasks through bytedance/gopkg's own worker pool as a
// baseline, and checks that both ran all n tasks. It does not measure or
// compare timings.
func TestPoolDrainsSameCountAsBytedanceGoPoolBaseline(t *testing.T) {
	const n = 200

	region := newTestRegion(t, 256)
	reg := registry.New()
	pool := New(region, reg, SourceRing, &Option{PollBackoff: time.Millisecond})

	var done int32
	methodID := pool.RegisterHandler("noop", func(taskID, methodID, priority uint32, timestamp uint64) {
		atomic.AddInt32(&done, 1)
	})
	for i := 0; i < n; i++ {
		slot, err := region.Allocate()
		require.NoError(t, err)
		region.SetMethodID(slot, methodID)
		require.NoError(t, region.RingPush(slot, 1))
	}

	pool.Start(4)
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&done) == n
	}, 2*time.Second, time.Millisecond)
	pool.Stop()

	baseline := bytedancegopool.NewPool("dispatch-baseline", math.MaxInt32, bytedancegopool.NewConfig())
	var baselineDone int32
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		baseline.Go(func() {
			atomic.AddInt32(&baselineDone, 1)
			wg.Done()
		})
	}
	wg.Wait()

	assert.Equal(t, int32(n), atomic.LoadInt32(&done))
	assert.Equal(t, int32(n), atomic.LoadInt32(&baselineDone))
}

func TestCurrentWorkersTracksInFlight(t *testing.T) {
	region := newTestRegion(t, 4)
	reg := registry.New()
	pool := New(region, reg, SourceRing, &Option{PollBackoff: time.Millisecond})

	release := make(chan struct{})
	methodID := pool.RegisterHandler("slow", func(taskID, methodID, priority uint32, timestamp uint64) {
		<-release
	})

	slot, err := region.Allocate()
	require.NoError(t, err)
	region.SetMethodID(slot, methodID)
	require.NoError(t, region.RingPush(slot, 1))

	pool.Start(1)
	require.Eventually(t, func() bool {
		return pool.CurrentWorkers() == 1
	}, 2*time.Second, time.Millisecond)

	close(release)
	pool.Stop()
	assert.Equal(t, 0, pool.CurrentWorkers())
}
