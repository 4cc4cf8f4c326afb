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

// Package dispatch is a worker-side pop/run loop over a core.Region. The
// scheduling core itself never blocks or spawns anything (§5); dispatch is
// the caller-side collaborator §1 calls out as external to the core (the
// "worker handler, pool dispatcher") that exercises allocate/push/pop/
// release end to end.
//
// Polling the core and running the popped task are split across two
// mechanisms: a fixed set of poller goroutines drain the ring or heap, and
// each popped task is handed off to a concurrency/gopool.GoPool, the
// upstream cloudwego/gopkg elastic goroutine pool, to actually run. This
// keeps a slow handler from blocking the pollers behind it and reuses
// gopool's own worker lifecycle (idle reaping, max-age, CurrentWorkers,
// panic recovery default) instead of reimplementing it.
package dispatch

import (
	"context"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cloudwego/gopkg/concurrency/gopool"
	"github.com/taskarena/corepool/core"
	"github.com/taskarena/corepool/registry"
)

// Source selects which of the core's two queues a Pool drains.
type Source int

const (
	// SourceRing drains the FIFO ring buffer (ring_pop).
	SourceRing Source = iota
	// SourcePriority drains the binary heap (pq_pop).
	SourcePriority
)

// Handler runs the task carried by one slot. taskID, methodID, priority and
// timestamp are the descriptor fields read before Release is called.
type Handler func(taskID, methodID, priority uint32, timestamp uint64)

// Option configures a Pool.
type Option struct {
	// PollBackoff is how long a poller sleeps after observing Empty before
	// polling again. The core itself never blocks (§5); backoff is entirely
	// a caller-side policy.
	PollBackoff time.Duration

	// GoPool configures the underlying gopool.GoPool that runs popped
	// tasks. Nil uses gopool.DefaultOption().
	GoPool *gopool.Option
}

// DefaultOption returns the default Option.
func DefaultOption() *Option {
	return &Option{PollBackoff: time.Millisecond}
}

type slotKey struct{}

// Pool drains a core.Region's ring or priority queue with a fixed set of
// poller goroutines, dispatching each slot to the handler registered for
// its method_id through a gopool.GoPool.
type Pool struct {
	region   *core.Region
	registry *registry.Registry
	source   Source
	option   Option
	gp       *gopool.GoPool

	mu       sync.RWMutex
	handlers map[uint32]Handler

	panicHandler func(slot uint32, r interface{})

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Pool draining source from region, resolving method ids
// through reg.
func New(region *core.Region, reg *registry.Registry, source Source, o *Option) *Pool {
	if o == nil {
		o = DefaultOption()
	}
	p := &Pool{
		region:   region,
		registry: reg,
		source:   source,
		option:   *o,
		gp:       gopool.NewGoPool("corepool-dispatch", o.GoPool),
		handlers: make(map[uint32]Handler),
		stopCh:   make(chan struct{}),
	}
	p.gp.SetPanicHandler(p.handleGopoolPanic)
	return p
}

// SetPanicHandler sets a func for handling panics raised by a Handler. f
// receives the slot index of the task that panicked (not its task id) and
// the recovered value.
//
// By default, Pool logs the panic and stack via log.Printf, the same
// default gopool.GoPool uses.
func (p *Pool) SetPanicHandler(f func(slot uint32, r interface{})) {
	p.panicHandler = f
}

func (p *Pool) handleGopoolPanic(ctx context.Context, r interface{}) {
	slot, _ := ctx.Value(slotKey{}).(uint32)
	if p.panicHandler != nil {
		p.panicHandler(slot, r)
	} else {
		log.Printf("corepool: panic running slot %d: %v: %s", slot, r, debug.Stack())
	}
}

// RegisterHandler registers h under name, returning the method_id callers
// should stamp into descriptors with core.Region.SetMethodID.
func (p *Pool) RegisterHandler(name string, h Handler) uint32 {
	id := p.registry.Register(name)
	p.mu.Lock()
	p.handlers[id] = h
	p.mu.Unlock()
	return id
}

// Start launches n poller goroutines.
func (p *Pool) Start(n int) {
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.runPoller()
	}
}

// Stop signals all pollers to exit, waits for them to stop, and waits for
// any task still running in the gopool to finish.
func (p *Pool) Stop() {
	close(p.stopCh)
	p.wg.Wait()
	for p.gp.CurrentWorkers() > 0 {
		time.Sleep(time.Millisecond)
	}
}

// CurrentWorkers returns the number of gopool workers currently running a
// task.
func (p *Pool) CurrentWorkers() int {
	return p.gp.CurrentWorkers()
}

func (p *Pool) runPoller() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		slot, err := p.pop()
		if err != nil {
			// Empty (or Full, which never happens on pop): back off.
			// The core never blocks; waiting is entirely our policy.
			select {
			case <-p.stopCh:
				return
			case <-time.After(p.option.PollBackoff):
			}
			continue
		}

		ctx := context.WithValue(context.Background(), slotKey{}, slot)
		p.gp.CtxGo(ctx, func() { p.runTask(slot) })
	}
}

func (p *Pool) pop() (uint32, error) {
	if p.source == SourceRing {
		entry, err := p.region.RingPop()
		if err != nil {
			return 0, err
		}
		return core.UnpackSlot(entry), nil
	}
	slot, err := p.region.PQPop()
	if err != nil {
		return 0, err
	}
	return slot, nil
}

func (p *Pool) runTask(slot uint32) {
	defer p.region.Release(slot)

	methodID := p.region.GetMethodID(slot)
	p.mu.RLock()
	h := p.handlers[methodID]
	p.mu.RUnlock()
	if h == nil {
		return
	}
	h(p.region.GetTaskID(slot), methodID, p.region.GetPriority(slot), p.region.GetTimestamp(slot))
}
