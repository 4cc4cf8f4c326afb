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

// Package registry gives the slot descriptor's opaque method_id field
// (§3, slot offset 24) a concrete host-side producer: callers register a
// method name once and stamp the returned id into descriptors via
// core.Region.SetMethodID, and Name resolves an id back to its method name.
// dispatch uses the registry only to assign ids; its panic log reports the
// slot index, not the method name.
//
// A registry is a small, mutable, low-cardinality table that grows one
// name at a time over a process's lifetime — the opposite of the bulk-
// built, then-read-only traffic container/strmap.StrMap is designed for
// (see that package's own comment: "readonly after construction"). A
// plain map guarded by the registry's own sync.RWMutex, the same shape
// concurrency/gopool.GoPool uses for its worker bookkeeping, serves this
// job directly.
package registry

import "sync"

// Registry maps method names to the method_id stamped into task
// descriptors, and back. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]uint32
	names  []string
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{byName: make(map[string]uint32)}
}

// Register returns the method_id for name, assigning a new one the first
// time name is seen. Ids are assigned sequentially starting at 0 and never
// change once assigned, so they are safe to stamp into long-lived
// descriptors.
func (r *Registry) Register(name string) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byName[name]; ok {
		return id
	}

	id := uint32(len(r.names))
	r.names = append(r.names, name)
	r.byName[name] = id
	return id
}

// Lookup returns the method_id for name, if it has been registered.
func (r *Registry) Lookup(name string) (uint32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	return id, ok
}

// Name returns the method name for id, if it has been registered.
func (r *Registry) Name(id uint32) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.names) {
		return "", false
	}
	return r.names[id], true
}

// Len returns the number of distinct registered method names.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}
