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

// Package errs collects the sentinel errors returned by the scheduling
// core. Nothing here is ever wrapped or logged by the core itself: every
// operation returns its outcome explicitly and lets the caller decide
// whether to retry, back off, or surface a failure further up.
package errs

import "errors"

var (
	// ErrAlreadyInitialized is returned by Init when the region's magic is
	// already set.
	ErrAlreadyInitialized = errors.New("corepool: region already initialized")

	// ErrNotInitialized is returned when an operation is attempted on a
	// region whose magic/version do not validate.
	ErrNotInitialized = errors.New("corepool: region not initialized")

	// ErrNoFreeSlots is returned by Allocate when the free list is empty,
	// or when CAS retries on the free list are exhausted.
	ErrNoFreeSlots = errors.New("corepool: no free slots")

	// ErrFull is returned by ring Push / pqueue Push when the structure is
	// at capacity.
	ErrFull = errors.New("corepool: full")

	// ErrEmpty is returned by ring Pop / pqueue Pop / Peek when there is
	// nothing to deliver.
	ErrEmpty = errors.New("corepool: empty")

	// ErrSlotBusy is returned by ring Push when the target ring index has
	// not yet been cleared by a consumer. Callers that treat it like
	// ErrFull can do so (both mean "back off"); it is kept distinct so
	// callers can tell the two causes apart. Stats counts both as push
	// failures and does not separate them.
	ErrSlotBusy = errors.New("corepool: ring slot busy")

	// ErrOutOfRange is returned by layout.Init (and so core.New) when the
	// region is smaller than ComputeSize requires. Slot-manipulation
	// functions given a slot index >= capacity do not return it: getters
	// return the field's zero value and setters are a no-op.
	ErrOutOfRange = errors.New("corepool: slot index out of range")
)
