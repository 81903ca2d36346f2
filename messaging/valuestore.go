// Copyright 2015 The kadcore Authors
// This file is part of the kadcore library.
//
// The kadcore library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The kadcore library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the kadcore library. If not, see <http://www.gnu.org/licenses/>.

package messaging

import (
	"sync"
	"time"

	"github.com/mod/kadcore/identifier"
)

// ValueEntry is one stored key/value pair, keyed on the wire by
// id_for_key(key) rather than the plaintext key.
type ValueEntry struct {
	Key       identifier.ID
	Content   []byte
	Origin    identifier.ID // the node that originally published it
	IsLocal   bool          // true if this node is the originator
	LastStore time.Time
	Context   string // opaque trailing field, carried for round-trip fidelity only
}

// ValueStore is the DistributedHashtable context's local value table:
// backs FVAL/STOR/REMV on the wire, and the PUBL/HASH client commands.
type ValueStore struct {
	mu     sync.Mutex
	values map[identifier.ID]*ValueEntry
}

// NewValueStore creates an empty value table.
func NewValueStore() *ValueStore {
	return &ValueStore{values: make(map[identifier.ID]*ValueEntry)}
}

// Store records content under key, stamping LastStore to now. context is
// the opaque namespace field carried on the wire (spec §9 Open Questions);
// it is never interpreted, only preserved for HASH/PUBL replies.
func (v *ValueStore) Store(key identifier.ID, content []byte, origin identifier.ID, isLocal bool, context string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.values[key] = &ValueEntry{Key: key, Content: content, Origin: origin, IsLocal: isLocal, LastStore: time.Now(), Context: context}
}

// Fetch returns the entry stored under key, if any.
func (v *ValueStore) Fetch(key identifier.ID) (*ValueEntry, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	e, ok := v.values[key]
	return e, ok
}

// Remove deletes key unconditionally.
func (v *ValueStore) Remove(key identifier.ID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.values, key)
}

// All returns every entry currently held, local or replicated.
func (v *ValueStore) All() []*ValueEntry {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]*ValueEntry, 0, len(v.values))
	for _, e := range v.values {
		out = append(out, e)
	}
	return out
}

// Published returns only the entries this node originated.
func (v *ValueStore) Published() []*ValueEntry {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []*ValueEntry
	for _, e := range v.values {
		if e.IsLocal {
			out = append(out, e)
		}
	}
	return out
}

// ExpireOlderThan deletes every entry whose LastStore age is at least
// cutoff, returning how many were removed.
func (v *ValueStore) ExpireOlderThan(cutoff time.Duration, now time.Time) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for k, e := range v.values {
		if now.Sub(e.LastStore) >= cutoff {
			delete(v.values, k)
			n++
		}
	}
	return n
}
