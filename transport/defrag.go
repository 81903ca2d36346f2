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

package transport

import (
	"bytes"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	metrics "github.com/mod/kadcore/metrics"
)

type reassembly struct {
	msgType byte
	slots   [][]byte // nil until that fragment index has arrived
	filled  int
}

// DefragMap reassembles fragmented payloads keyed by transaction id. An
// entry exists only while fragments are outstanding; it is evicted
// automatically (LRU) if a sender never completes it, bounding memory
// under a hostile or buggy peer, which the spec leaves unaddressed but
// the engine's long-running process needs.
type DefragMap struct {
	mu    sync.Mutex
	cache *lru.Cache
}

// NewDefragMap creates a map bounded to capacity outstanding txids.
func NewDefragMap(capacity int) *DefragMap {
	cache, _ := lru.New(capacity)
	return &DefragMap{cache: cache}
}

// Add places one fragment into its reassembly slot. It returns the
// concatenated content and true once every fragment for that txid has
// arrived, discarding the slot; otherwise it returns nil, false.
// Unfragmented messages (LastIndex == 0, Index == 0) are delivered
// immediately without allocating a slot.
func (d *DefragMap) Add(f *Fragment) ([]byte, bool) {
	if f.LastIndex == 0 && f.Index == 0 {
		return f.Content, true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var r *reassembly
	if v, ok := d.cache.Get(f.TxID); ok {
		r = v.(*reassembly)
	} else {
		r = &reassembly{msgType: f.MsgType, slots: make([][]byte, int(f.LastIndex)+1)}
		d.cache.Add(f.TxID, r)
		metrics.DefragPending.Update(int64(d.cache.Len()))
	}

	if int(f.Index) >= len(r.slots) {
		return nil, false
	}
	if r.slots[f.Index] == nil {
		r.slots[f.Index] = f.Content
		r.filled++
	}
	if r.filled < len(r.slots) {
		return nil, false
	}

	d.cache.Remove(f.TxID)
	metrics.DefragPending.Update(int64(d.cache.Len()))

	var buf bytes.Buffer
	for _, s := range r.slots {
		buf.Write(s)
	}
	return buf.Bytes(), true
}

// Pending reports how many txids currently have an incomplete
// reassembly outstanding.
func (d *DefragMap) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cache.Len()
}
