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
	"time"

	"github.com/mod/kadcore/identifier"
	"github.com/mod/kadcore/routing"
	"github.com/mod/kadcore/txn"
)

const (
	MsgFindValue     byte = 0x05
	MsgDHTNodeReply  byte = 0x06
	MsgValueReply    byte = 0x08
	MsgStore         byte = 0x09
	MsgRemove        byte = 0x0b
)

// republishOwnInterval is how often locally-originated values are
// re-announced; republishClosestInterval how often values this node
// merely replicates (for which it is the closest known holder) are
// re-announced; expireAfter is 2.5x republishOwnInterval, per spec.
const (
	republishOwnInterval     = 600 * time.Second
	republishClosestInterval = 300 * time.Second
	expireAfter              = 1500 * time.Second
)

// HashtableDeps are the engine collaborators the DistributedHashtable
// registry needs.
type HashtableDeps struct {
	Local  *routing.Node
	Tree   txn.Tree
	Store  *ValueStore
	Sender txn.Sender
	// StartStoreValue launches a StoreValue transaction for key/content.
	StartStoreValue func(key identifier.ID, content []byte)
}

// NewHashtableRegistry builds the context-0x01 registry: msgtypes
// {FVAL, NODE_REPLY, VALUE_REPLY, STOR, REMV}, scheduled tasks
// republish_own (600s), republish_closest (300s), expire_values
// (600s; deletes entries whose last store is at least 2.5x
// republish_own old).
func NewHashtableRegistry(d HashtableDeps) *Registry {
	r := newRegistry(ContextHashtable)

	r.handlers[MsgFindValue] = func(peer *routing.Node, txid uint32, content []byte) (byte, []byte, bool) {
		if len(content) < identifier.Size {
			return 0, nil, false
		}
		var key identifier.ID
		copy(key[:], content[:identifier.Size])
		if entry, ok := d.Store.Fetch(key); ok {
			return MsgValueReply, entry.Content, true
		}
		closest := d.Tree.ClosestTo(key, routing.DefaultK)
		return MsgDHTNodeReply, packNodeRefs(closest), true
	}

	r.handlers[MsgStore] = func(peer *routing.Node, txid uint32, content []byte) (byte, []byte, bool) {
		if len(content) < identifier.Size {
			return 0, nil, false
		}
		var key identifier.ID
		copy(key[:], content[:identifier.Size])
		value := content[identifier.Size:]
		d.Store.Store(key, value, peer.ID, false, "")
		return 0, nil, false // STOR carries no acknowledgement (spec §4.5.3)
	}

	r.handlers[MsgRemove] = func(peer *routing.Node, txid uint32, content []byte) (byte, []byte, bool) {
		if len(content) < identifier.Size {
			return 0, nil, false
		}
		var key identifier.ID
		copy(key[:], content[:identifier.Size])
		d.Store.Remove(key)
		return 0, nil, false
	}

	r.tasks = []*Task{
		{Name: "republish_own", Interval: republishOwnInterval, Run: func(now time.Time) {
			for _, e := range d.Store.Published() {
				if now.Sub(e.LastStore) > republishOwnInterval {
					d.StartStoreValue(e.Key, e.Content)
				}
			}
		}},
		{Name: "republish_closest", Interval: republishClosestInterval, Run: func(now time.Time) {
			for _, e := range d.Store.All() {
				if e.IsLocal {
					continue
				}
				closest := d.Tree.ClosestTo(e.Key, 1)
				if len(closest) > 0 && closest[0].ID == d.Local.ID {
					d.StartStoreValue(e.Key, e.Content)
				}
			}
		}},
		{Name: "expire_values", Interval: republishOwnInterval, Run: func(now time.Time) {
			d.Store.ExpireOlderThan(expireAfter, now)
		}},
	}
	return r
}
