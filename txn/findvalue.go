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

package txn

import (
	"time"

	"github.com/mod/kadcore/identifier"
	"github.com/mod/kadcore/routing"
)

// FindValue has the same shape as FindNodes plus one additional
// terminal state, found, entered when a VALUE_REPLY arrives (spec
// §4.5.2). Node-reply traffic (msgtype 0x06) is handled identically to
// FindNodes by delegating to an embedded lookup.
type FindValue struct {
	*FindNodes
	key   string // the original user key, for the value-store callback
	found bool
	value []byte
	origin *routing.Node

	onFound func(value []byte, origin *routing.Node)
}

// NewFindValue creates a FindValue lookup. target must already be
// id_for_key(key); key is retained only so the caller can record the
// origin of a successful reply against the original lookup key.
func NewFindValue(id uint32, key string, target identifier.ID, k int, tree Tree, sender Sender, verifier VerifyPeer, onFound func([]byte, *routing.Node), onExhausted func([]*routing.Node)) *FindValue {
	fv := &FindValue{key: key, onFound: onFound}
	fv.FindNodes = NewFindNodes(id, target, k, tree, sender, verifier, onExhausted)
	return fv
}

// HandleValue applies a VALUE_REPLY (msgtype 0x08): the content is
// delivered via onFound and the transaction enters the found state.
func (fv *FindValue) HandleValue(peer *routing.Node, content []byte) {
	if fv.Terminal() {
		return
	}
	ts, ok := fv.outstanding[peer.ID]
	if !ok {
		return
	}
	delete(fv.outstanding, peer.ID)
	peer.AddRTT(time.Since(ts))

	fv.found = true
	fv.value = content
	fv.origin = peer
	fv.state = fnExhausted // reuse FindNodes' terminal bookkeeping for outstanding cleanup
	for id := range fv.outstanding {
		if n := fv.tree.GetByID(id); n != nil {
			n.Timeout()
		}
	}
	fv.outstanding = map[identifier.ID]time.Time{}
	if fv.onFound != nil {
		fv.onFound(content, peer)
	}
}

// Found reports whether a value reply was received.
func (fv *FindValue) Found() bool { return fv.found }

// Value returns the discovered value and its originating peer, valid
// only once Found() is true.
func (fv *FindValue) Value() ([]byte, *routing.Node) { return fv.value, fv.origin }
