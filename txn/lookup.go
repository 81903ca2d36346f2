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
	"net"
	"sort"
	"time"

	"gopkg.in/fatih/set.v0"
	"gopkg.in/karalabe/cookiejar.v2/collections/prque"

	"github.com/mod/kadcore/identifier"
	"github.com/mod/kadcore/routing"
)

// Alpha bounds the number of outstanding queries any lookup keeps in
// flight at once.
const Alpha = 3

// NodeRef is one entry of an unpacked FNOD/NODE_REPLY response: an
// endpoint paired with the claimed node id, not yet verified.
type NodeRef struct {
	Addr net.IP
	Port uint16
	ID   identifier.ID
}

// Tree is the subset of the routing tree lookups and scheduled
// maintenance tasks need.
type Tree interface {
	ClosestTo(target identifier.ID, maxNodes int) []*routing.Node
	Add(n *routing.Node)
	GetByID(id identifier.ID) *routing.Node
	AllNodes() []*routing.Node
	Remove(id identifier.ID) *routing.Node
}

// Sender dispatches an outbound query to a peer.
type Sender interface {
	SendExternal(n *routing.Node, txid uint32, msgtype byte, content []byte)
}

// VerifyPeer turns an unpacked NodeRef into a Node, creating a fresh
// Discovered-state entry if this node has not been seen before.
type VerifyPeer interface {
	VerifyPeer(addr net.IP, port uint16, id identifier.ID) *routing.Node
}

type findNodesState int

const (
	fnInitialised findNodesState = iota
	fnQuerying
	fnWaitingResponse
	fnExhausted
	fnTimedOut
)

// FindNodes locates the K closest known nodes to a target identifier
// (spec §4.5.1). The unqueried frontier is a priority queue ordered by
// common-prefix length with target (longest prefix, hence closest
// bucket, polled first; see pushUnqueried); the queried
// set is a plain membership set — both grounded on the same two
// collections (gopkg.in/karalabe/cookiejar.v2/collections/prque,
// gopkg.in/fatih/set.v0) the teacher uses for its own peer/request
// bookkeeping in eth/peer.go and the trie-sync downloader.
type FindNodes struct {
	id        uint32
	target    identifier.ID
	k         int
	state     findNodesState
	closest   []*routing.Node
	byID      map[identifier.ID]*routing.Node
	unqueried *prque.Prque
	queried   *set.Set
	outstanding map[identifier.ID]time.Time
	startedAt time.Time

	tree     Tree
	sender   Sender
	verifier VerifyPeer
	callback func([]*routing.Node)
}

// NewFindNodes creates a FindNodes lookup targeting target. Callback,
// if non-nil, is invoked once with the final closest set when the
// lookup reaches a terminal state.
func NewFindNodes(id uint32, target identifier.ID, k int, tree Tree, sender Sender, verifier VerifyPeer, callback func([]*routing.Node)) *FindNodes {
	return &FindNodes{
		id: id, target: target, k: k, state: fnInitialised,
		byID: make(map[identifier.ID]*routing.Node),
		queried: set.New(), unqueried: prque.New(), outstanding: make(map[identifier.ID]time.Time),
		startedAt: time.Now(), tree: tree, sender: sender, verifier: verifier, callback: callback,
	}
}

// pushUnqueried enqueues n in the unqueried frontier. Priority is its
// shared-prefix length with target: a strictly larger common prefix
// always means a strictly smaller XOR distance, so prque.Pop (which
// returns the maximum) yields nodes closest-first. Full 256-bit
// distance doesn't fit a float32 priority without ruinous precision
// loss; common-prefix length is the bucket-granularity approximation
// Kademlia routing already uses elsewhere, so it costs nothing here.
func (f *FindNodes) pushUnqueried(n *routing.Node) {
	f.byID[n.ID] = n
	f.unqueried.Push(n.ID, float32(identifier.CommonPrefixLen(n.ID, f.target)))
}

// Query starts the lookup: seeds closest/unqueried from the routing
// tree and sends up to Alpha queries.
func (f *FindNodes) Query() {
	if f.state != fnInitialised {
		return
	}
	f.closest = f.tree.ClosestTo(f.target, f.k)
	for _, n := range f.closest {
		f.pushUnqueried(n)
	}
	f.state = fnQuerying
	f.sendQueries()
}

func (f *FindNodes) sendQueries() {
	for len(f.outstanding) < Alpha && f.unqueried.Size() > 0 {
		raw, _ := f.unqueried.Pop()
		id := raw.(identifier.ID)
		peer := f.byID[id]
		f.sender.SendExternal(peer, f.id, 0x03, f.target[:])
		f.outstanding[peer.ID] = time.Now()
		f.queried.Add(peer.ID)
	}
	if f.unqueried.Size() == 0 && len(f.outstanding) > 0 {
		f.state = fnWaitingResponse
	}
	if f.unqueried.Size() == 0 && len(f.outstanding) == 0 {
		f.finish(fnExhausted)
	}
}

// HandleResponse applies an FNOD/NODE_REPLY reply (msgtype 0x04) from
// peer, unpacked into refs. A response is accepted only while peer was
// outstanding; duplicates and unsolicited replies are ignored.
func (f *FindNodes) HandleResponse(peer *routing.Node, refs []NodeRef) {
	if f.Terminal() {
		return
	}
	ts, ok := f.outstanding[peer.ID]
	if !ok {
		return
	}

	for _, r := range refs {
		n := f.verifier.VerifyPeer(r.Addr, r.Port, r.ID)
		f.tree.Add(n)
		if f.queried.Has(n.ID) {
			continue
		}
		if _, already := f.byID[n.ID]; !already {
			f.closest = append(f.closest, n)
		}
	}
	sort.Slice(f.closest, func(i, j int) bool {
		return identifier.Less(f.closest[i].ID, f.closest[j].ID, f.target)
	})
	if len(f.closest) > f.k {
		f.closest = f.closest[:f.k]
	}
	f.unqueried = prque.New()
	f.byID = make(map[identifier.ID]*routing.Node)
	for _, n := range f.closest {
		if !f.queried.Has(n.ID) {
			f.pushUnqueried(n)
		}
	}

	delete(f.outstanding, peer.ID)
	peer.AddRTT(time.Since(ts))

	if f.unqueried.Size() == 0 && len(f.outstanding) == 0 {
		f.finish(fnExhausted)
		return
	}
	if len(f.outstanding) < Alpha && f.unqueried.Size() > 0 {
		f.state = fnQuerying
		f.sendQueries()
	}
}

func (f *FindNodes) finish(state findNodesState) {
	for id := range f.outstanding {
		if n := f.tree.GetByID(id); n != nil {
			n.Timeout()
		}
	}
	f.outstanding = map[identifier.ID]time.Time{}
	f.state = state
	if f.callback != nil {
		f.callback(f.closest)
	}
}

// Timeout transitions the lookup to timed_out if it has not already
// reached a terminal state; idempotent.
func (f *FindNodes) Timeout() {
	if f.Terminal() {
		return
	}
	f.finish(fnTimedOut)
}

// Terminal reports whether the lookup has finished.
func (f *FindNodes) Terminal() bool {
	return f.state == fnExhausted || f.state == fnTimedOut
}

// StartedAt returns the lookup's creation time.
func (f *FindNodes) StartedAt() time.Time { return f.startedAt }

// Closest returns the current best-K result set.
func (f *FindNodes) Closest() []*routing.Node { return f.closest }
