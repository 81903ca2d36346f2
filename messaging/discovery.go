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
	"math/rand"
	"time"

	"github.com/mod/kadcore/identifier"
	"github.com/mod/kadcore/routing"
	"github.com/mod/kadcore/txn"
)

const (
	MsgPing      byte = 0x01
	MsgPong      byte = 0x02
	MsgFindNodes byte = 0x03
	MsgNodeReply byte = 0x04
)

// DiscoveryDeps are the engine collaborators the Discovery registry
// needs to answer peer queries and run its maintenance tasks.
type DiscoveryDeps struct {
	Local  *routing.Node
	Tree   txn.Tree
	TxMap  *txn.TxMap
	Sender txn.Sender
	Verify txn.VerifyPeer
	// StartFindNodes launches a FindNodes lookup and returns its txid,
	// used by the poll_neighbours and poll_random_zone tasks.
	StartFindNodes func(target identifier.ID) uint32
	// StartPing launches a Ping transaction against peer.
	StartPing func(peer *routing.Node)
}

// NewDiscoveryRegistry builds the context-0x00 registry: msgtypes
// {PING, PONG, FNOD, NODE_REPLY}, scheduled tasks poll_neighbours
// (120s), poll_random_zone (300s), verify_peers (61s), reap_peers (62s).
func NewDiscoveryRegistry(d DiscoveryDeps) *Registry {
	r := newRegistry(ContextDiscovery)

	r.handlers[MsgPing] = func(peer *routing.Node, txid uint32, content []byte) (byte, []byte, bool) {
		return MsgPong, nil, true
	}
	r.handlers[MsgFindNodes] = func(peer *routing.Node, txid uint32, content []byte) (byte, []byte, bool) {
		var target identifier.ID
		if len(content) >= identifier.Size {
			copy(target[:], content[:identifier.Size])
		}
		closest := d.Tree.ClosestTo(target, routing.DefaultK)
		return MsgNodeReply, packNodeRefs(closest), true
	}

	r.tasks = []*Task{
		{Name: "poll_neighbours", Interval: 120 * time.Second, Run: func(now time.Time) {
			d.StartFindNodes(d.Local.ID)
		}},
		{Name: "poll_random_zone", Interval: 300 * time.Second, Run: func(now time.Time) {
			d.StartFindNodes(identifier.Random())
		}},
		{Name: "verify_peers", Interval: 61 * time.Second, Run: func(now time.Time) {
			for _, peer := range pickRandom(d.Tree.AllNodes(), 3) {
				d.StartPing(peer)
			}
		}},
		{Name: "reap_peers", Interval: 62 * time.Second, Run: func(now time.Time) {
			for _, peer := range d.Tree.AllNodes() {
				if peer.IsFailed() {
					d.Tree.Remove(peer.ID)
				}
			}
		}},
	}
	return r
}

func pickRandom(nodes []*routing.Node, n int) []*routing.Node {
	if len(nodes) <= n {
		return nodes
	}
	shuffled := append([]*routing.Node(nil), nodes...)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	return shuffled[:n]
}
