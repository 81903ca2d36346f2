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

package routing

import (
	"net"
	"sort"

	"github.com/mod/kadcore/identifier"
	"github.com/mod/kadcore/netutil"
)

// DefaultK is the default bin capacity and closest-set size (spec
// glossary "K").
const DefaultK = 8

// RoutingBin is an insertion-ordered, capacity-K list of Nodes at a leaf
// of the routing tree, a.k.a. a k-bucket, plus an overflow replacement
// cache of the same capacity. No two entries ever share a node_id.
type RoutingBin struct {
	capacity int
	order    []identifier.ID // insertion order, oldest first
	nodes    map[identifier.ID]*Node

	// replacements is a FIFO (oldest first) of overflow candidates,
	// capped at capacity. Per spec.md §9 Open Questions, eviction is
	// FIFO by insertion time with a hard cap; it is not the source's
	// inconsistent popitem()/size-check behavior.
	replacements []*Node

	ips      netutil.DistinctNetSet
	ipLimits bool
}

// NewRoutingBin creates an empty bin with the given capacity.
func NewRoutingBin(capacity int) *RoutingBin {
	return &RoutingBin{
		capacity: capacity,
		nodes:    make(map[identifier.ID]*Node, capacity),
	}
}

// WithIPLimit enables per-subnet diversity limiting on this bin (SPEC_FULL
// §3 "IP diversity"), rejecting inserts past `limit` members sharing the
// `subnetBits`-bit network prefix. Off by default.
func (b *RoutingBin) WithIPLimit(subnetBits, limit uint) {
	b.ips = netutil.DistinctNetSet{Subnet: subnetBits, Limit: limit}
	b.ipLimits = true
}

// Len returns the number of active (non-replacement) nodes.
func (b *RoutingBin) Len() int { return len(b.order) }

// Remaining returns the free active-node capacity.
func (b *RoutingBin) Remaining() int { return b.capacity - len(b.order) }

// GetByID returns the node with the given id, or nil.
func (b *RoutingBin) GetByID(id identifier.ID) *Node {
	return b.nodes[id]
}

// GetByAddr performs a leaf-local scan for a node at the given endpoint.
func (b *RoutingBin) GetByAddr(addr net.IP, port uint16) *Node {
	for _, id := range b.order {
		n := b.nodes[id]
		if n.Address.Equal(addr) && n.Port == port {
			return n
		}
	}
	return nil
}

// All returns all active nodes in insertion order (oldest first).
func (b *RoutingBin) All() []*Node {
	out := make([]*Node, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.nodes[id])
	}
	return out
}

// NodeIDs returns the ids of all active nodes.
func (b *RoutingBin) NodeIDs() []identifier.ID {
	out := make([]identifier.ID, len(b.order))
	copy(out, b.order)
	return out
}

// Push inserts a node into the bin. If the bin is full the node overflows
// into the replacement cache instead (most-recent at the tail, FIFO
// eviction once the cache itself overflows).
func (b *RoutingBin) Push(n *Node) {
	if _, exists := b.nodes[n.ID]; exists {
		return
	}
	if b.Remaining() > 0 {
		if b.ipLimits && !b.ips.Add(n.Address) {
			b.pushReplacement(n)
			return
		}
		b.nodes[n.ID] = n
		b.order = append(b.order, n.ID)
		mlog.Infoln(mlogRoutingAdd.SetDetailValues(n.ID.String(), "", len(b.order)))
		return
	}
	b.pushReplacement(n)
}

func (b *RoutingBin) pushReplacement(n *Node) {
	// de-dup: if already cached, move to tail (most-recent).
	for i, r := range b.replacements {
		if r.ID == n.ID {
			b.replacements = append(b.replacements[:i], b.replacements[i+1:]...)
			break
		}
	}
	b.replacements = append(b.replacements, n)
	if len(b.replacements) > b.capacity {
		b.replacements = b.replacements[len(b.replacements)-b.capacity:]
	}
}

// Pop removes the node with the given id from the bin. If a replacement
// is waiting, the most-recent one is promoted into the freed slot,
// preserving its place at the tail of insertion order.
func (b *RoutingBin) Pop(id identifier.ID) *Node {
	removed, ok := b.nodes[id]
	if !ok {
		return nil
	}
	delete(b.nodes, id)
	for i, o := range b.order {
		if o == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	if b.ipLimits {
		b.ips.Remove(removed.Address)
	}
	mlog.Infoln(mlogRoutingRemove.SetDetailValues(removed.ID.String()))
	if len(b.replacements) > 0 {
		promoted := b.replacements[len(b.replacements)-1]
		b.replacements = b.replacements[:len(b.replacements)-1]
		b.nodes[promoted.ID] = promoted
		b.order = append(b.order, promoted.ID)
		if b.ipLimits {
			b.ips.Add(promoted.Address)
		}
	}
	return removed
}

// ClosestTo returns up to maxNodes active nodes sorted by ascending XOR
// distance to target.
func (b *RoutingBin) ClosestTo(target identifier.ID, maxNodes int) []*Node {
	all := b.All()
	sort.Slice(all, func(i, j int) bool {
		return identifier.Less(all[i].ID, all[j].ID, target)
	})
	if len(all) > maxNodes {
		all = all[:maxNodes]
	}
	return all
}
