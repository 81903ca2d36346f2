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
	"sync"

	"github.com/mod/kadcore/identifier"
)

// DefaultB is the default extra-depth bound for subtrees that do not
// contain the local node's identifier (spec glossary "B").
const DefaultB = 5

// Zone is a node of the routing tree: either a leaf holding one
// RoutingBin, or an internal node holding exactly two children indexed
// by bit value. Zones carry no parent back-pointer (Design Notes,
// "cyclic parent pointers"); consolidation is instead decided by the
// already-recursing caller one frame up from the leaf that changed,
// which is exactly that leaf's parent.
type Zone struct {
	mu sync.Mutex

	localID  identifier.ID // constant across the whole tree
	depth    int
	prefix   string
	bdepth   int
	binsize  int
	subnetBits, subnetLimit uint
	ipLimited bool

	bin      *RoutingBin   // non-nil only on a leaf
	children [2]*Zone      // non-nil only on an internal node
}

// NewZone creates the root zone of a routing tree for localID, with the
// default B and K from the spec glossary.
func NewZone(localID identifier.ID) *Zone {
	return NewZoneWithParams(localID, DefaultB, DefaultK)
}

// NewZoneWithParams creates the root zone with a tunable extra-depth
// bound and bin capacity.
func NewZoneWithParams(localID identifier.ID, bdepth, binsize int) *Zone {
	return &Zone{
		localID: localID,
		depth:   0,
		prefix:  "",
		bdepth:  bdepth,
		binsize: binsize,
		bin:     NewRoutingBin(binsize),
	}
}

// EnableIPLimit turns on subnet diversity limiting (SPEC_FULL §3) for
// z's own bin, if z is a leaf, and for every zone later split off from
// z or consolidated into z. Children that already exist below z when it
// is called are not changed.
func (z *Zone) EnableIPLimit(subnetBits, limit uint) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.subnetBits, z.subnetLimit, z.ipLimited = subnetBits, limit, true
	if z.bin != nil {
		z.bin.WithIPLimit(subnetBits, limit)
	}
}

// IsLeaf reports whether z is a leaf (holds a bin) rather than an
// internal node (holds two children).
func (z *Zone) IsLeaf() bool {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.bin != nil
}

// Depth returns the number of bits consumed from the root to reach z.
func (z *Zone) Depth() int {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.depth
}

// Prefix returns the diagnostic bit-string prefix of z.
func (z *Zone) Prefix() string {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.prefix
}

// Add inserts node into the leaf matching its prefix, splitting that leaf
// first if eligible and necessary.
func (z *Zone) Add(n *Node) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.addLocked(n)
}

func (z *Zone) addLocked(n *Node) {
	if z.bin != nil && z.canSplitLocked() {
		z.splitLocked()
	}
	if z.bin != nil {
		z.bin.Push(n)
		return
	}
	idx := identifier.Bit(n.ID, z.depth)
	z.children[idx].Add(n)
}

// Remove removes the node with the given id from the tree, consolidating
// the owning leaf's parent if it has become eligible.
func (z *Zone) Remove(id identifier.ID) *Node {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.bin != nil {
		return z.bin.Pop(id)
	}
	idx := identifier.Bit(id, z.depth)
	removed := z.children[idx].Remove(id)
	if removed != nil && z.canConsolidateLocked() {
		z.consolidateLocked()
	}
	return removed
}

// GetByID finds the node with the given id anywhere in the tree.
func (z *Zone) GetByID(id identifier.ID) *Node {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.bin != nil {
		return z.bin.GetByID(id)
	}
	if n := z.children[0].GetByID(id); n != nil {
		return n
	}
	return z.children[1].GetByID(id)
}

// GetByAddr finds the node at the given endpoint anywhere in the tree.
func (z *Zone) GetByAddr(addr net.IP, port uint16) *Node {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.bin != nil {
		return z.bin.GetByAddr(addr, port)
	}
	if n := z.children[0].GetByAddr(addr, port); n != nil {
		return n
	}
	return z.children[1].GetByAddr(addr, port)
}

// AllNodes returns every active node in the tree via full in-order
// traversal.
func (z *Zone) AllNodes() []*Node {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.bin != nil {
		return z.bin.All()
	}
	out := z.children[0].AllNodes()
	out = append(out, z.children[1].AllNodes()...)
	return out
}

// ClosestTo returns up to maxNodes records sorted by ascending XOR
// distance to target. Traversal descends into the child sharing target's
// bit at the current depth; if that subtree has fewer than requested,
// the sibling subtree is probed for the remainder, preserving the
// overall distance ordering.
func (z *Zone) ClosestTo(target identifier.ID, maxNodes int) []*Node {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.closestToLocked(target, maxNodes)
}

func (z *Zone) closestToLocked(target identifier.ID, maxNodes int) []*Node {
	if z.bin != nil {
		return z.bin.ClosestTo(target, maxNodes)
	}
	idx := identifier.Bit(target, z.depth)
	nodes := z.children[idx].ClosestTo(target, maxNodes)
	if len(nodes) < maxNodes {
		nodes = append(nodes, z.children[1-idx].ClosestTo(target, maxNodes-len(nodes))...)
	}
	return nodes
}

// MaxDepth returns the deepest leaf's depth in the tree.
func (z *Zone) MaxDepth() int {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.bin != nil {
		return z.depth
	}
	d0 := z.children[0].MaxDepth()
	d1 := z.children[1].MaxDepth()
	if d0 > d1 {
		return d0
	}
	return d1
}

// canSplitLocked reports whether z (a full leaf) is eligible to split:
// depth < 256, the bin is full, and either z holds the local node or
// z.depth < B.
func (z *Zone) canSplitLocked() bool {
	if z.bin == nil || z.depth >= identifier.Bits || z.bin.Remaining() > 0 {
		return false
	}
	if z.bin.GetByID(z.localID) != nil {
		return true
	}
	return z.depth < z.bdepth
}

func (z *Zone) splitLocked() {
	bin := z.bin
	z.children[0] = &Zone{
		localID: z.localID, depth: z.depth + 1, prefix: z.prefix + "0",
		bdepth: z.bdepth, binsize: z.binsize, bin: NewRoutingBin(z.binsize),
		subnetBits: z.subnetBits, subnetLimit: z.subnetLimit, ipLimited: z.ipLimited,
	}
	z.children[1] = &Zone{
		localID: z.localID, depth: z.depth + 1, prefix: z.prefix + "1",
		bdepth: z.bdepth, binsize: z.binsize, bin: NewRoutingBin(z.binsize),
		subnetBits: z.subnetBits, subnetLimit: z.subnetLimit, ipLimited: z.ipLimited,
	}
	if z.ipLimited {
		z.children[0].bin.WithIPLimit(z.subnetBits, z.subnetLimit)
		z.children[1].bin.WithIPLimit(z.subnetBits, z.subnetLimit)
	}
	for _, n := range bin.All() {
		idx := identifier.Bit(n.ID, z.depth)
		z.children[idx].Add(n)
	}
	z.bin = nil
	mlog.Infoln(mlogRoutingSplit.SetDetailValues(z.prefix, z.depth))
}

// canConsolidateLocked reports whether z (an internal node) has a
// combined live population that has fallen to at most K/2.
func (z *Zone) canConsolidateLocked() bool {
	if z.bin != nil {
		return false
	}
	total := len(z.children[0].AllNodes()) + len(z.children[1].AllNodes())
	return total <= z.binsize/2
}

func (z *Zone) consolidateLocked() {
	bin := NewRoutingBin(z.binsize)
	if z.ipLimited {
		bin.WithIPLimit(z.subnetBits, z.subnetLimit)
	}
	for _, n := range z.children[0].AllNodes() {
		bin.Push(n)
	}
	for _, n := range z.children[1].AllNodes() {
		bin.Push(n)
	}
	z.bin = bin
	z.children[0], z.children[1] = nil, nil
	mlog.Infoln(mlogRoutingConsolidate.SetDetailValues(z.prefix, z.depth))
}
