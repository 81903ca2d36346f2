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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mod/kadcore/identifier"
)

func idWithBit0(b byte) identifier.ID {
	var id identifier.ID
	if b != 0 {
		id[0] = 0x80
	}
	return id
}

func TestZoneAddGetRemoveRoundTrip(t *testing.T) {
	z := NewZone(identifier.Random())
	n := New(net.ParseIP("127.0.0.1"), 7001, identifier.Random())
	z.Add(n)
	assert.Same(t, n, z.GetByID(n.ID))
	assert.Same(t, n, z.Remove(n.ID))
	assert.Nil(t, z.GetByID(n.ID))
}

func TestZoneClosestToAcrossSplit(t *testing.T) {
	local := identifier.Random()
	z := NewZoneWithParams(local, DefaultB, 2)
	var added []*Node
	for i := 0; i < 10; i++ {
		n := New(net.ParseIP("127.0.0.1"), uint16(7000+i), identifier.Random())
		z.Add(n)
		added = append(added, n)
	}
	target := identifier.Random()
	closest := z.ClosestTo(target, 5)
	assert.Len(t, closest, 5)
	for i := 1; i < len(closest); i++ {
		prev := identifier.Distance(closest[i-1].ID, target)
		cur := identifier.Distance(closest[i].ID, target)
		assert.LessOrEqual(t, prev.Cmp(cur), 0)
	}
}

// TestSplitBalanced is the "Split balanced" scenario (spec.md §8): a
// K=10 zone with the local id's bit-0 = 1, given 5 records with bit-0 =
// 0 and 6 with bit-0 = 1. After the 11th insert the root must have split
// into two children of size 5 and 6, with the bit-1 child being the one
// sharing the local id's leading bit.
func TestSplitBalanced(t *testing.T) {
	local := idWithBit0(1)
	z := NewZoneWithParams(local, DefaultB, 10)

	for i := 0; i < 5; i++ {
		id := idWithBit0(0)
		id[31] = byte(i + 1) // distinct ids sharing bit 0
		n := New(net.ParseIP("127.0.0.1"), uint16(7000+i), id)
		z.Add(n)
	}
	for i := 0; i < 6; i++ {
		id := idWithBit0(1)
		id[31] = byte(i + 1) // distinct ids sharing bit 0
		n := New(net.ParseIP("127.0.0.1"), uint16(7100+i), id)
		z.Add(n)
	}

	assert.False(t, z.IsLeaf(), "root should have split after the 11th insert")
	assert.Equal(t, 5, z.children[0].bin.Len())
	assert.Equal(t, 6, z.children[1].bin.Len())
	assert.Equal(t, 1, identifier.Bit(local, 0), "local id's leading bit names the bit-1 child as its own")
}

// TestSplitUnbalancedShallowBound is the "Split unbalanced with B=1"
// scenario (spec.md §8), scaled down to a handful of levels instead of
// the full 256: with bdepth=1, only the subtree holding the actual local
// record is allowed to keep splitting past depth 1; a sibling subtree
// that does not hold the local record stops splitting at depth 1 and
// further arrivals there overflow into the (bounded, eventually
// discarding) replacement cache instead of becoming active entries.
func TestSplitUnbalancedShallowBound(t *testing.T) {
	local := identifier.ID{} // bits 0,1,2 all zero
	z := NewZoneWithParams(local, 1, 1)

	localNode := New(net.ParseIP("127.0.0.1"), 7000, local)
	z.Add(localNode)

	// bit0=0, bit1=0, bit2=1: shares a 2-bit prefix with local, diverges
	// at depth 2, driving three splits down the local-bearing branch.
	var divergent identifier.ID
	divergent[0] = 0x20
	other := New(net.ParseIP("127.0.0.1"), 7001, divergent)
	z.Add(other)

	assert.Same(t, localNode, z.GetByID(local))
	assert.Same(t, other, z.GetByID(divergent))
	assert.GreaterOrEqual(t, z.MaxDepth(), 3, "the local-bearing subtree should have split past the B=1 bound")

	// Two more arrivals sharing bit0=1 land in the sibling of the root
	// split, which holds no local record and a cap of 1: the second
	// cannot split past depth 1 and is rejected into the replacement
	// cache rather than becoming an active entry.
	first := New(net.ParseIP("127.0.0.1"), 7002, idWithBit0(1))
	z.Add(first)
	assert.Same(t, first, z.GetByID(first.ID))

	var secondID identifier.ID
	secondID[0] = 0x80
	secondID[31] = 0x01
	second := New(net.ParseIP("127.0.0.1"), 7003, secondID)
	z.Add(second)
	assert.Nil(t, z.GetByID(second.ID), "overflow past the B bound should not become an active entry")
}

func TestZoneConsolidatesAtHalfCapacity(t *testing.T) {
	local := identifier.Random()
	z := NewZoneWithParams(local, DefaultB, 4)
	var nodes []*Node
	for i := 0; i < 5; i++ {
		n := New(net.ParseIP("127.0.0.1"), uint16(7000+i), identifier.Random())
		z.Add(n)
		nodes = append(nodes, n)
	}
	assert.False(t, z.IsLeaf(), "should have split once past capacity 4")

	for i := 0; i < 3; i++ {
		z.Remove(nodes[i].ID)
	}
	assert.True(t, z.IsLeaf(), "combined population at K/2 should consolidate back into one bin")
}
