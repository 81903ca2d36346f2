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

func nodeAt(port uint16) *Node {
	return New(net.ParseIP("127.0.0.1"), port, identifier.Random())
}

func TestRoutingBinPushAndGet(t *testing.T) {
	b := NewRoutingBin(4)
	n := nodeAt(7001)
	b.Push(n)
	assert.Equal(t, 1, b.Len())
	assert.Same(t, n, b.GetByID(n.ID))
}

func TestRoutingBinOverflowsToReplacementCache(t *testing.T) {
	b := NewRoutingBin(2)
	a, c, d := nodeAt(7001), nodeAt(7002), nodeAt(7003)
	b.Push(a)
	b.Push(c)
	b.Push(d) // bin full, d overflows to replacements
	assert.Equal(t, 2, b.Len())
	assert.Nil(t, b.GetByID(d.ID))
}

func TestRoutingBinPopPromotesReplacement(t *testing.T) {
	b := NewRoutingBin(1)
	a, c := nodeAt(7001), nodeAt(7002)
	b.Push(a)
	b.Push(c) // overflow, c waits in replacements

	removed := b.Pop(a.ID)
	assert.Same(t, a, removed)
	assert.Equal(t, 1, b.Len())
	assert.Same(t, c, b.GetByID(c.ID), "the replacement should be promoted into the freed slot")
}

func TestRoutingBinReplacementEvictionIsFIFO(t *testing.T) {
	b := NewRoutingBin(1)
	live := nodeAt(7000)
	b.Push(live)

	first, second := nodeAt(7001), nodeAt(7002)
	b.Push(first)  // overflow 1
	b.Push(second) // overflow 2, cap 1: first evicted

	b.Pop(live.ID)
	assert.Same(t, second, b.GetByID(second.ID), "second should have been promoted, being the most recent replacement")
	assert.Nil(t, b.GetByID(first.ID), "first should have been evicted FIFO before second")
}

func TestRoutingBinClosestToOrdersByXORDistance(t *testing.T) {
	target := identifier.Random()
	b := NewRoutingBin(8)
	for i := 0; i < 5; i++ {
		b.Push(nodeAt(uint16(7000 + i)))
	}
	closest := b.ClosestTo(target, 3)
	assert.Len(t, closest, 3)
	for i := 1; i < len(closest); i++ {
		prev := identifier.Distance(closest[i-1].ID, target)
		cur := identifier.Distance(closest[i].ID, target)
		assert.LessOrEqual(t, prev.Cmp(cur), 0, "closest-to results must be non-decreasing in XOR distance")
	}
}

func TestRoutingBinDuplicatePushIsNoop(t *testing.T) {
	b := NewRoutingBin(4)
	n := nodeAt(7001)
	b.Push(n)
	b.Push(n)
	assert.Equal(t, 1, b.Len())
}
