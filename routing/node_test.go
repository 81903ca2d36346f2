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
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mod/kadcore/identifier"
)

func TestNodeStartsDiscovered(t *testing.T) {
	n := New(net.ParseIP("127.0.0.1"), 7001, identifier.Random())
	assert.True(t, n.IsDiscovered())
	assert.False(t, n.HasSecretKey())
}

func TestLocalNodeStartsVerifiedWithSecret(t *testing.T) {
	var secret [32]byte
	secret[0] = 0x42
	n := NewLocal(net.ParseIP("127.0.0.1"), 7001, identifier.Random(), secret)
	assert.True(t, n.IsVerified())
	assert.True(t, n.HasSecretKey())
}

func TestResponseInMovesDiscoveredToVerified(t *testing.T) {
	n := New(net.ParseIP("127.0.0.1"), 7001, identifier.Random())
	n.ResponseIn()
	assert.True(t, n.IsVerified())
}

func TestThreeConsecutiveTimeoutsFail(t *testing.T) {
	n := New(net.ParseIP("127.0.0.1"), 7001, identifier.Random())
	n.Timeout()
	assert.False(t, n.IsFailed())
	n.Timeout()
	assert.False(t, n.IsFailed())
	n.Timeout()
	assert.True(t, n.IsFailed())
}

func TestResponseResetsTimeoutCounter(t *testing.T) {
	n := New(net.ParseIP("127.0.0.1"), 7001, identifier.Random())
	n.Timeout()
	n.Timeout()
	n.ResponseIn()
	n.Timeout()
	n.Timeout()
	assert.False(t, n.IsFailed(), "response in between should reset the consecutive-timeout count")
}

func TestMessageLossUndefinedBeforeAnyQuery(t *testing.T) {
	n := New(net.ParseIP("127.0.0.1"), 7001, identifier.Random())
	assert.Equal(t, -1.0, n.MessageLoss())
}

func TestMessageLossRatio(t *testing.T) {
	n := New(net.ParseIP("127.0.0.1"), 7001, identifier.Random())
	n.QueryOut()
	n.QueryOut()
	n.ResponseIn()
	assert.InDelta(t, 0.5, n.MessageLoss(), 0.0001)
}

func TestSnapshotRedactsSecretByDefault(t *testing.T) {
	var secret [32]byte
	secret[0] = 0x99
	n := NewLocal(net.ParseIP("127.0.0.1"), 7001, identifier.Random(), secret)
	redacted := n.Snapshot(true)
	assert.Nil(t, redacted.SecretKey)

	unredacted := n.Snapshot(false)
	if assert.NotNil(t, unredacted.SecretKey) {
		assert.Equal(t, secret, *unredacted.SecretKey)
	}
}

func TestAddRTTKeepsBoundedHistory(t *testing.T) {
	n := New(net.ParseIP("127.0.0.1"), 7001, identifier.Random())
	for i := 0; i < rttHistory+5; i++ {
		n.AddRTT(time.Duration(i+1) * time.Millisecond)
	}
	assert.LessOrEqual(t, len(n.rtt), rttHistory)
}
