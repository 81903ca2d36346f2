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

package engine

import (
	"crypto/rand"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/nacl/box"

	"github.com/mod/kadcore/identifier"
	"github.com/mod/kadcore/pipe"
)

func newTestEngine(t *testing.T, port uint16) (*Engine, *pipe.Pipe) {
	t.Helper()
	pub, priv, err := box.GenerateKey(rand.Reader)
	require.NoError(t, err)

	engineSide, clientSide := pipe.New(8)
	cfg := Config{
		ListenAddr: "127.0.0.1",
		ListenPort: port,
		PrivateKey: *priv,
		PublicKey:  *pub,
		LocalID:    identifier.ID(*pub),
	}
	e, err := New(cfg, engineSide)
	require.NoError(t, err)
	t.Cleanup(func() { e.conn.Close() })
	return e, clientSide
}

func TestNewSetsLocalIdentity(t *testing.T) {
	e, _ := newTestEngine(t, 19201)
	assert.Equal(t, e.cfg.LocalID, e.local.ID)
	assert.True(t, e.local.IsVerified(), "the local node's own record starts verified")
	assert.True(t, e.local.HasSecretKey())
}

func TestBindWithRetryFallsBackOnConflict(t *testing.T) {
	blocker, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 19210})
	require.NoError(t, err)
	defer blocker.Close()

	conn, port, err := bindWithRetry("127.0.0.1", 19210)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, uint16(19211), port)
}

func TestVerifyPeerCreatesThenUpdatesEndpoint(t *testing.T) {
	e, _ := newTestEngine(t, 19202)
	id := identifier.Random()

	n1 := e.VerifyPeer(net.ParseIP("10.0.0.1"), 7001, id)
	require.NotNil(t, n1)
	assert.Equal(t, id, n1.ID)

	e.tree.Add(n1)
	n2 := e.VerifyPeer(net.ParseIP("10.0.0.2"), 7002, id)
	assert.Same(t, n1, n2, "a known id should return the same Node record, updated in place")
	assert.Equal(t, uint16(7002), n2.Port)
}

func TestAddSeedIsIdempotent(t *testing.T) {
	e, _ := newTestEngine(t, 19203)
	randID := identifier.Random()
	seed := Seed{Addr: net.ParseIP("10.0.0.9"), Port: 7009}
	copy(seed.PublicKey[:], randID[:])

	e.AddSeed(seed)
	assert.NotNil(t, e.tree.GetByID(identifier.ID(seed.PublicKey)))

	e.AddSeed(seed) // must not panic or duplicate
	assert.NotNil(t, e.tree.GetByID(identifier.ID(seed.PublicKey)))
}

func TestTickDoesNotPanicOnEmptyEngine(t *testing.T) {
	e, _ := newTestEngine(t, 19204)
	assert.NotPanics(t, func() { e.Tick(time.Now()) })
}

func TestFeedFrameNodeCommand(t *testing.T) {
	e, _ := newTestEngine(t, 19205)
	reply, terminate := e.feedFrame(pipe.Frame("NODE"))
	require.False(t, terminate)
	require.Len(t, reply, 1)

	var dto NodeDTO
	require.NoError(t, json.Unmarshal(reply[0], &dto))
	assert.Equal(t, e.local.ID.String(), dto.ID)
	assert.NotEmpty(t, dto.SecretKey, "the engine's own NODE reply must carry its secret key")
}

func TestFeedFrameUnknownCommand(t *testing.T) {
	e, _ := newTestEngine(t, 19206)
	reply, terminate := e.feedFrame(pipe.Frame("BOGUS"))
	require.False(t, terminate)
	require.Len(t, reply, 1)
	assert.Equal(t, invalidCommandReply, reply[0])
}

func TestFeedFrameBuffersMultiArgCommand(t *testing.T) {
	e, _ := newTestEngine(t, 19207)

	reply, terminate := e.feedFrame(pipe.Frame("RESET"))
	assert.Nil(t, reply)
	assert.False(t, terminate)

	reply, terminate = e.feedFrame(pipe.Frame(""))
	assert.Nil(t, reply, "still waiting on the second argument frame")
	assert.False(t, terminate)

	reply, terminate = e.feedFrame(pipe.Frame(""))
	require.Len(t, reply, 1)
	assert.False(t, terminate)

	var dto NodeDTO
	require.NoError(t, json.Unmarshal(reply[0], &dto))
	assert.NotEmpty(t, dto.ID, "RESET with empty args should generate a fresh identity")
}

func TestFeedFrameStopSignalsTerminate(t *testing.T) {
	e, _ := newTestEngine(t, 19208)
	_, terminate := e.feedFrame(pipe.Frame("STOP"))
	assert.True(t, terminate)
}
