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

// Package engine implements the event loop that multiplexes the client
// pipe, the UDP socket, and the maintenance timer onto one logical
// execution context (Design Notes §5): a single goroutine owns all
// routing state, transaction bookkeeping, and value-table writes, and
// the only cross-goroutine object is the actor pipe.
package engine

import (
	"fmt"
	"net"
	"time"

	"github.com/mod/kadcore/identifier"
	"github.com/mod/kadcore/logger"
	"github.com/mod/kadcore/messaging"
	"github.com/mod/kadcore/metrics"
	"github.com/mod/kadcore/persist"
	"github.com/mod/kadcore/pipe"
	"github.com/mod/kadcore/routing"
	"github.com/mod/kadcore/transport"
	"github.com/mod/kadcore/txn"
)

// tickInterval bounds the multi-source poll at the top of each cycle
// (spec §4.7, "Suspension points").
const tickInterval = 1 * time.Second

// Seed is one bootstrap peer, parsed from the configured seed list.
type Seed struct {
	Addr      net.IP
	Port      uint16
	PublicKey [32]byte
}

// Config bundles everything needed to construct an Engine.
type Config struct {
	ListenAddr string
	ListenPort uint16
	PrivateKey [32]byte
	PublicKey  [32]byte
	LocalID    identifier.ID
	Seeds      []Seed
	Storage    persist.Storage // optional; nil disables persistence
}

// Engine owns the routing tree, the two messaging registries, the
// transaction map, the value store, and the UDP socket. All of its
// exported state-mutating methods are intended to run on the single
// goroutine driven by Run.
type Engine struct {
	cfg   Config
	local *routing.Node
	tree  *routing.Zone
	txmap *txn.TxMap
	store *messaging.ValueStore

	discovery *messaging.Registry
	hashtable *messaging.Registry

	conn     *net.UDPConn
	defrag   *transport.DefragMap
	clientPipe *pipe.Pipe

	log *logger.Logger

	stopped bool

	pendingCmd  string
	pendingArgs []pipe.Frame
	pendingNeed int
}

// New constructs an Engine and binds its UDP socket, retrying on the
// next port in sequence if the configured one is taken (spec §7).
func New(cfg Config, clientPipe *pipe.Pipe) (*Engine, error) {
	local := routing.NewLocal(net.ParseIP(cfg.ListenAddr), cfg.ListenPort, cfg.LocalID, cfg.PrivateKey)
	e := &Engine{
		cfg: cfg, local: local, tree: routing.NewZone(cfg.LocalID),
		txmap: txn.NewTxMap(), store: messaging.NewValueStore(),
		defrag: transport.NewDefragMap(1024), clientPipe: clientPipe,
		log: logger.NewLogger("engine"),
	}

	conn, boundPort, err := bindWithRetry(cfg.ListenAddr, cfg.ListenPort)
	if err != nil {
		return nil, err
	}
	e.conn = conn
	e.local.SetEndpoint(net.ParseIP(cfg.ListenAddr), boundPort)

	e.discovery = messaging.NewDiscoveryRegistry(messaging.DiscoveryDeps{
		Local: e.local, Tree: e.tree, TxMap: e.txmap, Sender: e,
		Verify: e, StartFindNodes: e.startFindNodes, StartPing: e.startPing,
	})
	e.hashtable = messaging.NewHashtableRegistry(messaging.HashtableDeps{
		Local: e.local, Tree: e.tree, Store: e.store, Sender: e,
		StartStoreValue: func(key identifier.ID, content []byte) { e.startStoreValue(key, content) },
	})

	e.bootstrap()
	e.loadState()
	return e, nil
}

// bindWithRetry tries successive ports starting at port until one
// binds, per the bind-retry-on-port-conflict policy in §7.
func bindWithRetry(addr string, port uint16) (*net.UDPConn, uint16, error) {
	for p := port; p < port+64; p++ {
		conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(addr), Port: int(p)})
		if err == nil {
			return conn, p, nil
		}
	}
	return nil, 0, fmt.Errorf("engine: no free UDP port found starting at %d", port)
}

// bootstrap inserts each configured seed as an unverified Node; the
// first scheduled neighbour poll populates the tree from there.
func (e *Engine) bootstrap() {
	for _, s := range e.cfg.Seeds {
		e.AddSeed(s)
	}
}

// AddSeed inserts one bootstrap endpoint into the routing tree at
// runtime, without a restart — the hook cmd/kad's seed-file watcher
// calls on every rewrite.
func (e *Engine) AddSeed(s Seed) {
	id := identifier.ID(s.PublicKey)
	if e.tree.GetByID(id) != nil {
		return
	}
	e.tree.Add(routing.New(s.Addr, s.Port, id))
}

// VerifyPeer implements txn.VerifyPeer and the engine's own peer
// verification contract (spec §4.8).
func (e *Engine) VerifyPeer(addr net.IP, port uint16, id identifier.ID) *routing.Node {
	if existing := e.tree.GetByID(id); existing != nil {
		if existing.Address.Equal(addr) && existing.Port == port {
			return existing
		}
		existing.SetEndpoint(addr, port)
		return existing
	}
	return routing.New(addr, port, id)
}

// SendExternal implements txn.Sender: frames and encrypts content to
// peer's endpoint over the UDP socket.
func (e *Engine) SendExternal(peer *routing.Node, txid uint32, msgtype byte, content []byte) {
	fragments := transport.EncodeFragments(txid, msgtype, content)
	for _, f := range fragments {
		var datagram []byte
		var err error
		if e.local.HasSecretKey() {
			peerPub := [32]byte(peer.ID)
			datagram, err = transport.EncodePacket(e.local.ID, transport.ModeEncrypted, f, &e.cfg.PrivateKey, &peerPub)
		} else {
			datagram, err = transport.EncodePacket(e.local.ID, transport.ModePlaintext, f, nil, nil)
		}
		if err != nil {
			e.log.Infoln(mlogSendError.SetDetailValues(err.Error()))
			continue
		}
		e.conn.WriteToUDP(datagram, peer.Endpoint())
		peer.QueryOut()
	}
}

// recvExternal decodes one inbound datagram, verifies the sender where
// possible, and dispatches peer queries to their registry and
// responses to their transaction (spec §4.7 step 1).
func (e *Engine) recvExternal(datagram []byte, from *net.UDPAddr) {
	pkt, err := transport.DecodePacket(datagram, &e.cfg.PrivateKey)
	if err != nil {
		return // malformed or unauthenticated: dropped silently, spec §7
	}
	frag, err := transport.DecodeFragment(pkt.Payload)
	if err != nil {
		return
	}
	content, complete := e.defrag.Add(frag)
	if !complete {
		return
	}

	peer := e.VerifyPeer(from.IP, uint16(from.Port), pkt.SenderID)
	peer.QueryIn()

	if frag.MsgType%2 == 1 {
		e.dispatchPeerQuery(peer, frag.MsgType, frag.TxID, content)
		return
	}
	e.dispatchResponse(peer, frag.MsgType, frag.TxID, content)
}

func (e *Engine) dispatchPeerQuery(peer *routing.Node, msgtype byte, txid uint32, content []byte) {
	var reg *messaging.Registry
	if e.discovery.HasMessage(msgtype) {
		reg = e.discovery
	} else if e.hashtable.HasMessage(msgtype) {
		reg = e.hashtable
	} else {
		return
	}
	respType, respContent, ok := reg.HandlePeer(peer, msgtype, txid, content)
	if !ok {
		return
	}
	e.SendExternal(peer, txid, respType, respContent)
	peer.ResponseOut()
}

func (e *Engine) dispatchResponse(peer *routing.Node, msgtype byte, txid uint32, content []byte) {
	tx, ok := e.txmap.Get(txid)
	if !ok {
		return
	}
	peer.ResponseIn()
	switch t := tx.(type) {
	case *txn.FindNodes:
		t.HandleResponse(peer, messaging.UnpackNodeRefs(content))
	case *txn.FindValue:
		if msgtype == messaging.MsgValueReply {
			t.HandleValue(peer, content)
		} else {
			t.HandleResponse(peer, messaging.UnpackNodeRefs(content))
		}
	case *txn.Ping:
		t.HandlePong(peer)
	}
}

// Tick runs one maintenance cycle: transaction sweep then scheduled
// registry tasks (spec §4.7 step 2).
func (e *Engine) Tick(now time.Time) {
	e.txmap.Sweep(now)
	e.discovery.Tick(now)
	e.hashtable.Tick(now)
}
