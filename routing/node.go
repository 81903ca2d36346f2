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

// Package routing implements the per-peer Node record and the
// prefix-partitioned routing tree (RoutingBin/RoutingZone) described in
// spec.md §3/§4.2/§4.3.
package routing

import (
	"net"
	"sync"
	"time"

	"github.com/mod/kadcore/identifier"
	"github.com/mod/kadcore/metrics"
)

// Liveness is a Node's three-state liveness machine (spec.md §4.3).
// Reimplemented as an explicit tagged enum per the Design Notes rather
// than a declarative transition table, so tests can branch on it directly.
type Liveness int

const (
	Discovered Liveness = iota
	Verified
	Failed
)

func (l Liveness) String() string {
	switch l {
	case Discovered:
		return "discovered"
	case Verified:
		return "verified"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// rttHistory is the bounded ring of the last ten round-trip measurements.
const rttHistory = 10

// failThreshold is the number of consecutive timeouts without an
// intervening response that drives a Node to Failed.
const failThreshold = 3

// Node is a per-peer record: endpoint, liveness, counters, and (for the
// local node only) the Curve25519 secret key.
type Node struct {
	mu sync.Mutex

	Address net.IP
	Port    uint16
	ID      identifier.ID

	// SecretKey is only ever populated for the local node.
	SecretKey [32]byte
	hasSecret bool

	state Liveness

	discoveredAt time.Time
	firstContact time.Time
	lastContact  time.Time
	lastFailure  time.Time

	queriesIn     uint64
	queriesOut    uint64
	responsesIn   uint64
	responsesOut  uint64
	consecutiveTO int

	rtt     []time.Duration
	timesIn map[Liveness]time.Duration
	since   time.Time
}

// New creates a Node record discovered just now, in state Discovered.
func New(addr net.IP, port uint16, id identifier.ID) *Node {
	now := time.Now()
	return &Node{
		Address:      addr,
		Port:         port,
		ID:           id,
		state:        Discovered,
		discoveredAt: now,
		since:        now,
		timesIn:      make(map[Liveness]time.Duration),
	}
}

// NewLocal creates the Node record for the local node, carrying its secret
// key. The local node starts Verified: it never needs to bond with itself.
func NewLocal(addr net.IP, port uint16, id identifier.ID, secret [32]byte) *Node {
	n := New(addr, port, id)
	n.SecretKey = secret
	n.hasSecret = true
	n.state = Verified
	return n
}

// HasSecretKey reports whether this record carries a local secret key.
func (n *Node) HasSecretKey() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.hasSecret
}

// State returns the current liveness state.
func (n *Node) State() Liveness {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// IsDiscovered, IsVerified, IsFailed are convenience predicates mirroring
// peerz's is_discovered()/is_verified()/is_failed() transitions helpers.
func (n *Node) IsDiscovered() bool { return n.State() == Discovered }
func (n *Node) IsVerified() bool   { return n.State() == Verified }
func (n *Node) IsFailed() bool     { return n.State() == Failed }

// Endpoint returns the UDP address this Node is reachable at.
func (n *Node) Endpoint() *net.UDPAddr {
	n.mu.Lock()
	defer n.mu.Unlock()
	return &net.UDPAddr{IP: n.Address, Port: int(n.Port)}
}

// SetEndpoint updates the advertised address/port in place (NAT rebinding;
// spec.md §4.8 verify_peer "endpoint changed" case). node_id is immutable
// and never touched here.
func (n *Node) SetEndpoint(addr net.IP, port uint16) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Address = addr
	n.Port = port
}

func (n *Node) touchState(next Liveness) {
	now := time.Now()
	n.timesIn[n.state] += now.Sub(n.since)
	n.since = now
	n.state = next
}

// ResponseIn records an inbound response from this peer: resets the
// timeout counter and transitions Discovered|Verified -> Verified.
func (n *Node) ResponseIn() {
	n.mu.Lock()
	defer n.mu.Unlock()
	now := time.Now()
	if n.firstContact.IsZero() {
		n.firstContact = now
	}
	n.lastContact = now
	n.consecutiveTO = 0
	n.responsesIn++
	if n.state != Failed {
		n.touchState(Verified)
	}
}

// QueryIn records an inbound query from this peer (does not affect
// liveness state, only contact bookkeeping and counters).
func (n *Node) QueryIn() {
	n.mu.Lock()
	defer n.mu.Unlock()
	now := time.Now()
	if n.firstContact.IsZero() {
		n.firstContact = now
	}
	n.lastContact = now
	n.queriesIn++
}

// QueryOut records an outbound query sent to this peer.
func (n *Node) QueryOut() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.queriesOut++
}

// ResponseOut records an outbound response sent to this peer.
func (n *Node) ResponseOut() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.consecutiveTO = 0
	n.responsesOut++
}

// Timeout records a query timeout against this peer. On the third
// consecutive timeout without an intervening response the Node
// transitions to Failed; otherwise it remains in its current state
// with the failure counter incremented. Calling it on an already-Failed
// Node is a no-op.
func (n *Node) Timeout() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == Failed {
		return
	}
	n.consecutiveTO++
	if n.consecutiveTO >= failThreshold {
		n.touchState(Failed)
		n.lastFailure = time.Now()
		metrics.NodesFailed.Inc(1)
		return
	}
}

// AddRTT records a round-trip measurement, keeping only the most recent
// rttHistory samples.
func (n *Node) AddRTT(d time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rtt = append([]time.Duration{d}, n.rtt...)
	if len(n.rtt) > rttHistory {
		n.rtt = n.rtt[:rttHistory]
	}
}

// Latency returns the arithmetic mean of the recorded RTT samples, or 0
// if none have been recorded.
func (n *Node) Latency() time.Duration {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.rtt) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range n.rtt {
		sum += d
	}
	return sum / time.Duration(len(n.rtt))
}

// MessageLoss returns 1 - responses_in/queries_out, or -1 if no queries
// have been sent yet (undefined, per spec.md §4.3).
func (n *Node) MessageLoss() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.queriesOut == 0 {
		return -1
	}
	return 1.0 - float64(n.responsesIn)/float64(n.queriesOut)
}

// Counters is a snapshot of a Node's query/response counters, used for the
// client-facing NODE/PEERS JSON replies.
type Counters struct {
	QueriesIn    uint64
	QueriesOut   uint64
	ResponsesIn  uint64
	ResponsesOut uint64
	Failures     int
}

// Snapshot returns a consistent, immutable copy of this Node's metadata
// for serialization; it never exposes the secret key unless redact=false
// and the caller is authorized to see it (the engine only does this for
// the local node's own NODE/RESET/START replies).
type Snapshot struct {
	Address      string
	Port         uint16
	ID           identifier.ID
	Hostname     string
	DiscoveredAt time.Time
	FirstContact time.Time
	LastContact  time.Time
	LastFailure  time.Time
	LatencyMS    float64
	MessageLoss  float64
	State        Liveness
	Counters     Counters
	SecretKey    *[32]byte
}

// Snapshot takes a point-in-time copy of the Node for serialization.
// When redact is false and the Node carries a secret key, it is included.
func (n *Node) Snapshot(redact bool) Snapshot {
	n.mu.Lock()
	defer n.mu.Unlock()
	s := Snapshot{
		Address:      n.Address.String(),
		Port:         n.Port,
		ID:           n.ID,
		Hostname:     n.hostnameLocked(),
		DiscoveredAt: n.discoveredAt,
		FirstContact: n.firstContact,
		LastContact:  n.lastContact,
		LastFailure:  n.lastFailure,
		State:        n.state,
		Counters: Counters{
			QueriesIn:    n.queriesIn,
			QueriesOut:   n.queriesOut,
			ResponsesIn:  n.responsesIn,
			ResponsesOut: n.responsesOut,
			Failures:     n.consecutiveTO,
		},
	}
	if len(n.rtt) > 0 {
		var sum time.Duration
		for _, d := range n.rtt {
			sum += d
		}
		s.LatencyMS = float64(sum/time.Duration(len(n.rtt))) / float64(time.Millisecond)
	}
	if n.queriesOut > 0 {
		s.MessageLoss = 1.0 - float64(n.responsesIn)/float64(n.queriesOut)
	}
	if !redact && n.hasSecret {
		cpy := n.SecretKey
		s.SecretKey = &cpy
	}
	return s
}

// TimeInState returns, for diagnostics, how long this Node has spent in
// each liveness state over its lifetime (grounded on peerz/routing.py
// Node._update/self.times).
func (n *Node) TimeInState() map[Liveness]time.Duration {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[Liveness]time.Duration, len(n.timesIn)+1)
	for k, v := range n.timesIn {
		out[k] = v
	}
	out[n.state] += time.Since(n.since)
	return out
}

func (n *Node) hostnameLocked() string {
	names, err := net.LookupAddr(n.Address.String())
	if err != nil || len(names) == 0 {
		return ""
	}
	return names[0]
}

// Hostname reverse-resolves the Node's address. Diagnostic only; never
// used for routing decisions (grounded on peerz/routing.py Node.hostname).
func (n *Node) Hostname() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.hostnameLocked()
}
