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

// Package metrics exposes the engine's traffic and lookup counters via
// rcrowley/go-metrics, the same registry the teacher wires its meteredConn
// into (p2p/metrics.go).
package metrics

import (
	"net"

	"github.com/rcrowley/go-metrics"
)

var (
	// UDPIn/UDPOut count raw datagrams crossing the socket.
	UDPIn      = metrics.NewRegisteredMeter("kad/net/in/packets", metrics.DefaultRegistry)
	UDPOut     = metrics.NewRegisteredMeter("kad/net/out/packets", metrics.DefaultRegistry)
	UDPInBytes  = metrics.NewRegisteredMeter("kad/net/in/bytes", metrics.DefaultRegistry)
	UDPOutBytes = metrics.NewRegisteredMeter("kad/net/out/bytes", metrics.DefaultRegistry)

	// Per lookup-type counters, one meter per FindNodes/FindValue/StoreValue/Ping.
	LookupFindNodes  = metrics.NewRegisteredMeter("kad/lookup/find_nodes", metrics.DefaultRegistry)
	LookupFindValue  = metrics.NewRegisteredMeter("kad/lookup/find_value", metrics.DefaultRegistry)
	LookupStoreValue = metrics.NewRegisteredMeter("kad/lookup/store_value", metrics.DefaultRegistry)
	LookupPing       = metrics.NewRegisteredMeter("kad/lookup/ping", metrics.DefaultRegistry)

	// TxTimeouts counts transactions that aged out without a response.
	TxTimeouts = metrics.NewRegisteredCounter("kad/txn/timeouts", metrics.DefaultRegistry)

	// NodesFailed counts liveness transitions into the Failed state.
	NodesFailed = metrics.NewRegisteredCounter("kad/routing/nodes_failed", metrics.DefaultRegistry)

	// DefragPending tracks in-flight fragment reassembly buffers.
	DefragPending = metrics.NewRegisteredGauge("kad/transport/defrag_pending", metrics.DefaultRegistry)
)

// MeteredPacketConn wraps a net.PacketConn, marking UDPIn/UDPOut on every
// ReadFrom/WriteTo, mirroring the teacher's meteredConn wrapper around
// net.Conn for TCP.
type MeteredPacketConn struct {
	net.PacketConn
}

func (c *MeteredPacketConn) ReadFrom(p []byte) (int, net.Addr, error) {
	n, addr, err := c.PacketConn.ReadFrom(p)
	if n > 0 {
		UDPIn.Mark(1)
		UDPInBytes.Mark(int64(n))
	}
	return n, addr, err
}

func (c *MeteredPacketConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	n, err := c.PacketConn.WriteTo(p, addr)
	if n > 0 {
		UDPOut.Mark(1)
		UDPOutBytes.Mark(int64(n))
	}
	return n, err
}
