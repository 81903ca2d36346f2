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

// Package messaging implements the two context registries, Discovery
// and DistributedHashtable, each a flat msgtype-keyed dispatch table
// (Design Notes) plus a set of interval-driven maintenance tasks run
// by the engine's timer tick.
package messaging

import (
	"encoding/binary"
	"net"
	"time"

	"github.com/mod/kadcore/identifier"
	"github.com/mod/kadcore/routing"
	"github.com/mod/kadcore/txn"
)

// Context identifies which registry a wire message belongs to.
type Context byte

const (
	ContextDiscovery  Context = 0x00
	ContextHashtable  Context = 0x01
)

// PeerHandler answers an inbound peer query (odd msgtype). It returns
// the response msgtype and content to send back, or ok=false to send
// nothing (e.g. STOR and REMV, which carry no reply).
type PeerHandler func(peer *routing.Node, txid uint32, content []byte) (respMsgType byte, respContent []byte, ok bool)

// Task is one interval-driven maintenance action.
type Task struct {
	Name     string
	Interval time.Duration
	lastRun  time.Time
	Run      func(now time.Time)
}

// Registry is a flat dispatch table of peer handlers keyed by msgtype,
// plus the registry's scheduled tasks.
type Registry struct {
	context  Context
	handlers map[byte]PeerHandler
	tasks    []*Task
}

func newRegistry(ctx Context) *Registry {
	return &Registry{context: ctx, handlers: make(map[byte]PeerHandler)}
}

// Context returns the registry's 8-bit context id.
func (r *Registry) Context() Context { return r.context }

// HasMessage reports whether msgtype is a peer query this registry owns.
func (r *Registry) HasMessage(msgtype byte) bool {
	_, ok := r.handlers[msgtype]
	return ok
}

// HandlePeer dispatches an inbound peer query to its registered handler.
func (r *Registry) HandlePeer(peer *routing.Node, msgtype byte, txid uint32, content []byte) (byte, []byte, bool) {
	h, ok := r.handlers[msgtype]
	if !ok {
		return 0, nil, false
	}
	return h(peer, txid, content)
}

// Tick runs every task whose interval has elapsed since its last run.
func (r *Registry) Tick(now time.Time) {
	for _, task := range r.tasks {
		if task.lastRun.IsZero() || now.Sub(task.lastRun) >= task.Interval {
			task.Run(now)
			task.lastRun = now
			mlog.Infoln(mlogTaskRun.SetDetailValues(int(r.context), task.Name))
		}
	}
}

// --- NodeRef wire encoding shared by FNOD/NODE_REPLY (Discovery) and
// the node-reply half of FVAL (Hashtable): "possibly the world's worst
// serialisation scheme" per the original implementation's own comment,
// kept byte-for-byte compatible: id(32) || address || NUL || port || NUL.

func packNodeRefs(nodes []*routing.Node) []byte {
	var out []byte
	for _, n := range nodes {
		out = append(out, n.ID[:]...)
		out = append(out, []byte(n.Address.String())...)
		out = append(out, 0)
		out = append(out, []byte(portString(n.Port))...)
		out = append(out, 0)
	}
	return out
}

func portString(p uint16) string {
	return string(itoa(int(p)))
}

func itoa(n int) []byte {
	if n == 0 {
		return []byte{'0'}
	}
	var buf [6]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return buf[i:]
}

// UnpackNodeRefs decodes a NODE_REPLY body (msgtype 0x04 or 0x06) into
// its constituent endpoint/id triples, for the engine to hand to the
// originating FindNodes or FindValue transaction.
func UnpackNodeRefs(content []byte) []txn.NodeRef {
	return unpackNodeRefs(content)
}

func unpackNodeRefs(content []byte) []txn.NodeRef {
	var refs []txn.NodeRef
	for len(content) > 0 {
		if len(content) < 33 {
			break
		}
		var id identifier.ID
		copy(id[:], content[:32])
		rest := content[32:]
		nul1 := indexByte(rest, 0)
		if nul1 < 0 {
			break
		}
		addr := net.ParseIP(string(rest[:nul1]))
		rest = rest[nul1+1:]
		nul2 := indexByte(rest, 0)
		if nul2 < 0 {
			break
		}
		port := parsePort(string(rest[:nul2]))
		content = rest[nul2+1:]
		refs = append(refs, txn.NodeRef{Addr: addr, Port: port, ID: id})
	}
	return refs
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

func parsePort(s string) uint16 {
	var n uint16
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + uint16(c-'0')
	}
	return n
}

func encodeTxID(id uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], id)
	return b[:]
}
