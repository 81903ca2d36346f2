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

package txn

import (
	"time"

	"github.com/mod/kadcore/routing"
)

type pingState int

const (
	pingInitialised pingState = iota
	pingWaitingResponse
	pingComplete
	pingTimedOut
)

// Ping verifies a single peer is alive (spec §4.5.4): sends msgtype
// 0x01, expects 0x02. A timeout increments the peer's failure counter
// via Node.Timeout, the same path the engine uses for any other
// unacknowledged query.
type Ping struct {
	state     pingState
	startedAt time.Time
	sentAt    time.Time
	peer      *routing.Node
	sender    Sender
}

// NewPing creates a Ping transaction targeting peer.
func NewPing(peer *routing.Node, sender Sender) *Ping {
	return &Ping{state: pingInitialised, startedAt: time.Now(), peer: peer, sender: sender}
}

// Query sends the PING.
func (p *Ping) Query(txid uint32) {
	if p.state != pingInitialised {
		return
	}
	p.sentAt = time.Now()
	p.sender.SendExternal(p.peer, txid, 0x01, nil)
	p.state = pingWaitingResponse
}

// HandlePong applies a PONG (msgtype 0x02) reply from the expected peer.
func (p *Ping) HandlePong(from *routing.Node) {
	if p.state != pingWaitingResponse || from.ID != p.peer.ID {
		return
	}
	p.peer.AddRTT(time.Since(p.sentAt))
	p.state = pingComplete
}

// Timeout increments the peer's failure counter and ends the transaction.
func (p *Ping) Timeout() {
	if p.Terminal() {
		return
	}
	p.peer.Timeout()
	p.state = pingTimedOut
}

// Terminal reports whether the ping has finished.
func (p *Ping) Terminal() bool { return p.state == pingComplete || p.state == pingTimedOut }

// StartedAt returns the transaction's creation time.
func (p *Ping) StartedAt() time.Time { return p.startedAt }

// Alive reports whether a matching PONG was received.
func (p *Ping) Alive() bool { return p.state == pingComplete }
