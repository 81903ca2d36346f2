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

type storeState int

const (
	storeInitialised storeState = iota
	storeWaitingResponse
	storeStoring
	storeStored
	storeTimedOut
)

// StoreValue replicates a key/value pair to the K nodes closest to
// id_for_key(key), via a FindNodes sub-transaction (spec §4.5.3). No
// per-recipient acknowledgement is required; the terminal state
// "stored" is entered as soon as every unicast has been emitted.
type StoreValue struct {
	state     storeState
	startedAt time.Time
	key       []byte
	content   []byte
	sender    Sender
}

// NewStoreValue creates a StoreValue transaction. It has no Query
// method: the caller starts the FindNodes sub-lookup that supplies the
// storage targets, with SubTransactionCallback as its callback.
func NewStoreValue(key, content []byte, sender Sender) *StoreValue {
	return &StoreValue{state: storeInitialised, startedAt: time.Now(), key: key, content: content, sender: sender}
}

// SubTransactionCallback is passed as the FindNodes callback: once the
// sub-lookup for id_for_key(key) completes, it hands back the closest
// nodes and the store fires a STOR (0x09) unicast to each.
func (s *StoreValue) SubTransactionCallback(txid uint32) func([]*routing.Node) {
	return func(targets []*routing.Node) {
		if s.state == storeTimedOut {
			return
		}
		s.state = storeStoring
		body := append(append([]byte{}, s.key...), s.content...)
		for _, n := range targets {
			s.sender.SendExternal(n, txid, 0x09, body)
		}
		s.state = storeStored
	}
}

// Terminal reports whether the store has finished (spec terminal
// states "stored" and "timedout").
func (s *StoreValue) Terminal() bool {
	return s.state == storeStored || s.state == storeTimedOut
}

// Timeout ends the transaction if it has not already terminated.
func (s *StoreValue) Timeout() {
	if !s.Terminal() {
		s.state = storeTimedOut
	}
}

// StartedAt returns the transaction's creation time.
func (s *StoreValue) StartedAt() time.Time { return s.startedAt }
