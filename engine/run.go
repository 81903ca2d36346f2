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
	"bytes"
	"io/ioutil"
	"net"
	"runtime/debug"
	"time"

	"github.com/maruel/panicparse/stack"

	"github.com/mod/kadcore/pipe"
)

// datagram is one inbound UDP read, handed from the reader goroutine
// to the single event-loop goroutine over a channel (§4.7's "poll the
// client pipe and the UDP socket" collapsed onto Go's select, since
// net.UDPConn has no portable readiness-poll primitive of its own).
type datagram struct {
	data []byte
	from *net.UDPAddr
}

// Run is the engine's single-threaded cooperative event loop (spec
// §2, §4.7). It owns all routing, transaction, and value-table state
// for as long as it runs; the only cross-goroutine boundary is the
// actor pipe and the UDP reader goroutine's output channel. Run
// returns once the client sends pipe.Terminate or STOP, or the client
// pipe's channel is closed.
func (e *Engine) Run() {
	defer e.recoverPanic()

	udpIn := make(chan datagram, 64)
	stopReader := make(chan struct{})
	go e.readUDP(udpIn, stopReader)
	defer close(stopReader)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	e.clientPipe.SignalReady()

	for {
		select {
		case f, ok := <-e.clientPipe.Chan():
			if !ok {
				e.shutdown()
				return
			}
			if string(f) == string(pipe.Terminate) {
				e.shutdown()
				return
			}
			reply, terminate := e.feedFrame(f)
			for _, r := range reply {
				e.clientPipe.Send(r)
			}
			if terminate {
				e.shutdown()
				return
			}

		case dg := <-udpIn:
			e.recvExternal(dg.data, dg.from)

		case now := <-ticker.C:
			e.Tick(now)
			e.dumpState()
		}
	}
}

// readUDP feeds inbound datagrams to the event loop over a channel;
// it is the only goroutine that touches the socket's read side.
func (e *Engine) readUDP(out chan<- datagram, stop <-chan struct{}) {
	buf := make([]byte, 65536)
	for {
		select {
		case <-stop:
			return
		default:
		}
		n, from, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-stop:
				return
			default:
				continue
			}
		}
		cpy := make([]byte, n)
		copy(cpy, buf[:n])
		select {
		case out <- datagram{data: cpy, from: from}:
		case <-stop:
			return
		}
	}
}

func (e *Engine) shutdown() {
	if e.stopped {
		return
	}
	e.stopped = true
	e.dumpState()
	e.conn.Close()
	e.clientPipe.SignalDone()
}

// recoverPanic parses a goroutine dump via panicparse and, when it
// parses, logs a terminate event instead of letting the engine goroutine
// die silently; it re-panics so the process-level supervisor (cmd/kad)
// still sees the failure.
func (e *Engine) recoverPanic() {
	if r := recover(); r != nil {
		if ctx, err := stack.ParseDump(bytes.NewReader(debug.Stack()), ioutil.Discard, false); err == nil && ctx != nil {
			e.log.Infoln(mlogTerminate)
		}
		panic(r)
	}
}
