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

// Package pipe implements the actor pipe: an in-process, single-writer,
// single-reader, length-delimited bidirectional channel connecting the
// engine's goroutine to the calling application's goroutine, with a
// startup/teardown handshake. It plays the role of a zmq inproc PAIR
// socket in the original implementation, expressed as two buffered Go
// channels.
package pipe

import "fmt"

// Frame is one length-delimited message crossing the pipe.
type Frame []byte

// Pipe is one end of the actor pipe. New returns the two ends of a
// freshly created pipe.
type Pipe struct {
	send  chan Frame
	recv  chan Frame
	ready chan struct{}
	done  chan struct{}
}

// New creates a connected pair of pipe ends: the first is meant for the
// engine goroutine, the second for the client-facing goroutine.
func New(capacity int) (engine, client *Pipe) {
	aToB := make(chan Frame, capacity)
	bToA := make(chan Frame, capacity)
	ready := make(chan struct{})
	done := make(chan struct{})
	engine = &Pipe{send: aToB, recv: bToA, ready: ready, done: done}
	client = &Pipe{send: bToA, recv: aToB, ready: ready, done: done}
	return engine, client
}

// Send writes one frame, blocking while the channel's buffer is full.
func (p *Pipe) Send(f Frame) {
	p.send <- f
}

// SendString is a convenience wrapper for the common UTF-8 command case.
func (p *Pipe) SendString(s string) {
	p.Send(Frame(s))
}

// Recv blocks until a frame arrives, or returns ok=false if the pipe
// was closed without producing one.
func (p *Pipe) Recv() (Frame, bool) {
	f, ok := <-p.recv
	return f, ok
}

// Chan exposes the receive side for use in a select statement, so a
// caller can multiplex the pipe against other event sources (the
// engine's run loop: client pipe, UDP socket, maintenance timer).
func (p *Pipe) Chan() <-chan Frame {
	return p.recv
}

// SignalReady is called exactly once, by the engine side, after
// initialisation completes. The client side's WaitReady unblocks.
func (p *Pipe) SignalReady() {
	close(p.ready)
}

// WaitReady blocks the client side until the engine has signalled
// readiness, per the actor handshake in the engine's concurrency model.
func (p *Pipe) WaitReady() {
	<-p.ready
}

// Terminate is sent by the client as the teardown sentinel.
var Terminate = Frame("__TERMINATE__")

// SignalDone is called exactly once, by the engine side, after it has
// finished tearing down in response to a Terminate frame.
func (p *Pipe) SignalDone() {
	close(p.done)
}

// WaitDone blocks the client side until the engine has signalled that
// teardown completed.
func (p *Pipe) WaitDone() {
	<-p.done
}

func (p *Pipe) String() string {
	return fmt.Sprintf("pipe(buf=%d)", cap(p.send))
}
