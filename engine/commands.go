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

	"golang.org/x/crypto/nacl/box"

	"github.com/mod/kadcore/identifier"
	"github.com/mod/kadcore/messaging"
	"github.com/mod/kadcore/pipe"
	"github.com/mod/kadcore/routing"
	"github.com/mod/kadcore/z85"
)

// commandArity names how many argument frames follow a command's name
// frame before it is ready to execute (spec §6.4).
var commandArity = map[string]int{
	"NODE":  0,
	"PEERS": 0,
	"RESET": 2,
	"START": 2,
	"STOP":  0,
	"FNOD":  1,
	"FVAL":  2,
	"STOR":  3,
	"REMV":  2,
	"PUBL":  0,
	"HASH":  0,
}

// invalidCommandReply is the single-frame reply for an unrecognised
// command name (spec §7 error kind 3).
var invalidCommandReply = pipe.Frame("Invalid Command")

// feedFrame consumes one frame arriving from the client pipe. It
// returns the reply frames to send back (nil while still buffering a
// multi-frame command) and whether the client asked the engine to
// terminate.
func (e *Engine) feedFrame(f pipe.Frame) (reply []pipe.Frame, terminate bool) {
	if e.pendingCmd == "" {
		name := string(f)
		need, ok := commandArity[name]
		if !ok {
			return []pipe.Frame{invalidCommandReply}, false
		}
		if need == 0 {
			return e.runCommand(name, nil), name == "STOP"
		}
		e.pendingCmd = name
		e.pendingNeed = need
		e.pendingArgs = nil
		return nil, false
	}

	e.pendingArgs = append(e.pendingArgs, f)
	if len(e.pendingArgs) < e.pendingNeed {
		return nil, false
	}
	name, args := e.pendingCmd, e.pendingArgs
	e.pendingCmd, e.pendingArgs, e.pendingNeed = "", nil, 0
	return e.runCommand(name, args), false
}

func (e *Engine) runCommand(name string, args []pipe.Frame) []pipe.Frame {
	e.log.Infoln(mlogCommand.SetDetailValues(name))
	switch name {
	case "NODE":
		return e.cmdNode()
	case "PEERS":
		return e.cmdPeers()
	case "RESET":
		return e.cmdRekey(args)
	case "START":
		return e.cmdRekey(args)
	case "STOP":
		return nil
	case "FNOD":
		return e.cmdFindNodes(args)
	case "FVAL":
		return e.cmdFetchValue(args)
	case "STOR":
		return e.cmdStoreValue(args)
	case "REMV":
		return e.cmdRemoveValue(args)
	case "PUBL":
		return e.cmdPublished()
	case "HASH":
		return e.cmdHash()
	default:
		return []pipe.Frame{invalidCommandReply}
	}
}

func (e *Engine) cmdNode() []pipe.Frame {
	return []pipe.Frame{marshalDTO(nodeToDTOLocal(e.local))}
}

func (e *Engine) cmdPeers() []pipe.Frame {
	var peers []*routing.Node
	for _, n := range e.tree.AllNodes() {
		if n.ID != e.local.ID {
			peers = append(peers, n)
		}
	}
	return []pipe.Frame{marshalDTO(nodesToDTO(peers))}
}

// cmdRekey implements both RESET and START: node_id and secret_key are
// each either a z85-encoded value or an empty frame meaning "generate
// fresh". Both commands reply with the local Node after rekeying
// (spec §6.4); distinguishing "reset in place" from "(re)start" is a
// cmd/kad concern, not the engine's.
func (e *Engine) cmdRekey(args []pipe.Frame) []pipe.Frame {
	var id identifier.ID
	var secret [32]byte

	if len(args) > 0 && len(args[0]) > 0 {
		if decoded, err := z85.DecodeKey(string(args[0])); err == nil {
			id = identifier.ID(decoded)
		}
	}
	if len(args) > 1 && len(args[1]) > 0 {
		if decoded, err := z85.DecodeKey(string(args[1])); err == nil {
			secret = decoded
		}
	}
	if secret == ([32]byte{}) || id.IsZero() {
		pub, priv, err := box.GenerateKey(rand.Reader)
		if err == nil {
			secret = *priv
			id = identifier.ID(*pub)
		}
	}

	e.tree.Remove(e.local.ID)
	e.local = routing.NewLocal(e.local.Address, e.local.Port, id, secret)
	e.cfg.PrivateKey, e.cfg.PublicKey, e.cfg.LocalID = secret, [32]byte(id), id
	e.tree = routing.NewZone(id)
	return []pipe.Frame{marshalDTO(nodeToDTOLocal(e.local))}
}

func (e *Engine) cmdFindNodes(args []pipe.Frame) []pipe.Frame {
	raw, err := z85.DecodeKey(string(args[0]))
	if err != nil {
		return []pipe.Frame{invalidCommandReply}
	}
	target := identifier.ID(raw)
	closest := e.tree.ClosestTo(target, routing.DefaultK)
	return []pipe.Frame{marshalDTO(nodesToDTO(closest))}
}

func (e *Engine) cmdFetchValue(args []pipe.Frame) []pipe.Frame {
	key := identifier.ForKey(args[0])
	if entry, ok := e.store.Fetch(key); ok {
		return []pipe.Frame{marshalDTO(valuesToDTO([]*messaging.ValueEntry{entry}))}
	}
	return []pipe.Frame{pipe.Frame("null")}
}

func (e *Engine) cmdStoreValue(args []pipe.Frame) []pipe.Frame {
	key := identifier.ForKey(args[0])
	content := []byte(args[1])
	context := string(args[2])
	e.store.Store(key, content, e.local.ID, true, context)
	targets := e.tree.ClosestTo(key, routing.DefaultK)
	e.startStoreValue(key, content)
	return []pipe.Frame{marshalDTO(nodesToDTO(targets))}
}

func (e *Engine) cmdRemoveValue(args []pipe.Frame) []pipe.Frame {
	key := identifier.ForKey(args[0])
	e.store.Remove(key)
	for _, n := range e.tree.ClosestTo(key, routing.DefaultK) {
		e.SendExternal(n, e.txmap.NewID(), messaging.MsgRemove, key[:])
	}
	return []pipe.Frame{pipe.Frame{}}
}

func (e *Engine) cmdPublished() []pipe.Frame {
	return []pipe.Frame{marshalDTO(valuesToDTO(e.store.Published()))}
}

func (e *Engine) cmdHash() []pipe.Frame {
	return []pipe.Frame{marshalDTO(valuesToDTO(e.store.All()))}
}
