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
	"github.com/mod/kadcore/identifier"
	"github.com/mod/kadcore/metrics"
	"github.com/mod/kadcore/routing"
	"github.com/mod/kadcore/txn"
)

func (e *Engine) startFindNodes(target identifier.ID) uint32 {
	id := e.txmap.NewID()
	fn := txn.NewFindNodes(id, target, routing.DefaultK, e.tree, e, e, nil)
	e.txmap.Put(id, fn)
	fn.Query()
	metrics.LookupFindNodes.Mark(1)
	return id
}

func (e *Engine) startFindNodesWithCallback(target identifier.ID, cb func([]*routing.Node)) uint32 {
	id := e.txmap.NewID()
	fn := txn.NewFindNodes(id, target, routing.DefaultK, e.tree, e, e, cb)
	e.txmap.Put(id, fn)
	fn.Query()
	metrics.LookupFindNodes.Mark(1)
	return id
}

func (e *Engine) startFindValue(key string, onFound func([]byte, *routing.Node), onExhausted func([]*routing.Node)) uint32 {
	id := e.txmap.NewID()
	target := identifier.ForKey([]byte(key))
	fv := txn.NewFindValue(id, key, target, routing.DefaultK, e.tree, e, e, onFound, onExhausted)
	e.txmap.Put(id, fv)
	fv.Query()
	metrics.LookupFindValue.Mark(1)
	return id
}

func (e *Engine) startStoreValue(key identifier.ID, content []byte) uint32 {
	id := e.txmap.NewID()
	sv := txn.NewStoreValue(key[:], content, e)
	e.txmap.Put(id, sv)
	e.startFindNodesWithCallback(key, sv.SubTransactionCallback(id))
	metrics.LookupStoreValue.Mark(1)
	return id
}

func (e *Engine) startPing(peer *routing.Node) {
	id := e.txmap.NewID()
	p := txn.NewPing(peer, e)
	e.txmap.Put(id, p)
	p.Query(id)
	metrics.LookupPing.Mark(1)
}
