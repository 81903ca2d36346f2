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
	"encoding/json"
	"net"

	"github.com/mod/kadcore/identifier"
	"github.com/mod/kadcore/routing"
)

// nodeRecord is the durable shape of one routing-tree entry; the
// liveness state machine itself is not persisted (spec §6.3: "must be
// reinitialised on load").
type nodeRecord struct {
	Address string `json:"address"`
	Port    uint16 `json:"port"`
	ID      string `json:"id"`
}

type valueRecord struct {
	Key     string `json:"key"`
	Content []byte `json:"content"`
	Origin  string `json:"origin"`
	IsLocal bool   `json:"is_local"`
	Context string `json:"context"`
}

const (
	storageKeyNodeTree = "nodetree"
	storageKeyHashtable = "hashtable"
)

// dumpState persists the routing tree and value table through the
// configured storage collaborator. Called on tick and on clean
// shutdown.
func (e *Engine) dumpState() {
	if e.cfg.Storage == nil {
		return
	}
	var nodes []nodeRecord
	for _, n := range e.tree.AllNodes() {
		nodes = append(nodes, nodeRecord{Address: n.Address.String(), Port: n.Port, ID: n.ID.String()})
	}
	if blob, err := json.Marshal(nodes); err == nil {
		e.cfg.Storage.Store(storageKeyNodeTree, blob)
	}

	var values []valueRecord
	for _, v := range e.store.All() {
		values = append(values, valueRecord{Key: v.Key.String(), Content: v.Content, Origin: v.Origin.String(), IsLocal: v.IsLocal, Context: v.Context})
	}
	if blob, err := json.Marshal(values); err == nil {
		e.cfg.Storage.Store(storageKeyHashtable, blob)
	}
}

// loadState restores the routing tree and value table from the
// configured storage collaborator, if any. Every restored Node starts
// in the Discovered liveness state (spec §6.3).
func (e *Engine) loadState() {
	if e.cfg.Storage == nil {
		return
	}
	if blob, err := e.cfg.Storage.Fetch(storageKeyNodeTree); err == nil {
		var nodes []nodeRecord
		if json.Unmarshal(blob, &nodes) == nil {
			for _, rec := range nodes {
				id, err := identifier.Parse(rec.ID)
				if err != nil {
					continue
				}
				e.tree.Add(routingNodeFromRecord(rec, id))
			}
		}
	}
	if blob, err := e.cfg.Storage.Fetch(storageKeyHashtable); err == nil {
		var values []valueRecord
		if json.Unmarshal(blob, &values) == nil {
			for _, rec := range values {
				key, err := identifier.Parse(rec.Key)
				if err != nil {
					continue
				}
				origin, err := identifier.Parse(rec.Origin)
				if err != nil {
					continue
				}
				e.store.Store(key, rec.Content, origin, rec.IsLocal, rec.Context)
			}
		}
	}
}

func routingNodeFromRecord(rec nodeRecord, id identifier.ID) *routing.Node {
	return routing.New(net.ParseIP(rec.Address), rec.Port, id)
}
