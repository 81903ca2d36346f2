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
	"encoding/base64"

	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jwriter"

	"github.com/mod/kadcore/messaging"
	"github.com/mod/kadcore/routing"
	"github.com/mod/kadcore/z85"
)

// NodeDTO is the client-facing JSON shape of a Node (spec §6.4's NODE,
// PEERS, RESET, START, FNOD replies). It hand-implements
// easyjson.Marshaler the way `easyjson -all` would generate, since the
// code generator itself cannot be run here; see DESIGN.md.
type NodeDTO struct {
	ID          string  `json:"id"`
	Address     string  `json:"address"`
	Port        uint16  `json:"port"`
	State       string  `json:"state"`
	LatencyMS   float64 `json:"latency_ms"`
	MessageLoss float64 `json:"message_loss"`
	SecretKey   string  `json:"secret_key,omitempty"`
}

func nodeToDTO(n *routing.Node) NodeDTO {
	return nodeToDTOWith(n, true)
}

// nodeToDTOLocal includes the z85-encoded secret key, for the NODE,
// RESET, and START replies, which describe the engine's own identity
// to the trusted client on the other end of the actor pipe.
func nodeToDTOLocal(n *routing.Node) NodeDTO {
	return nodeToDTOWith(n, false)
}

func nodeToDTOWith(n *routing.Node, redact bool) NodeDTO {
	snap := n.Snapshot(redact)
	d := NodeDTO{
		ID: snap.ID.String(), Address: snap.Address, Port: snap.Port, State: snap.State.String(),
		LatencyMS: snap.LatencyMS, MessageLoss: snap.MessageLoss,
	}
	if snap.SecretKey != nil {
		d.SecretKey = z85.EncodeKey(*snap.SecretKey)
	}
	return d
}

// MarshalEasyJSON implements easyjson.Marshaler.
func (d NodeDTO) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawByte('{')
	w.RawString(`"id":`)
	w.String(d.ID)
	w.RawString(`,"address":`)
	w.String(d.Address)
	w.RawString(`,"port":`)
	w.Uint16(d.Port)
	w.RawString(`,"state":`)
	w.String(d.State)
	w.RawString(`,"latency_ms":`)
	w.Float64(d.LatencyMS)
	w.RawString(`,"message_loss":`)
	w.Float64(d.MessageLoss)
	if d.SecretKey != "" {
		w.RawString(`,"secret_key":`)
		w.String(d.SecretKey)
	}
	w.RawByte('}')
}

// NodeListDTO is a JSON array of NodeDTO, used for the PEERS and FNOD
// replies.
type NodeListDTO []NodeDTO

func nodesToDTO(nodes []*routing.Node) NodeListDTO {
	out := make(NodeListDTO, len(nodes))
	for i, n := range nodes {
		out[i] = nodeToDTO(n)
	}
	return out
}

// MarshalEasyJSON implements easyjson.Marshaler.
func (l NodeListDTO) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawByte('[')
	for i, d := range l {
		if i > 0 {
			w.RawByte(',')
		}
		d.MarshalEasyJSON(w)
	}
	w.RawByte(']')
}

// ValueMapDTO is the JSON object shape of the PUBL and HASH replies:
// id_for_key(key) in hex, mapped to the base64 content and the opaque
// context field carried alongside it.
type ValueMapDTO []valueMapEntry

type valueMapEntry struct {
	Key     string
	Content string
	Context string
}

func valuesToDTO(entries []*messaging.ValueEntry) ValueMapDTO {
	out := make(ValueMapDTO, len(entries))
	for i, e := range entries {
		out[i] = valueMapEntry{
			Key:     e.Key.String(),
			Content: base64.StdEncoding.EncodeToString(e.Content),
			Context: e.Context,
		}
	}
	return out
}

// MarshalEasyJSON implements easyjson.Marshaler.
func (m ValueMapDTO) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawByte('{')
	for i, e := range m {
		if i > 0 {
			w.RawByte(',')
		}
		w.String(e.Key)
		w.RawByte(':')
		w.RawByte('{')
		w.RawString(`"content":`)
		w.String(e.Content)
		w.RawString(`,"context":`)
		w.String(e.Context)
		w.RawByte('}')
	}
	w.RawByte('}')
}

func marshalDTO(m easyjson.Marshaler) []byte {
	b, err := easyjson.Marshal(m)
	if err != nil {
		return []byte("null")
	}
	return b
}
