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

// Package transport implements the wire framer: outer Packet headers,
// inner Payload fragmentation, curve-box encryption, and txid-keyed
// reassembly via DefragMap. No example repo in the retrieved pack
// carries a NaCl box based framer, so the header layout is hand-rolled
// against the wire format while the box primitive itself comes
// straight from golang.org/x/crypto/nacl/box, already present in the
// teacher's dependency graph.
package transport

import (
	"crypto/rand"
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/nacl/box"

	"github.com/mod/kadcore/identifier"
)

// Mode is the outer packet's encryption mode byte.
type Mode byte

const (
	ModePlaintext Mode = 0x01
	ModeEncrypted Mode = 0x02
)

const (
	headerSize   = identifier.Size + 1 // node_id + mode
	maxDatagram  = 2048
	maxFragment  = 1100
	payloadFixed = 9 // txid(4) + msgtype(1) + fragidx(1) + lastfrag(1) + length(2)
)

var (
	ErrTooShort        = errors.New("transport: datagram shorter than header")
	ErrAuthFailed      = errors.New("transport: decryption/authentication failed")
	ErrBadLength       = errors.New("transport: content length exceeds remaining payload")
	ErrPayloadTooSmall = errors.New("transport: payload shorter than fixed header")
)

// Packet is the decoded outer frame: who sent it, how it was protected,
// and the still-encoded inner payload bytes.
type Packet struct {
	SenderID identifier.ID
	Mode     Mode
	Payload  []byte // plaintext payload bytes (post-decryption if Mode == ModeEncrypted)
}

// EncodePacket builds an outer datagram. For ModeEncrypted, payload is
// box-sealed to recipientPub using senderPriv and a fresh random nonce;
// the sealed box already carries its nonce prefix per box.Seal.
func EncodePacket(senderID identifier.ID, mode Mode, payload []byte, senderPriv, recipientPub *[32]byte) ([]byte, error) {
	var body []byte
	switch mode {
	case ModePlaintext:
		body = payload
	case ModeEncrypted:
		var nonce [24]byte
		if _, err := rand.Read(nonce[:]); err != nil {
			return nil, err
		}
		sealed := box.Seal(nonce[:], payload, &nonce, recipientPub, senderPriv)
		body = sealed
	default:
		return nil, errors.New("transport: unknown mode")
	}
	out := make([]byte, headerSize+len(body))
	copy(out[0:identifier.Size], senderID[:])
	out[identifier.Size] = byte(mode)
	copy(out[headerSize:], body)
	if len(out) > maxDatagram {
		return nil, errors.New("transport: encoded datagram exceeds maximum size")
	}
	return out, nil
}

// DecodePacket parses the outer frame. For ModeEncrypted, it opens the
// box using localPriv and the sender's claimed public key (the sender
// id doubles as its curve public key, per the spec's identifier model).
func DecodePacket(datagram []byte, localPriv *[32]byte) (*Packet, error) {
	if len(datagram) < headerSize {
		return nil, ErrTooShort
	}
	var senderID identifier.ID
	copy(senderID[:], datagram[0:identifier.Size])
	mode := Mode(datagram[identifier.Size])
	body := datagram[headerSize:]

	switch mode {
	case ModePlaintext:
		return &Packet{SenderID: senderID, Mode: mode, Payload: body}, nil
	case ModeEncrypted:
		if len(body) < 24 {
			return nil, ErrTooShort
		}
		var nonce [24]byte
		copy(nonce[:], body[:24])
		senderPub := [32]byte(senderID)
		opened, ok := box.Open(nil, body[24:], &nonce, &senderPub, localPriv)
		if !ok {
			return nil, ErrAuthFailed
		}
		return &Packet{SenderID: senderID, Mode: mode, Payload: opened}, nil
	default:
		return nil, errors.New("transport: unknown mode byte")
	}
}

// Fragment is one decoded inner payload fragment.
type Fragment struct {
	TxID        uint32
	MsgType     byte
	Index       uint8
	LastIndex   uint8
	Content     []byte
}

// EncodeFragments splits content into one or more wire fragments of at
// most maxFragment content bytes each, sharing txid and msgtype.
func EncodeFragments(txid uint32, msgtype byte, content []byte) [][]byte {
	if len(content) == 0 {
		return [][]byte{encodeFragment(txid, msgtype, 0, 0, nil)}
	}
	last := uint8((len(content) - 1) / maxFragment)
	var frames [][]byte
	for i := 0; i <= int(last); i++ {
		start := i * maxFragment
		end := start + maxFragment
		if end > len(content) {
			end = len(content)
		}
		frames = append(frames, encodeFragment(txid, msgtype, uint8(i), last, content[start:end]))
	}
	return frames
}

func encodeFragment(txid uint32, msgtype byte, index, last uint8, content []byte) []byte {
	out := make([]byte, payloadFixed+len(content))
	binary.BigEndian.PutUint32(out[0:4], txid)
	out[4] = msgtype
	out[5] = index
	out[6] = last
	binary.BigEndian.PutUint16(out[7:9], uint16(len(content)))
	copy(out[9:], content)
	return out
}

// DecodeFragment parses one inner payload.
func DecodeFragment(payload []byte) (*Fragment, error) {
	if len(payload) < payloadFixed {
		return nil, ErrPayloadTooSmall
	}
	length := binary.BigEndian.Uint16(payload[7:9])
	if int(length) > len(payload)-payloadFixed {
		return nil, ErrBadLength
	}
	return &Fragment{
		TxID:      binary.BigEndian.Uint32(payload[0:4]),
		MsgType:   payload[4],
		Index:     payload[5],
		LastIndex: payload[6],
		Content:   payload[9 : 9+length],
	}, nil
}
