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

// Package z85 implements the ZeroMQ Z85 binary-to-text encoding (ZMTP
// RFC 32). No example in the retrieved pack carries a Go Z85
// implementation or a dependency providing one, so this is hand-rolled
// from the published alphabet and algorithm rather than borrowed from a
// third-party module; see DESIGN.md for the justification. It is used
// to print curve keys and seed strings the same way the original
// zmq-based implementation did.
package z85

import "fmt"

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ.-:+=^!/*?&<>()[]{}@%$#"

var decodeTable [128]int8

func init() {
	for i := range decodeTable {
		decodeTable[i] = -1
	}
	for i, c := range alphabet {
		decodeTable[c] = int8(i)
	}
}

// Encode converts a byte slice, whose length must be a multiple of 4,
// into a Z85 string 1.25x as long.
func Encode(data []byte) (string, error) {
	if len(data)%4 != 0 {
		return "", fmt.Errorf("z85: input length %d not a multiple of 4", len(data))
	}
	out := make([]byte, 0, len(data)*5/4)
	var value uint32
	for i, b := range data {
		value = value<<8 | uint32(b)
		if (i+1)%4 == 0 {
			var chunk [5]byte
			for j := 4; j >= 0; j-- {
				chunk[j] = alphabet[value%85]
				value /= 85
			}
			out = append(out, chunk[:]...)
		}
	}
	return string(out), nil
}

// Decode converts a Z85 string, whose length must be a multiple of 5,
// back into its original bytes.
func Decode(s string) ([]byte, error) {
	if len(s)%5 != 0 {
		return nil, fmt.Errorf("z85: input length %d not a multiple of 5", len(s))
	}
	out := make([]byte, 0, len(s)*4/5)
	var value uint32
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 128 || decodeTable[c] < 0 {
			return nil, fmt.Errorf("z85: invalid character %q at offset %d", c, i)
		}
		value = value*85 + uint32(decodeTable[c])
		if (i+1)%5 == 0 {
			out = append(out, byte(value>>24), byte(value>>16), byte(value>>8), byte(value))
			value = 0
		}
	}
	return out, nil
}

// EncodeKey encodes a fixed 32-byte curve key, the common case used for
// node identifiers and public keys in seed strings.
func EncodeKey(key [32]byte) string {
	s, _ := Encode(key[:])
	return s
}

// DecodeKey decodes a 40-character Z85 string into a fixed 32-byte key.
func DecodeKey(s string) ([32]byte, error) {
	var key [32]byte
	b, err := Decode(s)
	if err != nil {
		return key, err
	}
	if len(b) != 32 {
		return key, fmt.Errorf("z85: decoded key length %d, want 32", len(b))
	}
	copy(key[:], b)
	return key, nil
}
