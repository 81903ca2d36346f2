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

// Package persist declares the storage contract the engine uses to
// snapshot its routing table and the hashtable context's published
// values, and to restore them across restarts. Concrete backends live
// in package storage.
package persist

import "errors"

// ErrNotFound is returned by Fetch when key has no stored value.
var ErrNotFound = errors.New("persist: key not found")

// Storage is implemented by every backend under package storage. Keys
// are namespaced by the caller (routing table snapshots and published
// values live under distinct prefixes) so a single Storage instance can
// back both.
type Storage interface {
	// Store writes blob under key, replacing any existing value.
	Store(key string, blob []byte) error

	// Fetch reads the value stored under key. It returns ErrNotFound if
	// no such key exists.
	Fetch(key string) ([]byte, error)

	// Remove deletes key. It is not an error for key to not exist.
	Remove(key string) error

	// Keys returns every stored key sharing the given prefix.
	Keys(prefix string) ([]string, error)

	// Close releases any resources held by the backend.
	Close() error
}
