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

package storage

import (
	"strings"
	"time"

	"github.com/boltdb/bolt"

	"github.com/mod/kadcore/persist"
)

var bucketName = []byte("kadcore")

// BoltBackend stores keys in a single boltdb bucket, offered as a
// lighter-weight alternative to LevelDBBackend for single-process
// deployments that want an embedded B+tree instead of an LSM tree.
type BoltBackend struct {
	db *bolt.DB
}

// NewBoltBackend opens (creating if necessary) a bolt database at path.
func NewBoltBackend(path string) (*BoltBackend, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltBackend{db: db}, nil
}

func (b *BoltBackend) Store(key string, blob []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), blob)
	})
}

func (b *BoltBackend) Fetch(key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(key))
		if v == nil {
			return persist.ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

func (b *BoltBackend) Remove(key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	})
}

func (b *BoltBackend) Keys(prefix string) ([]string, error) {
	var out []string
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
			out = append(out, string(k))
		}
		return nil
	})
	return out, err
}

func (b *BoltBackend) Close() error { return b.db.Close() }
