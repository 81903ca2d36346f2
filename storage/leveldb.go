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
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/mod/kadcore/persist"
)

// LevelDBBackend stores keys in a single goleveldb database, the same
// engine the teacher uses for its chain database (ethdb), repurposed
// here as a flat key/value store for routing snapshots and published
// values.
type LevelDBBackend struct {
	db *leveldb.DB
}

// NewLevelDBBackend opens (creating if necessary) a goleveldb database
// at path.
func NewLevelDBBackend(path string) (*LevelDBBackend, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDBBackend{db: db}, nil
}

func (l *LevelDBBackend) Store(key string, blob []byte) error {
	return l.db.Put([]byte(key), blob, nil)
}

func (l *LevelDBBackend) Fetch(key string) ([]byte, error) {
	v, err := l.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, persist.ErrNotFound
	}
	return v, err
}

func (l *LevelDBBackend) Remove(key string) error {
	return l.db.Delete([]byte(key), nil)
}

func (l *LevelDBBackend) Keys(prefix string) ([]string, error) {
	iter := l.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()
	var out []string
	for iter.Next() {
		out = append(out, string(iter.Key()))
	}
	return out, iter.Error()
}

func (l *LevelDBBackend) Close() error { return l.db.Close() }
