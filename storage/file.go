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

// Package storage provides persist.Storage backends: a plain directory
// tree (FileBackend, grounded on peerz/persistence.py's LocalStorage),
// and embedded-database backends (LevelDBBackend, BoltBackend).
package storage

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/snappy"
	"github.com/spf13/afero"

	"github.com/mod/kadcore/persist"
)

// FileBackend stores each key as a snappy-compressed file under a root
// directory, one file per key, directly grounded on
// peerz/persistence.py:LocalStorage.store/fetch. It uses afero so tests
// can substitute an in-memory filesystem instead of touching disk.
type FileBackend struct {
	fs   afero.Fs
	root string
}

// NewFileBackend creates a FileBackend rooted at dir on the OS
// filesystem, creating dir if it does not exist.
func NewFileBackend(dir string) (*FileBackend, error) {
	return newFileBackend(afero.NewOsFs(), dir)
}

// NewMemFileBackend creates a FileBackend backed by an in-memory
// filesystem, for tests.
func NewMemFileBackend(dir string) (*FileBackend, error) {
	return newFileBackend(afero.NewMemMapFs(), dir)
}

func newFileBackend(fs afero.Fs, dir string) (*FileBackend, error) {
	if err := fs.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	return &FileBackend{fs: fs, root: dir}, nil
}

func (f *FileBackend) path(key string) string {
	return filepath.Join(f.root, keyToFilename(key))
}

// keyToFilename replaces path separators so namespaced keys like
// "routing/0a1b..." map to a single flat filename instead of nesting
// directories.
func keyToFilename(key string) string {
	return strings.Replace(key, "/", "_", -1)
}

func (f *FileBackend) Store(key string, blob []byte) error {
	compressed := snappy.Encode(nil, blob)
	return afero.WriteFile(f.fs, f.path(key), compressed, 0600)
}

func (f *FileBackend) Fetch(key string) ([]byte, error) {
	raw, err := afero.ReadFile(f.fs, f.path(key))
	if os.IsNotExist(err) {
		return nil, persist.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return snappy.Decode(nil, raw)
}

func (f *FileBackend) Remove(key string) error {
	err := f.fs.Remove(f.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (f *FileBackend) Keys(prefix string) ([]string, error) {
	entries, err := afero.ReadDir(f.fs, f.root)
	if err != nil {
		return nil, err
	}
	want := keyToFilename(prefix)
	var out []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), want) {
			out = append(out, strings.Replace(e.Name(), "_", "/", -1))
		}
	}
	return out, nil
}

func (f *FileBackend) Close() error { return nil }
