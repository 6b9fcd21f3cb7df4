// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"bytes"
	"sync"

	"github.com/google/btree"
)

type memItem struct {
	key   []byte
	value []byte
}

func memItemLess(a, b memItem) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// memEngine keeps the catalog in a B-tree.
type memEngine struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[memItem]
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() Store {
	return &kvStore{engine: &memEngine{tree: btree.NewG(32, memItemLess)}}
}

func (e *memEngine) get(key []byte) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	item, ok := e.tree.Get(memItem{key: key})
	if !ok {
		return nil, nil
	}
	return bytes.Clone(item.value), nil
}

func (e *memEngine) apply(ops []kvOp) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, op := range ops {
		if op.delete {
			e.tree.Delete(memItem{key: op.key})
			continue
		}
		e.tree.ReplaceOrInsert(memItem{key: bytes.Clone(op.key), value: bytes.Clone(op.value)})
	}
	return nil
}

func (e *memEngine) scan(prefix []byte, fn func(key, value []byte) error) error {
	e.mu.RLock()
	var items []memItem
	e.tree.AscendGreaterOrEqual(memItem{key: prefix}, func(item memItem) bool {
		if !bytes.HasPrefix(item.key, prefix) {
			return false
		}
		items = append(items, item)
		return true
	})
	e.mu.RUnlock()
	for _, item := range items {
		if err := fn(item.key, item.value); err != nil {
			return err
		}
	}
	return nil
}

func (*memEngine) close() error {
	return nil
}
