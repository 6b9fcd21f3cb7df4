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
	stderrors "errors"

	"github.com/cockroachdb/pebble"
	"github.com/pingcap/errors"
)

type pebbleEngine struct {
	db *pebble.DB
}

// OpenPebbleStore opens a store persisted in a pebble database under dir.
// opts may be nil.
func OpenPebbleStore(dir string, opts *pebble.Options) (Store, error) {
	if opts == nil {
		opts = &pebble.Options{}
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, errors.Annotatef(err, "open pebble store at %s", dir)
	}
	return &kvStore{engine: &pebbleEngine{db: db}}, nil
}

func (e *pebbleEngine) get(key []byte) ([]byte, error) {
	value, closer, err := e.db.Get(key)
	if stderrors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer closer.Close()
	return bytes.Clone(value), nil
}

func (e *pebbleEngine) apply(ops []kvOp) error {
	b := e.db.NewBatch()
	defer b.Close()
	for _, op := range ops {
		var err error
		if op.delete {
			err = b.Delete(op.key, nil)
		} else {
			err = b.Set(op.key, op.value, nil)
		}
		if err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(b.Commit(pebble.Sync))
}

// prefixUpperBound returns the smallest key greater than every key with prefix.
func prefixUpperBound(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func (e *pebbleEngine) scan(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := e.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return errors.Trace(err)
	}
	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(bytes.Clone(iter.Key()), bytes.Clone(iter.Value())); err != nil {
			_ = iter.Close()
			return err
		}
	}
	if err := iter.Error(); err != nil {
		_ = iter.Close()
		return errors.Trace(err)
	}
	return errors.Trace(iter.Close())
}

func (e *pebbleEngine) close() error {
	return errors.Trace(e.db.Close())
}
