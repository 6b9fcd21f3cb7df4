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
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pingcap/errors"
	"github.com/pingcap/extstats/pkg/statistics/extstats"
	statslogutil "github.com/pingcap/extstats/pkg/statistics/handle/logutil"
	"github.com/pingcap/extstats/pkg/util/dbterror/exterrors"
	"go.uber.org/zap"
)

// Key layout of the ordered key-value backends:
//
//	c                           -> counters
//	m | statOID                 -> meta record
//	d | statOID | inherit | kind -> data blob
const (
	counterPrefix = 'c'
	metaPrefix    = 'm'
	dataPrefix    = 'd'
)

type kvOp struct {
	key    []byte
	value  []byte
	delete bool
}

// kvEngine is an ordered key-value engine. apply writes the ops atomically.
type kvEngine interface {
	get(key []byte) ([]byte, error)
	apply(ops []kvOp) error
	scan(prefix []byte, fn func(key, value []byte) error) error
	close() error
}

type counters struct {
	NextOID int64  `json:"next_oid"`
	Version uint64 `json:"version"`
}

func metaKey(statOID int64) []byte {
	key := make([]byte, 9)
	key[0] = metaPrefix
	binary.BigEndian.PutUint64(key[1:], uint64(statOID))
	return key
}

func dataKeyPrefix(statOID int64) []byte {
	key := make([]byte, 9, 11)
	key[0] = dataPrefix
	binary.BigEndian.PutUint64(key[1:], uint64(statOID))
	return key
}

func dataKeyInheritPrefix(statOID int64, inherit bool) []byte {
	key := dataKeyPrefix(statOID)
	if inherit {
		return append(key, 1)
	}
	return append(key, 0)
}

func dataKey(statOID int64, inherit bool, kind extstats.StatsKind) []byte {
	return append(dataKeyInheritPrefix(statOID, inherit), byte(kind))
}

// kvStore implements Store over an ordered key-value engine.
type kvStore struct {
	mu     sync.Mutex
	engine kvEngine
}

func (s *kvStore) counters() (*counters, error) {
	raw, err := s.engine.get([]byte{counterPrefix})
	if err != nil || raw == nil {
		return &counters{NextOID: 1}, err
	}
	c := &counters{}
	return c, errors.Trace(json.Unmarshal(raw, c))
}

func counterOp(c *counters) (kvOp, error) {
	raw, err := json.Marshal(c)
	return kvOp{key: []byte{counterPrefix}, value: raw}, errors.Trace(err)
}

func metaOp(meta *ExtendedStatsMeta) (kvOp, error) {
	rec, err := meta.toRecord()
	if err != nil {
		return kvOp{}, err
	}
	raw, err := json.Marshal(rec)
	return kvOp{key: metaKey(meta.StatOID), value: raw}, errors.Trace(err)
}

func decodeMeta(raw []byte) (*ExtendedStatsMeta, error) {
	rec := &metaRecord{}
	if err := json.Unmarshal(raw, rec); err != nil {
		return nil, errors.Trace(err)
	}
	return rec.toMeta()
}

func (s *kvStore) allMetas() ([]*ExtendedStatsMeta, error) {
	var metas []*ExtendedStatsMeta
	err := s.engine.scan([]byte{metaPrefix}, func(_, value []byte) error {
		meta, err := decodeMeta(value)
		if err != nil {
			return err
		}
		metas = append(metas, meta)
		return nil
	})
	return metas, err
}

func (s *kvStore) getMeta(statOID int64) (*ExtendedStatsMeta, error) {
	raw, err := s.engine.get(metaKey(statOID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, exterrors.ErrStatsNotExists.GenWithStackByArgs(fmt.Sprintf("#%d", statOID))
	}
	return decodeMeta(raw)
}

// InsertExtendedStats implements Store.
func (s *kvStore) InsertExtendedStats(_ context.Context, meta *ExtendedStatsMeta, ifNotExists bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, err := s.allMetas()
	if err != nil {
		return 0, err
	}
	if err := checkDuplicate(existing, meta); err != nil {
		if ifNotExists && exterrors.ErrStatsExists.Equal(err) {
			return 0, nil
		}
		return 0, err
	}
	c, err := s.counters()
	if err != nil {
		return 0, err
	}
	c.Version++
	stored := *meta
	stored.StatOID = c.NextOID
	stored.Version = c.Version
	stored.Status = ExtendedStatsInited
	c.NextOID++
	mop, err := metaOp(&stored)
	if err != nil {
		return 0, err
	}
	cop, err := counterOp(c)
	if err != nil {
		return 0, err
	}
	if err := s.engine.apply([]kvOp{mop, cop}); err != nil {
		return 0, err
	}
	meta.StatOID, meta.Version, meta.Status = stored.StatOID, stored.Version, stored.Status
	return stored.StatOID, nil
}

// MarkExtendedStatsDeleted implements Store.
func (s *kvStore) MarkExtendedStatsDeleted(_ context.Context, relID int64, name string, ifExists bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, err := s.allMetas()
	if err != nil {
		return err
	}
	for _, meta := range existing {
		if meta.RelID != relID || meta.Name != name || meta.Status == ExtendedStatsDeleted {
			continue
		}
		c, err := s.counters()
		if err != nil {
			return err
		}
		c.Version++
		meta.Version = c.Version
		meta.Status = ExtendedStatsDeleted
		mop, err := metaOp(meta)
		if err != nil {
			return err
		}
		cop, err := counterOp(c)
		if err != nil {
			return err
		}
		return s.engine.apply([]kvOp{mop, cop})
	}
	if ifExists {
		return nil
	}
	return exterrors.ErrStatsNotExists.GenWithStackByArgs(name)
}

// GetExtendedStats implements Store.
func (s *kvStore) GetExtendedStats(_ context.Context, statOID int64) (*ExtendedStatsMeta, error) {
	return s.getMeta(statOID)
}

// ListExtendedStats implements Store.
func (s *kvStore) ListExtendedStats(_ context.Context, relID int64, sinceVersion uint64) ([]*ExtendedStatsMeta, error) {
	metas, err := s.allMetas()
	if err != nil {
		return nil, err
	}
	result := metas[:0]
	for _, meta := range metas {
		if (relID == 0 || meta.RelID == relID) && meta.Version > sinceVersion {
			result = append(result, meta)
		}
	}
	return result, nil
}

// SaveExtendedStatsData implements Store.
func (s *kvStore) SaveExtendedStatsData(_ context.Context, statOID int64, inherit bool, kind extstats.StatsKind, data []byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, err := s.getMeta(statOID)
	if err != nil {
		return 0, err
	}
	if meta.Status == ExtendedStatsDeleted {
		return 0, exterrors.ErrStatsNotExists.GenWithStackByArgs(meta.Name)
	}
	c, err := s.counters()
	if err != nil {
		return 0, err
	}
	c.Version++
	meta.Version = c.Version
	meta.Status = ExtendedStatsAnalyzed
	mop, err := metaOp(meta)
	if err != nil {
		return 0, err
	}
	cop, err := counterOp(c)
	if err != nil {
		return 0, err
	}
	ops := []kvOp{mop, cop, {key: dataKey(statOID, inherit, kind), value: data}}
	if err := s.engine.apply(ops); err != nil {
		return 0, err
	}
	return c.Version, nil
}

// LoadExtendedStatsData implements Store.
func (s *kvStore) LoadExtendedStatsData(_ context.Context, statOID int64, inherit bool, kind extstats.StatsKind) ([]byte, error) {
	return s.engine.get(dataKey(statOID, inherit, kind))
}

// ClearExtendedStatsData implements Store.
func (s *kvStore) ClearExtendedStatsData(_ context.Context, statOID int64, inherit bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ops []kvOp
	err := s.engine.scan(dataKeyInheritPrefix(statOID, inherit), func(key, _ []byte) error {
		ops = append(ops, kvOp{key: append([]byte(nil), key...), delete: true})
		return nil
	})
	if err != nil {
		return err
	}
	meta, err := s.getMeta(statOID)
	if exterrors.ErrStatsNotExists.Equal(err) {
		if len(ops) == 0 {
			return nil
		}
		return s.engine.apply(ops)
	}
	if err != nil {
		return err
	}
	c, err := s.counters()
	if err != nil {
		return err
	}
	c.Version++
	meta.Version = c.Version
	mop, err := metaOp(meta)
	if err != nil {
		return err
	}
	cop, err := counterOp(c)
	if err != nil {
		return err
	}
	return s.engine.apply(append(ops, mop, cop))
}

// GCDeletedExtendedStats implements Store.
func (s *kvStore) GCDeletedExtendedStats(_ context.Context, beforeVersion uint64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	metas, err := s.allMetas()
	if err != nil {
		return 0, err
	}
	var (
		ops     []kvOp
		removed int
	)
	for _, meta := range metas {
		if meta.Status != ExtendedStatsDeleted || meta.Version >= beforeVersion {
			continue
		}
		removed++
		ops = append(ops, kvOp{key: metaKey(meta.StatOID), delete: true})
		err = s.engine.scan(dataKeyPrefix(meta.StatOID), func(key, _ []byte) error {
			ops = append(ops, kvOp{key: append([]byte(nil), key...), delete: true})
			return nil
		})
		if err != nil {
			return 0, err
		}
	}
	if removed == 0 {
		return 0, nil
	}
	if err := s.engine.apply(ops); err != nil {
		return 0, err
	}
	statslogutil.StatsLogger().Info("gc deleted extended stats",
		zap.Int("removed", removed), zap.Uint64("beforeVersion", beforeVersion))
	return removed, nil
}

// Close implements Store.
func (s *kvStore) Close() error {
	return s.engine.close()
}
