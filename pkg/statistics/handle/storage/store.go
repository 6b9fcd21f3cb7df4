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
	"encoding/json"
	"fmt"
	"slices"

	"github.com/pingcap/errors"
	"github.com/pingcap/extstats/pkg/config"
	"github.com/pingcap/extstats/pkg/expression"
	"github.com/pingcap/extstats/pkg/statistics/extstats"
	"github.com/pingcap/extstats/pkg/util/dbterror/exterrors"
)

// ExtendedStatsStatus is the status of a statistics object in the catalog.
type ExtendedStatsStatus uint8

const (
	// ExtendedStatsInited is the status for extended stats which are just registered but have not been analyzed yet.
	ExtendedStatsInited ExtendedStatsStatus = iota
	// ExtendedStatsAnalyzed is the status for extended stats which have been collected in analyze.
	ExtendedStatsAnalyzed
	// ExtendedStatsDeleted is the status for extended stats which were dropped. These "deleted" records would be removed from storage by GCDeletedExtendedStats().
	ExtendedStatsDeleted
)

func (s ExtendedStatsStatus) String() string {
	switch s {
	case ExtendedStatsInited:
		return "inited"
	case ExtendedStatsAnalyzed:
		return "analyzed"
	case ExtendedStatsDeleted:
		return "deleted"
	}
	return "unknown"
}

// ExtendedStatsMeta is the catalog record of a statistics object.
type ExtendedStatsMeta struct {
	StatOID int64
	Name    string
	RelID   int64
	Kinds   []extstats.StatsKind
	// Keys holds the column keys in ascending order.
	Keys    []int16
	Exprs   []expression.Expr
	Version uint64
	Status  ExtendedStatsStatus
}

// Definition returns the user definition of the object.
func (m *ExtendedStatsMeta) Definition() *extstats.Definition {
	return &extstats.Definition{
		Name:    m.Name,
		RelID:   int(m.RelID),
		Kinds:   slices.Clone(m.Kinds),
		Columns: slices.Clone(m.Keys),
		Exprs:   m.Exprs,
	}
}

// HasKind reports whether the object declares kind.
func (m *ExtendedStatsMeta) HasKind(kind extstats.StatsKind) bool {
	return slices.Contains(m.Kinds, kind)
}

// StatisticExtInfos returns one descriptor per built kind, as seen by the
// estimator.
func (m *ExtendedStatsMeta) StatisticExtInfos(inherit bool) []*extstats.StatisticExtInfo {
	keys := extstats.NewAttrSet()
	for _, k := range m.Keys {
		keys.Add(int(k))
	}
	infos := make([]*extstats.StatisticExtInfo, 0, len(m.Kinds))
	for _, kind := range m.Kinds {
		if kind == extstats.KindExpressions {
			continue
		}
		infos = append(infos, &extstats.StatisticExtInfo{
			StatOID: m.StatOID,
			RelID:   int(m.RelID),
			Kind:    kind,
			Inherit: inherit,
			Keys:    keys.Clone(),
			Exprs:   m.Exprs,
		})
	}
	return infos
}

// sameKeys reports whether both objects cover the same columns and expressions.
func (m *ExtendedStatsMeta) sameKeys(o *ExtendedStatsMeta) bool {
	if !slices.Equal(m.Keys, o.Keys) || len(m.Exprs) != len(o.Exprs) {
		return false
	}
	for i := range m.Exprs {
		if !expression.Equal(m.Exprs[i], o.Exprs[i]) {
			return false
		}
	}
	return true
}

// checkDuplicate rejects meta when a live object of the relation has the same
// name, or covers the same keys with the same kinds.
func checkDuplicate(existing []*ExtendedStatsMeta, meta *ExtendedStatsMeta) error {
	for _, e := range existing {
		if e.Status == ExtendedStatsDeleted || e.RelID != meta.RelID {
			continue
		}
		if e.Name == meta.Name {
			return exterrors.ErrStatsExists.GenWithStackByArgs(meta.Name)
		}
		if e.sameKeys(meta) && slices.Equal(sortedKinds(e.Kinds), sortedKinds(meta.Kinds)) {
			return exterrors.ErrStatsExists.GenWithStackByArgs(
				fmt.Sprintf("%s (same as %s)", meta.Name, e.Name))
		}
	}
	return nil
}

func sortedKinds(kinds []extstats.StatsKind) []extstats.StatsKind {
	s := slices.Clone(kinds)
	slices.Sort(s)
	return s
}

// metaRecord is the persisted form of ExtendedStatsMeta.
type metaRecord struct {
	StatOID int64           `json:"stat_oid"`
	Name    string          `json:"name"`
	RelID   int64           `json:"rel_id"`
	Kinds   string          `json:"kinds"`
	Keys    []int16         `json:"keys"`
	Exprs   json.RawMessage `json:"exprs,omitempty"`
	Version uint64          `json:"version"`
	Status  uint8           `json:"status"`
}

func encodeKinds(kinds []extstats.StatsKind) string {
	b := make([]byte, len(kinds))
	for i, k := range kinds {
		b[i] = byte(k)
	}
	return string(b)
}

func decodeKinds(s string) ([]extstats.StatsKind, error) {
	kinds := make([]extstats.StatsKind, 0, len(s))
	for i := 0; i < len(s); i++ {
		k, err := extstats.ParseStatsKind(s[i])
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func encodeKeys(keys []int16) (string, error) {
	if keys == nil {
		keys = []int16{}
	}
	b, err := json.Marshal(keys)
	return string(b), errors.Trace(err)
}

func decodeKeys(s string) ([]int16, error) {
	var keys []int16
	if s == "" {
		return keys, nil
	}
	err := json.Unmarshal([]byte(s), &keys)
	return keys, errors.Trace(err)
}

func (m *ExtendedStatsMeta) toRecord() (*metaRecord, error) {
	rec := &metaRecord{
		StatOID: m.StatOID,
		Name:    m.Name,
		RelID:   m.RelID,
		Kinds:   encodeKinds(m.Kinds),
		Keys:    m.Keys,
		Version: m.Version,
		Status:  uint8(m.Status),
	}
	if len(m.Exprs) > 0 {
		exprs, err := expression.MarshalExprs(m.Exprs)
		if err != nil {
			return nil, err
		}
		rec.Exprs = exprs
	}
	return rec, nil
}

func (rec *metaRecord) toMeta() (*ExtendedStatsMeta, error) {
	kinds, err := decodeKinds(rec.Kinds)
	if err != nil {
		return nil, err
	}
	exprs, err := expression.UnmarshalExprs(rec.Exprs)
	if err != nil {
		return nil, err
	}
	return &ExtendedStatsMeta{
		StatOID: rec.StatOID,
		Name:    rec.Name,
		RelID:   rec.RelID,
		Kinds:   kinds,
		Keys:    rec.Keys,
		Exprs:   exprs,
		Version: rec.Version,
		Status:  ExtendedStatsStatus(rec.Status),
	}, nil
}

// Store is the catalog of extended statistics: object definitions and the
// serialized data of every built kind.
type Store interface {
	// InsertExtendedStats registers a new object and returns its id. With
	// ifNotExists, a duplicate is not an error and 0 is returned.
	InsertExtendedStats(ctx context.Context, meta *ExtendedStatsMeta, ifNotExists bool) (int64, error)
	// MarkExtendedStatsDeleted marks the named object of the relation deleted.
	MarkExtendedStatsDeleted(ctx context.Context, relID int64, name string, ifExists bool) error
	// GetExtendedStats returns the object with the given id.
	GetExtendedStats(ctx context.Context, statOID int64) (*ExtendedStatsMeta, error)
	// ListExtendedStats returns the objects of the relation changed after
	// sinceVersion, deleted ones included. relID 0 lists every relation.
	ListExtendedStats(ctx context.Context, relID int64, sinceVersion uint64) ([]*ExtendedStatsMeta, error)
	// SaveExtendedStatsData stores the data of one kind and marks the object
	// analyzed. It returns the new version.
	SaveExtendedStatsData(ctx context.Context, statOID int64, inherit bool, kind extstats.StatsKind, data []byte) (uint64, error)
	// LoadExtendedStatsData returns the data of one kind, or nil when it has
	// not been built.
	LoadExtendedStatsData(ctx context.Context, statOID int64, inherit bool, kind extstats.StatsKind) ([]byte, error)
	// ClearExtendedStatsData removes the data of every kind of the object.
	ClearExtendedStatsData(ctx context.Context, statOID int64, inherit bool) error
	// GCDeletedExtendedStats removes the objects deleted before version,
	// with their data, and returns how many were removed.
	GCDeletedExtendedStats(ctx context.Context, beforeVersion uint64) (int, error)
	Close() error
}

// NewStore opens the store configured in cfg.
func NewStore(cfg *config.Storage) (Store, error) {
	switch cfg.Type {
	case config.StorageMemory, "":
		return NewMemStore(), nil
	case config.StoragePebble:
		return OpenPebbleStore(cfg.Path, nil)
	case config.StorageMySQL:
		return OpenSQLStore(cfg.DSN)
	}
	return nil, errors.Errorf("unsupported storage type %q", cfg.Type)
}
