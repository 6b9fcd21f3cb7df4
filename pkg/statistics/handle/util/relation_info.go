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

package util

import (
	"context"
	"math/rand"
	"sync"

	"github.com/pingcap/errors"
	"github.com/pingcap/extstats/pkg/statistics"
	"github.com/pingcap/extstats/pkg/types"
)

// RelationInfo describes a relation whose extended statistics can be built.
type RelationInfo struct {
	ID   int64
	Name string
	// Columns holds the type of every column, column i+1 at index i.
	Columns []types.TypeID
	// Children lists the inheritance children of the relation.
	Children []int64
}

// RelationInfoGetter is used to get relation meta info and sample rows.
type RelationInfoGetter interface {
	// RelationByID returns the relation specified by relID.
	RelationByID(relID int64) (*RelationInfo, bool)
	// SampleRows returns a uniform sample of at most sampleSize rows of the
	// relation, and the number of rows it was drawn from. With inherit, the
	// rows of the inheritance children are sampled too.
	SampleRows(ctx context.Context, relID int64, sampleSize int, inherit bool) ([][]types.Datum, float64, error)
}

type memRelation struct {
	info *RelationInfo
	rows [][]types.Datum
}

// MemRelations keeps relations and their rows in memory.
type MemRelations struct {
	types *types.Registry
	mu    sync.RWMutex
	rels  map[int64]*memRelation
	seed  int64
}

// NewMemRelations creates an empty MemRelations. Samples are drawn from a
// generator seeded with seed.
func NewMemRelations(reg *types.Registry, seed int64) *MemRelations {
	return &MemRelations{
		types: reg,
		rels:  make(map[int64]*memRelation),
		seed:  seed,
	}
}

// AddRelation registers a relation, replacing any relation with the same id.
func (m *MemRelations) AddRelation(info *RelationInfo) {
	m.mu.Lock()
	m.rels[info.ID] = &memRelation{info: info}
	m.mu.Unlock()
}

// DropRelation removes a relation and its rows.
func (m *MemRelations) DropRelation(relID int64) {
	m.mu.Lock()
	delete(m.rels, relID)
	m.mu.Unlock()
}

// AppendRows adds rows to a relation. Every row must have one value per
// column.
func (m *MemRelations) AppendRows(relID int64, rows ...[]types.Datum) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rel, ok := m.rels[relID]
	if !ok {
		return errors.Errorf("relation %d does not exist", relID)
	}
	for _, row := range rows {
		if len(row) != len(rel.info.Columns) {
			return errors.Errorf("relation %d has %d columns, got a row of %d values", relID, len(rel.info.Columns), len(row))
		}
		rel.rows = append(rel.rows, row)
	}
	return nil
}

// RelationByID implements RelationInfoGetter.
func (m *MemRelations) RelationByID(relID int64) (*RelationInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rel, ok := m.rels[relID]
	if !ok {
		return nil, false
	}
	return rel.info, true
}

// SampleRows implements RelationInfoGetter.
func (m *MemRelations) SampleRows(ctx context.Context, relID int64, sampleSize int, inherit bool) ([][]types.Datum, float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rel, ok := m.rels[relID]
	if !ok {
		return nil, 0, errors.Errorf("relation %d does not exist", relID)
	}
	rng := rand.New(rand.NewSource(m.seed))
	collector, err := m.collect(ctx, rel, sampleSize, rng)
	if err != nil {
		return nil, 0, err
	}
	if inherit {
		for _, childID := range rel.info.Children {
			child, ok := m.rels[childID]
			if !ok {
				continue
			}
			if len(child.info.Columns) != len(rel.info.Columns) {
				return nil, 0, errors.Errorf("child %d of relation %d has a different row type", childID, relID)
			}
			c, err := m.collect(ctx, child, sampleSize, rng)
			if err != nil {
				return nil, 0, err
			}
			collector.MergeCollector(c)
		}
	}
	return collector.Rows(), float64(collector.Count), nil
}

func (m *MemRelations) collect(ctx context.Context, rel *memRelation, sampleSize int, rng *rand.Rand) (*statistics.RowSampleCollector, error) {
	collector := statistics.NewRowSampleCollector(sampleSize, len(rel.info.Columns), rng)
	for i, row := range rel.rows {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, errors.Trace(err)
			}
		}
		collector.Collect(m.types, rel.info.Columns, row)
	}
	return collector, nil
}
