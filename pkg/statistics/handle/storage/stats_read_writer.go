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
	"fmt"
	"slices"

	"github.com/pingcap/errors"
	"github.com/pingcap/extstats/pkg/expression"
	"github.com/pingcap/extstats/pkg/statistics"
	"github.com/pingcap/extstats/pkg/statistics/extstats"
	statslogutil "github.com/pingcap/extstats/pkg/statistics/handle/logutil"
	"github.com/pingcap/extstats/pkg/statistics/handle/metrics"
	"github.com/pingcap/extstats/pkg/types"
	"github.com/pingcap/extstats/pkg/util/dbterror/exterrors"
	"github.com/pingcap/failpoint"
	"go.uber.org/zap"
)

// StatsReadWriter reads and writes typed extended statistics through a Store.
type StatsReadWriter struct {
	store Store
	types *types.Registry
}

// NewStatsReadWriter creates a StatsReadWriter.
func NewStatsReadWriter(store Store, reg *types.Registry) *StatsReadWriter {
	return &StatsReadWriter{store: store, types: reg}
}

// Store returns the underlying store.
func (s *StatsReadWriter) Store() Store {
	return s.store
}

// InsertExtendedStats validates def and registers it in the catalog.
func (s *StatsReadWriter) InsertExtendedStats(ctx context.Context, def *extstats.Definition, ifNotExists bool) (int64, error) {
	if err := def.Validate(); err != nil {
		return 0, err
	}
	keys := make([]int16, 0, len(def.Columns))
	for _, attnum := range def.AttNums() {
		if attnum > 0 {
			keys = append(keys, attnum)
		}
	}
	meta := &ExtendedStatsMeta{
		Name:  def.Name,
		RelID: int64(def.RelID),
		Kinds: def.Kinds,
		Keys:  keys,
		Exprs: def.Exprs,
	}
	statOID, err := s.store.InsertExtendedStats(ctx, meta, ifNotExists)
	if err != nil {
		return 0, errors.Trace(err)
	}
	return statOID, nil
}

// MarkExtendedStatsDeleted marks the named object of the relation deleted.
func (s *StatsReadWriter) MarkExtendedStatsDeleted(ctx context.Context, relID int64, name string, ifExists bool) error {
	return errors.Trace(s.store.MarkExtendedStatsDeleted(ctx, relID, name, ifExists))
}

// SaveExtendedStats replaces the stored data of the target of result by the
// kinds built in result. Kinds that were not built are left without data. It
// returns the version of the last write, or 0 when nothing was built.
func (s *StatsReadWriter) SaveExtendedStats(ctx context.Context, result *statistics.AnalyzeResult) (version uint64, err error) {
	type blob struct {
		kind extstats.StatsKind
		data []byte
	}
	var blobs []blob
	if result.NDistinct != nil {
		data, err := result.NDistinct.Marshal()
		if err != nil {
			return 0, err
		}
		blobs = append(blobs, blob{extstats.KindNDistinct, data})
	}
	if result.Dependencies != nil {
		data, err := result.Dependencies.Marshal()
		if err != nil {
			return 0, err
		}
		blobs = append(blobs, blob{extstats.KindDependencies, data})
	}
	if result.MCV != nil {
		data, err := result.MCV.Marshal(s.types)
		if err != nil {
			return 0, err
		}
		blobs = append(blobs, blob{extstats.KindMCV, data})
	}
	if err := s.store.ClearExtendedStatsData(ctx, result.Target.StatOID, result.Target.Inherit); err != nil {
		return 0, errors.Trace(err)
	}
	for _, b := range blobs {
		metrics.ObserveBlobSize(b.kind.String(), len(b.data))
		version, err = s.store.SaveExtendedStatsData(ctx, result.Target.StatOID, result.Target.Inherit, b.kind, b.data)
		if err != nil {
			return 0, errors.Trace(err)
		}
	}
	return version, nil
}

// loadBlob returns the stored data of kind, or nil when it was not built.
func (s *StatsReadWriter) loadBlob(ctx context.Context, statOID int64, inherit bool, kind extstats.StatsKind) ([]byte, error) {
	failpoint.Inject("injectExtStatsLoadErr", func() {
		failpoint.Return(nil, errors.New("mock load extended stats error"))
	})
	data, err := s.store.LoadExtendedStatsData(ctx, statOID, inherit, kind)
	return data, errors.Trace(err)
}

func (*StatsReadWriter) corrupted(ctx context.Context, statOID int64, kind extstats.StatsKind, err error) error {
	metrics.CorruptBlobCounter(kind.String()).Inc()
	statslogutil.StatsLoggerWithContext(ctx).Error("extended statistics data is corrupted",
		zap.Int64("statOID", statOID), zap.Stringer("kind", kind), zap.Error(err))
	return err
}

// LoadNDistinct reads the n-distinct coefficients of an object. It returns
// nil when they were not built.
func (s *StatsReadWriter) LoadNDistinct(ctx context.Context, statOID int64, inherit bool) (*extstats.MVNDistinct, error) {
	data, err := s.loadBlob(ctx, statOID, inherit, extstats.KindNDistinct)
	if err != nil || data == nil {
		return nil, err
	}
	nd, err := extstats.UnmarshalNDistinct(data)
	if err != nil {
		return nil, s.corrupted(ctx, statOID, extstats.KindNDistinct, err)
	}
	return nd, nil
}

// LoadDependencies reads the functional dependencies of an object. It
// returns nil when they were not built.
func (s *StatsReadWriter) LoadDependencies(ctx context.Context, statOID int64, inherit bool) (*extstats.MVDependencies, error) {
	data, err := s.loadBlob(ctx, statOID, inherit, extstats.KindDependencies)
	if err != nil || data == nil {
		return nil, err
	}
	deps, err := extstats.UnmarshalDependencies(data)
	if err != nil {
		return nil, s.corrupted(ctx, statOID, extstats.KindDependencies, err)
	}
	return deps, nil
}

// LoadMCV reads the MCV list of an object. It returns nil when it was not
// built.
func (s *StatsReadWriter) LoadMCV(ctx context.Context, statOID int64, inherit bool) (*extstats.MCVList, error) {
	data, err := s.loadBlob(ctx, statOID, inherit, extstats.KindMCV)
	if err != nil || data == nil {
		return nil, err
	}
	failpoint.Inject("mockTruncateStoredMCV", func() {
		data = data[:len(data)/2]
	})
	mcv, err := extstats.UnmarshalMCVList(data, s.types)
	if err != nil {
		return nil, s.corrupted(ctx, statOID, extstats.KindMCV, err)
	}
	return mcv, nil
}

// restoreTarget returns the live object statOID after checking that it
// declares kind.
func (s *StatsReadWriter) restoreTarget(ctx context.Context, statOID int64, kind extstats.StatsKind) (*ExtendedStatsMeta, error) {
	meta, err := s.store.GetExtendedStats(ctx, statOID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if meta.Status == ExtendedStatsDeleted {
		return nil, exterrors.ErrStatsNotExists.GenWithStackByArgs(meta.Name)
	}
	if !meta.HasKind(kind) {
		return nil, exterrors.ErrInvalidDefinition.GenWithStackByArgs(
			fmt.Sprintf("statistics %s do not include %s", meta.Name, kind))
	}
	return meta, nil
}

// DimensionTypes returns the type of every dimension of the object: the
// types of its key columns, taken from schema, then the result types of its
// expressions. schema holds the column types of the relation, column i+1 at
// index i.
func (m *ExtendedStatsMeta) DimensionTypes(schema []types.TypeID) ([]types.TypeID, error) {
	tps := make([]types.TypeID, 0, len(m.Keys)+len(m.Exprs))
	for _, key := range m.Keys {
		if key < 1 || int(key) > len(schema) {
			return nil, exterrors.ErrInvalidDefinition.GenWithStackByArgs(
				fmt.Sprintf("column %d of statistics %s is out of the %d columns of the relation", key, m.Name, len(schema)))
		}
		tps = append(tps, schema[key-1])
	}
	for _, e := range m.Exprs {
		tps = append(tps, expression.ExprType(e))
	}
	return tps, nil
}

// RestoreMCV replaces the MCV list of an object by one imported from its
// text form. The types of the dimensions are derived from schema, the
// column types of the relation; in.Types may be left empty and must match
// them otherwise.
func (s *StatsReadWriter) RestoreMCV(ctx context.Context, statOID int64, inherit bool, in *extstats.MCVImport, schema []types.TypeID) error {
	meta, err := s.restoreTarget(ctx, statOID, extstats.KindMCV)
	if err != nil {
		return err
	}
	tps, err := meta.DimensionTypes(schema)
	if err != nil {
		return err
	}
	if len(in.Types) > 0 && !slices.Equal(in.Types, tps) {
		return exterrors.ErrInvalidDefinition.GenWithStackByArgs(
			fmt.Sprintf("MCV list of types %v does not match the types %v of statistics %s", in.Types, tps, meta.Name))
	}
	typed := *in
	typed.Types = tps
	mcv, err := extstats.ImportMCVList(s.types, &typed)
	if err != nil {
		return err
	}
	data, err := mcv.Marshal(s.types)
	if err != nil {
		return err
	}
	_, err = s.store.SaveExtendedStatsData(ctx, statOID, inherit, extstats.KindMCV, data)
	return errors.Trace(err)
}

// RestoreNDistinct replaces the n-distinct coefficients of an object. Every
// item must combine attributes of the object.
func (s *StatsReadWriter) RestoreNDistinct(ctx context.Context, statOID int64, inherit bool, nd *extstats.MVNDistinct) error {
	meta, err := s.restoreTarget(ctx, statOID, extstats.KindNDistinct)
	if err != nil {
		return err
	}
	if err := extstats.ValidateNDistinct(nd, meta.Keys, len(meta.Exprs)); err != nil {
		return err
	}
	data, err := nd.Marshal()
	if err != nil {
		return err
	}
	_, err = s.store.SaveExtendedStatsData(ctx, statOID, inherit, extstats.KindNDistinct, data)
	return errors.Trace(err)
}

// RestoreDependencies replaces the functional dependencies of an object.
// Every dependency must relate attributes of the object.
func (s *StatsReadWriter) RestoreDependencies(ctx context.Context, statOID int64, inherit bool, deps *extstats.MVDependencies) error {
	meta, err := s.restoreTarget(ctx, statOID, extstats.KindDependencies)
	if err != nil {
		return err
	}
	if err := extstats.ValidateDependencies(deps, meta.Keys, len(meta.Exprs)); err != nil {
		return err
	}
	data, err := deps.Marshal()
	if err != nil {
		return err
	}
	_, err = s.store.SaveExtendedStatsData(ctx, statOID, inherit, extstats.KindDependencies, data)
	return errors.Trace(err)
}
