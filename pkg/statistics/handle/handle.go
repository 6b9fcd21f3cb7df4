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

package handle

import (
	"context"
	"sync"

	"github.com/pingcap/errors"
	"github.com/pingcap/extstats/pkg/config"
	"github.com/pingcap/extstats/pkg/expression"
	"github.com/pingcap/extstats/pkg/planner/cardinality"
	"github.com/pingcap/extstats/pkg/statistics"
	"github.com/pingcap/extstats/pkg/statistics/extstats"
	"github.com/pingcap/extstats/pkg/statistics/handle/autoanalyze/refresher"
	"github.com/pingcap/extstats/pkg/statistics/handle/cache"
	"github.com/pingcap/extstats/pkg/statistics/handle/ddl"
	"github.com/pingcap/extstats/pkg/statistics/handle/storage"
	"github.com/pingcap/extstats/pkg/statistics/handle/usage/statsusage"
	"github.com/pingcap/extstats/pkg/statistics/handle/util"
	"github.com/pingcap/extstats/pkg/types"
	"go.uber.org/atomic"
	"golang.org/x/sync/singleflight"
)

// Handle manages the extended statistics of every relation: the catalog, the
// cache of deserialized statistics and the builds.
type Handle struct {
	rw         *storage.StatsReadWriter
	statsCache *cache.StatsCache
	usage      *statsusage.Collector
	relations  util.RelationInfoGetter

	types     *types.Registry
	ops       *expression.OperatorRegistry
	evaluator expression.Evaluator
	cfg       config.Stats

	// loadGroup deduplicates concurrent loads of the same blob.
	loadGroup singleflight.Group

	mu struct {
		sync.RWMutex
		// metas holds the live objects by id.
		metas map[int64]*storage.ExtendedStatsMeta
	}
	// lastVersion is the catalog version the handle has caught up with.
	lastVersion atomic.Uint64

	ddlHandler *ddl.Handler
	refresher  *refresher.Refresher
	workers    struct {
		sync.Mutex
		cancel context.CancelFunc
		wg     sync.WaitGroup
	}
}

// NewHandle creates a Handle over store. relations may be nil, in which case
// only builds from explicit samples are possible.
func NewHandle(store storage.Store, reg *types.Registry, relations util.RelationInfoGetter, cfg *config.Config) (*Handle, error) {
	statsCache, err := cache.NewStatsCache(cfg.StatsCache.Capacity, cfg.StatsCache.NumCounters)
	if err != nil {
		return nil, errors.Trace(err)
	}
	h := &Handle{
		rw:         storage.NewStatsReadWriter(store, reg),
		statsCache: statsCache,
		usage:      statsusage.NewCollector(),
		relations:  relations,
		types:      reg,
		ops:        expression.NewOperatorRegistry(reg),
		evaluator:  expression.NewDefaultEvaluator(reg),
		cfg:        cfg.Stats,
	}
	h.mu.metas = make(map[int64]*storage.ExtendedStatsMeta)
	h.ddlHandler = ddl.NewDDLHandler(store, h)
	h.refresher = refresher.NewRefresher(h, cfg.Stats.AutoAnalyzeRatio, max(cfg.Stats.BuildConcurrency, 1))
	return h, nil
}

// Close stops the background workers, then releases the cache and the store.
func (h *Handle) Close() error {
	h.StopWorkers()
	h.refresher.Close()
	h.statsCache.Close()
	return h.rw.Store().Close()
}

// Store returns the catalog store.
func (h *Handle) Store() storage.Store {
	return h.rw.Store()
}

// StatsCache returns the cache of deserialized statistics.
func (h *Handle) StatsCache() *cache.StatsCache {
	return h.statsCache
}

// Types returns the type registry.
func (h *Handle) Types() *types.Registry {
	return h.types
}

// Operators returns the operator registry used for estimation.
func (h *Handle) Operators() *expression.OperatorRegistry {
	return h.ops
}

// ExtendedStatsUsage returns how the estimator used each object.
func (h *Handle) ExtendedStatsUsage() map[int64]statsusage.UsageInfo {
	return h.usage.Snapshot()
}

// LastVersion returns the catalog version the handle has caught up with.
func (h *Handle) LastVersion() uint64 {
	return h.lastVersion.Load()
}

// ExtendedStatsOfRelation returns the live objects of the relation, ordered
// by id.
func (h *Handle) ExtendedStatsOfRelation(relID int64) []*storage.ExtendedStatsMeta {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var metas []*storage.ExtendedStatsMeta
	for _, meta := range h.mu.metas {
		if meta.RelID == relID {
			metas = append(metas, meta)
		}
	}
	sortMetas(metas)
	return metas
}

// StatisticExtInfos returns the descriptors of the analyzed objects of the
// relation, as consumed by the estimator.
func (h *Handle) StatisticExtInfos(relID int64, inherit bool) []*extstats.StatisticExtInfo {
	var infos []*extstats.StatisticExtInfo
	for _, meta := range h.ExtendedStatsOfRelation(relID) {
		if meta.Status != storage.ExtendedStatsAnalyzed {
			continue
		}
		infos = append(infos, meta.StatisticExtInfos(inherit)...)
	}
	return infos
}

// RelOptInfo returns the estimator view of the relation.
func (h *Handle) RelOptInfo(relID int64, inherit bool) *cardinality.RelOptInfo {
	return &cardinality.RelOptInfo{
		RelID:   int(relID),
		Stats:   h.StatisticExtInfos(relID, inherit),
		Inherit: inherit,
	}
}

// NewSelectivityContext returns an estimation context reading statistics
// through the handle. Clauses not covered by extended statistics are
// estimated with the default per-clause selectivities.
func (h *Handle) NewSelectivityContext(ctx context.Context) *cardinality.SelectivityContext {
	return &cardinality.SelectivityContext{
		Ctx:               ctx,
		Ops:               h.ops,
		Types:             h.types,
		Loader:            h,
		SimpleSelectivity: statistics.PseudoSelectivity(h.ops),
	}
}

// CreateExtendedStats registers a new statistics object and returns its id.
// The object has no data until it is built.
func (h *Handle) CreateExtendedStats(ctx context.Context, def *extstats.Definition, ifNotExists bool) (int64, error) {
	if h.relations != nil {
		if err := h.checkRelationColumns(def); err != nil {
			return 0, err
		}
	}
	statOID, err := h.rw.InsertExtendedStats(ctx, def, ifNotExists)
	if err != nil {
		return 0, err
	}
	return statOID, h.ReloadExtendedStatistics(ctx)
}

// DropExtendedStats marks the named object of the relation deleted. Its data
// is removed by GCExtendedStats.
func (h *Handle) DropExtendedStats(ctx context.Context, relID int64, name string, ifExists bool) error {
	if err := h.rw.MarkExtendedStatsDeleted(ctx, relID, name, ifExists); err != nil {
		return err
	}
	return h.ReloadExtendedStatistics(ctx)
}

// InvalidateExtendedStats drops the cached data of the object.
func (h *Handle) InvalidateExtendedStats(statOID int64) {
	h.statsCache.Invalidate(statOID)
}

// GCExtendedStats removes the data of the objects deleted before the
// version the handle has caught up with.
func (h *Handle) GCExtendedStats(ctx context.Context) (int, error) {
	removed, err := h.rw.Store().GCDeletedExtendedStats(ctx, h.lastVersion.Load()+1)
	return removed, errors.Trace(err)
}

// relationSchema returns the column types of the relation of the object.
func (h *Handle) relationSchema(ctx context.Context, statOID int64) ([]types.TypeID, error) {
	meta, err := h.rw.Store().GetExtendedStats(ctx, statOID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if h.relations == nil {
		return nil, errors.New("no relation source to read column types from")
	}
	rel, ok := h.relations.RelationByID(meta.RelID)
	if !ok {
		return nil, errors.Errorf("relation %d does not exist", meta.RelID)
	}
	return rel.Columns, nil
}

// RestoreMCV imports an MCV list for the object. The value types are those
// of the columns and expressions of the object.
func (h *Handle) RestoreMCV(ctx context.Context, statOID int64, inherit bool, in *extstats.MCVImport) error {
	schema, err := h.relationSchema(ctx, statOID)
	if err != nil {
		return err
	}
	if err := h.rw.RestoreMCV(ctx, statOID, inherit, in, schema); err != nil {
		return err
	}
	h.statsCache.Invalidate(statOID)
	return h.ReloadExtendedStatistics(ctx)
}

// RestoreNDistinct imports n-distinct coefficients for the object.
func (h *Handle) RestoreNDistinct(ctx context.Context, statOID int64, inherit bool, nd *extstats.MVNDistinct) error {
	if err := h.rw.RestoreNDistinct(ctx, statOID, inherit, nd); err != nil {
		return err
	}
	h.statsCache.Invalidate(statOID)
	return h.ReloadExtendedStatistics(ctx)
}

// RestoreDependencies imports functional dependencies for the object.
func (h *Handle) RestoreDependencies(ctx context.Context, statOID int64, inherit bool, deps *extstats.MVDependencies) error {
	if err := h.rw.RestoreDependencies(ctx, statOID, inherit, deps); err != nil {
		return err
	}
	h.statsCache.Invalidate(statOID)
	return h.ReloadExtendedStatistics(ctx)
}
