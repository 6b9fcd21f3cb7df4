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
	"math/rand"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/extstats/pkg/statistics"
	"github.com/pingcap/extstats/pkg/statistics/extstats"
	statslogutil "github.com/pingcap/extstats/pkg/statistics/handle/logutil"
	"github.com/pingcap/extstats/pkg/statistics/handle/metrics"
	"github.com/pingcap/extstats/pkg/statistics/handle/storage"
	"github.com/pingcap/extstats/pkg/types"
	"github.com/pingcap/extstats/pkg/util/dbterror/exterrors"
	"github.com/pingcap/failpoint"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BuildRequest asks to build one statistics object from sampled rows.
type BuildRequest struct {
	StatOID int64
	Inherit bool
	// Schema holds the column types of the relation, column i+1 at index i.
	Schema []types.TypeID
	Rows   [][]types.Datum
	// TotalRows is the number of rows of the relation the sample was drawn
	// from.
	TotalRows float64
	// Target bounds the MCV list size. 0 uses the configured default.
	Target int
}

func (h *Handle) newBuilder() *extstats.Builder {
	b := extstats.NewBuilder(h.types)
	if h.cfg.WidthThreshold > 0 {
		b.WidthThreshold = h.cfg.WidthThreshold
	}
	if h.cfg.CancelCheckInterval > 0 {
		b.CancelCheckInterval = h.cfg.CancelCheckInterval
	}
	return b
}

func (h *Handle) statsTarget(target int) int {
	if target > 0 {
		return target
	}
	if h.cfg.DefaultStatsTarget > 0 {
		return h.cfg.DefaultStatsTarget
	}
	return 100
}

// BuildExtendedStats builds every kind declared by the object from the rows
// of req, saves the result and drops the cached data of the object. Data of
// a previous build is replaced, also for kinds the rows no longer yield.
func (h *Handle) BuildExtendedStats(ctx context.Context, req *BuildRequest) (*statistics.AnalyzeResult, error) {
	failpoint.Inject("mockBuildExtStatsErr", func(val failpoint.Value) {
		if val.(bool) {
			failpoint.Return(nil, errors.New("mock build extended stats error"))
		}
	})
	meta, err := h.rw.Store().GetExtendedStats(ctx, req.StatOID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if meta.Status == storage.ExtendedStatsDeleted {
		return nil, exterrors.ErrStatsNotExists.GenWithStackByArgs(meta.Name)
	}
	data, err := statistics.BuildDataFromSample(req.Rows, req.Schema, meta.Keys, meta.Exprs, h.types, h.evaluator)
	if err != nil {
		return nil, err
	}
	result := &statistics.AnalyzeResult{
		Target:     statistics.AnalyzeTarget{StatOID: req.StatOID, Inherit: req.Inherit},
		SampleRows: len(req.Rows),
		TotalRows:  req.TotalRows,
	}
	b := h.newBuilder()
	target := h.statsTarget(req.Target)
	for _, kind := range meta.Kinds {
		start := time.Now()
		switch kind {
		case extstats.KindNDistinct:
			result.NDistinct, err = b.BuildNDistinct(ctx, req.TotalRows, data)
		case extstats.KindDependencies:
			result.Dependencies, err = b.BuildDependencies(ctx, data)
		case extstats.KindMCV:
			result.MCV, err = b.BuildMCVList(ctx, data, req.TotalRows, target)
		default:
			continue
		}
		hist, counter := metrics.BuildObserver(kind.String(), err)
		hist.Observe(time.Since(start).Seconds())
		counter.Inc()
		if err != nil {
			return nil, errors.Annotatef(err, "build %s of statistics %s", kind, meta.Name)
		}
	}
	if _, err = h.rw.SaveExtendedStats(ctx, result); err != nil {
		return nil, err
	}
	h.statsCache.Invalidate(req.StatOID)
	if err := h.ReloadExtendedStatistics(ctx); err != nil {
		return nil, err
	}
	statslogutil.StatsLoggerWithContext(ctx).Info("build extended stats",
		zap.String("name", meta.Name), zap.Int64("statOID", meta.StatOID), zap.Bool("inherit", req.Inherit),
		zap.Int("sampleRows", len(req.Rows)), zap.Float64("totalRows", req.TotalRows))
	return result, nil
}

// AnalyzeSample reduces rows to the sample size of the statistics target,
// then builds the object from the sample.
func (h *Handle) AnalyzeSample(ctx context.Context, req *BuildRequest, rng *rand.Rand) (*statistics.AnalyzeResult, error) {
	size := statistics.SampleSizeForTarget(h.statsTarget(req.Target))
	if len(req.Rows) > size {
		collector := statistics.NewRowSampleCollector(size, len(req.Schema), rng)
		for _, row := range req.Rows {
			collector.Collect(h.types, req.Schema, row)
		}
		sampled := *req
		sampled.Rows = collector.Rows()
		req = &sampled
	}
	return h.BuildExtendedStats(ctx, req)
}

// AnalyzeRelation samples the relation once and builds every live object
// defined on it. Failures of single objects are collected in the Err of the
// result and do not stop the others.
func (h *Handle) AnalyzeRelation(ctx context.Context, relID int64, inherit bool) (*statistics.AnalyzeResults, error) {
	if h.relations == nil {
		return nil, errors.New("no relation source to sample from")
	}
	rel, ok := h.relations.RelationByID(relID)
	if !ok {
		return nil, errors.Errorf("relation %d does not exist", relID)
	}
	results := &statistics.AnalyzeResults{RelID: relID}
	metas := h.ExtendedStatsOfRelation(relID)
	if len(metas) == 0 {
		return results, nil
	}
	size := statistics.SampleSizeForTarget(h.statsTarget(0))
	rows, totalRows, err := h.relations.SampleRows(ctx, relID, size, inherit)
	if err != nil {
		return nil, errors.Trace(err)
	}
	for _, meta := range metas {
		ar, err := h.BuildExtendedStats(ctx, &BuildRequest{
			StatOID:   meta.StatOID,
			Inherit:   inherit,
			Schema:    rel.Columns,
			Rows:      rows,
			TotalRows: totalRows,
		})
		if err != nil {
			if exterrors.ErrCancelRequested.Equal(err) {
				return nil, err
			}
			statslogutil.StatsLoggerWithContext(ctx).Warn("build extended stats failed",
				zap.String("name", meta.Name), zap.Int64("statOID", meta.StatOID), zap.Error(err))
			results.Err = multierr.Append(results.Err, err)
			continue
		}
		results.Ars = append(results.Ars, ar)
	}
	results.Version = h.lastVersion.Load()
	return results, nil
}

// BuildExtendedStatsForTables analyzes the relations concurrently, at most
// build-concurrency at a time. The returned error combines the failures of
// every relation.
func (h *Handle) BuildExtendedStatsForTables(ctx context.Context, relIDs []int64, inherit bool) ([]*statistics.AnalyzeResults, error) {
	results := make([]*statistics.AnalyzeResults, len(relIDs))
	errs := make([]error, len(relIDs))
	var g errgroup.Group
	g.SetLimit(max(h.cfg.BuildConcurrency, 1))
	for i, relID := range relIDs {
		g.Go(func() error {
			res, err := h.AnalyzeRelation(ctx, relID, inherit)
			if err != nil {
				errs[i] = errors.Annotatef(err, "analyze relation %d", relID)
				return nil
			}
			results[i] = res
			errs[i] = res.Err
			return nil
		})
	}
	_ = g.Wait()
	return results, multierr.Combine(errs...)
}
