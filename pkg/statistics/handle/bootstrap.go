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
	"fmt"
	"slices"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/extstats/pkg/expression"
	"github.com/pingcap/extstats/pkg/statistics/extstats"
	statslogutil "github.com/pingcap/extstats/pkg/statistics/handle/logutil"
	"github.com/pingcap/extstats/pkg/statistics/handle/storage"
	"github.com/pingcap/extstats/pkg/util/dbterror/exterrors"
	"go.uber.org/zap"
)

func sortMetas(metas []*storage.ExtendedStatsMeta) {
	slices.SortFunc(metas, func(a, b *storage.ExtendedStatsMeta) int {
		switch {
		case a.StatOID < b.StatOID:
			return -1
		case a.StatOID > b.StatOID:
			return 1
		}
		return 0
	})
}

// InitExtendedStats loads the whole catalog. It is called once when the
// handle starts; later changes are picked up by ReloadExtendedStatistics.
func (h *Handle) InitExtendedStats(ctx context.Context) error {
	start := time.Now()
	metas, err := h.rw.Store().ListExtendedStats(ctx, 0, 0)
	if err != nil {
		return errors.Trace(err)
	}
	live := make(map[int64]*storage.ExtendedStatsMeta, len(metas))
	var version uint64
	for _, meta := range metas {
		version = max(version, meta.Version)
		if meta.Status != storage.ExtendedStatsDeleted {
			live[meta.StatOID] = meta
		}
	}
	h.mu.Lock()
	h.mu.metas = live
	h.mu.Unlock()
	h.statsCache.Clear()
	h.lastVersion.Store(version)
	statslogutil.StatsLoggerWithContext(ctx).Info("complete to init extended stats",
		zap.Int("objects", len(live)), zap.Uint64("version", version), zap.Duration("cost", time.Since(start)))
	return nil
}

// ReloadExtendedStatistics applies the catalog changes made since the last
// reload: new and rebuilt objects replace the known ones, and deleted
// objects are forgotten. Cached data of changed objects is dropped.
func (h *Handle) ReloadExtendedStatistics(ctx context.Context) error {
	since := h.lastVersion.Load()
	metas, err := h.rw.Store().ListExtendedStats(ctx, 0, since)
	if err != nil {
		return errors.Trace(err)
	}
	if len(metas) == 0 {
		return nil
	}
	version := since
	h.mu.Lock()
	for _, meta := range metas {
		version = max(version, meta.Version)
		if meta.Status == storage.ExtendedStatsDeleted {
			delete(h.mu.metas, meta.StatOID)
			h.usage.Forget(meta.StatOID)
		} else {
			h.mu.metas[meta.StatOID] = meta
		}
		h.statsCache.Invalidate(meta.StatOID)
	}
	h.mu.Unlock()
	// Concurrent reloads may both apply the same changes; the version only
	// moves forward.
	for {
		cur := h.lastVersion.Load()
		if cur >= version || h.lastVersion.CompareAndSwap(cur, version) {
			break
		}
	}
	statslogutil.StatsLoggerWithContext(ctx).Debug("reload extended stats",
		zap.Int("changed", len(metas)), zap.Uint64("since", since), zap.Uint64("version", version))
	return nil
}

// checkRelationColumns checks that the columns and expressions of def
// reference existing columns of its relation.
func (h *Handle) checkRelationColumns(def *extstats.Definition) error {
	rel, ok := h.relations.RelationByID(int64(def.RelID))
	if !ok {
		return exterrors.ErrInvalidDefinition.GenWithStackByArgs(fmt.Sprintf("relation %d does not exist", def.RelID))
	}
	ncols := len(rel.Columns)
	check := func(attno int16) error {
		if attno < 1 || int(attno) > ncols {
			return exterrors.ErrInvalidDefinition.GenWithStackByArgs(
				fmt.Sprintf("column %d does not exist in relation %s", attno, rel.Name))
		}
		return nil
	}
	for _, col := range def.Columns {
		if err := check(col); err != nil {
			return err
		}
	}
	for _, e := range def.Exprs {
		for _, attno := range expression.PullVarAttnos(e, def.RelID) {
			if err := check(attno); err != nil {
				return err
			}
		}
	}
	return nil
}
