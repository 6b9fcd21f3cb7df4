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
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/extstats/pkg/statistics/extstats"
	"github.com/pingcap/extstats/pkg/statistics/handle/cache"
	statslogutil "github.com/pingcap/extstats/pkg/statistics/handle/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type cacheItem interface {
	MemSize() int64
}

// loadItem reads one blob through the cache. Concurrent loads of the same key
// share one read.
func (h *Handle) loadItem(ctx context.Context, key cache.Key, load func(context.Context) (cacheItem, error)) (cacheItem, error) {
	h.usage.Record(key.StatOID)
	flightKey := fmt.Sprintf("%d/%t/%c", key.StatOID, key.Inherit, byte(key.Kind))
	v, err, _ := h.loadGroup.Do(flightKey, func() (any, error) {
		item, err := load(ctx)
		if err != nil || item == nil {
			return nil, err
		}
		h.statsCache.Put(key.StatOID, key.Inherit, key.Kind, item)
		return item, nil
	})
	if err != nil || v == nil {
		return nil, err
	}
	return v.(cacheItem), nil
}

// LoadNDistinct implements cardinality.StatsLoader.
func (h *Handle) LoadNDistinct(ctx context.Context, statOID int64, inherit bool) (*extstats.MVNDistinct, error) {
	if nd, ok := h.statsCache.GetNDistinct(statOID, inherit); ok {
		h.usage.Record(statOID)
		return nd, nil
	}
	key := cache.Key{StatOID: statOID, Inherit: inherit, Kind: extstats.KindNDistinct}
	item, err := h.loadItem(ctx, key, func(ctx context.Context) (cacheItem, error) {
		nd, err := h.rw.LoadNDistinct(ctx, statOID, inherit)
		if nd == nil {
			return nil, err
		}
		return nd, nil
	})
	if item == nil {
		return nil, err
	}
	return item.(*extstats.MVNDistinct), nil
}

// LoadDependencies implements cardinality.StatsLoader.
func (h *Handle) LoadDependencies(ctx context.Context, statOID int64, inherit bool) (*extstats.MVDependencies, error) {
	if deps, ok := h.statsCache.GetDependencies(statOID, inherit); ok {
		h.usage.Record(statOID)
		return deps, nil
	}
	key := cache.Key{StatOID: statOID, Inherit: inherit, Kind: extstats.KindDependencies}
	item, err := h.loadItem(ctx, key, func(ctx context.Context) (cacheItem, error) {
		deps, err := h.rw.LoadDependencies(ctx, statOID, inherit)
		if deps == nil {
			return nil, err
		}
		return deps, nil
	})
	if item == nil {
		return nil, err
	}
	return item.(*extstats.MVDependencies), nil
}

// LoadMCV implements cardinality.StatsLoader.
func (h *Handle) LoadMCV(ctx context.Context, statOID int64, inherit bool) (*extstats.MCVList, error) {
	if mcv, ok := h.statsCache.GetMCV(statOID, inherit); ok {
		h.usage.Record(statOID)
		return mcv, nil
	}
	key := cache.Key{StatOID: statOID, Inherit: inherit, Kind: extstats.KindMCV}
	item, err := h.loadItem(ctx, key, func(ctx context.Context) (cacheItem, error) {
		mcv, err := h.rw.LoadMCV(ctx, statOID, inherit)
		if mcv == nil {
			return nil, err
		}
		return mcv, nil
	})
	if item == nil {
		return nil, err
	}
	return item.(*extstats.MCVList), nil
}

// SyncLoadExtendedStats loads every built kind of the analyzed objects of the
// relation into the cache, so that the next estimation does not read the
// store. It gives up after timeout.
func (h *Handle) SyncLoadExtendedStats(ctx context.Context, relID int64, inherit bool, timeout time.Duration) error {
	infos := h.StatisticExtInfos(relID, inherit)
	if len(infos) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(h.cfg.BuildConcurrency, 1))
	for _, info := range infos {
		g.Go(func() error {
			var err error
			switch info.Kind {
			case extstats.KindNDistinct:
				_, err = h.LoadNDistinct(gctx, info.StatOID, info.Inherit)
			case extstats.KindDependencies:
				_, err = h.LoadDependencies(gctx, info.StatOID, info.Inherit)
			case extstats.KindMCV:
				_, err = h.LoadMCV(gctx, info.StatOID, info.Inherit)
			}
			return errors.Annotatef(err, "load %s of statistics %d", info.Kind, info.StatOID)
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return errors.Errorf("sync load extended stats timeout: timeout is %v", timeout)
		}
		statslogutil.StatsLoggerWithContext(ctx).Warn("sync load extended stats meets error",
			zap.Int64("relID", relID), zap.Error(err))
		return err
	}
	statslogutil.StatsLoggerWithContext(ctx).Debug("sync load extended stats",
		zap.Int64("relID", relID), zap.Int("kinds", len(infos)), zap.Duration("cost", time.Since(start)))
	return nil
}
