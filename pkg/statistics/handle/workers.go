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
	"time"

	"github.com/pingcap/extstats/pkg/statistics/handle/ddl"
	statslogutil "github.com/pingcap/extstats/pkg/statistics/handle/logutil"
	"go.uber.org/zap"
)

// HandleDDLEvent applies a schema change to the extended statistics of the
// relation.
func (h *Handle) HandleDDLEvent(ctx context.Context, e *ddl.DDLEvent) error {
	return h.ddlHandler.HandleDDLEvent(ctx, e)
}

// DDLEventCh returns the channel of schema changes consumed by the workers
// started with StartWorkers.
func (h *Handle) DDLEventCh() chan<- *ddl.DDLEvent {
	return h.ddlHandler.DDLEventCh()
}

// UpdateModifyCount records changed rows of a relation. The relation is
// rebuilt by the auto analyze worker once enough of it changed.
func (h *Handle) UpdateModifyCount(relID int64, inherit bool, changedRows, totalRows float64) {
	h.refresher.UpdateModifyCount(relID, inherit, changedRows, totalRows)
}

// HandleAutoAnalyze starts rebuilding the relations that changed the most.
// It returns whether any build was started.
func (h *Handle) HandleAutoAnalyze() bool {
	return h.refresher.AnalyzeHighestPriorityTables()
}

// WaitAutoAnalyzeFinishedForTest waits for the running auto analyze builds.
func (h *Handle) WaitAutoAnalyzeFinishedForTest() {
	h.refresher.WaitAutoAnalyzeFinishedForTest()
}

// StartWorkers starts handling DDL events and checking for auto analyze every
// autoAnalyzeInterval. It does nothing if the workers are running.
func (h *Handle) StartWorkers(autoAnalyzeInterval time.Duration) {
	h.workers.Lock()
	defer h.workers.Unlock()
	if h.workers.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.workers.cancel = cancel
	h.workers.wg.Add(2)
	go func() {
		defer h.workers.wg.Done()
		h.ddlHandler.Run(ctx)
	}()
	go func() {
		defer h.workers.wg.Done()
		h.refresher.Run(ctx, autoAnalyzeInterval)
	}()
	statslogutil.StatsLogger().Info("extended stats workers started", zap.Duration("autoAnalyzeInterval", autoAnalyzeInterval))
}

// StopWorkers stops the workers started by StartWorkers and waits for them.
func (h *Handle) StopWorkers() {
	h.workers.Lock()
	defer h.workers.Unlock()
	if h.workers.cancel == nil {
		return
	}
	h.workers.cancel()
	h.workers.wg.Wait()
	h.workers.cancel = nil
}
