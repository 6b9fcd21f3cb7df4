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

package ddl

import (
	"context"
	"fmt"
	"slices"

	"github.com/pingcap/errors"
	"github.com/pingcap/extstats/pkg/expression"
	"github.com/pingcap/extstats/pkg/statistics/handle/logutil"
	"github.com/pingcap/extstats/pkg/statistics/handle/storage"
	"go.uber.org/zap"
)

// ActionType is the kind of a schema change.
type ActionType byte

// Schema changes that affect extended statistics.
const (
	ActionDropTable ActionType = iota + 1
	ActionTruncateTable
	ActionDropColumn
	ActionModifyColumn
)

func (a ActionType) String() string {
	switch a {
	case ActionDropTable:
		return "drop table"
	case ActionTruncateTable:
		return "truncate table"
	case ActionDropColumn:
		return "drop column"
	case ActionModifyColumn:
		return "modify column"
	}
	return fmt.Sprintf("unknown action %d", byte(a))
}

// DDLEvent describes a schema change of a relation.
type DDLEvent struct {
	Type  ActionType
	RelID int64
	// Children lists the inheritance children affected along with the
	// relation.
	Children []int64
	// AttNo is the changed column of column actions.
	AttNo int16
}

func (e *DDLEvent) String() string {
	if e.Type == ActionDropColumn || e.Type == ActionModifyColumn {
		return fmt.Sprintf("(Event Type: %s, Relation ID: %d, Column: %d)", e.Type, e.RelID, e.AttNo)
	}
	return fmt.Sprintf("(Event Type: %s, Relation ID: %d, Children: %v)", e.Type, e.RelID, e.Children)
}

// StatsHandle is the part of the statistics handle the DDL handler drives.
type StatsHandle interface {
	// ExtendedStatsOfRelation returns the live objects of the relation.
	ExtendedStatsOfRelation(relID int64) []*storage.ExtendedStatsMeta
	// InvalidateExtendedStats drops the cached data of the object.
	InvalidateExtendedStats(statOID int64)
	// ReloadExtendedStatistics applies the catalog changes.
	ReloadExtendedStatistics(ctx context.Context) error
}

// Handler keeps extended statistics consistent with schema changes.
type Handler struct {
	ddlEventCh  chan *DDLEvent
	store       storage.Store
	statsHandle StatsHandle
}

// NewDDLHandler creates a new ddl handler.
func NewDDLHandler(store storage.Store, statsHandle StatsHandle) *Handler {
	return &Handler{
		ddlEventCh:  make(chan *DDLEvent, 1000),
		store:       store,
		statsHandle: statsHandle,
	}
}

// DDLEventCh returns the channel of events consumed by Run.
func (h *Handler) DDLEventCh() chan<- *DDLEvent {
	return h.ddlEventCh
}

// Run handles the events sent to DDLEventCh until ctx is done. Errors are
// logged and do not stop the loop.
func (h *Handler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-h.ddlEventCh:
			if err := h.HandleDDLEvent(ctx, t); err != nil {
				logutil.StatsLoggerWithContext(ctx).Error("handle ddl event failed", zap.Stringer("event", t), zap.Error(err))
			}
		}
	}
}

// HandleDDLEvent begins to process a ddl task.
func (h *Handler) HandleDDLEvent(ctx context.Context, t *DDLEvent) error {
	logutil.StatsLoggerWithContext(ctx).Info("Handle ddl event", zap.Stringer("event", t))
	ids := append([]int64{t.RelID}, t.Children...)
	switch t.Type {
	case ActionDropTable:
		// The objects are removed with their data by the next GC.
		for _, id := range ids {
			for _, meta := range h.statsHandle.ExtendedStatsOfRelation(id) {
				if err := h.store.MarkExtendedStatsDeleted(ctx, id, meta.Name, true); err != nil {
					return errors.Trace(err)
				}
			}
		}
	case ActionTruncateTable:
		for _, id := range ids {
			for _, meta := range h.statsHandle.ExtendedStatsOfRelation(id) {
				if err := h.clearData(ctx, meta); err != nil {
					return err
				}
			}
		}
	case ActionDropColumn:
		for _, meta := range h.statsHandle.ExtendedStatsOfRelation(t.RelID) {
			if !referencesColumn(meta, t.AttNo) {
				continue
			}
			if err := h.store.MarkExtendedStatsDeleted(ctx, t.RelID, meta.Name, true); err != nil {
				return errors.Trace(err)
			}
		}
	case ActionModifyColumn:
		// The data was built from values of the old type.
		for _, meta := range h.statsHandle.ExtendedStatsOfRelation(t.RelID) {
			if !referencesColumn(meta, t.AttNo) {
				continue
			}
			if err := h.clearData(ctx, meta); err != nil {
				return err
			}
		}
	default:
		return errors.Errorf("unsupported ddl event %s", t)
	}
	return h.statsHandle.ReloadExtendedStatistics(ctx)
}

func (h *Handler) clearData(ctx context.Context, meta *storage.ExtendedStatsMeta) error {
	for _, inherit := range []bool{false, true} {
		if err := h.store.ClearExtendedStatsData(ctx, meta.StatOID, inherit); err != nil {
			return errors.Trace(err)
		}
	}
	h.statsHandle.InvalidateExtendedStats(meta.StatOID)
	return nil
}

// referencesColumn reports whether a key or an expression of the object
// reads the column.
func referencesColumn(meta *storage.ExtendedStatsMeta, attno int16) bool {
	if slices.Contains(meta.Keys, attno) {
		return true
	}
	for _, e := range meta.Exprs {
		if slices.Contains(expression.PullVarAttnos(e, int(meta.RelID)), attno) {
			return true
		}
	}
	return false
}
