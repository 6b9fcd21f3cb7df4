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

package cardinality

import (
	"context"

	"github.com/pingcap/extstats/pkg/expression"
	"github.com/pingcap/extstats/pkg/statistics/extstats"
	"github.com/pingcap/extstats/pkg/statistics/handle/logutil"
	"github.com/pingcap/extstats/pkg/types"
	"go.uber.org/zap"
)

// StatsLoader loads deserialized statistics of a statistics object.
// Implementations may return shared instances; the estimator never mutates them.
type StatsLoader interface {
	LoadNDistinct(ctx context.Context, statOID int64, inherit bool) (*extstats.MVNDistinct, error)
	LoadDependencies(ctx context.Context, statOID int64, inherit bool) (*extstats.MVDependencies, error)
	LoadMCV(ctx context.Context, statOID int64, inherit bool) (*extstats.MCVList, error)
}

// SimpleSelectivityFunc estimates the selectivity of an implicitly ANDed
// clause list assuming the columns are independent.
type SimpleSelectivityFunc func(clauses []expression.Expr) float64

// SelectivityContext carries what the estimator needs from the planner.
type SelectivityContext struct {
	Ctx    context.Context
	Ops    *expression.OperatorRegistry
	Types  *types.Registry
	Loader StatsLoader
	// SimpleSelectivity is the per-column estimator of the planner.
	SimpleSelectivity SimpleSelectivityFunc
}

func (sctx *SelectivityContext) context() context.Context {
	if sctx.Ctx == nil {
		return context.Background()
	}
	return sctx.Ctx
}

func (sctx *SelectivityContext) simpleSelectivity(clauses []expression.Expr) float64 {
	if len(clauses) == 0 {
		return 1.0
	}
	return clampProbability(sctx.SimpleSelectivity(clauses))
}

func (sctx *SelectivityContext) logger() *zap.Logger {
	return logutil.StatsLoggerWithContext(sctx.context())
}

// RelOptInfo is the part of a base relation the estimator reads.
type RelOptInfo struct {
	RelID int
	Stats []*extstats.StatisticExtInfo
	// SecurityBarrier is set when the relation is protected by security
	// quals, so only leakproof operators may look at MCV values.
	SecurityBarrier bool
	Inherit         bool
}

func clampProbability(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}
