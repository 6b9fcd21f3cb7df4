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

package statistics

import (
	"fmt"

	"github.com/pingcap/extstats/pkg/statistics/extstats"
)

// AnalyzeTarget identifies the statistics data built by an analyze: the
// statistics object, and whether the data covers the inheritance tree of the
// relation or only the relation itself.
type AnalyzeTarget struct {
	StatOID int64
	Inherit bool
}

func (t *AnalyzeTarget) String() string {
	return fmt.Sprintf("%d (inherit: %v)", t.StatOID, t.Inherit)
}

// Equals indicates whether two targets are equal.
func (t *AnalyzeTarget) Equals(o *AnalyzeTarget) bool {
	if t == o {
		return true
	}
	if t == nil || o == nil {
		return false
	}
	return t.StatOID == o.StatOID && t.Inherit == o.Inherit
}

// AnalyzeResult is the outcome of building one statistics object. Kinds that
// were not requested are nil.
type AnalyzeResult struct {
	Target       AnalyzeTarget
	NDistinct    *extstats.MVNDistinct
	Dependencies *extstats.MVDependencies
	MCV          *extstats.MCVList
	// SampleRows is the number of sampled rows the statistics were built from.
	SampleRows int
	TotalRows  float64
}

// Kinds returns the kinds that were built.
func (a *AnalyzeResult) Kinds() []extstats.StatsKind {
	kinds := make([]extstats.StatsKind, 0, 3)
	if a.NDistinct != nil {
		kinds = append(kinds, extstats.KindNDistinct)
	}
	if a.Dependencies != nil {
		kinds = append(kinds, extstats.KindDependencies)
	}
	if a.MCV != nil {
		kinds = append(kinds, extstats.KindMCV)
	}
	return kinds
}

// AnalyzeResults represents the analyze results of a relation.
type AnalyzeResults struct {
	Err   error
	RelID int64
	Ars   []*AnalyzeResult
	// Version is the catalog version the results were saved at.
	Version uint64
}
