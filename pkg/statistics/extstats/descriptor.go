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

package extstats

import (
	"fmt"
	"slices"

	"github.com/pingcap/extstats/pkg/expression"
	"github.com/pingcap/extstats/pkg/util/dbterror/exterrors"
)

// StatsKind is the kind of a statistics object.
type StatsKind byte

// Statistics kinds, as stored in the catalog.
const (
	KindNDistinct    StatsKind = 'd'
	KindDependencies StatsKind = 'f'
	KindMCV          StatsKind = 'm'
	// KindExpressions is the per-expression column statistics of the
	// expression keys.
	KindExpressions StatsKind = 'e'
)

// AllKinds lists the kinds built when a definition names none.
var AllKinds = []StatsKind{KindNDistinct, KindDependencies, KindMCV}

// ParseStatsKind validates a kind byte.
func ParseStatsKind(b byte) (StatsKind, error) {
	switch k := StatsKind(b); k {
	case KindNDistinct, KindDependencies, KindMCV, KindExpressions:
		return k, nil
	}
	return 0, exterrors.ErrInvalidDefinition.GenWithStackByArgs(fmt.Sprintf("unknown statistics kind %q", b))
}

// String implements fmt.Stringer.
func (k StatsKind) String() string {
	switch k {
	case KindNDistinct:
		return KindNameNDistinct
	case KindDependencies:
		return KindNameDependencies
	case KindMCV:
		return KindNameMCV
	case KindExpressions:
		return "expressions"
	}
	return fmt.Sprintf("unknown(%d)", byte(k))
}

// StatisticExtInfo describes one kind of one statistics object, as seen by
// the estimator.
type StatisticExtInfo struct {
	StatOID int64
	RelID   int
	Kind    StatsKind
	Inherit bool
	// Keys holds the column keys.
	Keys *AttrSet
	// Exprs holds the expression keys. Expression i is referenced as -(i+1).
	Exprs []expression.Expr
}

// NumKeys returns the number of columns and expressions covered.
func (s *StatisticExtInfo) NumKeys() int {
	return s.Keys.Len() + len(s.Exprs)
}

// MatchExpr returns the reference of the stored expression equal to e, or 0.
func (s *StatisticExtInfo) MatchExpr(e expression.Expr) int16 {
	for i, stored := range s.Exprs {
		if expression.Equal(stored, e) {
			return int16(-(i + 1))
		}
	}
	return 0
}

// HasStatsOfKind reports whether any of stats is of the given kind.
func HasStatsOfKind(stats []*StatisticExtInfo, kind StatsKind) bool {
	for _, s := range stats {
		if s.Kind == kind {
			return true
		}
	}
	return false
}

// Definition is a statistics object as declared by the user.
type Definition struct {
	Name    string
	RelID   int
	Kinds   []StatsKind
	Columns []int16
	Exprs   []expression.Expr
}

// Validate checks the definition and fills the default kinds.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return exterrors.ErrInvalidDefinition.GenWithStackByArgs("name is required")
	}
	nkeys := len(d.Columns) + len(d.Exprs)
	// A single expression only gets per-expression statistics.
	if nkeys < 2 && !(len(d.Columns) == 0 && len(d.Exprs) == 1) {
		return exterrors.ErrInvalidDefinition.GenWithStackByArgs("extended statistics require at least 2 columns")
	}
	if nkeys > MaxStatsDimensions {
		return exterrors.ErrInvalidDefinition.GenWithStackByArgs(
			fmt.Sprintf("cannot have more than %d columns in statistics", MaxStatsDimensions))
	}
	seen := NewAttrSet()
	for _, col := range d.Columns {
		if col <= 0 {
			return exterrors.ErrInvalidDefinition.GenWithStackByArgs(fmt.Sprintf("invalid column %d", col))
		}
		if seen.Contains(int(col)) {
			return exterrors.ErrInvalidDefinition.GenWithStackByArgs(fmt.Sprintf("duplicate column %d in statistics definition", col))
		}
		seen.Add(int(col))
	}
	for i, e := range d.Exprs {
		if expression.ContainsVolatile(e) {
			return exterrors.ErrInvalidDefinition.GenWithStackByArgs("statistics expressions must be immutable")
		}
		for _, o := range d.Exprs[:i] {
			if expression.Equal(o, e) {
				return exterrors.ErrInvalidDefinition.GenWithStackByArgs("duplicate expression in statistics definition")
			}
		}
	}
	if nkeys == 1 {
		d.Kinds = []StatsKind{KindExpressions}
		return nil
	}
	if len(d.Kinds) == 0 {
		d.Kinds = append([]StatsKind(nil), AllKinds...)
	}
	if len(d.Exprs) > 0 && !slices.Contains(d.Kinds, KindExpressions) {
		d.Kinds = append(d.Kinds, KindExpressions)
	}
	return nil
}

// AttNums returns the build dimension references: columns in ascending
// order then -1, -2, ... for the expressions.
func (d *Definition) AttNums() []int16 {
	attnums := make([]int16, 0, len(d.Columns)+len(d.Exprs))
	for _, col := range NewAttrSet(int16sToInts(d.Columns)...).Members() {
		attnums = append(attnums, int16(col))
	}
	for i := range d.Exprs {
		attnums = append(attnums, int16(-(i + 1)))
	}
	return attnums
}

func int16sToInts(s []int16) []int {
	r := make([]int, len(s))
	for i, v := range s {
		r[i] = int(v)
	}
	return r
}
