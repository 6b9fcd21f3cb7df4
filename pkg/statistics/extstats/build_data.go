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
	"context"
	"fmt"

	"github.com/pingcap/extstats/pkg/types"
	"github.com/pingcap/extstats/pkg/util/dbterror/exterrors"
)

// Limits of extended statistics.
const (
	// MaxStatsDimensions is the maximum number of keys of a statistics object.
	MaxStatsDimensions = 8
	// DefaultWidthThreshold is the raw size above which a variable-length
	// value makes its whole sample row ignored.
	DefaultWidthThreshold = 1024
	// DefaultCancelCheckInterval is the number of comparisons or loop steps
	// between two cancellation checks.
	DefaultCancelCheckInterval = 1024
)

// ColumnStats describes one dimension of the build input.
type ColumnStats struct {
	TypeID    types.TypeID
	Collation types.Collation
	TypLen    int16
	TypByVal  bool
	TypAlign  byte
}

// NewColumnStats fills a ColumnStats from a type description, using the
// default collation of the type.
func NewColumnStats(t *types.TypeInfo) ColumnStats {
	return ColumnStats{
		TypeID:    t.ID,
		Collation: t.DefaultCollation(),
		TypLen:    t.Len,
		TypByVal:  t.ByVal,
		TypAlign:  t.Align,
	}
}

// StatsBuildData is the materialized sample a statistics object is built from.
// Values and Nulls are column-major: Values[d][r] is row r of dimension d.
type StatsBuildData struct {
	NumRows int
	// AttNums holds column numbers, then -1, -2, ... for expressions.
	AttNums []int16
	Stats   []ColumnStats
	Values  [][]types.Datum
	Nulls   [][]bool
}

// NewStatsBuildData allocates build data for numRows rows.
func NewStatsBuildData(attnums []int16, stats []ColumnStats, numRows int) *StatsBuildData {
	data := &StatsBuildData{
		NumRows: numRows,
		AttNums: attnums,
		Stats:   stats,
		Values:  make([][]types.Datum, len(attnums)),
		Nulls:   make([][]bool, len(attnums)),
	}
	for i := range attnums {
		data.Values[i] = make([]types.Datum, numRows)
		data.Nulls[i] = make([]bool, numRows)
	}
	return data
}

// NumAttrs returns the number of dimensions.
func (d *StatsBuildData) NumAttrs() int {
	return len(d.AttNums)
}

// Set stores the value of dimension dim in row r.
func (d *StatsBuildData) Set(dim, r int, v types.Datum) {
	d.Values[dim][r] = v
	d.Nulls[dim][r] = v.IsNull()
}

// Validate checks the shape of the data.
func (d *StatsBuildData) Validate() error {
	n := len(d.AttNums)
	if n < 1 || n > MaxStatsDimensions {
		return exterrors.ErrInvalidDefinition.GenWithStackByArgs(
			fmt.Sprintf("statistics need 1 to %d keys, got %d", MaxStatsDimensions, n))
	}
	if len(d.Stats) != n || len(d.Values) != n || len(d.Nulls) != n {
		return exterrors.ErrInternal.GenWithStackByArgs("build data dimensions do not match")
	}
	seen := make(map[int16]struct{}, n)
	for i, attnum := range d.AttNums {
		if attnum == 0 {
			return exterrors.ErrInvalidDefinition.GenWithStackByArgs("attribute number 0 is invalid")
		}
		if _, dup := seen[attnum]; dup {
			return exterrors.ErrInvalidDefinition.GenWithStackByArgs(fmt.Sprintf("duplicate attribute %d", attnum))
		}
		seen[attnum] = struct{}{}
		if len(d.Values[i]) < d.NumRows || len(d.Nulls[i]) < d.NumRows {
			return exterrors.ErrInternal.GenWithStackByArgs("build data has fewer values than rows")
		}
	}
	return nil
}

// Builder builds extended statistics from sample data.
type Builder struct {
	Types               *types.Registry
	WidthThreshold      int
	CancelCheckInterval int
}

// NewBuilder creates a builder with default limits.
func NewBuilder(reg *types.Registry) *Builder {
	return &Builder{
		Types:               reg,
		WidthThreshold:      DefaultWidthThreshold,
		CancelCheckInterval: DefaultCancelCheckInterval,
	}
}

func (b *Builder) cancelCheckInterval() int {
	if b.CancelCheckInterval <= 0 {
		return DefaultCancelCheckInterval
	}
	return b.CancelCheckInterval
}

func checkCanceled(ctx context.Context) error {
	if ctx.Err() != nil {
		return exterrors.ErrCancelRequested.GenWithStackByArgs()
	}
	return nil
}

// dimSupport looks up the types of dims and builds their comparator.
func (b *Builder) dimSupport(data *StatsBuildData, dims []int) ([]*types.TypeInfo, *MultiSortSupport, error) {
	tps := make([]*types.TypeInfo, len(dims))
	mss := NewMultiSortSupport(len(dims))
	for i, dim := range dims {
		tp, cmp, err := b.Types.LookupComparator(data.Stats[dim].TypeID)
		if err != nil {
			return nil, nil, err
		}
		coll := data.Stats[dim].Collation
		if coll == types.InvalidCollation {
			coll = tp.DefaultCollation()
		}
		tps[i] = tp
		mss.AddDimension(i, cmp, coll)
	}
	return tps, mss, nil
}

// checkTypes rejects data containing a type without ordering before any work is done.
func (b *Builder) checkTypes(data *StatsBuildData) error {
	if err := data.Validate(); err != nil {
		return err
	}
	for _, st := range data.Stats {
		if _, _, err := b.Types.LookupComparator(st.TypeID); err != nil {
			return err
		}
	}
	return nil
}
