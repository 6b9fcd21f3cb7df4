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

	"github.com/pingcap/errors"
	"github.com/pingcap/extstats/pkg/expression"
	"github.com/pingcap/extstats/pkg/statistics/extstats"
	"github.com/pingcap/extstats/pkg/types"
	"github.com/pingcap/extstats/pkg/util/dbterror/exterrors"
)

// BuildDataFromSample materializes the build data of a statistics object on
// the columns keys and the expressions exprs from sampled rows. schema gives
// the type of every row column; column n of a row is keys value n. The
// expressions are evaluated on every row with ev.
func BuildDataFromSample(rows [][]types.Datum, schema []types.TypeID, keys []int16, exprs []expression.Expr,
	reg *types.Registry, ev expression.Evaluator) (*extstats.StatsBuildData, error) {
	ndims := len(keys) + len(exprs)
	attnums := make([]int16, 0, ndims)
	stats := make([]extstats.ColumnStats, 0, ndims)
	for _, key := range keys {
		if key < 1 || int(key) > len(schema) {
			return nil, exterrors.ErrInvalidDefinition.GenWithStackByArgs(
				fmt.Sprintf("column %d is out of the %d sampled columns", key, len(schema)))
		}
		tp, err := reg.Lookup(schema[key-1])
		if err != nil {
			return nil, err
		}
		attnums = append(attnums, key)
		stats = append(stats, extstats.NewColumnStats(tp))
	}
	for i, e := range exprs {
		if expression.ContainsVolatile(e) {
			return nil, exterrors.ErrInvalidDefinition.GenWithStackByArgs(
				fmt.Sprintf("expression %s is volatile", e))
		}
		tp, err := reg.Lookup(expression.ExprType(e))
		if err != nil {
			return nil, err
		}
		attnums = append(attnums, int16(-(i + 1)))
		stats = append(stats, extstats.NewColumnStats(tp))
	}

	data := extstats.NewStatsBuildData(attnums, stats, len(rows))
	for r, row := range rows {
		for d, key := range keys {
			if int(key) > len(row) {
				return nil, exterrors.ErrInternal.GenWithStackByArgs(
					fmt.Sprintf("sample row %d has %d columns", r, len(row)))
			}
			var v types.Datum
			row[key-1].Copy(&v)
			data.Set(d, r, v)
		}
		for i, e := range exprs {
			v, err := ev.Eval(e, row)
			if err != nil {
				return nil, errors.Annotatef(err, "evaluate expression %s", e)
			}
			data.Set(len(keys)+i, r, v)
		}
	}
	return data, nil
}
