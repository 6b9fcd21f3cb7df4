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

package expression

import (
	"testing"

	"github.com/pingcap/extstats/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestPersistExprs(t *testing.T) {
	reg := types.NewRegistry()
	ops := NewOperatorRegistry(reg)
	eq := ops.MustLookupByName(OpNameEQ, types.Int4ID, types.Int4ID).ID
	text := &Var{RelID: 1, AttNo: 2, Type: types.TextID, Collation: types.DefaultCollation}
	exprs := []Expr{
		&FuncExpr{Name: "lower", Args: []Expr{text}, ResultType: types.TextID},
		&FuncExpr{Name: "plus", Args: []Expr{intVar(1), &RelabelType{Arg: intVar(3), ResultType: types.Int8ID}}, ResultType: types.Int8ID},
		NewOr(
			NewOp(eq, intVar(1), intConst(-7)),
			&NullTest{Arg: text, NullTestType: IsNotNull},
			NewNot(&ScalarArrayOpExpr{OpID: eq, UseOr: true, Args: []Expr{intVar(1), &ArrayConst{ElemType: types.Int4ID, Elems: types.MakeDatums(1, nil, 3)}}}),
		),
		NewRestrictInfo(NewOp(eq, intVar(4), &Const{Type: types.Int4ID})),
		&Const{Type: types.TextID, Value: types.NewStringDatum("x")},
	}
	data, err := MarshalExprs(exprs)
	require.NoError(t, err)
	got, err := UnmarshalExprs(data)
	require.NoError(t, err)
	require.Len(t, got, len(exprs))
	for i := range exprs {
		require.True(t, Equal(exprs[i], got[i]), "expression %d: %s != %s", i, exprs[i], got[i])
	}
	require.Equal(t, exprs[3].(*RestrictInfo).ClauseRelids, got[3].(*RestrictInfo).ClauseRelids)

	none, err := UnmarshalExprs(nil)
	require.NoError(t, err)
	require.Empty(t, none)

	_, err = UnmarshalExprs([]byte(`[{"node":"window"}]`))
	require.ErrorContains(t, err, "window")
	_, err = UnmarshalExprs([]byte(`[{"node":"nulltest"}]`))
	require.Error(t, err)
	_, err = UnmarshalExprs([]byte(`[{"node":"const","value":{"k":9}}]`))
	require.Error(t, err)
}
