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
	"encoding/json"

	"github.com/pingcap/errors"
	"github.com/pingcap/extstats/pkg/types"
)

// Node names of the JSON form.
const (
	jsonVar               = "var"
	jsonConst             = "const"
	jsonArrayConst        = "array"
	jsonOpExpr            = "op"
	jsonScalarArrayOpExpr = "saop"
	jsonNullTest          = "nulltest"
	jsonBoolExpr          = "bool"
	jsonRelabelType       = "relabel"
	jsonFuncExpr          = "func"
	jsonRestrictInfo      = "restrictinfo"
)

// JSONExpr is the serialized form of an expression tree, used to persist the
// expressions of statistics objects.
type JSONExpr struct {
	Node      string          `json:"node"`
	RelID     int             `json:"rel_id,omitempty"`
	AttNo     int16           `json:"attno,omitempty"`
	Type      types.TypeID    `json:"type,omitempty"`
	Collation types.Collation `json:"collation,omitempty"`
	LevelsUp  int             `json:"levels_up,omitempty"`
	Value     *types.Datum    `json:"value,omitempty"`
	Elems     []types.Datum   `json:"elems,omitempty"`
	IsNull    bool            `json:"is_null,omitempty"`
	OpID      OperatorID      `json:"op,omitempty"`
	UseOr     bool            `json:"use_or,omitempty"`
	NullTest  NullTestType    `json:"null_test,omitempty"`
	BoolOp    BoolExprType    `json:"bool_op,omitempty"`
	Name      string          `json:"name,omitempty"`
	Volatile  bool            `json:"volatile,omitempty"`
	Pseudo    bool            `json:"pseudoconstant,omitempty"`
	Relids    []int           `json:"relids,omitempty"`
	Args      []*JSONExpr     `json:"args,omitempty"`
}

// ToJSONExpr converts e to its serialized form.
func ToJSONExpr(e Expr) (*JSONExpr, error) {
	switch x := e.(type) {
	case *Var:
		return &JSONExpr{Node: jsonVar, RelID: x.RelID, AttNo: x.AttNo, Type: x.Type, Collation: x.Collation, LevelsUp: x.LevelsUp}, nil
	case *Const:
		v := x.Value
		return &JSONExpr{Node: jsonConst, Type: x.Type, Value: &v}, nil
	case *ArrayConst:
		return &JSONExpr{Node: jsonArrayConst, Type: x.ElemType, Elems: x.Elems, IsNull: x.IsNull}, nil
	case *OpExpr:
		args, err := toJSONExprs(x.Args)
		return &JSONExpr{Node: jsonOpExpr, OpID: x.OpID, Args: args}, err
	case *ScalarArrayOpExpr:
		args, err := toJSONExprs(x.Args)
		return &JSONExpr{Node: jsonScalarArrayOpExpr, OpID: x.OpID, UseOr: x.UseOr, Args: args}, err
	case *NullTest:
		args, err := toJSONExprs([]Expr{x.Arg})
		return &JSONExpr{Node: jsonNullTest, NullTest: x.NullTestType, Args: args}, err
	case *BoolExpr:
		args, err := toJSONExprs(x.Args)
		return &JSONExpr{Node: jsonBoolExpr, BoolOp: x.BoolOp, Args: args}, err
	case *RelabelType:
		args, err := toJSONExprs([]Expr{x.Arg})
		return &JSONExpr{Node: jsonRelabelType, Type: x.ResultType, Args: args}, err
	case *FuncExpr:
		args, err := toJSONExprs(x.Args)
		return &JSONExpr{Node: jsonFuncExpr, Name: x.Name, Type: x.ResultType, Volatile: x.Volatile, Args: args}, err
	case *RestrictInfo:
		args, err := toJSONExprs([]Expr{x.Clause})
		return &JSONExpr{Node: jsonRestrictInfo, Pseudo: x.Pseudoconstant, Relids: x.ClauseRelids, Args: args}, err
	}
	return nil, errors.Errorf("cannot serialize expression of type %T", e)
}

func toJSONExprs(exprs []Expr) ([]*JSONExpr, error) {
	out := make([]*JSONExpr, 0, len(exprs))
	for _, e := range exprs {
		je, err := ToJSONExpr(e)
		if err != nil {
			return nil, err
		}
		out = append(out, je)
	}
	return out, nil
}

// Expr converts the serialized form back to an expression.
func (je *JSONExpr) Expr() (Expr, error) {
	if je == nil {
		return nil, errors.New("missing expression node")
	}
	args := make([]Expr, 0, len(je.Args))
	for _, a := range je.Args {
		e, err := a.Expr()
		if err != nil {
			return nil, err
		}
		args = append(args, e)
	}
	single := func() (Expr, error) {
		if len(args) != 1 {
			return nil, errors.Errorf("%s node needs 1 argument, got %d", je.Node, len(args))
		}
		return args[0], nil
	}
	switch je.Node {
	case jsonVar:
		return &Var{RelID: je.RelID, AttNo: je.AttNo, Type: je.Type, Collation: je.Collation, LevelsUp: je.LevelsUp}, nil
	case jsonConst:
		c := &Const{Type: je.Type}
		if je.Value != nil {
			c.Value = *je.Value
		}
		return c, nil
	case jsonArrayConst:
		return &ArrayConst{ElemType: je.Type, Elems: je.Elems, IsNull: je.IsNull}, nil
	case jsonOpExpr:
		return &OpExpr{OpID: je.OpID, Args: args}, nil
	case jsonScalarArrayOpExpr:
		return &ScalarArrayOpExpr{OpID: je.OpID, UseOr: je.UseOr, Args: args}, nil
	case jsonNullTest:
		arg, err := single()
		if err != nil {
			return nil, err
		}
		return &NullTest{Arg: arg, NullTestType: je.NullTest}, nil
	case jsonBoolExpr:
		return &BoolExpr{BoolOp: je.BoolOp, Args: args}, nil
	case jsonRelabelType:
		arg, err := single()
		if err != nil {
			return nil, err
		}
		return &RelabelType{Arg: arg, ResultType: je.Type}, nil
	case jsonFuncExpr:
		return &FuncExpr{Name: je.Name, ResultType: je.Type, Volatile: je.Volatile, Args: args}, nil
	case jsonRestrictInfo:
		arg, err := single()
		if err != nil {
			return nil, err
		}
		return &RestrictInfo{Clause: arg, Pseudoconstant: je.Pseudo, ClauseRelids: je.Relids}, nil
	}
	return nil, errors.Errorf("unknown expression node %q", je.Node)
}

// MarshalExprs serializes a list of expressions to JSON.
func MarshalExprs(exprs []Expr) ([]byte, error) {
	jes, err := toJSONExprs(exprs)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(jes)
	return data, errors.Trace(err)
}

// UnmarshalExprs parses a list of expressions serialized by MarshalExprs.
// Empty input yields no expressions.
func UnmarshalExprs(data []byte) ([]Expr, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var jes []*JSONExpr
	if err := json.Unmarshal(data, &jes); err != nil {
		return nil, errors.Trace(err)
	}
	exprs := make([]Expr, 0, len(jes))
	for _, je := range jes {
		e, err := je.Expr()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}
	return exprs, nil
}
