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
	"fmt"
	"strings"

	"github.com/pingcap/extstats/pkg/types"
)

// Expr is a node of a restriction clause or of a statistics expression.
type Expr interface {
	fmt.Stringer
	exprNode()
}

// Var references a column of a relation.
type Var struct {
	RelID     int
	AttNo     int16
	Type      types.TypeID
	Collation types.Collation
	// LevelsUp is non-zero for references to an outer query level.
	LevelsUp int
}

// Const is a constant. A null constant holds a null Value.
type Const struct {
	Type  types.TypeID
	Value types.Datum
}

// ArrayConst is a constant array, the right operand of ScalarArrayOpExpr.
type ArrayConst struct {
	ElemType types.TypeID
	Elems    []types.Datum
	IsNull   bool
}

// OpExpr applies a binary operator.
type OpExpr struct {
	OpID OperatorID
	Args []Expr
}

// ScalarArrayOpExpr is `scalar op ANY(array)` when UseOr is set and
// `scalar op ALL(array)` otherwise.
type ScalarArrayOpExpr struct {
	OpID  OperatorID
	UseOr bool
	Args  []Expr
}

// NullTestType is IS NULL or IS NOT NULL.
type NullTestType int

// NullTest types.
const (
	IsNull NullTestType = iota
	IsNotNull
)

// NullTest is `arg IS [NOT] NULL`.
type NullTest struct {
	Arg          Expr
	NullTestType NullTestType
}

// BoolExprType is AND, OR or NOT.
type BoolExprType int

// Boolean expression types.
const (
	AndExpr BoolExprType = iota
	OrExpr
	NotExpr
)

// BoolExpr combines boolean arguments.
type BoolExpr struct {
	BoolOp BoolExprType
	Args   []Expr
}

// RelabelType is a binary-compatible cast.
type RelabelType struct {
	Arg        Expr
	ResultType types.TypeID
}

// FuncExpr calls a registered function by name.
type FuncExpr struct {
	Name       string
	Args       []Expr
	ResultType types.TypeID
	Volatile   bool
}

// RestrictInfo wraps a clause with planner annotations.
type RestrictInfo struct {
	Clause         Expr
	Pseudoconstant bool
	// ClauseRelids are the relations referenced by Clause.
	ClauseRelids []int
}

func (*Var) exprNode()               {}
func (*Const) exprNode()             {}
func (*ArrayConst) exprNode()        {}
func (*OpExpr) exprNode()            {}
func (*ScalarArrayOpExpr) exprNode() {}
func (*NullTest) exprNode()          {}
func (*BoolExpr) exprNode()          {}
func (*RelabelType) exprNode()       {}
func (*FuncExpr) exprNode()          {}
func (*RestrictInfo) exprNode()      {}

// NewRestrictInfo wraps clause and computes its relids.
func NewRestrictInfo(clause Expr) *RestrictInfo {
	relids := PullVarRelids(clause)
	return &RestrictInfo{
		Clause:         clause,
		Pseudoconstant: len(relids) == 0 && !ContainsVolatile(clause),
		ClauseRelids:   relids,
	}
}

// NewOp builds an OpExpr.
func NewOp(op OperatorID, left, right Expr) *OpExpr {
	return &OpExpr{OpID: op, Args: []Expr{left, right}}
}

// NewAnd builds an AND of args.
func NewAnd(args ...Expr) *BoolExpr {
	return &BoolExpr{BoolOp: AndExpr, Args: args}
}

// NewOr builds an OR of args.
func NewOr(args ...Expr) *BoolExpr {
	return &BoolExpr{BoolOp: OrExpr, Args: args}
}

// NewNot builds a NOT of arg.
func NewNot(arg Expr) *BoolExpr {
	return &BoolExpr{BoolOp: NotExpr, Args: []Expr{arg}}
}

// ExprType returns the result type of e.
func ExprType(e Expr) types.TypeID {
	switch x := e.(type) {
	case *Var:
		return x.Type
	case *Const:
		return x.Type
	case *ArrayConst:
		return x.ElemType
	case *RelabelType:
		return x.ResultType
	case *FuncExpr:
		return x.ResultType
	case *OpExpr, *ScalarArrayOpExpr, *NullTest, *BoolExpr, *RestrictInfo:
		return types.BoolID
	}
	return types.InvalidTypeID
}

func (v *Var) String() string {
	if v.LevelsUp > 0 {
		return fmt.Sprintf("$%d.%d^%d", v.RelID, v.AttNo, v.LevelsUp)
	}
	return fmt.Sprintf("$%d.%d", v.RelID, v.AttNo)
}

func (c *Const) String() string {
	if c.Value.IsNull() {
		return "NULL"
	}
	return c.Value.String()
}

func (a *ArrayConst) String() string {
	if a.IsNull {
		return "NULL::array"
	}
	elems := make([]string, 0, len(a.Elems))
	for _, d := range a.Elems {
		elems = append(elems, d.String())
	}
	return "ARRAY[" + strings.Join(elems, ", ") + "]"
}

func (o *OpExpr) String() string {
	return fmt.Sprintf("op#%d(%s)", o.OpID, joinExprs(o.Args))
}

func (s *ScalarArrayOpExpr) String() string {
	quantifier := "ALL"
	if s.UseOr {
		quantifier = "ANY"
	}
	return fmt.Sprintf("op#%d %s(%s)", s.OpID, quantifier, joinExprs(s.Args))
}

func (n *NullTest) String() string {
	if n.NullTestType == IsNull {
		return n.Arg.String() + " IS NULL"
	}
	return n.Arg.String() + " IS NOT NULL"
}

func (b *BoolExpr) String() string {
	switch b.BoolOp {
	case AndExpr:
		return "and(" + joinExprs(b.Args) + ")"
	case OrExpr:
		return "or(" + joinExprs(b.Args) + ")"
	}
	return "not(" + joinExprs(b.Args) + ")"
}

func (r *RelabelType) String() string {
	return fmt.Sprintf("relabel(%s, %d)", r.Arg, r.ResultType)
}

func (f *FuncExpr) String() string {
	return f.Name + "(" + joinExprs(f.Args) + ")"
}

func (r *RestrictInfo) String() string {
	return r.Clause.String()
}

func joinExprs(args []Expr) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, arg.String())
	}
	return strings.Join(parts, ", ")
}
