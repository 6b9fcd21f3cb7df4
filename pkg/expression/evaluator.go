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
	"github.com/pingcap/errors"
	"github.com/pingcap/extstats/pkg/types"
)

// Evaluator computes the value of an expression over one row of a relation.
// row[i] holds the value of attribute i+1.
type Evaluator interface {
	Eval(e Expr, row []types.Datum) (types.Datum, error)
}

// DefaultEvaluator evaluates expressions with the registered operators and functions.
type DefaultEvaluator struct {
	Types *types.Registry
	Ops   *OperatorRegistry
	Funcs *FuncRegistry
}

// NewDefaultEvaluator creates an evaluator over fresh builtin registries.
func NewDefaultEvaluator(reg *types.Registry) *DefaultEvaluator {
	return &DefaultEvaluator{
		Types: reg,
		Ops:   NewOperatorRegistry(reg),
		Funcs: NewFuncRegistry(),
	}
}

var (
	trueDatum  = types.NewBoolDatum(true)
	falseDatum = types.NewBoolDatum(false)
)

// Eval implements Evaluator.
func (ev *DefaultEvaluator) Eval(e Expr, row []types.Datum) (types.Datum, error) {
	switch x := e.(type) {
	case *Var:
		if x.AttNo < 1 || int(x.AttNo) > len(row) {
			return types.Datum{}, errors.Errorf("attribute %d is out of the row of %d columns", x.AttNo, len(row))
		}
		return row[x.AttNo-1], nil
	case *Const:
		return x.Value, nil
	case *RelabelType:
		return ev.Eval(x.Arg, row)
	case *RestrictInfo:
		return ev.Eval(x.Clause, row)
	case *FuncExpr:
		f, ok := ev.Funcs.Lookup(x.Name)
		if !ok {
			return types.Datum{}, errors.Errorf("function %s does not exist", x.Name)
		}
		if len(x.Args) != f.NArgs {
			return types.Datum{}, errors.Errorf("function %s takes %d arguments, got %d", x.Name, f.NArgs, len(x.Args))
		}
		args := make([]types.Datum, 0, len(x.Args))
		for _, arg := range x.Args {
			d, err := ev.Eval(arg, row)
			if err != nil {
				return types.Datum{}, err
			}
			if d.IsNull() {
				return types.Datum{}, nil
			}
			args = append(args, d)
		}
		d, err := f.Fn(args)
		return d, errors.Trace(err)
	case *OpExpr:
		op, ok := ev.Ops.Lookup(x.OpID)
		if !ok || len(x.Args) != 2 {
			return types.Datum{}, errors.Errorf("invalid operator expression %s", x)
		}
		l, err := ev.Eval(x.Args[0], row)
		if err != nil {
			return types.Datum{}, err
		}
		r, err := ev.Eval(x.Args[1], row)
		if err != nil {
			return types.Datum{}, err
		}
		if l.IsNull() || r.IsNull() {
			return types.Datum{}, nil
		}
		return types.NewBoolDatum(op.Fn(l, r, ev.collationOf(x.Args[0]))), nil
	case *ScalarArrayOpExpr:
		return ev.evalScalarArrayOp(x, row)
	case *NullTest:
		d, err := ev.Eval(x.Arg, row)
		if err != nil {
			return types.Datum{}, err
		}
		return types.NewBoolDatum(d.IsNull() == (x.NullTestType == IsNull)), nil
	case *BoolExpr:
		return ev.evalBool(x, row)
	}
	return types.Datum{}, errors.Errorf("cannot evaluate %T", e)
}

func (ev *DefaultEvaluator) collationOf(e Expr) types.Collation {
	if v, ok := StripRelabel(e).(*Var); ok && v.Collation != types.InvalidCollation {
		return v.Collation
	}
	if t, err := ev.Types.Lookup(ExprType(e)); err == nil {
		return t.DefaultCollation()
	}
	return types.InvalidCollation
}

func (ev *DefaultEvaluator) evalScalarArrayOp(x *ScalarArrayOpExpr, row []types.Datum) (types.Datum, error) {
	if len(x.Args) != 2 {
		return types.Datum{}, errors.Errorf("invalid scalar array expression %s", x)
	}
	op, ok := ev.Ops.Lookup(x.OpID)
	arr, isArray := x.Args[1].(*ArrayConst)
	if !ok || !isArray {
		return types.Datum{}, errors.Errorf("invalid scalar array expression %s", x)
	}
	l, err := ev.Eval(x.Args[0], row)
	if err != nil {
		return types.Datum{}, err
	}
	if l.IsNull() || arr.IsNull {
		return types.Datum{}, nil
	}
	coll := ev.collationOf(x.Args[0])
	sawNull := false
	for _, elem := range arr.Elems {
		if elem.IsNull() {
			sawNull = true
			continue
		}
		res := op.Fn(l, elem, coll)
		if x.UseOr && res {
			return trueDatum, nil
		}
		if !x.UseOr && !res {
			return falseDatum, nil
		}
	}
	if sawNull {
		return types.Datum{}, nil
	}
	return types.NewBoolDatum(!x.UseOr), nil
}

// evalBool applies three-valued logic.
func (ev *DefaultEvaluator) evalBool(x *BoolExpr, row []types.Datum) (types.Datum, error) {
	if x.BoolOp == NotExpr {
		d, err := ev.Eval(x.Args[0], row)
		if err != nil || d.IsNull() {
			return types.Datum{}, err
		}
		return types.NewBoolDatum(!d.GetBool()), nil
	}
	sawNull := false
	for _, arg := range x.Args {
		d, err := ev.Eval(arg, row)
		if err != nil {
			return types.Datum{}, err
		}
		switch {
		case d.IsNull():
			sawNull = true
		case x.BoolOp == OrExpr && d.GetBool():
			return trueDatum, nil
		case x.BoolOp == AndExpr && !d.GetBool():
			return falseDatum, nil
		}
	}
	if sawNull {
		return types.Datum{}, nil
	}
	return types.NewBoolDatum(x.BoolOp == AndExpr), nil
}
