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
	"bytes"
	"math/rand"
	"sync"
	"unicode/utf8"

	"github.com/pingcap/errors"
	"github.com/pingcap/extstats/pkg/types"
)

// Function is a scalar function callable from FuncExpr.
type Function struct {
	Name       string
	NArgs      int
	ResultType types.TypeID
	Volatile   bool
	// Fn is only called with non-null arguments; functions are strict.
	Fn func(args []types.Datum) (types.Datum, error)
}

// FuncRegistry holds the functions known to the evaluator.
type FuncRegistry struct {
	mu    sync.RWMutex
	funcs map[string]*Function
}

// NewFuncRegistry creates a registry holding the builtin functions.
func NewFuncRegistry() *FuncRegistry {
	r := &FuncRegistry{funcs: make(map[string]*Function)}
	for _, f := range builtinFunctions {
		r.Register(f)
	}
	return r
}

// Register adds or replaces a function.
func (r *FuncRegistry) Register(f *Function) {
	r.mu.Lock()
	r.funcs[f.Name] = f
	r.mu.Unlock()
}

// Lookup returns a function by name.
func (r *FuncRegistry) Lookup(name string) (*Function, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.funcs[name]
	return f, ok
}

var errDivisionByZero = errors.New("division by zero")

var builtinFunctions = []*Function{
	{Name: "lower", NArgs: 1, ResultType: types.TextID, Fn: func(args []types.Datum) (types.Datum, error) {
		return types.NewStringDatum(string(bytes.ToLower(args[0].GetBytes()))), nil
	}},
	{Name: "upper", NArgs: 1, ResultType: types.TextID, Fn: func(args []types.Datum) (types.Datum, error) {
		return types.NewStringDatum(string(bytes.ToUpper(args[0].GetBytes()))), nil
	}},
	{Name: "length", NArgs: 1, ResultType: types.Int4ID, Fn: func(args []types.Datum) (types.Datum, error) {
		return types.NewIntDatum(int64(utf8.RuneCount(args[0].GetBytes()))), nil
	}},
	{Name: "abs", NArgs: 1, ResultType: types.Int8ID, Fn: func(args []types.Datum) (types.Datum, error) {
		v := args[0].GetInt64()
		if v < 0 {
			v = -v
		}
		return types.NewIntDatum(v), nil
	}},
	{Name: "plus", NArgs: 2, ResultType: types.Int8ID, Fn: func(args []types.Datum) (types.Datum, error) {
		return types.NewIntDatum(args[0].GetInt64() + args[1].GetInt64()), nil
	}},
	{Name: "minus", NArgs: 2, ResultType: types.Int8ID, Fn: func(args []types.Datum) (types.Datum, error) {
		return types.NewIntDatum(args[0].GetInt64() - args[1].GetInt64()), nil
	}},
	{Name: "mod", NArgs: 2, ResultType: types.Int8ID, Fn: func(args []types.Datum) (types.Datum, error) {
		if args[1].GetInt64() == 0 {
			return types.Datum{}, errDivisionByZero
		}
		return types.NewIntDatum(args[0].GetInt64() % args[1].GetInt64()), nil
	}},
	{Name: "random", NArgs: 0, ResultType: types.Float8ID, Volatile: true, Fn: func([]types.Datum) (types.Datum, error) {
		return types.NewFloat64Datum(rand.Float64()), nil
	}},
}
