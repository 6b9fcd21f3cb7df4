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
	"sync"

	"github.com/pingcap/extstats/pkg/types"
)

// OperatorID identifies an operator.
type OperatorID uint32

// SelFunc is the restriction selectivity estimator attached to an operator.
// Statistics code classifies operators by it.
type SelFunc int

// Restriction estimators.
const (
	SelOther SelFunc = iota
	SelEq
	SelNeq
	SelScalarLt
	SelScalarLe
	SelScalarGt
	SelScalarGe
)

// Builtin comparison operator names.
const (
	OpNameEQ   = "="
	OpNameNE   = "<>"
	OpNameLT   = "<"
	OpNameLE   = "<="
	OpNameGT   = ">"
	OpNameGE   = ">="
	OpNameLike = "~~"
)

// OperatorFunc evaluates an operator on two non-null arguments.
type OperatorFunc func(a, b types.Datum, coll types.Collation) bool

// Operator describes a boolean binary operator.
type Operator struct {
	ID        OperatorID
	Name      string
	Left      types.TypeID
	Right     types.TypeID
	Restrict  SelFunc
	Leakproof bool
	Fn        OperatorFunc
}

type opKey struct {
	name        string
	left, right types.TypeID
}

// OperatorRegistry holds the operators known to the planner.
type OperatorRegistry struct {
	mu     sync.RWMutex
	byID   map[OperatorID]*Operator
	byName map[opKey]*Operator
	nextID OperatorID
}

// firstOperatorID is the id of the first registered operator.
const firstOperatorID OperatorID = 10000

var comparisonOperators = []struct {
	name     string
	restrict SelFunc
	holds    func(cmp int) bool
}{
	{OpNameEQ, SelEq, func(c int) bool { return c == 0 }},
	{OpNameNE, SelNeq, func(c int) bool { return c != 0 }},
	{OpNameLT, SelScalarLt, func(c int) bool { return c < 0 }},
	{OpNameLE, SelScalarLe, func(c int) bool { return c <= 0 }},
	{OpNameGT, SelScalarGt, func(c int) bool { return c > 0 }},
	{OpNameGE, SelScalarGe, func(c int) bool { return c >= 0 }},
}

var orderedBuiltinTypes = []types.TypeID{
	types.BoolID, types.Int2ID, types.Int4ID, types.Int8ID, types.Float4ID, types.Float8ID,
	types.TextID, types.VarcharID, types.ByteaID, types.NameID, types.UUIDID, types.CStringID,
}

// NewOperatorRegistry creates a registry holding the comparison operators of
// every ordered builtin type plus LIKE on text.
func NewOperatorRegistry(reg *types.Registry) *OperatorRegistry {
	r := &OperatorRegistry{
		byID:   make(map[OperatorID]*Operator),
		byName: make(map[opKey]*Operator),
		nextID: firstOperatorID,
	}
	for _, id := range orderedBuiltinTypes {
		if _, err := r.RegisterComparisons(reg, id); err != nil {
			// Builtin types always have an ordering.
			panic(err)
		}
	}
	r.Register(&Operator{
		Name:     OpNameLike,
		Left:     types.TextID,
		Right:    types.TextID,
		Restrict: SelOther,
		Fn: func(a, b types.Datum, _ types.Collation) bool {
			return likeMatch(a.GetBytes(), b.GetBytes())
		},
	})
	return r
}

// RegisterComparisons registers the six comparison operators of an ordered type
// and returns them in the order =, <>, <, <=, >, >=.
func (r *OperatorRegistry) RegisterComparisons(reg *types.Registry, id types.TypeID) ([]*Operator, error) {
	_, cmp, err := reg.LookupComparator(id)
	if err != nil {
		return nil, err
	}
	ops := make([]*Operator, 0, len(comparisonOperators))
	for _, c := range comparisonOperators {
		holds := c.holds
		op := &Operator{
			Name:      c.name,
			Left:      id,
			Right:     id,
			Restrict:  c.restrict,
			Leakproof: true,
			Fn: func(a, b types.Datum, coll types.Collation) bool {
				return holds(cmp.Compare(a, b, coll))
			},
		}
		r.Register(op)
		ops = append(ops, op)
	}
	return ops, nil
}

// Register assigns an id to op and adds it to the registry.
func (r *OperatorRegistry) Register(op *Operator) OperatorID {
	r.mu.Lock()
	defer r.mu.Unlock()
	op.ID = r.nextID
	r.nextID++
	r.byID[op.ID] = op
	r.byName[opKey{op.Name, op.Left, op.Right}] = op
	return op.ID
}

// Lookup returns the operator with the given id.
func (r *OperatorRegistry) Lookup(id OperatorID) (*Operator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.byID[id]
	return op, ok
}

// LookupByName finds an operator by name and argument types.
func (r *OperatorRegistry) LookupByName(name string, left, right types.TypeID) (*Operator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.byName[opKey{name, left, right}]
	return op, ok
}

// MustLookupByName is LookupByName for operators known to exist.
func (r *OperatorRegistry) MustLookupByName(name string, left, right types.TypeID) *Operator {
	op, ok := r.LookupByName(name, left, right)
	if !ok {
		panic("operator " + name + " does not exist")
	}
	return op
}

// likeMatch implements SQL LIKE with % and _ wildcards and backslash escapes.
func likeMatch(s, pattern []byte) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '%':
			for len(pattern) > 0 && pattern[0] == '%' {
				pattern = pattern[1:]
			}
			if len(pattern) == 0 {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if likeMatch(s[i:], pattern) {
					return true
				}
			}
			return false
		case '_':
			if len(s) == 0 {
				return false
			}
		case '\\':
			if len(pattern) > 1 {
				pattern = pattern[1:]
			}
			fallthrough
		default:
			if len(s) == 0 || s[0] != pattern[0] {
				return false
			}
		}
		s, pattern = s[1:], pattern[1:]
	}
	return len(s) == 0
}
