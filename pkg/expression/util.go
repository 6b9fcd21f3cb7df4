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
	"encoding/binary"
	"hash"
	"slices"

	"github.com/pingcap/extstats/pkg/types"
	"github.com/twmb/murmur3"
)

// Children returns the direct sub-expressions of e.
func Children(e Expr) []Expr {
	switch x := e.(type) {
	case *OpExpr:
		return x.Args
	case *ScalarArrayOpExpr:
		return x.Args
	case *NullTest:
		return []Expr{x.Arg}
	case *BoolExpr:
		return x.Args
	case *RelabelType:
		return []Expr{x.Arg}
	case *FuncExpr:
		return x.Args
	case *RestrictInfo:
		return []Expr{x.Clause}
	}
	return nil
}

// Walk calls fn on e and its descendants in pre-order until fn returns false.
func Walk(e Expr, fn func(Expr) bool) bool {
	if e == nil {
		return true
	}
	if !fn(e) {
		return false
	}
	for _, child := range Children(e) {
		if !Walk(child, fn) {
			return false
		}
	}
	return true
}

// PullVarRelids returns the sorted distinct relations referenced at the current query level.
func PullVarRelids(e Expr) []int {
	var relids []int
	Walk(e, func(n Expr) bool {
		if v, ok := n.(*Var); ok && v.LevelsUp == 0 && !slices.Contains(relids, v.RelID) {
			relids = append(relids, v.RelID)
		}
		return true
	})
	slices.Sort(relids)
	return relids
}

// PullVarAttnos returns the sorted distinct attribute numbers of relid referenced by e.
func PullVarAttnos(e Expr, relid int) []int16 {
	var attnos []int16
	Walk(e, func(n Expr) bool {
		if v, ok := n.(*Var); ok && v.LevelsUp == 0 && v.RelID == relid && !slices.Contains(attnos, v.AttNo) {
			attnos = append(attnos, v.AttNo)
		}
		return true
	})
	slices.Sort(attnos)
	return attnos
}

// ContainsVar reports whether e references any column.
func ContainsVar(e Expr) bool {
	return !Walk(e, func(n Expr) bool {
		_, ok := n.(*Var)
		return !ok
	})
}

// ContainsVolatile reports whether e calls a volatile function.
func ContainsVolatile(e Expr) bool {
	return !Walk(e, func(n Expr) bool {
		f, ok := n.(*FuncExpr)
		return !ok || !f.Volatile
	})
}

// IsPseudoConstant reports whether e is constant within one scan.
func IsPseudoConstant(e Expr) bool {
	return !ContainsVar(e) && !ContainsVolatile(e)
}

// StripRelabel removes a single binary-compatible relabeling.
func StripRelabel(e Expr) Expr {
	if r, ok := e.(*RelabelType); ok {
		return r.Arg
	}
	return e
}

// Fingerprint hashes the structure of e. Equal expressions have the same fingerprint.
func Fingerprint(e Expr) uint64 {
	h := murmur3.New64()
	writeFingerprint(h, e)
	return h.Sum64()
}

func writeFingerprint(h hash.Hash64, e Expr) {
	var buf [8]byte
	writeInt := func(v int64) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		_, _ = h.Write(buf[:])
	}
	writeDatum := func(d *types.Datum) {
		writeInt(int64(d.Kind()))
		switch d.Kind() {
		case types.KindString, types.KindBytes:
			writeInt(int64(len(d.GetBytes())))
			_, _ = h.Write(d.GetBytes())
		case types.KindNull:
		default:
			writeInt(d.GetInt64())
		}
	}
	switch x := e.(type) {
	case *Var:
		writeInt(1)
		writeInt(int64(x.RelID))
		writeInt(int64(x.AttNo))
		writeInt(int64(x.LevelsUp))
		writeInt(int64(x.Type))
	case *Const:
		writeInt(2)
		writeInt(int64(x.Type))
		writeDatum(&x.Value)
	case *ArrayConst:
		writeInt(3)
		writeInt(int64(x.ElemType))
		if x.IsNull {
			writeInt(-1)
		} else {
			writeInt(int64(len(x.Elems)))
		}
		for i := range x.Elems {
			writeDatum(&x.Elems[i])
		}
	case *OpExpr:
		writeInt(4)
		writeInt(int64(x.OpID))
	case *ScalarArrayOpExpr:
		writeInt(5)
		writeInt(int64(x.OpID))
		if x.UseOr {
			writeInt(1)
		} else {
			writeInt(0)
		}
	case *NullTest:
		writeInt(6)
		writeInt(int64(x.NullTestType))
	case *BoolExpr:
		writeInt(7)
		writeInt(int64(x.BoolOp))
	case *RelabelType:
		writeInt(8)
		writeInt(int64(x.ResultType))
	case *FuncExpr:
		writeInt(9)
		writeInt(int64(len(x.Name)))
		_, _ = h.Write([]byte(x.Name))
		writeInt(int64(x.ResultType))
	case *RestrictInfo:
		writeInt(10)
	default:
		writeInt(0)
	}
	children := Children(e)
	writeInt(int64(len(children)))
	for _, child := range children {
		writeFingerprint(h, child)
	}
}

// Equal reports whether a and b are structurally identical.
func Equal(a, b Expr) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if Fingerprint(a) != Fingerprint(b) {
		return false
	}
	return deepEqual(a, b)
}

func deepEqual(a, b Expr) bool {
	switch x := a.(type) {
	case *Var:
		y, ok := b.(*Var)
		return ok && *x == *y
	case *Const:
		y, ok := b.(*Const)
		return ok && x.Type == y.Type && x.Value.Equals(&y.Value)
	case *ArrayConst:
		y, ok := b.(*ArrayConst)
		if !ok || x.ElemType != y.ElemType || x.IsNull != y.IsNull || len(x.Elems) != len(y.Elems) {
			return false
		}
		for i := range x.Elems {
			if !x.Elems[i].Equals(&y.Elems[i]) {
				return false
			}
		}
		return true
	case *OpExpr:
		y, ok := b.(*OpExpr)
		return ok && x.OpID == y.OpID && equalList(x.Args, y.Args)
	case *ScalarArrayOpExpr:
		y, ok := b.(*ScalarArrayOpExpr)
		return ok && x.OpID == y.OpID && x.UseOr == y.UseOr && equalList(x.Args, y.Args)
	case *NullTest:
		y, ok := b.(*NullTest)
		return ok && x.NullTestType == y.NullTestType && deepEqual(x.Arg, y.Arg)
	case *BoolExpr:
		y, ok := b.(*BoolExpr)
		return ok && x.BoolOp == y.BoolOp && equalList(x.Args, y.Args)
	case *RelabelType:
		y, ok := b.(*RelabelType)
		return ok && x.ResultType == y.ResultType && deepEqual(x.Arg, y.Arg)
	case *FuncExpr:
		y, ok := b.(*FuncExpr)
		return ok && x.Name == y.Name && x.ResultType == y.ResultType && x.Volatile == y.Volatile && equalList(x.Args, y.Args)
	case *RestrictInfo:
		y, ok := b.(*RestrictInfo)
		return ok && deepEqual(x.Clause, y.Clause)
	}
	return false
}

func equalList(a, b []Expr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !deepEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}
