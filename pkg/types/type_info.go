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

package types

import (
	"sync"

	"github.com/pingcap/extstats/pkg/util/dbterror/exterrors"
)

// TypeID identifies a data type.
type TypeID uint32

// Builtin type ids.
const (
	InvalidTypeID TypeID = 0
	BoolID        TypeID = 16
	ByteaID       TypeID = 17
	NameID        TypeID = 19
	Int8ID        TypeID = 20
	Int2ID        TypeID = 21
	Int4ID        TypeID = 23
	TextID        TypeID = 25
	PointID       TypeID = 600
	Float4ID      TypeID = 700
	Float8ID      TypeID = 701
	VarcharID     TypeID = 1043
	CStringID     TypeID = 2275
	UUIDID        TypeID = 2950
)

// Special type lengths.
const (
	// VarLenaLen marks a variable-length type carrying a length header.
	VarLenaLen int16 = -1
	// CStringLen marks a NUL-terminated string type.
	CStringLen int16 = -2
	// VarHdrSz is the size of the length header of variable-length values.
	VarHdrSz = 4
	// NameDataLen is the fixed storage size of the name type.
	NameDataLen = 64
)

// Type alignment codes.
const (
	AlignChar   byte = 'c'
	AlignShort  byte = 's'
	AlignInt    byte = 'i'
	AlignDouble byte = 'd'
)

// TypeOps is the set of per-type callbacks the statistics engine relies on.
type TypeOps interface {
	// Hash hashes d, honoring coll for collatable types.
	Hash(d Datum, coll Collation) uint64
	// Output renders d for debug printing.
	Output(d Datum) string
	// Input parses the text form produced by Output.
	Input(s string) (Datum, error)
	// Encode returns the on-disk payload: Len bytes for fixed-length types,
	// the bare payload for variable-length types and the payload plus the
	// terminating NUL for cstrings. Values that do not fit the storage
	// format are rejected rather than truncated.
	Encode(d Datum) ([]byte, error)
	// Decode is the inverse of Encode. The returned datum may reference b.
	Decode(b []byte) (Datum, error)
}

// Comparator is implemented by the TypeOps of types that have an ordering.
type Comparator interface {
	// Compare returns -1, 0 or +1. Neither argument is null.
	Compare(a, b Datum, coll Collation) int
}

// TypeInfo describes a data type.
type TypeInfo struct {
	ID         TypeID
	Name       string
	Len        int16
	ByVal      bool
	Align      byte
	Collatable bool
	Ops        TypeOps
}

// IsVarlena reports whether values of t carry a length header.
func (t *TypeInfo) IsVarlena() bool {
	return t.Len == VarLenaLen
}

// IsCString reports whether values of t are NUL-terminated strings.
func (t *TypeInfo) IsCString() bool {
	return t.Len == CStringLen
}

// DefaultCollation returns the collation values of t use when no collation is given.
func (t *TypeInfo) DefaultCollation() Collation {
	if t.Collatable {
		return DefaultCollation
	}
	return InvalidCollation
}

// RawSize returns the uncompressed storage size of d.
func (t *TypeInfo) RawSize(d Datum) int {
	switch t.Len {
	case VarLenaLen:
		return len(d.GetBytes()) + VarHdrSz
	case CStringLen:
		return len(d.GetBytes()) + 1
	default:
		return int(t.Len)
	}
}

// Registry maps type ids to their descriptions.
type Registry struct {
	mu    sync.RWMutex
	types map[TypeID]*TypeInfo
}

// NewRegistry creates a registry holding the builtin types.
func NewRegistry() *Registry {
	r := &Registry{types: make(map[TypeID]*TypeInfo, len(builtinTypes))}
	for _, t := range builtinTypes {
		r.types[t.ID] = t
	}
	return r
}

// Register adds or replaces a type.
func (r *Registry) Register(t *TypeInfo) error {
	if t.ID == InvalidTypeID || t.Ops == nil {
		return exterrors.ErrUnsupportedType.GenWithStackByArgs(t.ID, "type id and callbacks are required")
	}
	if t.Len == 0 || t.Len < CStringLen || (t.ByVal && (t.Len < 1 || t.Len > 8)) {
		return exterrors.ErrUnsupportedType.GenWithStackByArgs(t.ID, "invalid type length")
	}
	r.mu.Lock()
	r.types[t.ID] = t
	r.mu.Unlock()
	return nil
}

// Lookup returns the description of a type.
func (r *Registry) Lookup(id TypeID) (*TypeInfo, error) {
	r.mu.RLock()
	t, ok := r.types[id]
	r.mu.RUnlock()
	if !ok {
		return nil, exterrors.ErrUnsupportedType.GenWithStackByArgs(id, "unknown type")
	}
	return t, nil
}

// LookupByName returns the description of the type named name.
func (r *Registry) LookupByName(name string) (*TypeInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.types {
		if t.Name == name {
			return t, nil
		}
	}
	return nil, exterrors.ErrUnsupportedType.GenWithStackByArgs(name, "unknown type")
}

// LookupComparator returns the ordering of a type. Types without one cannot
// be part of extended statistics.
func (r *Registry) LookupComparator(id TypeID) (*TypeInfo, Comparator, error) {
	t, err := r.Lookup(id)
	if err != nil {
		return nil, nil, err
	}
	cmp, ok := t.Ops.(Comparator)
	if !ok {
		return nil, nil, exterrors.ErrUnsupportedType.GenWithStackByArgs(t.Name, "missing ordering operator")
	}
	return t, cmp, nil
}

var builtinTypes = []*TypeInfo{
	{ID: BoolID, Name: "bool", Len: 1, ByVal: true, Align: AlignChar, Ops: boolOps{}},
	{ID: Int2ID, Name: "int2", Len: 2, ByVal: true, Align: AlignShort, Ops: intOps{size: 2}},
	{ID: Int4ID, Name: "int4", Len: 4, ByVal: true, Align: AlignInt, Ops: intOps{size: 4}},
	{ID: Int8ID, Name: "int8", Len: 8, ByVal: true, Align: AlignDouble, Ops: intOps{size: 8}},
	{ID: Float4ID, Name: "float4", Len: 4, ByVal: true, Align: AlignInt, Ops: floatOps{size: 4}},
	{ID: Float8ID, Name: "float8", Len: 8, ByVal: true, Align: AlignDouble, Ops: floatOps{size: 8}},
	{ID: TextID, Name: "text", Len: VarLenaLen, Align: AlignInt, Collatable: true, Ops: textOps{}},
	{ID: VarcharID, Name: "varchar", Len: VarLenaLen, Align: AlignInt, Collatable: true, Ops: textOps{}},
	{ID: ByteaID, Name: "bytea", Len: VarLenaLen, Align: AlignInt, Ops: byteaOps{}},
	{ID: NameID, Name: "name", Len: NameDataLen, Align: AlignChar, Ops: nameOps{}},
	{ID: UUIDID, Name: "uuid", Len: 16, Align: AlignChar, Ops: uuidOps{}},
	{ID: CStringID, Name: "cstring", Len: CStringLen, Align: AlignChar, Ops: cstringOps{}},
	{ID: PointID, Name: "point", Len: 16, Align: AlignDouble, Ops: pointOps{}},
}
