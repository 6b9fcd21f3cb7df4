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
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pingcap/extstats/pkg/util/dbterror/exterrors"
)

// Names of the statistics kinds used in error messages and metrics.
const (
	KindNameNDistinct    = "ndistinct"
	KindNameDependencies = "dependencies"
	KindNameMCV          = "mcv"
)

const (
	sizeOfUint16  = 2
	sizeOfUint32  = 4
	sizeOfFloat64 = 8
	// maxAlign is the alignment of by-reference values copied into the
	// arena of a deserialized MCV list.
	maxAlign = 8
)

func maxAlignOf(n int) int {
	return (n + maxAlign - 1) &^ (maxAlign - 1)
}

func badBlob(kind string, format string, args ...any) error {
	return exterrors.ErrBadBlob.GenWithStackByArgs(kind, fmt.Sprintf(format, args...))
}

// blobReader decodes little-endian fields and remembers the first overrun.
type blobReader struct {
	kind string
	data []byte
	off  int
	err  error
}

func newBlobReader(kind string, data []byte) *blobReader {
	return &blobReader{kind: kind, data: data}
}

func (r *blobReader) remaining() int {
	return len(r.data) - r.off
}

func (r *blobReader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.remaining() < n {
		r.err = badBlob(r.kind, "unexpected end of data at offset %d, need %d bytes", r.off, n)
		return nil
	}
	b := r.data[r.off : r.off+n : r.off+n]
	r.off += n
	return b
}

func (r *blobReader) readUint32() uint32 {
	if b := r.next(sizeOfUint32); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *blobReader) readInt32() int32 {
	return int32(r.readUint32())
}

func (r *blobReader) readUint16() uint16 {
	if b := r.next(sizeOfUint16); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *blobReader) readInt16() int16 {
	return int16(r.readUint16())
}

func (r *blobReader) readFloat64() float64 {
	if b := r.next(sizeOfFloat64); b != nil {
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return 0
}

func (r *blobReader) readByte() byte {
	if b := r.next(1); b != nil {
		return b[0]
	}
	return 0
}

// finish fails unless the whole input was consumed.
func (r *blobReader) finish() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.data) {
		return badBlob(r.kind, "%d trailing bytes", len(r.data)-r.off)
	}
	return nil
}

func appendUint32(b []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(b, v)
}

func appendUint16(b []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(b, v)
}

func appendFloat64(b []byte, v float64) []byte {
	return binary.LittleEndian.AppendUint64(b, math.Float64bits(v))
}

func appendBool(b []byte, v bool) []byte {
	if v {
		return append(b, 1)
	}
	return append(b, 0)
}

// attrItemsHeaderSize is the size of {magic, type, count}.
const attrItemsHeaderSize = 3 * sizeOfUint32

// attrItem is the common shape of n-distinct and dependency items.
type attrItem struct {
	value float64
	attrs []int16
}

func attrItemSize(natts int) int {
	return sizeOfFloat64 + sizeOfUint16 + natts*sizeOfUint16
}

func marshalAttrItems(kind string, magic, typ uint32, items []attrItem) ([]byte, error) {
	if len(items) == 0 {
		return nil, exterrors.ErrInternal.GenWithStackByArgs(fmt.Sprintf("serializing empty %s", kind))
	}
	size := attrItemsHeaderSize
	for _, item := range items {
		if len(item.attrs) < 2 || len(item.attrs) > MaxStatsDimensions {
			return nil, exterrors.ErrInternal.GenWithStackByArgs(
				fmt.Sprintf("invalid number of attributes %d in %s", len(item.attrs), kind))
		}
		size += attrItemSize(len(item.attrs))
	}
	buf := make([]byte, 0, size)
	buf = appendUint32(buf, magic)
	buf = appendUint32(buf, typ)
	buf = appendUint32(buf, uint32(len(items)))
	for _, item := range items {
		buf = appendFloat64(buf, item.value)
		buf = appendUint16(buf, uint16(len(item.attrs)))
		for _, attr := range item.attrs {
			buf = appendUint16(buf, uint16(attr))
		}
	}
	if len(buf) != size {
		return nil, exterrors.ErrInternal.GenWithStackByArgs(
			fmt.Sprintf("serialized %s has %d bytes, expected %d", kind, len(buf), size))
	}
	return buf, nil
}

func unmarshalAttrItems(kind string, magic, typ uint32, data []byte) ([]attrItem, error) {
	if len(data) < attrItemsHeaderSize {
		return nil, badBlob(kind, "size %d is smaller than the header", len(data))
	}
	r := newBlobReader(kind, data)
	if m := r.readUint32(); m != magic {
		return nil, badBlob(kind, "magic %#x, expected %#x", m, magic)
	}
	if t := r.readUint32(); t != typ {
		return nil, badBlob(kind, "type %d, expected %d", t, typ)
	}
	count := int(r.readUint32())
	if count == 0 {
		return nil, badBlob(kind, "no items")
	}
	if minSize := count * attrItemSize(2); r.remaining() < minSize {
		return nil, badBlob(kind, "%d items need at least %d bytes, got %d", count, minSize, r.remaining())
	}
	items := make([]attrItem, count)
	for i := range items {
		items[i].value = r.readFloat64()
		natts := int(r.readInt16())
		if r.err == nil && (natts < 2 || natts > MaxStatsDimensions) {
			return nil, badBlob(kind, "invalid number of attributes %d", natts)
		}
		attrs := make([]int16, 0, natts)
		for range natts {
			attrs = append(attrs, r.readInt16())
		}
		if r.err != nil {
			return nil, r.err
		}
		items[i].attrs = attrs
	}
	if err := r.finish(); err != nil {
		return nil, err
	}
	return items, nil
}

// Marshal serializes the n-distinct coefficients.
func (n *MVNDistinct) Marshal() ([]byte, error) {
	items := make([]attrItem, len(n.Items))
	for i, item := range n.Items {
		items[i] = attrItem{value: item.NDistinct, attrs: item.Attributes}
	}
	return marshalAttrItems(KindNameNDistinct, NDistinctMagic, NDistinctTypeBasic, items)
}

// UnmarshalNDistinct deserializes n-distinct coefficients.
func UnmarshalNDistinct(data []byte) (*MVNDistinct, error) {
	items, err := unmarshalAttrItems(KindNameNDistinct, NDistinctMagic, NDistinctTypeBasic, data)
	if err != nil {
		return nil, err
	}
	result := &MVNDistinct{Magic: NDistinctMagic, Type: NDistinctTypeBasic, Items: make([]MVNDistinctItem, len(items))}
	for i, item := range items {
		result.Items[i] = MVNDistinctItem{NDistinct: item.value, Attributes: item.attrs}
	}
	return result, nil
}

// Marshal serializes the functional dependencies.
func (d *MVDependencies) Marshal() ([]byte, error) {
	items := make([]attrItem, len(d.Deps))
	for i, dep := range d.Deps {
		items[i] = attrItem{value: dep.Degree, attrs: dep.Attributes}
	}
	return marshalAttrItems(KindNameDependencies, DependenciesMagic, DependenciesTypeBasic, items)
}

// UnmarshalDependencies deserializes functional dependencies.
func UnmarshalDependencies(data []byte) (*MVDependencies, error) {
	items, err := unmarshalAttrItems(KindNameDependencies, DependenciesMagic, DependenciesTypeBasic, data)
	if err != nil {
		return nil, err
	}
	result := &MVDependencies{Magic: DependenciesMagic, Type: DependenciesTypeBasic, Deps: make([]*MVDependency, len(items))}
	for i, item := range items {
		result.Deps[i] = &MVDependency{Degree: item.value, Attributes: item.attrs}
	}
	return result, nil
}
