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
	"slices"

	"github.com/pingcap/errors"
	"github.com/pingcap/extstats/pkg/types"
	"github.com/pingcap/extstats/pkg/util/dbterror/exterrors"
	"github.com/pingcap/failpoint"
)

const (
	// mcvHeaderSize is the size of {magic, type, nitems, ndims}.
	mcvHeaderSize = 4 * sizeOfUint32
	// dimensionInfoSize is the size of {nvalues, nbytes, nbytesAligned, typlen, typbyval}.
	dimensionInfoSize = 3*sizeOfUint32 + sizeOfUint16 + 1
	// maxMCVDimensionValues is the largest number of distinct values of one
	// dimension addressable by an item index.
	maxMCVDimensionValues = math.MaxUint16
)

// DimensionInfo describes the deduplicated values of one dimension of a
// serialized MCV list.
type DimensionInfo struct {
	NValues int32
	// NBytes is the serialized size of the values.
	NBytes int32
	// NBytesAligned is the arena size needed to hold the values once
	// deserialized.
	NBytesAligned int32
	TypLen        int16
	TypByVal      bool
}

func mcvItemSize(ndims int) int {
	return ndims + 2*sizeOfFloat64 + ndims*sizeOfUint16
}

// dimensionValues is the deduplicated, sorted set of values of a dimension.
type dimensionValues struct {
	tp     *types.TypeInfo
	cmp    types.Comparator
	coll   types.Collation
	values []types.Datum
	info   DimensionInfo
}

func (dv *dimensionValues) search(v types.Datum) (int, bool) {
	return slices.BinarySearchFunc(dv.values, v, func(x, t types.Datum) int {
		return dv.cmp.Compare(x, t, dv.coll)
	})
}

// Marshal serializes the list. reg supplies the ordering and the encoding of
// the value types.
func (m *MCVList) Marshal(reg *types.Registry) ([]byte, error) {
	ndims := m.NDimensions
	if ndims < 1 || ndims > MaxStatsDimensions || len(m.Types) != ndims {
		return nil, exterrors.ErrInternal.GenWithStackByArgs(fmt.Sprintf("invalid number of MCV dimensions %d", ndims))
	}
	if len(m.Items) < 1 || len(m.Items) > MaxMCVItems {
		return nil, exterrors.ErrInternal.GenWithStackByArgs(fmt.Sprintf("invalid number of MCV items %d", len(m.Items)))
	}

	dims := make([]dimensionValues, ndims)
	size := mcvHeaderSize + ndims*sizeOfUint32 + ndims*dimensionInfoSize + len(m.Items)*mcvItemSize(ndims)
	for d := range dims {
		dv := &dims[d]
		tp, cmp, err := reg.LookupComparator(m.Types[d])
		if err != nil {
			return nil, err
		}
		dv.tp, dv.cmp, dv.coll = tp, cmp, tp.DefaultCollation()
		for _, item := range m.Items {
			if !item.IsNull[d] {
				dv.values = append(dv.values, item.Values[d])
			}
		}
		slices.SortFunc(dv.values, func(x, y types.Datum) int {
			return cmp.Compare(x, y, dv.coll)
		})
		dv.values = slices.CompactFunc(dv.values, func(x, y types.Datum) bool {
			return cmp.Compare(x, y, dv.coll) == 0
		})
		if len(dv.values) > maxMCVDimensionValues {
			return nil, exterrors.ErrUnsupportedType.GenWithStackByArgs(tp.Name,
				fmt.Sprintf("%d distinct MCV values in one dimension exceed %d", len(dv.values), maxMCVDimensionValues))
		}
		info := DimensionInfo{NValues: int32(len(dv.values)), TypLen: tp.Len, TypByVal: tp.ByVal}
		switch {
		case tp.ByVal:
			info.NBytes = info.NValues * int32(tp.Len)
		case tp.Len > 0:
			info.NBytes = info.NValues * int32(tp.Len)
			info.NBytesAligned = info.NValues * int32(maxAlignOf(int(tp.Len)))
		default:
			for _, v := range dv.values {
				payload, err := tp.Ops.Encode(v)
				if err != nil {
					return nil, exterrors.ErrUnsupportedType.GenWithStackByArgs(tp.Name, err.Error())
				}
				n := len(payload)
				info.NBytes += int32(sizeOfUint32 + n)
				if tp.IsVarlena() {
					info.NBytesAligned += int32(maxAlignOf(types.VarHdrSz + n))
				} else {
					info.NBytesAligned += int32(maxAlignOf(n))
				}
			}
		}
		dv.info = info
		size += int(info.NBytes)
	}

	buf := make([]byte, 0, size)
	buf = appendUint32(buf, MCVMagic)
	buf = appendUint32(buf, MCVTypeBasic)
	buf = appendUint32(buf, uint32(len(m.Items)))
	buf = appendUint32(buf, uint32(ndims))
	for _, tp := range m.Types {
		buf = appendUint32(buf, uint32(tp))
	}
	for d := range dims {
		info := &dims[d].info
		buf = appendUint32(buf, uint32(info.NValues))
		buf = appendUint32(buf, uint32(info.NBytes))
		buf = appendUint32(buf, uint32(info.NBytesAligned))
		buf = appendUint16(buf, uint16(info.TypLen))
		buf = appendBool(buf, info.TypByVal)
	}
	for d := range dims {
		dv := &dims[d]
		start := len(buf)
		for _, v := range dv.values {
			payload, err := dv.tp.Ops.Encode(v)
			if err != nil {
				return nil, exterrors.ErrUnsupportedType.GenWithStackByArgs(dv.tp.Name, err.Error())
			}
			if dv.tp.Len > 0 {
				if len(payload) != int(dv.tp.Len) {
					return nil, exterrors.ErrInternal.GenWithStackByArgs(
						fmt.Sprintf("type %s encoded %d bytes, expected %d", dv.tp.Name, len(payload), dv.tp.Len))
				}
			} else {
				buf = appendUint32(buf, uint32(len(payload)))
			}
			buf = append(buf, payload...)
		}
		if len(buf)-start != int(dv.info.NBytes) {
			return nil, exterrors.ErrInternal.GenWithStackByArgs(
				fmt.Sprintf("dimension %d serialized %d bytes, expected %d", d, len(buf)-start, dv.info.NBytes))
		}
	}
	for _, item := range m.Items {
		for d := range ndims {
			buf = appendBool(buf, item.IsNull[d])
		}
		buf = appendFloat64(buf, item.Frequency)
		buf = appendFloat64(buf, item.BaseFrequency)
		for d := range ndims {
			var idx int
			if !item.IsNull[d] {
				var found bool
				if idx, found = dims[d].search(item.Values[d]); !found {
					return nil, exterrors.ErrInternal.GenWithStackByArgs("MCV value not found in deduplicated values")
				}
			}
			buf = appendUint16(buf, uint16(idx))
		}
	}
	if len(buf) != size {
		return nil, exterrors.ErrInternal.GenWithStackByArgs(
			fmt.Sprintf("serialized MCV list has %d bytes, expected %d", len(buf), size))
	}
	return buf, nil
}

// UnmarshalMCVList deserializes an MCV list. By-reference values are copied
// into a single arena owned by the result, so data may be released afterwards.
func UnmarshalMCVList(data []byte, reg *types.Registry) (*MCVList, error) {
	failpoint.Inject("mockCorruptMCVBlob", func() {
		data = data[:len(data)-1]
	})
	if len(data) < mcvHeaderSize {
		return nil, badBlob(KindNameMCV, "size %d is smaller than the header", len(data))
	}
	r := newBlobReader(KindNameMCV, data)
	if magic := r.readUint32(); magic != MCVMagic {
		return nil, badBlob(KindNameMCV, "magic %#x, expected %#x", magic, MCVMagic)
	}
	if typ := r.readUint32(); typ != MCVTypeBasic {
		return nil, badBlob(KindNameMCV, "type %d, expected %d", typ, MCVTypeBasic)
	}
	nitems := int(r.readUint32())
	ndims := int(r.readUint32())
	if nitems < 1 || nitems > MaxMCVItems {
		return nil, badBlob(KindNameMCV, "invalid number of items %d", nitems)
	}
	if ndims < 1 || ndims > MaxStatsDimensions {
		return nil, badBlob(KindNameMCV, "invalid number of dimensions %d", ndims)
	}
	if r.remaining() < ndims*(sizeOfUint32+dimensionInfoSize) {
		return nil, badBlob(KindNameMCV, "size %d is smaller than the header", len(data))
	}

	mcv := &MCVList{
		Magic:       MCVMagic,
		Type:        MCVTypeBasic,
		NDimensions: ndims,
		Types:       make([]types.TypeID, ndims),
	}
	tps := make([]*types.TypeInfo, ndims)
	for d := range ndims {
		mcv.Types[d] = types.TypeID(r.readUint32())
		tp, err := reg.Lookup(mcv.Types[d])
		if err != nil {
			return nil, errors.Trace(err)
		}
		tps[d] = tp
	}
	infos := make([]DimensionInfo, ndims)
	expected := mcvHeaderSize + ndims*(sizeOfUint32+dimensionInfoSize) + nitems*mcvItemSize(ndims)
	arenaSize := 0
	for d := range ndims {
		info := &infos[d]
		info.NValues = r.readInt32()
		info.NBytes = r.readInt32()
		info.NBytesAligned = r.readInt32()
		info.TypLen = r.readInt16()
		byval := r.readByte()
		info.TypByVal = byval == 1
		if err := validateDimensionInfo(info, byval, tps[d]); err != nil {
			return nil, err
		}
		expected += int(info.NBytes)
		arenaSize += int(info.NBytesAligned)
	}
	// The exact size is known once the dimension infos are read.
	if r.err == nil && expected != len(data) {
		return nil, badBlob(KindNameMCV, "size %d, expected %d", len(data), expected)
	}

	mcv.arena = make([]byte, arenaSize)
	arenaOff := 0
	values := make([][]types.Datum, ndims)
	for d := range ndims {
		var err error
		values[d], arenaOff, err = readDimensionValues(r, &infos[d], tps[d], mcv.arena, arenaOff)
		if err != nil {
			return nil, err
		}
	}

	items := make([]MCVItem, nitems)
	itemValues := make([]types.Datum, nitems*ndims)
	itemNulls := make([]bool, nitems*ndims)
	mcv.Items = make([]*MCVItem, nitems)
	for i := range items {
		item := &items[i]
		item.Values = itemValues[i*ndims : (i+1)*ndims : (i+1)*ndims]
		item.IsNull = itemNulls[i*ndims : (i+1)*ndims : (i+1)*ndims]
		for d := range ndims {
			switch b := r.readByte(); b {
			case 0, 1:
				item.IsNull[d] = b == 1
			default:
				if r.err == nil {
					return nil, badBlob(KindNameMCV, "invalid null flag %d of item %d", b, i)
				}
			}
		}
		item.Frequency = r.readFloat64()
		item.BaseFrequency = r.readFloat64()
		for d := range ndims {
			idx := int(r.readUint16())
			if r.err != nil || item.IsNull[d] {
				continue
			}
			if idx >= len(values[d]) {
				return nil, badBlob(KindNameMCV, "index %d of item %d exceeds %d values of dimension %d",
					idx, i, len(values[d]), d)
			}
			item.Values[d] = values[d][idx]
		}
		mcv.Items[i] = item
	}
	if err := r.finish(); err != nil {
		return nil, err
	}
	return mcv, nil
}

func validateDimensionInfo(info *DimensionInfo, byval byte, tp *types.TypeInfo) error {
	if byval > 1 {
		return badBlob(KindNameMCV, "invalid by-value flag %d", byval)
	}
	if info.NValues < 0 || info.NValues > maxMCVDimensionValues || info.NBytes < 0 || info.NBytesAligned < 0 {
		return badBlob(KindNameMCV, "invalid dimension info %+v", *info)
	}
	// Type skew between the serialized list and the registry.
	if info.TypLen != tp.Len || info.TypByVal != tp.ByVal {
		return badBlob(KindNameMCV, "type %s has length %d by-value %v, serialized as %d %v",
			tp.Name, tp.Len, tp.ByVal, info.TypLen, info.TypByVal)
	}
	nvalues := int64(info.NValues)
	switch {
	case tp.ByVal:
		if int64(info.NBytes) != nvalues*int64(tp.Len) || info.NBytesAligned != 0 {
			return badBlob(KindNameMCV, "invalid dimension info %+v", *info)
		}
	case tp.Len > 0:
		if int64(info.NBytes) != nvalues*int64(tp.Len) ||
			int64(info.NBytesAligned) != nvalues*int64(maxAlignOf(int(tp.Len))) {
			return badBlob(KindNameMCV, "invalid dimension info %+v", *info)
		}
	default:
		if int64(info.NBytes) < nvalues*sizeOfUint32 ||
			int64(info.NBytesAligned) > int64(info.NBytes)+nvalues*(types.VarHdrSz+maxAlign) {
			return badBlob(KindNameMCV, "invalid dimension info %+v", *info)
		}
	}
	return nil
}

// readDimensionValues decodes the values of one dimension, copying
// by-reference payloads into arena starting at arenaOff.
func readDimensionValues(r *blobReader, info *DimensionInfo, tp *types.TypeInfo,
	arena []byte, arenaOff int) ([]types.Datum, int, error) {
	start, arenaStart := r.off, arenaOff
	values := make([]types.Datum, info.NValues)
	for i := range values {
		var (
			payload []byte
			err     error
		)
		switch {
		case tp.ByVal:
			payload = r.next(int(tp.Len))
		case tp.Len > 0:
			src := r.next(int(tp.Len))
			if src == nil || arenaOff+int(tp.Len) > len(arena) {
				break
			}
			payload = arena[arenaOff : arenaOff+len(src) : arenaOff+len(src)]
			copy(payload, src)
			arenaOff += maxAlignOf(len(src))
		default:
			n := int(r.readUint32())
			src := r.next(n)
			if src == nil {
				break
			}
			hdr := 0
			if tp.IsVarlena() {
				hdr = types.VarHdrSz
			}
			if arenaOff+hdr+n > len(arena) {
				return nil, 0, badBlob(KindNameMCV, "values of type %s overflow %d aligned bytes", tp.Name, info.NBytesAligned)
			}
			if hdr > 0 {
				binary.LittleEndian.PutUint32(arena[arenaOff:], uint32(hdr+n))
			}
			payload = arena[arenaOff+hdr : arenaOff+hdr+n : arenaOff+hdr+n]
			copy(payload, src)
			arenaOff += maxAlignOf(hdr + n)
		}
		if r.err != nil {
			return nil, 0, r.err
		}
		if payload == nil {
			return nil, 0, badBlob(KindNameMCV, "values of type %s overflow %d aligned bytes", tp.Name, info.NBytesAligned)
		}
		if values[i], err = tp.Ops.Decode(payload); err != nil {
			return nil, 0, badBlob(KindNameMCV, "cannot decode value of type %s: %v", tp.Name, err)
		}
	}
	if r.off-start != int(info.NBytes) {
		return nil, 0, badBlob(KindNameMCV, "dimension values take %d bytes, expected %d", r.off-start, info.NBytes)
	}
	if arenaOff-arenaStart != int(info.NBytesAligned) {
		return nil, 0, badBlob(KindNameMCV, "dimension values take %d aligned bytes, expected %d",
			arenaOff-arenaStart, info.NBytesAligned)
	}
	return values, arenaOff, nil
}
