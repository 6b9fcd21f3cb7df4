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
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dgryski/go-farm"
	"github.com/google/uuid"
	"github.com/pingcap/errors"
)

func hashUint64(v uint64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return farm.Fingerprint64(buf[:])
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

type boolOps struct{}

func (boolOps) Compare(a, b Datum, _ Collation) int {
	return compareInt64(boolToInt64(a.GetBool()), boolToInt64(b.GetBool()))
}

func (boolOps) Hash(d Datum, _ Collation) uint64 {
	return hashUint64(uint64(boolToInt64(d.GetBool())))
}

func (boolOps) Output(d Datum) string {
	return strconv.FormatBool(d.GetBool())
}

func (boolOps) Input(s string) (Datum, error) {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return Datum{}, errors.Trace(err)
	}
	return NewBoolDatum(b), nil
}

func (boolOps) Encode(d Datum) ([]byte, error) {
	return []byte{byte(boolToInt64(d.GetBool()))}, nil
}

func (boolOps) Decode(b []byte) (Datum, error) {
	if len(b) != 1 {
		return Datum{}, errors.Errorf("bool value needs 1 byte, got %d", len(b))
	}
	return NewBoolDatum(b[0] != 0), nil
}

// intOps serves signed integers stored in size bytes.
type intOps struct {
	size int
}

func (intOps) Compare(a, b Datum, _ Collation) int {
	return compareInt64(a.GetInt64(), b.GetInt64())
}

func (intOps) Hash(d Datum, _ Collation) uint64 {
	return hashUint64(uint64(d.GetInt64()))
}

func (intOps) Output(d Datum) string {
	return strconv.FormatInt(d.GetInt64(), 10)
}

func (o intOps) Input(s string) (Datum, error) {
	v, err := strconv.ParseInt(s, 10, o.size*8)
	if err != nil {
		return Datum{}, errors.Trace(err)
	}
	return NewIntDatum(v), nil
}

func (o intOps) Encode(d Datum) ([]byte, error) {
	buf := make([]byte, o.size)
	v := d.GetInt64()
	if bits := uint(o.size * 8); bits < 64 && (v < -1<<(bits-1) || v > 1<<(bits-1)-1) {
		return nil, errors.Errorf("value %d is out of range for int%d", v, o.size)
	}
	switch o.size {
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(v))
	default:
		binary.LittleEndian.PutUint64(buf, uint64(v))
	}
	return buf, nil
}

func (o intOps) Decode(b []byte) (Datum, error) {
	if len(b) != o.size {
		return Datum{}, errors.Errorf("int%d value needs %d bytes, got %d", o.size, o.size, len(b))
	}
	switch o.size {
	case 2:
		return NewIntDatum(int64(int16(binary.LittleEndian.Uint16(b)))), nil
	case 4:
		return NewIntDatum(int64(int32(binary.LittleEndian.Uint32(b)))), nil
	default:
		return NewIntDatum(int64(binary.LittleEndian.Uint64(b))), nil
	}
}

// floatOps serves float4 and float8. NaN sorts above every other value and
// equals itself.
type floatOps struct {
	size int
}

func (floatOps) Compare(a, b Datum, _ Collation) int {
	x, y := a.GetFloat64(), b.GetFloat64()
	switch {
	case math.IsNaN(x) && math.IsNaN(y):
		return 0
	case math.IsNaN(x):
		return 1
	case math.IsNaN(y):
		return -1
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func (floatOps) Hash(d Datum, _ Collation) uint64 {
	f := d.GetFloat64()
	if f == 0 {
		// -0 and +0 compare equal.
		f = 0
	}
	return hashUint64(math.Float64bits(f))
}

func (floatOps) Output(d Datum) string {
	return strconv.FormatFloat(d.GetFloat64(), 'g', -1, 64)
}

func (o floatOps) Input(s string) (Datum, error) {
	v, err := strconv.ParseFloat(s, o.size*8)
	if err != nil {
		return Datum{}, errors.Trace(err)
	}
	return NewFloat64Datum(v), nil
}

// Encode rounds float4 values to the nearest float32, as Input does. Finite
// values beyond the float32 range are rejected.
func (o floatOps) Encode(d Datum) ([]byte, error) {
	buf := make([]byte, o.size)
	v := d.GetFloat64()
	if o.size == 4 {
		f := float32(v)
		if math.IsInf(float64(f), 0) && !math.IsInf(v, 0) {
			return nil, errors.Errorf("value %g is out of range for float4", v)
		}
		binary.LittleEndian.PutUint32(buf, math.Float32bits(f))
	} else {
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	}
	return buf, nil
}

func (o floatOps) Decode(b []byte) (Datum, error) {
	if len(b) != o.size {
		return Datum{}, errors.Errorf("float%d value needs %d bytes, got %d", o.size, o.size, len(b))
	}
	if o.size == 4 {
		return NewFloat64Datum(float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))), nil
	}
	return NewFloat64Datum(math.Float64frombits(binary.LittleEndian.Uint64(b))), nil
}

type textOps struct{}

func (textOps) Compare(a, b Datum, coll Collation) int {
	return CompareStrings(a.GetBytes(), b.GetBytes(), coll)
}

func (textOps) Hash(d Datum, coll Collation) uint64 {
	return HashString(d.GetBytes(), coll)
}

func (textOps) Output(d Datum) string {
	return d.GetString()
}

func (textOps) Input(s string) (Datum, error) {
	return NewStringDatum(s), nil
}

func (textOps) Encode(d Datum) ([]byte, error) {
	return d.GetBytes(), nil
}

func (textOps) Decode(b []byte) (Datum, error) {
	var d Datum
	d.k = KindString
	d.b = b
	return d, nil
}

type byteaOps struct{}

func (byteaOps) Compare(a, b Datum, _ Collation) int {
	return bytes.Compare(a.GetBytes(), b.GetBytes())
}

func (byteaOps) Hash(d Datum, _ Collation) uint64 {
	return farm.Fingerprint64(d.GetBytes())
}

func (byteaOps) Output(d Datum) string {
	return `\x` + hex.EncodeToString(d.GetBytes())
}

func (byteaOps) Input(s string) (Datum, error) {
	if !strings.HasPrefix(s, `\x`) {
		return NewBytesDatum([]byte(s)), nil
	}
	b, err := hex.DecodeString(s[2:])
	if err != nil {
		return Datum{}, errors.Trace(err)
	}
	return NewBytesDatum(b), nil
}

func (byteaOps) Encode(d Datum) ([]byte, error) {
	return d.GetBytes(), nil
}

func (byteaOps) Decode(b []byte) (Datum, error) {
	return NewBytesDatum(b), nil
}

// nameOps serves identifiers stored NUL-padded in NameDataLen bytes.
type nameOps struct{}

func (nameOps) Compare(a, b Datum, _ Collation) int {
	return bytes.Compare(a.GetBytes(), b.GetBytes())
}

func (nameOps) Hash(d Datum, _ Collation) uint64 {
	return farm.Fingerprint64(d.GetBytes())
}

func (nameOps) Output(d Datum) string {
	return d.GetString()
}

func (nameOps) Input(s string) (Datum, error) {
	if len(s) >= NameDataLen {
		return Datum{}, errors.Errorf("name %q is longer than %d bytes", s, NameDataLen-1)
	}
	return NewStringDatum(s), nil
}

func (nameOps) Encode(d Datum) ([]byte, error) {
	b := d.GetBytes()
	if len(b) >= NameDataLen {
		return nil, errors.Errorf("name %q is longer than %d bytes", b, NameDataLen-1)
	}
	if bytes.IndexByte(b, 0) >= 0 {
		return nil, errors.New("name cannot contain NUL")
	}
	buf := make([]byte, NameDataLen)
	copy(buf, b)
	return buf, nil
}

func (nameOps) Decode(b []byte) (Datum, error) {
	if len(b) != NameDataLen {
		return Datum{}, errors.Errorf("name value needs %d bytes, got %d", NameDataLen, len(b))
	}
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	var d Datum
	d.k = KindString
	d.b = b
	return d, nil
}

type uuidOps struct{}

func (uuidOps) Compare(a, b Datum, _ Collation) int {
	return bytes.Compare(a.GetBytes(), b.GetBytes())
}

func (uuidOps) Hash(d Datum, _ Collation) uint64 {
	return farm.Fingerprint64(d.GetBytes())
}

func (uuidOps) Output(d Datum) string {
	u, err := uuid.FromBytes(d.GetBytes())
	if err != nil {
		return `\x` + hex.EncodeToString(d.GetBytes())
	}
	return u.String()
}

func (uuidOps) Input(s string) (Datum, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Datum{}, errors.Trace(err)
	}
	return NewBytesDatum(u[:]), nil
}

func (uuidOps) Encode(d Datum) ([]byte, error) {
	b := d.GetBytes()
	if len(b) != 16 {
		return nil, errors.Errorf("uuid value needs 16 bytes, got %d", len(b))
	}
	return bytes.Clone(b), nil
}

func (uuidOps) Decode(b []byte) (Datum, error) {
	if len(b) != 16 {
		return Datum{}, errors.Errorf("uuid value needs 16 bytes, got %d", len(b))
	}
	return NewBytesDatum(b), nil
}

type cstringOps struct{}

func (cstringOps) Compare(a, b Datum, _ Collation) int {
	return bytes.Compare(a.GetBytes(), b.GetBytes())
}

func (cstringOps) Hash(d Datum, _ Collation) uint64 {
	return farm.Fingerprint64(d.GetBytes())
}

func (cstringOps) Output(d Datum) string {
	return d.GetString()
}

func (cstringOps) Input(s string) (Datum, error) {
	if strings.IndexByte(s, 0) >= 0 {
		return Datum{}, errors.New("cstring cannot contain NUL")
	}
	return NewStringDatum(s), nil
}

func (cstringOps) Encode(d Datum) ([]byte, error) {
	b := d.GetBytes()
	if bytes.IndexByte(b, 0) >= 0 {
		return nil, errors.New("cstring cannot contain NUL")
	}
	buf := make([]byte, len(b)+1)
	copy(buf, b)
	return buf, nil
}

func (cstringOps) Decode(b []byte) (Datum, error) {
	if len(b) == 0 || b[len(b)-1] != 0 {
		return Datum{}, errors.New("cstring value is not NUL terminated")
	}
	var d Datum
	d.k = KindString
	d.b = b[:len(b)-1]
	return d, nil
}

// pointOps serves a geometric point. Points have no ordering.
type pointOps struct{}

func (pointOps) Hash(d Datum, _ Collation) uint64 {
	return farm.Fingerprint64(d.GetBytes())
}

func (pointOps) Output(d Datum) string {
	b := d.GetBytes()
	if len(b) != 16 {
		return "(?)"
	}
	x := math.Float64frombits(binary.LittleEndian.Uint64(b[:8]))
	y := math.Float64frombits(binary.LittleEndian.Uint64(b[8:]))
	return fmt.Sprintf("(%g,%g)", x, y)
}

func (pointOps) Input(s string) (Datum, error) {
	var x, y float64
	if _, err := fmt.Sscanf(s, "(%g,%g)", &x, &y); err != nil {
		return Datum{}, errors.Trace(err)
	}
	return NewPointDatum(x, y), nil
}

func (pointOps) Encode(d Datum) ([]byte, error) {
	b := d.GetBytes()
	if len(b) != 16 {
		return nil, errors.Errorf("point value needs 16 bytes, got %d", len(b))
	}
	return bytes.Clone(b), nil
}

func (pointOps) Decode(b []byte) (Datum, error) {
	if len(b) != 16 {
		return Datum{}, errors.Errorf("point value needs 16 bytes, got %d", len(b))
	}
	return NewBytesDatum(b), nil
}

// NewPointDatum creates a datum holding a point.
func NewPointDatum(x, y float64) Datum {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[:8], math.Float64bits(x))
	binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(y))
	return NewBytesDatum(buf)
}
