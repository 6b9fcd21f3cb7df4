// Copyright 2016 PingCAP, Inc.
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
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind constants.
const (
	KindNull    byte = 0
	KindInt64   byte = 1
	KindUint64  byte = 2
	KindFloat64 byte = 3
	KindString  byte = 4
	KindBytes   byte = 5
)

// Datum is a data box holds different kind of data.
// It has better performance and is easier to use than `interface{}`.
type Datum struct {
	k byte   // datum kind.
	i int64  // i can hold int64 uint64 float64 values.
	b []byte // b can hold string or []byte values.
}

// NewDatum creates a new Datum from an interface{}.
func NewDatum(in any) (d Datum) {
	switch x := in.(type) {
	case nil:
	case bool:
		d.SetInt64(boolToInt64(x))
	case int:
		d.SetInt64(int64(x))
	case int16:
		d.SetInt64(int64(x))
	case int32:
		d.SetInt64(int64(x))
	case int64:
		d.SetInt64(x)
	case uint64:
		d.SetUint64(x)
	case float64:
		d.SetFloat64(x)
	case string:
		d.SetString(x)
	case []byte:
		d.SetBytes(x)
	default:
		panic(fmt.Sprintf("unsupported datum value %T", in))
	}
	return d
}

// NewIntDatum creates a new Datum from an int64 value.
func NewIntDatum(i int64) (d Datum) {
	d.SetInt64(i)
	return d
}

// NewUintDatum creates a new Datum from an uint64 value.
func NewUintDatum(i uint64) (d Datum) {
	d.SetUint64(i)
	return d
}

// NewBoolDatum creates a new Datum holding 1 for true and 0 for false.
func NewBoolDatum(b bool) (d Datum) {
	d.SetInt64(boolToInt64(b))
	return d
}

// NewFloat64Datum creates a new Datum from a float64 value.
func NewFloat64Datum(f float64) (d Datum) {
	d.SetFloat64(f)
	return d
}

// NewStringDatum creates a new Datum from a string.
func NewStringDatum(s string) (d Datum) {
	d.SetString(s)
	return d
}

// NewBytesDatum creates a new Datum from a byte slice.
func NewBytesDatum(b []byte) (d Datum) {
	d.SetBytes(b)
	return d
}

// Kind gets the kind of the datum.
func (d *Datum) Kind() byte {
	return d.k
}

// IsNull checks if datum is null.
func (d *Datum) IsNull() bool {
	return d.k == KindNull
}

// SetNull sets datum to nil.
func (d *Datum) SetNull() {
	d.k = KindNull
	d.b = nil
}

// GetInt64 gets int64 value.
func (d *Datum) GetInt64() int64 {
	return d.i
}

// SetInt64 sets int64 value.
func (d *Datum) SetInt64(i int64) {
	d.k = KindInt64
	d.i = i
}

// GetUint64 gets uint64 value.
func (d *Datum) GetUint64() uint64 {
	return uint64(d.i)
}

// SetUint64 sets uint64 value.
func (d *Datum) SetUint64(i uint64) {
	d.k = KindUint64
	d.i = int64(i)
}

// GetBool gets the truth value of an integer datum.
func (d *Datum) GetBool() bool {
	return d.i != 0
}

// GetFloat64 gets float64 value.
func (d *Datum) GetFloat64() float64 {
	return math.Float64frombits(uint64(d.i))
}

// SetFloat64 sets float64 value.
func (d *Datum) SetFloat64(f float64) {
	d.k = KindFloat64
	d.i = int64(math.Float64bits(f))
}

// GetString gets string value.
func (d *Datum) GetString() string {
	return string(d.b)
}

// SetString sets string value.
func (d *Datum) SetString(s string) {
	d.k = KindString
	d.b = []byte(s)
}

// GetBytes gets bytes value.
func (d *Datum) GetBytes() []byte {
	return d.b
}

// SetBytes sets bytes value to datum.
func (d *Datum) SetBytes(b []byte) {
	d.k = KindBytes
	d.b = b
}

// Clone create a deep copy of the Datum.
func (d *Datum) Clone() *Datum {
	ret := new(Datum)
	d.Copy(ret)
	return ret
}

// Copy deep copies a Datum into destination.
func (d *Datum) Copy(dst *Datum) {
	*dst = *d
	if d.b != nil {
		dst.b = make([]byte, len(d.b))
		copy(dst.b, d.b)
	}
}

// Equals reports whether two datums have the same kind and the same content.
func (d *Datum) Equals(o *Datum) bool {
	if d.k != o.k {
		return false
	}
	switch d.k {
	case KindNull:
		return true
	case KindString, KindBytes:
		return bytes.Equal(d.b, o.b)
	default:
		return d.i == o.i
	}
}

// String returns a human-readable description of Datum. It is intended only for debugging.
func (d Datum) String() string {
	switch d.k {
	case KindNull:
		return "KindNull <nil>"
	case KindInt64:
		return "KindInt64 " + strconv.FormatInt(d.i, 10)
	case KindUint64:
		return "KindUint64 " + strconv.FormatUint(uint64(d.i), 10)
	case KindFloat64:
		return "KindFloat64 " + strconv.FormatFloat(d.GetFloat64(), 'g', -1, 64)
	case KindString:
		return "KindString " + strconv.Quote(string(d.b))
	default:
		return fmt.Sprintf("KindBytes %x", d.b)
	}
}

// MakeDatums creates datum slice from interfaces.
func MakeDatums(args ...any) []Datum {
	datums := make([]Datum, len(args))
	for i, v := range args {
		datums[i] = NewDatum(v)
	}
	return datums
}

func boolToInt64(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

type jsonDatum struct {
	Kind byte   `json:"k"`
	I    int64  `json:"i,omitempty"`
	B    []byte `json:"b,omitempty"`
}

// MarshalJSON implements the json.Marshaler interface.
func (d Datum) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonDatum{Kind: d.k, I: d.i, B: d.b})
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (d *Datum) UnmarshalJSON(data []byte) error {
	var jd jsonDatum
	if err := json.Unmarshal(data, &jd); err != nil {
		return err
	}
	if jd.Kind > KindBytes {
		return fmt.Errorf("invalid datum kind %d", jd.Kind)
	}
	d.k, d.i, d.b = jd.Kind, jd.I, jd.B
	return nil
}
