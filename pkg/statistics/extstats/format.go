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
	"fmt"
	"strconv"
	"strings"
	"unsafe"

	"github.com/pingcap/extstats/pkg/types"
)

func writeAttrs(sb *strings.Builder, attrs []int16) {
	for i, attr := range attrs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.Itoa(int(attr)))
	}
}

// String renders the coefficients as {"1, 2": 11, ...}.
func (n *MVNDistinct) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, item := range n.Items {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('"')
		writeAttrs(&sb, item.Attributes)
		fmt.Fprintf(&sb, "\": %d", int64(item.NDistinct))
	}
	sb.WriteByte('}')
	return sb.String()
}

// String renders the dependencies as {"1 => 2": 1.000000, ...}.
func (d *MVDependencies) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, dep := range d.Deps {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('"')
		writeAttrs(&sb, dep.Implying())
		fmt.Fprintf(&sb, " => %d\": %f", dep.Implied(), dep.Degree)
	}
	sb.WriteByte('}')
	return sb.String()
}

// MCVItemRow is the printable form of an MCV item.
type MCVItemRow struct {
	Index         int
	Values        []string
	Nulls         []bool
	Frequency     float64
	BaseFrequency float64
}

// ItemRows returns the printable form of every item.
func (m *MCVList) ItemRows(reg *types.Registry) ([]MCVItemRow, error) {
	tps := make([]*types.TypeInfo, m.NDimensions)
	for d := range tps {
		tp, err := reg.Lookup(m.Types[d])
		if err != nil {
			return nil, err
		}
		tps[d] = tp
	}
	rows := make([]MCVItemRow, len(m.Items))
	for i, item := range m.Items {
		row := MCVItemRow{
			Index:         i,
			Values:        make([]string, m.NDimensions),
			Nulls:         make([]bool, m.NDimensions),
			Frequency:     item.Frequency,
			BaseFrequency: item.BaseFrequency,
		}
		for d := range m.NDimensions {
			row.Nulls[d] = item.IsNull[d]
			if !item.IsNull[d] {
				row.Values[d] = tps[d].Ops.Output(item.Values[d])
			}
		}
		rows[i] = row
	}
	return rows, nil
}

var (
	datumSize   = int64(unsafe.Sizeof(types.Datum{}))
	sliceHeader = int64(unsafe.Sizeof([]byte(nil)))
)

// MemSize returns the approximate memory footprint.
func (n *MVNDistinct) MemSize() int64 {
	size := int64(unsafe.Sizeof(*n))
	for _, item := range n.Items {
		size += int64(unsafe.Sizeof(item)) + 2*int64(len(item.Attributes))
	}
	return size
}

// MemSize returns the approximate memory footprint.
func (d *MVDependencies) MemSize() int64 {
	size := int64(unsafe.Sizeof(*d))
	for _, dep := range d.Deps {
		size += int64(unsafe.Sizeof(*dep)) + 8 + 2*int64(len(dep.Attributes))
	}
	return size
}

// MemSize returns the approximate memory footprint.
func (m *MCVList) MemSize() int64 {
	size := int64(unsafe.Sizeof(*m)) + int64(len(m.Types))*4 + int64(cap(m.arena))
	for _, item := range m.Items {
		size += int64(unsafe.Sizeof(*item)) + 8 + 2*sliceHeader
		size += int64(len(item.Values))*datumSize + int64(len(item.IsNull))
		if m.arena == nil {
			for d := range item.Values {
				size += int64(len(item.Values[d].GetBytes()))
			}
		}
	}
	return size
}
