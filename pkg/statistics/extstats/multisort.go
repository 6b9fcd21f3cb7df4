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
	"github.com/pingcap/extstats/pkg/types"
)

// SortItem is one sample row restricted to the sorted dimensions.
type SortItem struct {
	Values []types.Datum
	IsNull []bool
	// Count is the number of rows a group stands for.
	Count int
}

type sortSupport struct {
	cmp  types.Comparator
	coll types.Collation
}

// MultiSortSupport compares SortItems dimension by dimension.
type MultiSortSupport struct {
	ssup []sortSupport
}

// NewMultiSortSupport creates a comparator over ndims dimensions.
func NewMultiSortSupport(ndims int) *MultiSortSupport {
	return &MultiSortSupport{ssup: make([]sortSupport, ndims)}
}

// AddDimension sets the ordering of dimension dim.
func (m *MultiSortSupport) AddDimension(dim int, cmp types.Comparator, coll types.Collation) {
	m.ssup[dim] = sortSupport{cmp: cmp, coll: coll}
}

// NDims returns the number of dimensions.
func (m *MultiSortSupport) NDims() int {
	return len(m.ssup)
}

// compareValues orders nulls after every non-null value.
func (m *MultiSortSupport) compareValues(dim int, a types.Datum, aNull bool, b types.Datum, bNull bool) int {
	switch {
	case aNull && bNull:
		return 0
	case aNull:
		return 1
	case bNull:
		return -1
	}
	s := &m.ssup[dim]
	return s.cmp.Compare(a, b, s.coll)
}

// CompareDim compares a single dimension.
func (m *MultiSortSupport) CompareDim(dim int, a, b *SortItem) int {
	return m.compareValues(dim, a.Values[dim], a.IsNull[dim], b.Values[dim], b.IsNull[dim])
}

// Compare compares all dimensions lexicographically.
func (m *MultiSortSupport) Compare(a, b *SortItem) int {
	return m.CompareDims(0, len(m.ssup)-1, a, b)
}

// CompareDims compares dimensions lo..hi inclusive.
func (m *MultiSortSupport) CompareDims(lo, hi int, a, b *SortItem) int {
	for dim := lo; dim <= hi; dim++ {
		if c := m.CompareDim(dim, a, b); c != 0 {
			return c
		}
	}
	return 0
}
