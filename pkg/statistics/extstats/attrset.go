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

	"github.com/bits-and-blooms/bitset"
)

// AttrSet is a set of non-negative integers, typically attribute numbers.
// Expression references are negative and must be shifted by an offset
// before they are added. A nil *AttrSet is an empty set for every read method.
type AttrSet struct {
	bits *bitset.BitSet
}

// NewAttrSet creates a set holding members.
func NewAttrSet(members ...int) *AttrSet {
	s := &AttrSet{bits: bitset.New(0)}
	for _, m := range members {
		s.Add(m)
	}
	return s
}

// Add inserts m and returns the set.
func (s *AttrSet) Add(m int) *AttrSet {
	if m < 0 {
		panic(fmt.Sprintf("negative attribute set member %d", m))
	}
	if s.bits == nil {
		s.bits = bitset.New(uint(m + 1))
	}
	s.bits.Set(uint(m))
	return s
}

// Remove deletes m.
func (s *AttrSet) Remove(m int) {
	if s == nil || s.bits == nil || m < 0 {
		return
	}
	s.bits.Clear(uint(m))
}

// Contains reports whether m is in the set.
func (s *AttrSet) Contains(m int) bool {
	if s == nil || s.bits == nil || m < 0 {
		return false
	}
	return s.bits.Test(uint(m))
}

// Len returns the number of members.
func (s *AttrSet) Len() int {
	if s == nil || s.bits == nil {
		return 0
	}
	return int(s.bits.Count())
}

// IsEmpty reports whether the set has no member.
func (s *AttrSet) IsEmpty() bool {
	return s.Len() == 0
}

// Members returns the members in ascending order.
func (s *AttrSet) Members() []int {
	if s == nil || s.bits == nil {
		return nil
	}
	members := make([]int, 0, s.bits.Count())
	for i, ok := s.bits.NextSet(0); ok; i, ok = s.bits.NextSet(i + 1) {
		members = append(members, int(i))
	}
	return members
}

// MemberIndex returns the position of m among the ascending members, or -1.
func (s *AttrSet) MemberIndex(m int) int {
	if !s.Contains(m) {
		return -1
	}
	return int(s.bits.Rank(uint(m))) - 1
}

// Clone returns a copy of the set.
func (s *AttrSet) Clone() *AttrSet {
	if s == nil || s.bits == nil {
		return NewAttrSet()
	}
	return &AttrSet{bits: s.bits.Clone()}
}

func (s *AttrSet) bitsOrEmpty() *bitset.BitSet {
	if s == nil || s.bits == nil {
		return bitset.New(0)
	}
	return s.bits
}

// IsSubsetOf reports whether every member of s is in o.
func (s *AttrSet) IsSubsetOf(o *AttrSet) bool {
	if s.IsEmpty() {
		return true
	}
	return o.bitsOrEmpty().IsSuperSet(s.bits)
}

// Union returns a new set with the members of both sets.
func (s *AttrSet) Union(o *AttrSet) *AttrSet {
	return &AttrSet{bits: s.bitsOrEmpty().Union(o.bitsOrEmpty())}
}

// Intersect returns a new set with the members common to both sets.
func (s *AttrSet) Intersect(o *AttrSet) *AttrSet {
	return &AttrSet{bits: s.bitsOrEmpty().Intersection(o.bitsOrEmpty())}
}

// Difference returns a new set with the members of s that are not in o.
func (s *AttrSet) Difference(o *AttrSet) *AttrSet {
	return &AttrSet{bits: s.bitsOrEmpty().Difference(o.bitsOrEmpty())}
}

// Equal reports whether both sets have the same members.
func (s *AttrSet) Equal(o *AttrSet) bool {
	return s.bitsOrEmpty().SymmetricDifferenceCardinality(o.bitsOrEmpty()) == 0
}

// String implements fmt.Stringer.
func (s *AttrSet) String() string {
	var sb strings.Builder
	sb.WriteString("(b")
	for _, m := range s.Members() {
		sb.WriteByte(' ')
		sb.WriteString(strconv.Itoa(m))
	}
	sb.WriteByte(')')
	return sb.String()
}
