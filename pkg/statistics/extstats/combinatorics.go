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
	"slices"

	"github.com/pingcap/extstats/pkg/util/dbterror/exterrors"
)

// Generator iterates over a pre-materialized list of k-tuples of indexes.
type Generator struct {
	k       int
	current int
	tuples  []int
}

// Len returns the number of tuples.
func (g *Generator) Len() int {
	return len(g.tuples) / g.k
}

// Next returns the next tuple or nil when the list is exhausted. The returned
// slice is shared with the generator and must not be modified.
func (g *Generator) Next() []int {
	if g.current >= g.Len() {
		return nil
	}
	off := g.current * g.k
	g.current++
	return g.tuples[off : off+g.k : off+g.k]
}

// Reset rewinds the generator.
func (g *Generator) Reset() {
	g.current = 0
}

// NumCombinations returns C(n, k).
func NumCombinations(n, k int) int {
	if k < 0 || k > n {
		return 0
	}
	r := 1
	for i := 1; i <= k; i++ {
		r = r * (n - k + i) / i
	}
	return r
}

// NumDependencies returns the number of dependencies of width k over n
// attributes: each k-subset has k choices of the implied attribute.
func NumDependencies(n, k int) int {
	return k * NumCombinations(n, k)
}

// GenerateCombinations enumerates the k-subsets of [0, n) in lexicographic order.
func GenerateCombinations(n, k int) (*Generator, error) {
	if k < 1 || k > n {
		return nil, exterrors.ErrInternal.GenWithStackByArgs(fmt.Sprintf("invalid combination %d of %d", k, n))
	}
	want := NumCombinations(n, k)
	g := &Generator{k: k, tuples: make([]int, 0, want*k)}
	current := make([]int, k)
	for i := range current {
		current[i] = i
	}
	for {
		g.tuples = append(g.tuples, current...)
		// Find the rightmost position that can still be incremented.
		i := k - 1
		for i >= 0 && current[i] == n-k+i {
			i--
		}
		if i < 0 {
			break
		}
		current[i]++
		for j := i + 1; j < k; j++ {
			current[j] = current[j-1] + 1
		}
	}
	if g.Len() != want {
		return nil, exterrors.ErrInternal.GenWithStackByArgs(
			fmt.Sprintf("generated %d combinations, expected %d", g.Len(), want))
	}
	return g, nil
}

// GenerateDependencies enumerates dependencies of width k over [0, n): the
// first k-1 positions are an ascending subset and the last position is any
// index not already in it.
func GenerateDependencies(n, k int) (*Generator, error) {
	if k < 2 || k > n {
		return nil, exterrors.ErrInternal.GenWithStackByArgs(fmt.Sprintf("invalid dependency width %d of %d", k, n))
	}
	want := NumDependencies(n, k)
	g := &Generator{k: k, tuples: make([]int, 0, want*k)}
	current := make([]int, k)
	var generate func(index, start int)
	generate = func(index, start int) {
		if index == k-1 {
			for i := 0; i < n; i++ {
				if slices.Contains(current[:index], i) {
					continue
				}
				current[index] = i
				g.tuples = append(g.tuples, current...)
			}
			return
		}
		for i := start; i < n; i++ {
			current[index] = i
			generate(index+1, i+1)
		}
	}
	generate(0, 0)
	if g.Len() != want {
		return nil, exterrors.ErrInternal.GenWithStackByArgs(
			fmt.Sprintf("generated %d dependencies, expected %d", g.Len(), want))
	}
	return g, nil
}
