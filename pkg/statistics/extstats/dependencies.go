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
	"context"

	"github.com/pingcap/errors"
)

const (
	// DependenciesMagic marks serialized MVDependencies.
	DependenciesMagic uint32 = 0xB4549A2C
	// DependenciesTypeBasic is the only known MVDependencies format.
	DependenciesTypeBasic uint32 = 1
)

// MVDependency is a functional dependency: the last attribute is implied by
// the others, which are kept in ascending order.
type MVDependency struct {
	Degree     float64
	Attributes []int16
}

// Implied returns the implied attribute.
func (d *MVDependency) Implied() int16 {
	return d.Attributes[len(d.Attributes)-1]
}

// Implying returns the implying attributes.
func (d *MVDependency) Implying() []int16 {
	return d.Attributes[:len(d.Attributes)-1]
}

// MVDependencies holds the functional dependencies with a positive degree,
// ordered by width.
type MVDependencies struct {
	Magic uint32
	Type  uint32
	Deps  []*MVDependency
}

// BuildDependencies computes the degree of validity of every dependency
// between the dimensions of data. It returns nil when no dependency has a
// positive degree.
func (b *Builder) BuildDependencies(ctx context.Context, data *StatsBuildData) (*MVDependencies, error) {
	if err := b.checkTypes(data); err != nil {
		return nil, err
	}
	n := data.NumAttrs()
	var deps []*MVDependency
	for k := 2; k <= n; k++ {
		gen, err := GenerateDependencies(n, k)
		if err != nil {
			return nil, err
		}
		for dependency := gen.Next(); dependency != nil; dependency = gen.Next() {
			if err := checkCanceled(ctx); err != nil {
				return nil, err
			}
			degree, err := b.dependencyDegree(ctx, data, dependency)
			if err != nil {
				return nil, errors.Trace(err)
			}
			if degree == 0 {
				continue
			}
			attrs := make([]int16, k)
			for i, dim := range dependency {
				attrs[i] = data.AttNums[dim]
			}
			deps = append(deps, &MVDependency{Degree: degree, Attributes: attrs})
		}
	}
	if len(deps) == 0 {
		return nil, nil
	}
	return &MVDependencies{Magic: DependenciesMagic, Type: DependenciesTypeBasic, Deps: deps}, nil
}

// dependencyDegree returns the fraction of sample rows in groups, formed by
// the implying dimensions, whose implied dimension holds a single value.
func (b *Builder) dependencyDegree(ctx context.Context, data *StatsBuildData, dependency []int) (float64, error) {
	k := len(dependency)
	tps, mss, err := b.dimSupport(data, dependency)
	if err != nil {
		return 0, err
	}
	items, err := b.BuildSortedItems(ctx, data, tps, mss, dependency)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}
	groupSize, violations, supporting := 1, 0, 0
	for i := 1; i <= len(items); i++ {
		if i == len(items) || mss.CompareDims(0, k-2, &items[i-1], &items[i]) != 0 {
			if violations == 0 {
				supporting += groupSize
			}
			violations, groupSize = 0, 1
			continue
		}
		if mss.CompareDim(k-1, &items[i-1], &items[i]) != 0 {
			violations++
		}
		groupSize++
	}
	return float64(supporting) / float64(data.NumRows), nil
}
