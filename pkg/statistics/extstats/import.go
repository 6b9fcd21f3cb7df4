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
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/pingcap/extstats/pkg/types"
	"github.com/pingcap/extstats/pkg/util/dbterror/exterrors"
)

// MCVImport is an MCV list in text form, as dumped by ItemRows.
type MCVImport struct {
	Types []types.TypeID
	// Values holds one row of text values per item. Nulls marks the null
	// values and may be nil when no value is null.
	Values          [][]string
	Nulls           [][]bool
	Frequencies     []float64
	BaseFrequencies []float64
}

func invalidImport(format string, args ...any) error {
	return exterrors.ErrInvalidDefinition.GenWithStackByArgs(fmt.Sprintf(format, args...))
}

// frequencySumSlack absorbs the rounding of frequencies printed as text.
const frequencySumSlack = 1e-6

// ImportMCVList builds an MCV list from its text form. The arrays must agree
// in length, every row must have one value per dimension, frequencies must
// lie in [0, 1], must not increase from one item to the next and must not
// sum to more than 1.
func ImportMCVList(reg *types.Registry, in *MCVImport) (*MCVList, error) {
	ndims := len(in.Types)
	if ndims < 1 || ndims > MaxStatsDimensions {
		return nil, invalidImport("MCV list needs 1 to %d dimensions, got %d", MaxStatsDimensions, ndims)
	}
	nitems := len(in.Values)
	if nitems < 1 || nitems > MaxMCVItems {
		return nil, invalidImport("MCV list needs 1 to %d items, got %d", MaxMCVItems, nitems)
	}
	if len(in.Frequencies) != nitems {
		return nil, invalidImport("%d frequencies do not match %d items", len(in.Frequencies), nitems)
	}
	if len(in.BaseFrequencies) != nitems {
		return nil, invalidImport("%d base frequencies do not match %d items", len(in.BaseFrequencies), nitems)
	}
	if in.Nulls != nil && len(in.Nulls) != nitems {
		return nil, invalidImport("%d null rows do not match %d items", len(in.Nulls), nitems)
	}
	tps := make([]*types.TypeInfo, ndims)
	for d, id := range in.Types {
		tp, _, err := reg.LookupComparator(id)
		if err != nil {
			return nil, err
		}
		tps[d] = tp
	}

	mcv := &MCVList{
		Magic:       MCVMagic,
		Type:        MCVTypeBasic,
		NDimensions: ndims,
		Types:       append([]types.TypeID(nil), in.Types...),
		Items:       make([]*MCVItem, nitems),
	}
	var sum float64
	for i, row := range in.Values {
		if len(row) != ndims {
			return nil, invalidImport("item %d has %d values, expected %d", i, len(row), ndims)
		}
		var nulls []bool
		if in.Nulls != nil {
			if nulls = in.Nulls[i]; len(nulls) != ndims {
				return nil, invalidImport("item %d has %d null flags, expected %d", i, len(nulls), ndims)
			}
		}
		freq, base := in.Frequencies[i], in.BaseFrequencies[i]
		if !(freq >= 0 && freq <= 1) || !(base >= 0 && base <= 1) {
			return nil, invalidImport("item %d has frequency %v and base frequency %v out of [0, 1]", i, freq, base)
		}
		if i > 0 && freq > in.Frequencies[i-1] {
			return nil, invalidImport("item %d has frequency %v above the frequency %v of item %d", i, freq, in.Frequencies[i-1], i-1)
		}
		sum += freq
		if sum > 1+frequencySumSlack {
			return nil, invalidImport("frequencies of the first %d items sum to %v, more than 1", i+1, sum)
		}
		item := &MCVItem{
			Frequency:     freq,
			BaseFrequency: base,
			IsNull:        make([]bool, ndims),
			Values:        make([]types.Datum, ndims),
		}
		for d, text := range row {
			if nulls != nil && nulls[d] {
				item.IsNull[d] = true
				continue
			}
			v, err := tps[d].Ops.Input(text)
			if err != nil {
				return nil, invalidImport("item %d: invalid %s value %q: %v", i, tps[d].Name, text, err)
			}
			item.Values[d] = v
		}
		mcv.Items[i] = item
	}
	return mcv, nil
}

// dimensionOrder maps the attribute numbers of a statistics object with the
// column keys and nexprs expressions to their dimensions: keys first, then
// -1, -2, ... for the expressions.
type dimensionOrder struct {
	keys   []int16
	nexprs int
}

func (o dimensionOrder) dim(attr int16) (int, bool) {
	if attr < 0 {
		if int(-attr) > o.nexprs {
			return 0, false
		}
		return len(o.keys) + int(-attr) - 1, true
	}
	idx := slices.Index(o.keys, attr)
	return idx, idx >= 0
}

// normalize checks that attrs are distinct attributes of the object and
// returns them in dimension order.
func (o dimensionOrder) normalize(attrs []int16) ([]int16, error) {
	for _, attr := range attrs {
		if _, ok := o.dim(attr); !ok {
			return nil, invalidImport("attribute %d is not a key of the statistics object", attr)
		}
	}
	sorted := slices.Clone(attrs)
	slices.SortFunc(sorted, func(a, b int16) int {
		da, _ := o.dim(a)
		db, _ := o.dim(b)
		return da - db
	})
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			return nil, invalidImport("attribute %d is listed twice", sorted[i])
		}
	}
	return sorted, nil
}

// ValidateNDistinct checks imported n-distinct coefficients against a
// statistics object with the column keys and nexprs expressions: every item
// combines at least two distinct attributes of the object, no combination is
// listed twice and every coefficient is at least 1. Attributes are put in
// dimension order.
func ValidateNDistinct(nd *MVNDistinct, keys []int16, nexprs int) error {
	o := dimensionOrder{keys: keys, nexprs: nexprs}
	if len(nd.Items) == 0 {
		return invalidImport("n-distinct coefficients have no items")
	}
	if limit := NumNDistinctItems(len(keys) + nexprs); len(nd.Items) > limit {
		return invalidImport("%d n-distinct items exceed the %d combinations of the statistics object", len(nd.Items), limit)
	}
	seen := make(map[string]struct{}, len(nd.Items))
	for i := range nd.Items {
		item := &nd.Items[i]
		if len(item.Attributes) < 2 {
			return invalidImport("n-distinct item %d has %d attributes, expected at least 2", i, len(item.Attributes))
		}
		attrs, err := o.normalize(item.Attributes)
		if err != nil {
			return err
		}
		if !(item.NDistinct >= 1) || math.IsInf(item.NDistinct, 0) {
			return invalidImport("n-distinct item %d has coefficient %v, expected at least 1", i, item.NDistinct)
		}
		key := fmt.Sprint(attrs)
		if _, ok := seen[key]; ok {
			return invalidImport("n-distinct item %d repeats attributes %v", i, attrs)
		}
		seen[key] = struct{}{}
		item.Attributes = attrs
	}
	nd.Magic, nd.Type = NDistinctMagic, NDistinctTypeBasic
	return nil
}

// ValidateDependencies checks imported functional dependencies against a
// statistics object with the column keys and nexprs expressions: every
// dependency relates at least two distinct attributes of the object, no
// dependency is listed twice and every degree lies in (0, 1]. Implying
// attributes are put in dimension order.
func ValidateDependencies(deps *MVDependencies, keys []int16, nexprs int) error {
	o := dimensionOrder{keys: keys, nexprs: nexprs}
	if len(deps.Deps) == 0 {
		return invalidImport("functional dependencies have no items")
	}
	seen := make(map[string]struct{}, len(deps.Deps))
	for i, dep := range deps.Deps {
		if len(dep.Attributes) < 2 {
			return invalidImport("dependency %d has %d attributes, expected at least 2", i, len(dep.Attributes))
		}
		if !(dep.Degree > 0 && dep.Degree <= 1) {
			return invalidImport("dependency %d has degree %v out of (0, 1]", i, dep.Degree)
		}
		implied := dep.Implied()
		if _, err := o.normalize(dep.Attributes); err != nil {
			return err
		}
		implying, err := o.normalize(dep.Implying())
		if err != nil {
			return err
		}
		attrs := append(implying, implied)
		key := fmt.Sprint(attrs)
		if _, ok := seen[key]; ok {
			return invalidImport("dependency %d repeats attributes %v", i, attrs)
		}
		seen[key] = struct{}{}
		dep.Attributes = attrs
	}
	deps.Magic, deps.Type = DependenciesMagic, DependenciesTypeBasic
	return nil
}

// parseTextObject reads a text form such as {"1, 2": 11} and calls fn with
// every key and number, in order.
func parseTextObject(text string, fn func(key string, value float64) error) error {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return invalidImport("expected a JSON object, got %q", text)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return invalidImport("malformed object %q: %v", text, err)
		}
		key, ok := tok.(string)
		if !ok {
			return invalidImport("malformed object %q", text)
		}
		tok, err = dec.Token()
		if err != nil {
			return invalidImport("malformed object %q: %v", text, err)
		}
		num, ok := tok.(json.Number)
		if !ok {
			return invalidImport("value of %q is not a number", key)
		}
		value, err := num.Float64()
		if err != nil {
			return invalidImport("value of %q: %v", key, err)
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return invalidImport("malformed object %q: %v", text, err)
	}
	if dec.More() {
		return invalidImport("trailing data after object %q", text)
	}
	return nil
}

func parseAttrList(list string) ([]int16, error) {
	parts := strings.Split(list, ",")
	attrs := make([]int16, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(part), 10, 16)
		if err != nil || v == 0 {
			return nil, invalidImport("invalid attribute %q", part)
		}
		attrs = append(attrs, int16(v))
	}
	return attrs, nil
}

// ParseNDistinct reads n-distinct coefficients from their text form, as
// rendered by MVNDistinct.String. The result still needs ValidateNDistinct.
func ParseNDistinct(text string) (*MVNDistinct, error) {
	nd := &MVNDistinct{Magic: NDistinctMagic, Type: NDistinctTypeBasic}
	err := parseTextObject(text, func(key string, value float64) error {
		attrs, err := parseAttrList(key)
		if err != nil {
			return err
		}
		nd.Items = append(nd.Items, MVNDistinctItem{NDistinct: value, Attributes: attrs})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return nd, nil
}

// ParseDependencies reads functional dependencies from their text form, as
// rendered by MVDependencies.String. The result still needs
// ValidateDependencies.
func ParseDependencies(text string) (*MVDependencies, error) {
	deps := &MVDependencies{Magic: DependenciesMagic, Type: DependenciesTypeBasic}
	err := parseTextObject(text, func(key string, value float64) error {
		implying, implied, ok := strings.Cut(key, "=>")
		if !ok {
			return invalidImport("dependency %q has no \"=>\"", key)
		}
		attrs, err := parseAttrList(implying)
		if err != nil {
			return err
		}
		target, err := parseAttrList(implied)
		if err != nil {
			return err
		}
		if len(target) != 1 {
			return invalidImport("dependency %q implies %d attributes, expected 1", key, len(target))
		}
		deps.Deps = append(deps.Deps, &MVDependency{Degree: value, Attributes: append(attrs, target[0])})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deps, nil
}
