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
	"sync"

	"github.com/dgryski/go-farm"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Collation identifies a collation.
type Collation uint32

// Builtin collations.
const (
	InvalidCollation Collation = 0
	// DefaultCollation is the database default, which compares bytes.
	DefaultCollation Collation = 100
	CCollation       Collation = 950
	POSIXCollation   Collation = 951
	// UnicodeCollation sorts by the root Unicode collation algorithm.
	UnicodeCollation Collation = 963
)

// collate.Collator keeps per-call scratch buffers and is not safe for
// concurrent use.
var unicodeCollators = sync.Pool{
	New: func() any {
		return collate.New(language.Und)
	},
}

// CompareStrings compares two strings under coll.
func CompareStrings(a, b []byte, coll Collation) int {
	if coll != UnicodeCollation {
		return bytes.Compare(a, b)
	}
	c := unicodeCollators.Get().(*collate.Collator)
	defer unicodeCollators.Put(c)
	if r := c.Compare(a, b); r != 0 {
		return r
	}
	// Keep the ordering deterministic for strings the collation deems equal.
	return bytes.Compare(a, b)
}

// HashString hashes a string consistently with CompareStrings.
func HashString(s []byte, coll Collation) uint64 {
	if coll != UnicodeCollation {
		return farm.Fingerprint64(s)
	}
	c := unicodeCollators.Get().(*collate.Collator)
	defer unicodeCollators.Put(c)
	var buf collate.Buffer
	return farm.Fingerprint64(c.Key(&buf, s))
}
