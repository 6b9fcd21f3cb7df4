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

package exterrors

import (
	"github.com/pingcap/errors"
)

// Error codes of the extended statistics engine.
const (
	codeBadBlob           = 8301
	codeUnsupportedType   = 8302
	codeTruncated         = 8303
	codeCancelRequested   = 8304
	codeAllocFailed       = 8305
	codeInternal          = 8306
	codeStatsExists       = 8307
	codeStatsNotExists    = 8308
	codeStatsKindMissing  = 8309
	codeInvalidDefinition = 8310
)

// error definitions.
var (
	// ErrBadBlob is returned when a serialized statistics blob is corrupt.
	ErrBadBlob = errors.Normalize("invalid %s blob: %s",
		errors.RFCCodeText("ExtStats:BadBlob"), errors.MySQLErrorCode(codeBadBlob))
	// ErrUnsupportedType is returned when a type cannot take part in extended statistics.
	ErrUnsupportedType = errors.Normalize("type %v is not supported by extended statistics: %s",
		errors.RFCCodeText("ExtStats:UnsupportedType"), errors.MySQLErrorCode(codeUnsupportedType))
	// ErrTruncated reports that the MCV list was clipped to the item limit.
	ErrTruncated = errors.Normalize("MCV list truncated from %d to %d items",
		errors.RFCCodeText("ExtStats:Truncated"), errors.MySQLErrorCode(codeTruncated))
	ErrCancelRequested = errors.Normalize("extended statistics build canceled",
		errors.RFCCodeText("ExtStats:CancelRequested"), errors.MySQLErrorCode(codeCancelRequested))
	ErrAllocFailed = errors.Normalize("cannot allocate %d bytes for %s",
		errors.RFCCodeText("ExtStats:AllocFailed"), errors.MySQLErrorCode(codeAllocFailed))
	ErrInternal = errors.Normalize("internal error: %s",
		errors.RFCCodeText("ExtStats:Internal"), errors.MySQLErrorCode(codeInternal))

	ErrStatsExists = errors.Normalize("extended statistics '%s' for the specified table already exists",
		errors.RFCCodeText("ExtStats:StatsExists"), errors.MySQLErrorCode(codeStatsExists))
	ErrStatsNotExists = errors.Normalize("extended statistics '%s' for the specified table does not exist",
		errors.RFCCodeText("ExtStats:StatsNotExists"), errors.MySQLErrorCode(codeStatsNotExists))
	ErrStatsKindNotBuilt = errors.Normalize("statistics object %d has no %s data",
		errors.RFCCodeText("ExtStats:StatsKindNotBuilt"), errors.MySQLErrorCode(codeStatsKindMissing))
	ErrInvalidDefinition = errors.Normalize("invalid extended statistics definition: %s",
		errors.RFCCodeText("ExtStats:InvalidDefinition"), errors.MySQLErrorCode(codeInvalidDefinition))
)
