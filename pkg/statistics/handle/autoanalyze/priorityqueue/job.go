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

package priorityqueue

import "fmt"

// JobKey identifies the statistics data of a relation a job rebuilds.
type JobKey struct {
	RelID   int64
	Inherit bool
}

// AnalysisJob is a pending rebuild of the extended statistics of a relation.
type AnalysisJob struct {
	JobKey
	// ChangedRows is the number of rows changed since the last build.
	ChangedRows float64
	// TotalRows is the number of rows of the relation.
	TotalRows float64
	Weight    float64

	// index is the position of the job in the heap.
	index int
}

// ChangeRatio returns the ratio of changed rows. A relation of unknown size
// with changes counts as fully changed.
func (j *AnalysisJob) ChangeRatio() float64 {
	if j.TotalRows <= 0 {
		if j.ChangedRows > 0 {
			return 1
		}
		return 0
	}
	return j.ChangedRows / j.TotalRows
}

func (j *AnalysisJob) String() string {
	return fmt.Sprintf("AnalysisJob:\n\tRelationID: %d\n\tInherit: %v\n\tChangedRows: %.0f\n\tTotalRows: %.0f\n\tWeight: %.4f",
		j.RelID, j.Inherit, j.ChangedRows, j.TotalRows, j.Weight)
}
