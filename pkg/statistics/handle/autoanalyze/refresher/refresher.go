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

package refresher

import (
	"context"
	"sync"
	"time"

	"github.com/pingcap/extstats/pkg/statistics/handle/autoanalyze/priorityqueue"
	statslogutil "github.com/pingcap/extstats/pkg/statistics/handle/logutil"
	"go.uber.org/zap"
)

// Refresher rebuilds the extended statistics of relations whose rows
// changed enough since the last build, highest change first.
type Refresher struct {
	calculator *priorityqueue.PriorityCalculator
	// jobs is the priority queue of analysis jobs.
	jobs *priorityqueue.AnalysisPriorityQueue
	// worker is the worker that runs the analysis jobs.
	worker *Worker

	mu sync.Mutex
	// pending accumulates the changes of every relation since its last
	// build, including the ones below the threshold.
	pending map[priorityqueue.JobKey]*priorityqueue.AnalysisJob
}

// NewRefresher creates a new Refresher. A relation is analyzed once the ratio
// of its changed rows reaches threshold.
func NewRefresher(analyzer Analyzer, threshold float64, maxConcurrency int) *Refresher {
	return &Refresher{
		calculator: priorityqueue.NewPriorityCalculator(threshold),
		jobs:       priorityqueue.NewAnalysisPriorityQueue(),
		worker:     NewWorker(analyzer, maxConcurrency),
		pending:    make(map[priorityqueue.JobKey]*priorityqueue.AnalysisJob),
	}
}

// UpdateModifyCount records changedRows more changed rows of the relation,
// which now has totalRows rows.
func (r *Refresher) UpdateModifyCount(relID int64, inherit bool, changedRows, totalRows float64) {
	key := priorityqueue.JobKey{RelID: relID, Inherit: inherit}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.pending[key]
	if !ok {
		job = &priorityqueue.AnalysisJob{JobKey: key}
		r.pending[key] = job
	}
	queued := *job
	queued.ChangedRows += changedRows
	queued.TotalRows = totalRows
	queued.Weight = r.calculator.CalculateWeight(&queued)
	r.pending[key] = &queued
	if queued.Weight > 0 {
		r.jobs.Push(&queued)
	}
}

// Len returns the number of queued jobs.
func (r *Refresher) Len() int {
	return r.jobs.Len()
}

// AnalyzeHighestPriorityTables picks the relations with the highest priority
// and starts analyzing them, as many as the worker has room for. It returns
// whether any job was started.
func (r *Refresher) AnalyzeHighestPriorityTables() bool {
	remainConcurrency := r.worker.GetMaxConcurrency() - len(r.worker.GetRunningJobs())
	if remainConcurrency <= 0 {
		statslogutil.StatsLogger().Debug("No concurrency available")
		return false
	}
	analyzedCount := 0
	var skipped []*priorityqueue.AnalysisJob
	for analyzedCount < remainConcurrency {
		job, ok := r.jobs.Pop()
		if !ok {
			break
		}
		r.mu.Lock()
		delete(r.pending, job.JobKey)
		r.mu.Unlock()
		if r.worker.SubmitJob(job, r.onJobDone) {
			analyzedCount++
			continue
		}
		// The relation is being analyzed; retry in the next round.
		skipped = append(skipped, job)
	}
	for _, job := range skipped {
		r.requeue(job)
	}
	if analyzedCount > 0 {
		statslogutil.StatsLogger().Debug("Auto analyze triggered", zap.Int("jobs", analyzedCount))
	}
	return analyzedCount > 0
}

func (r *Refresher) onJobDone(job *priorityqueue.AnalysisJob, err error) {
	if err != nil {
		r.requeue(job)
	}
}

// requeue puts the changes of job back, merged with the changes recorded
// since it was popped.
func (r *Refresher) requeue(job *priorityqueue.AnalysisJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	merged := *job
	if cur, ok := r.pending[job.JobKey]; ok {
		merged.ChangedRows += cur.ChangedRows
		merged.TotalRows = cur.TotalRows
	}
	merged.Weight = r.calculator.CalculateWeight(&merged)
	r.pending[job.JobKey] = &merged
	if merged.Weight > 0 {
		r.jobs.Push(&merged)
	}
}

// Run analyzes the queued relations every interval until ctx is done.
func (r *Refresher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.AnalyzeHighestPriorityTables()
		}
	}
}

// WaitAutoAnalyzeFinishedForTest waits for the running jobs.
func (r *Refresher) WaitAutoAnalyzeFinishedForTest() {
	r.worker.WaitAutoAnalyzeFinishedForTest()
}

// Close stops the worker.
func (r *Refresher) Close() {
	r.worker.Stop()
}
