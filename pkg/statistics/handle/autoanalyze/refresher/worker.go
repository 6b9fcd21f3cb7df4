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

	"github.com/pingcap/errors"
	"github.com/pingcap/extstats/pkg/statistics"
	"github.com/pingcap/extstats/pkg/statistics/handle/autoanalyze/priorityqueue"
	statslogutil "github.com/pingcap/extstats/pkg/statistics/handle/logutil"
	"go.uber.org/zap"
)

// Analyzer rebuilds the extended statistics of a relation.
type Analyzer interface {
	AnalyzeRelation(ctx context.Context, relID int64, inherit bool) (*statistics.AnalyzeResults, error)
}

// Worker runs analysis jobs in the background, at most maxConcurrency at a
// time.
type Worker struct {
	analyzer Analyzer
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu             sync.Mutex
	runningJobs    map[priorityqueue.JobKey]struct{}
	maxConcurrency int
}

// NewWorker creates a new worker.
func NewWorker(analyzer Analyzer, maxConcurrency int) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		analyzer:       analyzer,
		ctx:            ctx,
		cancel:         cancel,
		runningJobs:    make(map[priorityqueue.JobKey]struct{}),
		maxConcurrency: maxConcurrency,
	}
}

// UpdateConcurrency updates the maximum concurrency for the worker.
func (w *Worker) UpdateConcurrency(newConcurrency int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.maxConcurrency = newConcurrency
}

// GetMaxConcurrency returns the maximum concurrency for the worker.
func (w *Worker) GetMaxConcurrency() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.maxConcurrency
}

// GetRunningJobs returns the keys of the running jobs.
func (w *Worker) GetRunningJobs() map[priorityqueue.JobKey]struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	jobs := make(map[priorityqueue.JobKey]struct{}, len(w.runningJobs))
	for k := range w.runningJobs {
		jobs[k] = struct{}{}
	}
	return jobs
}

// SubmitJob starts the job. It returns false when the worker is full or a
// job of the same key is running. onDone, if not nil, is called with the
// result of the job.
func (w *Worker) SubmitJob(job *priorityqueue.AnalysisJob, onDone func(*priorityqueue.AnalysisJob, error)) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.runningJobs) >= w.maxConcurrency {
		return false
	}
	if _, ok := w.runningJobs[job.JobKey]; ok {
		return false
	}
	w.runningJobs[job.JobKey] = struct{}{}
	w.wg.Add(1)
	go w.processJob(job, onDone)
	return true
}

func (w *Worker) processJob(job *priorityqueue.AnalysisJob, onDone func(*priorityqueue.AnalysisJob, error)) {
	defer w.wg.Done()
	defer func() {
		w.mu.Lock()
		delete(w.runningJobs, job.JobKey)
		w.mu.Unlock()
	}()
	start := time.Now()
	err := w.analyze(job)
	if err != nil {
		statslogutil.StatsLogger().Error("Auto analyze job execution failed", zap.Stringer("job", job), zap.Error(err))
	} else {
		statslogutil.StatsLogger().Info("Auto analyze job executed",
			zap.Int64("relID", job.RelID), zap.Duration("cost", time.Since(start)))
	}
	if onDone != nil {
		onDone(job, err)
	}
}

func (w *Worker) analyze(job *priorityqueue.AnalysisJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("auto analyze job panicked: %v", r)
		}
	}()
	results, err := w.analyzer.AnalyzeRelation(w.ctx, job.RelID, job.Inherit)
	if err == nil && results != nil {
		err = results.Err
	}
	return err
}

// WaitAutoAnalyzeFinishedForTest waits for all running jobs to finish.
func (w *Worker) WaitAutoAnalyzeFinishedForTest() {
	w.wg.Wait()
}

// Stop cancels the running jobs and waits for them.
func (w *Worker) Stop() {
	w.cancel()
	w.wg.Wait()
}
