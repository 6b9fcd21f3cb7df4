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

import (
	"container/heap"
	"sync"
)

// An AnalysisQueue implements heap.Interface and holds AnalysisJobs.
type AnalysisQueue []*AnalysisJob

// Implement the sort.Interface methods for the priority queue.

func (aq AnalysisQueue) Len() int { return len(aq) }
func (aq AnalysisQueue) Less(i, j int) bool {
	// We want Pop to give us the highest, not lowest, priority, so we use greater than here.
	return aq[i].Weight > aq[j].Weight
}
func (aq AnalysisQueue) Swap(i, j int) {
	aq[i], aq[j] = aq[j], aq[i]
	aq[i].index = i
	aq[j].index = j
}

// Push adds an item to the priority queue.
func (aq *AnalysisQueue) Push(x any) {
	item := x.(*AnalysisJob)
	item.index = len(*aq)
	*aq = append(*aq, item)
}

// Pop removes the highest priority item from the queue.
func (aq *AnalysisQueue) Pop() any {
	old := *aq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*aq = old[0 : n-1]
	return item
}

// AnalysisPriorityQueue is a concurrency safe priority queue holding at most
// one job per key.
type AnalysisPriorityQueue struct {
	mu    sync.Mutex
	inner AnalysisQueue
	jobs  map[JobKey]*AnalysisJob
}

// NewAnalysisPriorityQueue creates an empty queue.
func NewAnalysisPriorityQueue() *AnalysisPriorityQueue {
	return &AnalysisPriorityQueue{jobs: make(map[JobKey]*AnalysisJob)}
}

// Push adds the job, replacing the queued job of the same key.
func (pq *AnalysisPriorityQueue) Push(job *AnalysisJob) {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	if old, ok := pq.jobs[job.JobKey]; ok {
		job.index = old.index
		pq.inner[old.index] = job
		pq.jobs[job.JobKey] = job
		heap.Fix(&pq.inner, job.index)
		return
	}
	pq.jobs[job.JobKey] = job
	heap.Push(&pq.inner, job)
}

// Pop removes and returns the job with the highest weight.
func (pq *AnalysisPriorityQueue) Pop() (*AnalysisJob, bool) {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	if pq.inner.Len() == 0 {
		return nil, false
	}
	job := heap.Pop(&pq.inner).(*AnalysisJob)
	delete(pq.jobs, job.JobKey)
	return job, true
}

// Peek returns the job with the highest weight without removing it.
func (pq *AnalysisPriorityQueue) Peek() (*AnalysisJob, bool) {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	if pq.inner.Len() == 0 {
		return nil, false
	}
	return pq.inner[0], true
}

// Remove drops the job of key.
func (pq *AnalysisPriorityQueue) Remove(key JobKey) {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	if job, ok := pq.jobs[key]; ok {
		heap.Remove(&pq.inner, job.index)
		delete(pq.jobs, key)
	}
}

// Len returns the number of queued jobs.
func (pq *AnalysisPriorityQueue) Len() int {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	return pq.inner.Len()
}

// IsEmpty checks whether the queue is empty.
func (pq *AnalysisPriorityQueue) IsEmpty() bool {
	return pq.Len() == 0
}
