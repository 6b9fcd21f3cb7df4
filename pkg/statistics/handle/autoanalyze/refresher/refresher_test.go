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

package refresher_test

import (
	"context"
	"testing"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/extstats/pkg/statistics/handle/autoanalyze/refresher"
	"github.com/stretchr/testify/require"
)

func TestPickTablesAndAnalyzeByPriority(t *testing.T) {
	a := &mockAnalyzer{analyze: func(context.Context, int64) error { return nil }}
	r := refresher.NewRefresher(a, 0.5, 2)
	defer r.Close()

	// No jobs in the queue.
	require.False(t, r.AnalyzeHighestPriorityTables())

	// Below the threshold.
	r.UpdateModifyCount(1, false, 10, 100)
	require.Zero(t, r.Len())
	// Changes accumulate until the relation qualifies.
	r.UpdateModifyCount(1, false, 50, 100)
	require.Equal(t, 1, r.Len())
	r.UpdateModifyCount(2, false, 90, 100)
	r.UpdateModifyCount(3, false, 80, 100)
	require.Equal(t, 3, r.Len())

	require.True(t, r.AnalyzeHighestPriorityTables())
	r.WaitAutoAnalyzeFinishedForTest()
	// The two most changed relations go first.
	require.ElementsMatch(t, []int64{2, 3}, a.analyzedRelations())
	require.Equal(t, 1, r.Len())

	require.True(t, r.AnalyzeHighestPriorityTables())
	r.WaitAutoAnalyzeFinishedForTest()
	analyzed := a.analyzedRelations()
	require.Len(t, analyzed, 3)
	require.Equal(t, int64(1), analyzed[2])
	require.Zero(t, r.Len())
}

func TestPickTablesAndAnalyzeByPriorityWithFailedAnalysis(t *testing.T) {
	fail := true
	a := &mockAnalyzer{analyze: func(context.Context, int64) error {
		if fail {
			return errors.New("mock analyze error")
		}
		return nil
	}}
	r := refresher.NewRefresher(a, 0.5, 1)
	defer r.Close()

	r.UpdateModifyCount(1, true, 100, 100)
	require.True(t, r.AnalyzeHighestPriorityTables())
	r.WaitAutoAnalyzeFinishedForTest()
	// A failed job goes back to the queue.
	require.Equal(t, 1, r.Len())

	fail = false
	require.True(t, r.AnalyzeHighestPriorityTables())
	r.WaitAutoAnalyzeFinishedForTest()
	require.Zero(t, r.Len())
	require.Equal(t, []int64{1, 1}, a.analyzedRelations())
}

func TestRefresherRun(t *testing.T) {
	done := make(chan struct{}, 1)
	a := &mockAnalyzer{analyze: func(context.Context, int64) error {
		done <- struct{}{}
		return nil
	}}
	r := refresher.NewRefresher(a, 0.1, 1)
	defer r.Close()
	r.UpdateModifyCount(7, false, 5, 10)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		r.Run(ctx, 10*time.Millisecond)
		close(stopped)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("relation was not analyzed")
	}
	cancel()
	<-stopped
	r.WaitAutoAnalyzeFinishedForTest()
	require.Equal(t, []int64{7}, a.analyzedRelations())
}
