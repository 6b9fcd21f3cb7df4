// Copyright 2018 PingCAP, Inc.
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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Extended stats metrics.
var (
	ExtStatsBuildHistogram     *prometheus.HistogramVec
	ExtStatsBuildCounter       *prometheus.CounterVec
	ExtStatsBlobSizeHistogram  *prometheus.HistogramVec
	ExtStatsCorruptBlobCounter *prometheus.CounterVec
	ExtStatsEstimateCounter    *prometheus.CounterVec
	ExtStatsCacheCounter       *prometheus.CounterVec
	ExtStatsCacheCostGauge     prometheus.Gauge
)

// InitStatsMetrics initializes stats metrics.
func InitStatsMetrics() {
	ExtStatsBuildHistogram = NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "extstats",
			Subsystem: "statistics",
			Name:      "build_duration_seconds",
			Help:      "Bucketed histogram of processing time (s) of building extended statistics.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 20), // 0.5ms ~ 262s
		}, []string{LblKind})

	ExtStatsBuildCounter = NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "extstats",
			Subsystem: "statistics",
			Name:      "build_total",
			Help:      "Counter of extended statistics builds.",
		}, []string{LblKind, LblResult})

	ExtStatsBlobSizeHistogram = NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "extstats",
			Subsystem: "statistics",
			Name:      "blob_size_bytes",
			Help:      "Bucketed histogram of serialized extended statistics size.",
			Buckets:   prometheus.ExponentialBuckets(64, 2, 18), // 64B ~ 8MB
		}, []string{LblKind})

	ExtStatsCorruptBlobCounter = NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "extstats",
			Subsystem: "statistics",
			Name:      "corrupt_blob_total",
			Help:      "Counter of extended statistics blobs that failed to deserialize.",
		}, []string{LblKind})

	ExtStatsEstimateCounter = NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "extstats",
			Subsystem: "statistics",
			Name:      "estimate_total",
			Help:      "Counter of selectivity estimations using extended statistics.",
		}, []string{LblKind, LblResult})

	ExtStatsCacheCounter = NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "extstats",
			Subsystem: "statistics",
			Name:      "cache_total",
			Help:      "Counter of extended statistics cache lookups.",
		}, []string{LblType})

	ExtStatsCacheCostGauge = NewGauge(
		prometheus.GaugeOpts{
			Namespace: "extstats",
			Subsystem: "statistics",
			Name:      "cache_cost_bytes",
			Help:      "Approximate memory held by the extended statistics cache.",
		})
}
