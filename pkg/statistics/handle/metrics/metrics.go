// Copyright 2023 PingCAP, Inc.
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
	"github.com/pingcap/extstats/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// statistics metrics vars
var (
	CacheHitCounter  prometheus.Counter
	CacheMissCounter prometheus.Counter
	CacheCostGauge   prometheus.Gauge

	EstimateMCVCounter          prometheus.Counter
	EstimateDependenciesCounter prometheus.Counter
	EstimateNDistinctCounter    prometheus.Counter
	EstimateFailedCounter       prometheus.Counter
)

func init() {
	InitMetricsVars()
}

// InitMetricsVars init statistics metrics vars.
func InitMetricsVars() {
	CacheHitCounter = metrics.ExtStatsCacheCounter.WithLabelValues(metrics.LblHit)
	CacheMissCounter = metrics.ExtStatsCacheCounter.WithLabelValues(metrics.LblMiss)
	CacheCostGauge = metrics.ExtStatsCacheCostGauge

	EstimateMCVCounter = metrics.ExtStatsEstimateCounter.WithLabelValues("mcv", metrics.LblOK)
	EstimateDependenciesCounter = metrics.ExtStatsEstimateCounter.WithLabelValues("dependencies", metrics.LblOK)
	EstimateNDistinctCounter = metrics.ExtStatsEstimateCounter.WithLabelValues("ndistinct", metrics.LblOK)
	EstimateFailedCounter = metrics.ExtStatsEstimateCounter.WithLabelValues("any", metrics.LblError)
}

// BuildObserver returns the duration histogram and the result counter of a build of kind.
func BuildObserver(kind string, err error) (prometheus.Observer, prometheus.Counter) {
	result := metrics.LblOK
	if err != nil {
		result = metrics.LblError
	}
	return metrics.ExtStatsBuildHistogram.WithLabelValues(kind),
		metrics.ExtStatsBuildCounter.WithLabelValues(kind, result)
}

// ObserveBlobSize records the size of a serialized blob of kind.
func ObserveBlobSize(kind string, size int) {
	metrics.ExtStatsBlobSizeHistogram.WithLabelValues(kind).Observe(float64(size))
}

// CorruptBlobCounter returns the corrupt blob counter of kind.
func CorruptBlobCounter(kind string) prometheus.Counter {
	return metrics.ExtStatsCorruptBlobCounter.WithLabelValues(kind)
}
