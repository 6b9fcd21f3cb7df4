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
	"math"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// metrics labels.
const (
	LblType   = "type"
	LblKind   = "kind"
	LblResult = "result"

	LblOK    = "ok"
	LblError = "error"
	LblHit   = "hit"
	LblMiss  = "miss"
)

var registerOnce sync.Once

func init() {
	InitStatsMetrics()
}

// NewCounterVec creates a new CounterVec.
func NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(opts, labelNames)
}

// NewHistogramVec creates a new HistogramVec.
func NewHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(opts, labelNames)
}

// NewGauge creates a new Gauge.
func NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	return prometheus.NewGauge(opts)
}

// RegisterMetrics registers the metrics which are ONLY used by the extended statistics engine.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(ExtStatsBuildHistogram)
		prometheus.MustRegister(ExtStatsBuildCounter)
		prometheus.MustRegister(ExtStatsBlobSizeHistogram)
		prometheus.MustRegister(ExtStatsCorruptBlobCounter)
		prometheus.MustRegister(ExtStatsEstimateCounter)
		prometheus.MustRegister(ExtStatsCacheCounter)
		prometheus.MustRegister(ExtStatsCacheCostGauge)
	})
}

// ReadCounter reports the current value of the counter.
func ReadCounter(counter prometheus.Counter) float64 {
	var metric dto.Metric
	if err := counter.Write(&metric); err != nil {
		return math.NaN()
	}
	return metric.Counter.GetValue()
}
