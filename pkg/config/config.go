// Copyright 2016 PingCAP, Inc.
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

package config

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/errors"
	"github.com/pingcap/extstats/pkg/util/logutil"
)

// Storage types.
const (
	StorageMemory = "memory"
	StoragePebble = "pebble"
	StorageMySQL  = "mysql"
)

const (
	// DefStatsTarget is the default MCV list size target.
	DefStatsTarget = 100
	// MaxStatsTarget is the upper bound of the MCV list size target.
	MaxStatsTarget = 10000
	// DefWidthThreshold is the raw size above which a variable-length sample row is skipped.
	DefWidthThreshold = 1024
	// DefCancelCheckInterval is how many comparisons run between two cancellation checks.
	DefCancelCheckInterval = 1024
	// DefAutoAnalyzeRatio is the default ratio of changed rows that triggers an auto analyze.
	DefAutoAnalyzeRatio = 0.5
)

// Config contains configuration options.
type Config struct {
	Log        Log        `toml:"log" json:"log"`
	Stats      Stats      `toml:"stats" json:"stats"`
	StatsCache StatsCache `toml:"stats-cache" json:"stats-cache"`
	Storage    Storage    `toml:"storage" json:"storage"`
}

// Log is the log section of config.
type Log struct {
	// Log level.
	Level string `toml:"level" json:"level"`
	// Log format. one of json, text, or console.
	Format string `toml:"format" json:"format"`
	// Disable automatic timestamps in output.
	DisableTimestamp bool `toml:"disable-timestamp" json:"disable-timestamp"`
	// File log config.
	File logutil.FileLogConfig `toml:"file" json:"file"`
}

// Stats is the stats section of the config.
type Stats struct {
	DefaultStatsTarget  int `toml:"default-stats-target" json:"default-stats-target"`
	WidthThreshold      int `toml:"width-threshold" json:"width-threshold"`
	CancelCheckInterval int `toml:"cancel-check-interval" json:"cancel-check-interval"`
	BuildConcurrency    int `toml:"build-concurrency" json:"build-concurrency"`
	// AutoAnalyzeRatio is the ratio of changed rows above which a relation
	// is rebuilt by the auto analyze worker.
	AutoAnalyzeRatio float64 `toml:"auto-analyze-ratio" json:"auto-analyze-ratio"`
}

// StatsCache is the stats-cache section of the config.
type StatsCache struct {
	Capacity    int64 `toml:"capacity" json:"capacity"`
	NumCounters int64 `toml:"num-counters" json:"num-counters"`
}

// Storage is the storage section of the config.
type Storage struct {
	Type string `toml:"type" json:"type"`
	Path string `toml:"path" json:"path"`
	DSN  string `toml:"dsn" json:"dsn"`
}

var defaultConf = Config{
	Log: Log{
		Level:  "info",
		Format: logutil.DefaultLogFormat,
		File:   logutil.NewFileLogConfig(logutil.DefaultLogMaxSize),
	},
	Stats: Stats{
		DefaultStatsTarget:  DefStatsTarget,
		WidthThreshold:      DefWidthThreshold,
		CancelCheckInterval: DefCancelCheckInterval,
		BuildConcurrency:    4,
		AutoAnalyzeRatio:    DefAutoAnalyzeRatio,
	},
	StatsCache: StatsCache{
		Capacity:    64 << 20,
		NumCounters: 1 << 16,
	},
	Storage: Storage{
		Type: StorageMemory,
	},
}

var globalConf atomic.Pointer[Config]

func init() {
	conf := defaultConf
	globalConf.Store(&conf)
}

// NewConfig creates a new config instance with default value.
func NewConfig() *Config {
	conf := defaultConf
	return &conf
}

// GetGlobalConfig returns the global configuration for this process.
// It should store configuration from command line and configuration file.
// Other parts of the system can read the global configuration use this function.
func GetGlobalConfig() *Config {
	return globalConf.Load()
}

// StoreGlobalConfig stores a new config to the globalConf.
func StoreGlobalConfig(config *Config) {
	globalConf.Store(config)
}

// Load loads config options from a toml file.
func (c *Config) Load(confFile string) error {
	metaData, err := toml.DecodeFile(confFile, c)
	if err != nil {
		return errors.Trace(err)
	}
	if undecoded := metaData.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, item := range undecoded {
			keys = append(keys, item.String())
		}
		return errors.Errorf("config file %s contained invalid configuration options: %s",
			confFile, strings.Join(keys, ", "))
	}
	return nil
}

// Valid checks if this config is valid.
func (c *Config) Valid() error {
	if c.Stats.DefaultStatsTarget < 1 || c.Stats.DefaultStatsTarget > MaxStatsTarget {
		return fmt.Errorf("default-stats-target should be in [1, %d]", MaxStatsTarget)
	}
	if c.Stats.WidthThreshold <= 0 {
		return fmt.Errorf("width-threshold should be positive")
	}
	if c.Stats.CancelCheckInterval <= 0 {
		return fmt.Errorf("cancel-check-interval should be positive")
	}
	if c.Stats.BuildConcurrency <= 0 {
		return fmt.Errorf("build-concurrency should be positive")
	}
	if c.Stats.AutoAnalyzeRatio < 0 {
		return fmt.Errorf("auto-analyze-ratio should not be negative")
	}
	if c.StatsCache.Capacity <= 0 || c.StatsCache.NumCounters <= 0 {
		return fmt.Errorf("stats-cache capacity and num-counters should be positive")
	}
	switch c.Storage.Type {
	case StorageMemory:
	case StoragePebble:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required by the %s storage", StoragePebble)
		}
	case StorageMySQL:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required by the %s storage", StorageMySQL)
		}
	default:
		return fmt.Errorf("unsupported storage type %q", c.Storage.Type)
	}
	return nil
}

// ToLogConfig converts *Log to *logutil.LogConfig.
func (l *Log) ToLogConfig() *logutil.LogConfig {
	return logutil.NewLogConfig(l.Level, l.Format, l.File, l.DisableTimestamp)
}
