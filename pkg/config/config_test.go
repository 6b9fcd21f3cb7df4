// Copyright 2017 PingCAP, Inc.
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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	conf := NewConfig()
	path := writeConfig(t, `
[log]
level = "debug"

[stats]
default-stats-target = 500
build-concurrency = 2
auto-analyze-ratio = 0.2

[stats-cache]
capacity = 1048576

[storage]
type = "pebble"
path = "/tmp/extstats"
`)
	require.NoError(t, conf.Load(path))
	require.Equal(t, "debug", conf.Log.Level)
	require.Equal(t, 500, conf.Stats.DefaultStatsTarget)
	require.Equal(t, 2, conf.Stats.BuildConcurrency)
	require.Equal(t, 0.2, conf.Stats.AutoAnalyzeRatio)
	require.Equal(t, DefWidthThreshold, conf.Stats.WidthThreshold)
	require.Equal(t, int64(1048576), conf.StatsCache.Capacity)
	require.Equal(t, StoragePebble, conf.Storage.Type)
	require.NoError(t, conf.Valid())
}

func TestLoadConfigUnknownItem(t *testing.T) {
	conf := NewConfig()
	path := writeConfig(t, `
[stats]
unknown-item = 1
`)
	err := conf.Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "stats.unknown-item")
}

func TestConfigValid(t *testing.T) {
	conf := NewConfig()
	require.NoError(t, conf.Valid())

	conf.Stats.DefaultStatsTarget = MaxStatsTarget + 1
	require.Error(t, conf.Valid())
	conf.Stats.DefaultStatsTarget = DefStatsTarget

	conf.Stats.AutoAnalyzeRatio = -1
	require.Error(t, conf.Valid())
	conf.Stats.AutoAnalyzeRatio = DefAutoAnalyzeRatio

	conf.Storage.Type = StorageMySQL
	require.Error(t, conf.Valid())
	conf.Storage.DSN = "root@tcp(127.0.0.1:4000)/mysql"
	require.NoError(t, conf.Valid())

	conf.Storage.Type = "tikv"
	require.Error(t, conf.Valid())
}

func TestGlobalConfig(t *testing.T) {
	orig := GetGlobalConfig()
	defer StoreGlobalConfig(orig)

	conf := NewConfig()
	conf.Stats.DefaultStatsTarget = 42
	StoreGlobalConfig(conf)
	require.Equal(t, 42, GetGlobalConfig().Stats.DefaultStatsTarget)
	require.Equal(t, DefStatsTarget, NewConfig().Stats.DefaultStatsTarget)
}
