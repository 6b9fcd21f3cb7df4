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

package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pingcap/extstats/pkg/config"
	"github.com/pingcap/extstats/pkg/statistics/extstats"
	"github.com/pingcap/extstats/pkg/statistics/handle/storage"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestBuildAndDump(t *testing.T) {
	dir := t.TempDir()
	var sb strings.Builder
	for i := range 100 {
		fmt.Fprintf(&sb, "%d,%d\n", i%4, i%2)
	}
	csvPath := writeFile(t, dir, "sample.csv", sb.String())
	out := filepath.Join(dir, "out")

	_, err := execute(t, "build", "--types", "int4,int4", "-o", out, csvPath)
	require.NoError(t, err)
	for _, name := range []string{ndistinctFile, dependenciesFile, mcvFile} {
		require.FileExists(t, filepath.Join(out, name))
	}

	res, err := execute(t, "dump", "--kind", "d", filepath.Join(out, ndistinctFile))
	require.NoError(t, err)
	require.Equal(t, "{\"1, 2\": 4}\n", res)
	res, err = execute(t, "dump", "--kind", "f", filepath.Join(out, dependenciesFile))
	require.NoError(t, err)
	require.Contains(t, res, "\"1 => 2\": 1.000000")
	res, err = execute(t, "dump", filepath.Join(out, mcvFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(res), "\n")
	require.Len(t, lines, 5)
	require.True(t, strings.HasPrefix(lines[1], "0\t{"))

	// The blob is not an MCV list.
	_, err = execute(t, "dump", "--kind", "m", filepath.Join(out, ndistinctFile))
	require.Error(t, err)
	_, err = execute(t, "dump", "--kind", "x", filepath.Join(out, ndistinctFile))
	require.ErrorContains(t, err, "invalid kind")
}

func TestBuildWithNulls(t *testing.T) {
	dir := t.TempDir()
	var sb strings.Builder
	for i := range 60 {
		if i%3 == 0 {
			fmt.Fprintf(&sb, "%d,\\N,x\n", i%5)
		} else {
			fmt.Fprintf(&sb, "%d,v%d,x\n", i%5, i%5)
		}
	}
	csvPath := writeFile(t, dir, "sample.csv", sb.String())
	out := filepath.Join(dir, "out")
	_, err := execute(t, "build", "--types", "int4,text,text", "--keys", "1,2", "--total-rows", "60", "-o", out, csvPath)
	require.NoError(t, err)
	res, err := execute(t, "dump", filepath.Join(out, mcvFile))
	require.NoError(t, err)
	require.Contains(t, res, "NULL")
}

func TestBuildInvalidOptions(t *testing.T) {
	dir := t.TempDir()
	csvPath := writeFile(t, dir, "sample.csv", "1,a\n2,b\n")
	_, err := execute(t, "build", "--types", "int4,money", csvPath)
	require.Error(t, err)
	_, err = execute(t, "build", "--types", "int4,text", "--keys", "1,3", csvPath)
	require.ErrorContains(t, err, "key 3")
	_, err = execute(t, "build", "--types", "int4,int4", "-o", dir, csvPath)
	require.ErrorContains(t, err, "line 1, column 2")
	_, err = execute(t, "build", "--types", "int4", "-o", dir, csvPath)
	require.Error(t, err)
}

func TestCatalog(t *testing.T) {
	dir := t.TempDir()
	confPath := writeFile(t, dir, "config.toml", fmt.Sprintf(`
[log]
level = "warn"

[storage]
type = "pebble"
path = %q
`, filepath.Join(dir, "catalog")))

	conf := config.NewConfig()
	require.NoError(t, conf.Load(confPath))
	s, err := storage.NewStore(&conf.Storage)
	require.NoError(t, err)
	ctx := context.Background()
	for _, meta := range []*storage.ExtendedStatsMeta{
		{Name: "s_ab", RelID: 1, Kinds: extstats.AllKinds, Keys: []int16{1, 2}},
		{Name: "s_cd", RelID: 2, Kinds: []extstats.StatsKind{extstats.KindMCV}, Keys: []int16{3, 4}},
	} {
		_, err := s.InsertExtendedStats(ctx, meta, false)
		require.NoError(t, err)
	}
	require.NoError(t, s.Close())

	res, err := execute(t, "--config", confPath, "catalog", "list")
	require.NoError(t, err)
	require.Contains(t, res, "s_ab\t1\tdfm\t1 2\t\t")
	require.Contains(t, res, "s_cd\t2\tm\t3 4")
	res, err = execute(t, "--config", confPath, "catalog", "list", "--rel", "2")
	require.NoError(t, err)
	require.NotContains(t, res, "s_ab")

	_, err = execute(t, "--config", confPath, "catalog", "drop", "1", "s_ab")
	require.NoError(t, err)
	_, err = execute(t, "--config", confPath, "catalog", "drop", "1", "s_ab")
	require.Error(t, err)
	res, err = execute(t, "--config", confPath, "catalog", "list", "--rel", "1")
	require.NoError(t, err)
	require.Contains(t, res, "deleted")
	res, err = execute(t, "--config", confPath, "catalog", "gc")
	require.NoError(t, err)
	require.Equal(t, "removed 1 statistics objects\n", res)
}

func TestInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	confPath := writeFile(t, dir, "config.toml", "[storage]\ntype = \"tikv\"\n")
	_, err := execute(t, "--config", confPath, "catalog", "list")
	require.ErrorContains(t, err, "tikv")
}
