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
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pingcap/errors"
	"github.com/pingcap/extstats/pkg/config"
	"github.com/pingcap/extstats/pkg/expression"
	"github.com/pingcap/extstats/pkg/statistics"
	"github.com/pingcap/extstats/pkg/statistics/extstats"
	"github.com/pingcap/extstats/pkg/types"
	"github.com/pingcap/log"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	flagKeys      = "keys"
	flagTypes     = "types"
	flagTotalRows = "total-rows"
	flagTarget    = "target"
	flagOutput    = "output"
	flagNull      = "null"
)

// Names of the blob files written by build.
const (
	ndistinctFile    = "ndistinct.bin"
	dependenciesFile = "dependencies.bin"
	mcvFile          = "mcv.bin"
)

type buildOptions struct {
	keys      []int16
	types     []types.TypeID
	totalRows float64
	target    int
	output    string
	null      string
}

func newBuildCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build <csv-file>",
		Short: "Build the statistics of sampled rows read from a CSV file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := parseBuildOptions(cmd)
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return errors.Trace(err)
			}
			defer f.Close()
			return runBuild(cmd.Context(), f, opts)
		},
	}
	cmd.Flags().String(flagKeys, "", "Comma separated 1-based columns to build on, all columns when empty")
	cmd.Flags().String(flagTypes, "", "Comma separated type names of the CSV columns, e.g. int4,text")
	cmd.Flags().Float64(flagTotalRows, 0, "Number of rows of the relation the sample was drawn from, the sample size when 0")
	cmd.Flags().Int(flagTarget, 0, "MCV list size target, the configured default when 0")
	cmd.Flags().StringP(flagOutput, "o", ".", "Directory the blobs are written to")
	cmd.Flags().String(flagNull, "\\N", "Field value read as NULL")
	_ = cmd.MarkFlagRequired(flagTypes)
	return cmd
}

func parseBuildOptions(cmd *cobra.Command) (*buildOptions, error) {
	flags := cmd.Flags()
	opts := &buildOptions{}
	reg := types.NewRegistry()
	typeNames, err := flags.GetString(flagTypes)
	if err != nil {
		return nil, errors.Trace(err)
	}
	for _, name := range strings.Split(typeNames, ",") {
		tp, err := reg.LookupByName(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		opts.types = append(opts.types, tp.ID)
	}
	keys, err := flags.GetString(flagKeys)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if keys == "" {
		for i := range opts.types {
			opts.keys = append(opts.keys, int16(i+1))
		}
	} else {
		for _, k := range strings.Split(keys, ",") {
			attno, err := strconv.ParseInt(strings.TrimSpace(k), 10, 16)
			if err != nil {
				return nil, errors.Annotatef(err, "invalid key %q", k)
			}
			if attno < 1 || int(attno) > len(opts.types) {
				return nil, errors.Errorf("key %d is not a column of the %d typed columns", attno, len(opts.types))
			}
			opts.keys = append(opts.keys, int16(attno))
		}
	}
	if opts.totalRows, err = flags.GetFloat64(flagTotalRows); err != nil {
		return nil, errors.Trace(err)
	}
	if opts.target, err = flags.GetInt(flagTarget); err != nil {
		return nil, errors.Trace(err)
	}
	if opts.target <= 0 {
		opts.target = config.GetGlobalConfig().Stats.DefaultStatsTarget
	}
	if opts.output, err = flags.GetString(flagOutput); err != nil {
		return nil, errors.Trace(err)
	}
	if opts.null, err = flags.GetString(flagNull); err != nil {
		return nil, errors.Trace(err)
	}
	return opts, nil
}

// readRows parses every CSV record into a row of datums of the given types.
func readRows(r io.Reader, reg *types.Registry, tps []types.TypeID, null string) ([][]types.Datum, error) {
	infos := make([]*types.TypeInfo, len(tps))
	for i, id := range tps {
		tp, err := reg.Lookup(id)
		if err != nil {
			return nil, err
		}
		infos[i] = tp
	}
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(tps)
	var rows [][]types.Datum
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, errors.Trace(err)
		}
		row := make([]types.Datum, len(record))
		for i, field := range record {
			if field == null {
				row[i].SetNull()
				continue
			}
			if row[i], err = infos[i].Ops.Input(field); err != nil {
				return nil, errors.Annotatef(err, "line %d, column %d", len(rows)+1, i+1)
			}
		}
		rows = append(rows, row)
	}
}

func runBuild(ctx context.Context, r io.Reader, opts *buildOptions) error {
	reg := types.NewRegistry()
	rows, err := readRows(r, reg, opts.types, opts.null)
	if err != nil {
		return err
	}
	totalRows := opts.totalRows
	if totalRows <= 0 {
		totalRows = float64(len(rows))
	}
	data, err := statistics.BuildDataFromSample(rows, opts.types, opts.keys, nil, reg, expression.NewDefaultEvaluator(reg))
	if err != nil {
		return err
	}
	cfg := config.GetGlobalConfig().Stats
	b := extstats.NewBuilder(reg)
	b.WidthThreshold = cfg.WidthThreshold
	b.CancelCheckInterval = cfg.CancelCheckInterval

	blobs := make(map[string][]byte, 3)
	nd, err := b.BuildNDistinct(ctx, totalRows, data)
	if err != nil {
		return err
	}
	if nd != nil {
		if blobs[ndistinctFile], err = nd.Marshal(); err != nil {
			return err
		}
	}
	deps, err := b.BuildDependencies(ctx, data)
	if err != nil {
		return err
	}
	if deps != nil {
		if blobs[dependenciesFile], err = deps.Marshal(); err != nil {
			return err
		}
	}
	mcv, err := b.BuildMCVList(ctx, data, totalRows, opts.target)
	if err != nil {
		return err
	}
	if mcv != nil {
		if blobs[mcvFile], err = mcv.Marshal(reg); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(opts.output, 0o755); err != nil {
		return errors.Trace(err)
	}
	for name, blob := range blobs {
		if err := os.WriteFile(filepath.Join(opts.output, name), blob, 0o644); err != nil {
			return errors.Trace(err)
		}
	}
	log.Info("build extended stats",
		zap.Int("sampleRows", len(rows)), zap.Float64("totalRows", totalRows),
		zap.Int("blobs", len(blobs)), zap.String("output", opts.output))
	return nil
}
