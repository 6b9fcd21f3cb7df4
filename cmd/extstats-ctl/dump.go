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
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pingcap/errors"
	"github.com/pingcap/extstats/pkg/statistics/extstats"
	"github.com/pingcap/extstats/pkg/types"
	"github.com/spf13/cobra"
)

const flagKind = "kind"

func newDumpCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump <blob-file>",
		Short: "Print a serialized statistics blob.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := cmd.Flags().GetString(flagKind)
			if err != nil {
				return errors.Trace(err)
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Trace(err)
			}
			return dumpBlob(cmd.OutOrStdout(), kind, data)
		},
	}
	cmd.Flags().String(flagKind, "m", "Kind of the blob: d, f or m")
	return cmd
}

func dumpBlob(w io.Writer, kind string, data []byte) error {
	if len(kind) != 1 {
		return errors.Errorf("invalid kind %q", kind)
	}
	switch extstats.StatsKind(kind[0]) {
	case extstats.KindNDistinct:
		nd, err := extstats.UnmarshalNDistinct(data)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, nd.String())
		return errors.Trace(err)
	case extstats.KindDependencies:
		deps, err := extstats.UnmarshalDependencies(data)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, deps.String())
		return errors.Trace(err)
	case extstats.KindMCV:
		reg := types.NewRegistry()
		mcv, err := extstats.UnmarshalMCVList(data, reg)
		if err != nil {
			return err
		}
		rows, err := mcv.ItemRows(reg)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "index\tvalues\tnulls\tfrequency\tbase_frequency")
		for _, row := range rows {
			values := make([]string, len(row.Values))
			for i, v := range row.Values {
				if row.Nulls[i] {
					v = "NULL"
				}
				values[i] = v
			}
			_, err = fmt.Fprintf(w, "%d\t{%s}\t%v\t%g\t%g\n",
				row.Index, strings.Join(values, ","), row.Nulls, row.Frequency, row.BaseFrequency)
			if err != nil {
				return errors.Trace(err)
			}
		}
		return nil
	}
	return errors.Errorf("invalid kind %q", kind)
}
