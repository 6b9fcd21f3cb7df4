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
	"strconv"
	"strings"

	"github.com/pingcap/errors"
	"github.com/pingcap/extstats/pkg/config"
	"github.com/pingcap/extstats/pkg/statistics/handle/storage"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

const (
	flagRelID         = "rel"
	flagSinceVersion  = "since-version"
	flagBeforeVersion = "before-version"
)

func newCatalogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and maintain the statistics catalog of the configured storage.",
	}
	cmd.AddCommand(newCatalogListCommand(), newCatalogDropCommand(), newCatalogGCCommand())
	return cmd
}

// withStore opens the configured store for the duration of fn.
func withStore(fn func(storage.Store) error) (err error) {
	s, err := storage.NewStore(&config.GetGlobalConfig().Storage)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, s.Close())
	}()
	return fn(s)
}

func newCatalogListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the statistics objects.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			relID, err := cmd.Flags().GetInt64(flagRelID)
			if err != nil {
				return errors.Trace(err)
			}
			since, err := cmd.Flags().GetUint64(flagSinceVersion)
			if err != nil {
				return errors.Trace(err)
			}
			return withStore(func(s storage.Store) error {
				metas, err := s.ListExtendedStats(cmd.Context(), relID, since)
				if err != nil {
					return err
				}
				return printMetas(cmd.OutOrStdout(), metas)
			})
		},
	}
	cmd.Flags().Int64(flagRelID, 0, "Only list the objects of this relation")
	cmd.Flags().Uint64(flagSinceVersion, 0, "Only list the objects changed after this version")
	return cmd
}

func printMetas(w io.Writer, metas []*storage.ExtendedStatsMeta) error {
	if _, err := fmt.Fprintln(w, "stat_oid\tname\trel_id\tkinds\tkeys\texprs\tversion\tstatus"); err != nil {
		return errors.Trace(err)
	}
	for _, meta := range metas {
		kinds := make([]byte, len(meta.Kinds))
		for i, k := range meta.Kinds {
			kinds[i] = byte(k)
		}
		keys := make([]string, len(meta.Keys))
		for i, k := range meta.Keys {
			keys[i] = strconv.Itoa(int(k))
		}
		exprs := make([]string, len(meta.Exprs))
		for i, e := range meta.Exprs {
			exprs[i] = e.String()
		}
		_, err := fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s\t%d\t%s\n", meta.StatOID, meta.Name, meta.RelID,
			kinds, strings.Join(keys, " "), strings.Join(exprs, ", "), meta.Version, meta.Status)
		if err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func newCatalogDropCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "drop <rel-id> <name>",
		Short: "Mark a statistics object deleted.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			relID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return errors.Annotatef(err, "invalid relation id %q", args[0])
			}
			return withStore(func(s storage.Store) error {
				return s.MarkExtendedStatsDeleted(cmd.Context(), relID, args[1], false)
			})
		},
	}
}

func newCatalogGCCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Remove the objects marked deleted before a version.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			before, err := cmd.Flags().GetUint64(flagBeforeVersion)
			if err != nil {
				return errors.Trace(err)
			}
			return withStore(func(s storage.Store) error {
				removed, err := s.GCDeletedExtendedStats(cmd.Context(), before)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %d statistics objects\n", removed)
				return errors.Trace(err)
			})
		},
	}
	cmd.Flags().Uint64(flagBeforeVersion, ^uint64(0), "Only remove the objects deleted before this version")
	return cmd
}
