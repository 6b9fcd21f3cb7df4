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
	"github.com/pingcap/errors"
	"github.com/pingcap/extstats/pkg/config"
	"github.com/pingcap/extstats/pkg/util/logutil"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	flagConfig   = "config"
	flagLogLevel = "log-level"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "extstats-ctl",
		Short:             "extstats-ctl builds and inspects multi-column statistics.",
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}
	defineCommonFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(
		newDumpCommand(),
		newBuildCommand(),
		newCatalogCommand(),
	)
	return rootCmd
}

func defineCommonFlags(flags *pflag.FlagSet) {
	flags.String(flagConfig, "", "Path of the toml config file")
	flags.StringP(flagLogLevel, "L", "", "Set the log level, overriding the config file")
}

// initConfig loads the config file, then sets up the logger.
func initConfig(cmd *cobra.Command, _ []string) error {
	conf := config.NewConfig()
	path, err := cmd.Flags().GetString(flagConfig)
	if err != nil {
		return errors.Trace(err)
	}
	if path != "" {
		if err := conf.Load(path); err != nil {
			return err
		}
	}
	level, err := cmd.Flags().GetString(flagLogLevel)
	if err != nil {
		return errors.Trace(err)
	}
	if level != "" {
		conf.Log.Level = level
	}
	if err := conf.Valid(); err != nil {
		return errors.Trace(err)
	}
	if err := logutil.InitLogger(conf.Log.ToLogConfig()); err != nil {
		return err
	}
	config.StoreGlobalConfig(conf)
	return nil
}
