// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Weft Contributors

package main

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/weft-dev/weft/internal/config"
	werr "github.com/weft-dev/weft/pkg/errors"
)

// NewRootCmd creates the root weft command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "weft",
		Short:         "Weft — local activity graph daemon",
		Long:          "Weft ingests activity events from local collectors and weaves them into a queryable graph of entities and relationships.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initViper(cmd)
		},
	}

	// Global flags — these map to viper keys via initViper.
	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "path to data directory")
	root.PersistentFlags().String("socket", "", "path to daemon socket")

	root.AddCommand(
		newStartCmd(),
		newStatusCmd(),
		newQueryCmd(),
		newCollectorsCmd(),
		newPauseCmd(),
		newVersionCmd(),
	)

	return root
}

// initViper sets up the global Viper with defaults, env bindings, flag
// bindings, and optional config file so the standard precedence
// (flag > env > file > defaults) is handled uniformly.
func initViper(cmd *cobra.Command) error {
	v := viper.GetViper()

	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return werr.Errorf(werr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		// Auto-discover weft.yaml from standard locations.
		// SetConfigType is intentionally omitted: when set, Viper also
		// tries the bare config name without extension, which collides
		// with the ./weft binary in the project root.
		v.SetConfigName("weft")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/weft")
		v.AddConfigPath("/etc/weft")
		// No config file is fine — defaults and env vars still apply.
		// Parse or permission errors must surface.
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return werr.Errorf(werr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
		}
	}

	if err := v.BindPFlag("daemon.data_dir", cmd.Root().PersistentFlags().Lookup("data-dir")); err != nil {
		return werr.Errorf(werr.CodeCLIInputInvalid, "binding data-dir flag: %w", err)
	}
	if err := v.BindPFlag("daemon.socket_path", cmd.Root().PersistentFlags().Lookup("socket")); err != nil {
		return werr.Errorf(werr.CodeCLIInputInvalid, "binding socket flag: %w", err)
	}

	return nil
}

// loadConfig resolves the effective configuration from the global
// Viper after initViper ran.
func loadConfig() (*config.Config, error) {
	return config.FromViper(viper.GetViper())
}
