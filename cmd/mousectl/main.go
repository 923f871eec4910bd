// Copyright (c) 2025 dogwoodfire
// MouseEye - timelapse deploy orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

// main.go sets up the command-line interface for mousectl using the Cobra
// library. It defines the root command, the scenario subcommands (deploy,
// deploy-force, logs, status, ...), flags, and the main entry point.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/dogwoodfire/MouseEye/buildvars"
	"github.com/dogwoodfire/MouseEye/internal/config"
	"github.com/dogwoodfire/MouseEye/internal/db"
	"github.com/dogwoodfire/MouseEye/internal/i18n"
	"github.com/dogwoodfire/MouseEye/internal/logging"
	"github.com/spf13/cobra"
)

var cfgFile string

// runCfg is the configuration resolved for this invocation. It is set once
// in PersistentPreRunE and treated as immutable afterwards.
var runCfg config.Config

// main is the entry point of the application.
func main() {
	if err := rootCmd.Execute(); err != nil {
		// The error is already printed by Cobra on failure.
		os.Exit(1)
	}
}

var rootCmd *cobra.Command

func init() {
	rootCmd = newRootCmd()
}

// newRootCmd creates and configures a new root cobra command.
// This function is used to create the main application command as well as
// fresh instances for isolated testing.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mousectl",
		Short: "mousectl deploys the MouseEye timelapse service to its Raspberry Pi.",
		Long: `mousectl orchestrates the MouseEye deploy workflow: commit and push
local changes, then update the checkout on the Pi and restart the
timelapse service over SSH. Each scenario is a fixed pipeline of named
steps that aborts at the first failing step.

Every deploy is recorded in a small history database, and the Pi's SSH
host key is pinned there the first time you run 'mousectl trust-host'.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd, cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			runCfg = cfg

			i18n.Init(cfg.Language)
			logging.SetDebug(cfg.Debug)
			db.SetDebug(cfg.Debug)

			if err := db.InitDB(cfg.Database.Type, cfg.Database.DSN); err != nil {
				return errors.New(i18n.T("config.error_init_db", err))
			}
			return nil
		},
	}

	// Add subcommands to the newly created root command.
	cmd.AddCommand(deployCmd)
	cmd.AddCommand(deployForceCmd)
	cmd.AddCommand(commitCmd)
	cmd.AddCommand(pushCmd)
	cmd.AddCommand(pullCmd)
	cmd.AddCommand(pullHardCmd)
	cmd.AddCommand(restartCmd)
	cmd.AddCommand(statusCmd)
	cmd.AddCommand(logsCmd)
	cmd.AddCommand(fetchBackupCmd)
	cmd.AddCommand(historyCmd)
	cmd.AddCommand(trustHostCmd)
	cmd.AddCommand(configInitCmd)

	// Set version
	cmd.Version = buildvars.VersionOrDefault("dev")

	// Define flags
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is mouseye.yaml in the user config dir or current dir)")
	cmd.PersistentFlags().String("host", "raspberrypi.local", "remote host (optionally host:port)")
	cmd.PersistentFlags().String("user", "pi", "remote SSH user")
	cmd.PersistentFlags().String("remote-dir", "/home/pi/timelapse", "checkout directory on the remote host")
	cmd.PersistentFlags().String("service", "timelapse.service", "systemd service to restart and inspect")
	cmd.PersistentFlags().String("branch", "main", "branch to push and deploy")
	cmd.PersistentFlags().StringP("message", "m", "quick deploy", "commit message for the commit step")
	cmd.PersistentFlags().String("key", "", "path to the SSH private key (agent is used as fallback)")
	cmd.PersistentFlags().String("db-type", "sqlite", "history database type (sqlite, postgres, mysql)")
	cmd.PersistentFlags().String("db-dsn", "./mouseye.db", "history database connection string (DSN)")
	cmd.PersistentFlags().String("lang", "en", `output language ("en", "de")`)
	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	return cmd
}
