// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package main

import (
	"fmt"
	"io"
	"runtime"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/lodestar/internal/config"
	"github.com/tomtom215/lodestar/internal/logging"
)

// Set at build time with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
)

// cli carries state shared by every subcommand.
type cli struct {
	configPath string
	cfg        *config.Config
	out        io.Writer
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}

	root := &cobra.Command{
		Use:   "lodestar",
		Short: "Customer lifetime value and segmentation pipeline",
		Long: `Lodestar ingests a raw transaction log behind a watermark, builds per-customer
features, fits BG/NBD and Gamma-Gamma models, trains a customer segmentation
and serves CLV and segment predictions over HTTP.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return c.loadConfig()
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default: $CONFIG_PATH or ./config.yaml)")

	root.AddCommand(
		c.newGenerateCmd(),
		c.newIngestCmd(),
		c.newRunCmd(),
		c.newServeCmd(),
		c.newWatermarkCmd(),
		newVersionCmd(out),
	)
	return root
}

func (c *cli) loadConfig() error {
	var (
		cfg *config.Config
		err error
	)
	if c.configPath != "" {
		cfg, err = config.LoadFile(c.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	c.cfg = cfg
	logging.Init(cfg.LoggingSettings())
	return nil
}

// printJSON writes v as indented JSON to the command output.
func (c *cli) printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(c.out, string(data))
	return err
}

func newVersionCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			fmt.Fprintf(out, "lodestar %s (commit %s, %s)\n", version, commit, runtime.Version())
		},
	}
}
