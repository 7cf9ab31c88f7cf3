// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/lodestar/internal/api"
	"github.com/tomtom215/lodestar/internal/ingest"
	"github.com/tomtom215/lodestar/internal/logging"
	"github.com/tomtom215/lodestar/internal/pipeline"
	"github.com/tomtom215/lodestar/internal/supervisor"
	"github.com/tomtom215/lodestar/internal/supervisor/services"
	"github.com/tomtom215/lodestar/internal/watermark"
)

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func (c *cli) newGenerateCmd() *cobra.Command {
	var (
		out          string
		customers    int
		transactions int
		seed         int64
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic transaction log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sc := c.cfg.SyntheticConfig()
			if cmd.Flags().Changed("customers") {
				sc.Customers = customers
			}
			if cmd.Flags().Changed("transactions") {
				sc.Transactions = transactions
			}
			if cmd.Flags().Changed("seed") {
				sc.Seed = seed
			}
			if out == "" {
				out = c.cfg.Data.RawPath
			}

			txs, err := ingest.GenerateSynthetic(sc)
			if err != nil {
				return err
			}
			if err := ingest.WriteCSVFile(out, txs); err != nil {
				return err
			}
			logging.Info().Str("path", out).Int("rows", len(txs)).Int("customers", sc.Customers).Msg("Synthetic transaction log written")
			_, err = fmt.Fprintf(c.out, "wrote %d transactions to %s\n", len(txs), out)
			return err
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output CSV (default: data.raw_path)")
	cmd.Flags().IntVar(&customers, "customers", 0, "number of customers")
	cmd.Flags().IntVar(&transactions, "transactions", 0, "number of transactions")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed (default: seeds.synthetic)")
	return cmd
}

// ingestSummary is printed by the ingest command.
type ingestSummary struct {
	Status            string    `json:"status"`
	Rows              int       `json:"rows"`
	PreviousWatermark time.Time `json:"previous_watermark"`
	Watermark         time.Time `json:"watermark"`
	FailedChecks      []string  `json:"failed_expectations,omitempty"`
}

func (c *cli) newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Validate and accept transactions newer than the watermark",
		Long: `ingest reads the raw log, validates the rows after the watermark and, when
they pass, advances the watermark. A later run without --force will then see
no new data.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newIngestOnly(c.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			inc, err := a.loader.LoadNew(ctx)
			summary := ingestSummary{Status: "accepted"}
			if inc != nil {
				summary.Rows = len(inc.Transactions)
				summary.PreviousWatermark = inc.PreviousWatermark
				summary.Watermark = inc.Watermark
				if inc.Validation != nil {
					summary.FailedChecks = inc.Validation.FailedExpectations()
				}
			}
			var vf *ingest.ValidationFailedError
			switch {
			case errors.Is(err, ingest.ErrNoNewData):
				summary.Status = "no_new_data"
			case errors.As(err, &vf):
				summary.Status = "rejected"
				summary.Rows = vf.Rows
				if perr := c.printJSON(summary); perr != nil {
					return perr
				}
				return err
			case err != nil:
				return err
			}
			return c.printJSON(summary)
		},
	}
}

func (c *cli) newRunCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("force") {
				c.cfg.Pipeline.Force = force
			}
			a, err := newApp(c.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			res, runErr := a.runner.Run(ctx)
			if res != nil {
				if err := c.printJSON(res); err != nil {
					return err
				}
			}
			return runErr
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "retrain on the accepted history when there is no new data")
	return cmd
}

func (c *cli) newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled pipelines and the prediction API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(c.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	switch {
	case cfg.Pipeline.Interval > 0:
		tree.AddPipelineService(services.NewPipelineService(a.runner, services.PipelineServiceConfig{
			RunOnStartup: cfg.Pipeline.RunOnStartup,
			Interval:     cfg.Pipeline.Interval,
		}, a.logger))
	case cfg.Pipeline.RunOnStartup:
		if _, err := a.runner.Run(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Startup pipeline run failed")
		}
	}

	router := api.NewRouter(cfg.APIConfig(), api.Deps{
		Store:  a.store,
		Models: a.models,
		Status: a.runner,
	}, a.logger)
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout, a.logger))

	a.logger.Info().
		Str("addr", server.Addr).
		Dur("pipeline_interval", cfg.Pipeline.Interval).
		Msg("Starting Lodestar with supervisor tree")

	err = tree.Serve(ctx)
	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		a.logger.Warn().Int("services", len(report)).Msg("Services did not stop within the shutdown timeout")
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info().Msg("Shutdown complete")
	return nil
}

func (c *cli) newWatermarkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watermark",
		Short: "Inspect or reset the ingestion watermark",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the persisted watermark",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, db, err := newWatermarkStore(c.cfg)
			if err != nil {
				return err
			}
			if db != nil {
				defer db.Close()
			}
			ts, err := store.Get(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.out, watermark.Format(ts))
			return err
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <timestamp>",
		Short: "Overwrite the persisted watermark",
		Long: `set overwrites the watermark, for example to replay rows after a rejected
increment has been fixed. A date before the first transaction reloads the whole log.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := watermark.Parse(args[0])
			if err != nil {
				return err
			}
			store, db, err := newWatermarkStore(c.cfg)
			if err != nil {
				return err
			}
			if db != nil {
				defer db.Close()
			}
			if err := store.Set(cmd.Context(), ts); err != nil {
				return err
			}
			logging.Info().Time("watermark", ts).Msg("Watermark overwritten")
			_, err = fmt.Fprintln(c.out, watermark.Format(ts))
			return err
		},
	})
	return cmd
}
