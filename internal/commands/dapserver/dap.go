// Copyright 2025 Tom Barlow
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

// Package dapserver provides the command that serves the Debug Adapter
// Protocol to editors.
package dapserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tombee/wfdebug/internal/commands/completion"
	"github.com/tombee/wfdebug/internal/commands/shared"
	"github.com/tombee/wfdebug/internal/config"
	"github.com/tombee/wfdebug/internal/debug"
	"github.com/tombee/wfdebug/internal/log"
	"github.com/tombee/wfdebug/internal/metrics"
	"github.com/tombee/wfdebug/internal/tracing"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

type options struct {
	job            string
	listen         string
	runnerAddress  string
	runnerPort     int
	requestTimeout time.Duration
	metricsAddr    string
	maxSessions    int
	watch          bool
}

// NewCommand creates the dap command
func NewCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "dap <workflow>",
		Short: "Serve the Debug Adapter Protocol for a workflow",
		Long: `Serve the Debug Adapter Protocol so that an editor can debug a job of
the given workflow on a runner.

By default a single session is served on stdin and stdout, which is how
editors launch debug adapters. With --listen, editor connections are
accepted on a TCP address and each gets its own session.

The runner must be listening for debuggers at the configured address
(default 127.0.0.1:41085).`,
		Example: `  # Serve one session on stdio, debugging the first job
  wfdebug dap .github/workflows/ci.yml

  # Accept editor connections on a port and debug the test job
  wfdebug dap .github/workflows/ci.yml --job test --listen 127.0.0.1:4711

  # Expose Prometheus metrics while serving
  wfdebug dap ci.yml --listen :4711 --metrics-addr :9090`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteWorkflowFiles,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := shared.LoadConfig()
			if err != nil {
				return err
			}
			applyFlags(cmd, cfg, &opts)
			if err := cfg.Validate(); err != nil {
				return shared.NewConfigError("", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := shared.NewLogger(cfg)
			version, _, _ := shared.GetVersion()
			shutdownTracing, err := tracing.Setup(ctx, cfg.TracingConfig(version))
			if err != nil {
				return shared.NewConfigError("cannot start tracing", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := shutdownTracing(shutdownCtx); err != nil {
					logger.Warn("tracing shutdown failed", log.Error(err))
				}
			}()

			srv, err := newServer(cfg, args[0], opts.job, logger)
			if err != nil {
				return err
			}
			return run(ctx, srv, cfg, cmd, logger)
		},
	}

	cmd.Flags().StringVar(&opts.job, "job", "", "Job to debug (default: first job in the file)")
	cmd.Flags().StringVar(&opts.listen, "listen", "", "Accept editor connections on this TCP address instead of stdio")
	cmd.Flags().StringVar(&opts.runnerAddress, "runner-address", "", "Runner debug address")
	cmd.Flags().IntVar(&opts.runnerPort, "runner-port", 0, "Runner debug port")
	cmd.Flags().DurationVar(&opts.requestTimeout, "request-timeout", 0, "Timeout for each runner request")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().IntVar(&opts.maxSessions, "max-sessions", 0, "Maximum concurrent editor sessions with --listen")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Reload the workflow file when it changes")

	_ = cmd.RegisterFlagCompletionFunc("job", completion.CompleteJobs)
	return cmd
}

// applyFlags overrides configuration values with flags the user set.
func applyFlags(cmd *cobra.Command, cfg *config.Config, opts *options) {
	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.Server.Listen = opts.listen
	}
	if flags.Changed("runner-address") {
		cfg.Runner.Address = opts.runnerAddress
	}
	if flags.Changed("runner-port") {
		cfg.Runner.Port = opts.runnerPort
	}
	if flags.Changed("request-timeout") {
		cfg.Runner.RequestTimeout = opts.requestTimeout
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = opts.metricsAddr
	}
	if flags.Changed("max-sessions") {
		cfg.Server.MaxSessions = opts.maxSessions
	}
	if flags.Changed("watch") {
		cfg.Server.Watch = opts.watch
	}
}

// sessionConfig builds the configuration every session is bound with.
func sessionConfig(cfg *config.Config, workflowPath, jobID string) debug.Config {
	return debug.Config{
		WorkflowPath:   workflowPath,
		JobID:          jobID,
		RunnerAddress:  cfg.Runner.Address,
		RunnerPort:     cfg.Runner.Port,
		RequestTimeout: cfg.Runner.RequestTimeout,
		ConnectTimeout: cfg.Runner.ConnectTimeout,
		GitHub:         cfg.GitHub.Context(),
		Watch:          cfg.Server.Watch,
	}
}

// newServer checks that the workflow and job can be debugged before any
// editor connects, so mistakes surface on the command line.
func newServer(cfg *config.Config, workflowPath, jobID string, logger *slog.Logger) (*debug.Server, error) {
	sc := sessionConfig(cfg, workflowPath, jobID)
	if err := sc.Validate(); err != nil {
		return nil, shared.NewConfigError("", err)
	}
	doc, err := shared.LoadWorkflow(workflowPath)
	if err != nil {
		return nil, err
	}
	if _, err := sc.BoundJob(doc.Workflow); err != nil {
		return nil, shared.NewInvalidWorkflowError("", err)
	}

	return debug.NewServer(debug.ServerConfig{
		Session:     sc,
		MaxSessions: cfg.Server.MaxSessions,
		Logger:      logger,
	}), nil
}

func run(ctx context.Context, srv *debug.Server, cfg *config.Config, cmd *cobra.Command, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Addr != "" {
		startMetrics(gctx, g, cfg.Metrics.Addr, log.WithComponent(logger, "metrics"))
	}

	g.Go(func() error {
		defer cancel()
		if cfg.Server.Listen == "" {
			return srv.ServeStdio(gctx, cmd.InOrStdin(), cmd.OutOrStdout())
		}
		l, err := net.Listen("tcp", cfg.Server.Listen)
		if err != nil {
			return shared.NewConfigError("cannot listen for editors", err)
		}
		return srv.Serve(gctx, l)
	})

	return g.Wait()
}

// startMetrics serves /metrics until ctx is done.
func startMetrics(ctx context.Context, g *errgroup.Group, addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	httpSrv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g.Go(func() error {
		logger.Info("serving metrics", slog.String("address", addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return shared.NewConfigError("metrics server failed", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown metrics server: %w", err)
		}
		return nil
	})
}
