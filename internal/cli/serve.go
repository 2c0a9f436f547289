package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/roach88/lotbridge/internal/api"
	"github.com/roach88/lotbridge/internal/engine"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	SubmitTimeout   time.Duration
	ShutdownTimeout time.Duration

	// ready, when set, receives the bound address once the server listens.
	ready chan<- string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ledgers over HTTP",
		Long: `Run the transaction engine and serve it over HTTP.

The database is initialized from the genesis manifest on first start and
replayed on every later start. Transactions are submitted with
POST /v1/tx; balances, allowances, history and invariants are read under
/v1. Prometheus metrics are served on /metrics.

Examples:
  lotbridge serve --db ./lotbridge.db --listen 127.0.0.1:8545
  LOTBRIDGE_LISTEN=:8080 lotbridge serve --config lotbridge.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().String("listen", "", "HTTP listen address (default from config, 127.0.0.1:8545)")
	cmd.Flags().String("genesis", "", "genesis manifest used when the database is empty")
	cmd.Flags().DurationVar(&opts.SubmitTimeout, "submit-timeout", 30*time.Second, "maximum wait for a transaction receipt")
	cmd.Flags().DurationVar(&opts.ShutdownTimeout, "shutdown-timeout", 10*time.Second, "grace period for in-flight requests")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg, logger := opts.Config, opts.Logger

	g, err := loadGenesis(cfg.Genesis)
	if err != nil {
		return err
	}
	st, err := openStore(ctx, cfg.DB, true)
	if err != nil {
		return err
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	eng, err := engine.Initialize(ctx, st, g,
		engine.WithLogger(logger),
		engine.WithMetrics(engine.NewMetrics(reg)),
		engine.WithInvariantChecks(cfg.InvariantChecks),
	)
	if err != nil {
		return restoreError(cfg.DB, err)
	}

	server := api.NewServer(eng,
		api.WithGatherer(reg),
		api.WithLogger(logger),
		api.WithSubmitTimeout(opts.SubmitTimeout),
	)
	srv := &http.Server{
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("failed to listen on %s", cfg.Listen), err)
	}

	engineDone := make(chan error, 1)
	go func() { engineDone <- eng.Run(ctx) }()

	httpDone := make(chan error, 1)
	go func() { httpDone <- srv.Serve(ln) }()

	logger.Info("serving", "addr", ln.Addr().String(), "db", cfg.DB, "genesis", g.Hash())
	if opts.ready != nil {
		opts.ready <- ln.Addr().String()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-httpDone:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = WrapExitError(ExitCommandError, "http server failed", err)
		}
	case err := <-engineDone:
		if ctx.Err() == nil {
			runErr = WrapExitError(ExitFailure, "engine halted", err)
		}
		engineDone <- err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	eng.Stop()
	if err := <-engineDone; err != nil && ctx.Err() == nil && runErr == nil {
		runErr = WrapExitError(ExitFailure, "engine halted", err)
	}
	return runErr
}
