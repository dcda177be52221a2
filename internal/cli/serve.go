package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/roach88/reactor/internal/httpapi"
	"github.com/roach88/reactor/internal/logging"
	"github.com/roach88/reactor/internal/reactor"
	"github.com/roach88/reactor/internal/store"
)

const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Token string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a replica and its HTTP API",
		Long: `Open the database, start the job executor, connect the configured remotes
and serve the HTTP API until interrupted.

Examples:
  reactor serve --db replica.db --listen 127.0.0.1:8787
  reactor serve --config reactor.yaml --token secret`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, opts)
		},
	}

	cmd.Flags().String("listen", "", "address to serve the HTTP API on (overrides listen_address)")
	cmd.Flags().String("log-level", "", "log level: debug, info, warn, error")
	cmd.Flags().String("log-file", "", "log file, - for stderr")
	cmd.Flags().StringVar(&opts.Token, "token", "", "bearer token required on sync endpoints")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, opts *ServeOptions) (err error) {
	cfg, err := loadConfig(cmd, opts.RootOptions)
	if err != nil {
		return err
	}

	closer, err := logging.Setup(cfg.Logging, opts.Verbose)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up logging", err)
	}
	defer closer.Close()

	reg, err := buildRegistry(cfg.Models.Dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load models", err)
	}
	signer, verifier, err := buildSigning(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up signing", err)
	}

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			err = multierror.Append(err, cerr)
		}
	}()

	r, err := reactor.New(st, reg,
		reactor.WithExecutorConfig(cfg.ExecutorConfig()),
		reactor.WithSyncConfig(cfg.SyncConfig()),
		reactor.WithMaxRetries(cfg.Executor.MaxRetries),
		reactor.WithSigner(signer),
		reactor.WithVerifier(verifier),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create reactor", err)
	}
	r.Start(ctx)

	for _, spec := range cfg.RemoteSpecs() {
		if _, err := r.Sync().Add(ctx, spec); err != nil {
			slog.Error("failed to add remote", "remote", spec.RemoteID, "error", err)
		}
	}
	if err := r.Sync().Resume(ctx); err != nil {
		slog.Error("failed to resume remotes", "error", err)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           httpapi.NewHandler(r, httpapi.Options{Token: opts.Token}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("serving", "address", cfg.ListenAddress, "database", cfg.Database.Path)
		serveErr <- srv.ListenAndServe()
	}()

	var result error
	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			result = multierror.Append(result, err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := r.Close(shutdownCtx); err != nil {
		result = multierror.Append(result, err)
	}
	if result != nil {
		return WrapExitError(ExitFailure, "serve failed", result)
	}
	return nil
}
