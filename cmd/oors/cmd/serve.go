package cmd

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

	"github.com/GoCodeAlone/oors"
	"github.com/GoCodeAlone/oors/config"
	"github.com/spf13/cobra"
)

// NewServeCommand creates the serve command
func NewServeCommand(opts *options) *cobra.Command {
	var host string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Bootstrap the modules and serve HTTP until interrupted",
		Long: `Load the configuration, register and bootstrap the built-in modules,
then serve the router on its configured port. With --watch, changes to the
configuration files are published as config:changed events.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger, err := newLogger(cmd.ErrOrStderr(), opts.logLevel)
			if err != nil {
				return err
			}
			return serve(ctx, opts, logger, func(port int) (net.Listener, error) {
				return net.Listen("tcp", net.JoinHostPort(host, fmt.Sprint(port)))
			})
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "interface to listen on")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "watch configuration files for changes")
	cmd.Flags().DurationVar(&opts.shutdownTimeout, "shutdown-timeout", 10*time.Second, "time allowed for a graceful shutdown")

	return cmd
}

// load reads the configuration. Without any source the modules run on
// their defaults.
func load(ctx context.Context, loader *config.Loader) (*config.Document, error) {
	doc, err := loader.Load(ctx)
	if errors.Is(err, config.ErrNoSources) {
		return &config.Document{Modules: map[string]map[string]any{}}, nil
	}
	return doc, err
}

func serve(ctx context.Context, opts *options, logger oors.Logger, listen func(port int) (net.Listener, error)) error {
	loader := opts.loader()
	doc, err := load(ctx, loader)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, doc, logger)
	if err != nil {
		return err
	}
	handler, port, err := a.handler()
	if err != nil {
		return errors.Join(err, a.shutdown(ctx))
	}

	if opts.watch && len(loader.Paths()) > 0 {
		w, err := config.NewWatcher(loader, a.configChanged,
			config.WithErrorHandler(func(err error) { logger.Warn("Configuration reload failed", "error", err) }))
		if err != nil {
			return errors.Join(err, a.shutdown(ctx))
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Error("Configuration watcher stopped", "error", err)
			}
		}()
	}

	ln, err := listen(port)
	if err != nil {
		return errors.Join(err, a.shutdown(ctx))
	}

	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	logger.Info("Serving", "addr", ln.Addr().String())

	select {
	case err = <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opts.shutdownTimeout)
	defer cancel()
	return errors.Join(err, srv.Shutdown(shutdownCtx), a.shutdown(shutdownCtx))
}
