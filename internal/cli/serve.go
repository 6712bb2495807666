package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lythra/lythra/internal/app"
	"github.com/lythra/lythra/internal/config"
	"github.com/lythra/lythra/internal/server"
)

const shutdownTimeout = 10 * time.Second

var (
	serveHost string
	servePort int

	serveSignalNotify = signal.Notify
	serveSignalStop   = signal.Stop
	// serveListening is called with the bound address once the API accepts
	// connections.
	serveListening = func(addr string) {}
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the module core and its HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("host") {
			cfg.Server.Host = serveHost
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = servePort
		}

		a, err := app.New(cfg, app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		sigChan := make(chan os.Signal, 1)
		serveSignalNotify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer serveSignalStop(sigChan)
		go func() {
			select {
			case sig := <-sigChan:
				slog.Info("Shutdown signal received", "signal", sig.String())
				cancel()
			case <-ctx.Done():
			}
		}()

		a.Start(ctx)

		addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		srv := &http.Server{
			Handler: server.New(server.Deps{
				Registry: a.Registry,
				Provider: a.Provider,
				Events:   a.Events,
				Version:  version,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Serve(ln) }()
		slog.Info("API listening", "addr", ln.Addr().String())
		fmt.Fprintf(cmd.OutOrStdout(), "Lythra API listening on http://%s\n", ln.Addr().String())
		serveListening(ln.Addr().String())

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("API shutdown incomplete", "error", err)
		}
		slog.Info("API stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (overrides server.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}
