package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/tracker/internal/api"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the JSON HTTP API server",
	Long: `Start an HTTP server exposing the tracker API under /api/v1.
By default it listens on port 8080. Use --port to change it.

Stops gracefully on SIGINT or SIGTERM, letting in-flight requests finish.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serveRun(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	_ = viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
}

// newHTTPServer builds the API server for the given address.
func newHTTPServer(addr string) (*http.Server, error) {
	svc, err := getService()
	if err != nil {
		return nil, err
	}
	l, err := getLogger()
	if err != nil {
		return nil, err
	}

	return &http.Server{
		Addr:              addr,
		Handler:           api.NewServer(svc, l).Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}, nil
}

func serveRun(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", viper.GetInt("port"))
	srv, err := newHTTPServer(addr)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would serve API at http://localhost%s/api/v1", addr)
		return nil
	}

	errCh := make(chan error, 1)
	go func() {
		ui.Info("Serving API at http://localhost%s/api/v1", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	ui.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
