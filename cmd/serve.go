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

	"github.com/mezonai/mmn-storage/logx"
	"github.com/mezonai/mmn-storage/monitoring"
	"github.com/mezonai/mmn-storage/storage"
	"github.com/spf13/cobra"
)

var metricsAddr string

var serveMetricsCmd = &cobra.Command{
	Use:   "serve-metrics",
	Short: "Open the block store and expose its Prometheus metrics until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig(cmd)
		if err != nil {
			return err
		}
		monitoring.InitMetrics()

		h, m, err := storage.Start(cfg)
		if err != nil {
			return fmt.Errorf("failed to open block store: %w", err)
		}
		n, err := h.Len(cmd.Context())
		if err != nil {
			_ = m.Stop()
			return err
		}

		mux := http.NewServeMux()
		monitoring.RegisterMetrics(mux)
		srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		serveErr := make(chan error, 1)
		go func() {
			logx.Info("CMD", fmt.Sprintf("Serving metrics on %s | blocks=%d", metricsAddr, n))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
			close(serveErr)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logx.Info("CMD", "Received signal ", sig, ", shutting down")
		case err = <-serveErr:
			logx.Error("CMD", "Metrics server failed: ", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := srv.Shutdown(ctx); shutdownErr != nil {
			logx.Warn("CMD", "Metrics server shutdown: ", shutdownErr)
		}
		if stopErr := m.Stop(); stopErr != nil && err == nil {
			err = stopErr
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveMetricsCmd)
	serveMetricsCmd.Flags().StringVar(&metricsAddr, "addr", ":9100", "metrics listen address")
}
