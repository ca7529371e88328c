// Command dscore-daemon runs a long-lived dscore.Core and drives its
// time-based sweeps: the expiry sweep over consent contracts
// and the expiry sweep (plus the post-grace hand-off to Secure
// Deletion) over time capsules. It exposes a Prometheus scrape endpoint
// on --metrics-addr.
//
// A ticker drives each bounded sweep with structured zap logging per
// tick, the way a long-running service exposing metrics over HTTP
// typically structures its reconcile loop.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dscore/internal/core"
	"dscore/pkg/clock"
	"dscore/pkg/config"
	"dscore/pkg/logging"
	"dscore/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath    string
		nodeID        string
		metricsAddr   string
		sweepInterval time.Duration
		develLog      bool
	)
	cmd := &cobra.Command{
		Use:   "dscore-daemon",
		Short: "run the dscore core's consent and capsule expiry sweeps",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(logging.Config{Development: develLog})
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			policy := config.Default()
			if configPath != "" {
				loaded, loadErr := config.Load(configPath)
				if loadErr != nil {
					return loadErr
				}
				policy = loaded
			}

			reg := metrics.Registry
			c := core.NewInMemory(nodeID, clock.New(), policy, reg)

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			server := &http.Server{Addr: metricsAddr, Handler: mux}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			serveErrs := make(chan error, 1)
			go func() {
				logger.Info("metrics endpoint listening", zap.String("addr", metricsAddr))
				if serveErr := server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
					serveErrs <- serveErr
				}
			}()

			ticker := time.NewTicker(sweepInterval)
			defer ticker.Stop()

			logger.Info("dscore-daemon started",
				zap.String("node_id", nodeID),
				zap.Duration("sweep_interval", sweepInterval),
				zap.Duration("capsule_expiry_grace", policy.CapsuleExpiryGrace),
			)

			for {
				select {
				case <-ctx.Done():
					logger.Info("shutting down")
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return server.Shutdown(shutdownCtx)
				case err := <-serveErrs:
					return err
				case <-ticker.C:
					runSweep(ctx, c, logger, policy.CapsuleExpiryGrace)
				}
			}
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a policy YAML file")
	cmd.Flags().StringVar(&nodeID, "node-id", "dscore-daemon-node", "node_id recorded on every audit entry this process appends")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address to serve the Prometheus /metrics endpoint on")
	cmd.Flags().DurationVar(&sweepInterval, "sweep-interval", 30*time.Second, "how often to run the consent and capsule expiry sweeps")
	cmd.Flags().BoolVar(&develLog, "dev", false, "use human-readable development logging instead of JSON")
	return cmd
}

// runSweep drives the consent-contract and time-capsule expiry
// sweeps once. Both sweeps are independent and
// a failure in one must not block the other — a long-lived daemon fails
// open on sweep errors (logging and continuing) rather than fail closed
// the way a single request-path operation must, since a missed sweep
// tick is corrected by the next one.
func runSweep(ctx context.Context, c *core.Core, logger *zap.Logger, grace time.Duration) {
	now := c.Clock.Now()

	expiredContracts, err := c.Consent.ExpireSweep(ctx, now)
	if err != nil {
		logger.Error("consent expire_sweep failed", zap.Error(err))
	} else if expiredContracts > 0 {
		logger.Info("consent expire_sweep", zap.Int("expired", expiredContracts))
	}

	expiredCapsules, deletedCapsules, err := c.Capsules.ExpireSweep(ctx, now, grace)
	if err != nil {
		logger.Error("capsule expire_sweep failed", zap.Error(err))
	} else if expiredCapsules > 0 || deletedCapsules > 0 {
		logger.Info("capsule expire_sweep",
			zap.Int("expired", expiredCapsules),
			zap.Int("deleted_after_grace", deletedCapsules),
		)
	}
}
