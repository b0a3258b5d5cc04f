package cli

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
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/escalator/internal/wire"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the escalation scheduler and notification workers",
		Long: `Run the scheduler loop, the notification dispatcher workers and the
Prometheus metrics listener until interrupted. Several replicas may run
against the same database; each overdue case is escalated once.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			wire.EnableBackgroundDispatch()

			ctx, stop := signal.NotifyContext(NewContext(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg := wire.Config()
			logger := wire.Logger()
			logger.Info("escalator starting",
				zap.Duration("tick_interval", cfg.Scheduler.TickInterval),
				zap.String("gateway", cfg.Notifications.Gateway),
				zap.String("metrics_addr", cfg.Metrics.Addr),
			)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return wire.Dispatcher().Run(gctx)
			})
			g.Go(func() error {
				return wire.Scheduler().Run(gctx)
			})
			if cfg.Metrics.Addr != "" {
				srv := &http.Server{
					Addr:              cfg.Metrics.Addr,
					Handler:           metricsMux(),
					ReadHeaderTimeout: 5 * time.Second,
				}
				g.Go(func() error {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return fmt.Errorf("metrics listener: %w", err)
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
			}

			err := g.Wait()
			logger.Info("escalator stopped", zap.Int("undelivered", wire.Dispatcher().Pending()))
			return err
		},
	}
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", wire.Metrics().Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := wire.DB().PingContext(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintf(w, "ok breaker=%s pending=%d\n", wire.Dispatcher().BreakerState(), wire.Dispatcher().Pending())
	})
	return mux
}
