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

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/cloudpoll/internal/logger"
)

const shutdownTimeout = 10 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll on a schedule until interrupted",
	Long: `Runs the scheduler, which polls every account at poll.interval, together
with the sync folder listener and, when metrics.addr is set, a Prometheus
/metrics endpoint. Stops on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}
	if s.Scheduler == nil {
		return errors.New("scheduler not configured")
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsAddr := ""
	if settings, err := s.Settings.Get(); err == nil {
		metricsAddr = settings.Metrics.Addr
	}

	cmd.Println("cloudpoll running, press Ctrl+C to stop.")
	return serve(ctx, s, metricsAddr)
}

// serve runs the background components until ctx ends or one fails.
func serve(ctx context.Context, s *Services, metricsAddr string) error {
	var ln net.Listener
	if s.Metrics != nil && metricsAddr != "" {
		var err error
		ln, err = net.Listen("tcp", metricsAddr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", metricsAddr, err)
		}
		logger.Infow("metrics endpoint listening", "addr", ln.Addr().String())
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.Scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return s.Scheduler.Stop()
	})

	if s.Listener != nil {
		g.Go(func() error {
			return s.Listener.Run(ctx)
		})
	}

	if ln != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.Metrics)
		srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}
