package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/steveyegge/llkb/internal/config"
	"github.com/steveyegge/llkb/internal/discovery"
	"github.com/steveyegge/llkb/internal/metrics"
	"github.com/steveyegge/llkb/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run discovery whenever project sources change",
	Long: `Run discovery once, then watch the project's source directories and
re-run it after changes settle. Stops on Ctrl+C.

With --metrics-addr the discovery, cache, lock and outcome metrics are
served in Prometheus format at /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		debounce, _ := cmd.Flags().GetDuration("debounce")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		skipSignals, _ := cmd.Flags().GetBool("skip-signals")

		created, err := config.LoadOrCreate(storeRoot)
		if err != nil {
			return err
		}
		cfg = created
		if !cfg.Enabled {
			fmt.Printf("%s knowledge base disabled in %s\n", yellow("!"), config.Path(storeRoot))
			return nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		reg := prometheus.NewRegistry()
		m := metrics.New(reg)
		if metricsAddr != "" {
			srv := serveMetrics(metricsAddr, reg)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		rerun := func(ctx context.Context, changed []string) {
			if len(changed) > 0 {
				fmt.Printf("\n%s %d file(s) changed: %s\n", cyan("↻"), len(changed), abbreviate(changed, 3))
			}
			result, err := runDiscovery(ctx, m, discovery.Options{SkipSignals: skipSignals})
			if result != nil {
				printDiscovery(result, false)
			}
			if err != nil && ctx.Err() == nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", red("✗"), err)
			}
		}
		rerun(ctx, nil)

		w, err := watch.New(projectRoot, cfg.Discovery.SourceDirs, debounce, rerun,
			watch.WithLogger(logger),
			watch.WithExcludes(cfg.Discovery.ExcludeGlobs))
		if err != nil {
			return err
		}
		defer func() { _ = w.Close() }()

		fmt.Printf("\n%s Watching %s (Ctrl+C to stop)\n", cyan("👁"), projectRoot)
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		fmt.Printf("\n%s stopped\n", gray("watch"))
		return nil
	},
}

func init() {
	watchCmd.Flags().Duration("debounce", watch.DefaultDebounce, "Quiet period before re-running discovery")
	watchCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9464)")
	watchCmd.Flags().Bool("skip-signals", false, "Skip i18n, analytics and feature flag mining")

	rootCmd.AddCommand(watchCmd)
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	return srv
}

// abbreviate joins the first n entries and counts the rest.
func abbreviate(items []string, n int) string {
	if len(items) <= n {
		return strings.Join(items, ", ")
	}
	return fmt.Sprintf("%s and %d more", strings.Join(items[:n], ", "), len(items)-n)
}
