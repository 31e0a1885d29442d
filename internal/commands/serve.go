package commands

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
	"golang.org/x/sync/errgroup"

	ontology "github.com/mattbaird/ontology-sub000"
	"github.com/mattbaird/ontology-sub000/internal/config"
	"github.com/mattbaird/ontology-sub000/internal/console"
	"github.com/mattbaird/ontology-sub000/internal/logger"
	"github.com/mattbaird/ontology-sub000/internal/output"
)

func startService(ctx context.Context, cfg *config.Config) (*ontology.Service, error) {
	svc, err := ontology.NewService(ctx, cfg.Packages,
		ontology.WithLogger(logger.Default()),
		ontology.WithDeadline(cfg.Evaluation.Deadline),
		ontology.WithDebounce(cfg.Evaluation.Debounce),
	)
	if err != nil {
		reportLoadError(err)
		return nil, ErrReported
	}
	return svc, nil
}

// ConsoleCmd serves JSON-line requests on stdin
func ConsoleCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Answer JSON requests line by line",
		Long: `Reads one JSON request per line from stdin and writes one JSON response
per line to stdout. A prompt is shown when stdin is a terminal.

Request:  {"id": "1", "op": "evaluate", "type": "Money", "value": {"amount": 5, "currency": "USD"}}
Response: {"id": "1", "result": {"accepted": true, "filled": {...}, "violations": []}}

Operations: evaluate (type or expr), transition, unify, transitions, matrix,
drift, reload.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := currentConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := startService(ctx, cfg)
			if err != nil {
				return err
			}
			if watch || cfg.Watch {
				go func() {
					if err := svc.Watch(ctx); err != nil {
						logger.Error("watch stopped", logger.F("error", err))
					}
				}()
			}

			var prompt = cmd.ErrOrStderr()
			if !console.Interactive(os.Stdin) {
				prompt = nil
			}
			h := console.NewHandler(svc, logger.Default())
			return h.ServeLines(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), prompt)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Reload when package files change")
	return cmd
}

// ServeCmd serves the console over HTTP
func ServeCmd() *cobra.Command {
	var addr string
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the console over HTTP",
		Long: `Serves console requests over HTTP:

  POST /v1/{op}   e.g. POST /v1/evaluate {"type": "Money", "value": {...}}
  GET  /healthz
  GET  /metrics   Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := currentConfig()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Console.Addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := startService(ctx, cfg)
			if err != nil {
				return err
			}

			h := console.NewHandler(svc, logger.Default())
			srv := &http.Server{
				Addr: addr,
				Handler: h.Router(svc.Metrics().Handler(), func() map[string]any {
					g := svc.Graph()
					return map[string]any{"digest": g.Digest().String(), "packages": g.Packages()}
				}),
				ReadHeaderTimeout: 10 * time.Second,
			}

			eg, ctx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				output.Info(fmt.Sprintf("Serving on http://%s", addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			eg.Go(func() error {
				<-ctx.Done()
				shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdown)
			})
			if watch || cfg.Watch {
				eg.Go(func() error { return svc.Watch(ctx) })
			}
			return eg.Wait()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Reload when package files change")
	return cmd
}
