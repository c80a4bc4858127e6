package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gzhole/deskpilot/internal/logger"
	"github.com/gzhole/deskpilot/internal/observability"
	"github.com/gzhole/deskpilot/internal/perception"
	"github.com/gzhole/deskpilot/internal/planner"
	"github.com/gzhole/deskpilot/internal/provider"
	"github.com/gzhole/deskpilot/internal/server"
	"github.com/gzhole/deskpilot/internal/session"
)

const shutdownTimeout = 10 * time.Second

var (
	serveAddr     string
	serveProvider string
	serveNoOCR    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the planner API",
	Long: `Run the planner HTTP API. The executor talks to it over /v1/session/start,
/v1/turn and /v1/session/{id}/confirm.

Examples:
  deskpilot serve
  deskpilot serve --addr 0.0.0.0:8001 --provider stub`,
	RunE: serveCommand,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: server.addr)")
	serveCmd.Flags().StringVar(&serveProvider, "provider", "", "Planning provider: stub, vlm or llm (default: provider.kind)")
	serveCmd.Flags().BoolVar(&serveNoOCR, "no-ocr", false, "Disable OCR perception")
	rootCmd.AddCommand(serveCmd)
}

func serveCommand(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if serveProvider != "" {
		cfg.Provider.Kind = serveProvider
	}

	engine, _, err := loadEngine(cfg)
	if err != nil {
		return err
	}
	p, err := provider.New(cfg.Provider, log)
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}

	auditLogger, err := logger.New(cfg.AuditLogPath)
	if err != nil {
		return fmt.Errorf("failed to initialize audit logger: %w", err)
	}
	defer auditLogger.Close()

	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    cfg.Logger.ServiceName,
		ServiceVersion: Version,
		Environment:    cfg.Tracing.Environment,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		Insecure:       cfg.Tracing.Insecure,
	})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			log.Warn("Tracer shutdown failed", zap.Error(err))
		}
	}()

	var analyzer perception.Analyzer = perception.Nop{}
	if !serveNoOCR {
		analyzer = perception.NewTesseract(log.Named("ocr"))
	}

	svc := planner.NewService(p, session.NewMemoryStore(), engine,
		planner.WithAnalyzer(analyzer),
		planner.WithLogger(log),
		planner.WithMetrics(observability.NewMetrics()),
		planner.WithTracer(tracer),
		planner.WithAuditLogger(auditLogger),
		planner.WithProviderTimeout(cfg.Provider.Timeout),
	)
	srv := server.New(svc, cfg.Server, log)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Planner API listening",
			zap.String("addr", srv.ListenAddr()),
			zap.String("provider", p.Name()))
		return srv.ListenAndServe()
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down planner API")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
