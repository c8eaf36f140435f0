package main

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

	"github.com/devghori1264/vinreport/internal/api"
	"github.com/devghori1264/vinreport/internal/config"
	"github.com/devghori1264/vinreport/internal/decode"
	natsclient "github.com/devghori1264/vinreport/internal/nats"
	"github.com/devghori1264/vinreport/internal/notify"
	"github.com/devghori1264/vinreport/internal/pipeline"
	"github.com/devghori1264/vinreport/internal/render"
	"github.com/devghori1264/vinreport/internal/server"
	"github.com/devghori1264/vinreport/internal/storage"
	"github.com/devghori1264/vinreport/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
}

var rootCmd = &cobra.Command{
	Use:           "vinreport-server",
	Short:         "Decode VINs into PDF reports and serve them over HTTP and gRPC",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServer,
}

func init() {
	rootCmd.Flags().StringVar(&rootFlags.configPath, "config", os.Getenv("VINREPORT_CONFIG"), "YAML config file (optional)")
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(path string) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, cfg.Validate()
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(rootFlags.configPath)
	if err != nil {
		return err
	}

	log, err := telemetry.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	tp, err := telemetry.NewTracerProvider(cfg.Tracing.Stdout, os.Stdout)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Create storage
	index, err := storage.NewBadgerIndex(cfg.Storage.IndexPath)
	if err != nil {
		return fmt.Errorf("open artifact index: %w", err)
	}
	store := storage.NewReportStore(cfg.Storage.ReportsDir, index,
		storage.WithPublicBase(cfg.PublicURL),
		storage.WithDocumentType(render.Extension, render.ContentType),
		storage.WithLogger(log),
	)
	defer store.Close()

	notifier, err := newNotifier(cfg.Mailjet, log)
	if err != nil {
		return err
	}

	opts := []pipeline.Option{
		pipeline.WithMetrics(pipeline.NewMetrics(reg)),
		pipeline.WithTracerProvider(tp),
		pipeline.WithLogger(log),
	}
	if cfg.NATS.URL != "" {
		pub, err := natsclient.NewPublisher(cfg.NATS.URL, "vinreport-server", log)
		if err != nil {
			// Events are optional; reports still work without a broker.
			log.Warn("nats unavailable, events disabled", zap.String("url", cfg.NATS.URL), zap.Error(err))
		} else {
			defer pub.Close()
			opts = append(opts, pipeline.WithPublisher(pub))
		}
	}

	decoder := decode.NewClient(decode.NewHTTPClient(cfg.Decode.Timeout),
		decode.WithBaseURL(cfg.Decode.BaseURL),
		decode.WithLogger(log),
	)
	orch := pipeline.New(decoder, render.New(), store, notifier, opts...)
	srv := server.New(orch, store, log)

	grpcServer := grpc.NewServer()
	srv.RegisterGRPC(grpcServer)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewHTTPHandler(srv, store.Dir(), store.URLPath(), log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsMux := http.NewServeMux()
	api.RegisterMetrics(metricsMux, reg)
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux, ReadHeaderTimeout: 10 * time.Second}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
		}
		log.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr), zap.String("reports_dir", store.Dir()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("Prometheus metrics available", zap.String("addr", cfg.MetricsAddr+"/metrics"))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown initiated")

		grpcServer.GracefulStop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("http server shutdown error", zap.Error(err))
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics server shutdown error", zap.Error(err))
		}
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn("tracer shutdown error", zap.Error(err))
		}
		return nil
	})

	err = g.Wait()
	log.Info("shutdown complete")
	return err
}

func newNotifier(cfg config.MailjetConfig, log *zap.Logger) (notify.Notifier, error) {
	if !cfg.Enabled() {
		log.Info("email delivery disabled: mailjet credentials not configured")
		return notify.Disabled{}, nil
	}
	mj, err := notify.NewMailjet(notify.MailjetConfig{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		Sender:     cfg.Sender,
		SenderName: cfg.SenderName,
		BaseURL:    cfg.BaseURL,
		Timeout:    cfg.Timeout,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("mailjet: %w", err)
	}
	return mj, nil
}
