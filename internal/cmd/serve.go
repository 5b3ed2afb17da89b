package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pagelens/pagelens/internal/config"
	"github.com/pagelens/pagelens/internal/observability"
	"github.com/pagelens/pagelens/internal/server"
	"github.com/pagelens/pagelens/internal/server/handlers"
	"github.com/pagelens/pagelens/pkg/document"
	"github.com/pagelens/pagelens/pkg/engine"
	"github.com/pagelens/pagelens/pkg/ocr"
	"github.com/pagelens/pagelens/pkg/pipeline"
	"github.com/pagelens/pagelens/pkg/progress"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the OCR HTTP service",
	Long: `Start the HTTP service: file upload intake, recognition jobs against
the inference sidecar, and server-sent progress streams.

Example:
  pagelens serve
  pagelens serve --config pagelens.yaml
  pagelens serve --port 9000 --skip-engine-load`,
	RunE: runServe,
}

var (
	serveHost           string
	servePort           int
	serveSkipEngineLoad bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Override listen host")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Override listen port")
	serveCmd.Flags().BoolVar(&serveSkipEngineLoad, "skip-engine-load", false, "Start without loading the model (readiness stays 503)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(rootConfigFile)
	if err != nil {
		observability.ServerLogger.Error("Failed to load configuration", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	if cfg.OCR.DefaultPrompt != "" {
		ocr.SetDefaultPrompt(cfg.OCR.DefaultPrompt)
	}
	if cfg.OCR.ModeOverridesFile != "" {
		if err := ocr.LoadOverrides(cfg.OCR.ModeOverridesFile); err != nil {
			return exitError(foundry.ExitFileReadError, "Failed to load mode overrides", err)
		}
	}

	if err := os.MkdirAll(cfg.OCR.RunsDir, 0o755); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to create runs directory", err)
	}

	handle := engine.NewHandle(engine.NewSidecar(engine.SidecarConfig{
		Endpoint:    cfg.Engine.Endpoint,
		LoadTimeout: cfg.Engine.LoadTimeout,
	}))

	decomposer := document.NewDecomposer(&document.ExternalRasterizer{Command: cfg.Rasterizer.Command})
	if cfg.Rasterizer.Scale > 0 {
		decomposer.Scale = cfg.Rasterizer.Scale
	}

	registry := progress.NewRegistry(progress.DefaultConfig())
	defer registry.Close()

	orchestrator := pipeline.New(handle, decomposer, registry, pipeline.Config{
		RunsDir:        cfg.OCR.RunsDir,
		MaxUploadBytes: cfg.MaxUploadBytes(),
	})

	srv := server.New(cfg.Server.Host, cfg.Server.Port, &handlers.Deps{
		Handle:       handle,
		Orchestrator: orchestrator,
		Registry:     registry,
		MaxImageMB:   cfg.OCR.MaxImageMB,
		BuildVersion: versionInfo.Version,
	}, server.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !serveSkipEngineLoad {
		observability.ServerLogger.Info("Loading inference engine",
			zap.String("endpoint", cfg.Engine.Endpoint),
			zap.String("model_dir", cfg.Engine.ModelDir))
		if err := handle.Load(ctx, engine.LoadOptions{
			ModelDir: cfg.Engine.ModelDir,
			AttnImpl: cfg.Engine.AttnImpl,
		}); err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Failed to load inference engine", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	observability.ServerLogger.Info("Server started",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("version", versionInfo.Version))

	select {
	case err := <-errCh:
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Server failed", err)
		}
		return nil
	case <-ctx.Done():
	}

	observability.ServerLogger.Info("Shutting down",
		zap.Duration("timeout", cfg.Server.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
