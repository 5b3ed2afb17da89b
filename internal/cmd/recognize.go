package cmd

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pagelens/pagelens/internal/config"
	apperrors "github.com/pagelens/pagelens/internal/errors"
	"github.com/pagelens/pagelens/internal/observability"
	"github.com/pagelens/pagelens/pkg/document"
	"github.com/pagelens/pagelens/pkg/engine"
	"github.com/pagelens/pagelens/pkg/ocr"
	"github.com/pagelens/pagelens/pkg/output"
	"github.com/pagelens/pagelens/pkg/pipeline"
	"github.com/pagelens/pagelens/pkg/progress"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <file>",
	Short: "Recognize a local document",
	Long: `Run recognition on a local image or PDF and emit JSONL records:
progress updates, per-page results, and a final summary.

Example:
  pagelens recognize scan.pdf
  pagelens recognize photo.png --mode small
  pagelens recognize scan.pdf --output results.jsonl --quiet`,
	Args: cobra.ExactArgs(1),
	RunE: runRecognize,
}

var (
	recognizeMode   string
	recognizePrompt string
	recognizeOutput string
	recognizeQuiet  bool
)

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().StringVarP(&recognizeMode, "mode", "m", ocr.DefaultModeKey, "Recognition mode")
	recognizeCmd.Flags().StringVarP(&recognizePrompt, "prompt", "p", "", "Override recognition prompt")
	recognizeCmd.Flags().StringVarP(&recognizeOutput, "output", "o", "", "Write JSONL records to file instead of stdout")
	recognizeCmd.Flags().BoolVarP(&recognizeQuiet, "quiet", "q", false, "Suppress progress records")
}

func runRecognize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	inputPath := args[0]

	cfg, err := config.Load(rootConfigFile)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	if cfg.OCR.DefaultPrompt != "" {
		ocr.SetDefaultPrompt(cfg.OCR.DefaultPrompt)
	}
	if cfg.OCR.ModeOverridesFile != "" {
		if err := ocr.LoadOverrides(cfg.OCR.ModeOverridesFile); err != nil {
			return exitError(foundry.ExitFileReadError, "Failed to load mode overrides", err)
		}
	}

	if _, ok := ocr.Lookup(recognizeMode); !ok {
		return exitError(foundry.ExitInvalidArgument, "Invalid --mode value",
			fmt.Errorf("unknown mode %q, expected one of %v", recognizeMode, ocr.ModeKeys()))
	}

	f, err := os.Open(inputPath)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to open input file", err)
	}
	defer func() { _ = f.Close() }()

	if err := os.MkdirAll(cfg.OCR.RunsDir, 0o755); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to create runs directory", err)
	}

	writer, cleanup, err := openRecognizeOutput(recognizeMode)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to create output", err)
	}
	defer cleanup()

	handle := engine.NewHandle(engine.NewSidecar(engine.SidecarConfig{
		Endpoint:    cfg.Engine.Endpoint,
		LoadTimeout: cfg.Engine.LoadTimeout,
	}))
	if err := handle.Load(ctx, engine.LoadOptions{
		ModelDir: cfg.Engine.ModelDir,
		AttnImpl: cfg.Engine.AttnImpl,
	}); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to load inference engine", err)
	}

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

	taskID := uuid.NewString()
	if err := registry.Create(taskID); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to register task", err)
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		for ev := range registry.Watch(watchCtx, taskID) {
			if ev.Type != progress.EventSnapshot || recognizeQuiet {
				continue
			}
			_ = writer.WriteProgress(ctx, &output.ProgressRecord{
				Stage:   string(ev.Record.Stage),
				Current: ev.Record.Current,
				Total:   ev.Record.Total,
				Percent: ev.Record.Percent,
				Message: ev.Record.Message,
			})
		}
	}()

	result, err := orchestrator.Run(ctx, pipeline.Request{
		Body:        f,
		FileName:    filepath.Base(inputPath),
		ContentType: mime.TypeByExtension(filepath.Ext(inputPath)),
		Mode:        recognizeMode,
		Prompt:      recognizePrompt,
		TaskID:      taskID,
	})
	stopWatch()
	<-watchDone

	if err != nil {
		_, code, message := apperrors.Classify(err)
		_ = writer.WriteError(ctx, &output.ErrorRecord{Code: code, Message: message})
		observability.CLILogger.Error("Recognition failed",
			zap.String("file", inputPath),
			zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Recognition failed", err)
	}

	for _, page := range result.Pages {
		layoutItems := 0
		if page.Layout != nil {
			layoutItems = len(page.Layout.Items)
		}
		_ = writer.WritePage(ctx, &output.PageRecord{
			PageIndex:   page.PageIndex,
			Text:        page.Text,
			DurationMs:  page.DurationMs,
			LayoutItems: layoutItems,
		})
	}

	if err := writer.WriteSummary(ctx, &output.SummaryRecord{
		FileName:   result.FileName,
		FileSize:   result.FileSize,
		Pages:      len(result.Pages),
		DurationMs: result.DurationMs,
	}); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write summary", err)
	}

	observability.CLILogger.Info("Recognition complete",
		zap.String("file", inputPath),
		zap.Int("pages", len(result.Pages)),
		zap.Float64("duration_ms", result.DurationMs))
	return nil
}

// openRecognizeOutput returns the JSONL writer and a cleanup func.
func openRecognizeOutput(mode string) (output.Writer, func(), error) {
	jobID := uuid.NewString()

	if recognizeOutput == "" || recognizeOutput == "-" {
		w := output.NewJSONLWriter(os.Stdout, jobID, mode)
		return w, func() { _ = w.Close() }, nil
	}

	f, err := os.Create(recognizeOutput)
	if err != nil {
		return nil, nil, err
	}
	w := output.NewJSONLWriter(f, jobID, mode)
	cleanup := func() {
		_ = w.Close()
		_ = f.Close()
	}
	return w, cleanup, nil
}
