// Package pipeline implements the top-level job orchestration: intake,
// decomposition, per-page inference through the engine gate, layout
// extraction, progress updates, aggregation, and guaranteed cleanup.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pagelens/pagelens/internal/observability"
	"github.com/pagelens/pagelens/pkg/document"
	"github.com/pagelens/pagelens/pkg/engine"
	"github.com/pagelens/pagelens/pkg/intake"
	"github.com/pagelens/pagelens/pkg/layout"
	"github.com/pagelens/pagelens/pkg/ocr"
	"github.com/pagelens/pagelens/pkg/progress"
)

// ErrUnsupportedMedia indicates the declared media type is neither
// image-like nor a PDF.
var ErrUnsupportedMedia = errors.New("unsupported media type")

// Inference progress occupies the 20-90 band of the percent scale; the
// bounds below are the checkpoints around it.
const (
	percentUpload      = 0
	percentPreprocess  = 10
	percentSplit       = 20
	inferenceBase      = 20
	inferenceRange     = 70
	percentPostprocess = 95
	percentComplete    = 100
)

// Request describes one inbound recognition job.
type Request struct {
	// Body is the upload stream.
	Body io.Reader

	// FileName is the declared upload filename.
	FileName string

	// ContentType is the declared media type.
	ContentType string

	// Mode is the recognition mode key. Empty selects the default.
	Mode string

	// Prompt is the effective prompt before normalization. Empty
	// selects the process default.
	Prompt string

	// TaskID optionally binds the job to a progress record. Jobs
	// without a task id are not tracked.
	TaskID string
}

// Config configures the orchestrator.
type Config struct {
	// RunsDir is the scratch root for per-job workspaces.
	RunsDir string

	// MaxUploadBytes bounds the accepted upload size.
	MaxUploadBytes int64
}

// Orchestrator drives one job end to end.
type Orchestrator struct {
	handle     *engine.Handle
	decomposer *document.Decomposer
	registry   *progress.Registry
	cfg        Config
}

// New creates an orchestrator. registry may be nil when progress
// tracking is not wanted (CLI runs).
func New(handle *engine.Handle, decomposer *document.Decomposer, registry *progress.Registry, cfg Config) *Orchestrator {
	return &Orchestrator{
		handle:     handle,
		decomposer: decomposer,
		registry:   registry,
		cfg:        cfg,
	}
}

// Run executes one job: Intake -> Decompose -> per-page {Gate-wait ->
// Infer -> Extract-layout} -> Aggregate. The scratch workspace is
// removed unconditionally before Run returns, success or failure.
//
// Any per-page failure aborts the whole job; there is no partial
// multi-page response and no retry.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	fileName := strings.TrimSpace(req.FileName)
	if fileName == "" {
		return nil, intake.ErrNoFilename
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	isPDF := ext == ".pdf" || req.ContentType == "application/pdf"
	if !isPDF && !strings.HasPrefix(req.ContentType, "image/") {
		return nil, ErrUnsupportedMedia
	}

	modeKey := req.Mode
	if modeKey == "" {
		modeKey = ocr.DefaultModeKey
	}
	prompt := ocr.NormalizePrompt(req.Prompt)

	start := time.Now()
	o.update(req.TaskID, progress.StageUpload, percentUpload, "正在保存上传文件...")

	ws, saved, err := intake.Save(req.Body, fileName, o.cfg.RunsDir, o.cfg.MaxUploadBytes)
	if err != nil {
		return nil, err
	}
	defer ws.Remove()

	o.update(req.TaskID, progress.StagePreprocessing, percentPreprocess, "文件上传完成，正在预处理...")

	var pagePaths []string
	if isPDF {
		pagePaths, err = o.decomposer.DecomposePDF(ctx, saved.Path, ws)
		if err != nil {
			return nil, err
		}
		o.update(req.TaskID, progress.StagePreprocessing, percentSplit,
			fmt.Sprintf("PDF 已拆分为 %d 页", len(pagePaths)))
	} else {
		pagePaths = document.SingleImage(saved.Path)
	}

	outputDir, err := ws.OutputDir()
	if err != nil {
		return nil, &intake.StorageError{Op: "outputs", Err: err}
	}

	totalPages := len(pagePaths)
	pages := make([]PageResult, 0, totalPages)
	aggregateTexts := make([]string, 0, totalPages)
	aggregateRaw := make([]string, 0, totalPages)

	for idx, pagePath := range pagePaths {
		o.update(req.TaskID, progress.StageInference,
			inferenceBase+idx*inferenceRange/totalPages,
			fmt.Sprintf("正在识别第 %d/%d 页...", idx+1, totalPages))

		pageStart := time.Now()
		raw, err := o.handle.Recognize(ctx, modeKey, prompt, pagePath, outputDir)
		if err != nil {
			return nil, err
		}
		pageDuration := roundMs(time.Since(pageStart))

		text := ocr.CleanPrediction(raw)
		pageLayout := layout.Extract(raw, pagePath)

		var imageData string
		if isPDF {
			if imageData, err = encodeDataURL(pagePath); err != nil {
				observability.ServerLogger.Warn("Failed to embed page image",
					zap.String("page", pagePath),
					zap.Error(err))
				imageData = ""
			}
		}

		pages = append(pages, PageResult{
			PageIndex:  idx,
			Text:       text,
			RawText:    raw,
			Layout:     pageLayout,
			ImageData:  imageData,
			DurationMs: pageDuration,
		})
		aggregateTexts = append(aggregateTexts, strings.TrimSpace(fmt.Sprintf("## 第 %d 页\n%s", idx+1, text)))
		aggregateRaw = append(aggregateRaw, strings.TrimSpace(fmt.Sprintf("[Page %d]\n%s", idx+1, raw)))

		o.update(req.TaskID, progress.StageInference,
			inferenceBase+(idx+1)*inferenceRange/totalPages,
			fmt.Sprintf("第 %d/%d 页识别完成", idx+1, totalPages))
	}

	o.update(req.TaskID, progress.StagePostprocessing, percentPostprocess, "正在整理结果...")

	result := &Result{
		Mode:       modeKey,
		Prompt:     prompt,
		Text:       strings.Join(aggregateTexts, "\n\n"),
		RawText:    strings.Join(aggregateRaw, "\n\n"),
		DurationMs: roundMs(time.Since(start)),
		FileName:   fileName,
		FileSize:   saved.Size,
		Layout:     pages[0].Layout,
		Pages:      pages,
	}

	o.update(req.TaskID, progress.StageComplete, percentComplete, "识别完成！")

	observability.ServerLogger.Info("Job complete",
		zap.String("file", fileName),
		zap.String("mode", modeKey),
		zap.Int("pages", totalPages),
		zap.Float64("duration_ms", result.DurationMs))

	return result, nil
}

// update advances the job's progress record when the job is tracked.
// Current values are on the fixed 0-100 scale.
func (o *Orchestrator) update(taskID string, stage progress.Stage, current int, message string) {
	if taskID == "" || o.registry == nil {
		return
	}
	o.registry.Update(taskID, stage, current, 100, message)
}

func roundMs(d time.Duration) float64 {
	ms := float64(d.Microseconds()) / 1000
	return float64(int(ms*100+0.5)) / 100
}
