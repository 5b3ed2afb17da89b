package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/pagelens/pagelens/internal/observability"
)

// Sidecar is an Engine backed by the accelerator-hosting inference
// sidecar over HTTP.
//
// Wire contract:
//
//	POST /load  {"model_dir", "attn_impl"}                     -> 200
//	POST /infer {"prompt", "image_base64", "base_size",
//	             "image_size", "crop_mode", "test_compress"}   -> {"text"}
//
// The sidecar owns the accelerator; load fails there when no device is
// present or the model files are absent, and that failure is surfaced
// unchanged here.
type Sidecar struct {
	endpoint    string
	client      *http.Client
	loadTimeout time.Duration
}

// SidecarConfig configures the sidecar client.
type SidecarConfig struct {
	// Endpoint is the sidecar base URL, e.g. "http://127.0.0.1:8501".
	Endpoint string

	// LoadTimeout bounds the one-time load call. Zero means 10 minutes;
	// cold model loads are slow.
	LoadTimeout time.Duration
}

// NewSidecar creates a sidecar-backed engine.
//
// Infer requests carry no client-side timeout: an in-flight inference
// is never interrupted, per the pipeline's no-cancellation contract.
func NewSidecar(cfg SidecarConfig) *Sidecar {
	timeout := cfg.LoadTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Sidecar{
		endpoint:    cfg.Endpoint,
		client:      &http.Client{},
		loadTimeout: timeout,
	}
}

type sidecarLoadRequest struct {
	ModelDir string `json:"model_dir,omitempty"`
	AttnImpl string `json:"attn_impl,omitempty"`
}

type sidecarInferRequest struct {
	Prompt    string `json:"prompt"`
	ImageB64  string `json:"image_base64"`
	BaseSize  int    `json:"base_size"`
	ImageSize int    `json:"image_size"`
	CropMode  bool   `json:"crop_mode"`
	Compress  bool   `json:"test_compress"`
}

type sidecarInferResponse struct {
	Text string `json:"text"`
}

// Load asks the sidecar to perform its one-time model initialization.
func (s *Sidecar) Load(ctx context.Context, opts LoadOptions) error {
	ctx, cancel := context.WithTimeout(ctx, s.loadTimeout)
	defer cancel()

	body := sidecarLoadRequest{ModelDir: opts.ModelDir, AttnImpl: opts.AttnImpl}
	if _, err := s.postJSON(ctx, "/load", body); err != nil {
		return err
	}
	return nil
}

// Infer runs one page through the sidecar and returns raw model text.
func (s *Sidecar) Infer(ctx context.Context, req InferRequest) (string, error) {
	imageBytes, err := os.ReadFile(req.ImagePath)
	if err != nil {
		return "", fmt.Errorf("read page image: %w", err)
	}

	body := sidecarInferRequest{
		Prompt:    req.Prompt,
		ImageB64:  base64.StdEncoding.EncodeToString(imageBytes),
		BaseSize:  req.Mode.BaseSize,
		ImageSize: req.Mode.ImageSize,
		CropMode:  req.Mode.CropMode,
		Compress:  req.Mode.Compress,
	}

	raw, err := s.postJSON(ctx, "/infer", body)
	if err != nil {
		return "", err
	}

	var resp sidecarInferResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode infer response: %w", err)
	}
	return resp.Text, nil
}

func (s *Sidecar) postJSON(ctx context.Context, path string, body any) ([]byte, error) {
	bs, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+path, bytes.NewReader(bs))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	observability.ServerLogger.Debug("Sidecar call",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(raw)),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("sidecar %s: status %d: %s", path, resp.StatusCode, bytes.TrimSpace(raw))
	}
	return raw, nil
}
