package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/pagelens/pagelens/internal/errors"
	"github.com/pagelens/pagelens/pkg/document"
	"github.com/pagelens/pagelens/pkg/engine"
	"github.com/pagelens/pagelens/pkg/pipeline"
	"github.com/pagelens/pagelens/pkg/progress"
)

type stubEngine struct {
	inferErr error
	text     string
}

func (s *stubEngine) Load(ctx context.Context, opts engine.LoadOptions) error { return nil }

func (s *stubEngine) Infer(ctx context.Context, req engine.InferRequest) (string, error) {
	if s.inferErr != nil {
		return "", s.inferErr
	}
	if s.text != "" {
		return s.text, nil
	}
	return "recognized text", nil
}

type stubRasterizer struct{}

func (stubRasterizer) PageCount(ctx context.Context, path string) (int, error) { return 1, nil }

func (stubRasterizer) RenderPage(ctx context.Context, path string, pageIndex int, scale float64, destPath string) error {
	return nil
}

func newDeps(t *testing.T, eng engine.Engine, loaded bool) *Deps {
	t.Helper()
	handle := engine.NewHandle(eng)
	if loaded {
		require.NoError(t, handle.Load(context.Background(), engine.LoadOptions{}))
	}
	registry := progress.NewRegistry(progress.Config{MaxRecords: 8})
	t.Cleanup(registry.Close)

	return &Deps{
		Handle: handle,
		Orchestrator: pipeline.New(handle, document.NewDecomposer(stubRasterizer{}), registry, pipeline.Config{
			RunsDir:        t.TempDir(),
			MaxUploadBytes: 1 << 20,
		}),
		Registry:   registry,
		MaxImageMB: 1,
		BuildVersion: "1.2.3",
	}
}

func TestHealth(t *testing.T) {
	t.Run("reports model state and modes", func(t *testing.T) {
		deps := newDeps(t, &stubEngine{}, true)

		rec := httptest.NewRecorder()
		deps.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.True(t, resp.ModelLoaded)
		assert.Contains(t, resp.Modes, "gundam")
	})

	t.Run("healthy before load", func(t *testing.T) {
		deps := newDeps(t, &stubEngine{}, false)

		rec := httptest.NewRecorder()
		deps.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.ModelLoaded)
	})
}

func TestReadiness(t *testing.T) {
	t.Run("503 before load", func(t *testing.T) {
		deps := newDeps(t, &stubEngine{}, false)

		rec := httptest.NewRecorder()
		deps.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var resp apperrors.HTTPErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, apperrors.CodeServiceUnavailable, resp.Error.Code)
	})

	t.Run("ready after load", func(t *testing.T) {
		deps := newDeps(t, &stubEngine{}, true)

		rec := httptest.NewRecorder()
		deps.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestVersion(t *testing.T) {
	deps := newDeps(t, &stubEngine{}, true)

	rec := httptest.NewRecorder()
	deps.Version(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	var resp VersionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "1.2.3", resp.Version)
}

func TestModes(t *testing.T) {
	deps := newDeps(t, &stubEngine{}, true)

	rec := httptest.NewRecorder()
	deps.Modes(rec, httptest.NewRequest(http.MethodGet, "/api/modes", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ModesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Modes, 5)
	assert.Equal(t, "Gundam (动态裁剪)", resp.Modes["gundam"].Label)
	assert.Contains(t, resp.DefaultPrompt, "<|grounding|>")
	assert.Equal(t, 1.0, resp.MaxImageMB)
}

func TestCreateTask(t *testing.T) {
	t.Run("issues and registers task id", func(t *testing.T) {
		deps := newDeps(t, &stubEngine{}, true)

		rec := httptest.NewRecorder()
		deps.CreateTask(rec, httptest.NewRequest(http.MethodPost, "/api/task/create", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp TaskResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotEmpty(t, resp.TaskID)

		record, ok := deps.Registry.Get(resp.TaskID)
		require.True(t, ok)
		assert.Equal(t, progress.StagePending, record.Stage)
	})

	t.Run("503 when registry full", func(t *testing.T) {
		deps := newDeps(t, &stubEngine{}, true)
		for i := 0; i < 8; i++ {
			require.NoError(t, deps.Registry.Create(fmt.Sprintf("t%d", i)))
		}

		rec := httptest.NewRecorder()
		deps.CreateTask(rec, httptest.NewRequest(http.MethodPost, "/api/task/create", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var resp apperrors.HTTPErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, apperrors.CodeRegistryFull, resp.Error.Code)
	})
}

// multipartBody builds a multipart form with an image part and fields.
func multipartBody(t *testing.T, filename string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		contentType := mime.TypeByExtension(filepath.Ext(filename))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))))
	return buf.Bytes()
}

func TestOCR(t *testing.T) {
	t.Run("recognizes an uploaded image", func(t *testing.T) {
		deps := newDeps(t, &stubEngine{text: "# Invoice\n\nTotal: 42"}, true)

		body, contentType := multipartBody(t, "invoice.png", testPNG(t), map[string]string{
			"mode": "base",
		})
		req := httptest.NewRequest(http.MethodPost, "/api/ocr", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()

		deps.OCR(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var result pipeline.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.Equal(t, "base", result.Mode)
		assert.Equal(t, "## 第 1 页\n# Invoice\n\nTotal: 42", result.Text)
		assert.Equal(t, "invoice.png", result.FileName)
		require.Len(t, result.Pages, 1)
	})

	t.Run("missing image part", func(t *testing.T) {
		deps := newDeps(t, &stubEngine{}, true)

		body, contentType := multipartBody(t, "", nil, map[string]string{"mode": "base"})
		req := httptest.NewRequest(http.MethodPost, "/api/ocr", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()

		deps.OCR(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var resp apperrors.HTTPErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, apperrors.CodeValidation, resp.Error.Code)
	})

	t.Run("oversize upload", func(t *testing.T) {
		deps := newDeps(t, &stubEngine{}, true)
		deps.MaxImageMB = 0.0001

		big := bytes.Repeat([]byte("x"), 2<<20)
		body, contentType := multipartBody(t, "big.png", big, nil)
		req := httptest.NewRequest(http.MethodPost, "/api/ocr", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()

		deps.OCR(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var resp apperrors.HTTPErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, apperrors.CodeSizeLimit, resp.Error.Code)
	})

	t.Run("unsupported media type", func(t *testing.T) {
		deps := newDeps(t, &stubEngine{}, true)

		body, contentType := multipartBody(t, "notes.txt", []byte("plain text"), nil)
		req := httptest.NewRequest(http.MethodPost, "/api/ocr", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()

		deps.OCR(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var resp apperrors.HTTPErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, apperrors.CodeUnsupportedMedia, resp.Error.Code)
	})

	t.Run("model not loaded", func(t *testing.T) {
		deps := newDeps(t, &stubEngine{}, false)

		body, contentType := multipartBody(t, "img.png", testPNG(t), nil)
		req := httptest.NewRequest(http.MethodPost, "/api/ocr", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()

		deps.OCR(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		var resp apperrors.HTTPErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, apperrors.CodeModelNotReady, resp.Error.Code)
	})

	t.Run("unknown mode", func(t *testing.T) {
		deps := newDeps(t, &stubEngine{}, true)

		body, contentType := multipartBody(t, "img.png", testPNG(t), map[string]string{
			"mode": "warp",
		})
		req := httptest.NewRequest(http.MethodPost, "/api/ocr", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()

		deps.OCR(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		var resp apperrors.HTTPErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, apperrors.CodeInvalidMode, resp.Error.Code)
	})

	t.Run("tracked job completes its progress record", func(t *testing.T) {
		deps := newDeps(t, &stubEngine{}, true)
		require.NoError(t, deps.Registry.Create("job-7"))

		body, contentType := multipartBody(t, "img.png", testPNG(t), map[string]string{
			"task_id": "job-7",
		})
		req := httptest.NewRequest(http.MethodPost, "/api/ocr", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()

		deps.OCR(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		record, ok := deps.Registry.Get("job-7")
		require.True(t, ok)
		assert.Equal(t, progress.StageComplete, record.Stage)
		assert.Equal(t, 100, record.Percent)
	})
}
