// Package errors maps domain failures onto the HTTP error envelope.
//
// Every failure yields a single structured error body:
//
//	{"error": {"code", "message", "request_id", "details"}}
//
// Codes are stable strings; status codes follow the taxonomy: client-
// caused failures (validation, size, media type, decomposition) are 400,
// engine- and storage-caused failures are 500.
package errors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pagelens/pagelens/pkg/document"
	"github.com/pagelens/pagelens/pkg/engine"
	"github.com/pagelens/pagelens/pkg/intake"
	"github.com/pagelens/pagelens/pkg/pipeline"
	"github.com/pagelens/pagelens/pkg/progress"
)

// Stable error codes for the HTTP surface.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeSizeLimit         = "SIZE_LIMIT_EXCEEDED"
	CodeUnsupportedMedia  = "UNSUPPORTED_MEDIA_TYPE"
	CodeDecomposition     = "DECOMPOSITION_ERROR"
	CodeModelNotReady     = "MODEL_NOT_READY"
	CodeInvalidMode       = "INVALID_MODE"
	CodeInferenceFailure  = "INFERENCE_FAILURE"
	CodeStorage           = "STORAGE_ERROR"
	CodeRegistryFull      = "REGISTRY_FULL"
	CodeNotFound          = "NOT_FOUND"
	CodeMethodNotAllowed  = "METHOD_NOT_ALLOWED"
	CodeInternal          = "INTERNAL_ERROR"
	CodeTooManyRequests   = "TOO_MANY_REQUESTS"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// ErrorBody is the inner error object of the HTTP envelope.
type ErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// HTTPErrorResponse is the error envelope for all failure responses.
type HTTPErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Classify maps a domain error to its HTTP status, stable code, and a
// human-readable message.
func Classify(err error) (status int, code, message string) {
	switch {
	case errors.Is(err, intake.ErrNoFilename):
		return http.StatusBadRequest, CodeValidation, "请选择需要识别的图片。"
	case errors.Is(err, intake.ErrSizeLimitExceeded):
		return http.StatusBadRequest, CodeSizeLimit, "图片体积超过限制。"
	case errors.Is(err, pipeline.ErrUnsupportedMedia):
		return http.StatusBadRequest, CodeUnsupportedMedia, "仅支持图片或 PDF 文件。"
	case document.IsDecompositionError(err):
		return http.StatusBadRequest, CodeDecomposition, "无法解析 PDF 文件内容。"
	case engine.IsNotReady(err):
		return http.StatusInternalServerError, CodeModelNotReady, "模型尚未加载完成。"
	case engine.IsInvalidMode(err):
		return http.StatusInternalServerError, CodeInvalidMode, "不支持的识别模式。"
	case engine.IsEmptyOutput(err), errors.Is(err, engine.ErrUnavailable):
		return http.StatusInternalServerError, CodeInferenceFailure, "推理失败。"
	case intake.IsStorageError(err):
		return http.StatusInternalServerError, CodeStorage, "保存图片失败。"
	case isEngineError(err):
		return http.StatusInternalServerError, CodeInferenceFailure, "识别处理失败。"
	case errors.Is(err, progress.ErrRegistryFull):
		return http.StatusServiceUnavailable, CodeRegistryFull, "任务队列已满，请稍后重试。"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusInternalServerError, CodeInternal, "请求已中断。"
	default:
		return http.StatusInternalServerError, CodeInternal, "服务内部错误。"
	}
}

func isEngineError(err error) bool {
	var ee *engine.EngineError
	return errors.As(err, &ee)
}

// RespondWithError writes the envelope for err, deriving status, code,
// and message from Classify and attaching the request id and the
// underlying error detail.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := Classify(err)

	body := ErrorBody{
		Code:      code,
		Message:   message,
		RequestID: RequestIDFromContext(r.Context()),
	}
	if err != nil {
		body.Details = map[string]any{"cause": err.Error()}
	}
	WriteError(w, status, body)
}

// WriteError writes a fully specified error envelope.
func WriteError(w http.ResponseWriter, status int, body ErrorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{Error: body})
}
