package pipeline

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pagelens/pagelens/pkg/layout"
)

// PageResult is one page's recognition outcome. Immutable once created.
type PageResult struct {
	// PageIndex is the zero-based source page position.
	PageIndex int `json:"pageIndex"`

	// Text is the cleaned recognition text.
	Text string `json:"text"`

	// RawText is the unmodified engine output.
	RawText string `json:"rawText"`

	Layout *layout.Metadata `json:"layout,omitempty"`

	// ImageData is the page image as a base64 data URL. Only populated
	// for decomposed document pages, never for single-image inputs.
	ImageData string `json:"imageData,omitempty"`

	DurationMs float64 `json:"durationMs,omitempty"`
}

// Result is the aggregate outcome of one job.
type Result struct {
	Mode       string  `json:"mode"`
	Prompt     string  `json:"prompt"`
	Text       string  `json:"text"`
	RawText    string  `json:"rawText"`
	DurationMs float64 `json:"durationMs"`
	FileName   string  `json:"fileName"`
	FileSize   int64   `json:"fileSize"`

	// Layout is the first page's layout metadata. All pages carry their
	// own layout inside Pages; only the first is surfaced here. This is
	// a long-standing API asymmetry callers depend on.
	Layout *layout.Metadata `json:"layout,omitempty"`

	Pages []PageResult `json:"pages"`
}

var dataURLMimes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// encodeDataURL reads an image file and returns it as a base64 data URL.
func encodeDataURL(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read page image: %w", err)
	}
	mime, ok := dataURLMimes[strings.ToLower(filepath.Ext(path))]
	if !ok {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(b), nil
}
