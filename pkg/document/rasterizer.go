// Package document converts multi-page documents into ordered page
// images for recognition.
//
// PDF structure handling (open, validate, page count) uses pdfcpu;
// actual pixel rendering is delegated to the Rasterizer collaborator,
// by default an external renderer invoked per page.
package document

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Sentinel errors for document decomposition.
var (
	// ErrUnreadable indicates the document could not be opened or parsed.
	ErrUnreadable = errors.New("document unreadable")

	// ErrNoPages indicates the document contains zero pages.
	ErrNoPages = errors.New("document has no pages")
)

// IsDecompositionError reports whether err is a document-caused
// decomposition failure (client error, not a server fault).
func IsDecompositionError(err error) bool {
	return errors.Is(err, ErrUnreadable) || errors.Is(err, ErrNoPages)
}

// Rasterizer is the collaborator that renders document pages to images.
type Rasterizer interface {
	// PageCount opens the document and returns its page count.
	PageCount(ctx context.Context, path string) (int, error)

	// RenderPage renders the zero-based page index at the given
	// magnification into destPath as a PNG.
	RenderPage(ctx context.Context, path string, pageIndex int, scale float64, destPath string) error
}

// ExternalRasterizer renders pages by invoking an external renderer
// binary (pdftoppm-compatible flags) and counts pages with pdfcpu.
type ExternalRasterizer struct {
	// Command is the renderer binary. Defaults to "pdftoppm".
	Command string
}

// NewExternalRasterizer creates a rasterizer shelling out to command.
// An empty command selects the default renderer.
func NewExternalRasterizer(command string) *ExternalRasterizer {
	if strings.TrimSpace(command) == "" {
		command = "pdftoppm"
	}
	return &ExternalRasterizer{Command: command}
}

// PageCount opens the PDF with pdfcpu and returns its page count.
func (r *ExternalRasterizer) PageCount(ctx context.Context, path string) (int, error) {
	count, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return count, nil
}

// RenderPage invokes the external renderer for one page.
//
// The renderer is passed pdftoppm-style flags; -singlefile makes it
// write exactly destPath (the ".png" suffix is appended by the tool,
// so the prefix is destPath without extension).
func (r *ExternalRasterizer) RenderPage(ctx context.Context, path string, pageIndex int, scale float64, destPath string) error {
	page := strconv.Itoa(pageIndex + 1)
	dpi := strconv.Itoa(int(72 * scale))
	prefix := strings.TrimSuffix(destPath, ".png")

	cmd := exec.CommandContext(ctx, r.Command,
		"-png",
		"-r", dpi,
		"-f", page,
		"-l", page,
		"-singlefile",
		path,
		prefix,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: render page %s: %v: %s", ErrUnreadable, page, err, strings.TrimSpace(string(out)))
	}
	return nil
}
