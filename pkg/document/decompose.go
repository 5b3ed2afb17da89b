package document

import (
	"context"
	"fmt"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/pagelens/pagelens/pkg/workspace"
)

// DefaultScale is the rasterization magnification for PDF pages.
const DefaultScale = 2.0

// Decomposer splits documents into ordered page image sequences.
type Decomposer struct {
	rasterizer Rasterizer

	// Scale is the page magnification factor. Zero selects DefaultScale.
	Scale float64

	// RenderConcurrency bounds parallel page rendering. Zero selects 4.
	// Only inference is serialized; rendering may run concurrently.
	RenderConcurrency int
}

// NewDecomposer creates a decomposer using the given rasterizer.
func NewDecomposer(r Rasterizer) *Decomposer {
	return &Decomposer{rasterizer: r}
}

// SingleImage returns the one-element page sequence for a plain image
// input: the original file, no copy.
func SingleImage(path string) []string {
	return []string{path}
}

// DecomposePDF rasterizes every page of the PDF at path into the
// workspace's pages directory.
//
// Page images are named page_N.png with N starting at 1; the returned
// slice is ordered so that index i holds source page i (zero-based).
func (d *Decomposer) DecomposePDF(ctx context.Context, path string, ws *workspace.Workspace) ([]string, error) {
	count, err := d.rasterizer.PageCount(ctx, path)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrNoPages
	}

	pagesDir, err := ws.PagesDir()
	if err != nil {
		return nil, fmt.Errorf("prepare pages dir: %w", err)
	}

	scale := d.Scale
	if scale <= 0 {
		scale = DefaultScale
	}
	concurrency := d.RenderConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	paths := make([]string, count)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := 0; i < count; i++ {
		g.Go(func() error {
			dest := filepath.Join(pagesDir, fmt.Sprintf("page_%d.png", i+1))
			if err := d.rasterizer.RenderPage(gctx, path, i, scale, dest); err != nil {
				return err
			}
			paths[i] = dest
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}
