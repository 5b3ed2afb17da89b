package layout

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writePNG writes a blank PNG of the given size and returns its path.
func writePNG(t *testing.T, width, height int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "page.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, width, height))))
	return path
}

func TestExtract(t *testing.T) {
	t.Run("single region", func(t *testing.T) {
		img := writePNG(t, 100, 200)
		raw := `Intro <|ref|>title<|/ref|><|det|>[[100,100,500,500]]<|/det|> outro`

		meta := Extract(raw, img)
		require.NotNil(t, meta.Width)
		require.NotNil(t, meta.Height)
		assert.Equal(t, 100, *meta.Width)
		assert.Equal(t, 200, *meta.Height)

		require.Len(t, meta.Items, 1)
		item := meta.Items[0]
		assert.Equal(t, "title-0", item.ID)
		assert.Equal(t, "title", item.Label)
		require.Len(t, item.Boxes, 1)

		box := item.Boxes[0]
		assert.Equal(t, 0, box.Index)
		assert.Equal(t, [4]int{10, 20, 50, 100}, box.Absolute)
		assert.Equal(t, [4]float64{0.1, 0.1, 0.5, 0.5}, box.Normalized)
	})

	t.Run("multiple regions keep positional ids", func(t *testing.T) {
		img := writePNG(t, 100, 100)
		raw := `<|ref|>text<|/ref|><|det|>[[0,0,100,100]]<|/det|>` +
			`<|ref|>table<|/ref|><|det|>[[200,200,400,400]]<|/det|>` +
			`<|ref|>text<|/ref|><|det|>[[500,500,900,900]]<|/det|>`

		meta := Extract(raw, img)
		require.Len(t, meta.Items, 3)
		assert.Equal(t, "text-0", meta.Items[0].ID)
		assert.Equal(t, "table-1", meta.Items[1].ID)
		assert.Equal(t, "text-2", meta.Items[2].ID)
	})

	t.Run("full grid box covers the page", func(t *testing.T) {
		img := writePNG(t, 100, 200)
		raw := `<|ref|>page<|/ref|><|det|>[[0,0,999,999]]<|/det|>`

		meta := Extract(raw, img)
		require.Len(t, meta.Items, 1)
		box := meta.Items[0].Boxes[0]
		assert.Equal(t, [4]int{0, 0, 100, 200}, box.Absolute)
		assert.Equal(t, [4]float64{0, 0, 1, 1}, box.Normalized)
	})

	t.Run("out of range coordinates clamped", func(t *testing.T) {
		img := writePNG(t, 100, 100)
		raw := `<|ref|>edge<|/ref|><|det|>[[-50,-50,1500,1500]]<|/det|>`

		meta := Extract(raw, img)
		require.Len(t, meta.Items, 1)
		assert.Equal(t, [4]int{0, 0, 100, 100}, meta.Items[0].Boxes[0].Absolute)
	})

	t.Run("degenerate box widened to one pixel", func(t *testing.T) {
		img := writePNG(t, 100, 200)
		raw := `<|ref|>dot<|/ref|><|det|>[[10,10,10,10]]<|/det|>`

		meta := Extract(raw, img)
		require.Len(t, meta.Items, 1)
		box := meta.Items[0].Boxes[0]
		assert.Equal(t, [4]int{1, 2, 2, 3}, box.Absolute)
		assert.Equal(t, [4]float64{0.01, 0.01, 0.02, 0.015}, box.Normalized)
	})

	t.Run("malformed entries skipped individually", func(t *testing.T) {
		img := writePNG(t, 100, 100)
		raw := `<|ref|>mixed<|/ref|><|det|>[[1,2,3],["a","b","c","d"],[0,0,999,999]]<|/det|>`

		meta := Extract(raw, img)
		require.Len(t, meta.Items, 1)
		require.Len(t, meta.Items[0].Boxes, 1)
		assert.Equal(t, 2, meta.Items[0].Boxes[0].Index)
	})

	t.Run("unparseable coordinate list drops the item", func(t *testing.T) {
		img := writePNG(t, 100, 100)
		raw := `<|ref|>bad<|/ref|><|det|>not json<|/det|>` +
			`<|ref|>good<|/ref|><|det|>[[0,0,500,500]]<|/det|>`

		meta := Extract(raw, img)
		require.Len(t, meta.Items, 1)
		assert.Equal(t, "good", meta.Items[0].Label)
	})

	t.Run("no markup yields dimensions only", func(t *testing.T) {
		img := writePNG(t, 64, 64)
		meta := Extract("# Plain markdown output", img)
		require.NotNil(t, meta.Width)
		assert.Equal(t, 64, *meta.Width)
		assert.Empty(t, meta.Items)
	})

	t.Run("empty text yields empty metadata", func(t *testing.T) {
		meta := Extract("", writePNG(t, 10, 10))
		assert.Nil(t, meta.Width)
		assert.Nil(t, meta.Height)
		assert.Empty(t, meta.Items)
	})

	t.Run("unreadable image degrades to empty", func(t *testing.T) {
		raw := `<|ref|>x<|/ref|><|det|>[[0,0,999,999]]<|/det|>`
		meta := Extract(raw, filepath.Join(t.TempDir(), "missing.png"))
		assert.Nil(t, meta.Width)
		assert.Empty(t, meta.Items)
	})

	t.Run("markup spanning newlines", func(t *testing.T) {
		img := writePNG(t, 100, 100)
		raw := "<|ref|>para\ngraph<|/ref|><|det|>[[0,0,\n500,500]]<|/det|>"

		meta := Extract(raw, img)
		require.Len(t, meta.Items, 1)
		assert.Equal(t, "para\ngraph", meta.Items[0].Label)
	})
}

func TestDimensions(t *testing.T) {
	t.Run("png", func(t *testing.T) {
		img := writePNG(t, 320, 240)
		w, h, err := Dimensions(img)
		require.NoError(t, err)
		assert.Equal(t, 320, w)
		assert.Equal(t, 240, h)
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := Dimensions(filepath.Join(t.TempDir(), "nope.png"))
		assert.Error(t, err)
	})

	t.Run("not an image", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "junk.png")
		require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))
		_, _, err := Dimensions(path)
		assert.Error(t, err)
	})
}
