// Package layout extracts region metadata from the engine's structured
// markup output.
//
// The engine annotates recognized regions as repeated blocks of the form
//
//	<|ref|>label<|/ref|><|det|>[[x1,y1,x2,y2], ...]<|/det|>
//
// with coordinates on a 0-999 grid. Extraction converts each box into
// pixel space for the page image and a normalized 0-1 rectangle.
// Extraction is deliberately lenient: malformed entries are skipped
// per-entry, and an unreadable page image degrades to empty metadata
// rather than failing the page.
package layout

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
)

// coordGrid is the coordinate space the engine emits boxes in.
const coordGrid = 999

var refPattern = regexp.MustCompile(`(?s)<\|ref\|>(.*?)<\|/ref\|><\|det\|>(.*?)<\|/det\|>`)

// Box is one bounding rectangle for a layout item.
type Box struct {
	// Index is the box position within its item's coordinate list.
	Index int `json:"index"`

	// Absolute is the pixel rectangle [x1, y1, x2, y2], clamped into
	// the page bounds and widened to at least one pixel.
	Absolute [4]int `json:"absolute"`

	// Normalized is the 0-1 rectangle rounded to 6 decimal places.
	Normalized [4]float64 `json:"normalized"`
}

// Item is a labeled region with one or more boxes.
type Item struct {
	// ID is the stable positional identifier, "label-index".
	ID string `json:"id"`

	// Label is the region label emitted by the engine.
	Label string `json:"label"`

	Boxes []Box `json:"boxes"`
}

// Metadata is the per-page layout structure. Width and Height are nil
// when the page image could not be read.
type Metadata struct {
	Width  *int   `json:"width"`
	Height *int   `json:"height"`
	Items  []Item `json:"items"`
}

// Empty returns metadata with no dimensions and no items.
func Empty() *Metadata {
	return &Metadata{Items: []Item{}}
}

// Extract parses layout metadata out of raw engine output for the page
// image at imagePath. Never returns an error: failures degrade to empty
// metadata.
func Extract(rawText, imagePath string) *Metadata {
	if rawText == "" {
		return Empty()
	}

	width, height, err := Dimensions(imagePath)
	if err != nil {
		return Empty()
	}

	meta := &Metadata{Width: &width, Height: &height, Items: []Item{}}

	matches := refPattern.FindAllStringSubmatch(rawText, -1)
	for idx, match := range matches {
		label := match[1]
		boxes := parseBoxes(match[2], width, height)
		if len(boxes) == 0 {
			continue
		}
		meta.Items = append(meta.Items, Item{
			ID:    fmt.Sprintf("%s-%d", label, idx),
			Label: label,
			Boxes: boxes,
		})
	}
	return meta
}

// parseBoxes decodes a coordinate list literal into pixel boxes.
// The list must be a JSON-style array; entries that are not 4-tuples of
// numbers are skipped individually.
func parseBoxes(literal string, width, height int) []Box {
	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(literal), &entries); err != nil {
		return nil
	}

	boxes := make([]Box, 0, len(entries))
	for boxIdx, entry := range entries {
		var coords []float64
		if err := json.Unmarshal(entry, &coords); err != nil {
			continue
		}
		if len(coords) != 4 {
			continue
		}

		absX1 := scale(coords[0], width)
		absY1 := scale(coords[1], height)
		absX2 := scale(coords[2], width)
		absY2 := scale(coords[3], height)

		// A box collapsing to zero width or height after scaling is
		// widened to remain addressable.
		if absX2 <= absX1 {
			absX2 = absX1 + 1
		}
		if absY2 <= absY1 {
			absY2 = absY1 + 1
		}

		boxes = append(boxes, Box{
			Index:    boxIdx,
			Absolute: [4]int{absX1, absY1, absX2, absY2},
			Normalized: [4]float64{
				normalize(absX1, width),
				normalize(absY1, height),
				normalize(absX2, width),
				normalize(absY2, height),
			},
		})
	}
	return boxes
}

// scale clamps a grid coordinate into [0, 999] and projects it into
// pixel space, truncating toward zero.
func scale(coord float64, dimension int) int {
	clamped := math.Max(0, math.Min(coordGrid, coord))
	return int(clamped / coordGrid * float64(dimension))
}

// normalize converts a pixel coordinate to a 0-1 value rounded to six
// decimal places.
func normalize(pixel, dimension int) float64 {
	if dimension == 0 {
		return 0
	}
	return math.Round(float64(pixel)/float64(dimension)*1e6) / 1e6
}
