// Package viewport maps points between a scaled preview image and the real browser viewport.
package viewport

import "math"

// Default viewport size shared by live control and replay.
const (
	DefaultWidth  = 1280
	DefaultHeight = 720
)

// Size is a width/height pair in pixels.
type Size struct {
	Width  int
	Height int
}

// Default returns the fixed viewport every session is emulated at.
func Default() Size {
	return Size{Width: DefaultWidth, Height: DefaultHeight}
}

// Point is a pixel coordinate in the real viewport.
type Point struct {
	X int `json:"x" bson:"x" yaml:"x"`
	Y int `json:"y" bson:"y" yaml:"y"`
}

// Map converts a point on a preview image of previewW×previewH into the matching
// point of a viewportW×viewportH viewport. Each axis is scaled independently and
// rounded to the nearest pixel. Callers guarantee non-zero preview dimensions.
//
// The result is clamped into [0, viewportW) × [0, viewportH) so a click on the
// preview's last row or column never lands outside the page.
func Map(previewX, previewY, previewW, previewH float64, viewportW, viewportH int) Point {
	sx := float64(viewportW) / previewW
	sy := float64(viewportH) / previewH

	return Point{
		X: clamp(int(math.Round(previewX*sx)), viewportW),
		Y: clamp(int(math.Round(previewY*sy)), viewportH),
	}
}

// MapTo is Map with the target viewport given as a Size.
func MapTo(previewX, previewY, previewW, previewH float64, vp Size) Point {
	return Map(previewX, previewY, previewW, previewH, vp.Width, vp.Height)
}

func clamp(v, limit int) int {
	if v < 0 {
		return 0
	}
	if limit > 0 && v >= limit {
		return limit - 1
	}
	return v
}
