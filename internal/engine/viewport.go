package engine

import "math"

// Point is a 2D coordinate in either screen or canvas space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p translated by q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Scale returns p scaled by f.
func (p Point) Scale(f float64) Point {
	return Point{X: p.X * f, Y: p.Y * f}
}

// Dist returns the euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// minZoomFloor guards against a zero or negative zoom factor regardless of
// the configured range.
const minZoomFloor = 0.01

// Viewport holds the per-session pan offset and zoom factor and converts
// between screen and canvas coordinate spaces. It is never persisted.
type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// NewViewport returns an identity viewport.
func NewViewport() Viewport {
	return Viewport{Zoom: 1}
}

// CanvasToScreen maps a canvas-space point to screen space.
func (v Viewport) CanvasToScreen(p Point) Point {
	return Point{X: p.X*v.Zoom + v.X, Y: p.Y*v.Zoom + v.Y}
}

// ScreenToCanvas maps a screen-space point to canvas space.
func (v Viewport) ScreenToCanvas(p Point) Point {
	z := v.Zoom
	if z < minZoomFloor {
		z = minZoomFloor
	}
	return Point{X: (p.X - v.X) / z, Y: (p.Y - v.Y) / z}
}

// Pan translates the offset additively.
func (v Viewport) Pan(dx, dy float64) Viewport {
	v.X += dx
	v.Y += dy
	return v
}

// ZoomAt sets the zoom factor clamped to [minZoom, maxZoom] and re-solves the
// offset so the canvas point under the focal screen point stays fixed.
func (v Viewport) ZoomAt(focal Point, newZoom, minZoom, maxZoom float64) Viewport {
	if minZoom < minZoomFloor {
		minZoom = minZoomFloor
	}
	if maxZoom < minZoom {
		maxZoom = minZoom
	}
	newZoom = math.Min(math.Max(newZoom, minZoom), maxZoom)

	anchor := v.ScreenToCanvas(focal)
	v.Zoom = newZoom
	v.X = focal.X - anchor.X*newZoom
	v.Y = focal.Y - anchor.Y*newZoom
	return v
}
