package engine

import (
	"slices"

	"github.com/hylla/tavla/internal/domain"
)

// DefaultSnapRadius is the endpoint-drag snap distance in canvas units.
const DefaultSnapRadius = 20.0

// smoothTension is the Catmull-Rom tension factor for waypoint paths.
const smoothTension = 0.18

// CardBox is the effective (overlay-aware) display geometry of one card.
type CardBox struct {
	ID   string
	Kind domain.CardKind
	X    float64
	Y    float64
	W    float64
	H    float64
}

// Anchor returns the point on side of box at offset t in [0,1] along it.
func Anchor(box CardBox, side domain.Side, t float64) Point {
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	switch side {
	case domain.SideTop:
		return Point{X: box.X + t*box.W, Y: box.Y}
	case domain.SideRight:
		return Point{X: box.X + box.W, Y: box.Y + t*box.H}
	case domain.SideBottom:
		return Point{X: box.X + t*box.W, Y: box.Y + box.H}
	case domain.SideLeft:
		return Point{X: box.X, Y: box.Y + t*box.H}
	default:
		return Point{X: box.X + box.W/2, Y: box.Y + box.H/2}
	}
}

// SnapTarget is the nearest card anchor found during an endpoint drag.
type SnapTarget struct {
	CardID string
	Side   domain.Side
	Point  Point
}

// NearestAnchor scans the centered anchor (offset 0.5) of each side of every
// connectable card and returns the one closest to p. Line cards and excluded
// ids never participate.
func NearestAnchor(p Point, boxes []CardBox, excludeID string) (SnapTarget, bool) {
	var best SnapTarget
	bestDist := -1.0
	for _, box := range boxes {
		if box.ID == excludeID {
			continue
		}
		if !domain.CapabilityFor(box.Kind).Connectable {
			continue
		}
		for _, side := range domain.Sides() {
			a := Anchor(box, side, 0.5)
			d := p.Dist(a)
			if bestDist < 0 || d < bestDist {
				bestDist = d
				best = SnapTarget{CardID: box.ID, Side: side, Point: a}
			}
		}
	}
	return best, bestDist >= 0
}

// SnapEndpoint returns the snap target for p when one lies within radius.
func SnapEndpoint(p Point, boxes []CardBox, excludeID string, radius float64) (SnapTarget, bool) {
	if radius <= 0 {
		radius = DefaultSnapRadius
	}
	target, ok := NearestAnchor(p, boxes, excludeID)
	if !ok || p.Dist(target.Point) >= radius {
		return SnapTarget{}, false
	}
	return target, true
}

// CubicSegment is one cubic Bezier piece of a routed path.
type CubicSegment struct {
	From  Point `json:"from"`
	Ctrl1 Point `json:"ctrl1"`
	Ctrl2 Point `json:"ctrl2"`
	To    Point `json:"to"`
}

// Path is a routed line: the through-points (start, waypoints, end) and the
// cubic segments joining them.
type Path struct {
	Points   []Point        `json:"points"`
	Segments []CubicSegment `json:"segments"`
}

// RoutePath builds the display path for a line. With no waypoints the path is
// the straight segment, or a single quadratic curve when curvature is
// nonzero. With waypoints it passes exactly through every waypoint using
// Catmull-Rom smoothed cubics, so the joins keep continuous-looking tangents.
func RoutePath(start, end Point, waypoints []Point, curvature float64) Path {
	through := make([]Point, 0, len(waypoints)+2)
	through = append(through, start)
	through = append(through, waypoints...)
	through = append(through, end)

	if len(waypoints) == 0 {
		if curvature == 0 {
			return Path{Points: through, Segments: []CubicSegment{lineSegment(start, end)}}
		}
		return Path{Points: through, Segments: []CubicSegment{curveSegment(start, end, curvature)}}
	}

	segments := make([]CubicSegment, 0, len(through)-1)
	for i := 0; i < len(through)-1; i++ {
		p1 := through[i]
		p2 := through[i+1]
		p0 := p1
		if i > 0 {
			p0 = through[i-1]
		}
		p3 := p2
		if i+2 < len(through) {
			p3 = through[i+2]
		}
		segments = append(segments, CubicSegment{
			From:  p1,
			Ctrl1: p1.Add(p2.Sub(p0).Scale(smoothTension)),
			Ctrl2: p2.Sub(p3.Sub(p1).Scale(smoothTension)),
			To:    p2,
		})
	}
	return Path{Points: through, Segments: segments}
}

// lineSegment degenerates a cubic to the straight segment from a to b.
func lineSegment(a, b Point) CubicSegment {
	third := b.Sub(a).Scale(1.0 / 3.0)
	return CubicSegment{From: a, Ctrl1: a.Add(third), Ctrl2: b.Sub(third), To: b}
}

// curveSegment builds the single-curvature case: a quadratic whose control
// point is the segment midpoint displaced along the perpendicular by offset,
// expressed as its exact cubic equivalent.
func curveSegment(a, b Point, offset float64) CubicSegment {
	mid := Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
	d := b.Sub(a)
	length := a.Dist(b)
	if length == 0 {
		return lineSegment(a, b)
	}
	perp := Point{X: -d.Y / length, Y: d.X / length}
	q := mid.Add(perp.Scale(offset))
	return CubicSegment{
		From:  a,
		Ctrl1: a.Add(q.Sub(a).Scale(2.0 / 3.0)),
		Ctrl2: b.Add(q.Sub(b).Scale(2.0 / 3.0)),
		To:    b,
	}
}

// SampleSegment evaluates the cubic at parameter t in [0,1].
func SampleSegment(s CubicSegment, t float64) Point {
	u := 1 - t
	return Point{
		X: u*u*u*s.From.X + 3*u*u*t*s.Ctrl1.X + 3*u*t*t*s.Ctrl2.X + t*t*t*s.To.X,
		Y: u*u*u*s.From.Y + 3*u*u*t*s.Ctrl1.Y + 3*u*t*t*s.Ctrl2.Y + t*t*t*s.To.Y,
	}
}

// SortWaypoints orders waypoints by distance of their absolute position from
// the start point, so the stored order always matches spatial position along
// the line regardless of the order the user added them in. origin is the
// owning line card's anchor position that waypoint coordinates are relative to.
func SortWaypoints(start Point, origin Point, waypoints []domain.Waypoint) []domain.Waypoint {
	out := slices.Clone(waypoints)
	slices.SortStableFunc(out, func(a, b domain.Waypoint) int {
		da := start.Dist(Point{X: origin.X + a.X, Y: origin.Y + a.Y})
		db := start.Dist(Point{X: origin.X + b.X, Y: origin.Y + b.Y})
		switch {
		case da < db:
			return -1
		case da > db:
			return 1
		default:
			return 0
		}
	})
	return out
}
