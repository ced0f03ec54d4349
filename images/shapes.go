// Package images - Geometry primitives for oriented text boxes.
package images

import (
	"github.com/chewxy/math32"
)

// polygonEpsilon is the tolerance used by the clipping inside test. Vertices lying on
// a clip edge must be treated as inside so that a polygon clipped by itself is unchanged.
const polygonEpsilon = 1e-6

// Point2f is a point in floating point pixel coordinates.
type Point2f struct {
	X float32 `json:"x" yaml:"x"`
	Y float32 `json:"y" yaml:"y"`
}

// Add returns the component-wise sum of p and o.
func (p Point2f) Add(o Point2f) Point2f {
	return Point2f{X: p.X + o.X, Y: p.Y + o.Y}
}

// Midpoint returns the point halfway between p and o.
func (p Point2f) Midpoint(o Point2f) Point2f {
	return Point2f{X: 0.5 * (p.X + o.X), Y: 0.5 * (p.Y + o.Y)}
}

// Size2f is a width/height pair in floating point pixels.
type Size2f struct {
	Width  float32 `json:"width"  yaml:"width"`
	Height float32 `json:"height" yaml:"height"`
}

// Area returns width * height.
func (s Size2f) Area() float32 {
	return s.Width * s.Height
}

// Rect is a lightweight axis-aligned bounding box.
type Rect struct {
	// X2,Y2 are exclusive (like image.Rectangle).
	X1, Y1, X2, Y2 float32
}

// Overlaps reports whether r and o share a region of positive area.
func (r Rect) Overlaps(o Rect) bool {
	return max(r.X1, o.X1) < min(r.X2, o.X2) && max(r.Y1, o.Y1) < min(r.Y2, o.Y2)
}

// RotatedRect is an oriented rectangle: a center, a size along the rectangle's own
// axes, and a rotation in degrees. Positive angles rotate counter-clockwise in the
// conventional mathematical sense, which is clockwise on screen since the y axis
// points down.
type RotatedRect struct {
	Center Point2f `json:"center" yaml:"center"`
	Size   Size2f  `json:"size"   yaml:"size"`
	Angle  float32 `json:"angle"  yaml:"angle"`
}

// Points returns the four vertices of the rectangle.
//
// The ordering matches OpenCV's RotatedRect::points: bottom-left, top-left,
// top-right, bottom-right for an unrotated rectangle.
//
// Returns:
//   - [4]Point2f: The rectangle corners in drawing order.
func (r RotatedRect) Points() [4]Point2f {
	rad := r.Angle * math32.Pi / 180
	b := math32.Cos(rad) * 0.5
	a := math32.Sin(rad) * 0.5

	var pts [4]Point2f
	pts[0] = Point2f{
		X: r.Center.X - a*r.Size.Height - b*r.Size.Width,
		Y: r.Center.Y + b*r.Size.Height - a*r.Size.Width,
	}
	pts[1] = Point2f{
		X: r.Center.X + a*r.Size.Height - b*r.Size.Width,
		Y: r.Center.Y - b*r.Size.Height - a*r.Size.Width,
	}
	pts[2] = Point2f{X: 2*r.Center.X - pts[0].X, Y: 2*r.Center.Y - pts[0].Y}
	pts[3] = Point2f{X: 2*r.Center.X - pts[1].X, Y: 2*r.Center.Y - pts[1].Y}
	return pts
}

// BoundingRect returns the smallest axis-aligned box containing the rectangle.
func (r RotatedRect) BoundingRect() Rect {
	pts := r.Points()
	out := Rect{X1: pts[0].X, Y1: pts[0].Y, X2: pts[0].X, Y2: pts[0].Y}
	for _, p := range pts[1:] {
		out.X1 = min(out.X1, p.X)
		out.Y1 = min(out.Y1, p.Y)
		out.X2 = max(out.X2, p.X)
		out.Y2 = max(out.Y2, p.Y)
	}
	return out
}

// Area returns the area of the rectangle. Negative sizes yield zero.
func (r RotatedRect) Area() float32 {
	if r.Size.Width <= 0 || r.Size.Height <= 0 {
		return 0
	}
	return r.Size.Area()
}

// Scale returns the rectangle with its center and size multiplied per axis. The
// angle is left untouched.
func (r RotatedRect) Scale(xFactor, yFactor float32) RotatedRect {
	return RotatedRect{
		Center: Point2f{X: r.Center.X * xFactor, Y: r.Center.Y * yFactor},
		Size:   Size2f{Width: r.Size.Width * xFactor, Height: r.Size.Height * yFactor},
		Angle:  r.Angle,
	}
}

// vec is a float64 working point for polygon clipping.
type vec struct {
	x, y float64
}

func cross(o, a, b vec) float64 {
	return (a.x-o.x)*(b.y-o.y) - (a.y-o.y)*(b.x-o.x)
}

// signedArea returns the shoelace area, positive for counter-clockwise polygons in a
// y-up frame.
func signedArea(poly []vec) float64 {
	var sum float64
	for i := range poly {
		j := (i + 1) % len(poly)
		sum += poly[i].x*poly[j].y - poly[j].x*poly[i].y
	}
	return sum / 2
}

func toPolygon(r RotatedRect) []vec {
	pts := r.Points()
	poly := make([]vec, 4)
	for i, p := range pts {
		poly[i] = vec{x: float64(p.X), y: float64(p.Y)}
	}
	if signedArea(poly) < 0 {
		poly[1], poly[3] = poly[3], poly[1]
	}
	return poly
}

// lineIntersection returns the intersection of segment p1-p2 with the infinite line
// through a-b.
func lineIntersection(p1, p2, a, b vec) vec {
	d1 := cross(a, b, p1)
	d2 := cross(a, b, p2)
	t := d1 / (d1 - d2)
	return vec{x: p1.x + t*(p2.x-p1.x), y: p1.y + t*(p2.y-p1.y)}
}

// clipConvex clips subject by the convex, counter-clockwise polygon clip
// (Sutherland-Hodgman).
func clipConvex(subject, clip []vec) []vec {
	out := subject
	for i := range clip {
		if len(out) == 0 {
			return nil
		}
		a := clip[i]
		b := clip[(i+1)%len(clip)]
		scale := max(1, abs(b.x-a.x), abs(b.y-a.y))
		eps := polygonEpsilon * scale * scale

		in := out
		out = make([]vec, 0, len(in)+2)
		for j := range in {
			cur := in[j]
			prev := in[(j+len(in)-1)%len(in)]
			curInside := cross(a, b, cur) >= -eps
			prevInside := cross(a, b, prev) >= -eps
			switch {
			case curInside && prevInside:
				out = append(out, cur)
			case curInside && !prevInside:
				out = append(out, lineIntersection(prev, cur, a, b), cur)
			case !curInside && prevInside:
				out = append(out, lineIntersection(prev, cur, a, b))
			}
		}
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// IntersectionArea returns the area shared by two rotated rectangles.
//
// Both rectangles are convex, so the overlap is computed exactly by clipping one
// polygon against the other rather than approximating with axis-aligned boxes.
//
// Arguments:
//   - r: The first rectangle.
//   - o: The second rectangle.
//
// Returns:
//   - float32: The intersection area in square pixels, 0 when the rectangles are disjoint.
func IntersectionArea(r, o RotatedRect) float32 {
	if r.Area() == 0 || o.Area() == 0 {
		return 0
	}
	if !r.BoundingRect().Overlaps(o.BoundingRect()) {
		return 0
	}
	clipped := clipConvex(toPolygon(r), toPolygon(o))
	if len(clipped) < 3 {
		return 0
	}
	return float32(abs(signedArea(clipped)))
}

// RotatedIoU computes the Intersection over Union of two rotated rectangles.
//
//	IoU = Area of Intersection / Area of Union
//
//	- A value of 1.0 means the rectangles are identical.
//	- A value of 0.0 means the rectangles don't overlap at all.
//
// Union uses inclusion-exclusion: Area(A) + Area(B) - Area(A ∩ B). Degenerate
// rectangles with no area never overlap anything.
//
// Example Usage:
// ```go
//
//	a := RotatedRect{Center: Point2f{X: 50, Y: 50}, Size: Size2f{Width: 100, Height: 100}}
//	b := RotatedRect{Center: Point2f{X: 50, Y: 50}, Size: Size2f{Width: 100, Height: 100}, Angle: 45}
//
//	fmt.Printf("The IoU is: %f\n", RotatedIoU(a, b)) // Output: The IoU is: 0.707107
//
// ```
func RotatedIoU(r, o RotatedRect) float32 {
	inter := IntersectionArea(r, o)
	if inter <= 0 {
		return 0
	}
	union := r.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	iou := inter / union
	if iou > 1 {
		return 1
	}
	return iou
}
