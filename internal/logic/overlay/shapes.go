package overlay

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/vector"
)

// kappa places cubic control points for a quarter circle.
const kappa = 0.5522847498

type point struct{ x, y float64 }

// path accumulates closed subpaths inside a bounding box, so the
// rasterizer buffer is sized to the shape rather than the whole frame.
// Subpaths wound in opposite directions cancel, which is how rings and
// outlines are cut.
type path struct {
	box image.Rectangle
	z   *vector.Rasterizer
}

// newPath clips box to dst, as the rasterizer writes without bounds checks.
func newPath(dst *image.RGBA, box image.Rectangle) *path {
	box = box.Intersect(dst.Bounds())
	return &path{box: box, z: vector.NewRasterizer(max(box.Dx(), 1), max(box.Dy(), 1))}
}

func (p *path) xy(x, y float64) (float32, float32) {
	return float32(x - float64(p.box.Min.X)), float32(y - float64(p.box.Min.Y))
}

func (p *path) moveTo(x, y float64) { p.z.MoveTo(p.xy(x, y)) }
func (p *path) lineTo(x, y float64) { p.z.LineTo(p.xy(x, y)) }

func (p *path) quadTo(cx, cy, x, y float64) {
	ax, ay := p.xy(cx, cy)
	bx, by := p.xy(x, y)
	p.z.QuadTo(ax, ay, bx, by)
}

func (p *path) cubeTo(c1x, c1y, c2x, c2y, x, y float64) {
	ax, ay := p.xy(c1x, c1y)
	bx, by := p.xy(c2x, c2y)
	cx, cy := p.xy(x, y)
	p.z.CubeTo(ax, ay, bx, by, cx, cy)
}

func (p *path) polygon(pts ...point) {
	p.moveTo(pts[0].x, pts[0].y)
	for _, pt := range pts[1:] {
		p.lineTo(pt.x, pt.y)
	}
	p.z.ClosePath()
}

// roundRect adds a rounded rectangle, clockwise unless reverse is set.
func (p *path) roundRect(x, y, w, h, r float64, reverse bool) {
	r = math.Min(r, math.Min(w, h)/2)
	if !reverse {
		p.moveTo(x+r, y)
		p.lineTo(x+w-r, y)
		p.quadTo(x+w, y, x+w, y+r)
		p.lineTo(x+w, y+h-r)
		p.quadTo(x+w, y+h, x+w-r, y+h)
		p.lineTo(x+r, y+h)
		p.quadTo(x, y+h, x, y+h-r)
		p.lineTo(x, y+r)
		p.quadTo(x, y, x+r, y)
	} else {
		p.moveTo(x+r, y)
		p.quadTo(x, y, x, y+r)
		p.lineTo(x, y+h-r)
		p.quadTo(x, y+h, x+r, y+h)
		p.lineTo(x+w-r, y+h)
		p.quadTo(x+w, y+h, x+w, y+h-r)
		p.lineTo(x+w, y+r)
		p.quadTo(x+w, y, x+w-r, y)
	}
	p.z.ClosePath()
}

// circle adds a circle built from four cubic arcs.
func (p *path) circle(cx, cy, r float64, reverse bool) {
	k := r * kappa
	p.moveTo(cx, cy-r)
	if !reverse {
		p.cubeTo(cx+k, cy-r, cx+r, cy-k, cx+r, cy)
		p.cubeTo(cx+r, cy+k, cx+k, cy+r, cx, cy+r)
		p.cubeTo(cx-k, cy+r, cx-r, cy+k, cx-r, cy)
		p.cubeTo(cx-r, cy-k, cx-k, cy-r, cx, cy-r)
	} else {
		p.cubeTo(cx-k, cy-r, cx-r, cy-k, cx-r, cy)
		p.cubeTo(cx-r, cy+k, cx-k, cy+r, cx, cy+r)
		p.cubeTo(cx+k, cy+r, cx+r, cy+k, cx+r, cy)
		p.cubeTo(cx+r, cy-k, cx+k, cy-r, cx, cy-r)
	}
	p.z.ClosePath()
}

// fill composites the accumulated coverage over dst in color c.
func (p *path) fill(dst *image.RGBA, c color.Color) {
	if p.box.Empty() {
		return
	}
	p.z.Draw(dst, p.box, image.NewUniform(c), image.Point{})
}

// boxAround returns the integer rectangle covering a circle or square of
// half-size r around (cx, cy), plus a 2px margin for antialiasing.
func boxAround(cx, cy, r float64) image.Rectangle {
	return image.Rect(
		int(math.Floor(cx-r))-2, int(math.Floor(cy-r))-2,
		int(math.Ceil(cx+r))+2, int(math.Ceil(cy+r))+2,
	)
}

// rotate turns (x, y) by deg clockwise on screen (y axis down).
func rotate(pt point, deg float64) point {
	s, c := math.Sincos(deg * math.Pi / 180)
	return point{pt.x*c - pt.y*s, pt.x*s + pt.y*c}
}
