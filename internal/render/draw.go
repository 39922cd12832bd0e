package render

import (
	"image"
	"image/color"
	imagedraw "image/draw"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

// kappa places cubic control points so four curves approximate a circle.
const kappa = 0.5523

type pt struct{ x, y float32 }

func newRasterizer(img *image.RGBA) *vector.Rasterizer {
	b := img.Bounds()
	z := vector.NewRasterizer(b.Dx(), b.Dy())
	z.DrawOp = imagedraw.Over
	return z
}

func paint(img *image.RGBA, z *vector.Rasterizer, clr color.Color) {
	z.Draw(img, img.Bounds(), image.NewUniform(clr), image.Point{})
}

// fillPolygon fills the closed polygon through pts, anti-aliased.
func fillPolygon(img *image.RGBA, clr color.Color, pts ...pt) {
	if len(pts) < 3 {
		return
	}
	z := newRasterizer(img)
	z.MoveTo(pts[0].x, pts[0].y)
	for _, p := range pts[1:] {
		z.LineTo(p.x, p.y)
	}
	z.ClosePath()
	paint(img, z, clr)
}

func drawDisc(img *image.RGBA, center image.Point, radius int, clr color.Color) {
	if radius <= 0 {
		return
	}
	cx, cy, r := float32(center.X), float32(center.Y), float32(radius)
	k := r * kappa
	z := newRasterizer(img)
	z.MoveTo(cx+r, cy)
	z.CubeTo(cx+r, cy+k, cx+k, cy+r, cx, cy+r)
	z.CubeTo(cx-k, cy+r, cx-r, cy+k, cx-r, cy)
	z.CubeTo(cx-r, cy-k, cx-k, cy-r, cx, cy-r)
	z.CubeTo(cx+k, cy-r, cx+r, cy-k, cx+r, cy)
	z.ClosePath()
	paint(img, z, clr)
}

// drawRoundedPanel fills rect with corners rounded by radius (clamped to half the short side).
func drawRoundedPanel(img *image.RGBA, rect image.Rectangle, radius int, clr color.Color) {
	if rect.Empty() {
		return
	}
	radius = max(0, min(radius, rect.Dx()/2, rect.Dy()/2))
	x0, y0 := float32(rect.Min.X), float32(rect.Min.Y)
	x1, y1 := float32(rect.Max.X), float32(rect.Max.Y)
	r := float32(radius)

	z := newRasterizer(img)
	z.MoveTo(x0+r, y0)
	z.LineTo(x1-r, y0)
	z.QuadTo(x1, y0, x1, y0+r)
	z.LineTo(x1, y1-r)
	z.QuadTo(x1, y1, x1-r, y1)
	z.LineTo(x0+r, y1)
	z.QuadTo(x0, y1, x0, y1-r)
	z.LineTo(x0, y0+r)
	z.QuadTo(x0, y0, x0+r, y0)
	z.ClosePath()
	paint(img, z, clr)
}

// truncateWithEllipsis shortens text until it fits maxWidth pixels, ending it with "...".
func truncateWithEllipsis(face font.Face, text string, maxWidth int) string {
	text = strings.TrimSpace(text)
	if text == "" || face == nil || maxWidth <= 0 {
		return text
	}
	fits := func(s string) bool { return font.MeasureString(face, s).Round() <= maxWidth }
	if fits(text) {
		return text
	}
	const ellipsis = "..."
	if !fits(ellipsis) {
		return ""
	}
	runes := []rune(text)
	for n := len(runes) - 1; n > 0; n-- {
		if s := string(runes[:n]) + ellipsis; fits(s) {
			return s
		}
	}
	return ellipsis
}

// drawCenteredText draws text horizontally centered on centerX with its baseline at y.
func drawCenteredText(drawer *font.Drawer, text string, centerX, y int) {
	if drawer == nil || text == "" {
		return
	}
	w := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-w/2, y)
	drawer.DrawString(text)
}

// middleBaseline is the baseline that vertically centers a line of face inside rect.
func middleBaseline(face font.Face, rect image.Rectangle) int {
	m := face.Metrics()
	return rect.Min.Y + (rect.Dy()+m.Ascent.Ceil()-m.Descent.Ceil())/2
}
