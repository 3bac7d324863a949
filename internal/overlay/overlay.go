// Package overlay burns a coordinate marker into a frame so annotators can
// verify where a pointer action landed.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strconv"
	"strings"
)

// Style describes the marker drawn at a coordinate.
type Style struct {
	Radius    int
	LineWidth int
	Color     color.RGBA
}

// DefaultStyle matches the configured defaults.
func DefaultStyle() Style {
	return Style{Radius: 18, LineWidth: 3, Color: color.RGBA{R: 0xff, G: 0x30, B: 0x30, A: 0xff}}
}

// ParseColor parses "#rrggbb".
func ParseColor(value string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(value), "#")
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("overlay color %q: expected #rrggbb", value)
	}
	n, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("overlay color %q: %w", value, err)
	}
	return color.RGBA{R: uint8(n >> 16), G: uint8(n >> 8), B: uint8(n), A: 0xff}, nil
}

// Overlay returns img with a ring and crosshair centred on at. A nil at
// returns img itself, untouched. Otherwise img is never modified: the marker
// is drawn on a copy. Centres outside the frame are clamped to the nearest
// edge pixel.
func Overlay(img image.Image, at *image.Point, style Style) image.Image {
	if at == nil || img == nil {
		return img
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return img
	}
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, img, bounds.Min, draw.Src)

	center := Clamp(*at, bounds)
	radius := max(style.Radius, 1)
	width := max(style.LineWidth, 1)
	c := style.Color

	drawRing(out, center, radius, width, c)
	arm := radius + radius/2
	half := width / 2
	// Horizontal and vertical bars stop short of the centre so the target
	// pixel stays visible.
	gap := max(radius/4, 2)
	fillRect(out, image.Rect(center.X-arm, center.Y-half, center.X-gap, center.Y-half+width), c)
	fillRect(out, image.Rect(center.X+gap+1, center.Y-half, center.X+arm+1, center.Y-half+width), c)
	fillRect(out, image.Rect(center.X-half, center.Y-arm, center.X-half+width, center.Y-gap), c)
	fillRect(out, image.Rect(center.X-half, center.Y+gap+1, center.X-half+width, center.Y+arm+1), c)
	return out
}

// Clamp moves p into bounds.
func Clamp(p image.Point, bounds image.Rectangle) image.Point {
	return image.Pt(
		min(max(p.X, bounds.Min.X), bounds.Max.X-1),
		min(max(p.Y, bounds.Min.Y), bounds.Max.Y-1),
	)
}

func drawRing(dst *image.RGBA, center image.Point, radius, width int, c color.RGBA) {
	outer := radius * radius
	innerRadius := max(radius-width, 0)
	inner := innerRadius * innerRadius
	rect := image.Rect(center.X-radius, center.Y-radius, center.X+radius+1, center.Y+radius+1).Intersect(dst.Bounds())
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		dy := y - center.Y
		for x := rect.Min.X; x < rect.Max.X; x++ {
			dx := x - center.X
			d := dx*dx + dy*dy
			if d <= outer && d > inner {
				dst.SetRGBA(x, y, c)
			}
		}
	}
}

func fillRect(dst *image.RGBA, r image.Rectangle, c color.RGBA) {
	r = r.Intersect(dst.Bounds())
	if r.Empty() {
		return
	}
	draw.Draw(dst, r, image.NewUniform(c), image.Point{}, draw.Src)
}
