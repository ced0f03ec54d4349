package main

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-east/images"
	"github.com/nvr-ai/go-east/models/postprocess"
)

// paletteSize is the number of distinct hues cycled through by measure ID.
const paletteSize = 12

// measureColor picks a stable color for a measure ID. gocv converts it to BGR itself.
func measureColor(id int) color.RGBA {
	hue := math.Mod(float64(id)*360/paletteSize, 360)
	r, g, b := colorful.Hsv(hue, 0.9, 1).Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// cornerPoints rounds a polygon to pixel coordinates.
func cornerPoints(polygon [4]images.Point2f) [4]image.Point {
	var pts [4]image.Point
	for i, p := range polygon {
		pts[i] = image.Pt(int(math.Round(float64(p.X))), int(math.Round(float64(p.Y))))
	}
	return pts
}

// writeAnnotated draws every measure polygon and its ID on img and writes it to path.
func writeAnnotated(path string, img image.Image, measures []postprocess.Measure) error {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return errors.Wrap(err, "failed to convert image")
	}
	defer mat.Close()

	for _, m := range measures {
		c := measureColor(m.ID)
		pts := cornerPoints(m.Polygon)
		for i := range pts {
			gocv.Line(&mat, pts[i], pts[(i+1)%len(pts)], c, 2)
		}
		gocv.PutText(&mat, fmt.Sprintf("%d", m.ID), pts[0], gocv.FontHersheyPlain, 1.2, c, 2)
	}

	if !gocv.IMWrite(path, mat) {
		return errors.Errorf("failed to write %s", path)
	}
	return nil
}
