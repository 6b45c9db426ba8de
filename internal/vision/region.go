// Package vision owns the camera-facing side of the pipeline: reading
// frames, deciding when a frame is interesting enough to classify, and
// saving the triggering frame to disk.
package vision

import (
	"image"
	"math"
)

// CenterRegion returns the rectangle covering the central portion of a
// frame. widthFrac and heightFrac are the fractions of each dimension
// the region spans, clamped to (0, 1].
func CenterRegion(frameWidth, frameHeight int, widthFrac, heightFrac float64) image.Rectangle {
	widthFrac = clampFrac(widthFrac)
	heightFrac = clampFrac(heightFrac)

	w := int(float64(frameWidth) * widthFrac)
	h := int(float64(frameHeight) * heightFrac)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	x := (frameWidth - w) / 2
	y := (frameHeight - h) / 2
	return image.Rect(x, y, x+w, y+h)
}

func clampFrac(f float64) float64 {
	if f <= 0 {
		return 1
	}
	if f > 1 {
		return 1
	}
	return f
}

// histCorrelation computes the Pearson correlation between two
// histograms, matching OpenCV's correlation comparison method. Equal
// histograms score 1.0. Two flat histograms score 1.0 so a uniform
// region never reads as a scene change; one flat against one varied
// scores 0.
func histCorrelation(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	n := float64(len(a))
	var meanA, meanB float64
	for i := range a {
		meanA += float64(a[i])
		meanB += float64(b[i])
	}
	meanA /= n
	meanB /= n

	var num, varA, varB float64
	for i := range a {
		da := float64(a[i]) - meanA
		db := float64(b[i]) - meanB
		num += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 && varB == 0 {
		return 1
	}
	if varA == 0 || varB == 0 {
		return 0
	}
	return num / math.Sqrt(varA*varB)
}
