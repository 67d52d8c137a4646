package bbox

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Area returns the area of a box in xyxy format, zero for degenerate boxes
func Area(box []float64) float64 {
	return math.Max(0, box[2]-box[0]) * math.Max(0, box[3]-box[1])
}

// IoU works out the Intersection over Union of two boxes in xyxy format.
// Coordinates are treated as continuous, so boxes that only share an edge
// have an IoU of zero.
func IoU(a, b []float64) float64 {

	w := math.Min(a[2], b[2]) - math.Max(a[0], b[0])
	h := math.Min(a[3], b[3]) - math.Max(a[1], b[1])

	if w <= 0 || h <= 0 {
		return 0
	}

	intersection := w * h
	union := Area(a) + Area(b) - intersection

	if union <= 0 {
		return 0
	}

	return intersection / union
}

// IoUMatrix returns the pairwise IoU of boxes a and b in xyxy format as a
// len(a) x len(b) matrix.  Returns nil when either set is empty.
func IoUMatrix(a, b [][]float64) *mat.Dense {

	if len(a) == 0 || len(b) == 0 {
		return nil
	}

	m := mat.NewDense(len(a), len(b), nil)

	for i, boxA := range a {
		for j, boxB := range b {
			m.Set(i, j, IoU(boxA, boxB))
		}
	}

	return m
}
