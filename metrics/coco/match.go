package coco

import (
	"fmt"
	"sort"

	"github.com/swdee/go-cvmetrics"
	"github.com/swdee/go-cvmetrics/bbox"
	"gonum.org/v1/gonum/mat"
)

// box is a single box record read from a tensor
type box struct {
	coords     []float64
	class      int
	confidence float64
}

// recorder receives the outcome of matching one image
type recorder interface {
	// addGroundTruth counts n ground truth boxes of class index c
	addGroundTruth(c int, n int)
	// addDetection records a prediction of class index c at IoU threshold
	// index t as a true or false positive
	addDetection(t, c int, confidence float64, truePositive bool)
}

// readBoxes splits a [batch, num_boxes, fields] tensor into the boxes of each
// image, dropping padding rows
func readBoxes(t *cvmetrics.Tensor, name string, minFields int) ([][]box, error) {

	if t == nil || t.Len() == 0 {
		if t != nil && t.Rank() == 3 {
			return make([][]box, t.Dim(0)), nil
		}
		return nil, nil
	}

	if t.Rank() != 3 {
		return nil, fmt.Errorf("%w: %s should have shape [batch, num_boxes, fields], got %v",
			cvmetrics.ErrShapeMismatch, name, t.Shape())
	}

	if t.Dim(2) < minFields {
		return nil, fmt.Errorf("%w: %s needs at least %d fields per box, got %d",
			cvmetrics.ErrShapeMismatch, name, minFields, t.Dim(2))
	}

	batch, numBoxes := t.Dim(0), t.Dim(1)
	images := make([][]box, batch)

	for b := 0; b < batch; b++ {
		for n := 0; n < numBoxes; n++ {

			row := t.Row(b*numBoxes + n)

			if isPadding(row) {
				continue
			}

			bx := box{
				coords: row[:4],
				class:  int(row[4]),
			}

			if minFields > 5 {
				bx.confidence = row[5]
			}

			images[b] = append(images[b], bx)
		}
	}

	return images, nil
}

// isPadding reports whether a row is filler in a fixed size batch, either
// with a negative class ID or zeroed out
func isPadding(row []float64) bool {

	if row[4] < 0 {
		return true
	}

	for _, v := range row[:5] {
		if v != 0 {
			return false
		}
	}

	return true
}

// readBatch reads ground truth and predictions and checks their batch sizes
// agree
func readBatch(yTrue, yPred *cvmetrics.Tensor) ([][]box, [][]box, error) {

	gt, err := readBoxes(yTrue, "y_true", 5)

	if err != nil {
		return nil, nil, err
	}

	pred, err := readBoxes(yPred, "y_pred", 6)

	if err != nil {
		return nil, nil, err
	}

	switch {
	case len(gt) == 0:
		gt = make([][]box, len(pred))
	case len(pred) == 0:
		pred = make([][]box, len(gt))
	case len(gt) != len(pred):
		return nil, nil, fmt.Errorf("%w: y_true batch size %d does not match y_pred batch size %d",
			cvmetrics.ErrShapeMismatch, len(gt), len(pred))
	}

	return gt, pred, nil
}

// evaluateImage matches the predictions of one image to its ground truth for
// every class and IoU threshold and passes the outcome to rec
func (s *settings) evaluateImage(classes map[int]int, gts, preds []box, rec recorder) {

	gtByClass := groupByClass(classes, s.filterArea(gts))
	predByClass := groupByClass(classes, s.filterArea(preds))

	for c, classGT := range gtByClass {
		rec.addGroundTruth(c, len(classGT))
	}

	for c, classPred := range predByClass {

		// most confident predictions first, keeping at most maxDetections
		// per class
		sort.SliceStable(classPred, func(i, j int) bool {
			return classPred[i].confidence > classPred[j].confidence
		})

		if len(classPred) > s.maxDetections {
			classPred = classPred[:s.maxDetections]
		}

		ious := bbox.IoUMatrix(coordsOf(classPred), coordsOf(gtByClass[c]))

		for t, threshold := range s.iouThresholds {

			matches := greedyMatch(ious, len(classPred), threshold)

			for i, p := range classPred {
				rec.addDetection(t, c, p.confidence, matches[i])
			}
		}
	}
}

// filterArea returns the boxes within the area range.  The returned slice is
// always a copy so callers may reorder it.
func (s *settings) filterArea(boxes []box) []box {

	out := make([]box, 0, len(boxes))

	for _, b := range boxes {
		area := bbox.Area(b.coords)

		if area >= s.areaMin && area <= s.areaMax {
			out = append(out, b)
		}
	}

	return out
}

// groupByClass splits boxes by class index, ignoring classes not evaluated
func groupByClass(classes map[int]int, boxes []box) map[int][]box {

	groups := make(map[int][]box)

	for _, b := range boxes {
		if c, ok := classes[b.class]; ok {
			groups[c] = append(groups[c], b)
		}
	}

	return groups
}

func coordsOf(boxes []box) [][]float64 {

	coords := make([][]float64, len(boxes))

	for i, b := range boxes {
		coords[i] = b.coords
	}

	return coords
}

// greedyMatch assigns each prediction, in order, to the unmatched ground truth
// with the highest IoU at or above threshold.  Returns whether each prediction
// was matched.  ious is a predictions x ground truth matrix, nil when either
// set is empty.
func greedyMatch(ious *mat.Dense, numPred int, threshold float64) []bool {

	matches := make([]bool, numPred)

	if ious == nil {
		return matches
	}

	_, numGT := ious.Dims()
	taken := make([]bool, numGT)

	for i := 0; i < numPred; i++ {

		best := -1
		bestIoU := -1.0

		for j := 0; j < numGT; j++ {

			if taken[j] {
				continue
			}

			if v := ious.At(i, j); v >= threshold && v > bestIoU {
				best = j
				bestIoU = v
			}
		}

		if best >= 0 {
			taken[best] = true
			matches[i] = true
		}
	}

	return matches
}
