// Package coco implements the COCO mean average precision metric for object
// detection.
//
// Rather than storing every prediction, MeanAveragePrecision discretizes
// confidence scores into a fixed number of buckets and keeps true and false
// positive counts per IoU threshold, class and bucket.  The precision recall
// curve is then rebuilt from the bucket counts, with every prediction in a
// bucket treated as having the same confidence.  Increasing the number of
// buckets brings the result closer to ExactAveragePrecision, memory and the
// runtime of Update and Result grow linearly with it.
//
// Boxes are read from tensors of shape [batch, num_boxes, fields] in xyxy
// format, ground truth rows are [left, top, right, bottom, class] and
// prediction rows are [left, top, right, bottom, class, confidence].  Use
// bbox.Convert to bring other formats into xyxy first.
package coco

import (
	"math"

	"github.com/swdee/go-cvmetrics"
)

// MeanAveragePrecision accumulates bucketed match statistics across calls to
// Update.  It is not safe for concurrent use.
type MeanAveragePrecision struct {
	classIDs []int
	classes  map[int]int
	settings settings
	// truePositives and falsePositives are indexed by
	// [IoU threshold][class][bucket]
	truePositives  [][][]float64
	falsePositives [][][]float64
	// groundTruths counts ground truth boxes per class
	groundTruths []float64
}

// NewMeanAveragePrecision creates a metric evaluating the given class IDs
func NewMeanAveragePrecision(classIDs []int, opts ...Option) (*MeanAveragePrecision, error) {

	classes, err := classIndex(classIDs)

	if err != nil {
		return nil, err
	}

	s, err := newSettings(opts)

	if err != nil {
		return nil, err
	}

	m := &MeanAveragePrecision{
		classIDs: append([]int(nil), classIDs...),
		classes:  classes,
		settings: s,
	}

	m.Reset()
	return m, nil
}

// Update matches a batch of predictions against ground truth and adds the
// outcome to the bucket counts.  yTrue has shape [batch, num_boxes, 5+] and
// yPred [batch, num_boxes, 6+], both in xyxy format.  Padding rows, empty
// batches and classes not being evaluated are ignored.
func (m *MeanAveragePrecision) Update(yTrue, yPred *cvmetrics.Tensor) error {

	gt, pred, err := readBatch(yTrue, yPred)

	if err != nil {
		return err
	}

	for i := range gt {
		m.settings.evaluateImage(m.classes, gt[i], pred[i], m)
	}

	return nil
}

// Result integrates the precision recall curves from the bucket counts
func (m *MeanAveragePrecision) Result() Result {

	numBuckets := m.settings.numBuckets

	return m.settings.summarize(m.classIDs, m.groundTruths, func(t, c int) ([]float64, []float64) {

		tpBuckets := m.truePositives[t][c]
		fpBuckets := m.falsePositives[t][c]

		var tp, fp []float64

		// highest confidence bucket first, every non empty bucket is one
		// point on the curve
		for b := numBuckets - 1; b >= 0; b-- {
			if tpBuckets[b] == 0 && fpBuckets[b] == 0 {
				continue
			}

			tp = append(tp, tpBuckets[b])
			fp = append(fp, fpBuckets[b])
		}

		return tp, fp
	})
}

// Reset clears all accumulated counts
func (m *MeanAveragePrecision) Reset() {

	numThresholds := len(m.settings.iouThresholds)
	numClasses := len(m.classIDs)

	m.truePositives = newBuckets(numThresholds, numClasses, m.settings.numBuckets)
	m.falsePositives = newBuckets(numThresholds, numClasses, m.settings.numBuckets)
	m.groundTruths = make([]float64, numClasses)
}

// NumBuckets returns the number of confidence buckets
func (m *MeanAveragePrecision) NumBuckets() int {
	return m.settings.numBuckets
}

// ClassIDs returns the class IDs evaluated
func (m *MeanAveragePrecision) ClassIDs() []int {
	return append([]int(nil), m.classIDs...)
}

// bucket returns the bucket a confidence score falls into.  Scores are
// clamped to [0, 1], a score on a bucket boundary belongs to the higher
// bucket.
func (m *MeanAveragePrecision) bucket(confidence float64) int {

	n := m.settings.numBuckets

	if math.IsNaN(confidence) || confidence <= 0 {
		return 0
	}

	b := int(math.Floor(confidence * float64(n)))

	if b >= n {
		return n - 1
	}

	return b
}

func (m *MeanAveragePrecision) addGroundTruth(c int, n int) {
	m.groundTruths[c] += float64(n)
}

func (m *MeanAveragePrecision) addDetection(t, c int, confidence float64, truePositive bool) {

	b := m.bucket(confidence)

	if truePositive {
		m.truePositives[t][c][b]++
	} else {
		m.falsePositives[t][c][b]++
	}
}

// newBuckets allocates a zeroed [thresholds][classes][buckets] array backed by
// a single slice
func newBuckets(thresholds, classes, buckets int) [][][]float64 {

	backing := make([]float64, thresholds*classes*buckets)
	out := make([][][]float64, thresholds)

	for t := range out {
		out[t] = make([][]float64, classes)

		for c := range out[t] {
			off := (t*classes + c) * buckets
			out[t][c] = backing[off : off+buckets : off+buckets]
		}
	}

	return out
}
