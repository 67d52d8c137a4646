package coco

import (
	"sort"

	"github.com/swdee/go-cvmetrics"
)

// scored is a single matched prediction
type scored struct {
	confidence   float64
	truePositive bool
}

// exactRecorder keeps every prediction so the curve can be built from the
// unbucketed confidence scores
type exactRecorder struct {
	groundTruths []float64
	// detections are indexed by [IoU threshold][class]
	detections [][][]scored
}

func (r *exactRecorder) addGroundTruth(c int, n int) {
	r.groundTruths[c] += float64(n)
}

func (r *exactRecorder) addDetection(t, c int, confidence float64, truePositive bool) {
	r.detections[t][c] = append(r.detections[t][c], scored{confidence, truePositive})
}

// points groups predictions with equal confidence into a single point on the
// curve, most confident first
func (r *exactRecorder) points(t, c int) ([]float64, []float64) {

	dets := r.detections[t][c]

	sort.SliceStable(dets, func(i, j int) bool {
		return dets[i].confidence > dets[j].confidence
	})

	var tp, fp []float64

	for i, d := range dets {

		if i == 0 || d.confidence != dets[i-1].confidence {
			tp = append(tp, 0)
			fp = append(fp, 0)
		}

		if d.truePositive {
			tp[len(tp)-1]++
		} else {
			fp[len(fp)-1]++
		}
	}

	return tp, fp
}

// ExactAveragePrecision computes mean average precision from a single batch
// without bucketing confidence scores.  It uses the same matching and
// integration as MeanAveragePrecision and is the value the bucketed metric
// converges to as the number of buckets grows.  WithNumBuckets has no effect.
func ExactAveragePrecision(yTrue, yPred *cvmetrics.Tensor, classIDs []int, opts ...Option) (Result, error) {

	classes, err := classIndex(classIDs)

	if err != nil {
		return Result{}, err
	}

	s, err := newSettings(opts)

	if err != nil {
		return Result{}, err
	}

	gt, pred, err := readBatch(yTrue, yPred)

	if err != nil {
		return Result{}, err
	}

	rec := &exactRecorder{
		groundTruths: make([]float64, len(classIDs)),
		detections:   make([][][]scored, len(s.iouThresholds)),
	}

	for t := range rec.detections {
		rec.detections[t] = make([][]scored, len(classIDs))
	}

	for i := range gt {
		s.evaluateImage(classes, gt[i], pred[i], rec)
	}

	return s.summarize(classIDs, rec.groundTruths, rec.points), nil
}
