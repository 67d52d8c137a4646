package coco

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Result holds the average precision computed from accumulated matches
type Result struct {
	// MAP is the mean average precision over IoU thresholds and over the
	// classes that have ground truth boxes
	MAP float64
	// Recall is the mean recall over IoU thresholds and classes using every
	// kept prediction
	Recall float64
	// PerClass is the average precision of each class ID averaged over IoU
	// thresholds.  Classes without ground truth are absent.
	PerClass map[int]float64
	// PerClassRecall is the recall of each class ID averaged over IoU
	// thresholds
	PerClassRecall map[int]float64
	// PerThreshold is the mean average precision at each IoU threshold
	PerThreshold []float64
	// IoUThresholds are the thresholds PerThreshold refers to
	IoUThresholds []float64
	// Classes is the number of classes that contributed to MAP
	Classes int
}

// pointsFunc returns the true and false positive counts of each point on the
// precision recall curve of class index c at IoU threshold index t, ordered
// from most to least confident
type pointsFunc func(t, c int) (tp, fp []float64)

// summarize integrates the precision recall curve of every class and IoU
// threshold into a Result
func (s *settings) summarize(classIDs []int, groundTruths []float64, points pointsFunc) Result {

	res := Result{
		PerClass:       make(map[int]float64),
		PerClassRecall: make(map[int]float64),
		PerThreshold:   make([]float64, len(s.iouThresholds)),
		IoUThresholds:  append([]float64(nil), s.iouThresholds...),
	}

	// classes without ground truth have no defined recall so are left out of
	// the mean rather than counted as zero
	var contributing []int

	for c, n := range groundTruths {
		if n > 0 {
			contributing = append(contributing, c)
		}
	}

	res.Classes = len(contributing)

	if res.Classes == 0 {
		return res
	}

	classAP := make([]float64, len(contributing))
	classRecall := make([]float64, len(contributing))
	thresholdRecall := make([]float64, len(s.iouThresholds))

	aps := make([]float64, len(contributing))
	recalls := make([]float64, len(contributing))

	for t := range s.iouThresholds {
		for i, c := range contributing {
			tp, fp := points(t, c)
			aps[i], recalls[i] = averagePrecision(tp, fp, groundTruths[c], s.recallThresholds)
		}

		res.PerThreshold[t] = stat.Mean(aps, nil)
		thresholdRecall[t] = stat.Mean(recalls, nil)

		floats.Add(classAP, aps)
		floats.Add(classRecall, recalls)
	}

	numThresholds := float64(len(s.iouThresholds))

	for i, c := range contributing {
		res.PerClass[classIDs[c]] = classAP[i] / numThresholds
		res.PerClassRecall[classIDs[c]] = classRecall[i] / numThresholds
	}

	res.MAP = stat.Mean(res.PerThreshold, nil)
	res.Recall = stat.Mean(thresholdRecall, nil)

	return res
}

// averagePrecision integrates a precision recall curve given as true and
// false positive counts per point, most confident point first.
//
// Precision at each point is replaced with the highest precision at any equal
// or greater recall, then sampled at each recall threshold using the first
// point reaching it, or zero when the recall is never reached.  The average
// of the samples is returned along with the final recall.
func averagePrecision(tp, fp []float64, groundTruth float64, recallThresholds []float64) (float64, float64) {

	n := len(tp)

	if n == 0 || groundTruth <= 0 {
		return 0, 0
	}

	tpCum := floats.CumSum(make([]float64, n), tp)
	fpCum := floats.CumSum(make([]float64, n), fp)

	precision := make([]float64, n)
	recall := make([]float64, n)

	for i := 0; i < n; i++ {
		if total := tpCum[i] + fpCum[i]; total > 0 {
			precision[i] = tpCum[i] / total
		}
		recall[i] = tpCum[i] / groundTruth
	}

	for i := n - 2; i >= 0; i-- {
		if precision[i+1] > precision[i] {
			precision[i] = precision[i+1]
		}
	}

	sum := 0.0

	for _, r := range recallThresholds {
		if idx := sort.SearchFloat64s(recall, r); idx < n {
			sum += precision[idx]
		}
	}

	return sum / float64(len(recallThresholds)), recall[n-1]
}
