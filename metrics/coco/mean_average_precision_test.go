package coco

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/swdee/go-cvmetrics"
)

func batchTensor(t *testing.T, batch [][][]float64, fields int) *cvmetrics.Tensor {
	t.Helper()
	tn, err := cvmetrics.FromBatch(batch, fields, cvmetrics.Float64)
	require.NoError(t, err)
	return tn
}

func newMetric(t *testing.T, classIDs []int, opts ...Option) *MeanAveragePrecision {
	t.Helper()
	m, err := NewMeanAveragePrecision(classIDs, opts...)
	require.NoError(t, err)
	return m
}

func TestPerfectPredictions(t *testing.T) {

	yTrue := batchTensor(t, [][][]float64{
		{{0, 0, 100, 100, 0}, {200, 200, 300, 300, 1}},
		{{50, 50, 150, 150, 1}},
	}, 5)

	yPred := batchTensor(t, [][][]float64{
		{{0, 0, 100, 100, 0, 0.9}, {200, 200, 300, 300, 1, 0.8}},
		{{50, 50, 150, 150, 1, 0.7}},
	}, 6)

	m := newMetric(t, []int{0, 1})
	require.NoError(t, m.Update(yTrue, yPred))

	res := m.Result()
	assert.Equal(t, 2, res.Classes)
	assert.InDelta(t, 1.0, res.MAP, 1e-12)
	assert.InDelta(t, 1.0, res.Recall, 1e-12)
	assert.InDelta(t, 1.0, res.PerClass[0], 1e-12)
	assert.InDelta(t, 1.0, res.PerClass[1], 1e-12)
	assert.Len(t, res.PerThreshold, 10)
	assert.Len(t, res.IoUThresholds, 10)
}

func TestOnlyFalsePositives(t *testing.T) {

	yTrue := batchTensor(t, [][][]float64{{{0, 0, 10, 10, 0}}}, 5)
	yPred := batchTensor(t, [][][]float64{{{500, 500, 510, 510, 0, 0.99}}}, 6)

	m := newMetric(t, []int{0})
	require.NoError(t, m.Update(yTrue, yPred))

	res := m.Result()
	assert.Equal(t, 1, res.Classes)
	assert.Equal(t, 0.0, res.MAP)
	assert.Equal(t, 0.0, res.Recall)
}

func TestClassWithoutGroundTruthExcluded(t *testing.T) {

	yTrue := batchTensor(t, [][][]float64{{{0, 0, 10, 10, 0}}}, 5)
	yPred := batchTensor(t, [][][]float64{{
		{0, 0, 10, 10, 0, 0.9},
		// class 2 has no ground truth so this false positive has no effect
		{40, 40, 50, 50, 2, 0.95},
	}}, 6)

	m := newMetric(t, []int{0, 1, 2})
	require.NoError(t, m.Update(yTrue, yPred))

	res := m.Result()
	assert.Equal(t, 1, res.Classes)
	assert.InDelta(t, 1.0, res.MAP, 1e-12)

	_, ok := res.PerClass[1]
	assert.False(t, ok)
	_, ok = res.PerClass[2]
	assert.False(t, ok)
}

func TestEmptyUpdateIsNoOp(t *testing.T) {

	m := newMetric(t, []int{0})

	require.NoError(t, m.Update(nil, nil))

	empty, err := cvmetrics.Full([]int{0, 25, 6}, cvmetrics.PadValue, cvmetrics.Float32)
	require.NoError(t, err)
	require.NoError(t, m.Update(empty, empty))

	res := m.Result()
	assert.Equal(t, 0, res.Classes)
	assert.Equal(t, 0.0, res.MAP)

	yTrue := batchTensor(t, [][][]float64{{{0, 0, 10, 10, 0}}}, 5)
	yPred := batchTensor(t, [][][]float64{{{0, 0, 10, 10, 0, 0.5}}}, 6)
	require.NoError(t, m.Update(yTrue, yPred))
	before := m.Result()

	// a batch holding only padding rows, both -1 filled and zero filled
	padded, err := cvmetrics.Full([]int{2, 4, 6}, cvmetrics.PadValue, cvmetrics.Float32)
	require.NoError(t, err)
	zeroed, err := cvmetrics.Full([]int{2, 4, 6}, 0, cvmetrics.Float32)
	require.NoError(t, err)

	require.NoError(t, m.Update(padded, zeroed))
	assert.Equal(t, before, m.Result())
}

func TestReset(t *testing.T) {

	yTrue := batchTensor(t, [][][]float64{{{0, 0, 10, 10, 0}}}, 5)
	yPred := batchTensor(t, [][][]float64{{{0, 0, 10, 10, 0, 0.5}}}, 6)

	m := newMetric(t, []int{0})
	require.NoError(t, m.Update(yTrue, yPred))
	assert.Equal(t, 1, m.Result().Classes)

	m.Reset()

	res := m.Result()
	assert.Equal(t, 0, res.Classes)
	assert.Equal(t, 0.0, res.MAP)
}

func TestPartialRecall(t *testing.T) {

	// two ground truth boxes, one found
	yTrue := batchTensor(t, [][][]float64{{{0, 0, 10, 10, 0}, {50, 50, 60, 60, 0}}}, 5)
	yPred := batchTensor(t, [][][]float64{{{0, 0, 10, 10, 0, 0.9}}}, 6)

	m := newMetric(t, []int{0})
	require.NoError(t, m.Update(yTrue, yPred))

	res := m.Result()
	// precision 1 is reached for recall thresholds 0.00 to 0.50
	assert.InDelta(t, 51.0/101.0, res.MAP, 1e-12)
	assert.InDelta(t, 0.5, res.Recall, 1e-12)
}

func TestIoUThresholds(t *testing.T) {

	yTrue := batchTensor(t, [][][]float64{{{0, 0, 10, 10, 0}}}, 5)
	// IoU with the ground truth is 0.6
	yPred := batchTensor(t, [][][]float64{{{0, 0, 10, 6, 0, 0.9}}}, 6)

	m := newMetric(t, []int{0}, WithIoUThresholds([]float64{0.5, 0.75}))
	require.NoError(t, m.Update(yTrue, yPred))

	res := m.Result()
	if diff := cmp.Diff([]float64{1, 0}, res.PerThreshold, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("per threshold mismatch (-want +got):\n%s", diff)
	}
	assert.InDelta(t, 0.5, res.MAP, 1e-12)
}

func TestDuplicatePredictionIsFalsePositive(t *testing.T) {

	yTrue := batchTensor(t, [][][]float64{{{0, 0, 10, 10, 0}}}, 5)
	yPred := batchTensor(t, [][][]float64{{
		{0, 0, 10, 10, 0, 0.8},
		{0, 0, 10, 10, 0, 0.9},
	}}, 6)

	m := newMetric(t, []int{0}, WithIoUThresholds([]float64{0.5}))
	require.NoError(t, m.Update(yTrue, yPred))

	// the most confident duplicate takes the match, the later false positive
	// arrives after full recall and does not lower precision
	assert.InDelta(t, 1.0, m.Result().MAP, 1e-12)

	res, err := ExactAveragePrecision(yTrue, yPred, []int{0}, WithIoUThresholds([]float64{0.5}))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.MAP, 1e-12)
}

func TestGreedyMatch(t *testing.T) {

	ious := mat.NewDense(3, 2, []float64{
		0.9, 0.8,
		0.95, 0.0,
		0.6, 0.7,
	})

	assert.Equal(t, []bool{true, false, true}, greedyMatch(ious, 3, 0.5))
	assert.Equal(t, []bool{true, false, false}, greedyMatch(ious, 3, 0.85))
	assert.Equal(t, []bool{false, false}, greedyMatch(nil, 2, 0.5))
}

func TestMaxDetections(t *testing.T) {

	yTrue := batchTensor(t, [][][]float64{{{0, 0, 10, 10, 0}, {50, 50, 60, 60, 0}}}, 5)
	yPred := batchTensor(t, [][][]float64{{
		{50, 50, 60, 60, 0, 0.8},
		{0, 0, 10, 10, 0, 0.9},
	}}, 6)

	m := newMetric(t, []int{0}, WithMaxDetections(1))
	require.NoError(t, m.Update(yTrue, yPred))

	assert.InDelta(t, 51.0/101.0, m.Result().MAP, 1e-12)
}

func TestMaxDetectionsPerClass(t *testing.T) {

	yTrue := batchTensor(t, [][][]float64{{{0, 0, 10, 10, 0}, {50, 50, 60, 60, 1}}}, 5)
	yPred := batchTensor(t, [][][]float64{{
		{0, 0, 10, 10, 0, 0.9},
		{50, 50, 60, 60, 1, 0.8},
	}}, 6)

	// each class keeps its own most confident prediction
	m := newMetric(t, []int{0, 1}, WithMaxDetections(1))
	require.NoError(t, m.Update(yTrue, yPred))

	res := m.Result()
	assert.InDelta(t, 1.0, res.MAP, 1e-12)
	assert.InDelta(t, 1.0, res.PerClass[0], 1e-12)
	assert.InDelta(t, 1.0, res.PerClass[1], 1e-12)

	exact, err := ExactAveragePrecision(yTrue, yPred, []int{0, 1}, WithMaxDetections(1))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, exact.MAP, 1e-12)
}

func TestMaxDetectionsIgnoresUnevaluatedClasses(t *testing.T) {

	yTrue := batchTensor(t, [][][]float64{{{0, 0, 10, 10, 0}}}, 5)
	yPred := batchTensor(t, [][][]float64{{
		{20, 20, 30, 30, 7, 0.99},
		{0, 0, 10, 10, 0, 0.9},
	}}, 6)

	m := newMetric(t, []int{0}, WithMaxDetections(1))
	require.NoError(t, m.Update(yTrue, yPred))

	res := m.Result()
	assert.Equal(t, 1, res.Classes)
	assert.InDelta(t, 1.0, res.MAP, 1e-12)
}

func TestAreaRange(t *testing.T) {

	yTrue := batchTensor(t, [][][]float64{{{0, 0, 5, 5, 0}, {100, 100, 200, 200, 0}}}, 5)
	yPred := batchTensor(t, [][][]float64{{{0, 0, 5, 5, 0, 0.9}}}, 6)

	all := newMetric(t, []int{0})
	require.NoError(t, all.Update(yTrue, yPred))
	assert.InDelta(t, 51.0/101.0, all.Result().MAP, 1e-12)

	small := newMetric(t, []int{0}, WithAreaRange(0, 1000))
	require.NoError(t, small.Update(yTrue, yPred))
	assert.InDelta(t, 1.0, small.Result().MAP, 1e-12)
}

func TestUpdateAccumulates(t *testing.T) {

	gtA := [][]float64{{0, 0, 10, 10, 0}, {20, 20, 40, 40, 1}}
	gtB := [][]float64{{5, 5, 25, 25, 0}}
	predA := [][]float64{{0, 0, 10, 10, 0, 0.6}, {20, 20, 38, 40, 1, 0.4}, {60, 60, 70, 70, 0, 0.7}}
	predB := [][]float64{{5, 5, 25, 24, 0, 0.3}}

	once := newMetric(t, []int{0, 1})
	require.NoError(t, once.Update(
		batchTensor(t, [][][]float64{gtA, gtB}, 5),
		batchTensor(t, [][][]float64{predA, predB}, 6)))

	split := newMetric(t, []int{0, 1})
	require.NoError(t, split.Update(
		batchTensor(t, [][][]float64{gtA}, 5),
		batchTensor(t, [][][]float64{predA}, 6)))
	require.NoError(t, split.Update(
		batchTensor(t, [][][]float64{gtB}, 5),
		batchTensor(t, [][][]float64{predB}, 6)))

	if diff := cmp.Diff(once.Result(), split.Result(), cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("result mismatch (-once +split):\n%s", diff)
	}
}

// convergenceData builds a batch where every prediction has a distinct
// confidence at least 0.004 apart
func convergenceData(t *testing.T) (*cvmetrics.Tensor, *cvmetrics.Tensor) {
	t.Helper()

	var gt, pred [][][]float64

	k := 0

	for i := 0; i < 10; i++ {

		class := float64(i % 3)
		off := float64(i * 10)

		gt = append(gt, [][]float64{
			{off, off, off + 100, off + 100, class},
			{off + 300, off, off + 400, off + 100, class},
		})

		// one near exact match, one loose match and one false positive
		near := []float64{off + 1, off, off + 101, off + 100, class, 0.99 - 0.004*float64(k)}
		loose := []float64{off + 320, off, off + 420, off + 100, class, 0.9 - 0.004*float64(k)}
		miss := []float64{off + 700, off + 700, off + 750, off + 750, class, 0.95 - 0.004*float64(k)}

		pred = append(pred, [][]float64{near, loose, miss})
		k++
	}

	return batchTensor(t, gt, 5), batchTensor(t, pred, 6)
}

func TestBucketConvergence(t *testing.T) {

	yTrue, yPred := convergenceData(t)
	classIDs := []int{0, 1, 2}

	exact, err := ExactAveragePrecision(yTrue, yPred, classIDs)
	require.NoError(t, err)
	require.Equal(t, 3, exact.Classes)

	errorFor := func(buckets int) float64 {
		m := newMetric(t, classIDs, WithNumBuckets(buckets))
		require.NoError(t, m.Update(yTrue, yPred))
		return math.Abs(m.Result().MAP - exact.MAP)
	}

	coarse := errorFor(1)
	fine := errorFor(1000)
	finest := errorFor(10000)

	// one bucket merges every prediction into a single curve point
	assert.Greater(t, coarse, 0.01)
	assert.LessOrEqual(t, coarse, 1.0)

	// once buckets separate every distinct confidence the result is exact
	assert.InDelta(t, 0, fine, 1e-12)
	assert.InDelta(t, 0, finest, 1e-12)
	assert.LessOrEqual(t, finest, errorFor(10))
}

func TestBucketIndex(t *testing.T) {

	m := newMetric(t, []int{0}, WithNumBuckets(10))

	tests := []struct {
		confidence float64
		expected   int
	}{
		{0, 0},
		{0.05, 0},
		{0.1, 1},
		{0.55, 5},
		{0.999, 9},
		{1, 9},
		{1.5, 9},
		{-0.5, 0},
		{math.NaN(), 0},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.expected, m.bucket(tc.confidence), "confidence %v", tc.confidence)
	}
}

func TestAveragePrecision(t *testing.T) {

	recall := defaultSettings().recallThresholds

	// a false positive ranked above the only true positive halves precision
	ap, rec := averagePrecision([]float64{0, 1}, []float64{1, 0}, 1, recall)
	assert.InDelta(t, 0.5, ap, 1e-12)
	assert.InDelta(t, 1.0, rec, 1e-12)

	// later higher precision lifts earlier points through the envelope
	ap, _ = averagePrecision([]float64{1, 0, 1}, []float64{0, 1, 0}, 2, recall)
	assert.InDelta(t, (51*1.0+50*(2.0/3.0))/101, ap, 1e-12)

	ap, rec = averagePrecision(nil, nil, 3, recall)
	assert.Equal(t, 0.0, ap)
	assert.Equal(t, 0.0, rec)
}

func TestInvalidOptions(t *testing.T) {

	tests := []struct {
		name     string
		classIDs []int
		opts     []Option
	}{
		{"no classes", nil, nil},
		{"duplicate classes", []int{1, 1}, nil},
		{"zero buckets", []int{0}, []Option{WithNumBuckets(0)}},
		{"zero iou threshold", []int{0}, []Option{WithIoUThresholds([]float64{0})}},
		{"no iou thresholds", []int{0}, []Option{WithIoUThresholds(nil)}},
		{"recall above one", []int{0}, []Option{WithRecallThresholds([]float64{1.5})}},
		{"zero max detections", []int{0}, []Option{WithMaxDetections(0)}},
		{"inverted area range", []int{0}, []Option{WithAreaRange(10, 5)}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewMeanAveragePrecision(tc.classIDs, tc.opts...)
			assert.True(t, errors.Is(err, ErrInvalidOption))
		})
	}
}

func TestUpdateShapeErrors(t *testing.T) {

	m := newMetric(t, []int{0})

	flat, err := cvmetrics.FromRows([][]float64{{0, 0, 1, 1, 0}}, cvmetrics.Float32)
	require.NoError(t, err)

	err = m.Update(flat, nil)
	assert.True(t, errors.Is(err, cvmetrics.ErrShapeMismatch))

	yTrue := batchTensor(t, [][][]float64{{{0, 0, 10, 10, 0}}, {{0, 0, 10, 10, 0}}}, 5)
	yPred := batchTensor(t, [][][]float64{{{0, 0, 10, 10, 0, 0.5}}}, 6)

	err = m.Update(yTrue, yPred)
	assert.True(t, errors.Is(err, cvmetrics.ErrShapeMismatch))

	// predictions without a confidence column
	err = m.Update(yTrue, yTrue)
	assert.True(t, errors.Is(err, cvmetrics.ErrShapeMismatch))
}

func TestLoadConfig(t *testing.T) {

	dir := t.TempDir()
	file := filepath.Join(dir, "coco.json")
	require.NoError(t, os.WriteFile(file,
		[]byte(`{"num_buckets": 500, "iou_thresholds": [0.5], "max_detections": 10}`), 0644))

	cfg, err := LoadConfig(file)
	require.NoError(t, err)
	require.NotNil(t, cfg.NumBuckets)
	assert.Equal(t, 500, *cfg.NumBuckets)

	m := newMetric(t, []int{0}, WithConfig(cfg))
	assert.Equal(t, 500, m.NumBuckets())
	assert.Equal(t, []float64{0.5}, m.settings.iouThresholds)
	assert.Equal(t, 10, m.settings.maxDetections)
	// omitted fields keep their defaults
	assert.Len(t, m.settings.recallThresholds, 101)

	_, err = LoadConfig(filepath.Join(dir, "coco.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"area_range": [1, 2, 3]}`), 0644))
	_, err = LoadConfig(bad)
	assert.True(t, errors.Is(err, ErrInvalidOption))

	_, err = LoadConfig(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
