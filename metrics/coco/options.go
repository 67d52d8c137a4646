package coco

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

const (
	// DefaultNumBuckets is the default number of confidence buckets
	DefaultNumBuckets = 10000
	// DefaultMaxDetections is the default number of predictions kept per image
	// and class
	DefaultMaxDetections = 100
)

// ErrInvalidOption is returned when the metric is configured with values
// outside their valid range
var ErrInvalidOption = errors.New("invalid metric option")

// settings holds the configuration shared by the bucketed and exact metrics
type settings struct {
	numBuckets       int
	iouThresholds    []float64
	recallThresholds []float64
	maxDetections    int
	areaMin          float64
	areaMax          float64
}

// Option configures the metric
type Option func(*settings)

// defaultSettings returns the COCO evaluation defaults, IoU thresholds
// 0.50:0.05:0.95 and 101 recall points 0.00:0.01:1.00
func defaultSettings() settings {

	iou := make([]float64, 10)

	for i := range iou {
		iou[i] = float64(50+5*i) / 100
	}

	recall := make([]float64, 101)

	for i := range recall {
		recall[i] = float64(i) / 100
	}

	return settings{
		numBuckets:       DefaultNumBuckets,
		iouThresholds:    iou,
		recallThresholds: recall,
		maxDetections:    DefaultMaxDetections,
		areaMin:          0,
		areaMax:          math.Inf(1),
	}
}

// WithNumBuckets sets the number of buckets confidence scores are discretized
// into.  More buckets give a closer approximation of the exact average
// precision at the cost of memory and runtime that grow linearly.
func WithNumBuckets(n int) Option {
	return func(s *settings) {
		s.numBuckets = n
	}
}

// WithIoUThresholds sets the IoU thresholds a prediction must reach to be
// matched to a ground truth box
func WithIoUThresholds(thresholds []float64) Option {
	return func(s *settings) {
		s.iouThresholds = append([]float64(nil), thresholds...)
	}
}

// WithRecallThresholds sets the recall points precision is sampled at
func WithRecallThresholds(thresholds []float64) Option {
	return func(s *settings) {
		s.recallThresholds = append([]float64(nil), thresholds...)
		sort.Float64s(s.recallThresholds)
	}
}

// WithMaxDetections sets the number of most confident predictions kept per
// image and class
func WithMaxDetections(n int) Option {
	return func(s *settings) {
		s.maxDetections = n
	}
}

// WithAreaRange restricts evaluation to boxes whose area is within [min, max]
func WithAreaRange(min, max float64) Option {
	return func(s *settings) {
		s.areaMin = min
		s.areaMax = max
	}
}

// validate checks settings are usable
func (s *settings) validate() error {

	if s.numBuckets < 1 {
		return fmt.Errorf("%w: number of buckets must be at least 1, got %d",
			ErrInvalidOption, s.numBuckets)
	}

	if len(s.iouThresholds) == 0 {
		return fmt.Errorf("%w: no IoU thresholds", ErrInvalidOption)
	}

	for _, t := range s.iouThresholds {
		if !(t > 0 && t <= 1) {
			return fmt.Errorf("%w: IoU threshold %v outside (0, 1]", ErrInvalidOption, t)
		}
	}

	if len(s.recallThresholds) == 0 {
		return fmt.Errorf("%w: no recall thresholds", ErrInvalidOption)
	}

	for _, r := range s.recallThresholds {
		if !(r >= 0 && r <= 1) {
			return fmt.Errorf("%w: recall threshold %v outside [0, 1]", ErrInvalidOption, r)
		}
	}

	if s.maxDetections < 1 {
		return fmt.Errorf("%w: max detections must be at least 1, got %d",
			ErrInvalidOption, s.maxDetections)
	}

	if s.areaMin < 0 || s.areaMax < s.areaMin || math.IsNaN(s.areaMax) {
		return fmt.Errorf("%w: invalid area range [%v, %v]", ErrInvalidOption,
			s.areaMin, s.areaMax)
	}

	return nil
}

// newSettings applies opts over the defaults
func newSettings(opts []Option) (settings, error) {

	s := defaultSettings()

	for _, opt := range opts {
		opt(&s)
	}

	return s, s.validate()
}

// classIndex maps class IDs to their position in classIDs
func classIndex(classIDs []int) (map[int]int, error) {

	if len(classIDs) == 0 {
		return nil, fmt.Errorf("%w: no class IDs", ErrInvalidOption)
	}

	index := make(map[int]int, len(classIDs))

	for i, id := range classIDs {
		if _, exists := index[id]; exists {
			return nil, fmt.Errorf("%w: duplicate class ID %d", ErrInvalidOption, id)
		}

		index[id] = i
	}

	return index, nil
}
