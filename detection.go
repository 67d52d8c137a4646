package cvmetrics

import (
	"fmt"
	"sort"
)

// BoxRect are the dimensions of the bounding box of a detected object
type BoxRect struct {
	Left   int
	Right  int
	Top    int
	Bottom int
}

// Detection defines the attributes of a single object detected, or of a
// ground truth annotation when Probability is not used
type Detection struct {
	// Class is the line number in the labels file the Model was trained on
	// defining the Class of the detected object
	Class int
	// Box are the bounding box dimensions of the object location
	Box BoxRect
	// Probability is the confidence score of the object detected
	Probability float32
	// ID is a unique ID assigned to the detection result
	ID int64
}

// DetectionsToTensor takes the detection results of a batch of images and
// converts them into a prediction tensor of shape [batch, maxBoxes, 6] with
// rows in xyxy format [left, top, right, bottom, class, confidence].  When an
// image has more than maxBoxes detections only the most confident are kept.
func DetectionsToTensor(images [][]Detection, maxBoxes int, dtype DType) (*Tensor, error) {
	return detectionsToTensor(images, maxBoxes, true, dtype)
}

// GroundTruthToTensor takes the annotations of a batch of images and converts
// them into a ground truth tensor of shape [batch, maxBoxes, 5] with rows in
// xyxy format [left, top, right, bottom, class]
func GroundTruthToTensor(images [][]Detection, maxBoxes int, dtype DType) (*Tensor, error) {
	return detectionsToTensor(images, maxBoxes, false, dtype)
}

func detectionsToTensor(images [][]Detection, maxBoxes int, withConfidence bool,
	dtype DType) (*Tensor, error) {

	if maxBoxes < 0 {
		return nil, fmt.Errorf("maxBoxes must not be negative, got %d", maxBoxes)
	}

	fields := 5

	if withConfidence {
		fields = 6
	}

	out, err := Full([]int{len(images), maxBoxes, fields}, PadValue, dtype)

	if err != nil {
		return nil, err
	}

	for b, dets := range images {

		if len(dets) > maxBoxes {
			if !withConfidence {
				return nil, fmt.Errorf("image %d has %d annotations, more than maxBoxes %d",
					b, len(dets), maxBoxes)
			}

			// keep the most confident detections
			dets = append([]Detection(nil), dets...)
			sort.SliceStable(dets, func(i, j int) bool {
				return dets[i].Probability > dets[j].Probability
			})
			dets = dets[:maxBoxes]
		}

		for n, det := range dets {
			row := out.Row(b*maxBoxes + n)
			row[0] = float64(det.Box.Left)
			row[1] = float64(det.Box.Top)
			row[2] = float64(det.Box.Right)
			row[3] = float64(det.Box.Bottom)
			row[4] = float64(det.Class)

			if withConfidence {
				row[5] = float64(det.Probability)
			}
		}
	}

	out.Round()
	return out, nil
}
