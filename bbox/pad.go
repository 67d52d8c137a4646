package bbox

import (
	"fmt"

	"github.com/swdee/go-cvmetrics"
)

// PadBatchToShape pads a [num_boxes, fields] tensor with padValue rows up to
// [numBoxes, fields] so that images with differing box counts can be stacked
// into a single batch
func PadBatchToShape(boxes *cvmetrics.Tensor, numBoxes int, padValue float64) (*cvmetrics.Tensor, error) {

	if boxes == nil || boxes.Rank() != 2 {
		return nil, fmt.Errorf("%w: expected boxes of shape [num_boxes, fields]", ErrInvalidShape)
	}

	n, fields := boxes.Dim(0), boxes.Dim(1)

	if n > numBoxes {
		return nil, fmt.Errorf("%w: %d boxes do not fit into %d", ErrInvalidShape, n, numBoxes)
	}

	out, err := cvmetrics.Full([]int{numBoxes, fields}, padValue, boxes.DType())

	if err != nil {
		return nil, err
	}

	copy(out.Data(), boxes.Data())
	return out, nil
}
