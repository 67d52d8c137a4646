/*
go-cvmetrics provides Go building blocks for evaluating object detection
models.  It covers the numeric plumbing that sits around a detector rather than
the detector itself.

The root package holds the Tensor type used to pass fixed size batches of
bounding boxes around, along with helpers to turn detection results and label
files into tensors.

Subpackages:

	bbox          conversion between bounding box formats and IoU utilities
	metrics/coco  COCO mean average precision using bucketed confidences
	models        declarative layer graphs for CNN architectures (DenseNet)
	render        drawing bounding boxes on images

See example code and usage in the example subdirectory.
*/
package cvmetrics
