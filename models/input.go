// Package models assembles CNN architectures as layer graphs with NHWC shape
// inference and parameter counting.  Graphs are declarative, executing layers
// and loading weights is left to a runtime supplied through WeightsLoader.
package models

import "fmt"

// Unknown marks a dimension whose size is only known at run time
const Unknown = -1

// defaultInputName is the name given to the input layer when the InputSpec
// does not set one
const defaultInputName = "input_1"

// InputSpec describes the image input of a model.  Shape excludes the batch
// dimension and is [height, width, channels] with Unknown for dimensions
// not fixed in advance.
type InputSpec struct {
	Name  string
	Shape []int
}

// ResolveInput returns input when one is supplied, otherwise a new InputSpec
// of the given shape
func ResolveInput(shape []int, input *InputSpec) *InputSpec {

	if input != nil {
		return input
	}

	return &InputSpec{
		Shape: append([]int(nil), shape...),
	}
}

// HasUnknown reports whether any dimension of the shape is Unknown
func HasUnknown(shape []int) bool {

	for _, d := range shape {
		if d == Unknown {
			return true
		}
	}

	return false
}

// shapeString formats a shape with a leading batch dimension, printing
// unknown sizes as None
func shapeString(shape []int) string {

	s := "(None"

	for _, d := range shape {
		if d == Unknown {
			s += ", None"
		} else {
			s += fmt.Sprintf(", %d", d)
		}
	}

	return s + ")"
}
