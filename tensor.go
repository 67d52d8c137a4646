package cvmetrics

import (
	"errors"
	"fmt"
)

// PadValue is the value used to fill unused rows of a fixed size box batch.
// A box row with a negative class ID is treated as padding.
const PadValue = -1

// ErrShapeMismatch is returned when tensor dimensions do not agree
var ErrShapeMismatch = errors.New("shape mismatch")

// Tensor is a dense row-major multi-dimensional array of numbers.  Boxes are
// held in tensors of shape [batch, num_boxes, fields] where each row along
// the last axis is a single box record.
type Tensor struct {
	shape []int
	data  []float64
	dtype DType
}

// NewTensor creates a Tensor of the given shape backed by data.  The Tensor
// takes ownership of data and rounds it in place to the dtype precision.
func NewTensor(shape []int, data []float64, dtype DType) (*Tensor, error) {

	size, err := shapeSize(shape)

	if err != nil {
		return nil, err
	}

	if len(data) != size {
		return nil, fmt.Errorf("%w: shape %v needs %d values, got %d",
			ErrShapeMismatch, shape, size, len(data))
	}

	t := &Tensor{
		shape: append([]int(nil), shape...),
		data:  data,
		dtype: dtype,
	}

	t.Round()
	return t, nil
}

// Full creates a Tensor of the given shape with every element set to value
func Full(shape []int, value float64, dtype DType) (*Tensor, error) {

	size, err := shapeSize(shape)

	if err != nil {
		return nil, err
	}

	data := make([]float64, size)

	for i := range data {
		data[i] = value
	}

	return NewTensor(shape, data, dtype)
}

// FromRows creates a 2D Tensor of shape [len(rows), fields].  All rows must
// have the same number of fields.
func FromRows(rows [][]float64, dtype DType) (*Tensor, error) {

	if len(rows) == 0 {
		return NewTensor([]int{0, 0}, nil, dtype)
	}

	fields := len(rows[0])
	data := make([]float64, 0, len(rows)*fields)

	for i, row := range rows {
		if len(row) != fields {
			return nil, fmt.Errorf("%w: row %d has %d fields, expected %d",
				ErrShapeMismatch, i, len(row), fields)
		}

		data = append(data, row...)
	}

	return NewTensor([]int{len(rows), fields}, data, dtype)
}

// FromBatch creates a 3D Tensor of shape [len(batch), num_boxes, fields] where
// num_boxes is the largest number of rows of any batch element.  Shorter
// batch elements are filled with PadValue.
func FromBatch(batch [][][]float64, fields int, dtype DType) (*Tensor, error) {

	numBoxes := 0

	for _, rows := range batch {
		if len(rows) > numBoxes {
			numBoxes = len(rows)
		}
	}

	out, err := Full([]int{len(batch), numBoxes, fields}, PadValue, dtype)

	if err != nil {
		return nil, err
	}

	for b, rows := range batch {
		for n, row := range rows {
			if len(row) != fields {
				return nil, fmt.Errorf("%w: batch %d row %d has %d fields, expected %d",
					ErrShapeMismatch, b, n, len(row), fields)
			}

			copy(out.data[(b*numBoxes+n)*fields:], row)
		}
	}

	out.Round()
	return out, nil
}

// Stack joins tensors of identical shape along a new leading axis
func Stack(tensors []*Tensor) (*Tensor, error) {

	if len(tensors) == 0 {
		return nil, fmt.Errorf("%w: no tensors to stack", ErrShapeMismatch)
	}

	first := tensors[0]
	data := make([]float64, 0, len(tensors)*len(first.data))

	for i, t := range tensors {
		if !sameShape(t.shape, first.shape) {
			return nil, fmt.Errorf("%w: tensor %d has shape %v, expected %v",
				ErrShapeMismatch, i, t.shape, first.shape)
		}

		data = append(data, t.data...)
	}

	shape := append([]int{len(tensors)}, first.shape...)

	return NewTensor(shape, data, first.dtype)
}

// Shape returns a copy of the tensor dimensions
func (t *Tensor) Shape() []int {
	return append([]int(nil), t.shape...)
}

// Rank returns the number of dimensions
func (t *Tensor) Rank() int {
	return len(t.shape)
}

// Dim returns the size of dimension i.  Negative values count from the last
// dimension.
func (t *Tensor) Dim(i int) int {
	if i < 0 {
		i += len(t.shape)
	}
	return t.shape[i]
}

// Len returns the total number of elements
func (t *Tensor) Len() int {
	return len(t.data)
}

// DType returns the precision of the tensor
func (t *Tensor) DType() DType {
	return t.dtype
}

// Data returns the backing slice of the tensor.  Callers that modify it
// should call Round afterwards.
func (t *Tensor) Data() []float64 {
	return t.data
}

// NumRows returns the number of rows along the last axis
func (t *Tensor) NumRows() int {

	if len(t.shape) == 0 {
		return 1
	}

	last := t.shape[len(t.shape)-1]

	if last == 0 {
		return 0
	}

	return len(t.data) / last
}

// Row returns row i along the last axis as a slice sharing the tensor memory
func (t *Tensor) Row(i int) []float64 {

	if len(t.shape) == 0 {
		return t.data
	}

	last := t.shape[len(t.shape)-1]
	return t.data[i*last : (i+1)*last : (i+1)*last]
}

// Rows returns all rows along the last axis
func (t *Tensor) Rows() [][]float64 {

	n := t.NumRows()
	rows := make([][]float64, n)

	for i := 0; i < n; i++ {
		rows[i] = t.Row(i)
	}

	return rows
}

// Index returns the sub-tensor at position i of the leading axis.  The result
// shares memory with t.
func (t *Tensor) Index(i int) (*Tensor, error) {

	if len(t.shape) == 0 {
		return nil, fmt.Errorf("%w: cannot index a scalar", ErrShapeMismatch)
	}

	if i < 0 || i >= t.shape[0] {
		return nil, fmt.Errorf("index %d out of range [0-%d)", i, t.shape[0])
	}

	stride := 1

	for _, d := range t.shape[1:] {
		stride *= d
	}

	return &Tensor{
		shape: append([]int(nil), t.shape[1:]...),
		data:  t.data[i*stride : (i+1)*stride : (i+1)*stride],
		dtype: t.dtype,
	}, nil
}

// At returns the element at the given index
func (t *Tensor) At(idx ...int) float64 {
	return t.data[t.offset(idx)]
}

// Set stores v, rounded to the tensor dtype, at the given index
func (t *Tensor) Set(v float64, idx ...int) {
	t.data[t.offset(idx)] = t.dtype.Round(v)
}

// Cast returns a copy of the tensor held at the given precision
func (t *Tensor) Cast(dtype DType) *Tensor {

	out := &Tensor{
		shape: append([]int(nil), t.shape...),
		data:  append([]float64(nil), t.data...),
		dtype: dtype,
	}

	out.Round()
	return out
}

// Clone returns a deep copy of the tensor
func (t *Tensor) Clone() *Tensor {
	return t.Cast(t.dtype)
}

// Round rounds every element to the precision of the tensor dtype.  Used
// after arithmetic has been applied to Data() in place.
func (t *Tensor) Round() {

	if t.dtype == Float64 {
		return
	}

	for i, v := range t.data {
		t.data[i] = t.dtype.Round(v)
	}
}

// String returns a summary of the tensor
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(shape=%v, dtype=%s)", t.shape, t.dtype)
}

// offset converts a multi-dimensional index into a position in data
func (t *Tensor) offset(idx []int) int {

	if len(idx) != len(t.shape) {
		panic(fmt.Sprintf("index %v does not match tensor rank %d", idx, len(t.shape)))
	}

	off := 0

	for i, v := range idx {
		if v < 0 || v >= t.shape[i] {
			panic(fmt.Sprintf("index %v out of range for shape %v", idx, t.shape))
		}

		off = off*t.shape[i] + v
	}

	return off
}

// shapeSize returns the number of elements a shape holds
func shapeSize(shape []int) (int, error) {

	size := 1

	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("%w: negative dimension in shape %v", ErrShapeMismatch, shape)
		}
		size *= d
	}

	return size, nil
}

func sameShape(a, b []int) bool {

	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
