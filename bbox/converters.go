package bbox

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/swdee/go-cvmetrics"
)

var (
	// ErrRequiresImages is returned when converting between relative and
	// absolute formats without supplying image sizes
	ErrRequiresImages = errors.New("images must be supplied when transforming between relative and absolute formats")
	// ErrInvalidShape is returned when boxes do not have at least four fields
	// on their last axis
	ErrInvalidShape = errors.New("invalid boxes shape")
	// ErrInvalidImageSize is returned for image sizes that are not positive or
	// that do not line up with the batch of boxes
	ErrInvalidImageSize = errors.New("invalid image size")
)

// ImageSize is the height and width of an image in pixels, used by relative
// formats
type ImageSize struct {
	Height int
	Width  int
}

func (s ImageSize) valid() bool {
	return s.Height > 0 && s.Width > 0
}

// converter transforms the four coordinates of a single box in place
type converter func(box []float64, size ImageSize) error

// toXYXY and fromXYXY are the conversions to and from the xyxy pivot format,
// any source to target conversion is the composition of the two
var (
	toXYXY = [...]converter{
		XYXY:       xyxyNoOp,
		RelXYXY:    relXYXYToXYXY,
		XYWH:       xywhToXYXY,
		CenterXYWH: centerXYWHToXYXY,
	}

	fromXYXY = [...]converter{
		XYXY:       xyxyNoOp,
		RelXYXY:    xyxyToRelXYXY,
		XYWH:       xyxyToXYWH,
		CenterXYWH: xyxyToCenterXYWH,
	}
)

// errMissingImages is raised by the relative converters and reported to the
// caller as ErrRequiresImages with the formats involved
var errMissingImages = errors.New("missing image size")

func xyxyNoOp(box []float64, size ImageSize) error {
	return nil
}

func xywhToXYXY(box []float64, size ImageSize) error {
	box[2] = box[0] + box[2]
	box[3] = box[1] + box[3]
	return nil
}

func centerXYWHToXYXY(box []float64, size ImageSize) error {
	x, y, w, h := box[0], box[1], box[2], box[3]
	box[0] = x - w/2.0
	box[1] = y - h/2.0
	box[2] = x + w/2.0
	box[3] = y + h/2.0
	return nil
}

func relXYXYToXYXY(box []float64, size ImageSize) error {

	if !size.valid() {
		return errMissingImages
	}

	width, height := float64(size.Width), float64(size.Height)
	box[0] *= width
	box[1] *= height
	box[2] *= width
	box[3] *= height
	return nil
}

func xyxyToXYWH(box []float64, size ImageSize) error {
	box[2] = box[2] - box[0]
	box[3] = box[3] - box[1]
	return nil
}

func xyxyToCenterXYWH(box []float64, size ImageSize) error {
	left, top, right, bottom := box[0], box[1], box[2], box[3]
	box[0] = (left + right) / 2.0
	box[1] = (top + bottom) / 2.0
	box[2] = right - left
	box[3] = bottom - top
	return nil
}

func xyxyToRelXYXY(box []float64, size ImageSize) error {

	if !size.valid() {
		return errMissingImages
	}

	width, height := float64(size.Width), float64(size.Height)
	box[0] /= width
	box[1] /= height
	box[2] /= width
	box[3] /= height
	return nil
}

// options holds the settings applied by Option functions
type options struct {
	sizes []ImageSize
	dtype cvmetrics.DType
	err   error
}

// Option configures a conversion
type Option func(*options)

// WithImages supplies the images the boxes belong to.  Only the shape of the
// tensor is used, it must be [batch, height, width, channels] or
// [height, width, channels].  A nil tensor is the same as passing no images.
func WithImages(images *cvmetrics.Tensor) Option {
	return func(o *options) {

		if images == nil {
			return
		}

		switch images.Rank() {
		case 4:
			o.sizes = []ImageSize{{Height: images.Dim(1), Width: images.Dim(2)}}
		case 3:
			o.sizes = []ImageSize{{Height: images.Dim(0), Width: images.Dim(1)}}
		default:
			o.err = fmt.Errorf("%w: images should have shape [batch, height, width, channels], got %v",
				ErrInvalidImageSize, images.Shape())
		}
	}
}

// WithImageSize sets a single image size used for every box
func WithImageSize(height, width int) Option {
	return func(o *options) {
		o.sizes = []ImageSize{{Height: height, Width: width}}
	}
}

// WithImageSizes sets one image size per batch element, for batches of images
// that differ in size.  The number of sizes must match the leading dimension
// of the boxes.
func WithImageSizes(sizes []ImageSize) Option {
	return func(o *options) {
		o.sizes = append([]ImageSize(nil), sizes...)
	}
}

// WithDType sets the precision of the converted boxes, defaults to float32
func WithDType(dtype cvmetrics.DType) Option {
	return func(o *options) {
		o.dtype = dtype
	}
}

// Convert converts boxes from the source format to the target format.  Format
// identifiers are case insensitive, one of "xyxy", "rel_xyxy", "xywh" or
// "center_xywh".
//
// boxes must have at least four fields on the last axis, typically with the
// shape [batch_size, num_boxes, *].  Relative formats require the image size
// to be supplied with WithImages, WithImageSize or WithImageSizes when
// converting to or from an absolute format.
func Convert(boxes *cvmetrics.Tensor, source, target string, opts ...Option) (*cvmetrics.Tensor, error) {

	src, err := parseFormat("source", source)

	if err != nil {
		return nil, err
	}

	tgt, err := parseFormat("target", target)

	if err != nil {
		return nil, err
	}

	return ConvertFormat(boxes, src, tgt, opts...)
}

// ConvertFormat converts boxes between already parsed formats, see Convert.
// The input tensor is not modified.
func ConvertFormat(boxes *cvmetrics.Tensor, source, target Format, opts ...Option) (*cvmetrics.Tensor, error) {

	if !source.valid() {
		return nil, &FormatError{Arg: "source", Value: strconv.Itoa(int(source))}
	}

	if !target.valid() {
		return nil, &FormatError{Arg: "target", Value: strconv.Itoa(int(target))}
	}

	o := options{dtype: cvmetrics.Float32}

	for _, opt := range opts {
		opt(&o)
	}

	if o.err != nil {
		return nil, o.err
	}

	if boxes == nil || boxes.Rank() < 1 || boxes.Dim(-1) < 4 {
		return nil, fmt.Errorf("%w: boxes need at least 4 fields on the last axis", ErrInvalidShape)
	}

	out := boxes.Cast(o.dtype)

	if source == target {
		return out, nil
	}

	sizeOf, err := imageSizeLookup(boxes, o.sizes)

	if err != nil {
		return nil, err
	}

	if len(o.sizes) == 0 && source.IsRelative() != target.IsRelative() {
		return nil, conversionError(source, target, errMissingImages)
	}

	to := toXYXY[source]
	from := fromXYXY[target]

	for i := 0; i < out.NumRows(); i++ {

		row := out.Row(i)
		size := sizeOf(i)

		if err := to(row, size); err != nil {
			return nil, conversionError(source, target, err)
		}

		if err := from(row, size); err != nil {
			return nil, conversionError(source, target, err)
		}
	}

	out.Round()
	return out, nil
}

// conversionError maps a converter failure to the error returned to callers
func conversionError(source, target Format, err error) error {

	if errors.Is(err, errMissingImages) {
		return fmt.Errorf("convert received source=%s, target=%s without images: %w",
			source, target, ErrRequiresImages)
	}

	return fmt.Errorf("convert from %s to %s: %w", source, target, err)
}

// imageSizeLookup returns a function giving the image size for each row of
// boxes
func imageSizeLookup(boxes *cvmetrics.Tensor, sizes []ImageSize) (func(row int) ImageSize, error) {

	for _, s := range sizes {
		if !s.valid() {
			return nil, fmt.Errorf("%w: height and width must be positive, got %dx%d",
				ErrInvalidImageSize, s.Height, s.Width)
		}
	}

	switch len(sizes) {
	case 0:
		return func(int) ImageSize { return ImageSize{} }, nil
	case 1:
		return func(int) ImageSize { return sizes[0] }, nil
	}

	if boxes.Rank() < 3 || boxes.Dim(0) != len(sizes) {
		return nil, fmt.Errorf("%w: %d image sizes given for boxes of shape %v",
			ErrInvalidImageSize, len(sizes), boxes.Shape())
	}

	rowsPerImage := boxes.NumRows() / boxes.Dim(0)

	return func(row int) ImageSize {
		return sizes[row/rowsPerImage]
	}, nil
}
