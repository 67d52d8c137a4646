// Package bbox provides conversion between bounding box formats and utilities
// for working with boxes held in cvmetrics tensors.
//
// Boxes are rows along the last axis of a tensor.  The first four fields of a
// row are the box coordinates, any further fields (class ID, confidence, etc)
// are carried through every operation untouched.  The package uses the xyxy
// (corners) format internally, which is [left, top, right, bottom].
package bbox

import (
	"errors"
	"fmt"
	"strings"
)

// Format identifies a bounding box coordinate convention
type Format int

const (
	// XYXY is [left, top, right, bottom] in absolute pixels, also known as
	// corners format
	XYXY Format = iota
	// RelXYXY is XYXY with x coordinates divided by the image width and y
	// coordinates divided by the image height
	RelXYXY
	// XYWH is [left, top, width, height] in absolute pixels
	XYWH
	// CenterXYWH is [center x, center y, width, height] in absolute pixels
	CenterXYWH
)

var formatNames = [...]string{
	XYXY:       "xyxy",
	RelXYXY:    "rel_xyxy",
	XYWH:       "xywh",
	CenterXYWH: "center_xywh",
}

// ErrInvalidFormat is returned when a format identifier is not one of the
// supported formats
var ErrInvalidFormat = errors.New("unsupported bounding box format")

// FormatError describes an unrecognised format identifier
type FormatError struct {
	// Arg is the argument the format was given for, eg: source or target
	Arg string
	// Value is the format identifier received
	Value string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s for the argument `%s`, should be one of [%s], got %s=%q",
		ErrInvalidFormat, e.Arg, strings.Join(formatNames[:], " "), e.Arg, e.Value)
}

// Unwrap allows errors.Is(err, ErrInvalidFormat)
func (e *FormatError) Unwrap() error {
	return ErrInvalidFormat
}

// Formats returns all supported formats
func Formats() []Format {
	return []Format{XYXY, RelXYXY, XYWH, CenterXYWH}
}

// ParseFormat returns the Format for the given identifier.  Identifiers are
// case insensitive so "xyWH" may be used to make the difference with "xyxy"
// stand out.
func ParseFormat(name string) (Format, error) {
	return parseFormat("format", name)
}

func parseFormat(arg, name string) (Format, error) {

	lower := strings.ToLower(strings.TrimSpace(name))

	for f, n := range formatNames {
		if n == lower {
			return Format(f), nil
		}
	}

	return 0, &FormatError{Arg: arg, Value: name}
}

// String returns the canonical identifier of the format
func (f Format) String() string {
	if !f.valid() {
		return fmt.Sprintf("Format(%d)", int(f))
	}
	return formatNames[f]
}

// IsRelative reports whether coordinates are relative to the image size
func (f Format) IsRelative() bool {
	return f == RelXYXY
}

func (f Format) valid() bool {
	return f >= 0 && int(f) < len(formatNames)
}
