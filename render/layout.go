package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/swdee/go-cvmetrics"
	"github.com/swdee/go-cvmetrics/bbox"
)

// ErrEmptyImage is returned when asked to render onto an image with no pixels
var ErrEmptyImage = errors.New("image is empty")

// drawBox is a box in pixel corner coordinates ready to draw
type drawBox struct {
	rect          image.Rectangle
	class         int
	confidence    float64
	hasConfidence bool
}

// boxLabel holds a precalculated label so labels can be drawn after all boxes
type boxLabel struct {
	rect    image.Rectangle
	clr     color.RGBA
	text    string
	textPos image.Point
}

// pixelBoxes converts rows of [box, class, confidence] in the given format to
// pixel rectangles for an image of height x width.  Padding rows are skipped.
func pixelBoxes(boxes [][]float64, format bbox.Format, height, width int) ([]drawBox, error) {

	if len(boxes) == 0 {
		return nil, nil
	}

	t, err := cvmetrics.FromRows(boxes, cvmetrics.Float64)

	if err != nil {
		return nil, fmt.Errorf("error reading boxes: %w", err)
	}

	xyxy, err := bbox.ConvertFormat(t, format, bbox.XYXY,
		bbox.WithImageSize(height, width), bbox.WithDType(cvmetrics.Float64))

	if err != nil {
		return nil, fmt.Errorf("error converting boxes to pixels: %w", err)
	}

	out := make([]drawBox, 0, xyxy.NumRows())

	for i := 0; i < xyxy.NumRows(); i++ {

		row := xyxy.Row(i)

		if isPadding(boxes[i]) {
			continue
		}

		db := drawBox{
			rect: image.Rect(int(math.Round(row[0])), int(math.Round(row[1])),
				int(math.Round(row[2])), int(math.Round(row[3]))),
		}

		if len(row) > 4 {
			db.class = int(row[4])
		}

		if len(row) > 5 {
			db.confidence = row[5]
			db.hasConfidence = true
		}

		out = append(out, db)
	}

	return out, nil
}

// isPadding reports whether a row is filler with a negative class or all
// zero box and class fields
func isPadding(row []float64) bool {

	if len(row) < 5 {
		return false
	}

	if row[4] < 0 {
		return true
	}

	for _, v := range row[:5] {
		if v != 0 {
			return false
		}
	}

	return true
}

// labelText returns the class name followed by the confidence score when the
// box has one
func labelText(b drawBox, classNames []string, font Font) string {

	name := cvmetrics.ClassName(classNames, b.class)

	if !b.hasConfidence || font.HideConfidence {
		return name
	}

	return fmt.Sprintf("%s %.2f", name, b.confidence)
}

// placeLabel calculates the background rectangle of a label sitting on top of
// box and the baseline origin of its text
func placeLabel(box image.Rectangle, textSize image.Point, font Font,
	lineThickness int) (image.Rectangle, image.Point) {

	// Calculate the alignment of text label
	var centerX int

	switch font.Alignment {
	case Center:
		centerX = (box.Min.X + box.Max.X) / 2

	case Right:
		centerX = box.Max.X - (textSize.X / 2) - font.RightPad + (lineThickness / 2)

	case Left:
		fallthrough
	default:
		centerX = box.Min.X + (textSize.X / 2) + font.LeftPad - (lineThickness / 2)
	}

	// Adjust the label position so the text is centered horizontally
	textPos := image.Pt(centerX-textSize.X/2, box.Min.Y-font.BottomPad)

	rect := image.Rect(centerX-textSize.X/2-font.LeftPad,
		box.Min.Y-textSize.Y-font.TopPad-font.BottomPad,
		centerX+textSize.X/2+font.RightPad, box.Min.Y)

	return rect, textPos
}
