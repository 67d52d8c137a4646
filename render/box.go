package render

import (
	"fmt"

	"github.com/swdee/go-cvmetrics/bbox"
	"gocv.io/x/gocv"
)

// Boxes renders bounding boxes and their labels onto the image.  Each row of
// boxes is [box, class] for ground truth or [box, class, confidence] for
// predictions with the box in the given format, relative formats are scaled
// by the image size.  Boxes are colored by class.
func Boxes(img *gocv.Mat, boxes [][]float64, format bbox.Format,
	classNames []string, font Font, lineThickness int) error {

	if img.Empty() {
		return ErrEmptyImage
	}

	dboxes, err := pixelBoxes(boxes, format, img.Rows(), img.Cols())

	if err != nil {
		return fmt.Errorf("error rendering boxes: %w", err)
	}

	// keep a record of all box labels for later rendering
	boxLabels := make([]boxLabel, 0, len(dboxes))

	for _, b := range dboxes {

		useClr := ClassColor(b.class)

		// draw rectangle around object
		gocv.Rectangle(img, b.rect, useClr, lineThickness)

		text := labelText(b, classNames, font)
		textSize := gocv.GetTextSize(text, font.Face, font.Scale, font.Thickness)

		rect, textPos := placeLabel(b.rect, textSize, font, lineThickness)

		boxLabels = append(boxLabels, boxLabel{
			rect:    rect,
			clr:     useClr,
			text:    text,
			textPos: textPos,
		})
	}

	// draw all precalculated box labels so they are the top most layer on the
	// image and don't get overlapped by neighbouring boxes
	for _, label := range boxLabels {
		// draw box text gets written on
		gocv.Rectangle(img, label.rect, label.clr, -1)

		// Draw the label over box
		gocv.PutTextWithParams(img, label.text, label.textPos,
			font.Face, font.Scale, font.Color, font.Thickness,
			font.LineType, false)
	}

	return nil
}
