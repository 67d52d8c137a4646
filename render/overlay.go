package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/swdee/go-cvmetrics/bbox"
	"golang.org/x/image/draw"
	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// BoxesRGBA renders bounding boxes and labels onto an RGBA image without
// OpenCV.  Rows and coloring follow Boxes, label text is drawn with a 7x13
// bitmap face in font.Color.
func BoxesRGBA(img *image.RGBA, boxes [][]float64, format bbox.Format,
	classNames []string, font Font, lineThickness int) error {

	bounds := img.Bounds()

	if bounds.Empty() {
		return ErrEmptyImage
	}

	dboxes, err := pixelBoxes(boxes, format, bounds.Dy(), bounds.Dx())

	if err != nil {
		return fmt.Errorf("error rendering boxes: %w", err)
	}

	if lineThickness < 1 {
		lineThickness = 1
	}

	face := basicfont.Face7x13
	boxLabels := make([]boxLabel, 0, len(dboxes))

	for _, b := range dboxes {

		useClr := ClassColor(b.class)
		strokeRect(img, b.rect.Add(bounds.Min), useClr, lineThickness)

		text := labelText(b, classNames, font)
		textSize := image.Pt(xfont.MeasureString(face, text).Ceil(), face.Ascent)

		rect, textPos := placeLabel(b.rect.Add(bounds.Min), textSize, font, lineThickness)

		boxLabels = append(boxLabels, boxLabel{
			rect:    rect,
			clr:     useClr,
			text:    text,
			textPos: textPos,
		})
	}

	for _, label := range boxLabels {

		draw.Draw(img, label.rect, image.NewUniform(label.clr), image.Point{}, draw.Src)

		d := &xfont.Drawer{
			Dst:  img,
			Src:  image.NewUniform(font.Color),
			Face: face,
			Dot:  fixed.P(label.textPos.X, label.textPos.Y),
		}
		d.DrawString(label.text)
	}

	return nil
}

// strokeRect draws the outline of r with the given line thickness inside
// its edges
func strokeRect(img draw.Image, r image.Rectangle, clr color.RGBA, thickness int) {

	src := image.NewUniform(clr)

	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thickness),
		image.Rect(r.Min.X, r.Max.Y-thickness, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+thickness, r.Max.Y),
		image.Rect(r.Max.X-thickness, r.Min.Y, r.Max.X, r.Max.Y),
	}

	for _, e := range edges {
		draw.Draw(img, e, src, image.Point{}, draw.Src)
	}
}
