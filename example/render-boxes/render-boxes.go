package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/swdee/go-cvmetrics"
	"github.com/swdee/go-cvmetrics/bbox"
	"github.com/swdee/go-cvmetrics/render"
	"gocv.io/x/gocv"
	"golang.org/x/image/draw"
)

func main() {
	// disable logging timestamps
	log.SetFlags(0)

	// read in cli flags
	imgFile := flag.String("i", "../data/bus.jpg", "Image file to draw boxes on")
	boxFile := flag.String("b", "../data/bus-boxes.csv", "CSV file of boxes, one box per line as box,class[,confidence], every line with the same number of fields")
	formatName := flag.String("f", "xyxy", "Box format, one of "+formatList())
	labelFile := flag.String("l", "../data/coco_80_labels_list.txt", "Text file containing class labels")
	saveFile := flag.String("o", "../data/bus-boxes-out.jpg", "Output image file, with -p the extension is changed to .png")
	pure := flag.Bool("p", false, "Render with the pure Go renderer and save a PNG")
	flag.Parse()

	format, err := bbox.ParseFormat(*formatName)

	if err != nil {
		log.Fatal(err)
	}

	classNames, err := cvmetrics.LoadLabels(*labelFile)

	if err != nil {
		log.Fatal("Error loading class labels: ", err)
	}

	boxes, err := readBoxes(*boxFile)

	if err != nil {
		log.Fatal("Error reading boxes: ", err)
	}

	log.Printf("Read %d boxes in %s format\n", len(boxes), format)

	if *pure {
		outFile := pngPath(*saveFile)

		if err := renderPure(*imgFile, outFile, boxes, format, classNames); err != nil {
			log.Fatal(err)
		}

		log.Printf("Saved image to %s\n", outFile)
		return
	}

	img := gocv.IMRead(*imgFile, gocv.IMReadColor)

	if img.Empty() {
		log.Fatal("Error reading image from: ", *imgFile)
	}

	defer img.Close()

	err = render.Boxes(&img, boxes, format, classNames, render.DefaultFont(), 2)

	if err != nil {
		log.Fatal("Error rendering boxes: ", err)
	}

	if ok := gocv.IMWrite(*saveFile, img); !ok {
		log.Fatal("Error saving image to: ", *saveFile)
	}

	log.Printf("Saved image to %s\n", *saveFile)
}

// renderPure draws boxes without OpenCV
func renderPure(inFile, outFile string, boxes [][]float64, format bbox.Format,
	classNames []string) error {

	f, err := os.Open(inFile)

	if err != nil {
		return fmt.Errorf("error opening image: %w", err)
	}

	defer f.Close()

	src, _, err := image.Decode(f)

	if err != nil {
		return fmt.Errorf("error decoding image: %w", err)
	}

	img := image.NewRGBA(src.Bounds())
	draw.Draw(img, img.Bounds(), src, src.Bounds().Min, draw.Src)

	err = render.BoxesRGBA(img, boxes, format, classNames, render.DefaultFont(), 2)

	if err != nil {
		return fmt.Errorf("error rendering boxes: %w", err)
	}

	out, err := os.Create(outFile)

	if err != nil {
		return fmt.Errorf("error creating output: %w", err)
	}

	defer out.Close()

	if err := png.Encode(out, img); err != nil {
		return fmt.Errorf("error encoding png: %w", err)
	}

	return nil
}

// pngPath replaces the extension of file with .png
func pngPath(file string) string {
	return strings.TrimSuffix(file, filepath.Ext(file)) + ".png"
}

// readBoxes reads one box per CSV line, lines starting with # are skipped.
// All lines must have the same number of fields.
func readBoxes(file string) ([][]float64, error) {

	f, err := os.Open(file)

	if err != nil {
		return nil, err
	}

	defer f.Close()

	r := csv.NewReader(f)
	r.Comment = '#'
	r.FieldsPerRecord = 0
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()

	if err != nil {
		return nil, err
	}

	boxes := make([][]float64, 0, len(records))

	for i, rec := range records {

		row := make([]float64, len(rec))

		for j, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)

			if err != nil {
				return nil, fmt.Errorf("line %d field %d: %w", i+1, j+1, err)
			}

			row[j] = v
		}

		boxes = append(boxes, row)
	}

	return boxes, nil
}

func formatList() string {

	names := make([]string, 0, len(bbox.Formats()))

	for _, f := range bbox.Formats() {
		names = append(names, f.String())
	}

	return strings.Join(names, ", ")
}
