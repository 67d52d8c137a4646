package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/swdee/go-cvmetrics"
	"github.com/swdee/go-cvmetrics/bbox"
	"github.com/swdee/go-cvmetrics/metrics/coco"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// maxBoxes is the number of box rows each image is padded to
const maxBoxes = 25

// timing holds the runtimes measured for one bucket count
type timing struct {
	buckets int
	update  time.Duration
	result  time.Duration
	total   time.Duration
	mapErr  float64
}

func main() {
	// disable logging timestamps
	log.SetFlags(0)

	// read in cli flags
	numImages := flag.Int("n", 128, "Number of images in the random batch")
	numClasses := flag.Int("k", 20, "Number of classes")
	bucketList := flag.String("b", "500,1000,2000,3500,5000,7500,10000",
		"Comma separated list of bucket counts to benchmark")
	outDir := flag.String("o", ".", "Directory to write plots to")
	configFile := flag.String("c", "", "Optional JSON metric config file")
	seed := flag.Int64("s", 1, "Random seed")
	flag.Parse()

	bucketValues, err := parseBuckets(*bucketList)

	if err != nil {
		log.Fatal("Error parsing bucket list: ", err)
	}

	var metricOpts []coco.Option

	if *configFile != "" {
		cfg, err := coco.LoadConfig(*configFile)

		if err != nil {
			log.Fatal("Error loading config: ", err)
		}

		metricOpts = append(metricOpts, coco.WithConfig(cfg))
	}

	rng := rand.New(rand.NewSource(*seed))

	yTrue, err := produceRandomData(rng, false, *numImages, *numClasses)

	if err != nil {
		log.Fatal("Error generating ground truth: ", err)
	}

	yPred, err := produceRandomData(rng, true, *numImages, *numClasses)

	if err != nil {
		log.Fatal("Error generating predictions: ", err)
	}

	classIDs := make([]int, *numClasses)

	for i := range classIDs {
		classIDs[i] = i
	}

	exact, err := coco.ExactAveragePrecision(yTrue, yPred, classIDs, metricOpts...)

	if err != nil {
		log.Fatal("Error computing exact average precision: ", err)
	}

	log.Printf("Exact mAP: %.6f over %d classes\n", exact.MAP, exact.Classes)

	timings := make([]timing, 0, len(bucketValues))

	for _, buckets := range bucketValues {

		metric, err := coco.NewMeanAveragePrecision(classIDs,
			append(metricOpts, coco.WithNumBuckets(buckets))...)

		if err != nil {
			log.Fatal("Error creating metric: ", err)
		}

		// warm up
		if err := metric.Update(yTrue, yPred); err != nil {
			log.Fatal("Error updating metric: ", err)
		}
		metric.Result()
		metric.Reset()

		start := time.Now()

		if err := metric.Update(yTrue, yPred); err != nil {
			log.Fatal("Error updating metric: ", err)
		}

		updateDone := time.Now()
		res := metric.Result()
		end := time.Now()

		t := timing{
			buckets: buckets,
			update:  updateDone.Sub(start),
			result:  end.Sub(updateDone),
			total:   end.Sub(start),
			mapErr:  math.Abs(res.MAP - exact.MAP),
		}
		timings = append(timings, t)

		log.Printf("buckets=%6d update=%-12s result=%-12s total=%-12s mAP=%.6f error=%.2e\n",
			t.buckets, t.update, t.result, t.total, res.MAP, t.mapErr)
	}

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		log.Fatal("Error creating output directory: ", err)
	}

	if err := savePlots(*outDir, timings); err != nil {
		log.Fatal("Error saving plots: ", err)
	}

	if err := saveChart(filepath.Join(*outDir, "bucket_runtimes.html"), timings); err != nil {
		log.Fatal("Error saving chart: ", err)
	}

	log.Println("done")
}

// produceRandomData generates a batch of random boxes in xyxy format padded
// to [numImages, maxBoxes, 5] or [numImages, maxBoxes, 6] with confidence
func produceRandomData(rng *rand.Rand, withConfidence bool, numImages,
	numClasses int) (*cvmetrics.Tensor, error) {

	fields := 5

	if withConfidence {
		fields = 6
	}

	images := make([]*cvmetrics.Tensor, 0, numImages)

	for i := 0; i < numImages; i++ {

		numBoxes := int(math.Floor(maxBoxes * rng.Float64()))
		rows := make([][]float64, numBoxes)

		for n := range rows {
			row := []float64{rng.Float64(), rng.Float64(), rng.Float64(), rng.Float64(),
				math.Floor(rng.Float64() * float64(numClasses))}

			if withConfidence {
				row = append(row, rng.Float64())
			}

			rows[n] = row
		}

		var boxes *cvmetrics.Tensor
		var err error

		if numBoxes == 0 {
			boxes, err = cvmetrics.Full([]int{0, fields}, 0, cvmetrics.Float32)
		} else {
			boxes, err = cvmetrics.FromRows(rows, cvmetrics.Float32)
		}

		if err != nil {
			return nil, err
		}

		xyxy, err := bbox.Convert(boxes, "xywh", "xyxy")

		if err != nil {
			return nil, err
		}

		padded, err := bbox.PadBatchToShape(xyxy, maxBoxes, cvmetrics.PadValue)

		if err != nil {
			return nil, err
		}

		images = append(images, padded)
	}

	return cvmetrics.Stack(images)
}

func parseBuckets(list string) ([]int, error) {

	var out []int

	for _, s := range strings.Split(list, ",") {

		s = strings.TrimSpace(s)

		if s == "" {
			continue
		}

		n, err := strconv.Atoi(s)

		if err != nil {
			return nil, fmt.Errorf("invalid bucket count %q: %w", s, err)
		}

		out = append(out, n)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no bucket counts given")
	}

	return out, nil
}

// savePlots writes a PNG line plot of each runtime against bucket count
func savePlots(dir string, timings []timing) error {

	plots := []struct {
		file  string
		title string
		label string
		value func(timing) time.Duration
	}{
		{"update_runtime.png", "Runtime of Update()", "Update() runtime (seconds)",
			func(t timing) time.Duration { return t.update }},
		{"result_runtime.png", "Runtime of Result()", "Result() runtime (seconds)",
			func(t timing) time.Duration { return t.result }},
		{"end_to_end_runtime.png", "Runtimes of Update() followed by Result()",
			"End to end runtime (seconds)",
			func(t timing) time.Duration { return t.total }},
	}

	for _, pl := range plots {

		p := plot.New()
		p.Title.Text = pl.title
		p.X.Label.Text = "Number of Confidence Buckets"
		p.Y.Label.Text = pl.label

		pts := make(plotter.XYs, len(timings))

		for i, t := range timings {
			pts[i] = plotter.XY{X: float64(t.buckets), Y: pl.value(t).Seconds()}
		}

		line, err := plotter.NewLine(pts)

		if err != nil {
			return err
		}

		line.Width = vg.Points(1)
		p.Add(line)

		file := filepath.Join(dir, pl.file)

		if err := p.Save(8*vg.Inch, 5*vg.Inch, file); err != nil {
			return fmt.Errorf("failed to save %s: %w", file, err)
		}

		log.Printf("Saved plot %s\n", file)
	}

	return nil
}

// saveChart writes an interactive HTML chart holding all three runtimes
func saveChart(file string, timings []timing) error {

	x := make([]string, len(timings))
	update := make([]opts.LineData, len(timings))
	result := make([]opts.LineData, len(timings))
	total := make([]opts.LineData, len(timings))

	for i, t := range timings {
		x[i] = strconv.Itoa(t.buckets)
		update[i] = opts.LineData{Value: t.update.Seconds()}
		result[i] = opts.LineData{Value: t.result.Seconds()}
		total[i] = opts.LineData{Value: t.total.Seconds()}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Bucket Runtimes", Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "COCO mAP runtime", Subtitle: fmt.Sprintf("%d bucket counts", len(timings))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "buckets", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "seconds", NameLocation: "middle", NameGap: 50}),
	)

	line.SetXAxis(x).
		AddSeries("update", update).
		AddSeries("result", result).
		AddSeries("end to end", total)

	f, err := os.Create(file)

	if err != nil {
		return fmt.Errorf("failed to create %s: %w", file, err)
	}

	defer f.Close()

	if err := line.Render(f); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}

	log.Printf("Saved chart %s\n", file)
	return nil
}
