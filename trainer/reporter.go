package trainer

import (
	"encoding/csv"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Categories a reporter tracks. Observations outside these are
// rejected.
var Categories = []string{"loss", "acc", "ppl"}

// Observation is one scalar reading for a named metric. A nil Value
// marks an absent reading, which is skipped.
type Observation struct {
	Category string
	Name     string
	Value    *float64
}

// Scalar wraps a value for an Observation.
func Scalar(v float64) *float64 {
	return &v
}

type series map[string][]float64 // metric name -> one value per eval step

// Reporter accumulates per-step scalar observations for the train and
// dev splits and renders periodic snapshots (plots and CSV). Owned by a
// single training loop; not safe for concurrent use.
type Reporter struct {
	log      logrus.FieldLogger
	savePath string

	step  int
	steps []int // x axis: the step count at each eval point

	train      map[string]series    // flushed train means per category
	trainLocal map[string][]float64 // raw values since the last eval, keyed category+"."+name
	dev        map[string]series
}

// NewReporter creates a reporter writing snapshots into savePath.
func NewReporter(savePath string, log logrus.FieldLogger) *Reporter {
	r := &Reporter{
		log:        log,
		savePath:   savePath,
		train:      map[string]series{},
		trainLocal: map[string][]float64{},
		dev:        map[string]series{},
	}
	for _, c := range Categories {
		r.train[c] = series{}
		r.dev[c] = series{}
	}
	return r
}

// Record folds one step's observations in. Train steps buffer raw
// values; an eval step flushes each buffered series' mean into the
// train history and stores the incoming dev value alongside it. An
// infinite value signals a diverged run and is logged, not fatal.
func (r *Reporter) Record(obs []Observation, isEval bool) {
	for _, o := range obs {
		if o.Value == nil {
			continue
		}
		v := *o.Value
		if _, ok := r.train[o.Category]; !ok {
			r.log.Warnf("reporter: unknown category %q for %s", o.Category, o.Name)
			continue
		}
		if math.IsInf(v, 0) {
			r.log.Warnf("received an inf value for %s.%s", o.Category, o.Name)
		}

		key := o.Category + "." + o.Name
		if !isEval {
			r.trainLocal[key] = append(r.trainLocal[key], v)
			continue
		}

		mean := 0.0
		if buf := r.trainLocal[key]; len(buf) > 0 {
			mean = stat.Mean(buf, nil)
		}
		r.train[o.Category][o.Name] = append(r.train[o.Category][o.Name], mean)
		r.dev[o.Category][o.Name] = append(r.dev[o.Category][o.Name], v)
		r.log.Infof("%s (train, mean): %.3f", key, mean)
		r.log.Infof("%s (dev): %.3f", key, v)
	}
}

// Advance increments the step counter. On an eval step the current step
// joins the x-axis history and the local train buffer is cleared.
func (r *Reporter) Advance(isEval bool) {
	r.step++
	if isEval {
		r.steps = append(r.steps, r.step)
		r.trainLocal = map[string][]float64{}
	}
}

// Step returns the current step count.
func (r *Reporter) Step() int {
	return r.step
}

var (
	trainColor = color.RGBA{R: 0x46, G: 0x82, B: 0xB4, A: 0xFF} // steel blue
	devColor   = color.RGBA{R: 0xD2, G: 0x69, B: 0x1E, A: 0xFF} // chocolate

	dashPatterns = [][]vg.Length{
		nil, // solid
		{vg.Points(6), vg.Points(2)},
		{vg.Points(2), vg.Points(2)},
		{vg.Points(6), vg.Points(2), vg.Points(1), vg.Points(2)},
	}
)

// Snapshot renders one plot per category, one line style per named
// metric with train and dev in different colors, and a parallel CSV
// with columns step, train_value, dev_value. Prior output files are
// overwritten.
func (r *Reporter) Snapshot() error {
	if err := os.MkdirAll(r.savePath, 0o755); err != nil {
		return errors.Wrap(err, "snapshot dir")
	}

	for _, category := range Categories {
		names := make([]string, 0, len(r.train[category]))
		for name, hist := range r.train[category] {
			// Series that never observed a value plot as a flat zero
			// line; skip them.
			if len(hist) == 0 || floats.Max(hist) == 0 && floats.Min(hist) == 0 {
				continue
			}
			names = append(names, name)
		}
		if len(names) == 0 {
			continue
		}
		sort.Strings(names)

		if err := r.plotCategory(category, names); err != nil {
			return err
		}
		for _, name := range names {
			if err := r.writeCSV(category, name); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Reporter) plotCategory(category string, names []string) error {
	p := plot.New()
	p.X.Label.Text = "step"
	p.Y.Label.Text = category

	upper := 0.0
	for i, name := range names {
		trainHist := r.train[category][name]
		devHist := r.dev[category][name]
		dashes := dashPatterns[i%len(dashPatterns)]

		trainLine, err := plotter.NewLine(r.xys(trainHist))
		if err != nil {
			return errors.Wrap(err, "plot train series")
		}
		trainLine.Color = trainColor
		trainLine.Dashes = dashes
		p.Add(trainLine)
		p.Legend.Add(name+" (train)", trainLine)

		devLine, err := plotter.NewLine(r.xys(devHist))
		if err != nil {
			return errors.Wrap(err, "plot dev series")
		}
		devLine.Color = devColor
		devLine.Dashes = dashes
		p.Add(devLine)
		p.Legend.Add(name+" (dev)", devLine)

		upper = math.Max(upper, floats.Max(trainHist))
		if len(devHist) > 0 {
			upper = math.Max(upper, floats.Max(devHist))
		}
	}

	p.Y.Min = 0
	p.Y.Max = math.Min(upper+10, 300)
	p.Legend.Top = true

	out := filepath.Join(r.savePath, category+".png")
	return errors.Wrapf(p.Save(8*vg.Inch, 6*vg.Inch, out), "save %s", out)
}

func (r *Reporter) xys(hist []float64) plotter.XYs {
	n := len(hist)
	if len(r.steps) < n {
		n = len(r.steps)
	}
	xys := make(plotter.XYs, n)
	for i := 0; i < n; i++ {
		xys[i].X = float64(r.steps[i])
		xys[i].Y = hist[i]
	}
	return xys
}

func (r *Reporter) writeCSV(category, name string) error {
	out := filepath.Join(r.savePath, category+"-"+name+".csv")
	f, err := os.Create(out)
	if err != nil {
		return errors.Wrap(err, "create csv")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"step", "train_value", "dev_value"}); err != nil {
		return err
	}
	trainHist := r.train[category][name]
	devHist := r.dev[category][name]
	for i := range r.steps {
		if i >= len(trainHist) || i >= len(devHist) {
			break
		}
		row := []string{
			strconv.Itoa(r.steps[i]),
			strconv.FormatFloat(trainHist[i], 'g', -1, 64),
			strconv.FormatFloat(devHist[i], 'g', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return errors.Wrapf(w.Error(), "write %s", out)
}
