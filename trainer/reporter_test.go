package trainer

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func recordLoss(r *Reporter, v float64, isEval bool) {
	r.Record([]Observation{{Category: "loss", Name: "total", Value: Scalar(v)}}, isEval)
	r.Advance(isEval)
}

func TestReporterFlushesTrainMeanOnEval(t *testing.T) {
	r := NewReporter(t.TempDir(), testLogger())

	for _, v := range []float64{1, 2, 3} {
		recordLoss(r, v, false)
	}
	recordLoss(r, 4, true)

	train := r.train["loss"]["total"]
	if len(train) != 1 || train[0] != 2 {
		t.Errorf("train history = %v, want [2] (mean of 1,2,3)", train)
	}
	dev := r.dev["loss"]["total"]
	if len(dev) != 1 || dev[0] != 4 {
		t.Errorf("dev history = %v, want [4]", dev)
	}
	if len(r.steps) != 1 || r.steps[0] != 4 {
		t.Errorf("steps = %v, want [4]", r.steps)
	}
}

func TestReporterClearsLocalBufferAfterEval(t *testing.T) {
	r := NewReporter(t.TempDir(), testLogger())

	recordLoss(r, 10, false)
	recordLoss(r, 20, true)
	recordLoss(r, 2, false)
	recordLoss(r, 4, true)

	train := r.train["loss"]["total"]
	if len(train) != 2 || train[0] != 10 || train[1] != 2 {
		t.Errorf("train history = %v, want [10 2]", train)
	}
}

func TestReporterSkipsAbsentValues(t *testing.T) {
	r := NewReporter(t.TempDir(), testLogger())

	r.Record([]Observation{
		{Category: "loss", Name: "total", Value: Scalar(1)},
		{Category: "acc", Name: "total", Value: nil},
	}, false)
	r.Advance(false)

	if len(r.trainLocal["acc.total"]) != 0 {
		t.Error("absent observation was buffered")
	}
	if len(r.trainLocal["loss.total"]) != 1 {
		t.Error("present observation was not buffered")
	}
}

func TestReporterToleratesInfinity(t *testing.T) {
	r := NewReporter(t.TempDir(), testLogger())

	// A diverged loss is logged, not fatal.
	recordLoss(r, math.Inf(1), false)
	recordLoss(r, 1, true)

	if len(r.train["loss"]["total"]) != 1 {
		t.Error("eval flush missing after infinite observation")
	}
}

func TestSnapshotWritesPlotAndCSV(t *testing.T) {
	dir := t.TempDir()
	r := NewReporter(dir, testLogger())

	recordLoss(r, 1, false)
	recordLoss(r, 3, true)
	recordLoss(r, 5, false)
	recordLoss(r, 7, true)

	if err := r.Snapshot(); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(dir, "loss.png")); err != nil {
		t.Errorf("loss.png missing: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "loss-total.csv"))
	if err != nil {
		t.Fatalf("loss-total.csv missing: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{
		{"step", "train_value", "dev_value"},
		{"2", "1", "3"},
		{"4", "5", "7"},
	}
	if len(rows) != len(want) {
		t.Fatalf("csv rows = %v, want %v", rows, want)
	}
	for i := range want {
		for j := range want[i] {
			if rows[i][j] != want[i][j] {
				t.Errorf("csv[%d][%d] = %q, want %q", i, j, rows[i][j], want[i][j])
			}
		}
	}

	// Unobserved categories produce no files.
	if _, err := os.Stat(filepath.Join(dir, "ppl.png")); !os.IsNotExist(err) {
		t.Error("snapshot wrote a plot for an unobserved category")
	}

	// A second snapshot overwrites in place.
	if err := r.Snapshot(); err != nil {
		t.Fatal(err)
	}
}
