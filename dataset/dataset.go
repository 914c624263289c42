// Package dataset indexes a corpus manifest and serves mini-batches in
// a configurable order.
package dataset

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/speechgo/csjtrain/config"
)

// Record is one manifest row. Immutable after load; Index is assigned
// by the active ordering policy.
type Record struct {
	FrameCount int
	InputPath  string
	Transcript string
	Index      int
}

// Dataset serves batches of records. Not safe for concurrent use: the
// cursor is owned by a single training loop.
type Dataset struct {
	log logrus.FieldLogger

	records   []Record
	queue     []int // remaining indices for the current epoch
	batchSize int
	epoch     int

	shuffle       bool
	sortUtt       bool
	sortStopEpoch int

	dataType  string
	labelType string
	isTest    bool
}

// Granularity maps a label scheme to its manifest file name.
func Granularity(labelType string) (string, error) {
	switch {
	case strings.Contains(labelType, "kana"):
		return "kana", nil
	case strings.Contains(labelType, "kanji"), strings.Contains(labelType, "word"):
		return "kanji", nil
	case strings.Contains(labelType, "phone"):
		return "phone", nil
	}
	return "", config.Errorf("unknown label_type %q", labelType)
}

// New loads the manifest for one split and prepares the first epoch's
// ordering. dataType is train, dev or one of the eval sets.
func New(cfg *config.Params, dataType string, log logrus.FieldLogger) (*Dataset, error) {
	if cfg.Shuffle && cfg.SortUtt {
		return nil, config.Errorf("shuffle and sort_utt are mutually exclusive")
	}

	gran, err := Granularity(cfg.LabelType)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(cfg.DataRoot, cfg.SaveFormat, cfg.DataSize, dataType,
		"dataset_"+gran+".csv")

	records, err := loadManifest(path)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{
		log:           log.WithField("split", dataType),
		records:       records,
		batchSize:     cfg.BatchSize,
		shuffle:       cfg.Shuffle,
		sortUtt:       cfg.SortUtt,
		sortStopEpoch: cfg.SortStopEpoch,
		dataType:      dataType,
		labelType:     cfg.LabelType,
		isTest:        dataType != "train" && dataType != "dev",
	}

	// Base ordering: by frame count for length-sorted batching, else by
	// input path.
	if cfg.SortUtt {
		sort.SliceStable(ds.records, func(i, j int) bool {
			if cfg.Reverse {
				return ds.records[i].FrameCount > ds.records[j].FrameCount
			}
			return ds.records[i].FrameCount < ds.records[j].FrameCount
		})
	} else {
		sort.SliceStable(ds.records, func(i, j int) bool {
			return ds.records[i].InputPath < ds.records[j].InputPath
		})
	}
	for i := range ds.records {
		ds.records[i].Index = i
	}

	ds.refill()
	ds.log.WithFields(logrus.Fields{
		"utterances": len(ds.records),
		"manifest":   path,
	}).Info("dataset loaded")
	return ds, nil
}

func loadManifest(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open manifest")
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "parse manifest %s", path)
	}
	if len(rows) == 0 {
		return nil, errors.Errorf("manifest %s is empty", path)
	}

	col := map[string]int{}
	for i, name := range rows[0] {
		col[name] = i
	}
	for _, name := range []string{"frame_num", "input_path", "transcript"} {
		if _, ok := col[name]; !ok {
			return nil, errors.Errorf("manifest %s is missing column %s", path, name)
		}
	}

	records := make([]Record, 0, len(rows)-1)
	for n, row := range rows[1:] {
		frames, err := strconv.Atoi(row[col["frame_num"]])
		if err != nil {
			return nil, errors.Wrapf(err, "manifest %s row %d: frame_num", path, n+2)
		}
		records = append(records, Record{
			FrameCount: frames,
			InputPath:  row[col["input_path"]],
			Transcript: row[col["transcript"]],
		})
	}
	return records, nil
}

// refill rebuilds the remaining-index queue for a new epoch. Once the
// epoch counter passes sort_stop_epoch the ordering reverts to random.
func (d *Dataset) refill() {
	d.queue = make([]int, len(d.records))
	for i := range d.queue {
		d.queue[i] = i
	}
	randomize := d.shuffle
	if d.sortUtt && d.sortStopEpoch > 0 && d.epoch >= d.sortStopEpoch {
		randomize = true
	}
	if randomize {
		rand.Shuffle(len(d.queue), func(i, j int) {
			d.queue[i], d.queue[j] = d.queue[j], d.queue[i]
		})
	}
}

// Next returns the next batch and whether it closed out an epoch. A
// batchSize of 0 uses the configured batch size. The batch that drains
// the remaining set is flagged, and the set is refilled for the next
// epoch.
func (d *Dataset) Next(batchSize int) ([]Record, bool) {
	if batchSize <= 0 {
		batchSize = d.batchSize
	}
	n := batchSize
	if n > len(d.queue) {
		n = len(d.queue)
	}

	batch := make([]Record, n)
	for i := 0; i < n; i++ {
		batch[i] = d.records[d.queue[i]]
	}
	d.queue = d.queue[n:]

	if len(d.queue) == 0 {
		d.epoch++
		d.refill()
		return batch, true
	}
	return batch, false
}

// Reset restarts iteration from a full remaining set. Used around an
// evaluation pass.
func (d *Dataset) Reset() {
	d.refill()
}

// Len returns the number of utterances in the split.
func (d *Dataset) Len() int {
	return len(d.records)
}

// Epoch returns the number of completed epochs.
func (d *Dataset) Epoch() int {
	return d.epoch
}

// IsTest reports whether this split is an evaluation set, whose
// transcripts are reference strings rather than training targets.
func (d *Dataset) IsTest() bool {
	return d.isTest
}

// LabelType returns the label scheme the manifest was keyed by.
func (d *Dataset) LabelType() string {
	return d.labelType
}

// String describes the split for logs.
func (d *Dataset) String() string {
	return fmt.Sprintf("%s/%s (%d utterances)", d.dataType, d.labelType, len(d.records))
}
