// Package metrics scores recognition hypotheses against references and
// aggregates corpus-level error rates.
package metrics

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/speechgo/csjtrain/dataset"
	"github.com/speechgo/csjtrain/model"
)

// Options configure one evaluation pass.
type Options struct {
	BatchSize     int
	BeamWidth     int
	MaxDecodeLen  int
	LengthPenalty float64
	Temperature   float64
	Attention     bool // truncate hypotheses at the first end-of-sequence marker
}

// Result summarizes one full pass over an evaluation set.
type Result struct {
	CER   float64
	WER   float64
	Chars Tally
	Words Tally
}

// Evaluate decodes every utterance of the dataset once and accumulates
// character- and word-level error rates. Word-level scoring only
// applies to label schemes that mark word boundaries. An utterance
// whose hypothesis cannot be mapped back to tokens is counted as
// skipped and dropped from the aggregate.
func Evaluate(ctx context.Context, models []model.Decoder, src model.FeatureSource,
	ds *dataset.Dataset, vocab *dataset.Vocab, opts Options, log logrus.FieldLogger) (*Result, error) {

	if len(models) == 0 {
		return nil, errors.New("evaluate: no models")
	}
	if opts.Temperature == 0 {
		opts.Temperature = 1
	}
	wordLevel := strings.Contains(ds.LabelType(), "_wb")
	joinSep := ""
	if strings.Contains(ds.LabelType(), "word") || strings.Contains(ds.LabelType(), "phone") {
		joinSep = "_"
	}

	res := &Result{}
	ds.Reset()
	defer ds.Reset()

	for {
		batch, newEpoch := ds.Next(opts.BatchSize)
		if len(batch) > 0 {
			if err := scoreBatch(ctx, models, src, batch, vocab, opts, joinSep, wordLevel, res); err != nil {
				return nil, err
			}
		}
		if newEpoch {
			break
		}
	}

	res.CER = res.Chars.ErrorRate()
	if wordLevel {
		res.WER = res.Words.ErrorRate()
	}

	log.WithFields(logrus.Fields{
		"cer":     res.CER,
		"wer":     res.WER,
		"skipped": res.Chars.Skipped,
	}).Info("evaluation finished")
	return res, nil
}

func scoreBatch(ctx context.Context, models []model.Decoder, src model.FeatureSource,
	batch []dataset.Record, vocab *dataset.Vocab, opts Options,
	joinSep string, wordLevel bool, res *Result) error {

	paths := make([]string, len(batch))
	for i, r := range batch {
		paths[i] = r.InputPath
	}
	feats, featLens, err := src.Features(ctx, paths)
	if err != nil {
		return errors.Wrap(err, "load features")
	}

	var hyps [][]int
	var perm []int
	if len(models) > 1 {
		hyps, perm, err = decodeEnsemble(ctx, models, feats, featLens, opts)
	} else {
		hyps, _, perm, err = models[0].Decode(ctx, feats, featLens, model.DecodeOptions{
			BeamWidth:     opts.BeamWidth,
			MaxDecodeLen:  opts.MaxDecodeLen,
			LengthPenalty: opts.LengthPenalty,
		})
	}
	if err != nil {
		return errors.Wrap(err, "decode")
	}

	// The framework may reorder a batch by input length; realign the
	// references with the reported permutation.
	refs := batch
	if perm != nil {
		refs = make([]dataset.Record, len(batch))
		for i, p := range perm {
			refs[i] = batch[p]
		}
	}

	for b := range hyps {
		tokens, ok := vocab.Decode(hyps[b])
		if !ok {
			res.Chars.Skip()
			if wordLevel {
				res.Words.Skip()
			}
			continue
		}

		refStr := CleanReference(refs[b].Transcript)
		hypStr := CleanHypothesis(strings.Join(tokens, joinSep), opts.Attention)

		refChars := Chars(refStr)
		res.Chars.Add(Align(refChars, Chars(hypStr)), len(refChars))

		if wordLevel {
			refWords := Words(refStr)
			res.Words.Add(Align(refWords, Words(hypStr)), len(refWords))
		}
	}
	return nil
}

// decodeEnsemble averages posteriors across models and decodes from the
// averaged grid. Every model must expose posteriors; the first must be
// able to decode from them.
func decodeEnsemble(ctx context.Context, models []model.Decoder,
	feats [][]float32, featLens []int, opts Options) ([][]int, []int, error) {

	grids := make([][][][]float32, 0, len(models))
	var perm []int
	var lens []int
	for i, m := range models {
		p, ok := m.(model.Posterior)
		if !ok {
			return nil, nil, errors.Errorf("ensemble model %d does not expose posteriors", i)
		}
		probs, outLens, outPerm, err := p.Posteriors(ctx, feats, featLens, opts.Temperature)
		if err != nil {
			return nil, nil, err
		}
		if i == 0 {
			perm, lens = outPerm, outLens
		}
		grids = append(grids, probs)
	}

	pd, ok := models[0].(model.ProbDecoder)
	if !ok {
		return nil, nil, errors.New("ensemble lead model cannot decode from posteriors")
	}
	hyps, err := pd.DecodeFromProbs(ctx, model.EnsemblePosteriors(grids), lens, opts.BeamWidth)
	if err != nil {
		return nil, nil, err
	}
	return hyps, perm, nil
}
