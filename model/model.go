// Package model defines the surface this toolkit consumes from the
// external deep-learning framework. Model architectures and decoding
// algorithms live entirely behind these interfaces.
package model

import "context"

// DecodeOptions are the beam-search hyperparameters handed through to
// the framework.
type DecodeOptions struct {
	BeamWidth     int
	MaxDecodeLen  int
	LengthPenalty float64
	TaskIndex     int
}

// TrainStats are the scalar observations one training step produces.
type TrainStats struct {
	Loss float64
	Acc  float64
	PPL  float64
}

// FeatureSource resolves manifest input paths into acoustic feature
// frames. The production implementation reads the framework's tensor
// files; tests substitute a fake.
type FeatureSource interface {
	Features(ctx context.Context, paths []string) (feats [][]float32, featLens []int, err error)
}

// Decoder is the inference surface of a trained model. perm reports the
// batch permutation the framework applied internally (models sort a
// batch by input length), so callers can realign references.
type Decoder interface {
	Decode(ctx context.Context, feats [][]float32, featLens []int, opts DecodeOptions) (hyps [][]int, scores []float64, perm []int, err error)
}

// Posterior exposes per-frame label posteriors for ensembling.
type Posterior interface {
	Posteriors(ctx context.Context, feats [][]float32, featLens []int, temperature float64) (probs [][][]float32, featLens2 []int, perm []int, err error)
}

// ProbDecoder decodes from externally supplied posteriors, used after
// ensemble averaging.
type ProbDecoder interface {
	DecodeFromProbs(ctx context.Context, probs [][][]float32, featLens []int, beamWidth int) (hyps [][]int, err error)
}

// Trainable is the training-side surface: one forward/backward pass
// over a mini-batch, returning the step's scalar observations.
type Trainable interface {
	TrainStep(ctx context.Context, feats [][]float32, featLens []int, refs [][]int) (TrainStats, error)
}

// EnsemblePosteriors averages posterior grids element-wise across
// models. All grids must share the shape of the first.
func EnsemblePosteriors(grids [][][][]float32) [][][]float32 {
	if len(grids) == 0 {
		return nil
	}
	out := grids[0]
	for _, g := range grids[1:] {
		for b := range out {
			for t := range out[b] {
				for v := range out[b][t] {
					out[b][t][v] += g[b][t][v]
				}
			}
		}
	}
	n := float32(len(grids))
	for b := range out {
		for t := range out[b] {
			for v := range out[b][t] {
				out[b][t][v] /= n
			}
		}
	}
	return out
}
