package trainer

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/speechgo/csjtrain/config"
	"github.com/speechgo/csjtrain/dataset"
	"github.com/speechgo/csjtrain/model"
)

// Loop wires the dataset, reporter and learning-rate controller around
// an externally-owned model for one training run.
type Loop struct {
	cfg *config.Params
	log logrus.FieldLogger

	train *dataset.Dataset
	dev   *dataset.Dataset
	vocab *dataset.Vocab
	src   model.FeatureSource
	m     model.Trainable
	opt   Optimizer
	ctrl  *Controller
	rep   *Reporter
}

// NewLoop assembles a training run. The model and feature source are
// owned by the caller.
func NewLoop(cfg *config.Params, train, dev *dataset.Dataset, vocab *dataset.Vocab,
	src model.FeatureSource, m model.Trainable, opt Optimizer, log logrus.FieldLogger) (*Loop, error) {

	ctrl, err := NewController(cfg, log)
	if err != nil {
		return nil, err
	}
	return &Loop{
		cfg:   cfg,
		log:   log,
		train: train,
		dev:   dev,
		vocab: vocab,
		src:   src,
		m:     m,
		opt:   opt,
		ctrl:  ctrl,
		rep:   NewReporter(cfg.SavePath, log),
	}, nil
}

// Reporter exposes the loop's reporter, mainly for final snapshots.
func (l *Loop) Reporter() *Reporter {
	return l.rep
}

// Run trains until the configured number of epochs completes or the
// context is cancelled. Every eval_interval steps one dev batch is
// scored, the reporter flushes, and a snapshot is written.
func (l *Loop) Run(ctx context.Context) error {
	lr := l.cfg.LearningRate
	epoch := 0
	step := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, newEpoch := l.train.Next(0)
		if len(batch) > 0 {
			step++
			stats, err := l.step(ctx, batch)
			if err != nil {
				return err
			}

			if l.cfg.DecayType == "warmup" && step <= l.cfg.WarmupSteps {
				lr = l.ctrl.WarmupLR(l.opt, lr, step)
			}

			isEval := l.cfg.EvalInterval > 0 && step%l.cfg.EvalInterval == 0
			l.rep.Record(statsObservations(stats), false)
			l.rep.Advance(false)

			if isEval {
				if err := l.evalStep(ctx); err != nil {
					return err
				}
			}
		}

		if newEpoch {
			epoch++
			l.log.WithFields(logrus.Fields{"epoch": epoch, "lr": lr}).Info("epoch finished")

			if l.cfg.DecayType != "warmup" {
				devLoss, err := l.devLoss(ctx)
				if err != nil {
					return err
				}
				lr = l.ctrl.DecayLR(l.opt, lr, epoch, devLoss)
			}
			if epoch >= l.cfg.NumEpochs {
				break
			}
		}
	}

	return l.rep.Snapshot()
}

// step runs one forward/backward pass over a training batch.
func (l *Loop) step(ctx context.Context, batch []dataset.Record) (model.TrainStats, error) {
	feats, featLens, refs, err := l.prepare(ctx, batch)
	if err != nil {
		return model.TrainStats{}, err
	}
	stats, err := l.m.TrainStep(ctx, feats, featLens, refs)
	return stats, errors.Wrap(err, "train step")
}

// evalStep scores one dev batch and flushes the reporter.
func (l *Loop) evalStep(ctx context.Context) error {
	batch, _ := l.dev.Next(0)
	feats, featLens, refs, err := l.prepare(ctx, batch)
	if err != nil {
		return err
	}
	stats, err := l.m.TrainStep(ctx, feats, featLens, refs)
	if err != nil {
		return errors.Wrap(err, "dev step")
	}

	l.rep.Record(statsObservations(stats), true)
	l.rep.Advance(true)
	return l.rep.Snapshot()
}

// devLoss averages the loss over one dev pass for plateau tracking.
func (l *Loop) devLoss(ctx context.Context) (float64, error) {
	total := 0.0
	n := 0
	l.dev.Reset()
	for {
		batch, newEpoch := l.dev.Next(0)
		if len(batch) > 0 {
			feats, featLens, refs, err := l.prepare(ctx, batch)
			if err != nil {
				return 0, err
			}
			stats, err := l.m.TrainStep(ctx, feats, featLens, refs)
			if err != nil {
				return 0, errors.Wrap(err, "dev pass")
			}
			total += stats.Loss * float64(len(batch))
			n += len(batch)
		}
		if newEpoch {
			break
		}
	}
	if n == 0 {
		return 0, nil
	}
	return total / float64(n), nil
}

func (l *Loop) prepare(ctx context.Context, batch []dataset.Record) ([][]float32, []int, [][]int, error) {
	paths := make([]string, len(batch))
	refs := make([][]int, len(batch))
	for i, r := range batch {
		paths[i] = r.InputPath
		refs[i] = l.vocab.Encode(dataset.Tokenize(l.cfg.LabelType, r.Transcript))
	}
	feats, featLens, err := l.src.Features(ctx, paths)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "load features")
	}
	return feats, featLens, refs, nil
}

func statsObservations(s model.TrainStats) []Observation {
	return []Observation{
		{Category: "loss", Name: "total", Value: Scalar(s.Loss)},
		{Category: "acc", Name: "total", Value: Scalar(s.Acc)},
		{Category: "ppl", Name: "total", Value: Scalar(s.PPL)},
	}
}
