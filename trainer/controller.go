package trainer

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/speechgo/csjtrain/config"
)

// Controller adjusts an optimizer's learning rate per epoch (fixed
// decay or metric plateau) or per step (warm-up). State is mutated in
// place and never reset after construction.
type Controller struct {
	log logrus.FieldLogger

	lrMax             float64
	lrInit            float64
	decayType         string
	decayStartEpoch   int
	decayRate         float64
	decayPatientEpoch int
	lowerBetter       bool

	bestValue        float64
	notImprovedEpoch int

	warmupStartLR float64
	warmupSteps   int
}

// worst initial best-metric value; any real observation improves on it.
const initialBestValue = 10000

// NewController validates the decay configuration and derives the
// warm-up base rate: the configured start rate when one is given, else
// a model-size-scaled initial rate in the transformer style.
func NewController(cfg *config.Params, log logrus.FieldLogger) (*Controller, error) {
	switch cfg.DecayType {
	case "epoch", "metric", "warmup":
	default:
		return nil, config.Errorf("unsupported decay_type %q", cfg.DecayType)
	}
	if cfg.DecayType == "warmup" && cfg.WarmupSteps <= 0 {
		return nil, config.Errorf("decay_type warmup requires warmup_steps > 0")
	}
	if cfg.DecayType == "metric" && cfg.WarmupStartLR > 0 {
		return nil, config.Errorf("metric decay cannot be combined with a warm-up ramp")
	}

	c := &Controller{
		log:               log,
		lrMax:             cfg.LearningRate,
		decayType:         cfg.DecayType,
		decayStartEpoch:   cfg.DecayStartEpoch,
		decayRate:         cfg.DecayRate,
		decayPatientEpoch: cfg.DecayPatientEpoch,
		lowerBetter:       cfg.LowerBetter,
		bestValue:         initialBestValue,
		warmupStartLR:     cfg.WarmupStartLR,
		warmupSteps:       cfg.WarmupSteps,
	}

	if cfg.WarmupSteps > 0 {
		if cfg.WarmupStartLR > 0 {
			c.lrInit = cfg.WarmupStartLR
		} else {
			modelSize := cfg.ModelSize
			if modelSize < 1 {
				modelSize = 1
			}
			factor := cfg.Factor
			if factor == 0 {
				factor = 1
			}
			c.lrInit = factor * math.Pow(float64(modelSize), -0.5)
		}
	} else {
		c.lrInit = cfg.LearningRate
	}
	return c, nil
}

// DecayLR applies the per-epoch policy and returns the possibly decayed
// learning rate. value is the tracked validation metric; when higher is
// better it is negated so improvement is always a decrease.
func (c *Controller) DecayLR(opt Optimizer, lr float64, epoch int, value float64) float64 {
	if !c.lowerBetter {
		value = -value
	}

	if epoch < c.decayStartEpoch {
		if c.decayType == "metric" && value < c.bestValue {
			// Track the best value, but never decay this early.
			c.bestValue = value
		}
		return lr
	}

	switch c.decayType {
	case "metric":
		switch {
		case value < c.bestValue:
			c.bestValue = value
			c.notImprovedEpoch = 0
		case c.notImprovedEpoch < c.decayPatientEpoch:
			c.notImprovedEpoch++
		default:
			c.notImprovedEpoch = 0
			lr *= c.decayRate
			c.apply(opt, lr)
			c.log.WithFields(logrus.Fields{"epoch": epoch, "lr": lr}).Info("plateau decay")
		}
	case "epoch":
		lr *= c.decayRate
		c.apply(opt, lr)
	}
	return lr
}

// WarmupLR applies the per-step warm-up schedule and returns the new
// rate: a linear ramp from the start rate to the peak when a start rate
// was configured, else the inverse-square-root curve
// lrInit * min(step^-0.5, step * warmupSteps^-1.5).
func (c *Controller) WarmupLR(opt Optimizer, lr float64, step int) float64 {
	if step < 1 {
		step = 1 // step counting starts at 1
	}
	if c.warmupStartLR > 0 {
		lr = (c.lrMax-c.warmupStartLR)/float64(c.warmupSteps)*float64(step) + c.lrInit
	} else {
		s := float64(step)
		lr = c.lrInit * math.Min(math.Pow(s, -0.5), s*math.Pow(float64(c.warmupSteps), -1.5))
	}
	c.apply(opt, lr)
	return lr
}

// BestValue returns the best sign-adjusted metric observed so far.
func (c *Controller) BestValue() float64 {
	return c.bestValue
}

func (c *Controller) apply(opt Optimizer, lr float64) {
	for _, g := range opt.ParamGroups() {
		g.SetRate(lr)
	}
}
