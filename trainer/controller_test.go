package trainer

import (
	"io"
	"math"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/speechgo/csjtrain/config"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestController(t *testing.T, mutate func(*config.Params)) (*Controller, *config.Params) {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewController(&cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	return c, &cfg
}

func TestNewControllerRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Params)
	}{
		{"unknown_decay", func(p *config.Params) { p.DecayType = "cosine" }},
		{"warmup_without_steps", func(p *config.Params) { p.DecayType = "warmup"; p.WarmupSteps = 0 }},
		{"metric_with_ramp", func(p *config.Params) { p.DecayType = "metric"; p.WarmupStartLR = 1e-4 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			if _, err := NewController(&cfg, testLogger()); err == nil {
				t.Error("NewController() accepted invalid config")
			}
		})
	}
}

func TestEpochDecay(t *testing.T) {
	c, cfg := newTestController(t, func(p *config.Params) {
		p.DecayType = "epoch"
		p.DecayStartEpoch = 5
		p.DecayRate = 0.5
	})
	group := &SGDGroup{LR: cfg.LearningRate}
	opt := &SingleGroup{Group: group}

	lr := cfg.LearningRate
	for epoch := 1; epoch <= 7; epoch++ {
		lr = c.DecayLR(opt, lr, epoch, 1.0)
	}

	// Decay fires at epochs 5, 6 and 7.
	want := cfg.LearningRate * math.Pow(0.5, 3)
	if math.Abs(lr-want) > 1e-12 {
		t.Errorf("lr = %v, want %v", lr, want)
	}
	if group.Rate() != lr {
		t.Errorf("param group rate = %v, want %v", group.Rate(), lr)
	}
	if lr <= 0 {
		t.Error("learning rate must stay positive")
	}
}

func TestMetricDecayImprovingNeverDecays(t *testing.T) {
	c, cfg := newTestController(t, func(p *config.Params) {
		p.DecayType = "metric"
		p.DecayStartEpoch = 1
		p.DecayRate = 0.5
		p.DecayPatientEpoch = 1
	})
	opt := &SingleGroup{Group: &SGDGroup{LR: cfg.LearningRate}}

	lr := cfg.LearningRate
	value := 100.0
	for epoch := 1; epoch <= 10; epoch++ {
		value -= 1 // strictly improving
		lr = c.DecayLR(opt, lr, epoch, value)
	}
	if lr != cfg.LearningRate {
		t.Errorf("lr = %v, want unchanged %v", lr, cfg.LearningRate)
	}
}

func TestMetricDecayPlateau(t *testing.T) {
	c, cfg := newTestController(t, func(p *config.Params) {
		p.DecayType = "metric"
		p.DecayStartEpoch = 1
		p.DecayRate = 0.5
		p.DecayPatientEpoch = 1
	})
	opt := &SingleGroup{Group: &SGDGroup{LR: cfg.LearningRate}}

	// Establish a best value, then plateau for four epochs. Patience 1
	// means each two flat epochs buy one decay.
	lr := cfg.LearningRate
	lr = c.DecayLR(opt, lr, 1, 10.0)
	decays := 0
	for epoch := 2; epoch <= 5; epoch++ {
		before := lr
		lr = c.DecayLR(opt, lr, epoch, 10.0)
		if lr != before {
			decays++
		}
	}
	if decays != 2 {
		t.Errorf("flat run of 4 epochs with patience 1 decayed %d times, want 2", decays)
	}
	if want := cfg.LearningRate * 0.25; math.Abs(lr-want) > 1e-12 {
		t.Errorf("lr = %v, want %v", lr, want)
	}
}

func TestMetricDecayHigherBetter(t *testing.T) {
	c, cfg := newTestController(t, func(p *config.Params) {
		p.DecayType = "metric"
		p.DecayStartEpoch = 1
		p.LowerBetter = false
	})
	opt := &SingleGroup{Group: &SGDGroup{LR: cfg.LearningRate}}

	// A rising accuracy-style metric counts as improvement.
	lr := cfg.LearningRate
	for epoch := 1; epoch <= 6; epoch++ {
		lr = c.DecayLR(opt, lr, epoch, float64(epoch))
	}
	if lr != cfg.LearningRate {
		t.Errorf("lr = %v, want unchanged for an improving metric", lr)
	}
}

func TestMetricTracksBestBeforeStartEpoch(t *testing.T) {
	c, cfg := newTestController(t, func(p *config.Params) {
		p.DecayType = "metric"
		p.DecayStartEpoch = 5
		p.DecayPatientEpoch = 0
	})
	opt := &SingleGroup{Group: &SGDGroup{LR: cfg.LearningRate}}

	// Best value is tracked during the no-decay phase, so the first
	// epoch past the start that fails to beat it decays immediately
	// with patience 0.
	lr := c.DecayLR(opt, cfg.LearningRate, 1, 3.0)
	if lr != cfg.LearningRate {
		t.Fatalf("decayed before start epoch")
	}
	lr = c.DecayLR(opt, lr, 5, 4.0)
	if lr == cfg.LearningRate {
		t.Error("stale metric past start epoch did not decay")
	}
}

func TestWarmupInverseSqrt(t *testing.T) {
	c, cfg := newTestController(t, func(p *config.Params) {
		p.DecayType = "warmup"
		p.WarmupSteps = 4000
		p.ModelSize = 256
		p.Factor = 10
	})
	opt := &SingleGroup{Group: &SGDGroup{LR: cfg.LearningRate}}

	lrInit := 10 * math.Pow(256, -0.5)

	// Ramp is increasing during warm-up.
	lrEarly := c.WarmupLR(opt, cfg.LearningRate, 100)
	lrMid := c.WarmupLR(opt, cfg.LearningRate, 2000)
	if lrEarly >= lrMid {
		t.Errorf("warm-up not increasing: lr(100)=%v lr(2000)=%v", lrEarly, lrMid)
	}

	// At the boundary both branches of the min agree.
	got := c.WarmupLR(opt, cfg.LearningRate, 4000)
	want := lrInit * math.Pow(4000, -0.5)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("lr at warmup boundary = %v, want %v", got, want)
	}

	// Past the boundary the inverse square root decays.
	after := c.WarmupLR(opt, cfg.LearningRate, 16000)
	if after >= got {
		t.Errorf("lr(16000)=%v not below peak %v", after, got)
	}
	if after <= 0 {
		t.Error("learning rate must stay positive")
	}
}

func TestWarmupLinear(t *testing.T) {
	c, cfg := newTestController(t, func(p *config.Params) {
		p.DecayType = "warmup"
		p.WarmupSteps = 100
		p.WarmupStartLR = 1e-4
		p.LearningRate = 1e-3
	})
	group := &SGDGroup{LR: cfg.LearningRate}
	opt := &SingleGroup{Group: group}

	got := c.WarmupLR(opt, cfg.LearningRate, 100)
	if math.Abs(got-1e-3) > 1e-12 {
		t.Errorf("lr at end of linear ramp = %v, want peak 1e-3", got)
	}
	if group.Rate() != got {
		t.Errorf("param group rate = %v, want %v", group.Rate(), got)
	}
}

func TestAdadeltaRateLandsInEpsilon(t *testing.T) {
	c, cfg := newTestController(t, func(p *config.Params) {
		p.DecayType = "epoch"
		p.DecayStartEpoch = 1
		p.DecayRate = 0.5
		p.Optimizer = "adadelta"
	})
	group, err := NewParamGroup(cfg.Optimizer, cfg.LearningRate)
	if err != nil {
		t.Fatal(err)
	}
	ada, ok := group.(*AdadeltaGroup)
	if !ok {
		t.Fatalf("NewParamGroup(adadelta) = %T", group)
	}

	lr := c.DecayLR(&SingleGroup{Group: group}, cfg.LearningRate, 1, 1.0)
	if ada.Eps != lr {
		t.Errorf("Eps = %v, want decayed rate %v", ada.Eps, lr)
	}
	if ada.LR != cfg.LearningRate {
		t.Errorf("LR = %v, want untouched %v", ada.LR, cfg.LearningRate)
	}
}

func TestNewParamGroupUnknownKind(t *testing.T) {
	if _, err := NewParamGroup("rmsprop", 1e-3); err == nil {
		t.Error("NewParamGroup() accepted unknown optimizer")
	}
}
