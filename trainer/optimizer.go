// Package trainer drives a training run: learning-rate control, metric
// reporting and the step loop around an externally-owned model.
package trainer

import "github.com/speechgo/csjtrain/config"

// ParamGroup is the per-group rate capability of an optimizer. The
// controller only ever reads and writes through it, so no optimizer
// type inspection happens at decay time.
type ParamGroup interface {
	Rate() float64
	SetRate(float64)
}

// Optimizer is the externally-owned optimizer whose parameter groups
// the controller mutates.
type Optimizer interface {
	ParamGroups() []ParamGroup
}

// SGDGroup stores the adapted value in its learning-rate field. Adam
// behaves the same way.
type SGDGroup struct {
	LR float64
}

func (g *SGDGroup) Rate() float64     { return g.LR }
func (g *SGDGroup) SetRate(v float64) { g.LR = v }

// AdadeltaGroup derives its step size from accumulated gradients, so
// the adapted value lands in the epsilon field instead.
type AdadeltaGroup struct {
	LR  float64
	Eps float64
}

func (g *AdadeltaGroup) Rate() float64     { return g.Eps }
func (g *AdadeltaGroup) SetRate(v float64) { g.Eps = v }

// NewParamGroup builds the rate capability for an optimizer kind.
func NewParamGroup(kind string, lr float64) (ParamGroup, error) {
	switch kind {
	case "sgd", "adam", "momentum":
		return &SGDGroup{LR: lr}, nil
	case "adadelta":
		return &AdadeltaGroup{LR: lr, Eps: lr}, nil
	}
	return nil, config.Errorf("unknown optimizer %q", kind)
}

// SingleGroup wraps one parameter group as an Optimizer.
type SingleGroup struct {
	Group ParamGroup
}

func (s *SingleGroup) ParamGroups() []ParamGroup { return []ParamGroup{s.Group} }
