package config

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ConfigurationError reports an invalid option or option combination.
// It is raised at construction time, never mid-run.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration: " + e.Reason
}

// Errorf builds a ConfigurationError.
func Errorf(format string, args ...any) error {
	return &ConfigurationError{Reason: errors.Errorf(format, args...).Error()}
}

// Params holds one experiment's hyperparameters, the `param` block of a
// config file.
type Params struct {
	// Dataset
	DataRoot      string `yaml:"data_root"`
	SaveFormat    string `yaml:"save_format"` // numpy or htk
	DataSize      string `yaml:"data_size"`   // subset or fullset
	LabelType     string `yaml:"label_type"`  // kana, kanji, kanji_wb, word_freq*, phone...
	VocabPath     string `yaml:"vocab_path"`
	BatchSize     int    `yaml:"batch_size"`
	Splice        int    `yaml:"splice"`
	NumStack      int    `yaml:"num_stack"`
	NumSkip       int    `yaml:"num_skip"`
	Shuffle       bool   `yaml:"shuffle"`
	SortUtt       bool   `yaml:"sort_utt"`
	Reverse       bool   `yaml:"reverse"`
	SortStopEpoch int    `yaml:"sort_stop_epoch"`

	// Training
	ModelType         string  `yaml:"model_type"` // ctc or attention
	Optimizer         string  `yaml:"optimizer"`  // sgd, adam or adadelta
	LearningRate      float64 `yaml:"learning_rate"`
	NumEpochs         int     `yaml:"num_epochs"`
	EvalInterval      int     `yaml:"eval_interval"` // steps between dev evaluations
	DecayType         string  `yaml:"decay_type"`    // epoch, metric or warmup
	DecayStartEpoch   int     `yaml:"decay_start_epoch"`
	DecayRate         float64 `yaml:"decay_rate"`
	DecayPatientEpoch int     `yaml:"decay_patient_epoch"`
	LowerBetter       bool    `yaml:"lower_better"`
	ModelSize         int     `yaml:"model_size"`
	WarmupStartLR     float64 `yaml:"warmup_start_learning_rate"`
	WarmupSteps       int     `yaml:"warmup_steps"`
	Factor            float64 `yaml:"factor"`

	// Decoding
	BeamWidth     int     `yaml:"beam_width"`
	MaxDecodeLen  int     `yaml:"max_decode_len"`
	LengthPenalty float64 `yaml:"length_penalty"`

	// Output
	SavePath string `yaml:"save_path"`
	LogLevel string `yaml:"log_level"`
}

// Default returns the baseline hyperparameters a config file overrides.
func Default() Params {
	return Params{
		SaveFormat:        "numpy",
		DataSize:          "fullset",
		BatchSize:         32,
		Splice:            1,
		NumStack:          1,
		NumSkip:           1,
		Optimizer:         "adam",
		LearningRate:      1e-3,
		NumEpochs:         25,
		EvalInterval:      200,
		DecayType:         "epoch",
		DecayStartEpoch:   10,
		DecayRate:         0.9,
		DecayPatientEpoch: 1,
		LowerBetter:       true,
		ModelSize:         1,
		WarmupSteps:       4000,
		Factor:            1,
		BeamWidth:         1,
		MaxDecodeLen:      100,
		LogLevel:          "info",
	}
}

// file is the on-disk shape: a `param` block plus an optional `parent`
// config whose params are loaded first and overridden key-by-key.
type file struct {
	Parent string         `yaml:"parent"`
	Param  map[string]any `yaml:"param"`
}

// Load reads a YAML config file, resolving parent inheritance. Relative
// parent paths are resolved against the child file's directory.
func Load(path string) (*Params, error) {
	merged, err := loadParams(path, 0)
	if err != nil {
		return nil, err
	}

	p := Default()
	if err := remarshal(merged, &p); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

const maxParentDepth = 8

func loadParams(path string, depth int) (map[string]any, error) {
	if depth > maxParentDepth {
		return nil, Errorf("parent chain deeper than %d at %s", maxParentDepth, path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	if f.Param == nil {
		return nil, Errorf("config %s has no param block", path)
	}
	if f.Parent == "" {
		return f.Param, nil
	}

	parentPath := f.Parent
	if !filepath.IsAbs(parentPath) {
		parentPath = filepath.Join(filepath.Dir(path), parentPath)
	}
	params, err := loadParams(parentPath, depth+1)
	if err != nil {
		return nil, err
	}
	for k, v := range f.Param {
		params[k] = v
	}
	return params, nil
}

func remarshal(m map[string]any, out *Params) error {
	raw, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(raw, out)
}

// Save writes the merged params back into dir as config.yml so a run
// directory is self-describing.
func (p *Params) Save(dir string) error {
	raw, err := yaml.Marshal(map[string]*Params{"param": p})
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	return os.WriteFile(filepath.Join(dir, "config.yml"), raw, 0o644)
}

// Validate rejects invalid option combinations.
func (p *Params) Validate() error {
	if p.Shuffle && p.SortUtt {
		return Errorf("shuffle and sort_utt are mutually exclusive")
	}
	switch p.DecayType {
	case "epoch", "metric", "warmup":
	default:
		return Errorf("unsupported decay_type %q", p.DecayType)
	}
	if p.DecayType == "warmup" && p.WarmupSteps <= 0 {
		return Errorf("decay_type warmup requires warmup_steps > 0")
	}
	// The sign convention of plateau decay combined with a per-step
	// warm-up ramp is undefined, so the combination is rejected.
	if p.DecayType == "metric" && p.WarmupStartLR > 0 {
		return Errorf("metric decay cannot be combined with a warm-up ramp")
	}
	if p.LearningRate <= 0 {
		return Errorf("learning_rate must be positive")
	}
	if p.BatchSize <= 0 {
		return Errorf("batch_size must be positive")
	}
	return nil
}
