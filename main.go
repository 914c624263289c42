package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/speechgo/csjtrain/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "csjtrain",
		Short:         "Train and evaluate end-to-end speech recognition models",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().String("config", "", "experiment config file (YAML)")
	root.PersistentFlags().String("log-level", "", "override the config log level")
	root.PersistentFlags().String("backend", "", "model backend to load")

	viper.SetEnvPrefix("CSJTRAIN")
	viper.AutomaticEnv()
	_ = viper.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("backend", root.PersistentFlags().Lookup("backend"))

	root.AddCommand(newTrainCmd(), newEvalCmd())
	return root
}

// setup loads the experiment config and builds its logger. The logger
// writes to stderr and, when a save path is configured, to a log file
// in the run directory.
func setup() (*config.Params, *logrus.Logger, error) {
	path := viper.GetString("config")
	if path == "" {
		return nil, nil, config.Errorf("no config file given (--config or CSJTRAIN_CONFIG)")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if lvl := viper.GetString("log_level"); lvl != "" {
		cfg.LogLevel = lvl
	}

	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, config.Errorf("bad log_level %q", cfg.LogLevel)
	}
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if cfg.SavePath != "" {
		if err := os.MkdirAll(cfg.SavePath, 0o755); err != nil {
			return nil, nil, errors.Wrap(err, "save path")
		}
		f, err := os.OpenFile(filepath.Join(cfg.SavePath, "run.log"),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open run log")
		}
		log.SetOutput(io.MultiWriter(os.Stderr, f))
	}
	return cfg, log, nil
}
