package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/speechgo/csjtrain/config"
	"github.com/speechgo/csjtrain/dataset"
	"github.com/speechgo/csjtrain/model"
	"github.com/speechgo/csjtrain/trainer"
)

func newTrainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Run one training experiment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			if cfg.SavePath != "" {
				if err := cfg.Save(cfg.SavePath); err != nil {
					return err
				}
			}

			train, err := dataset.New(cfg, "train", log)
			if err != nil {
				return err
			}
			dev, err := dataset.New(cfg, "dev", log)
			if err != nil {
				return err
			}
			vocab, err := dataset.LoadVocab(cfg.VocabPath)
			if err != nil {
				return err
			}

			handle, err := model.Open(viper.GetString("backend"), map[string]any{
				"model_type": cfg.ModelType,
				"save_path":  cfg.SavePath,
				"vocab_size": vocab.Size(),
			})
			if err != nil {
				return err
			}
			m, ok := handle.(model.Trainable)
			if !ok {
				return config.Errorf("backend %q is not trainable", viper.GetString("backend"))
			}
			src, ok := handle.(model.FeatureSource)
			if !ok {
				return config.Errorf("backend %q provides no feature source", viper.GetString("backend"))
			}

			group, err := trainer.NewParamGroup(cfg.Optimizer, cfg.LearningRate)
			if err != nil {
				return err
			}
			loop, err := trainer.NewLoop(cfg, train, dev, vocab, src, m,
				&trainer.SingleGroup{Group: group}, log)
			if err != nil {
				return err
			}

			log.WithField("save_path", cfg.SavePath).Info("training started")
			return loop.Run(cmd.Context())
		},
	}
}
