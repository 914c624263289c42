package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/speechgo/csjtrain/config"
	"github.com/speechgo/csjtrain/dataset"
	"github.com/speechgo/csjtrain/metrics"
	"github.com/speechgo/csjtrain/model"
)

func newEvalCmd() *cobra.Command {
	var split string

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Score a trained model on an evaluation set",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}

			ds, err := dataset.New(cfg, split, log)
			if err != nil {
				return err
			}
			vocab, err := dataset.LoadVocab(cfg.VocabPath)
			if err != nil {
				return err
			}

			// Comma-separated backends form a posterior ensemble.
			var decoders []model.Decoder
			var src model.FeatureSource
			for _, name := range strings.Split(viper.GetString("backend"), ",") {
				handle, err := model.Open(strings.TrimSpace(name), map[string]any{
					"model_type": cfg.ModelType,
					"save_path":  cfg.SavePath,
					"vocab_size": vocab.Size(),
				})
				if err != nil {
					return err
				}
				dec, ok := handle.(model.Decoder)
				if !ok {
					return config.Errorf("backend %q cannot decode", name)
				}
				decoders = append(decoders, dec)
				if src == nil {
					if s, ok := handle.(model.FeatureSource); ok {
						src = s
					}
				}
			}
			if src == nil {
				return config.Errorf("no backend provides a feature source")
			}

			res, err := metrics.Evaluate(cmd.Context(), decoders, src, ds, vocab, metrics.Options{
				BatchSize:     cfg.BatchSize,
				BeamWidth:     cfg.BeamWidth,
				MaxDecodeLen:  cfg.MaxDecodeLen,
				LengthPenalty: cfg.LengthPenalty,
				Attention:     cfg.ModelType == "attention",
			}, log)
			if err != nil {
				return err
			}

			log.Infof("%s: CER %.2f%% (S=%d I=%d D=%d, skipped %d)",
				split, res.CER*100, res.Chars.Sub, res.Chars.Ins, res.Chars.Del, res.Chars.Skipped)
			if strings.Contains(cfg.LabelType, "_wb") {
				log.Infof("%s: WER %.2f%% (S=%d I=%d D=%d)",
					split, res.WER*100, res.Words.Sub, res.Words.Ins, res.Words.Del)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&split, "split", "eval1", "evaluation split to score")
	return cmd
}
