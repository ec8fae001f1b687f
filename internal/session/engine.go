package session

import (
	"time"

	"vdiff/internal/config"
	"vdiff/internal/divergence"
	"vdiff/internal/labels"
	"vdiff/internal/pipeline"
	"vdiff/internal/services/detector"
	"vdiff/internal/similarity"
)

const detectorMaxBackoff = 10 * time.Second

type engine struct {
	vocab     *labels.Vocabulary
	localizer labels.Localizer
	policy    labels.Policy
	comps     pipeline.Components
}

func buildEngine(cfg *config.Config, mode divergence.Mode) (*engine, error) {
	vocab, err := labels.NewVocabulary(cfg.Labels.Vocabulary, cfg.Labels.ErrorClass)
	if err != nil {
		return nil, err
	}
	if len(cfg.Labels.DisplayNames) > 0 {
		if vocab, err = vocab.WithDisplayNames(cfg.Labels.DisplayNameTable()); err != nil {
			return nil, err
		}
	}
	extractor, err := labels.NewExtractor(vocab, cfg.Engine.ConfidenceThreshold)
	if err != nil {
		return nil, err
	}
	policy, err := labels.ParsePolicy(cfg.Engine.UnknownLabelPolicy)
	if err != nil {
		return nil, err
	}
	classifier, err := divergence.New(mode, vocab)
	if err != nil {
		return nil, err
	}
	eng := &engine{
		vocab:     vocab,
		localizer: vocab.Localizer(cfg.Labels.Locale),
		policy:    policy,
		comps:     pipeline.Components{Extractor: extractor, Classifier: classifier},
	}
	if mode == divergence.ModeDual {
		gate, err := similarity.NewFilter(cfg.Engine.PixelSimilarityThreshold, cfg.Engine.SimilarityWidth)
		if err != nil {
			return nil, err
		}
		eng.comps.Gate = gate
	}
	return eng, nil
}

func (s *Session) buildDetector() (pipeline.Detector, error) {
	if s.detector != nil {
		return s.detector, nil
	}
	cfg := s.cfg.Detector
	if cfg.Mode == "file" {
		classifier, err := detector.LoadFile(cfg.DetectionsFile)
		if err != nil {
			return nil, err
		}
		return classifier, nil
	}
	return detector.NewClient(detector.Config{
		URL:            cfg.URL,
		APIKey:         cfg.APIKey,
		TimeoutSeconds: cfg.TimeoutSeconds,
		JPEGQuality:    cfg.JPEGQuality,
	},
		detector.WithRetryMaxAttempts(cfg.RetryMaxAttempts),
		detector.WithRetryBackoff(time.Duration(cfg.RetryBackoffMillis)*time.Millisecond, detectorMaxBackoff),
	), nil
}
