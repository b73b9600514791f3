package ssd

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Options controls matching and hard negative mining
type Options struct {
	// Low boundary of overlap for a prior to be matched in the second matching phase
	OverlapThreshold float64 `yaml:"overlap_threshold"`
	// Unmatched priors with best overlap below this value are negative candidates
	NegOverlapThreshold float64 `yaml:"neg_overlap_threshold"`
	// Max number of negatives per positive in each image
	NegPosRatio float64 `yaml:"neg_pos_ratio"`
	// Class excluded from max confidence scores
	BackgroundID int `yaml:"background_id"`
	// How max confidence scores are derived from class scores
	ScoreMode ScoreMode `yaml:"score_mode"`
	// Number of images processed concurrently. 0 or 1 means sequential
	Workers int `yaml:"workers"`
}

// DefaultOptions returns SSD defaults.
// Default values: OverlapThreshold=0.5, NegOverlapThreshold=0.5, NegPosRatio=3, BackgroundID=0, ScoreMode=raw, Workers=1
func DefaultOptions() Options {
	return Options{
		OverlapThreshold:    0.5,
		NegOverlapThreshold: 0.5,
		NegPosRatio:         3.0,
		BackgroundID:        0,
		ScoreMode:           ScoreRaw,
		Workers:             1,
	}
}

// NewOptions creates options with specified thresholds and ratio, the rest is default
func NewOptions(overlapThreshold, negOverlapThreshold, negPosRatio float64) Options {
	opts := DefaultOptions()
	opts.OverlapThreshold = overlapThreshold
	opts.NegOverlapThreshold = negOverlapThreshold
	opts.NegPosRatio = negPosRatio
	return opts
}

// ParseOptions reads YAML (or JSON) options. Omitted keys keep default values.
func ParseOptions(data []byte) (Options, error) {
	opts := DefaultOptions()
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, errors.Wrap(err, "Can't parse options")
	}
	return opts, opts.Validate()
}

// LoadOptions reads options from file
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultOptions(), errors.Wrapf(err, "Can't read options file '%s'", path)
	}
	return ParseOptions(data)
}

// Validate checks that options describe a usable configuration.
// OverlapThreshold above 1 is allowed: it turns the second matching phase off.
func (opts Options) Validate() error {
	if opts.OverlapThreshold < 0 {
		return errors.Wrapf(ErrBadOption, "overlap_threshold %f is negative", opts.OverlapThreshold)
	}
	if opts.NegOverlapThreshold < 0 || opts.NegOverlapThreshold > 1 {
		return errors.Wrapf(ErrBadOption, "neg_overlap_threshold %f is not in [0, 1]", opts.NegOverlapThreshold)
	}
	if opts.NegPosRatio < 0 {
		return errors.Wrapf(ErrNegativeRatio, "neg_pos_ratio %f", opts.NegPosRatio)
	}
	if opts.BackgroundID < 0 {
		return errors.Wrapf(ErrBadOption, "background_id %d", opts.BackgroundID)
	}
	switch opts.ScoreMode {
	case ScoreRaw, ScoreSoftmax, "":
	default:
		return errors.Wrapf(ErrBadOption, "unknown score_mode '%s'", opts.ScoreMode)
	}
	if opts.Workers < 0 {
		return errors.Wrapf(ErrBadOption, "workers %d", opts.Workers)
	}
	return nil
}
