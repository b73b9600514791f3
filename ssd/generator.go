package ssd

import (
	"math"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Generator produces positive and negative prior boxes for batches of images
type Generator struct {
	opts   Options
	logger logrus.FieldLogger
}

// NewDefaultGenerator creates a generator with DefaultOptions
func NewDefaultGenerator() *Generator {
	return &Generator{
		opts:   DefaultOptions(),
		logger: discardLogger(),
	}
}

// NewGenerator creates a generator with specified options
func NewGenerator(opts Options) (*Generator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Generator{
		opts:   opts,
		logger: discardLogger(),
	}, nil
}

// SetLogger sets logger. Nil means no logging.
func (gen *Generator) SetLogger(logger logrus.FieldLogger) {
	if logger == nil {
		logger = discardLogger()
	}
	gen.logger = logger
}

// Options returns generator's options
func (gen *Generator) Options() Options {
	return gen.opts
}

// GenerateMatchIndices is a shorthand for NewGenerator(opts) + Generator.GenerateMatchIndices
func GenerateMatchIndices(batch *Batch, opts Options) (*Targets, error) {
	gen, err := NewGenerator(opts)
	if err != nil {
		return nil, err
	}
	return gen.GenerateMatchIndices(batch)
}

// GenerateMatchIndices matches priors to ground truth boxes of every image and mines hard negatives,
// so that |negatives| <= NegPosRatio * |positives| per image.
// Results are in image order whether images are processed sequentially or concurrently.
func (gen *Generator) GenerateMatchIndices(batch *Batch) (*Targets, error) {
	if err := validateBatch(batch); err != nil {
		return nil, err
	}

	// Priors are shared read-only by every image
	priorBBoxes, err := AppendPriorBBoxes(make([]NormalizedBBox, 0, batch.NumPriors), batch.PriorData, batch.NumPriors)
	if err != nil {
		return nil, err
	}

	targets := &Targets{
		ID:     uuid.New(),
		Images: make([]ImageTargets, batch.BatchSize),
	}
	log := gen.logger.WithField("batch_id", targets.ID)

	process := func(n int) error {
		img, err := gen.matchImage(batch, priorBBoxes, n)
		if err != nil {
			return errors.Wrapf(err, "image %d", n)
		}
		targets.Images[n] = img
		log.WithFields(logrus.Fields{
			"image":     n,
			"positives": img.NumPositives(),
			"negatives": len(img.NegIndices),
		}).Trace("image matched")
		return nil
	}

	if gen.opts.Workers > 1 && batch.BatchSize > 1 {
		var group errgroup.Group
		group.SetLimit(gen.opts.Workers)
		for n := 0; n < batch.BatchSize; n++ {
			group.Go(func() error {
				return process(n)
			})
		}
		if err := group.Wait(); err != nil {
			return nil, err
		}
	} else {
		for n := 0; n < batch.BatchSize; n++ {
			if err := process(n); err != nil {
				return nil, err
			}
		}
	}

	for n := range targets.Images {
		targets.NumMatches += targets.Images[n].NumPositives()
		targets.NumNegs += len(targets.Images[n].NegIndices)
	}
	log.WithFields(logrus.Fields{
		"images":    batch.BatchSize,
		"priors":    batch.NumPriors,
		"matches":   targets.NumMatches,
		"negatives": targets.NumNegs,
	}).Debug("batch targets generated")
	return targets, nil
}

func (gen *Generator) matchImage(batch *Batch, priorBBoxes []NormalizedBBox, n int) (ImageTargets, error) {
	numGTBBoxes := 0
	if n < batch.SeqNum {
		numGTBBoxes = batch.GTStartPos[n+1] - batch.GTStartPos[n]
	}
	if numGTBBoxes == 0 {
		matchIndices, matchOverlaps := MatchBBox(priorBBoxes, nil, gen.opts.OverlapThreshold)
		return ImageTargets{
			MatchIndices:  matchIndices,
			MatchOverlaps: matchOverlaps,
			NegIndices:    []int{},
		}, nil
	}

	gtBBoxes, err := AppendLabelBBoxes(make([]NormalizedBBox, 0, numGTBBoxes), batch.GTData[batch.GTStartPos[n]*LabelStride:], numGTBBoxes)
	if err != nil {
		return ImageTargets{}, err
	}
	matchIndices, matchOverlaps := MatchBBox(priorBBoxes, gtBBoxes, gen.opts.OverlapThreshold)
	negIndices, err := MineHardNegatives(matchIndices, matchOverlaps, batch.MaxConfScores[n], gen.opts.NegOverlapThreshold, gen.opts.NegPosRatio)
	if err != nil {
		return ImageTargets{}, err
	}
	return ImageTargets{
		MatchIndices:  matchIndices,
		MatchOverlaps: matchOverlaps,
		NegIndices:    negIndices,
	}, nil
}

// MineHardNegatives selects negative priors of one image.
// Candidates are unmatched priors with best overlap below negOverlapThreshold. The most confident
// candidates are taken first (ties go to the lowest prior index), at most floor(negPosRatio * positives).
func MineHardNegatives(matchIndices []int, matchOverlaps, maxConfScores []float64, negOverlapThreshold, negPosRatio float64) ([]int, error) {
	if negPosRatio < 0 {
		return nil, errors.Wrapf(ErrNegativeRatio, "neg_pos_ratio %f", negPosRatio)
	}
	if len(matchOverlaps) != len(matchIndices) {
		return nil, errors.Wrapf(ErrShortBuffer, "%d overlaps for %d priors", len(matchOverlaps), len(matchIndices))
	}
	if len(maxConfScores) != len(matchIndices) {
		return nil, errors.Wrapf(ErrBadConfidence, "%d scores for %d priors", len(maxConfScores), len(matchIndices))
	}

	numPos := 0
	candidates := make([]ScorePair[int], 0, len(matchIndices))
	for i, gtIdx := range matchIndices {
		if gtIdx != Unmatched {
			numPos++
			continue
		}
		if matchOverlaps[i] < negOverlapThreshold {
			candidates = append(candidates, ScorePair[int]{Score: maxConfScores[i], Payload: i})
		}
	}

	numNeg := int(math.Floor(negPosRatio * float64(numPos)))
	if numNeg > len(candidates) {
		numNeg = len(candidates)
	}
	selected := TopKScorePairs(candidates, numNeg)
	negIndices := make([]int, len(selected))
	for i := range selected {
		negIndices[i] = selected[i].Payload
	}
	return negIndices, nil
}

func validateBatch(batch *Batch) error {
	if batch == nil {
		return errors.Wrap(ErrShortBuffer, "nil batch")
	}
	if batch.BatchSize < 0 || batch.NumPriors < 0 || batch.SeqNum < 0 {
		return errors.Wrapf(ErrNegativeCount, "batch %d, priors %d, sequences %d", batch.BatchSize, batch.NumPriors, batch.SeqNum)
	}
	if batch.SeqNum > 0 {
		if len(batch.GTStartPos) < batch.SeqNum+1 {
			return errors.Wrapf(ErrBadSequence, "%d start positions for %d sequences", len(batch.GTStartPos), batch.SeqNum)
		}
		if batch.GTStartPos[0] < 0 {
			return errors.Wrapf(ErrBadSequence, "first start position %d", batch.GTStartPos[0])
		}
		for n := 0; n < batch.SeqNum; n++ {
			if batch.GTStartPos[n+1] < batch.GTStartPos[n] {
				return errors.Wrapf(ErrBadSequence, "sequence %d ends at %d before it starts at %d", n, batch.GTStartPos[n+1], batch.GTStartPos[n])
			}
		}
		if end := batch.GTStartPos[batch.SeqNum]; end*LabelStride > len(batch.GTData) {
			return errors.Wrapf(ErrBadSequence, "sequences end at record %d, buffer holds %d", end, len(batch.GTData)/LabelStride)
		}
	}
	if len(batch.MaxConfScores) < batch.BatchSize {
		return errors.Wrapf(ErrBadConfidence, "%d score vectors for %d images", len(batch.MaxConfScores), batch.BatchSize)
	}
	for n := 0; n < batch.BatchSize; n++ {
		if len(batch.MaxConfScores[n]) != batch.NumPriors {
			return errors.Wrapf(ErrBadConfidence, "image %d has %d scores for %d priors", n, len(batch.MaxConfScores[n]), batch.NumPriors)
		}
	}
	return nil
}
