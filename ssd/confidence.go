package ssd

import (
	"math"
	"slices"

	"github.com/pkg/errors"
)

// ScoreMode selects how per-prior confidence is derived from class scores
type ScoreMode string

const (
	// ScoreRaw takes the maximum non-background score as is
	ScoreRaw = ScoreMode("raw")
	// ScoreSoftmax takes the softmax probability of the maximum non-background class
	ScoreSoftmax = ScoreMode("softmax")
)

// AppendMaxConfidenceScores appends to dst, for every image, the maximum confidence of each prior
// over all classes except backgroundID.
// Layout of confData: class1 score | class2 score | ... | classN score, per prior, per image.
// There must be at least one class besides background unless there is nothing to score.
func AppendMaxConfidenceScores(dst [][]float64, confData []float64, batchSize, numPriorBBoxes, numClasses, backgroundID int, mode ScoreMode) ([][]float64, error) {
	if batchSize < 0 || numPriorBBoxes < 0 || numClasses < 0 {
		return dst, errors.Wrapf(ErrNegativeCount, "confidence: batch %d, priors %d, classes %d", batchSize, numPriorBBoxes, numClasses)
	}
	if batchSize*numPriorBBoxes > 0 && numClasses < 2 {
		return dst, errors.Wrapf(ErrBadConfidence, "%d classes, background and at least one object class are required", numClasses)
	}
	if backgroundID < 0 || (numClasses > 0 && backgroundID >= numClasses) {
		return dst, errors.Wrapf(ErrBadConfidence, "background id %d out of %d classes", backgroundID, numClasses)
	}
	if err := checkBuffer("confidence", confData, batchSize*numPriorBBoxes, numClasses); err != nil {
		return dst, err
	}
	scoreFn := maxPositiveScore
	switch mode {
	case ScoreRaw, "":
	case ScoreSoftmax:
		scoreFn = maxPositiveSoftmax
	default:
		return dst, errors.Wrapf(ErrBadOption, "unknown score mode '%s'", mode)
	}

	dst = slices.Grow(dst, batchSize)
	for n := 0; n < batchSize; n++ {
		imageScores := make([]float64, numPriorBBoxes)
		imageOffset := n * numPriorBBoxes * numClasses
		for j := 0; j < numPriorBBoxes; j++ {
			offset := imageOffset + j*numClasses
			imageScores[j] = scoreFn(confData[offset:offset+numClasses], backgroundID)
		}
		dst = append(dst, imageScores)
	}
	return dst, nil
}

func maxPositiveScore(scores []float64, backgroundID int) float64 {
	maxPosVal := math.Inf(-1)
	for c, score := range scores {
		if c == backgroundID {
			continue
		}
		maxPosVal = math.Max(maxPosVal, score)
	}
	return maxPosVal
}

func maxPositiveSoftmax(scores []float64, backgroundID int) float64 {
	maxPosVal := maxPositiveScore(scores, backgroundID)
	maxVal := math.Inf(-1)
	for _, score := range scores {
		maxVal = math.Max(maxVal, score)
	}
	sum := 0.0
	for _, score := range scores {
		sum += math.Exp(score - maxVal)
	}
	return math.Exp(maxPosVal-maxVal) / sum
}
