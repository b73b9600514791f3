package ssd

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func priorRecord(bbox NormalizedBBox) []float64 {
	return []float64{bbox.XMin, bbox.YMin, bbox.XMax, bbox.YMax, 0.1, 0.1, 0.2, 0.2}
}

func labelRecord(class int, bbox NormalizedBBox) []float64 {
	return []float64{float64(class), bbox.XMin, bbox.YMin, bbox.XMax, bbox.YMax, 0}
}

// quadrantBatch builds a batch over 4 quadrant priors
func quadrantBatch(gtPerImage [][]NormalizedBBox, scores [][]float64) *Batch {
	quadrants := []NormalizedBBox{
		NewNormalizedBBox(0, 0, 0.5, 0.5),
		NewNormalizedBBox(0.5, 0, 1, 0.5),
		NewNormalizedBBox(0, 0.5, 0.5, 1),
		NewNormalizedBBox(0.5, 0.5, 1, 1),
	}
	batch := &Batch{
		NumPriors:     len(quadrants),
		GTStartPos:    []int{0},
		SeqNum:        len(gtPerImage),
		BatchSize:     len(gtPerImage),
		MaxConfScores: scores,
	}
	for _, prior := range quadrants {
		batch.PriorData = append(batch.PriorData, priorRecord(prior)...)
	}
	for n, gts := range gtPerImage {
		for _, gt := range gts {
			batch.GTData = append(batch.GTData, labelRecord(1, gt)...)
		}
		batch.GTStartPos = append(batch.GTStartPos, batch.GTStartPos[n]+len(gts))
	}
	return batch
}

func TestGenerateMatchIndicesScenario(t *testing.T) {
	batch := &Batch{
		PriorData: append(
			priorRecord(NewNormalizedBBox(0, 0, 0.5, 0.5)),
			priorRecord(NewNormalizedBBox(0.5, 0.5, 1, 1))...,
		),
		NumPriors:     2,
		GTData:        labelRecord(1, NewNormalizedBBox(0, 0, 0.4, 0.4)),
		GTStartPos:    []int{0, 1},
		SeqNum:        1,
		MaxConfScores: [][]float64{{0.2, 0.8}},
		BatchSize:     1,
	}

	targets, err := GenerateMatchIndices(batch, NewOptions(0.5, 0.5, 3))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, targets.ID)
	assert.Equal(t, 1, targets.NumMatches)
	assert.Equal(t, 1, targets.NumNegs)
	assert.Equal(t, [][]int{{0, Unmatched}}, targets.MatchIndices())
	assert.Equal(t, [][]int{{1}}, targets.NegIndices())
	assert.Equal(t, []int{0}, targets.Images[0].Positives())
}

func TestGenerateMatchIndicesPositivesPerGroundTruth(t *testing.T) {
	batch := quadrantBatch(
		[][]NormalizedBBox{
			{NewNormalizedBBox(0, 0, 0.5, 0.5), NewNormalizedBBox(0.5, 0.5, 1, 1)},
			{NewNormalizedBBox(0.6, 0.1, 0.9, 0.4)},
			{NewNormalizedBBox(0, 0.5, 0.5, 1), NewNormalizedBBox(0.5, 0, 1, 0.5), NewNormalizedBBox(0.1, 0.1, 0.2, 0.2)},
		},
		[][]float64{{0.1, 0.2, 0.3, 0.4}, {0.1, 0.2, 0.3, 0.4}, {0.1, 0.2, 0.3, 0.4}},
	)

	targets, err := GenerateMatchIndices(batch, NewOptions(0.5, 0.5, 3))
	require.NoError(t, err)
	assert.Equal(t, 6, targets.NumMatches)
	assert.Equal(t, []int{0, 3}, targets.Images[0].Positives())
	assert.Equal(t, []int{1}, targets.Images[1].Positives())
	assert.Equal(t, []int{0, 1, 2}, targets.Images[2].Positives())

	// Negatives are capped by the number of candidates
	assert.Equal(t, []int{2, 1}, targets.Images[0].NegIndices)
	assert.Equal(t, []int{3, 2, 0}, targets.Images[1].NegIndices)
	assert.Equal(t, []int{3}, targets.Images[2].NegIndices)
	assert.Equal(t, 6, targets.NumNegs)
}

func TestGenerateMatchIndicesHardNegativeTieBreak(t *testing.T) {
	priors := []NormalizedBBox{
		NewNormalizedBBox(0, 0, 0.5, 0.5),
		NewNormalizedBBox(0.5, 0.5, 1, 1),
	}
	// Small priors in the top right quadrant overlap no ground truth
	for k := 0; k < 8; k++ {
		xMin := 0.55 + float64(k)*0.05
		priors = append(priors, NewNormalizedBBox(xMin, 0.1, xMin+0.03, 0.2))
	}
	batch := &Batch{
		NumPriors:     len(priors),
		GTData:        append(labelRecord(1, priors[0]), labelRecord(2, priors[1])...),
		GTStartPos:    []int{0, 2},
		SeqNum:        1,
		MaxConfScores: [][]float64{{0, 0, 0.3, 0.9, 0.3, 0.9, 0.5, 0.3, 0.1, 0.9}},
		BatchSize:     1,
	}
	for _, prior := range priors {
		batch.PriorData = append(batch.PriorData, priorRecord(prior)...)
	}

	targets, err := GenerateMatchIndices(batch, NewOptions(0.5, 0.5, 3))
	require.NoError(t, err)
	assert.Equal(t, 2, targets.NumMatches)
	assert.Equal(t, []int{3, 5, 9, 6, 2, 4}, targets.Images[0].NegIndices)
	assert.Equal(t, 6, targets.NumNegs)
}

func TestGenerateMatchIndicesImagesWithoutGroundTruth(t *testing.T) {
	batch := quadrantBatch(
		[][]NormalizedBBox{
			{NewNormalizedBBox(0, 0, 0.5, 0.5)},
			{},
		},
		[][]float64{{0.1, 0.2, 0.3, 0.4}, {0.9, 0.9, 0.9, 0.9}, {0.9, 0.9, 0.9, 0.9}},
	)
	// Third image is beyond the sequences
	batch.BatchSize = 3

	targets, err := GenerateMatchIndices(batch, NewOptions(0.5, 0.5, 1))
	require.NoError(t, err)
	require.Len(t, targets.Images, 3)
	assert.Equal(t, 1, targets.NumMatches)
	assert.Equal(t, 1, targets.NumNegs)
	assert.Equal(t, []int{3}, targets.Images[0].NegIndices)
	for _, n := range []int{1, 2} {
		assert.Equal(t, []int{Unmatched, Unmatched, Unmatched, Unmatched}, targets.Images[n].MatchIndices)
		assert.Empty(t, targets.Images[n].NegIndices)
		assert.Empty(t, targets.Images[n].Positives())
	}
}

func TestGenerateMatchIndicesParallel(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	randomBBox := func(maxSize float64) NormalizedBBox {
		w := 0.05 + rng.Float64()*maxSize
		h := 0.05 + rng.Float64()*maxSize
		x := rng.Float64() * (1 - w)
		y := rng.Float64() * (1 - h)
		return NewNormalizedBBox(x, y, x+w, y+h)
	}

	const (
		numImages = 16
		numPriors = 64
	)
	batch := &Batch{
		NumPriors:  numPriors,
		GTStartPos: []int{0},
		SeqNum:     numImages,
		BatchSize:  numImages,
	}
	for i := 0; i < numPriors; i++ {
		batch.PriorData = append(batch.PriorData, priorRecord(randomBBox(0.4))...)
	}
	for n := 0; n < numImages; n++ {
		numGT := rng.Intn(5)
		for j := 0; j < numGT; j++ {
			batch.GTData = append(batch.GTData, labelRecord(1, randomBBox(0.5))...)
		}
		batch.GTStartPos = append(batch.GTStartPos, batch.GTStartPos[n]+numGT)
		scores := make([]float64, numPriors)
		for i := range scores {
			scores[i] = float64(rng.Intn(4)) / 4
		}
		batch.MaxConfScores = append(batch.MaxConfScores, scores)
	}

	sequential, err := GenerateMatchIndices(batch, DefaultOptions())
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.Workers = 4
	parallel, err := GenerateMatchIndices(batch, opts)
	require.NoError(t, err)

	assert.Equal(t, sequential.Images, parallel.Images)
	assert.Equal(t, sequential.NumMatches, parallel.NumMatches)
	assert.Equal(t, sequential.NumNegs, parallel.NumNegs)
	assert.GreaterOrEqual(t, sequential.NumMatches, batch.GTStartPos[numImages])

	// Without the second matching phase every ground truth owns exactly one prior
	opts.OverlapThreshold = 1.1
	bipartiteOnly, err := GenerateMatchIndices(batch, opts)
	require.NoError(t, err)
	assert.Equal(t, batch.GTStartPos[numImages], bipartiteOnly.NumMatches)
}

func TestGenerateMatchIndicesBadBatch(t *testing.T) {
	scores := [][]float64{{0, 0, 0, 0}, {0, 0, 0, 0}}
	valid := func() *Batch {
		return quadrantBatch(
			[][]NormalizedBBox{{NewNormalizedBBox(0, 0, 0.5, 0.5)}, {NewNormalizedBBox(0.5, 0.5, 1, 1)}},
			scores,
		)
	}
	gen := NewDefaultGenerator()

	_, err := gen.GenerateMatchIndices(valid())
	require.NoError(t, err)

	_, err = gen.GenerateMatchIndices(nil)
	assert.Error(t, err)

	batch := valid()
	batch.GTStartPos = []int{0, 2, 1}
	_, err = gen.GenerateMatchIndices(batch)
	assert.ErrorIs(t, err, ErrBadSequence)

	batch = valid()
	batch.GTStartPos = []int{0, 1, 3}
	_, err = gen.GenerateMatchIndices(batch)
	assert.ErrorIs(t, err, ErrBadSequence)

	batch = valid()
	batch.GTStartPos = []int{0, 1}
	_, err = gen.GenerateMatchIndices(batch)
	assert.ErrorIs(t, err, ErrBadSequence)

	batch = valid()
	batch.MaxConfScores = scores[:1]
	_, err = gen.GenerateMatchIndices(batch)
	assert.ErrorIs(t, err, ErrBadConfidence)

	batch = valid()
	batch.MaxConfScores = [][]float64{{0, 0, 0, 0}, {0, 0}}
	_, err = gen.GenerateMatchIndices(batch)
	assert.ErrorIs(t, err, ErrBadConfidence)

	batch = valid()
	batch.NumPriors = -1
	_, err = gen.GenerateMatchIndices(batch)
	assert.ErrorIs(t, err, ErrNegativeCount)

	batch = valid()
	batch.NumPriors = 5
	batch.MaxConfScores = [][]float64{{0, 0, 0, 0, 0}, {0, 0, 0, 0, 0}}
	_, err = gen.GenerateMatchIndices(batch)
	assert.ErrorIs(t, err, ErrShortBuffer)

	_, err = NewGenerator(NewOptions(0.5, 0.5, -1))
	assert.ErrorIs(t, err, ErrNegativeRatio)
}

func TestMineHardNegatives(t *testing.T) {
	matchIndices := []int{0, Unmatched, Unmatched, Unmatched}
	matchOverlaps := []float64{1, 0.3, 0.1, 0}
	scores := []float64{0.9, 0.99, 0.5, 0.5}

	negIndices, err := MineHardNegatives(matchIndices, matchOverlaps, scores, 0.25, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, negIndices)

	negIndices, err = MineHardNegatives(matchIndices, matchOverlaps, scores, 0.25, 1.5)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, negIndices)

	negIndices, err = MineHardNegatives(matchIndices, matchOverlaps, scores, 0.5, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, negIndices)

	negIndices, err = MineHardNegatives(matchIndices, matchOverlaps, scores, 0.5, 0)
	require.NoError(t, err)
	assert.Empty(t, negIndices)

	_, err = MineHardNegatives(matchIndices, matchOverlaps, scores, 0.5, -1)
	assert.ErrorIs(t, err, ErrNegativeRatio)

	_, err = MineHardNegatives(matchIndices, matchOverlaps, scores[:2], 0.5, 1)
	assert.ErrorIs(t, err, ErrBadConfidence)
}

func TestGeneratorLogging(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.TraceLevel)

	gen := NewDefaultGenerator()
	gen.SetLogger(logger)
	batch := quadrantBatch(
		[][]NormalizedBBox{{NewNormalizedBBox(0, 0, 0.5, 0.5)}, {}},
		[][]float64{{0.1, 0.2, 0.3, 0.4}, {0.1, 0.2, 0.3, 0.4}},
	)
	targets, err := gen.GenerateMatchIndices(batch)
	require.NoError(t, err)

	entries := hook.AllEntries()
	require.Len(t, entries, 3)
	last := hook.LastEntry()
	assert.Equal(t, logrus.DebugLevel, last.Level)
	assert.Equal(t, targets.ID, last.Data["batch_id"])
	assert.Equal(t, 1, last.Data["matches"])
	assert.Equal(t, 3, last.Data["negatives"])
}
