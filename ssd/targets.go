package ssd

import "github.com/google/uuid"

// Batch is a raw input of one training batch
type Batch struct {
	// Prior boxes shared by every image, PriorStride values per prior
	PriorData []float64
	NumPriors int
	// Ground truth records of the whole batch, LabelStride values per record
	GTData []float64
	// Start record of every sequence (image) in GTData, plus the end of the last one: SeqNum+1 values
	GTStartPos []int
	SeqNum     int
	// Max confidence score per image per prior, see AppendMaxConfidenceScores
	MaxConfScores [][]float64
	BatchSize     int
}

// ImageTargets holds matching results of one image
type ImageTargets struct {
	// Ground truth index for every prior or Unmatched
	MatchIndices []int
	// Best overlap of every prior with any ground truth
	MatchOverlaps []float64
	// Priors selected as hard negatives, most confident first
	NegIndices []int
}

// NumPositives returns number of matched priors
func (img ImageTargets) NumPositives() int {
	numPos := 0
	for _, gtIdx := range img.MatchIndices {
		if gtIdx != Unmatched {
			numPos++
		}
	}
	return numPos
}

// Positives returns matched prior indices in ascending order
func (img ImageTargets) Positives() []int {
	positives := make([]int, 0, img.NumPositives())
	for i, gtIdx := range img.MatchIndices {
		if gtIdx != Unmatched {
			positives = append(positives, i)
		}
	}
	return positives
}

// Targets is an output of GenerateMatchIndices
type Targets struct {
	// Identifier of the run, attached to every log entry
	ID uuid.UUID
	// Per image results in image order
	Images []ImageTargets
	// Total number of positives in batch
	NumMatches int
	// Total number of negatives in batch
	NumNegs int
}

// MatchIndices returns per image match index vectors. Be careful: slices are not copied
func (targets *Targets) MatchIndices() [][]int {
	matchIndices := make([][]int, len(targets.Images))
	for n := range targets.Images {
		matchIndices[n] = targets.Images[n].MatchIndices
	}
	return matchIndices
}

// NegIndices returns per image negative prior indices. Be careful: slices are not copied
func (targets *Targets) NegIndices() [][]int {
	negIndices := make([][]int, len(targets.Images))
	for n := range targets.Images {
		negIndices[n] = targets.Images[n].NegIndices
	}
	return negIndices
}
