package ssd

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Unmatched marks a prior box which is not assigned to any ground truth box
const Unmatched = -1

// MatchBBox matches prior boxes to ground truth boxes. Strategy is:
//  1. Bipartite: repeatedly bind the most overlapped (prior, ground truth) pair among those not
//     bound yet, regardless of threshold, until every ground truth is bound or priors run out.
//  2. Every prior still unbound takes its most overlapped ground truth if overlap >= overlapThreshold.
//
// Ties go to the lowest prior index and then to the lowest ground truth index.
// This is greedy on purpose and must not be replaced with an optimal assignment.
//
// matchIndices[i] is the ground truth index of prior i or Unmatched.
// matchOverlaps[i] is the best overlap of prior i with any ground truth box.
func MatchBBox(priorBBoxes, gtBBoxes []NormalizedBBox, overlapThreshold float64) (matchIndices []int, matchOverlaps []float64) {
	numPriors := len(priorBBoxes)
	numGT := len(gtBBoxes)

	matchIndices = make([]int, numPriors)
	for i := range matchIndices {
		matchIndices[i] = Unmatched
	}
	matchOverlaps = make([]float64, numPriors)
	if numPriors == 0 || numGT == 0 {
		return matchIndices, matchOverlaps
	}

	overlaps := overlapMatrix(priorBBoxes, gtBBoxes)
	for i := 0; i < numPriors; i++ {
		matchOverlaps[i] = floats.Max(overlaps.RawRowView(i))
	}

	bipartiteMatch(overlaps, matchIndices)

	// Most overlapped ground truth for the rest of priors
	for i := 0; i < numPriors; i++ {
		if matchIndices[i] != Unmatched {
			continue
		}
		row := overlaps.RawRowView(i)
		maxGTIdx := floats.MaxIdx(row)
		if row[maxGTIdx] >= overlapThreshold {
			matchIndices[i] = maxGTIdx
		}
	}
	return matchIndices, matchOverlaps
}

// bipartiteMatch binds the most overlapped (prior, ground truth) pairs one by one and writes them
// into matchIndices. Returns sum of overlaps of bound pairs.
func bipartiteMatch(overlaps *mat.Dense, matchIndices []int) float64 {
	numPriors, numGT := overlaps.Dims()
	gtBound := make([]bool, numGT)
	total := 0.0
	for bound := 0; bound < numGT; bound++ {
		maxPriorIdx, maxGTIdx := -1, -1
		maxOverlap := -1.0
		for i := 0; i < numPriors; i++ {
			if matchIndices[i] != Unmatched {
				continue
			}
			for j, overlap := range overlaps.RawRowView(i) {
				if gtBound[j] {
					continue
				}
				if overlap > maxOverlap {
					maxPriorIdx = i
					maxGTIdx = j
					maxOverlap = overlap
				}
			}
		}
		if maxPriorIdx == -1 {
			break
		}
		matchIndices[maxPriorIdx] = maxGTIdx
		gtBound[maxGTIdx] = true
		total += maxOverlap
	}
	return total
}

// overlapMatrix returns (priors x ground truths) matrix of Jaccard overlaps
func overlapMatrix(priorBBoxes, gtBBoxes []NormalizedBBox) *mat.Dense {
	overlaps := mat.NewDense(len(priorBBoxes), len(gtBBoxes), nil)
	for i, prior := range priorBBoxes {
		for j, gt := range gtBBoxes {
			overlaps.Set(i, j, JaccardOverlap(prior, gt))
		}
	}
	return overlaps
}
