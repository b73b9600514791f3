package ssd

import (
	"math"

	"github.com/arthurkushman/go-hungarian"
	"gonum.org/v1/gonum/mat"
)

// AssignmentGap compares the bipartite phase of MatchBBox with the optimal one-to-one assignment
// of priors to ground truth boxes. It is a diagnostic for prior box design and never changes matching.
type AssignmentGap struct {
	// Sum of overlaps of pairs bound by the greedy bipartite phase
	Greedy float64
	// Max sum of overlaps over all one-to-one assignments
	Optimal float64
	// Sum of overlaps of the assignment found by the reduction solver trackers use (go-hungarian).
	// Zero when the solver returns an assignment that is not one-to-one. Never above Optimal.
	Reduction float64
}

// Loss returns how much overlap greedy matching gives up
func (gap AssignmentGap) Loss() float64 {
	return gap.Optimal - gap.Greedy
}

// MeasureAssignmentGap evaluates AssignmentGap for one image
func MeasureAssignmentGap(priorBBoxes, gtBBoxes []NormalizedBBox) AssignmentGap {
	if len(priorBBoxes) == 0 || len(gtBBoxes) == 0 {
		return AssignmentGap{}
	}
	return measureAssignmentGap(overlapMatrix(priorBBoxes, gtBBoxes))
}

func measureAssignmentGap(overlaps *mat.Dense) AssignmentGap {
	numPriors, _ := overlaps.Dims()
	matchIndices := make([]int, numPriors)
	for i := range matchIndices {
		matchIndices[i] = Unmatched
	}
	gap := AssignmentGap{
		Greedy: bipartiteMatch(overlaps, matchIndices),
	}
	gap.Reduction = reductionAssignment(overlaps)
	gap.Optimal = maxWeightAssignment(overlaps)
	// Any one-to-one assignment is a lower bound of the optimum, greedy one included
	gap.Optimal = max(gap.Optimal, gap.Reduction, gap.Greedy)
	return gap
}

// reductionAssignment runs hungarian.SolveMax the way trackers do: rectangular matrix is padded
// to square with zero overlaps. The solver reduces rows and columns but does not search for
// augmenting paths, so its result is not always optimal and sometimes not one-to-one.
func reductionAssignment(overlaps *mat.Dense) float64 {
	numPriors, numGT := overlaps.Dims()
	size := max(numPriors, numGT)
	padded := make([][]float64, size)
	for i := range padded {
		padded[i] = make([]float64, size)
		if i < numPriors {
			copy(padded[i], overlaps.RawRowView(i))
		}
	}
	total := 0.0
	usedGT := make(map[int]bool, numGT)
	for priorIdx, rowMap := range hungarian.SolveMax(padded) {
		if len(rowMap) > 1 {
			return 0
		}
		for gtIdx := range rowMap {
			if usedGT[gtIdx] {
				return 0
			}
			usedGT[gtIdx] = true
			if priorIdx < numPriors && gtIdx < numGT {
				total += overlaps.At(priorIdx, gtIdx)
			}
		}
	}
	return total
}

// maxWeightAssignment returns the max sum of overlaps over one-to-one assignments.
// Kuhn-Munkres with potentials over the smaller side as rows, O(rows^2 * cols).
func maxWeightAssignment(overlaps *mat.Dense) float64 {
	rows, cols := overlaps.Dims()
	weight := overlaps.At
	if rows > cols {
		rows, cols = cols, rows
		weight = func(i, j int) float64 {
			return overlaps.At(j, i)
		}
	}

	// 1-based: column 0 and row 0 are virtual
	u := make([]float64, rows+1)
	v := make([]float64, cols+1)
	owner := make([]int, cols+1)
	way := make([]int, cols+1)
	minSlack := make([]float64, cols+1)
	used := make([]bool, cols+1)
	for i := 1; i <= rows; i++ {
		owner[0] = i
		col := 0
		for j := range minSlack {
			minSlack[j] = math.Inf(1)
			used[j] = false
		}
		for {
			used[col] = true
			row := owner[col]
			delta := math.Inf(1)
			next := 0
			for j := 1; j <= cols; j++ {
				if used[j] {
					continue
				}
				// Minimizing negated overlaps
				slack := -weight(row-1, j-1) - u[row] - v[j]
				if slack < minSlack[j] {
					minSlack[j] = slack
					way[j] = col
				}
				if minSlack[j] < delta {
					delta = minSlack[j]
					next = j
				}
			}
			for j := 0; j <= cols; j++ {
				if used[j] {
					u[owner[j]] += delta
					v[j] -= delta
				} else {
					minSlack[j] -= delta
				}
			}
			col = next
			if owner[col] == 0 {
				break
			}
		}
		// Flip the augmenting path
		for col != 0 {
			prev := way[col]
			owner[col] = owner[prev]
			col = prev
		}
	}

	total := 0.0
	for j := 1; j <= cols; j++ {
		if owner[j] != 0 {
			total += weight(owner[j]-1, j-1)
		}
	}
	return total
}
