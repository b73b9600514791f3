package ssd

import (
	"math"

	"github.com/pkg/errors"
)

// Variance holds per-axis scale factors of a prior box: x, y, width, height
type Variance [4]float64

// EncodeBBoxWithVar computes the regression offsets of gtBBox relative to priorBBox,
// normalized by priorVar.
//
// Prior and ground truth sizes must be positive. A non-positive prior width (height) gives
// zero offsets on that axis, a non-positive size ratio gives -Inf in the log term.
func EncodeBBoxWithVar(priorBBox NormalizedBBox, priorVar Variance, gtBBox NormalizedBBox) [4]float64 {
	priorWidth := priorBBox.Width()
	priorHeight := priorBBox.Height()

	var encoded [4]float64
	if priorWidth > 0 {
		encoded[0] = (gtBBox.CenterX() - priorBBox.CenterX()) / priorWidth / priorVar[0]
		encoded[2] = safeLog(gtBBox.Width()/priorWidth) / priorVar[2]
	}
	if priorHeight > 0 {
		encoded[1] = (gtBBox.CenterY() - priorBBox.CenterY()) / priorHeight / priorVar[1]
		encoded[3] = safeLog(gtBBox.Height()/priorHeight) / priorVar[3]
	}
	return encoded
}

// DecodeBBoxWithVar applies offsets locPredData to priorBBox. It is the inverse of EncodeBBoxWithVar.
func DecodeBBoxWithVar(priorBBox NormalizedBBox, priorVar Variance, locPredData [4]float64) NormalizedBBox {
	priorWidth := priorBBox.Width()
	priorHeight := priorBBox.Height()

	centerX := locPredData[0]*priorVar[0]*priorWidth + priorBBox.CenterX()
	centerY := locPredData[1]*priorVar[1]*priorHeight + priorBBox.CenterY()
	width := math.Exp(locPredData[2]*priorVar[2]) * priorWidth
	height := math.Exp(locPredData[3]*priorVar[3]) * priorHeight

	return NormalizedBBox{
		XMin: centerX - width/2.0,
		YMin: centerY - height/2.0,
		XMax: centerX + width/2.0,
		YMax: centerY + height/2.0,
	}
}

// DecodeBBoxesWithVar decodes a flat location buffer of one image (4 values per prior).
// If clip is set, decoded boxes are clamped to [0,1].
func DecodeBBoxesWithVar(priorBBoxes []NormalizedBBox, priorVars []Variance, locData []float64, clip bool) ([]NormalizedBBox, error) {
	if len(priorVars) < len(priorBBoxes) {
		return nil, errors.Wrapf(ErrShortBuffer, "decode: %d variances for %d priors", len(priorVars), len(priorBBoxes))
	}
	if err := checkBuffer("decode", locData, len(priorBBoxes), 4); err != nil {
		return nil, err
	}
	decoded := make([]NormalizedBBox, len(priorBBoxes))
	for i := range priorBBoxes {
		var loc [4]float64
		copy(loc[:], locData[i*4:i*4+4])
		bbox := DecodeBBoxWithVar(priorBBoxes[i], priorVars[i], loc)
		if clip {
			bbox = bbox.Clip()
		}
		decoded[i] = bbox
	}
	return decoded, nil
}

// EncodeMatchedTargets builds regression targets for every matched prior of one image.
// Targets are appended to dst in ascending prior order, 4 values per matched prior,
// so they line up with ImageTargets.Positives().
func EncodeMatchedTargets(dst []float64, priorBBoxes []NormalizedBBox, priorVars []Variance, gtBBoxes []NormalizedBBox, matchIndices []int) ([]float64, error) {
	if len(matchIndices) != len(priorBBoxes) || len(priorVars) < len(priorBBoxes) {
		return dst, errors.Wrapf(ErrShortBuffer, "encode: %d match indices, %d priors, %d variances", len(matchIndices), len(priorBBoxes), len(priorVars))
	}
	for i, gtIdx := range matchIndices {
		if gtIdx == Unmatched {
			continue
		}
		if gtIdx < 0 || gtIdx >= len(gtBBoxes) {
			return dst, errors.Wrapf(ErrBadSequence, "encode: prior %d matched to ground truth %d of %d", i, gtIdx, len(gtBBoxes))
		}
		encoded := EncodeBBoxWithVar(priorBBoxes[i], priorVars[i], gtBBoxes[gtIdx])
		dst = append(dst, encoded[:]...)
	}
	return dst, nil
}

func safeLog(v float64) float64 {
	if v <= 0 {
		return math.Inf(-1)
	}
	return math.Log(v)
}
