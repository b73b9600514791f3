package ssd

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeBBoxWithVar(t *testing.T) {
	prior := NewNormalizedBBox(0.2, 0.2, 0.6, 0.6)
	variance := Variance{0.1, 0.1, 0.2, 0.2}
	gt := NewNormalizedBBox(0.3, 0.2, 0.7, 0.8)

	encoded := EncodeBBoxWithVar(prior, variance, gt)
	// centers: prior (0.4, 0.4), gt (0.5, 0.5); sizes: prior 0.4x0.4, gt 0.4x0.6
	assert.InDelta(t, 0.1/0.4/0.1, encoded[0], eps)
	assert.InDelta(t, 0.1/0.4/0.1, encoded[1], eps)
	assert.InDelta(t, 0.0, encoded[2], eps)
	assert.InDelta(t, math.Log(1.5)/0.2, encoded[3], eps)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	priors := []NormalizedBBox{
		NewNormalizedBBox(0, 0, 0.5, 0.5),
		NewNormalizedBBox(0.25, 0.1, 0.45, 0.9),
		NewNormalizedBBox(0.7, 0.7, 1, 1),
	}
	gts := []NormalizedBBox{
		NewNormalizedBBox(0, 0, 0.4, 0.4),
		NewNormalizedBBox(0.1, 0.3, 0.95, 0.5),
		NewNormalizedBBox(0.6, 0.05, 0.62, 0.99),
	}
	variances := []Variance{
		{0.1, 0.1, 0.2, 0.2},
		{1, 1, 1, 1},
		{0.05, 0.3, 0.7, 0.15},
	}
	for _, prior := range priors {
		for _, variance := range variances {
			for _, gt := range gts {
				decoded := DecodeBBoxWithVar(prior, variance, EncodeBBoxWithVar(prior, variance, gt))
				assert.InDelta(t, gt.XMin, decoded.XMin, eps)
				assert.InDelta(t, gt.YMin, decoded.YMin, eps)
				assert.InDelta(t, gt.XMax, decoded.XMax, eps)
				assert.InDelta(t, gt.YMax, decoded.YMax, eps)
			}
		}
	}
}

func TestEncodeBBoxWithVarDegenerate(t *testing.T) {
	variance := Variance{0.1, 0.1, 0.2, 0.2}

	// Zero width ground truth: log of zero ratio
	encoded := EncodeBBoxWithVar(NewNormalizedBBox(0, 0, 0.5, 0.5), variance, NewNormalizedBBox(0.2, 0.1, 0.2, 0.3))
	assert.True(t, math.IsInf(encoded[2], -1))
	assert.False(t, math.IsNaN(encoded[0]))

	// Inverted ground truth: negative ratio is guarded as well
	encoded = EncodeBBoxWithVar(NewNormalizedBBox(0, 0, 0.5, 0.5), variance, NewNormalizedBBox(0.3, 0.3, 0.1, 0.1))
	assert.True(t, math.IsInf(encoded[2], -1))
	assert.True(t, math.IsInf(encoded[3], -1))

	// Zero area prior gives zero offsets
	encoded = EncodeBBoxWithVar(NewNormalizedBBox(0.2, 0.2, 0.2, 0.2), variance, NewNormalizedBBox(0, 0, 0.4, 0.4))
	assert.Equal(t, [4]float64{0, 0, 0, 0}, encoded)
}

func TestDecodeBBoxesWithVar(t *testing.T) {
	priors := []NormalizedBBox{
		NewNormalizedBBox(0, 0, 0.5, 0.5),
		NewNormalizedBBox(0.5, 0.5, 1, 1),
	}
	variances := []Variance{{0.1, 0.1, 0.2, 0.2}, {0.1, 0.1, 0.2, 0.2}}
	locData := []float64{
		0, 0, 0, 0,
		5, 5, 0, 0,
	}

	decoded, err := DecodeBBoxesWithVar(priors, variances, locData, false)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.Equal(t, priors[0], decoded[0])
	assert.InDelta(t, 0.75, decoded[1].XMin, eps)
	assert.InDelta(t, 1.25, decoded[1].XMax, eps)

	clipped, err := DecodeBBoxesWithVar(priors, variances, locData, true)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, clipped[1].XMax, eps)
	assert.InDelta(t, 1.0, clipped[1].YMax, eps)

	_, err = DecodeBBoxesWithVar(priors, variances, locData[:5], false)
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestEncodeMatchedTargets(t *testing.T) {
	priors := []NormalizedBBox{
		NewNormalizedBBox(0, 0, 0.5, 0.5),
		NewNormalizedBBox(0.5, 0.5, 1, 1),
		NewNormalizedBBox(0, 0.5, 0.5, 1),
	}
	variances := []Variance{{0.1, 0.1, 0.2, 0.2}, {0.1, 0.1, 0.2, 0.2}, {0.1, 0.1, 0.2, 0.2}}
	gts := []NormalizedBBox{
		NewNormalizedBBox(0, 0, 0.4, 0.4),
		NewNormalizedBBox(0, 0.5, 0.5, 1),
	}

	targets, err := EncodeMatchedTargets(nil, priors, variances, gts, []int{0, Unmatched, 1})
	require.NoError(t, err)
	require.Len(t, targets, 8)
	first := EncodeBBoxWithVar(priors[0], variances[0], gts[0])
	assert.Equal(t, first[:], targets[:4])
	assert.Equal(t, []float64{0, 0, 0, 0}, targets[4:])

	_, err = EncodeMatchedTargets(nil, priors, variances, gts, []int{0, 5, 1})
	assert.ErrorIs(t, err, ErrBadSequence)

	_, err = EncodeMatchedTargets(nil, priors, variances, gts, []int{0})
	assert.ErrorIs(t, err, ErrShortBuffer)
}
