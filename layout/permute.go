// Package layout moves per-image blocks between channel-first and channel-last layouts.
// It prepares location and confidence outputs of several feature maps for target generation
// and scatters gradients back. Host memory only.
package layout

import (
	"slices"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// PermMode is a direction of permutation
type PermMode int

const (
	// NCHWToNHWC moves channels to the innermost dimension
	NCHWToNHWC PermMode = iota
	// NHWCToNCHW moves channels back to the outermost dimension of an image
	NHWCToNCHW
)

func (mode PermMode) String() string {
	switch mode {
	case NCHWToNHWC:
		return "NCHW->NHWC"
	case NHWCToNCHW:
		return "NHWC->NCHW"
	default:
		return "unknown"
	}
}

var (
	// ErrPermMode is returned when a function is called with a direction it does not support
	ErrPermMode = errors.New("unsupported permute mode")
	// ErrShape is returned when buffer sizes do not agree with given dimensions
	ErrShape = errors.New("bad shape")
)

// AppendWithPermute permutes every image of in (NCHW) to NHWC and writes it into out.
// Image i lands at i*(outTotalSize/batchSize) + outOffset, so outputs of several feature maps
// can be concatenated per image. Returns channels*height*width: the next outOffset increment.
func AppendWithPermute(in []float64, height, width, outTotalSize, outOffset, batchSize int, out []float64, mode PermMode) (int, error) {
	if mode != NCHWToNHWC {
		return 0, errors.Wrapf(ErrPermMode, "append: %s", mode)
	}
	channels, imgSize, err := imageDims(len(in), height, width, batchSize)
	if err != nil {
		return 0, err
	}
	blockSize := channels * imgSize
	if blockSize == 0 {
		return 0, nil
	}
	for i := 0; i < batchSize; i++ {
		offset := i*(outTotalSize/batchSize) + outOffset
		if offset < 0 || offset+blockSize > len(out) {
			return 0, errors.Wrapf(ErrShape, "append: image %d needs [%d, %d), output holds %d", i, offset, offset+blockSize, len(out))
		}
		permuted, err := transpose(in[i*blockSize:(i+1)*blockSize], channels, imgSize)
		if err != nil {
			return 0, errors.Wrapf(err, "append: image %d", i)
		}
		copy(out[offset:offset+blockSize], permuted)
	}
	return blockSize, nil
}

// DecomposeWithPermute is the inverse of AppendWithPermute: it reads image i of in (NHWC)
// at i*(inTotalSize/batchSize) + inOffset and writes it into out as NCHW.
func DecomposeWithPermute(in []float64, height, width, inTotalSize, inOffset, batchSize int, out []float64, mode PermMode) (int, error) {
	if mode != NHWCToNCHW {
		return 0, errors.Wrapf(ErrPermMode, "decompose: %s", mode)
	}
	channels, imgSize, err := imageDims(len(out), height, width, batchSize)
	if err != nil {
		return 0, err
	}
	blockSize := channels * imgSize
	if blockSize == 0 {
		return 0, nil
	}
	for i := 0; i < batchSize; i++ {
		offset := i*(inTotalSize/batchSize) + inOffset
		if offset < 0 || offset+blockSize > len(in) {
			return 0, errors.Wrapf(ErrShape, "decompose: image %d needs [%d, %d), input holds %d", i, offset, offset+blockSize, len(in))
		}
		permuted, err := transpose(in[offset:offset+blockSize], imgSize, channels)
		if err != nil {
			return 0, errors.Wrapf(err, "decompose: image %d", i)
		}
		copy(out[i*blockSize:(i+1)*blockSize], permuted)
	}
	return blockSize, nil
}

func imageDims(elementCnt, height, width, batchSize int) (channels, imgSize int, err error) {
	imgSize = height * width
	if height <= 0 || width <= 0 || batchSize <= 0 {
		return 0, 0, errors.Wrapf(ErrShape, "height %d, width %d, batch %d", height, width, batchSize)
	}
	if elementCnt%(imgSize*batchSize) != 0 {
		return 0, 0, errors.Wrapf(ErrShape, "%d elements do not split into %d images of %dx%d", elementCnt, batchSize, height, width)
	}
	return elementCnt / (imgSize * batchSize), imgSize, nil
}

// transpose returns a (cols x rows) copy of row-major (rows x cols) block
func transpose(block []float64, rows, cols int) ([]float64, error) {
	if rows == 1 || cols == 1 {
		return slices.Clone(block), nil
	}
	dense := tensor.New(
		tensor.Of(tensor.Float64),
		tensor.WithShape(rows, cols),
		tensor.WithBacking(slices.Clone(block)),
	)
	if err := dense.T(); err != nil {
		return nil, errors.Wrap(err, "Can't transpose block")
	}
	if err := dense.Transpose(); err != nil {
		return nil, errors.Wrap(err, "Can't materialize transposed block")
	}
	return dense.Float64s(), nil
}
