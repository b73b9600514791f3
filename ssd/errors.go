package ssd

import "github.com/pkg/errors"

var (
	// ErrNegativeCount is returned when a box, class or image count is negative
	ErrNegativeCount = errors.New("negative count")
	// ErrShortBuffer is returned when a flat buffer holds fewer values than its layout requires
	ErrShortBuffer = errors.New("buffer is too short")
	// ErrBadSequence is returned when ground truth start positions are out of bounds or decreasing
	ErrBadSequence = errors.New("bad ground truth sequence offsets")
	// ErrNegativeRatio is returned when negative/positive ratio would produce a negative count
	ErrNegativeRatio = errors.New("negative/positive ratio must not be negative")
	// ErrBadConfidence is returned when confidence scores do not line up with images or priors
	ErrBadConfidence = errors.New("bad confidence scores")
	// ErrBadOption is returned by Options.Validate
	ErrBadOption = errors.New("bad option")
)

func checkBuffer(name string, buf []float64, count, stride int) error {
	if count < 0 {
		return errors.Wrapf(ErrNegativeCount, "%s: %d boxes requested", name, count)
	}
	if len(buf) < count*stride {
		return errors.Wrapf(ErrShortBuffer, "%s: need %d values, have %d", name, count*stride, len(buf))
	}
	return nil
}
