package ssd

import (
	"fmt"
	"math"
)

// NormalizedBBox is an axis-aligned box with coordinates normalized to the image's [0,1] range.
// Inverted boxes (XMax < XMin or YMax < YMin) are representable and have a non-positive size.
type NormalizedBBox struct {
	XMin float64
	YMin float64
	XMax float64
	YMax float64
}

func NewNormalizedBBox(xMin, yMin, xMax, yMax float64) NormalizedBBox {
	return NormalizedBBox{
		XMin: xMin,
		YMin: yMin,
		XMax: xMax,
		YMax: yMax,
	}
}

// Width returns XMax - XMin
func (bbox NormalizedBBox) Width() float64 {
	return bbox.XMax - bbox.XMin
}

// Height returns YMax - YMin
func (bbox NormalizedBBox) Height() float64 {
	return bbox.YMax - bbox.YMin
}

// CenterX returns horizontal center of the box
func (bbox NormalizedBBox) CenterX() float64 {
	return (bbox.XMin + bbox.XMax) / 2.0
}

// CenterY returns vertical center of the box
func (bbox NormalizedBBox) CenterY() float64 {
	return (bbox.YMin + bbox.YMax) / 2.0
}

// Size returns area of the box. It is non-positive for degenerate or inverted boxes.
func (bbox NormalizedBBox) Size() float64 {
	return bbox.Width() * bbox.Height()
}

// Clip clamps every coordinate into [0,1]
func (bbox NormalizedBBox) Clip() NormalizedBBox {
	return NormalizedBBox{
		XMin: clamp01(bbox.XMin),
		YMin: clamp01(bbox.YMin),
		XMax: clamp01(bbox.XMax),
		YMax: clamp01(bbox.YMax),
	}
}

func (bbox NormalizedBBox) String() string {
	return fmt.Sprintf("[%f, %f, %f, %f]", bbox.XMin, bbox.YMin, bbox.XMax, bbox.YMax)
}

func clamp01(v float64) float64 {
	return math.Max(math.Min(v, 1.0), 0.0)
}
