package ssd

// JaccardOverlap calculates Intersection over Union between two normalized boxes.
// Boxes that do not intersect, and pairs whose union is not positive, give 0.
func JaccardOverlap(bbox1, bbox2 NormalizedBBox) float64 {
	interXMin := maxFloat64(bbox1.XMin, bbox2.XMin)
	interYMin := maxFloat64(bbox1.YMin, bbox2.YMin)
	interXMax := minFloat64(bbox1.XMax, bbox2.XMax)
	interYMax := minFloat64(bbox1.YMax, bbox2.YMax)

	if interXMin >= interXMax || interYMin >= interYMax {
		return 0.0
	}

	interArea := (interXMax - interXMin) * (interYMax - interYMin)
	unionArea := bbox1.Size() + bbox2.Size() - interArea
	if unionArea <= 0 {
		return 0.0
	}
	return interArea / unionArea
}

func maxFloat64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
