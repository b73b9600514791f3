package ssd

const (
	// PriorStride is the number of values per prior box: xmin | ymin | xmax | ymax | 4 variances
	PriorStride = 8
	// LabelStride is the number of values per ground truth record: class | xmin | ymin | xmax | ymax | difficult
	LabelStride = 6
)

// GroundTruth is a single labeled record of the ground truth buffer
type GroundTruth struct {
	Label     int
	BBox      NormalizedBBox
	Difficult bool
}

// AppendPriorBBoxes extracts numBBoxes boxes from prior data and appends them to dst.
// Layout: xmin1 | ymin1 | xmax1 | ymax1 | xmin1Var | ymin1Var | xmax1Var | ymax1Var ...
func AppendPriorBBoxes(dst []NormalizedBBox, priorData []float64, numBBoxes int) ([]NormalizedBBox, error) {
	if err := checkBuffer("prior boxes", priorData, numBBoxes, PriorStride); err != nil {
		return dst, err
	}
	for i := 0; i < numBBoxes; i++ {
		rec := priorData[i*PriorStride:]
		dst = append(dst, NewNormalizedBBox(rec[0], rec[1], rec[2], rec[3]))
	}
	return dst, nil
}

// AppendPriorVariances extracts variances of num priors from prior data and appends them to dst.
func AppendPriorVariances(dst []Variance, priorData []float64, num int) ([]Variance, error) {
	if err := checkBuffer("prior variances", priorData, num, PriorStride); err != nil {
		return dst, err
	}
	for i := 0; i < num; i++ {
		rec := priorData[i*PriorStride+4:]
		dst = append(dst, Variance{rec[0], rec[1], rec[2], rec[3]})
	}
	return dst, nil
}

// AppendLabelBBoxes extracts numBBoxes boxes from label data and appends them to dst.
// Class and difficult fields are skipped.
func AppendLabelBBoxes(dst []NormalizedBBox, labelData []float64, numBBoxes int) ([]NormalizedBBox, error) {
	if err := checkBuffer("label boxes", labelData, numBBoxes, LabelStride); err != nil {
		return dst, err
	}
	for i := 0; i < numBBoxes; i++ {
		rec := labelData[i*LabelStride:]
		dst = append(dst, NewNormalizedBBox(rec[1], rec[2], rec[3], rec[4]))
	}
	return dst, nil
}

// AppendGroundTruths is AppendLabelBBoxes keeping class and difficult flag
func AppendGroundTruths(dst []GroundTruth, labelData []float64, numBBoxes int) ([]GroundTruth, error) {
	if err := checkBuffer("ground truths", labelData, numBBoxes, LabelStride); err != nil {
		return dst, err
	}
	for i := 0; i < numBBoxes; i++ {
		rec := labelData[i*LabelStride:]
		dst = append(dst, GroundTruth{
			Label:     int(rec[0]),
			BBox:      NewNormalizedBBox(rec[1], rec[2], rec[3], rec[4]),
			Difficult: rec[5] != 0,
		})
	}
	return dst, nil
}
