package main

import (
	"os"

	"github.com/LdDl/ssd-go/layout"
	"github.com/LdDl/ssd-go/ssd"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// fixture is a human-editable description of one batch
type fixture struct {
	// xmin, ymin, xmax, ymax, 4 variances
	Priors     [][]float64    `yaml:"priors"`
	// When set, images carry confidence_map instead of confidences
	FeatureMap *featureMap    `yaml:"feature_map"`
	Images     []fixtureImage `yaml:"images"`
}

// featureMap describes confidence output of a single detection head in NCHW layout:
// channel c = anchor*classes + class, priors are ordered by location then anchor
type featureMap struct {
	Height  int `yaml:"height"`
	Width   int `yaml:"width"`
	Classes int `yaml:"classes"`
}

type fixtureImage struct {
	// class, xmin, ymin, xmax, ymax, difficult
	GroundTruths  [][]float64 `yaml:"ground_truths"`
	// Class scores per prior
	Confidences   [][]float64 `yaml:"confidences"`
	// Channels x height x width scores, see featureMap
	ConfidenceMap []float64   `yaml:"confidence_map"`
}

func loadFixture(path string) (*fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't read batch file '%s'", path)
	}
	fx := fixture{}
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, errors.Wrapf(err, "Can't parse batch file '%s'", path)
	}
	return &fx, nil
}

// toBatch flattens fixture into the buffers the generator consumes
func (fx *fixture) toBatch(opts ssd.Options) (*ssd.Batch, error) {
	batch := &ssd.Batch{
		NumPriors:  len(fx.Priors),
		PriorData:  make([]float64, 0, len(fx.Priors)*ssd.PriorStride),
		GTStartPos: make([]int, 0, len(fx.Images)+1),
		SeqNum:     len(fx.Images),
		BatchSize:  len(fx.Images),
	}
	for i, prior := range fx.Priors {
		if len(prior) != ssd.PriorStride {
			return nil, errors.Errorf("prior %d has %d values, expected %d", i, len(prior), ssd.PriorStride)
		}
		batch.PriorData = append(batch.PriorData, prior...)
	}

	batch.GTStartPos = append(batch.GTStartPos, 0)
	for n, img := range fx.Images {
		for j, gt := range img.GroundTruths {
			if len(gt) != ssd.LabelStride {
				return nil, errors.Errorf("image %d: ground truth %d has %d values, expected %d", n, j, len(gt), ssd.LabelStride)
			}
			batch.GTData = append(batch.GTData, gt...)
		}
		batch.GTStartPos = append(batch.GTStartPos, batch.GTStartPos[n]+len(img.GroundTruths))
	}

	var (
		confData   []float64
		numClasses int
		err        error
	)
	if fx.FeatureMap != nil {
		confData, numClasses, err = fx.permutedConfidences()
	} else {
		confData, numClasses, err = fx.flatConfidences()
	}
	if err != nil {
		return nil, err
	}

	batch.MaxConfScores, err = ssd.AppendMaxConfidenceScores(make([][]float64, 0, batch.BatchSize), confData, batch.BatchSize, batch.NumPriors, numClasses, opts.BackgroundID, opts.ScoreMode)
	if err != nil {
		return nil, errors.Wrap(err, "Can't compute max confidence scores")
	}
	return batch, nil
}

// flatConfidences concatenates per prior class scores of every image
func (fx *fixture) flatConfidences() ([]float64, int, error) {
	numClasses := 0
	confData := make([]float64, 0)
	for n, img := range fx.Images {
		if len(img.Confidences) != len(fx.Priors) {
			return nil, 0, errors.Errorf("image %d: %d confidence rows for %d priors", n, len(img.Confidences), len(fx.Priors))
		}
		for j, scores := range img.Confidences {
			if numClasses == 0 {
				numClasses = len(scores)
			}
			if len(scores) != numClasses {
				return nil, 0, errors.Errorf("image %d: prior %d has %d class scores, expected %d", n, j, len(scores), numClasses)
			}
			confData = append(confData, scores...)
		}
	}
	return confData, numClasses, nil
}

// permutedConfidences moves NCHW confidence maps of every image to prior-major layout
func (fx *fixture) permutedConfidences() ([]float64, int, error) {
	fm := fx.FeatureMap
	if fm.Height <= 0 || fm.Width <= 0 || fm.Classes <= 0 {
		return nil, 0, errors.Errorf("feature map %dx%d with %d classes", fm.Height, fm.Width, fm.Classes)
	}
	imageSize := len(fx.Priors) * fm.Classes
	if imageSize%(fm.Height*fm.Width) != 0 {
		return nil, 0, errors.Errorf("%d priors do not fit %dx%d feature map", len(fx.Priors), fm.Height, fm.Width)
	}
	batchSize := len(fx.Images)
	nchw := make([]float64, 0, batchSize*imageSize)
	for n, img := range fx.Images {
		if len(img.ConfidenceMap) != imageSize {
			return nil, 0, errors.Errorf("image %d: confidence map has %d values, expected %d", n, len(img.ConfidenceMap), imageSize)
		}
		nchw = append(nchw, img.ConfidenceMap...)
	}
	if batchSize == 0 {
		return nchw, fm.Classes, nil
	}
	nhwc := make([]float64, len(nchw))
	if _, err := layout.AppendWithPermute(nchw, fm.Height, fm.Width, len(nhwc), 0, batchSize, nhwc, layout.NCHWToNHWC); err != nil {
		return nil, 0, errors.Wrap(err, "Can't permute confidence map")
	}
	return nhwc, fm.Classes, nil
}
