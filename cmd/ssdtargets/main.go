// Command ssdtargets runs SSD target generation over a batch described in a YAML (or JSON) file
// and prints matched and negative priors of every image.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/LdDl/ssd-go/ssd"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "Path to options file (YAML). Defaults are used when empty")
	batchPath := flag.String("batch", "", "Path to batch file (YAML or JSON)")
	logLevel := flag.String("log-level", "info", "Log level: panic, fatal, error, warn, info, debug, trace")
	jsonLog := flag.Bool("json-log", false, "Emit logs as JSON")
	flag.Parse()

	log, err := ssd.NewLogger(*logLevel, *jsonLog)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *batchPath == "" {
		log.Fatal("Flag -batch is required")
	}
	if err := run(*configPath, *batchPath, os.Stdout, log); err != nil {
		log.WithError(err).Fatal("Can't generate targets")
	}
}

func run(configPath, batchPath string, out io.Writer, log logrus.FieldLogger) error {
	opts := ssd.DefaultOptions()
	if configPath != "" {
		var err error
		opts, err = ssd.LoadOptions(configPath)
		if err != nil {
			return err
		}
	}
	log.WithFields(logrus.Fields{
		"overlap_threshold":     opts.OverlapThreshold,
		"neg_overlap_threshold": opts.NegOverlapThreshold,
		"neg_pos_ratio":         opts.NegPosRatio,
		"score_mode":            opts.ScoreMode,
		"workers":               opts.Workers,
	}).Info("Options loaded")

	fx, err := loadFixture(batchPath)
	if err != nil {
		return err
	}
	batch, err := fx.toBatch(opts)
	if err != nil {
		return err
	}

	gen, err := ssd.NewGenerator(opts)
	if err != nil {
		return err
	}
	gen.SetLogger(log)
	targets, err := gen.GenerateMatchIndices(batch)
	if err != nil {
		return err
	}

	priorBBoxes, err := ssd.AppendPriorBBoxes(nil, batch.PriorData, batch.NumPriors)
	if err != nil {
		return err
	}
	priorVars, err := ssd.AppendPriorVariances(nil, batch.PriorData, batch.NumPriors)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "batch %s: %d matches, %d negatives\n", targets.ID, targets.NumMatches, targets.NumNegs)
	for n, img := range targets.Images {
		numGT := batch.GTStartPos[n+1] - batch.GTStartPos[n]
		gtBBoxes, err := ssd.AppendLabelBBoxes(nil, batch.GTData[batch.GTStartPos[n]*ssd.LabelStride:], numGT)
		if err != nil {
			return errors.Wrapf(err, "image %d", n)
		}
		locTargets, err := ssd.EncodeMatchedTargets(nil, priorBBoxes, priorVars, gtBBoxes, img.MatchIndices)
		if err != nil {
			return errors.Wrapf(err, "image %d", n)
		}
		gap := ssd.MeasureAssignmentGap(priorBBoxes, gtBBoxes)
		fmt.Fprintf(out, "image %d: positives %v, negatives %v, bipartite overlap %.4f of %.4f\n", n, img.Positives(), img.NegIndices, gap.Greedy, gap.Optimal)
		for k, priorIdx := range img.Positives() {
			fmt.Fprintf(out, "  prior %d -> gt %d: %.4f\n", priorIdx, img.MatchIndices[priorIdx], locTargets[k*4:k*4+4])
		}
	}
	return nil
}
