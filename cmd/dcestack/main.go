package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	log "github.com/sirupsen/logrus"

	"dcemaps/pkg/nifti"
)

// stackCase concatenates the 3D timepoints in caseDir into outputDir/<case><ext>.
func stackCase(caseDir, outputDir, extension string, temporalResolution float64) error {
	paths, err := nifti.TimepointFiles(caseDir, extension)
	if err != nil {
		return err
	}
	vol, err := nifti.Stack(paths, temporalResolution)
	if err != nil {
		return err
	}
	out := filepath.Join(outputDir, filepath.Base(caseDir)+extension)
	if err := nifti.WriteTimeSeries(out, vol); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"case":       filepath.Base(caseDir),
		"timepoints": vol.Timepoints(),
		"shape":      vol.Shape.String(),
		"output":     out,
	}).Info("Stacked case")
	return nil
}

func main() {
	input := flag.String("input", "", "Directory of case directories, or a single case directory with -case")
	outputDir := flag.String("output", "", "Directory for the 4D images")
	single := flag.Bool("case", false, "Treat -input as a single case directory")
	extension := flag.String("extension", ".nii.gz", "Timepoint image extension")
	temporalResolution := flag.Float64("temporal-resolution", 0, "Time between timepoints (seconds), recorded in the header")
	flag.Parse()

	if *input == "" || *outputDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	caseDirs := []string{*input}
	if !*single {
		entries, err := os.ReadDir(*input)
		if err != nil {
			log.Fatalf("Failed to list cases: %v", err)
		}
		caseDirs = caseDirs[:0]
		for _, e := range entries {
			if e.IsDir() {
				caseDirs = append(caseDirs, filepath.Join(*input, e.Name()))
			}
		}
		sort.Strings(caseDirs)
	}

	failed := 0
	for _, dir := range caseDirs {
		fmt.Println("Processing:", dir)
		if err := stackCase(dir, *outputDir, *extension, *temporalResolution); err != nil {
			log.WithError(err).WithField("case", dir).Error("Failed to stack case")
			failed++
		}
	}
	if failed > 0 {
		os.Exit(2)
	}
}
