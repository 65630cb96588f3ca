package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"

	"dcemaps/pkg/batch"
	"dcemaps/pkg/config"
	"dcemaps/pkg/nifti"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "dcemaps.yaml", "YAML configuration file (defaults are used if it does not exist)")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration to -config and exit")
	input := flag.String("input", "", "Directory of 4D DCE images, or a single image with -case")
	outputDir := flag.String("output", "", "Directory for the parameter maps")
	mask := flag.String("mask", "", "Directory of masks named like the cases, or a single mask with -case")
	single := flag.Bool("case", false, "Treat -input and -mask as single files")
	temporalResolution := flag.Float64("temporal-resolution", 0, "Time between DCE timepoints (seconds)")
	windowSize := flag.Int("window-size", 0, "Sliding window length for the initial slope (timepoints)")
	onsetTime := flag.Float64("onset-time-constraint", 0, "Latest enhancement onset (minutes)")
	finalSlopeTime := flag.Float64("final-slope-time", 0, "Trailing interval for the final slope (minutes)")
	rounding := flag.String("final-window-rounding", "", "Final window rounding: truncate or nearest")
	maskLabels := flag.String("mask-labels", "", "Valid mask labels: nonzero or one")
	numCores := flag.Int("cores", runtime.NumCPU(), "Number of CPU cores per case")
	caseWorkers := flag.Int("case-workers", 0, "Number of cases processed concurrently")
	policy := flag.String("policy", "", "Case failure policy: skip or fail-fast")
	extension := flag.String("extension", "", "Case file extension in directory mode")
	saveOnset := flag.Bool("save-onset", false, "Also write the OT_ onset time map")
	previews := flag.Bool("previews", false, "Write PNG slices of every map")
	curvePlot := flag.Bool("curve-plot", false, "Write the mean enhancement curve chart")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	// Validate inputs
	if *input == "" || *outputDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Explicit flags override the configuration file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "temporal-resolution":
			cfg.Perfusion.TemporalResolution = *temporalResolution
		case "window-size":
			cfg.Perfusion.WindowSize = *windowSize
		case "onset-time-constraint":
			cfg.Perfusion.OnsetTimeConstraint = *onsetTime
		case "final-slope-time":
			cfg.Perfusion.FinalSlopeTime = *finalSlopeTime
		case "final-window-rounding":
			cfg.Perfusion.FinalWindowRounding = *rounding
		case "mask-labels":
			cfg.Perfusion.MaskLabels = *maskLabels
		case "cores":
			cfg.Processing.NumCores = *numCores
		case "case-workers":
			cfg.Processing.CaseWorkers = *caseWorkers
		case "policy":
			cfg.Processing.FailurePolicy = *policy
		case "extension":
			cfg.Output.Extension = *extension
		case "save-onset":
			cfg.Output.SaveOnsetTime = *saveOnset
		case "previews":
			cfg.Output.SavePreviews = *previews
		case "curve-plot":
			cfg.Output.SaveCurvePlot = *curvePlot
		case "verbose":
			cfg.Output.Verbose = *verbose
		}
	})

	if cfg.Output.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	params, err := cfg.PerfusionParams()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	failurePolicy, err := cfg.Policy()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	maskRule, err := cfg.MaskRule()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	var cases []batch.Case
	if *single {
		cases = []batch.Case{{ID: nifti.TrimExtension(filepath.Base(*input)), VolumePath: *input, MaskPath: *mask}}
	} else {
		cases, err = batch.Discover(*input, cfg.Output.Extension, *mask)
		if err != nil {
			log.Fatalf("Failed to find cases: %v", err)
		}
	}
	if len(cases) == 0 {
		log.Fatalf("No cases with extension %s found in %s", cfg.Output.Extension, *input)
	}

	fmt.Println("================================")
	fmt.Println("DCE-MRI PARAMETER MAPS")
	fmt.Println("Initial slope, max enhancement, time to max, final slope")
	fmt.Println("================================")
	fmt.Printf("Cases: %d\n", len(cases))
	fmt.Printf("Temporal resolution: %.2f s, window: %d, onset constraint: %.2f min, final slope time: %.2f min\n",
		params.TemporalResolution, params.WindowSize, params.OnsetTimeConstraint, params.FinalSlopeTime)

	opts := batch.Options{
		Params:        params,
		Policy:        failurePolicy,
		CaseWorkers:   cfg.Processing.CaseWorkers,
		OutputDir:     *outputDir,
		SaveOnsetTime: cfg.Output.SaveOnsetTime,
		SavePreviews:  cfg.Output.SavePreviews,
		SaveCurvePlot: cfg.Output.SaveCurvePlot,
	}
	niftiIO := batch.NiftiIO{MaskRule: maskRule}
	runner := batch.NewRunner(opts, niftiIO, niftiIO, log.StandardLogger())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	startTime := time.Now()
	summary, err := runner.Run(ctx, cases)
	processingTime := time.Since(startTime)

	fmt.Printf("\nProcessed %d/%d cases in %.2f seconds\n", summary.Succeeded(), len(cases), processingTime.Seconds())
	for _, f := range summary.Failed() {
		fmt.Printf("- %s: %v\n", f.Case.ID, f.Err)
	}
	if err != nil {
		log.Fatalf("Batch aborted: %v", err)
	}
	if len(summary.Failed()) > 0 {
		os.Exit(2)
	}
	fmt.Printf("Parameter maps saved to: %s\n", *outputDir)
}
