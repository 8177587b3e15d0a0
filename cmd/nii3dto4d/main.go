package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"nii3dto4d/pkg/config"
	"nii3dto4d/pkg/fourd"
)

func main() {
	// Parse command line arguments
	out4d := flag.String("out-4d", "", "4D output image name (default: derived from the first input)")
	checkAffines := flag.Bool("check-affines", true, "Fail if the input images differ in shape or affine transform")
	configPath := flag.String("config", "", "Optional YAML configuration file")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] 3D_IMAGE [3D_IMAGE...]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Read 3D image files and write a 4D file.\n\n")
		fmt.Fprintf(os.Stderr, "The input images are concatenated along a new trailing axis in the\n")
		fmt.Fprintf(os.Stderr, "order given on the command line. The output format is guessed from\n")
		fmt.Fprintf(os.Stderr, "the output filename (.nii or .nii.gz).\n\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	// Validate inputs
	inputs := flag.Args()
	if len(inputs) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	// Load optional configuration; flags given on the command line win
	// over configured defaults
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	check := cfg.Stack.CheckAffines
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "check-affines" {
			check = *checkAffines
		}
	})

	if cfg.Output.Verbose {
		fmt.Printf("Stacking %d 3D images into a 4D volume...\n", len(inputs))
	}

	stacker := fourd.NewStackerTol(cfg.Stack.AffineTolerance)
	img, err := stacker.Stack(inputs, check)
	if err != nil {
		log.Fatalf("Stacking failed: %v", err)
	}

	outPath := fourd.DeriveOutputPathSuffix(inputs, *out4d, cfg.Stack.OutputSuffix)
	if err := stacker.Save(img, outPath); err != nil {
		log.Fatalf("Saving failed: %v", err)
	}

	if cfg.Output.Verbose {
		x, y, z := img.SpatialDims()
		fmt.Printf("Wrote %dx%dx%dx%d image to: %s\n", x, y, z, img.NVolumes(), outPath)
	}
}
