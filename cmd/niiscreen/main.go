package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"nii3dto4d/pkg/config"
	"nii3dto4d/pkg/diagnostics"
	"nii3dto4d/pkg/mask"
	"nii3dto4d/pkg/nifti"
)

func main() {
	// Parse command line arguments
	outDir := flag.String("out-dir", "", "Directory for the screen results (default: alongside the input)")
	prefix := flag.String("prefix", "", "Filename prefix for the results (default: input root name)")
	writeMask := flag.Bool("mask", false, "Also compute and write an EPI mask from the mean image")
	configPath := flag.String("config", "", "Optional YAML configuration file")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] 4D_IMAGE\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Diagnostic screen for a 4D functional image: writes mean, std, min\n")
		fmt.Fprintf(os.Stderr, "and max summary volumes plus a volume-to-volume difference analysis.\n\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	input := flag.Arg(0)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	dir := *outDir
	if dir == "" {
		dir = filepath.Dir(input)
	}
	root := *prefix
	if root == "" {
		root = inputRoot(input)
	}

	if cfg.Output.Verbose {
		fmt.Printf("Screening 4D image: %s\n", input)
	}
	img, err := nifti.Load(input)
	if err != nil {
		log.Fatalf("Loading failed: %v", err)
	}

	res, err := diagnostics.Screen(img)
	if err != nil {
		log.Fatalf("Screening failed: %v", err)
	}
	if err := res.Save(dir, root); err != nil {
		log.Fatalf("Saving screen results failed: %v", err)
	}
	if cfg.Output.Verbose {
		fmt.Printf("Screen results saved to: %s\n", dir)
		worst := 0
		for t, d := range res.TimeDiff.VolumeMeanDiff2 {
			if d > res.TimeDiff.VolumeMeanDiff2[worst] {
				worst = t
			}
		}
		fmt.Printf("Largest volume-to-volume difference at transition %d -> %d\n", worst, worst+1)
	}

	if *writeMask {
		opts := mask.DefaultOptions()
		opts.LowerCutoff = cfg.Mask.LowerCutoff
		opts.UpperCutoff = cfg.Mask.UpperCutoff
		opts.Opening = cfg.Mask.Opening

		m, err := mask.ComputeMask(res.Mean, opts)
		if err != nil {
			log.Fatalf("Mask computation failed: %v", err)
		}
		maskPath := filepath.Join(dir, root+"_mask.nii.gz")
		if err := nifti.Save(m, maskPath); err != nil {
			log.Fatalf("Saving mask failed: %v", err)
		}
		if cfg.Output.Verbose {
			fmt.Printf("Mask saved to: %s\n", maskPath)
		}
	}
}

// inputRoot strips the directory, any compression suffix and the image
// extension from a path.
func inputRoot(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	if ext == ".gz" || ext == ".bz2" {
		base = strings.TrimSuffix(base, ext)
		ext = filepath.Ext(base)
	}
	return strings.TrimSuffix(base, ext)
}
