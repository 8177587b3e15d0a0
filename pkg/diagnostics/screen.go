// Package diagnostics screens 4-D functional images for acquisition
// problems. It produces mean, standard deviation, min and max summary
// volumes over the time axis together with a time-difference analysis:
// large volume-to-volume differences point at movement or scanner
// artefacts, and the per-slice breakdown localizes them.
package diagnostics

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"nii3dto4d/pkg/nifti"
)

// TimeDiffResult holds the time-difference analysis of a 4-D image
// with T timepoints and Z slices.
type TimeDiffResult struct {
	// VolumeMeans is the mean intensity of each of the T volumes.
	VolumeMeans []float64

	// VolumeMeanDiff2 has T-1 entries: the mean squared voxel
	// difference between consecutive volumes.
	VolumeMeanDiff2 []float64

	// SliceMeanDiff2 is T-1 by Z: the mean squared difference between
	// consecutive volumes restricted to each z slice.
	SliceMeanDiff2 [][]float64

	// Diff2MeanVol is the 3-D image of each voxel's squared difference
	// averaged over all T-1 transitions.
	Diff2MeanVol *nifti.Image
}

// ScreenResult bundles the summary images and time-difference results
// for one 4-D image.
type ScreenResult struct {
	Mean *nifti.Image
	Std  *nifti.Image
	Min  *nifti.Image
	Max  *nifti.Image

	TimeDiff *TimeDiffResult
}

// Screen runs the full diagnostic screen on a 4-D image. The summary
// statistics are taken over the trailing time axis; the slice axis for
// the difference breakdown is the third spatial axis.
func Screen(img *nifti.Image) (*ScreenResult, error) {
	if img.NDim() != 4 {
		return nil, fmt.Errorf("expected a 4-D image, got %d-D", img.NDim())
	}
	nt := img.NVolumes()
	if nt < 2 {
		return nil, fmt.Errorf("need at least 2 timepoints, got %d", nt)
	}

	res := &ScreenResult{
		Mean: summaryImage(img),
		Std:  summaryImage(img),
		Min:  summaryImage(img),
		Max:  summaryImage(img),
	}

	nx, ny, nz := img.SpatialDims()
	nvox := nx * ny * nz
	series := make([]float64, nt)
	for i := 0; i < nvox; i++ {
		for t := 0; t < nt; t++ {
			series[t] = img.Data[t*nvox+i]
		}
		res.Mean.Data[i] = stat.Mean(series, nil)
		res.Std.Data[i] = stat.StdDev(series, nil)
		res.Min.Data[i] = floats.Min(series)
		res.Max.Data[i] = floats.Max(series)
	}

	td, err := TimeSliceDiffs(img)
	if err != nil {
		return nil, err
	}
	res.TimeDiff = td
	return res, nil
}

// summaryImage allocates a 3-D image matching the spatial grid of a
// 4-D input, carrying over its affine and header.
func summaryImage(img *nifti.Image) *nifti.Image {
	nx, ny, nz := img.SpatialDims()
	out := nifti.NewImage([]int{nx, ny, nz}, img.Affine)
	out.Hdr = img.Hdr
	return out
}

// TimeSliceDiffs computes the volume-to-volume squared difference
// analysis of a 4-D image.
func TimeSliceDiffs(img *nifti.Image) (*TimeDiffResult, error) {
	if img.NDim() != 4 {
		return nil, fmt.Errorf("expected a 4-D image, got %d-D", img.NDim())
	}
	nt := img.NVolumes()
	if nt < 2 {
		return nil, fmt.Errorf("need at least 2 timepoints, got %d", nt)
	}
	nx, ny, nz := img.SpatialDims()
	sliceSize := nx * ny

	res := &TimeDiffResult{
		VolumeMeans:     make([]float64, nt),
		VolumeMeanDiff2: make([]float64, nt-1),
		SliceMeanDiff2:  make([][]float64, nt-1),
		Diff2MeanVol:    summaryImage(img),
	}

	for t := 0; t < nt; t++ {
		res.VolumeMeans[t] = stat.Mean(img.Volume(t), nil)
	}

	for t := 0; t < nt-1; t++ {
		cur, next := img.Volume(t), img.Volume(t+1)
		res.SliceMeanDiff2[t] = make([]float64, nz)
		for z := 0; z < nz; z++ {
			sum := 0.0
			for i := z * sliceSize; i < (z+1)*sliceSize; i++ {
				d := next[i] - cur[i]
				sum += d * d
				res.Diff2MeanVol.Data[i] += d * d
			}
			res.SliceMeanDiff2[t][z] = sum / float64(sliceSize)
		}
		res.VolumeMeanDiff2[t] = stat.Mean(res.SliceMeanDiff2[t], nil)
	}

	scale := 1.0 / float64(nt-1)
	floats.Scale(scale, res.Diff2MeanVol.Data)
	return res, nil
}

// Save writes the screen results into dir using the given filename
// prefix: the four summary volumes, the mean squared difference volume
// and a plain-text report of the per-volume statistics.
func (r *ScreenResult) Save(dir, prefix string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %v", err)
	}
	images := map[string]*nifti.Image{
		"mean":           r.Mean,
		"std":            r.Std,
		"min":            r.Min,
		"max":            r.Max,
		"diff2_mean_vol": r.TimeDiff.Diff2MeanVol,
	}
	for name, img := range images {
		path := filepath.Join(dir, fmt.Sprintf("%s_%s.nii.gz", prefix, name))
		if err := nifti.Save(img, path); err != nil {
			return err
		}
	}
	return r.writeReport(filepath.Join(dir, prefix+"_tsdiff.txt"))
}

// writeReport dumps the volume means and mean squared differences as a
// two-column text table, one row per timepoint.
func (r *ScreenResult) writeReport(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to write report: %v", err)
	}
	fmt.Fprintf(f, "# volume\tmean\tmean_diff2_from_previous\n")
	for t, m := range r.TimeDiff.VolumeMeans {
		if t == 0 {
			fmt.Fprintf(f, "%d\t%.6f\t-\n", t, m)
			continue
		}
		fmt.Fprintf(f, "%d\t%.6f\t%.6f\n", t, m, r.TimeDiff.VolumeMeanDiff2[t-1])
	}
	return f.Close()
}
