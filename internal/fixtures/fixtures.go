// Package fixtures builds small synthetic NIfTI images for tests.
// Everything is created by explicit calls from the test that needs it,
// so there is no package-level state and no setup ordering to get
// wrong; callers usually write into a t.TempDir.
package fixtures

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"nii3dto4d/pkg/nifti"
)

// FuncDims is the shape of the 4-D functional fixture, matching the
// small EPI series traditionally used for smoke tests.
var FuncDims = []int{17, 21, 3, 20}

// NewImage creates a 3-D or 4-D image whose voxel k holds fill(k).
// A nil affine selects a 2mm isotropic diagonal transform, a nil fill
// a deterministic gradient (the flat index itself).
func NewImage(dims []int, affine *mat.Dense, fill func(i int) float64) *nifti.Image {
	if affine == nil {
		affine = DiagonalAffine(2)
	}
	if fill == nil {
		fill = func(i int) float64 { return float64(i) }
	}
	img := nifti.NewImage(dims, affine)
	for i := range img.Data {
		img.Data[i] = fill(i)
	}
	return img
}

// DiagonalAffine returns a 4x4 affine with the given voxel size on the
// spatial diagonal and no rotation or offset.
func DiagonalAffine(voxelSize float64) *mat.Dense {
	a := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		a.Set(i, i, voxelSize)
	}
	a.Set(3, 3, 1)
	return a
}

// WriteSeries writes n compatible 3-D volumes vol_000.nii.gz ...
// into dir and returns their paths in order. Volume k holds the value
// k*1000+i at flat index i, so stacking order is observable in the
// data.
func WriteSeries(dir string, n int, dims []int) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	paths := make([]string, 0, n)
	for k := 0; k < n; k++ {
		base := float64(k * 1000)
		img := NewImage(dims, nil, func(i int) float64 { return base + float64(i) })
		path := filepath.Join(dir, fmt.Sprintf("vol_%03d.nii.gz", k))
		if err := nifti.Save(img, path); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// WriteFuncfile writes a 4-D functional fixture of shape FuncDims into
// dir and returns its path. The data is a gradient with a per-volume
// offset so summary statistics have known values.
func WriteFuncfile(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	nvox := FuncDims[0] * FuncDims[1] * FuncDims[2]
	img := NewImage(FuncDims, nil, func(i int) float64 {
		t := i / nvox
		return float64(t*100) + float64(i%nvox)*0.01
	})
	path := filepath.Join(dir, "functional.nii.gz")
	if err := nifti.Save(img, path); err != nil {
		return "", err
	}
	return path, nil
}
