// Package nifti reads, writes and stacks NIfTI-1 images. It supports
// single-file .nii images with optional gzip or bzip2 compression and
// the scalar datatypes produced by common acquisition pipelines.
//
// Voxel data is held as a flat []float64 in on-disk order (x fastest,
// then y, z and time), alongside the 4x4 voxel-to-world affine and the
// raw header so that round-trips preserve metadata.
package nifti

import (
	"gonum.org/v1/gonum/mat"
)

// Image is an in-memory NIfTI-1 image: voxel data, dimensions, the
// voxel-to-world affine transform and the header it was loaded with
// (or will be saved with).
type Image struct {
	// Hdr is the raw NIfTI-1 header. Load fills it from disk; Save
	// refreshes the fields derived from Dims and Affine before writing.
	Hdr Header

	// Dims holds the image dimensions, x first. Length 3 for a single
	// volume, 4 for a time series.
	Dims []int

	// Affine is the 4x4 matrix mapping voxel indices to world
	// coordinates in millimetres.
	Affine *mat.Dense

	// Data is the voxel data as float64 regardless of the on-disk
	// datatype, in row-major NIfTI order (x varies fastest).
	Data []float64
}

// NewImage creates an image with the given dimensions and affine,
// zero-filled data and a float32 on-disk datatype. A nil affine yields
// the identity transform. Dims must have 3 or 4 entries; anything else
// panics since it is a programming error, not an input error.
func NewImage(dims []int, affine *mat.Dense) *Image {
	if len(dims) != 3 && len(dims) != 4 {
		panic("nifti: NewImage requires 3 or 4 dimensions")
	}
	if affine == nil {
		affine = mat.NewDense(4, 4, nil)
		for i := 0; i < 4; i++ {
			affine.Set(i, i, 1)
		}
	}

	img := &Image{
		Dims:   append([]int(nil), dims...),
		Affine: mat.DenseCopyOf(affine),
		Data:   make([]float64, numVoxels(dims)),
	}
	img.Hdr.SizeofHdr = HeaderSize
	img.Hdr.Datatype = DTFloat32
	img.Hdr.Bitpix = 32
	img.Hdr.SclSlope = 1
	for i := range img.Hdr.Pixdim {
		img.Hdr.Pixdim[i] = 1
	}
	return img
}

// numVoxels returns the product of the dimensions.
func numVoxels(dims []int) int {
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}

// NDim returns the number of axes of the image data.
func (img *Image) NDim() int { return len(img.Dims) }

// SpatialDims returns the leading three dimensions.
func (img *Image) SpatialDims() (x, y, z int) {
	return img.Dims[0], img.Dims[1], img.Dims[2]
}

// NVolumes returns the length of the trailing time axis, or 1 for a
// plain 3-D image.
func (img *Image) NVolumes() int {
	if len(img.Dims) < 4 {
		return 1
	}
	return img.Dims[3]
}

// At returns the voxel value at spatial index (x, y, z) of the first
// volume.
func (img *Image) At(x, y, z int) float64 {
	return img.At4(x, y, z, 0)
}

// At4 returns the voxel value at index (x, y, z) of volume t.
func (img *Image) At4(x, y, z, t int) float64 {
	nx, ny, nz := img.SpatialDims()
	return img.Data[((t*nz+z)*ny+y)*nx+x]
}

// Set4 stores a voxel value at index (x, y, z) of volume t.
func (img *Image) Set4(x, y, z, t int, v float64) {
	nx, ny, nz := img.SpatialDims()
	img.Data[((t*nz+z)*ny+y)*nx+x] = v
}

// Volume returns the flat data of volume t as a subslice of Data.
// The result aliases the image's backing array.
func (img *Image) Volume(t int) []float64 {
	nx, ny, nz := img.SpatialDims()
	n := nx * ny * nz
	return img.Data[t*n : (t+1)*n]
}

// SameShape reports whether two images have identical dimensions.
func SameShape(a, b *Image) bool {
	if len(a.Dims) != len(b.Dims) {
		return false
	}
	for i := range a.Dims {
		if a.Dims[i] != b.Dims[i] {
			return false
		}
	}
	return true
}
