// Package mask computes brain masks from EPI images using the
// histogram heuristic of T. Nichols: threshold at the least dense
// point of the intensity histogram between two fractions of the total,
// then optionally clean the result with a morphological opening and by
// keeping only the largest connected component.
package mask

import (
	"fmt"
	"sort"

	"nii3dto4d/pkg/nifti"
)

// Options controls ComputeMask. The zero value is not useful; start
// from DefaultOptions.
type Options struct {
	// LowerCutoff and UpperCutoff bound the fraction of the sorted
	// intensity histogram searched for the least dense point.
	LowerCutoff float64
	UpperCutoff float64

	// ExcludeZeros treats zero voxels as missing values when choosing
	// the threshold. Useful for images padded with zeros by reslicing.
	ExcludeZeros bool

	// Opening is the number of erosion/dilation iterations applied to
	// the raw threshold mask. Zero disables the opening.
	Opening int

	// KeepLargest keeps only the largest 6-connected component.
	KeepLargest bool
}

// DefaultOptions mirrors the reference implementation's defaults.
func DefaultOptions() Options {
	return Options{
		LowerCutoff: 0.2,
		UpperCutoff: 0.9,
		Opening:     2,
		KeepLargest: true,
	}
}

// MeanVolume averages a 4-D image over its trailing time axis and
// returns the 3-D mean image with the input's affine and header.
func MeanVolume(img *nifti.Image) (*nifti.Image, error) {
	if img.NDim() != 4 {
		return nil, fmt.Errorf("expected a 4-D image, got %d-D", img.NDim())
	}
	nx, ny, nz := img.SpatialDims()
	nt := img.NVolumes()

	mean := nifti.NewImage([]int{nx, ny, nz}, img.Affine)
	mean.Hdr = img.Hdr
	for t := 0; t < nt; t++ {
		vol := img.Volume(t)
		for i, v := range vol {
			mean.Data[i] += v
		}
	}
	for i := range mean.Data {
		mean.Data[i] /= float64(nt)
	}
	return mean, nil
}

// ComputeMask derives a binary mask from a 3-D mean EPI image. The
// result is a uint8 image with 1 inside the mask and 0 outside,
// sharing the input's affine.
func ComputeMask(mean *nifti.Image, opts Options) (*nifti.Image, error) {
	if mean.NDim() != 3 {
		return nil, fmt.Errorf("expected a 3-D mean image, got %d-D", mean.NDim())
	}
	if opts.LowerCutoff < 0 || opts.UpperCutoff > 1 || opts.LowerCutoff >= opts.UpperCutoff {
		return nil, fmt.Errorf("invalid cutoffs [%g, %g]", opts.LowerCutoff, opts.UpperCutoff)
	}

	threshold, err := histogramThreshold(mean.Data, opts)
	if err != nil {
		return nil, err
	}

	nx, ny, nz := mean.SpatialDims()
	bits := make([]bool, len(mean.Data))
	for i, v := range mean.Data {
		bits[i] = v >= threshold
	}

	if opts.Opening > 0 {
		bits = open(bits, nx, ny, nz, opts.Opening)
	}
	if opts.KeepLargest {
		bits, err = largestComponent(bits, nx, ny, nz)
		if err != nil {
			return nil, err
		}
	}

	out := nifti.NewImage([]int{nx, ny, nz}, mean.Affine)
	out.Hdr.Datatype = nifti.DTUint8
	out.Hdr.Bitpix = 8
	out.Hdr.Pixdim = mean.Hdr.Pixdim
	for i, b := range bits {
		if b {
			out.Data[i] = 1
		}
	}
	return out, nil
}

// histogramThreshold finds the largest gap between consecutive sorted
// intensities inside the cutoff window and thresholds at its midpoint.
// The least dense point of the histogram separates the air/background
// mode from the tissue mode.
func histogramThreshold(data []float64, opts Options) (float64, error) {
	sorted := make([]float64, 0, len(data))
	for _, v := range data {
		if opts.ExcludeZeros && v == 0 {
			continue
		}
		sorted = append(sorted, v)
	}
	if len(sorted) < 2 {
		return 0, fmt.Errorf("not enough voxels to compute a threshold")
	}
	sort.Float64s(sorted)

	lo := int(opts.LowerCutoff * float64(len(sorted)))
	hi := int(opts.UpperCutoff * float64(len(sorted)))
	if hi > len(sorted)-1 {
		hi = len(sorted) - 1
	}
	if hi-lo < 1 {
		return 0, fmt.Errorf("cutoff window [%g, %g] leaves no voxels", opts.LowerCutoff, opts.UpperCutoff)
	}

	ia := lo
	maxGap := -1.0
	for i := lo; i < hi; i++ {
		if gap := sorted[i+1] - sorted[i]; gap > maxGap {
			maxGap = gap
			ia = i
		}
	}
	return 0.5 * (sorted[ia] + sorted[ia+1]), nil
}

// open applies iterations of 6-neighbourhood erosion followed by the
// same number of dilations.
func open(bits []bool, nx, ny, nz, iterations int) []bool {
	for i := 0; i < iterations; i++ {
		bits = erodeOrDilate(bits, nx, ny, nz, true)
	}
	for i := 0; i < iterations; i++ {
		bits = erodeOrDilate(bits, nx, ny, nz, false)
	}
	return bits
}

// erodeOrDilate runs one morphological step. Eroding clears voxels
// with any unset 6-neighbour (voxels outside the volume count as
// unset); dilating sets voxels with any set neighbour.
func erodeOrDilate(bits []bool, nx, ny, nz int, erode bool) []bool {
	out := make([]bool, len(bits))
	idx := func(x, y, z int) int { return (z*ny+y)*nx + x }
	at := func(x, y, z int) bool {
		if x < 0 || y < 0 || z < 0 || x >= nx || y >= ny || z >= nz {
			return false
		}
		return bits[idx(x, y, z)]
	}
	for z := 0; z < nz; z++ {
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				neighbours := []bool{
					at(x-1, y, z), at(x+1, y, z),
					at(x, y-1, z), at(x, y+1, z),
					at(x, y, z-1), at(x, y, z+1),
				}
				if erode {
					v := bits[idx(x, y, z)]
					for _, n := range neighbours {
						v = v && n
					}
					out[idx(x, y, z)] = v
				} else {
					v := bits[idx(x, y, z)]
					for _, n := range neighbours {
						v = v || n
					}
					out[idx(x, y, z)] = v
				}
			}
		}
	}
	return out
}

// largestComponent keeps only the largest 6-connected component of the
// mask, using union-find over the voxel grid.
func largestComponent(bits []bool, nx, ny, nz int) ([]bool, error) {
	parent := make([]int, len(bits))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	idx := func(x, y, z int) int { return (z*ny+y)*nx + x }
	for z := 0; z < nz; z++ {
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				i := idx(x, y, z)
				if !bits[i] {
					continue
				}
				if x > 0 && bits[idx(x-1, y, z)] {
					union(i, idx(x-1, y, z))
				}
				if y > 0 && bits[idx(x, y-1, z)] {
					union(i, idx(x, y-1, z))
				}
				if z > 0 && bits[idx(x, y, z-1)] {
					union(i, idx(x, y, z-1))
				}
			}
		}
	}

	counts := make(map[int]int)
	for i, b := range bits {
		if b {
			counts[find(i)]++
		}
	}
	if len(counts) == 0 {
		return nil, fmt.Errorf("mask is empty: no connected components")
	}
	best, bestCount := -1, 0
	for root, count := range counts {
		if count > bestCount {
			best, bestCount = root, count
		}
	}

	out := make([]bool, len(bits))
	for i, b := range bits {
		out[i] = b && find(i) == best
	}
	return out, nil
}
