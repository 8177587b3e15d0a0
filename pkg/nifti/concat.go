package nifti

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// DefaultAffineTol is the absolute tolerance used when comparing
// affine transforms for compatibility.
const DefaultAffineTol = 1e-4

// Concat stacks 3-D images along a new trailing axis, in input order,
// with DefaultAffineTol for the affine comparison. See ConcatTol.
func Concat(imgs []*Image, checkAffines bool) (*Image, error) {
	return ConcatTol(imgs, checkAffines, DefaultAffineTol)
}

// ConcatTol stacks 3-D images along a new trailing axis. The result
// has the first image's spatial dimensions, affine and header, and a
// fourth axis of length len(imgs) whose slice k is the data of input k.
//
// With checkAffines set, any image whose shape differs from the first,
// or whose affine differs beyond tol, fails the whole operation with a
// CompatibilityError. With the check disabled nothing fails: affines
// are ignored and volumes of a different shape are cropped or
// zero-padded to the first volume's extents.
func ConcatTol(imgs []*Image, checkAffines bool, tol float64) (*Image, error) {
	if len(imgs) == 0 {
		return nil, fmt.Errorf("no images to concatenate")
	}
	for i, img := range imgs {
		if img.NDim() != 3 {
			return nil, &CompatibilityError{Index: i, Reason: fmt.Sprintf("expected a 3-D image, got %d-D", img.NDim())}
		}
	}

	first := imgs[0]
	if checkAffines {
		for i, img := range imgs[1:] {
			if !SameShape(first, img) {
				return nil, &CompatibilityError{
					Index:  i + 1,
					Reason: fmt.Sprintf("shape %v does not match %v", img.Dims, first.Dims),
				}
			}
			if !mat.EqualApprox(first.Affine, img.Affine, tol) {
				return nil, &CompatibilityError{
					Index:  i + 1,
					Reason: fmt.Sprintf("affine differs by more than %g", tol),
				}
			}
		}
	}

	nx, ny, nz := first.SpatialDims()
	out := &Image{
		Hdr:    first.Hdr,
		Dims:   []int{nx, ny, nz, len(imgs)},
		Affine: mat.DenseCopyOf(first.Affine),
		Data:   make([]float64, nx*ny*nz*len(imgs)),
	}
	// The time step is unknown for stacked structural images; keep the
	// first header's TR slot as-is and just extend the dim fields,
	// which writeImage refreshes on save anyway.

	for t, img := range imgs {
		dst := out.Data[t*nx*ny*nz : (t+1)*nx*ny*nz]
		if SameShape(first, img) {
			copy(dst, img.Data)
			continue
		}
		copyResized(dst, img, nx, ny, nz)
	}
	return out, nil
}

// copyResized copies a volume into a destination of different spatial
// extents, cropping the overhang and leaving unreached voxels zero.
func copyResized(dst []float64, img *Image, nx, ny, nz int) {
	mx, my, mz := img.SpatialDims()
	if mx > nx {
		mx = nx
	}
	if my > ny {
		my = ny
	}
	if mz > nz {
		mz = nz
	}
	for z := 0; z < mz; z++ {
		for y := 0; y < my; y++ {
			for x := 0; x < mx; x++ {
				dst[(z*ny+y)*nx+x] = img.At(x, y, z)
			}
		}
	}
}
