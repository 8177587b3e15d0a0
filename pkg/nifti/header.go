package nifti

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// HeaderSize is the fixed byte size of a NIfTI-1 header.
const HeaderSize = 348

// singleFileVoxOffset is the data offset for single-file images:
// 348 header bytes plus the 4-byte extension flag.
const singleFileVoxOffset = 352

// NIfTI-1 datatype codes for the types this package can read and write.
// These cover the datatypes commonly produced by scanners and analysis
// pipelines; packed, complex and RGB types are rejected at load time.
const (
	DTUint8   int16 = 2
	DTInt16   int16 = 4
	DTInt32   int16 = 8
	DTFloat32 int16 = 16
	DTFloat64 int16 = 64
)

// Spatial transform codes (qform_code / sform_code values).
const (
	XformUnknown int16 = 0
	XformScanner int16 = 1
	XformAligned int16 = 2
)

// Header is the NIfTI-1 header exactly as it is laid out on disk.
// The field order and fixed-size arrays match the 348-byte binary
// layout, so the whole struct can be read and written in one
// encoding/binary call.
type Header struct {
	SizeofHdr     int32
	DataTypeName  [10]byte
	DBName        [18]byte
	Extents       int32
	SessionError  int16
	Regular       byte
	DimInfo       byte
	Dim           [8]int16
	IntentP1      float32
	IntentP2      float32
	IntentP3      float32
	IntentCode    int16
	Datatype      int16
	Bitpix        int16
	SliceStart    int16
	Pixdim        [8]float32
	VoxOffset     float32
	SclSlope      float32
	SclInter      float32
	SliceEnd      int16
	SliceCode     byte
	XyztUnits     byte
	CalMax        float32
	CalMin        float32
	SliceDuration float32
	Toffset       float32
	Glmax         int32
	Glmin         int32
	Descrip       [80]byte
	AuxFile       [24]byte
	QformCode     int16
	SformCode     int16
	QuaternB      float32
	QuaternC      float32
	QuaternD      float32
	QoffsetX      float32
	QoffsetY      float32
	QoffsetZ      float32
	SrowX         [4]float32
	SrowY         [4]float32
	SrowZ         [4]float32
	IntentName    [16]byte
	Magic         [4]byte
}

// bitpixFor maps a supported datatype code to its bits-per-voxel value.
func bitpixFor(datatype int16) (int16, bool) {
	switch datatype {
	case DTUint8:
		return 8, true
	case DTInt16:
		return 16, true
	case DTInt32, DTFloat32:
		return 32, true
	case DTFloat64:
		return 64, true
	}
	return 0, false
}

// NDim returns the number of dimensions recorded in the header,
// clamped to the valid 1..7 range.
func (h *Header) NDim() int {
	n := int(h.Dim[0])
	if n < 1 {
		return 0
	}
	if n > 7 {
		return 7
	}
	return n
}

// Shape returns the image dimensions as a slice of ints, one entry per
// used axis in the header's dim array.
func (h *Header) Shape() []int {
	n := h.NDim()
	shape := make([]int, n)
	for i := 0; i < n; i++ {
		d := int(h.Dim[i+1])
		if d < 1 {
			d = 1
		}
		shape[i] = d
	}
	return shape
}

// Affine derives the voxel-to-world transform from the header as a 4x4
// matrix, using the same precedence as the reference implementations:
// the sform rows when sform_code is set, otherwise the qform quaternion,
// otherwise a diagonal scaling built from pixdim.
func (h *Header) Affine() *mat.Dense {
	if h.SformCode > XformUnknown {
		return h.sformAffine()
	}
	if h.QformCode > XformUnknown {
		return h.qformAffine()
	}
	return h.baseAffine()
}

// sformAffine assembles the affine directly from the srow_* header rows.
func (h *Header) sformAffine() *mat.Dense {
	a := mat.NewDense(4, 4, nil)
	for j := 0; j < 4; j++ {
		a.Set(0, j, float64(h.SrowX[j]))
		a.Set(1, j, float64(h.SrowY[j]))
		a.Set(2, j, float64(h.SrowZ[j]))
	}
	a.Set(3, 3, 1)
	return a
}

// qformAffine reconstructs the rotation from the stored unit quaternion
// and scales its columns by the voxel sizes. pixdim[0] carries the qfac
// sign that flips the third column for left-handed orientations.
func (h *Header) qformAffine() *mat.Dense {
	b := float64(h.QuaternB)
	c := float64(h.QuaternC)
	d := float64(h.QuaternD)
	// The scalar part is implicit; numerical noise can push the sum of
	// squares slightly over 1, so clamp before the square root.
	aa := 1.0 - (b*b + c*c + d*d)
	if aa < 0 {
		aa = 0
	}
	qa := math.Sqrt(aa)

	r := [3][3]float64{
		{qa*qa + b*b - c*c - d*d, 2 * (b*c - qa*d), 2 * (b*d + qa*c)},
		{2 * (b*c + qa*d), qa*qa + c*c - b*b - d*d, 2 * (c*d - qa*b)},
		{2 * (b*d - qa*c), 2 * (c*d + qa*b), qa*qa + d*d - c*c - b*b},
	}

	qfac := float64(h.Pixdim[0])
	if qfac == 0 {
		qfac = 1
	}
	sx := float64(h.Pixdim[1])
	sy := float64(h.Pixdim[2])
	sz := float64(h.Pixdim[3]) * qfac

	a := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		a.Set(i, 0, r[i][0]*sx)
		a.Set(i, 1, r[i][1]*sy)
		a.Set(i, 2, r[i][2]*sz)
	}
	a.Set(0, 3, float64(h.QoffsetX))
	a.Set(1, 3, float64(h.QoffsetY))
	a.Set(2, 3, float64(h.QoffsetZ))
	a.Set(3, 3, 1)
	return a
}

// baseAffine is the fallback transform for headers with neither qform
// nor sform: voxel sizes on the diagonal, no rotation, no offset.
func (h *Header) baseAffine() *mat.Dense {
	a := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		p := float64(h.Pixdim[i+1])
		if p == 0 {
			p = 1
		}
		a.Set(i, i, p)
	}
	a.Set(3, 3, 1)
	return a
}

// SetAffine writes the given 4x4 transform into the sform rows and
// marks the sform as aligned. The qform fields are left untouched.
func (h *Header) SetAffine(a *mat.Dense) {
	for j := 0; j < 4; j++ {
		h.SrowX[j] = float32(a.At(0, j))
		h.SrowY[j] = float32(a.At(1, j))
		h.SrowZ[j] = float32(a.At(2, j))
	}
	if h.SformCode == XformUnknown {
		h.SformCode = XformAligned
	}
}

// SetDescrip stores a description string in the fixed-size descrip
// field, truncating to its 79 usable bytes.
func (h *Header) SetDescrip(s string) {
	h.Descrip = [80]byte{}
	copy(h.Descrip[:79], s)
}

// DescripString returns the descrip field with trailing NUL bytes removed.
func (h *Header) DescripString() string {
	n := 0
	for n < len(h.Descrip) && h.Descrip[n] != 0 {
		n++
	}
	return string(h.Descrip[:n])
}
