package nifti

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// Load reads a NIfTI-1 image from path. Gzip and bzip2 compressed
// files are detected by their magic bytes, so the extension does not
// have to match the actual encoding. Unreadable paths produce a
// NotFoundError, undecodable content a FormatError.
func Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &NotFoundError{Path: path, Err: err}
	}
	defer f.Close()

	r, err := decompressed(f)
	if err != nil {
		return nil, &FormatError{Path: path, Reason: err.Error()}
	}

	hdrBytes := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, hdrBytes); err != nil {
		return nil, &FormatError{Path: path, Reason: fmt.Sprintf("short header: %v", err)}
	}

	// The header carries no explicit endianness flag; sizeof_hdr read
	// with the wrong byte order decodes to a nonsense value, so try
	// little-endian first and fall back to big-endian.
	var hdr Header
	order := binary.ByteOrder(binary.LittleEndian)
	if err := binary.Read(bytes.NewReader(hdrBytes), order, &hdr); err != nil {
		return nil, &FormatError{Path: path, Reason: err.Error()}
	}
	if hdr.SizeofHdr != HeaderSize {
		order = binary.BigEndian
		if err := binary.Read(bytes.NewReader(hdrBytes), order, &hdr); err != nil {
			return nil, &FormatError{Path: path, Reason: err.Error()}
		}
		if hdr.SizeofHdr != HeaderSize {
			return nil, &FormatError{Path: path, Reason: "not a NIfTI-1 file (bad sizeof_hdr)"}
		}
	}

	switch string(hdr.Magic[:3]) {
	case "n+1":
		// Single-file image, data follows in this stream.
	case "ni1":
		return nil, &FormatError{Path: path, Reason: "paired .hdr/.img images are not supported"}
	default:
		return nil, &FormatError{Path: path, Reason: "missing NIfTI magic"}
	}

	if _, ok := bitpixFor(hdr.Datatype); !ok {
		return nil, &FormatError{Path: path, Reason: fmt.Sprintf("unsupported datatype code %d", hdr.Datatype)}
	}

	dims, err := usableDims(&hdr)
	if err != nil {
		return nil, &FormatError{Path: path, Reason: err.Error()}
	}

	// Skip any header extensions between the header and the voxel data.
	skip := int64(hdr.VoxOffset) - HeaderSize
	if skip < 0 {
		return nil, &FormatError{Path: path, Reason: fmt.Sprintf("vox_offset %v before end of header", hdr.VoxOffset)}
	}
	if _, err := io.CopyN(io.Discard, r, skip); err != nil {
		return nil, &FormatError{Path: path, Reason: fmt.Sprintf("truncated before voxel data: %v", err)}
	}

	data, err := readVoxels(r, order, hdr.Datatype, numVoxels(dims))
	if err != nil {
		return nil, &FormatError{Path: path, Reason: err.Error()}
	}

	return &Image{
		Hdr:    hdr,
		Dims:   dims,
		Affine: hdr.Affine(),
		Data:   data,
	}, nil
}

// decompressed wraps r with the decoder matching its leading magic
// bytes, or returns it unchanged for uncompressed input.
func decompressed(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(3)
	if err != nil {
		return nil, fmt.Errorf("file too short: %v", err)
	}
	switch {
	case magic[0] == 0x1f && magic[1] == 0x8b:
		return gzip.NewReader(br)
	case magic[0] == 'B' && magic[1] == 'Z' && magic[2] == 'h':
		return bzip2.NewReader(br), nil
	}
	return br, nil
}

// usableDims extracts the image dimensions, dropping trailing axes of
// length one so that a 3-D volume saved with dim[0]=4 still loads as
// 3-D. Only 3-D and 4-D results are accepted.
func usableDims(hdr *Header) ([]int, error) {
	dims := hdr.Shape()
	if len(dims) == 0 {
		return nil, fmt.Errorf("header reports no dimensions")
	}
	for len(dims) > 3 && dims[len(dims)-1] == 1 {
		dims = dims[:len(dims)-1]
	}
	if len(dims) < 3 || len(dims) > 4 {
		return nil, fmt.Errorf("expected a 3-D or 4-D image, got %d dimensions", len(dims))
	}
	for i, d := range dims {
		if d < 1 {
			return nil, fmt.Errorf("non-positive extent %d on axis %d", d, i)
		}
	}
	return dims, nil
}

// readVoxels decodes n voxels of the given datatype into float64s.
func readVoxels(r io.Reader, order binary.ByteOrder, datatype int16, n int) ([]float64, error) {
	out := make([]float64, n)
	var err error
	switch datatype {
	case DTUint8:
		buf := make([]uint8, n)
		if _, err = io.ReadFull(r, buf); err == nil {
			for i, v := range buf {
				out[i] = float64(v)
			}
		}
	case DTInt16:
		buf := make([]int16, n)
		if err = binary.Read(r, order, buf); err == nil {
			for i, v := range buf {
				out[i] = float64(v)
			}
		}
	case DTInt32:
		buf := make([]int32, n)
		if err = binary.Read(r, order, buf); err == nil {
			for i, v := range buf {
				out[i] = float64(v)
			}
		}
	case DTFloat32:
		buf := make([]float32, n)
		if err = binary.Read(r, order, buf); err == nil {
			for i, v := range buf {
				out[i] = float64(v)
			}
		}
	case DTFloat64:
		if err = binary.Read(r, order, out); err != nil {
			break
		}
	default:
		return nil, fmt.Errorf("unsupported datatype code %d", datatype)
	}
	if err != nil {
		return nil, fmt.Errorf("truncated voxel data: %v", err)
	}
	return out, nil
}

// Save writes img to path, with the encoding inferred from the
// filename: .nii for a plain file, .nii.gz for gzip. Output is always
// little-endian. Unwritable paths and unsupported extensions produce a
// SaveError; .bz2 output is rejected since only bzip2 decompression is
// available.
func Save(img *Image, path string) error {
	compress, err := outputEncoding(path)
	if err != nil {
		return &SaveError{Path: path, Err: err}
	}

	f, err := os.Create(path)
	if err != nil {
		return &SaveError{Path: path, Err: err}
	}
	defer f.Close()

	var w io.Writer = f
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(f)
		w = gz
	}
	bw := bufio.NewWriter(w)

	if err := writeImage(bw, img); err != nil {
		return &SaveError{Path: path, Err: err}
	}
	if err := bw.Flush(); err != nil {
		return &SaveError{Path: path, Err: err}
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return &SaveError{Path: path, Err: err}
		}
	}
	if err := f.Close(); err != nil {
		return &SaveError{Path: path, Err: err}
	}
	return nil
}

// outputEncoding maps an output filename to its compression setting.
func outputEncoding(path string) (compress bool, err error) {
	name := filepath.Base(path)
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".nii":
		return false, nil
	case ".gz":
		if !strings.HasSuffix(strings.ToLower(strings.TrimSuffix(name, ext)), ".nii") {
			return false, fmt.Errorf("cannot infer output format from %q", name)
		}
		return true, nil
	case ".bz2":
		return false, fmt.Errorf("bzip2 output is not supported, use .nii or .nii.gz")
	default:
		return false, fmt.Errorf("cannot infer output format from %q", name)
	}
}

// writeImage serializes the refreshed header, the empty extension flag
// and the voxel data.
func writeImage(w io.Writer, img *Image) error {
	hdr := img.Hdr
	hdr.SizeofHdr = HeaderSize
	hdr.Magic = [4]byte{'n', '+', '1', 0}
	hdr.VoxOffset = singleFileVoxOffset

	if _, ok := bitpixFor(hdr.Datatype); !ok {
		hdr.Datatype = DTFloat32
	}
	hdr.Bitpix, _ = bitpixFor(hdr.Datatype)

	hdr.Dim = [8]int16{1, 1, 1, 1, 1, 1, 1, 1}
	hdr.Dim[0] = int16(len(img.Dims))
	for i, d := range img.Dims {
		hdr.Dim[i+1] = int16(d)
	}
	if img.Affine != nil {
		hdr.SetAffine(img.Affine)
	}

	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return err
	}
	// Four zero bytes: no header extensions.
	if _, err := w.Write([]byte{0, 0, 0, 0}); err != nil {
		return err
	}
	return writeVoxels(w, hdr.Datatype, img.Data)
}

// writeVoxels encodes the float64 data in the on-disk datatype,
// rounding for the integer types.
func writeVoxels(w io.Writer, datatype int16, data []float64) error {
	switch datatype {
	case DTUint8:
		buf := make([]uint8, len(data))
		for i, v := range data {
			buf[i] = uint8(clamp(math.Round(v), 0, math.MaxUint8))
		}
		_, err := w.Write(buf)
		return err
	case DTInt16:
		buf := make([]int16, len(data))
		for i, v := range data {
			buf[i] = int16(clamp(math.Round(v), math.MinInt16, math.MaxInt16))
		}
		return binary.Write(w, binary.LittleEndian, buf)
	case DTInt32:
		buf := make([]int32, len(data))
		for i, v := range data {
			buf[i] = int32(clamp(math.Round(v), math.MinInt32, math.MaxInt32))
		}
		return binary.Write(w, binary.LittleEndian, buf)
	case DTFloat32:
		buf := make([]float32, len(data))
		for i, v := range data {
			buf[i] = float32(v)
		}
		return binary.Write(w, binary.LittleEndian, buf)
	case DTFloat64:
		return binary.Write(w, binary.LittleEndian, data)
	}
	return fmt.Errorf("unsupported datatype code %d", datatype)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
