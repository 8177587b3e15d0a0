// Package fourd stacks a series of 3-D NIfTI images into a single 4-D
// image. It is a thin orchestration layer: the image loading,
// concatenation and saving live behind the Library interface so that
// the pipeline can be exercised against a fake in tests.
package fourd

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"nii3dto4d/pkg/nifti"
)

// OutputSuffix is appended to the first input's root name when no
// explicit output path is given.
const OutputSuffix = "_4d"

// ErrEmptyInput is returned when the input file list is empty.
var ErrEmptyInput = errors.New("no input image files given")

// Library is the capability the stacker requires of an imaging
// library: load a file into an image handle, concatenate handles along
// a new trailing axis, and save a handle to a file.
type Library interface {
	Load(path string) (*nifti.Image, error)
	Concat(imgs []*nifti.Image, checkAffines bool) (*nifti.Image, error)
	Save(img *nifti.Image, path string) error
}

// niftiLibrary backs Library with the nifti package.
type niftiLibrary struct {
	affineTol float64
}

func (l niftiLibrary) Load(path string) (*nifti.Image, error) {
	return nifti.Load(path)
}

func (l niftiLibrary) Concat(imgs []*nifti.Image, checkAffines bool) (*nifti.Image, error) {
	return nifti.ConcatTol(imgs, checkAffines, l.affineTol)
}

func (l niftiLibrary) Save(img *nifti.Image, path string) error {
	return nifti.Save(img, path)
}

// Stacker runs the 3-D to 4-D stacking pipeline.
type Stacker struct {
	lib Library
}

// NewStacker creates a stacker backed by the given library. A nil
// library selects the built-in NIfTI implementation with the default
// affine tolerance.
func NewStacker(lib Library) *Stacker {
	if lib == nil {
		lib = niftiLibrary{affineTol: nifti.DefaultAffineTol}
	}
	return &Stacker{lib: lib}
}

// NewStackerTol creates a NIfTI-backed stacker with a custom affine
// comparison tolerance.
func NewStackerTol(affineTol float64) *Stacker {
	return &Stacker{lib: niftiLibrary{affineTol: affineTol}}
}

// Stack loads each named file in order and concatenates the images
// along a new trailing axis. The input list is never mutated. Any load
// failure aborts immediately with that file's error; no partial result
// is produced. With checkAffines set, images whose shape or affine
// disagree with the first fail with a nifti.CompatibilityError.
func (s *Stacker) Stack(filenames []string, checkAffines bool) (*nifti.Image, error) {
	if len(filenames) == 0 {
		return nil, ErrEmptyInput
	}
	imgs := make([]*nifti.Image, 0, len(filenames))
	for _, fname := range filenames {
		img, err := s.lib.Load(fname)
		if err != nil {
			return nil, err
		}
		imgs = append(imgs, img)
	}
	return s.lib.Concat(imgs, checkAffines)
}

// Save writes an image through the stacker's library.
func (s *Stacker) Save(img *nifti.Image, path string) error {
	return s.lib.Save(img, path)
}

// Run stacks the named files and saves the combined image to outPath,
// deriving the path from the first input when outPath is empty. It
// returns the path actually written.
func (s *Stacker) Run(filenames []string, outPath string, checkAffines bool) (string, error) {
	img, err := s.Stack(filenames, checkAffines)
	if err != nil {
		return "", err
	}
	out := DeriveOutputPath(filenames, outPath)
	if err := s.lib.Save(img, out); err != nil {
		return "", err
	}
	return out, nil
}

// DeriveOutputPath returns explicit unchanged when it is non-empty.
// Otherwise it derives the output name from the first input filename:
// a .gz or .bz2 suffix is peeled off first, then OutputSuffix is
// inserted between the root and the remaining extension, so
// "a/b/img.nii.gz" becomes "a/b/img_4d.nii.gz". This is pure string
// manipulation; the paths are not validated against the filesystem.
func DeriveOutputPath(filenames []string, explicit string) string {
	return DeriveOutputPathSuffix(filenames, explicit, OutputSuffix)
}

// DeriveOutputPathSuffix is DeriveOutputPath with a caller-chosen
// suffix in place of OutputSuffix.
func DeriveOutputPathSuffix(filenames []string, explicit, suffix string) string {
	if explicit != "" {
		return explicit
	}
	if len(filenames) == 0 {
		return ""
	}
	dir, base := filepath.Split(filenames[0])
	ext := filepath.Ext(base)
	root := strings.TrimSuffix(base, ext)
	compression := ""
	if ext == ".gz" || ext == ".bz2" {
		compression = ext
		ext = filepath.Ext(root)
		root = strings.TrimSuffix(root, ext)
	}
	return filepath.Join(dir, fmt.Sprintf("%s%s%s%s", root, suffix, ext, compression))
}
