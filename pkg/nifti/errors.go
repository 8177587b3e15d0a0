package nifti

import "fmt"

// NotFoundError reports an input path that does not exist or cannot be
// opened for reading.
type NotFoundError struct {
	Path string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("image file %s not readable: %v", e.Path, e.Err)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// FormatError reports a file that could be read but is not a NIfTI-1
// image this package can decode.
type FormatError struct {
	Path   string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid NIfTI file %s: %s", e.Path, e.Reason)
}

// CompatibilityError reports two images that cannot be stacked because
// their shapes or affine transforms disagree.
type CompatibilityError struct {
	// Index is the position of the offending image in the input sequence.
	Index  int
	Reason string
}

func (e *CompatibilityError) Error() string {
	return fmt.Sprintf("image %d incompatible with first image: %s", e.Index, e.Reason)
}

// SaveError reports a failure to write an output image, either because
// the path is unwritable or the output format cannot be produced.
type SaveError struct {
	Path string
	Err  error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("cannot save image to %s: %v", e.Path, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }
