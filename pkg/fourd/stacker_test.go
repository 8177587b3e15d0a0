package fourd

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"nii3dto4d/internal/fixtures"
	"nii3dto4d/pkg/nifti"
)

// TestDeriveOutputPath verifies the output name derivation rules,
// including the compression suffix handling and that an explicit
// output always wins.
func TestDeriveOutputPath(t *testing.T) {
	testCases := []struct {
		filenames []string
		explicit  string
		expected  string
	}{
		{[]string{"a/b/img.nii.gz"}, "", "a/b/img_4d.nii.gz"},
		{[]string{"a/b/img.nii.bz2"}, "", "a/b/img_4d.nii.bz2"},
		{[]string{"a/b/img.nii"}, "", "a/b/img_4d.nii"},
		{[]string{"img.nii"}, "", "img_4d.nii"},
		{[]string{"a/b/img.nii"}, "out.nii", "out.nii"},
		{[]string{"a/b/img.nii.gz", "a/b/other.nii.gz"}, "", "a/b/img_4d.nii.gz"},
		{nil, "out.nii", "out.nii"},
	}

	for _, tc := range testCases {
		got := DeriveOutputPath(tc.filenames, tc.explicit)
		if got != tc.expected {
			t.Errorf("DeriveOutputPath(%v, %q): expected %q, got %q",
				tc.filenames, tc.explicit, tc.expected, got)
		}
	}
}

// TestDeriveOutputPathSuffix verifies that a configured suffix
// replaces the default one.
func TestDeriveOutputPathSuffix(t *testing.T) {
	got := DeriveOutputPathSuffix([]string{"a/img.nii.gz"}, "", "_stacked")
	if got != "a/img_stacked.nii.gz" {
		t.Errorf("expected a/img_stacked.nii.gz, got %q", got)
	}
}

// TestStackEmptyInput verifies that an empty file list fails with
// ErrEmptyInput before any library call.
func TestStackEmptyInput(t *testing.T) {
	lib := &fakeLibrary{}
	_, err := NewStacker(lib).Stack(nil, true)
	if !errors.Is(err, ErrEmptyInput) {
		t.Errorf("expected ErrEmptyInput, got %v", err)
	}
	if len(lib.loaded) != 0 {
		t.Errorf("library was called for an empty input list")
	}
}

// fakeLibrary records calls and serves canned images, standing in for
// the NIfTI implementation.
type fakeLibrary struct {
	loaded    []string
	failOn    string
	concatted [][]*nifti.Image
	saved     []string
}

func (f *fakeLibrary) Load(path string) (*nifti.Image, error) {
	if path == f.failOn {
		return nil, &nifti.NotFoundError{Path: path, Err: os.ErrNotExist}
	}
	f.loaded = append(f.loaded, path)
	img := nifti.NewImage([]int{2, 2, 2}, nil)
	img.Hdr.SetDescrip(path)
	return img, nil
}

func (f *fakeLibrary) Concat(imgs []*nifti.Image, checkAffines bool) (*nifti.Image, error) {
	f.concatted = append(f.concatted, imgs)
	return nifti.Concat(imgs, checkAffines)
}

func (f *fakeLibrary) Save(img *nifti.Image, path string) error {
	f.saved = append(f.saved, path)
	return nil
}

// TestStackPreservesOrder verifies that files are loaded in list order
// and handed to the concatenation step in the same order.
func TestStackPreservesOrder(t *testing.T) {
	lib := &fakeLibrary{}
	names := []string{"c.nii", "a.nii", "b.nii"}

	if _, err := NewStacker(lib).Stack(names, true); err != nil {
		t.Fatalf("Stack failed: %v", err)
	}

	for i, name := range names {
		if lib.loaded[i] != name {
			t.Errorf("load %d: expected %s, got %s", i, name, lib.loaded[i])
		}
	}
	if len(lib.concatted) != 1 {
		t.Fatalf("expected one concat call, got %d", len(lib.concatted))
	}
	for i, img := range lib.concatted[0] {
		if img.Hdr.DescripString() != names[i] {
			t.Errorf("concat input %d: expected image for %s, got %s",
				i, names[i], img.Hdr.DescripString())
		}
	}
}

// TestStackFailFast verifies that a load failure aborts immediately
// without touching the remaining files or the concat step.
func TestStackFailFast(t *testing.T) {
	lib := &fakeLibrary{failOn: "b.nii"}
	_, err := NewStacker(lib).Stack([]string{"a.nii", "b.nii", "c.nii"}, true)

	var nfe *nifti.NotFoundError
	if !errors.As(err, &nfe) {
		t.Fatalf("expected NotFoundError, got %T: %v", err, err)
	}
	if len(lib.loaded) != 1 || lib.loaded[0] != "a.nii" {
		t.Errorf("expected only a.nii to have been loaded, got %v", lib.loaded)
	}
	if len(lib.concatted) != 0 {
		t.Errorf("concat was called despite the load failure")
	}
}

// TestRunEndToEnd stacks real files from disk and verifies the written
// 4-D output and its derived name.
func TestRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	paths, err := fixtures.WriteSeries(dir, 3, []int{4, 4, 3})
	if err != nil {
		t.Fatalf("failed to write fixture series: %v", err)
	}

	out, err := NewStacker(nil).Run(paths, "", true)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if expected := filepath.Join(dir, "vol_000_4d.nii.gz"); out != expected {
		t.Errorf("expected output path %s, got %s", expected, out)
	}

	img, err := nifti.Load(out)
	if err != nil {
		t.Fatalf("failed to load the combined image: %v", err)
	}
	for i, d := range []int{4, 4, 3, 3} {
		if img.Dims[i] != d {
			t.Errorf("dimension %d: expected %d, got %d", i, d, img.Dims[i])
		}
	}
	// Fixture volume k holds k*1000+i at flat index i.
	for k := 0; k < 3; k++ {
		vol := img.Volume(k)
		for i := 0; i < len(vol); i += 17 {
			if want := float64(k*1000 + i); vol[i] != want {
				t.Fatalf("volume %d voxel %d: expected %f, got %f", k, i, want, vol[i])
			}
		}
	}
}

// TestRunUnreadableInput verifies the fail-fast contract at the
// pipeline level: a missing input fails the run and no output file is
// written.
func TestRunUnreadableInput(t *testing.T) {
	dir := t.TempDir()
	paths, err := fixtures.WriteSeries(dir, 2, []int{4, 4, 3})
	if err != nil {
		t.Fatalf("failed to write fixture series: %v", err)
	}
	missing := filepath.Join(dir, "missing.nii.gz")

	_, err = NewStacker(nil).Run(append(paths, missing), "", true)
	var nfe *nifti.NotFoundError
	if !errors.As(err, &nfe) {
		t.Fatalf("expected NotFoundError, got %T: %v", err, err)
	}

	derived := DeriveOutputPath(paths, "")
	if _, statErr := os.Stat(derived); !os.IsNotExist(statErr) {
		t.Errorf("output file %s was written despite the failure", derived)
	}
}

// TestRunIncompatibleSeries verifies that a shape mismatch surfaces as
// a CompatibilityError with checking enabled and succeeds without.
func TestRunIncompatibleSeries(t *testing.T) {
	dir := t.TempDir()
	paths, err := fixtures.WriteSeries(dir, 2, []int{4, 4, 3})
	if err != nil {
		t.Fatalf("failed to write fixture series: %v", err)
	}
	odd := fixtures.NewImage([]int{3, 3, 3}, nil, nil)
	oddPath := filepath.Join(dir, "odd.nii.gz")
	if err := nifti.Save(odd, oddPath); err != nil {
		t.Fatalf("failed to write odd fixture: %v", err)
	}
	inputs := append(paths, oddPath)

	_, err = NewStacker(nil).Stack(inputs, true)
	var ce *nifti.CompatibilityError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CompatibilityError, got %T: %v", err, err)
	}

	img, err := NewStacker(nil).Stack(inputs, false)
	if err != nil {
		t.Fatalf("Stack without checking failed: %v", err)
	}
	if img.NVolumes() != 3 {
		t.Errorf("expected 3 volumes, got %d", img.NVolumes())
	}
}

// TestStackerSaveRejectsBadPath exercises the save path through the
// default library.
func TestStackerSaveRejectsBadPath(t *testing.T) {
	img := fixtures.NewImage([]int{2, 2, 2}, nil, nil)
	err := NewStacker(nil).Save(img, filepath.Join(t.TempDir(), "out.bz2"))
	var se *nifti.SaveError
	if !errors.As(err, &se) {
		t.Errorf("expected SaveError, got %T: %v", err, err)
	}
}

// Ensure fakeLibrary keeps satisfying the interface as it evolves.
var _ Library = (*fakeLibrary)(nil)
