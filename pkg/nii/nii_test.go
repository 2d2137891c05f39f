package nii

import (
	"path/filepath"
	"testing"

	"github.com/KyungWonPark/nifti"
)

func TestSubjectID(t *testing.T) {
	tests := []struct {
		path    string
		pattern string
		want    string
	}{
		{"/data/sub-01_space-MNI152T1w1mm.nii.gz", "space-MNI152T1w1mm.nii.gz", "sub-01"},
		{"sub-02_space-MNI152T1w1mm.nii.gz", "space-MNI152T1w1mm.nii.gz", "sub-02"},
		{"patient03.nii.gz", "", "patient03"},
		{"patient03.nii", "", "patient03"},
		{"/deep/nested/dir/case-7_lesion_space-MNI152T1w1mm.nii.gz", "space-MNI152T1w1mm.nii.gz", "case-7_lesion"},
	}
	for _, tt := range tests {
		if got := SubjectID(tt.path, tt.pattern); got != tt.want {
			t.Errorf("SubjectID(%q, %q): got %q, want %q", tt.path, tt.pattern, got, tt.want)
		}
	}
}

func TestReadGridSform(t *testing.T) {
	var hdr nifti.Nifti1Header
	hdr.Pixdim = [8]float32{0, 1, 1, 1, 0, 0, 0, 0}
	hdr.SrowX = [4]float32{-1, 0, 0, 90}
	hdr.SrowY = [4]float32{0, 1, 0, -126}
	hdr.SrowZ = [4]float32{0, 0, 1, -72}

	g := readGrid(hdr, []int{182, 218, 182})
	if g.Nx != 182 || g.Ny != 218 || g.Nz != 182 {
		t.Fatalf("unexpected dims: %v", g)
	}
	if g.Affine[0][0] != -1 || g.Affine[0][3] != 90 {
		t.Errorf("sform row not carried into affine: %v", g.Affine[0])
	}
	if g.Affine[3][3] != 1 {
		t.Error("homogeneous row not set")
	}

	wx, wy, wz := g.VoxelToWorld(90, 126, 72)
	if wx != 0 || wy != 0 || wz != 0 {
		t.Errorf("origin voxel should map to (0,0,0) mm, got (%g,%g,%g)", wx, wy, wz)
	}
}

func TestReadGridDiagonalFallback(t *testing.T) {
	var hdr nifti.Nifti1Header
	hdr.Pixdim = [8]float32{0, 2, 2, 2, 0, 0, 0, 0}

	g := readGrid(hdr, []int{10, 10, 10})
	if g.VoxelDims != [3]float64{2, 2, 2} {
		t.Errorf("unexpected voxel dims: %v", g.VoxelDims)
	}
	// Without an sform the affine is a scaling by the voxel size.
	if g.Affine[0][0] != 2 || g.Affine[1][1] != 2 || g.Affine[2][2] != 2 {
		t.Errorf("fallback affine not diagonal: %v", g.Affine)
	}
	if g.VoxelVolume() != 8 {
		t.Errorf("voxel volume: got %g, want 8", g.VoxelVolume())
	}
}

func TestOpenMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.nii.gz")
	if _, err := LoadMask(path, "sub-01"); err == nil {
		t.Error("expected error for missing mask file")
	}
	if _, err := LoadVolume(path); err == nil {
		t.Error("expected error for missing volume file")
	}
	if _, err := LoadLabels(path); err == nil {
		t.Error("expected error for missing labels file")
	}
}

func TestSaveDensityMissingReference(t *testing.T) {
	dir := t.TempDir()
	err := SaveDensity(filepath.Join(dir, "out.nii"), nil, filepath.Join(dir, "missing.nii.gz"), false)
	if err == nil {
		t.Error("expected error for missing reference header")
	}
}
