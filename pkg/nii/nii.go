// Package nii is a thin seam over the NIfTI-1 file format. It loads
// registered lesion masks, anatomical templates, and integer label volumes
// into the in-memory types the analysis core works with, and writes density
// volumes back out. All format parsing is delegated to
// github.com/KyungWonPark/nifti; nothing else in the repository touches the
// wire format.
package nii

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/KyungWonPark/nifti"

	"lesionmap/internal/models"
)

// Volume is a scalar volume with grid metadata, used for anatomical
// templates (heatmap underlays) and other non-binary reference data.
type Volume struct {
	Grid models.Grid
	Data []float64
}

// At returns the value at voxel (x, y, z).
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[v.Grid.Index(x, y, z)]
}

// Labels is an integer label volume, one anatomical label per voxel.
type Labels struct {
	Grid models.Grid
	Data []int32
}

// readGrid builds a Grid from a NIfTI header and the image dimensions.
// The affine comes from the sform rows; files without an sform fall back
// to a diagonal transform built from the voxel dimensions.
func readGrid(hdr nifti.Nifti1Header, dims []int) models.Grid {
	g := models.Grid{Nx: dims[0], Ny: dims[1], Nz: dims[2]}
	for i := 0; i < 3; i++ {
		g.VoxelDims[i] = float64(hdr.Pixdim[i+1])
	}

	rows := [3][4]float32{hdr.SrowX, hdr.SrowY, hdr.SrowZ}
	hasSform := false
	for _, row := range rows {
		for _, v := range row {
			if v != 0 {
				hasSform = true
			}
		}
	}
	if hasSform {
		for r := 0; r < 3; r++ {
			for c := 0; c < 4; c++ {
				g.Affine[r][c] = float64(rows[r][c])
			}
		}
	} else {
		for i := 0; i < 3; i++ {
			g.Affine[i][i] = g.VoxelDims[i]
		}
	}
	g.Affine[3][3] = 1
	return g
}

// open loads a NIfTI image and its header, returning the raw handles and
// the derived grid. The underlying library has no error returns, so the
// file is stat'ed first to produce a sensible error for missing inputs.
func open(path string) (nifti.Nifti1Image, nifti.Nifti1Header, models.Grid, error) {
	var img nifti.Nifti1Image
	var hdr nifti.Nifti1Header

	if _, err := os.Stat(path); err != nil {
		return img, hdr, models.Grid{}, fmt.Errorf("opening %s: %w", path, err)
	}

	img.LoadImage(path, true)
	hdr.LoadHeader(path)

	dims := img.GetDims()
	if len(dims) < 3 || dims[0] <= 0 || dims[1] <= 0 || dims[2] <= 0 {
		return img, hdr, models.Grid{}, fmt.Errorf("%s: volume has degenerate dimensions %v", path, dims)
	}

	return img, hdr, readGrid(hdr, dims[:]), nil
}

// LoadMask loads one subject's registered lesion mask. Any nonzero voxel
// is treated as lesion; registration toolboxes occasionally leave values
// slightly above 1 after nearest-neighbour warping.
func LoadMask(path, subjectID string) (*models.VolumeMask, error) {
	img, _, grid, err := open(path)
	if err != nil {
		return nil, err
	}

	mask := &models.VolumeMask{
		SubjectID: subjectID,
		Grid:      grid,
		Data:      make([]bool, grid.NumVoxels()),
	}
	for z := 0; z < grid.Nz; z++ {
		for y := 0; y < grid.Ny; y++ {
			for x := 0; x < grid.Nx; x++ {
				if img.GetAt(uint32(x), uint32(y), uint32(z), 0) != 0 {
					mask.Data[grid.Index(x, y, z)] = true
				}
			}
		}
	}
	return mask, nil
}

// LoadVolume loads a scalar volume such as an anatomical template.
func LoadVolume(path string) (*Volume, error) {
	img, _, grid, err := open(path)
	if err != nil {
		return nil, err
	}

	vol := &Volume{Grid: grid, Data: make([]float64, grid.NumVoxels())}
	for z := 0; z < grid.Nz; z++ {
		for y := 0; y < grid.Ny; y++ {
			for x := 0; x < grid.Nx; x++ {
				vol.Data[grid.Index(x, y, z)] = float64(img.GetAt(uint32(x), uint32(y), uint32(z), 0))
			}
		}
	}
	return vol, nil
}

// LoadLabels loads an integer label volume (a warped atlas parcellation).
// Label values are rounded to the nearest integer to absorb the float
// storage used by some atlas distributions.
func LoadLabels(path string) (*Labels, error) {
	img, _, grid, err := open(path)
	if err != nil {
		return nil, err
	}

	lab := &Labels{Grid: grid, Data: make([]int32, grid.NumVoxels())}
	for z := 0; z < grid.Nz; z++ {
		for y := 0; y < grid.Ny; y++ {
			for x := 0; x < grid.Nx; x++ {
				v := img.GetAt(uint32(x), uint32(y), uint32(z), 0)
				lab.Data[grid.Index(x, y, z)] = int32(v + 0.5)
			}
		}
	}
	return lab, nil
}

// SaveDensity writes a density volume as a NIfTI file, reusing the header
// of headerFrom (typically the atlas template) so the output stays in the
// same space as its inputs. When normalize is set the voxel values are
// fractions of the cohort size instead of raw counts.
func SaveDensity(path string, d *models.DensityVolume, headerFrom string, normalize bool) error {
	if _, err := os.Stat(headerFrom); err != nil {
		return fmt.Errorf("reading reference header %s: %w", headerFrom, err)
	}
	var hdr nifti.Nifti1Header
	hdr.LoadHeader(headerFrom)

	img := nifti.NewImg(d.Grid.Nx, d.Grid.Ny, d.Grid.Nz, 1)
	img.SetNewHeader(hdr)

	var vals []float64
	if normalize {
		vals = d.Normalized()
	}
	for z := 0; z < d.Grid.Nz; z++ {
		for y := 0; y < d.Grid.Ny; y++ {
			for x := 0; x < d.Grid.Nx; x++ {
				var v float32
				if normalize {
					v = float32(vals[d.Grid.Index(x, y, z)])
				} else {
					v = float32(d.Counts[d.Grid.Index(x, y, z)])
				}
				img.SetAt(uint32(x), uint32(y), uint32(z), 0, v)
			}
		}
	}

	img.Save(path)
	return nil
}

// SubjectID derives a subject identifier from a mask filename by trimming
// the matched pattern suffix and the NIfTI extensions, then any trailing
// separator left behind.
func SubjectID(path, pattern string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, pattern)
	base = strings.TrimSuffix(base, ".nii.gz")
	base = strings.TrimSuffix(base, ".nii")
	return strings.TrimRight(base, "_-.")
}
