package models

import (
	"fmt"
	"math"
)

// affineTolerance is the absolute tolerance used when comparing affine
// transforms and voxel dimensions. Registration toolboxes round the sform
// rows slightly differently, so exact float equality is too strict.
const affineTolerance = 1e-4

// Grid describes the voxel lattice shared by every volume in one run:
// its dimensions, the physical voxel size, and the affine transform that
// maps integer voxel indices to millimeter coordinates in atlas space.
type Grid struct {
	// Nx, Ny, Nz are the grid dimensions in voxels
	Nx, Ny, Nz int

	// VoxelDims holds the physical voxel size in mm along each axis
	VoxelDims [3]float64

	// Affine maps homogeneous voxel indices (i, j, k, 1) to physical
	// millimeter coordinates in atlas space
	Affine [4][4]float64
}

// NumVoxels returns the total number of voxels in the grid.
func (g Grid) NumVoxels() int {
	return g.Nx * g.Ny * g.Nz
}

// Index returns the flat index of voxel (x, y, z) in row-major order.
func (g Grid) Index(x, y, z int) int {
	return z*g.Nx*g.Ny + y*g.Nx + x
}

// VoxelVolume returns the physical volume of a single voxel in mm^3.
func (g Grid) VoxelVolume() float64 {
	return g.VoxelDims[0] * g.VoxelDims[1] * g.VoxelDims[2]
}

// VoxelToWorld applies the affine transform to a voxel index, returning
// the physical coordinate in atlas space (mm).
func (g Grid) VoxelToWorld(x, y, z int) (wx, wy, wz float64) {
	v := [4]float64{float64(x), float64(y), float64(z), 1}
	var out [3]float64
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			out[r] += g.Affine[r][c] * v[c]
		}
	}
	return out[0], out[1], out[2]
}

// Equal reports whether two grids describe the same voxel lattice: same
// shape and the same affine within a small absolute tolerance. Grids that
// differ must not be mixed in one aggregation.
func (g Grid) Equal(o Grid) bool {
	if g.Nx != o.Nx || g.Ny != o.Ny || g.Nz != o.Nz {
		return false
	}
	for i := 0; i < 3; i++ {
		if math.Abs(g.VoxelDims[i]-o.VoxelDims[i]) > affineTolerance {
			return false
		}
	}
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			if math.Abs(g.Affine[r][c]-o.Affine[r][c]) > affineTolerance {
				return false
			}
		}
	}
	return true
}

// String renders the grid shape and voxel size, e.g. "182x218x182 @ 1.00x1.00x1.00mm".
func (g Grid) String() string {
	return fmt.Sprintf("%dx%dx%d @ %.2fx%.2fx%.2fmm",
		g.Nx, g.Ny, g.Nz, g.VoxelDims[0], g.VoxelDims[1], g.VoxelDims[2])
}

// VolumeMask is one subject's binary lesion volume in atlas space.
// Masks are created once by loading a registered NIfTI file and are never
// mutated afterwards.
type VolumeMask struct {
	// SubjectID identifies the subject this mask belongs to
	SubjectID string

	// Grid describes the voxel lattice the mask is defined on
	Grid Grid

	// Data is the flat binary volume in row-major order; true marks a
	// lesioned voxel. Indexed via Grid.Index.
	Data []bool
}

// LesionVoxels returns the number of lesioned voxels in the mask.
func (m *VolumeMask) LesionVoxels() int {
	n := 0
	for _, v := range m.Data {
		if v {
			n++
		}
	}
	return n
}

// LesionVolumeMM3 returns the physical lesion volume in mm^3.
func (m *VolumeMask) LesionVolumeMM3() float64 {
	return float64(m.LesionVoxels()) * m.Grid.VoxelVolume()
}

// DensityVolume holds the voxel-wise lesion frequency across a cohort:
// each voxel counts the subjects whose mask covers it. It is produced by
// a single accumulation pass and immutable thereafter.
type DensityVolume struct {
	// Grid describes the voxel lattice the counts are defined on
	Grid Grid

	// Counts is the flat count volume in row-major order; every value
	// lies in [0, CohortSize]
	Counts []int

	// CohortSize is the number of subjects that contributed to the counts,
	// including subjects whose mask was entirely empty
	CohortSize int
}

// At returns the count at voxel (x, y, z).
func (d *DensityVolume) At(x, y, z int) int {
	return d.Counts[d.Grid.Index(x, y, z)]
}

// MaxCount returns the largest voxel count in the volume.
func (d *DensityVolume) MaxCount() int {
	max := 0
	for _, c := range d.Counts {
		if c > max {
			max = c
		}
	}
	return max
}

// Normalized returns the counts as fractions of the cohort size, each
// value in [0, 1]. A zero cohort yields all zeros.
func (d *DensityVolume) Normalized() []float64 {
	out := make([]float64, len(d.Counts))
	if d.CohortSize == 0 {
		return out
	}
	n := float64(d.CohortSize)
	for i, c := range d.Counts {
		out[i] = float64(c) / n
	}
	return out
}
