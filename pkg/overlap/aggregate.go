// Package overlap aggregates lesion masks into voxel-wise density volumes
// and computes per-region overlap statistics against an atlas registry.
package overlap

import (
	"errors"
	"fmt"

	"lesionmap/internal/models"
)

// ErrEmptyCohort reports an aggregation or analysis over zero valid
// subjects. No output is produced in that case.
var ErrEmptyCohort = errors.New("empty cohort: no valid subject masks")

// Accumulate sums the cohort's masks into a density volume: each voxel
// counts the subjects whose mask covers it. The result does not depend on
// the order of the input masks. Subjects with an all-false mask still
// count toward the cohort size.
//
// All masks must share one grid; callers validate against the atlas grid
// beforehand, so a mismatch here indicates a bug and is reported as a
// ShapeMismatchError rather than silently resampled.
func Accumulate(masks []*models.VolumeMask) (*models.DensityVolume, error) {
	if len(masks) == 0 {
		return nil, ErrEmptyCohort
	}

	grid := masks[0].Grid
	for _, m := range masks[1:] {
		if !m.Grid.Equal(grid) {
			return nil, &models.ShapeMismatchError{SubjectID: m.SubjectID, Got: m.Grid, Want: grid}
		}
	}

	d := &models.DensityVolume{
		Grid:       grid,
		Counts:     make([]int, grid.NumVoxels()),
		CohortSize: len(masks),
	}
	for _, m := range masks {
		if len(m.Data) != len(d.Counts) {
			return nil, fmt.Errorf("subject %s: mask has %d voxels, grid expects %d",
				m.SubjectID, len(m.Data), len(d.Counts))
		}
		for i, v := range m.Data {
			if v {
				d.Counts[i]++
			}
		}
	}
	return d, nil
}
