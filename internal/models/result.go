package models

import "fmt"

// RegionOverlapRecord holds the overlap statistics for one atlas region,
// either against a single binary mask (intersection counts) or against a
// cohort density volume (mean voxel density within the region).
type RegionOverlapRecord struct {
	// Region is the atlas region name
	Region string

	// RegionVoxels is the total voxel count of the region
	RegionVoxels int

	// RegionVolumeMM3 is the physical region volume in mm^3
	RegionVolumeMM3 float64

	// LesionVoxels is the voxel count of the lesion/region intersection
	LesionVoxels int

	// LesionVolumeMM3 is the physical intersection volume in mm^3
	LesionVolumeMM3 float64

	// Overlap is the overlap statistic: intersection/region_size for a
	// binary mask, or the mean voxel density within the region for a
	// density volume. With normalized densities it lies in [0, 1]; with
	// raw counts it lies in [0, cohort size].
	Overlap float64

	// Undefined marks a region with zero voxels, for which no overlap
	// statistic exists. Such regions are reported as "no data" rather
	// than as a zero.
	Undefined bool
}

// SubjectResult is the per-subject outcome of loading and validation.
// The pipeline collects one of these per input file before aggregation,
// making the partial-failure policy an explicit data structure.
type SubjectResult struct {
	// SubjectID identifies the subject, derived from the input filename
	SubjectID string

	// Path is the input file the subject was loaded from
	Path string

	// Mask is the validated lesion mask; nil when Err is set
	Mask *VolumeMask

	// Err records why the subject was excluded; nil on success
	Err error
}

// Excluded reports whether the subject failed loading or validation.
func (r SubjectResult) Excluded() bool {
	return r.Err != nil
}

// ShapeMismatchError reports that a subject mask's grid shape or affine
// disagrees with the reference atlas grid. The affected subject is
// excluded from aggregation; the cohort run continues.
type ShapeMismatchError struct {
	// SubjectID identifies the offending subject, when known
	SubjectID string

	// Got is the grid of the loaded volume
	Got Grid

	// Want is the reference atlas grid
	Want Grid
}

func (e *ShapeMismatchError) Error() string {
	if e.SubjectID != "" {
		return fmt.Sprintf("subject %s: grid %s does not match atlas grid %s",
			e.SubjectID, e.Got, e.Want)
	}
	return fmt.Sprintf("grid %s does not match atlas grid %s", e.Got, e.Want)
}
