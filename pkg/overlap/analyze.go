package overlap

import (
	"gonum.org/v1/gonum/stat"

	"lesionmap/internal/models"
	"lesionmap/pkg/atlas"
)

// AnalyzeMask intersects one binary mask with each requested atlas region
// and returns one record per region, in exactly the requested order. The
// overlap statistic is intersection/region_size; a region with zero voxels
// yields an Undefined record instead of a division by zero.
//
// An unknown region name fails the whole call before any record is
// produced, so a partial report is never returned.
func AnalyzeMask(mask *models.VolumeMask, reg *atlas.Registry, names []string) ([]models.RegionOverlapRecord, error) {
	if !mask.Grid.Equal(reg.Grid()) {
		return nil, &models.ShapeMismatchError{SubjectID: mask.SubjectID, Got: mask.Grid, Want: reg.Grid()}
	}
	if err := checkNames(reg, names); err != nil {
		return nil, err
	}

	voxVol := mask.Grid.VoxelVolume()
	records := make([]models.RegionOverlapRecord, 0, len(names))
	for _, name := range names {
		membership, err := reg.Membership(name)
		if err != nil {
			return nil, err
		}

		regionVoxels := 0
		intersect := 0
		for i, in := range membership {
			if !in {
				continue
			}
			regionVoxels++
			if mask.Data[i] {
				intersect++
			}
		}

		rec := models.RegionOverlapRecord{
			Region:          name,
			RegionVoxels:    regionVoxels,
			RegionVolumeMM3: float64(regionVoxels) * voxVol,
			LesionVoxels:    intersect,
			LesionVolumeMM3: float64(intersect) * voxVol,
		}
		if regionVoxels == 0 {
			rec.Undefined = true
		} else {
			rec.Overlap = float64(intersect) / float64(regionVoxels)
		}
		records = append(records, rec)
	}
	return records, nil
}

// AnalyzeDensity computes the atlas-based lesion burden of a cohort
// density volume: for each requested region, the mean voxel density
// restricted to the region. With normalize set the densities are
// fractions of the cohort size, so the statistic lies in [0, 1]; with raw
// counts it lies in [0, cohort size]. Output order is the request order.
func AnalyzeDensity(d *models.DensityVolume, reg *atlas.Registry, names []string, normalize bool) ([]models.RegionOverlapRecord, error) {
	if !d.Grid.Equal(reg.Grid()) {
		return nil, &models.ShapeMismatchError{Got: d.Grid, Want: reg.Grid()}
	}
	if err := checkNames(reg, names); err != nil {
		return nil, err
	}

	values := make([]float64, len(d.Counts))
	if normalize {
		copy(values, d.Normalized())
	} else {
		for i, c := range d.Counts {
			values[i] = float64(c)
		}
	}

	voxVol := d.Grid.VoxelVolume()
	records := make([]models.RegionOverlapRecord, 0, len(names))
	for _, name := range names {
		membership, err := reg.Membership(name)
		if err != nil {
			return nil, err
		}

		var inRegion []float64
		covered := 0
		for i, in := range membership {
			if !in {
				continue
			}
			inRegion = append(inRegion, values[i])
			if d.Counts[i] > 0 {
				covered++
			}
		}

		rec := models.RegionOverlapRecord{
			Region:          name,
			RegionVoxels:    len(inRegion),
			RegionVolumeMM3: float64(len(inRegion)) * voxVol,
			LesionVoxels:    covered,
			LesionVolumeMM3: float64(covered) * voxVol,
		}
		if len(inRegion) == 0 {
			rec.Undefined = true
		} else {
			rec.Overlap = stat.Mean(inRegion, nil)
		}
		records = append(records, rec)
	}
	return records, nil
}

// checkNames verifies every requested region up front so that an unknown
// name produces no partial output.
func checkNames(reg *atlas.Registry, names []string) error {
	for _, name := range names {
		if !reg.Has(name) {
			return &atlas.UnknownRegionError{Region: name}
		}
	}
	return nil
}
