package overlap

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"lesionmap/internal/models"
)

// noData is written in place of the overlap statistic for regions with
// zero voxels, where the fraction is undefined.
const noData = "no data"

// WriteRegionReport writes region overlap records as CSV with the columns
// the downstream statistics scripts expect:
//
//	atlas_label,n_label_voxels,label_volume_mm3,n_lesion_voxels,lesion_volume_mm3,overlap
func WriteRegionReport(w io.Writer, records []models.RegionOverlapRecord) error {
	cw := csv.NewWriter(w)
	header := []string{
		"atlas_label",
		"n_label_voxels",
		"label_volume_mm3",
		"n_lesion_voxels",
		"lesion_volume_mm3",
		"overlap",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing region report: %w", err)
	}
	for _, rec := range records {
		overlap := noData
		if !rec.Undefined {
			overlap = strconv.FormatFloat(rec.Overlap, 'g', 6, 64)
		}
		row := []string{
			rec.Region,
			strconv.Itoa(rec.RegionVoxels),
			strconv.FormatFloat(rec.RegionVolumeMM3, 'g', 6, 64),
			strconv.Itoa(rec.LesionVoxels),
			strconv.FormatFloat(rec.LesionVolumeMM3, 'g', 6, 64),
			overlap,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing region report: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteExclusionReport writes the per-subject exclusion table: one row per
// subject that failed loading or validation, with the reason.
func WriteExclusionReport(w io.Writer, results []models.SubjectResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"subject", "path", "reason"}); err != nil {
		return fmt.Errorf("writing exclusion report: %w", err)
	}
	for _, res := range results {
		if !res.Excluded() {
			continue
		}
		if err := cw.Write([]string{res.SubjectID, res.Path, res.Err.Error()}); err != nil {
			return fmt.Errorf("writing exclusion report: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
