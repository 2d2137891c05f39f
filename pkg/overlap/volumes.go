package overlap

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"lesionmap/internal/models"
)

// VolumeRecord is one subject's total lesion volume.
type VolumeRecord struct {
	SubjectID string
	Voxels    int
	VolumeMM3 float64
}

// LesionVolumes computes the total lesion volume of each mask, sorted by
// subject ID for a stable report.
func LesionVolumes(masks []*models.VolumeMask) []VolumeRecord {
	out := make([]VolumeRecord, 0, len(masks))
	for _, m := range masks {
		voxels := m.LesionVoxels()
		out = append(out, VolumeRecord{
			SubjectID: m.SubjectID,
			Voxels:    voxels,
			VolumeMM3: float64(voxels) * m.Grid.VoxelVolume(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubjectID < out[j].SubjectID })
	return out
}

// WarpComparison contrasts a subject's lesion volume before and after
// warping into atlas space, to spot registrations that inflated or
// shrank the lesion.
type WarpComparison struct {
	SubjectID      string
	NativeMM3      float64
	WarpedMM3      float64
	DifferenceMM3  float64
	PercentChanged float64
	// Incomplete marks subjects missing one side of the pair
	Incomplete bool
}

// CompareWarped matches native-space and warped masks by subject ID and
// reports the volume change per subject. Subjects present on only one
// side appear with Incomplete set. Output is sorted by subject ID.
func CompareWarped(native, warped []*models.VolumeMask) []WarpComparison {
	type pair struct {
		native *models.VolumeMask
		warped *models.VolumeMask
	}
	pairs := make(map[string]*pair)
	for _, m := range native {
		pairs[m.SubjectID] = &pair{native: m}
	}
	for _, m := range warped {
		if p, ok := pairs[m.SubjectID]; ok {
			p.warped = m
		} else {
			pairs[m.SubjectID] = &pair{warped: m}
		}
	}

	ids := make([]string, 0, len(pairs))
	for id := range pairs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]WarpComparison, 0, len(ids))
	for _, id := range ids {
		p := pairs[id]
		cmp := WarpComparison{SubjectID: id}
		if p.native == nil || p.warped == nil {
			cmp.Incomplete = true
			if p.native != nil {
				cmp.NativeMM3 = p.native.LesionVolumeMM3()
			}
			if p.warped != nil {
				cmp.WarpedMM3 = p.warped.LesionVolumeMM3()
			}
			out = append(out, cmp)
			continue
		}
		cmp.NativeMM3 = p.native.LesionVolumeMM3()
		cmp.WarpedMM3 = p.warped.LesionVolumeMM3()
		cmp.DifferenceMM3 = cmp.WarpedMM3 - cmp.NativeMM3
		if cmp.NativeMM3 != 0 {
			cmp.PercentChanged = cmp.DifferenceMM3 / cmp.NativeMM3 * 100
		}
		out = append(out, cmp)
	}
	return out
}

// WriteWarpReport writes warped-vs-native volume comparisons as CSV.
// Incomplete pairs keep their row so missing registrations are visible in
// the report.
func WriteWarpReport(w io.Writer, cmps []WarpComparison) error {
	cw := csv.NewWriter(w)
	header := []string{"subject", "native_volume_mm3", "warped_volume_mm3",
		"difference_mm3", "percent_change", "incomplete"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing warp report: %w", err)
	}
	for _, c := range cmps {
		row := []string{
			c.SubjectID,
			strconv.FormatFloat(c.NativeMM3, 'g', 6, 64),
			strconv.FormatFloat(c.WarpedMM3, 'g', 6, 64),
			strconv.FormatFloat(c.DifferenceMM3, 'g', 6, 64),
			strconv.FormatFloat(c.PercentChanged, 'g', 6, 64),
			strconv.FormatBool(c.Incomplete),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing warp report: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteVolumeReport writes per-subject lesion volumes as CSV.
func WriteVolumeReport(w io.Writer, records []VolumeRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"subject", "n_lesion_voxels", "lesion_volume_mm3"}); err != nil {
		return fmt.Errorf("writing volume report: %w", err)
	}
	for _, rec := range records {
		row := []string{
			rec.SubjectID,
			strconv.Itoa(rec.Voxels),
			strconv.FormatFloat(rec.VolumeMM3, 'g', 6, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing volume report: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
