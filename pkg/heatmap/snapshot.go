package heatmap

import (
	"fmt"
	"image"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	vgdraw "gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"lesionmap/internal/models"
	"lesionmap/pkg/nii"
)

// Snapshot renders QC grids of a single mask over the anatomical
// template: one row of axial panels and one row of sagittal panels, each
// titled with the slice's physical coordinate in atlas space.
type Snapshot struct {
	// Template is the anatomical underlay; required
	Template *nii.Volume

	// Title is the figure caption, e.g. "Results of VLSM Analysis"
	Title string
}

// sliceGrid adapts one extracted slice to plotter.GridXYZ for heatmap
// display.
type sliceGrid struct {
	vals [][]float64 // [row][col]
}

func (s sliceGrid) Dims() (c, r int) { return len(s.vals[0]), len(s.vals) }
func (s sliceGrid) Z(c, r int) float64 {
	return s.vals[r][c]
}
func (s sliceGrid) X(c int) float64 { return float64(c) }
func (s sliceGrid) Y(r int) float64 { return float64(r) }

// extractSlice pulls one slice out of a scalar volume as [row][col]
// values, rows ordered bottom-up to match plot coordinates.
func extractSlice(vol *nii.Volume, axis Axis, idx int) sliceGrid {
	w, h := sliceDims(axis, vol.Grid)
	vals := make([][]float64, h)
	for r := 0; r < h; r++ {
		vals[r] = make([]float64, w)
		for c := 0; c < w; c++ {
			// plot rows count up from the bottom, so undo the image flip
			x, y, z := voxelAt(axis, idx, c, h-1-r, h)
			vals[r][c] = vol.At(x, y, z)
		}
	}
	return sliceGrid{vals: vals}
}

// maskPoints collects the in-slice pixel coordinates of lesioned voxels.
func maskPoints(mask *models.VolumeMask, axis Axis, idx int) plotter.XYs {
	w, h := sliceDims(axis, mask.Grid)
	var pts plotter.XYs
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			x, y, z := voxelAt(axis, idx, c, h-1-r, h)
			if mask.Data[mask.Grid.Index(x, y, z)] {
				pts = append(pts, plotter.XY{X: float64(c), Y: float64(r)})
			}
		}
	}
	return pts
}

// panelTitle renders the physical coordinate of the slice plane, e.g.
// "z = 24 mm" for an axial slice.
func panelTitle(g models.Grid, axis Axis, idx int) string {
	switch axis {
	case Sagittal:
		wx, _, _ := g.VoxelToWorld(idx, 0, 0)
		return fmt.Sprintf("x = %.0f mm", wx)
	case Coronal:
		_, wy, _ := g.VoxelToWorld(0, idx, 0)
		return fmt.Sprintf("y = %.0f mm", wy)
	default:
		_, _, wz := g.VoxelToWorld(0, 0, idx)
		return fmt.Sprintf("z = %.0f mm", wz)
	}
}

// panel builds one template panel with the mask voxels overlaid in red.
func (s *Snapshot) panel(mask *models.VolumeMask, axis Axis, idx int) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = panelTitle(s.Template.Grid, axis, idx)
	p.HideAxes()

	gray, err := moreland.NewLuminance([]color.Color{
		color.Black,
		color.White,
	})
	if err != nil {
		return nil, err
	}
	grid := extractSlice(s.Template, axis, idx)
	hm := plotter.NewHeatMap(grid, gray.Palette(253))
	p.Add(hm)

	pts := maskPoints(mask, axis, idx)
	if len(pts) > 0 {
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle.Color = color.RGBA{R: 255, A: 255}
		sc.GlyphStyle.Radius = vg.Points(1)
		sc.GlyphStyle.Shape = vgdraw.BoxGlyph{}
		p.Add(sc)
	}
	return p, nil
}

// Render produces the two-row snapshot grid: axial slices on top,
// sagittal below. Slice indices are validated against the volume extent
// before anything is drawn.
func (s *Snapshot) Render(mask *models.VolumeMask, axialIdx, sagittalIdx []int) (image.Image, error) {
	if s.Template == nil {
		return nil, fmt.Errorf("snapshot requires a template volume")
	}
	if !mask.Grid.Equal(s.Template.Grid) {
		return nil, &models.ShapeMismatchError{SubjectID: mask.SubjectID, Got: mask.Grid, Want: s.Template.Grid}
	}
	for _, idx := range axialIdx {
		if idx < 0 || idx >= s.Template.Grid.Nz {
			return nil, &SliceIndexOutOfRangeError{Axis: Axial, Index: idx, Extent: s.Template.Grid.Nz}
		}
	}
	for _, idx := range sagittalIdx {
		if idx < 0 || idx >= s.Template.Grid.Nx {
			return nil, &SliceIndexOutOfRangeError{Axis: Sagittal, Index: idx, Extent: s.Template.Grid.Nx}
		}
	}

	cols := len(axialIdx)
	if len(sagittalIdx) > cols {
		cols = len(sagittalIdx)
	}
	if cols == 0 {
		return nil, fmt.Errorf("no slice indices selected")
	}

	plots := make([][]*plot.Plot, 2)
	plots[0] = make([]*plot.Plot, cols)
	plots[1] = make([]*plot.Plot, cols)
	for i, idx := range axialIdx {
		p, err := s.panel(mask, Axial, idx)
		if err != nil {
			return nil, err
		}
		if i == 0 && s.Title != "" {
			p.Title.Text = s.Title + "\n" + p.Title.Text
		}
		plots[0][i] = p
	}
	for i, idx := range sagittalIdx {
		p, err := s.panel(mask, Sagittal, idx)
		if err != nil {
			return nil, err
		}
		plots[1][i] = p
	}

	const panelSize = 3 * vg.Inch
	c := vgimg.NewWith(
		vgimg.UseWH(panelSize*vg.Length(cols), panelSize*2),
		vgimg.UseDPI(96),
	)
	dc := vgdraw.New(c)
	tiles := vgdraw.Tiles{
		Rows: 2,
		Cols: cols,
		PadX: vg.Millimeter,
		PadY: vg.Millimeter,
	}
	canvases := plot.Align(plots, tiles, dc)
	for r := range plots {
		for col := range plots[r] {
			if plots[r][col] != nil {
				plots[r][col].Draw(canvases[r][col])
			}
		}
	}
	return c.Image(), nil
}
