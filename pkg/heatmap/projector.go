// Package heatmap renders cohort density volumes as 2D projections: an
// ordered row of slices with one shared color scale and a legend strip,
// plus snapshot grids of single-subject masks over the template.
package heatmap

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	vgdraw "gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"lesionmap/internal/models"
	"lesionmap/pkg/nii"
)

// Axis selects the slicing direction through the volume.
type Axis string

const (
	Axial    Axis = "axial"    // slices along z
	Coronal  Axis = "coronal"  // slices along y
	Sagittal Axis = "sagittal" // slices along x
)

// Extent returns the number of slices available along the axis.
func (a Axis) Extent(g models.Grid) (int, error) {
	switch a {
	case Sagittal:
		return g.Nx, nil
	case Coronal:
		return g.Ny, nil
	case Axial:
		return g.Nz, nil
	default:
		return 0, fmt.Errorf("invalid axis %q (must be axial, coronal or sagittal)", string(a))
	}
}

// SliceIndexOutOfRangeError reports a requested slice index outside the
// volume extent. Rendering fails instead of clamping silently.
type SliceIndexOutOfRangeError struct {
	Axis   Axis
	Index  int
	Extent int
}

func (e *SliceIndexOutOfRangeError) Error() string {
	return fmt.Sprintf("%s slice index %d outside volume extent [0, %d)", e.Axis, e.Index, e.Extent)
}

// legendWidth is the pixel width reserved for the color bar strip.
const legendWidth = 110

// defaultAlpha is the opacity of the density overlay when a template
// underlay is present, matching the published figures.
const defaultAlpha = 0.75

// Projector reduces a 3D density volume to a single-row 2D projection.
// The zero value renders density on a black background with the legend on
// the left.
type Projector struct {
	// Template is an optional anatomical underlay; it must share the
	// density volume's grid
	Template *nii.Volume

	// LegendPosition is "left" (default) or "right"
	LegendPosition string

	// LegendLabel is the text along the color bar, e.g. "Number of patients"
	LegendLabel string

	// Alpha is the overlay opacity over the template; zero means the
	// default of 0.75
	Alpha float64
}

// Project composites the selected slices left-to-right, in order, into
// one row with a shared color scale over [0, max density] and a legend
// strip. The scale is computed once for the whole volume; per-slice
// rescaling would make slices visually incomparable and is not done.
// With normalize set, voxel values are fractions of the cohort size.
func (p *Projector) Project(d *models.DensityVolume, axis Axis, slices []int, normalize bool) (image.Image, error) {
	extent, err := axis.Extent(d.Grid)
	if err != nil {
		return nil, err
	}
	if len(slices) == 0 {
		return nil, fmt.Errorf("no slice indices selected")
	}
	for _, idx := range slices {
		if idx < 0 || idx >= extent {
			return nil, &SliceIndexOutOfRangeError{Axis: axis, Index: idx, Extent: extent}
		}
	}
	if p.Template != nil && !p.Template.Grid.Equal(d.Grid) {
		return nil, &models.ShapeMismatchError{Got: p.Template.Grid, Want: d.Grid}
	}

	values := densityValues(d, normalize)
	maxVal := 0.0
	for _, v := range values {
		if v > maxVal {
			maxVal = v
		}
	}

	cm := moreland.ExtendedBlackBody()
	cm.SetMin(0)
	if maxVal > 0 {
		cm.SetMax(maxVal)
	} else {
		cm.SetMax(1)
	}

	templateMax := 0.0
	if p.Template != nil {
		for _, v := range p.Template.Data {
			if v > templateMax {
				templateMax = v
			}
		}
	}

	sliceW, sliceH := sliceDims(axis, d.Grid)
	legend, err := p.legendImage(cm, sliceH)
	if err != nil {
		return nil, fmt.Errorf("rendering legend: %w", err)
	}

	totalW := legendWidth + sliceW*len(slices)
	out := image.NewRGBA(image.Rect(0, 0, totalW, sliceH))
	draw.Draw(out, out.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	sliceX := legendWidth
	legendX := 0
	if p.LegendPosition == "right" {
		sliceX = 0
		legendX = sliceW * len(slices)
	}
	draw.Draw(out, image.Rect(legendX, 0, legendX+legendWidth, sliceH), legend, image.Point{}, draw.Src)

	for i, idx := range slices {
		tile, err := p.renderSlice(d.Grid, values, axis, idx, cm, templateMax)
		if err != nil {
			return nil, err
		}
		r := image.Rect(sliceX+i*sliceW, 0, sliceX+(i+1)*sliceW, sliceH)
		draw.Draw(out, r, tile, image.Point{}, draw.Src)
	}

	return out, nil
}

// renderSlice maps one slice through the shared color scale, blending
// over the template underlay when one is configured.
func (p *Projector) renderSlice(g models.Grid, values []float64, axis Axis, idx int, cm palette.ColorMap, templateMax float64) (image.Image, error) {
	w, h := sliceDims(axis, g)
	img := image.NewRGBA(image.Rect(0, 0, w, h))

	alpha := p.Alpha
	if alpha == 0 {
		alpha = defaultAlpha
	}

	for py := 0; py < h; py++ {
		for px := 0; px < w; px++ {
			x, y, z := voxelAt(axis, idx, px, py, h)
			flat := g.Index(x, y, z)

			heat, err := cm.At(values[flat])
			if err != nil {
				return nil, fmt.Errorf("mapping density %g: %w", values[flat], err)
			}

			if p.Template == nil {
				img.Set(px, py, heat)
				continue
			}

			gray := 0.0
			if templateMax > 0 {
				gray = p.Template.Data[flat] / templateMax
			}
			img.Set(px, py, blend(gray, heat, alpha))
		}
	}
	return img, nil
}

// legendImage renders a vertical color bar with the axis label, sized to
// match the slice height.
func (p *Projector) legendImage(cm palette.ColorMap, heightPx int) (image.Image, error) {
	pl := plot.New()
	bar := &plotter.ColorBar{ColorMap: cm}
	bar.Vertical = true
	pl.Add(bar)
	pl.HideX()
	pl.Y.Label.Text = p.LegendLabel

	// 72 DPI makes vg points correspond to pixels.
	c := vgimg.NewWith(
		vgimg.UseWH(vg.Points(legendWidth), vg.Points(float64(heightPx))),
		vgimg.UseDPI(72),
	)
	pl.Draw(vgdraw.New(c))
	return c.Image(), nil
}

// densityValues returns the volume's values in the reporting scale.
func densityValues(d *models.DensityVolume, normalize bool) []float64 {
	if normalize {
		return d.Normalized()
	}
	out := make([]float64, len(d.Counts))
	for i, c := range d.Counts {
		out[i] = float64(c)
	}
	return out
}

// sliceDims returns the pixel dimensions of one slice along the axis.
func sliceDims(axis Axis, g models.Grid) (w, h int) {
	switch axis {
	case Sagittal:
		return g.Ny, g.Nz
	case Coronal:
		return g.Nx, g.Nz
	default: // Axial
		return g.Nx, g.Ny
	}
}

// voxelAt maps a pixel within a slice back to its voxel coordinate. The
// vertical pixel axis is flipped so images render with the anatomical
// "up" at the top, as in the published figures.
func voxelAt(axis Axis, idx, px, py, h int) (x, y, z int) {
	switch axis {
	case Sagittal:
		return idx, px, h - 1 - py
	case Coronal:
		return px, idx, h - 1 - py
	default: // Axial
		return px, h - 1 - py, idx
	}
}

// blend composites a heat color over a grayscale underlay with the given
// overlay opacity.
func blend(gray float64, heat color.Color, alpha float64) color.Color {
	hr, hg, hb, _ := heat.RGBA()
	base := gray * 65535
	r := (1-alpha)*base + alpha*float64(hr)
	gch := (1-alpha)*base + alpha*float64(hg)
	b := (1-alpha)*base + alpha*float64(hb)
	return color.RGBA64{R: uint16(r), G: uint16(gch), B: uint16(b), A: 65535}
}

// SavePNG encodes the image fully in memory and writes the file in one
// step, so a failed render never leaves a truncated output behind.
func SavePNG(img image.Image, path string) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}
