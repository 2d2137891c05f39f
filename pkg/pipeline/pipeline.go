// Package pipeline sequences a full cohort run: discovering subject
// masks, loading and validating them in parallel, aggregating the
// survivors into a density volume, computing region statistics, and
// rendering the heatmap. A single subject's validation failure never
// aborts the run; the cohort result is produced from the subset of masks
// that passed, alongside an exclusion report naming the rest.
package pipeline

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"lesionmap/internal/models"
	"lesionmap/pkg/atlas"
	"lesionmap/pkg/config"
	"lesionmap/pkg/heatmap"
	"lesionmap/pkg/nii"
	"lesionmap/pkg/overlap"
)

// State tracks the pipeline's progress through a cohort run.
type State int

const (
	StateLoading State = iota
	StateValidating
	StateAggregating
	StateAnalyzing
	StateRendering
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateValidating:
		return "validating"
	case StateAggregating:
		return "aggregating"
	case StateAnalyzing:
		return "analyzing"
	case StateRendering:
		return "rendering"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MaskLoader loads one subject mask from disk. The pipeline depends on
// this seam rather than on the NIfTI library directly so cohort logic can
// be exercised against synthetic in-memory masks.
type MaskLoader interface {
	LoadMask(path, subjectID string) (*models.VolumeMask, error)
}

// niiLoader is the production MaskLoader backed by pkg/nii.
type niiLoader struct{}

func (niiLoader) LoadMask(path, subjectID string) (*models.VolumeMask, error) {
	return nii.LoadMask(path, subjectID)
}

// Output file names within the output directory.
const (
	RegionReportFile    = "region_overlap.csv"
	ExclusionReportFile = "excluded_subjects.csv"
	VolumeReportFile    = "lesion_volumes.csv"
	HeatmapFile         = "lesion_heatmap.png"
	DensityFile         = "lesion_density.nii"
)

// Result summarizes one cohort run.
type Result struct {
	// State is the final pipeline state
	State State

	// Discovered is the number of subject files found
	Discovered int

	// Valid is the number of subjects that passed validation and
	// contributed to the density volume
	Valid int

	// Subjects holds the per-subject outcomes in subject-ID order
	Subjects []models.SubjectResult

	// Records holds the per-region overlap statistics, in request order
	Records []models.RegionOverlapRecord

	// Density is the aggregated density volume
	Density *models.DensityVolume

	// HeatmapPath is the rendered image location, empty if rendering failed
	HeatmapPath string
}

// Pipeline orchestrates one cohort run against a fixed atlas registry.
type Pipeline struct {
	// Cfg is the run configuration; required
	Cfg *config.Config

	// Registry is the atlas; its grid is the canonical reference grid
	// every subject must match. Required.
	Registry *atlas.Registry

	// Template is the optional anatomical underlay for the heatmap
	Template *nii.Volume

	// Loader loads subject masks; nil uses the NIfTI loader
	Loader MaskLoader

	// Log receives progress and per-subject exclusion entries; nil uses
	// the logrus standard logger
	Log logrus.FieldLogger

	state State
}

// State returns the pipeline's current state.
func (p *Pipeline) State() State {
	return p.state
}

func (p *Pipeline) logger() logrus.FieldLogger {
	if p.Log != nil {
		return p.Log
	}
	return logrus.StandardLogger()
}

func (p *Pipeline) loader() MaskLoader {
	if p.Loader != nil {
		return p.Loader
	}
	return niiLoader{}
}

func (p *Pipeline) enter(s State) {
	p.state = s
	p.logger().WithField("state", s.String()).Debug("pipeline state change")
}

// discover lists the subject mask files under the lesion folder, matching
// the configured filename pattern recursively, in sorted order.
func (p *Pipeline) discover() ([]string, error) {
	var paths []string
	root := p.Cfg.Input.LesionFolder
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), p.Cfg.Input.Pattern) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning lesion folder %s: %w", root, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// loadAndValidate fans the subject files out over a fixed worker pool.
// Each worker loads a mask and checks its grid against the atlas grid.
// Results are collected and sorted by subject ID so downstream steps
// never depend on worker completion order.
func (p *Pipeline) loadAndValidate(paths []string) []models.SubjectResult {
	workers := p.Cfg.Analysis.Threads
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan string)
	out := make(chan models.SubjectResult)
	var wg sync.WaitGroup

	refGrid := p.Registry.Grid()
	loader := p.loader()

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				id := nii.SubjectID(path, p.Cfg.Input.Pattern)
				res := models.SubjectResult{SubjectID: id, Path: path}

				mask, err := loader.LoadMask(path, id)
				switch {
				case err != nil:
					res.Err = err
				case !mask.Grid.Equal(refGrid):
					res.Err = &models.ShapeMismatchError{SubjectID: id, Got: mask.Grid, Want: refGrid}
				default:
					res.Mask = mask
				}
				out <- res
			}
		}()
	}

	go func() {
		for _, path := range paths {
			jobs <- path
		}
		close(jobs)
		wg.Wait()
		close(out)
	}()

	results := make([]models.SubjectResult, 0, len(paths))
	for res := range out {
		if res.Excluded() {
			p.logger().WithFields(logrus.Fields{
				"subject": res.SubjectID,
				"path":    res.Path,
				"reason":  res.Err.Error(),
			}).Warn("subject excluded from cohort")
		} else if p.Cfg.Output.Verbose {
			p.logger().WithField("subject", res.SubjectID).Info("subject validated")
		}
		results = append(results, res)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].SubjectID < results[j].SubjectID
	})
	return results
}

// writeOutput builds the whole file in memory before touching disk, so a
// failing writer never leaves a partial output behind.
func (p *Pipeline) writeOutput(name string, write func(io.Writer) error) (string, error) {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return "", err
	}
	path := filepath.Join(p.Cfg.Output.Dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", err
	}
	return path, nil
}

// Run executes the full cohort pipeline. Per-subject structural failures
// are recovered by exclusion; an empty surviving cohort or a rendering
// configuration error is returned to the caller. When rendering fails,
// the tabular outputs have already been written.
func (p *Pipeline) Run() (*Result, error) {
	log := p.logger()
	result := &Result{}

	if err := os.MkdirAll(p.Cfg.Output.Dir, 0755); err != nil {
		p.enter(StateFailed)
		result.State = p.state
		return result, fmt.Errorf("creating output directory: %w", err)
	}

	p.enter(StateLoading)
	paths, err := p.discover()
	if err != nil {
		p.enter(StateFailed)
		result.State = p.state
		return result, err
	}
	result.Discovered = len(paths)
	log.WithFields(logrus.Fields{
		"folder":  p.Cfg.Input.LesionFolder,
		"pattern": p.Cfg.Input.Pattern,
		"found":   len(paths),
	}).Info("discovered subject masks")

	p.enter(StateValidating)
	result.Subjects = p.loadAndValidate(paths)

	var masks []*models.VolumeMask
	for _, res := range result.Subjects {
		if !res.Excluded() {
			masks = append(masks, res.Mask)
		}
	}
	result.Valid = len(masks)

	// The exclusion report is written even when the whole run fails, so
	// the reasons are preserved.
	if _, err := p.writeOutput(ExclusionReportFile, func(w io.Writer) error {
		return overlap.WriteExclusionReport(w, result.Subjects)
	}); err != nil {
		p.enter(StateFailed)
		result.State = p.state
		return result, fmt.Errorf("writing exclusion report: %w", err)
	}

	if len(masks) == 0 {
		p.enter(StateFailed)
		result.State = p.state
		return result, fmt.Errorf("after validating %d subjects: %w", len(paths), overlap.ErrEmptyCohort)
	}

	p.enter(StateAggregating)
	density, err := overlap.Accumulate(masks)
	if err != nil {
		p.enter(StateFailed)
		result.State = p.state
		return result, err
	}
	result.Density = density
	log.WithFields(logrus.Fields{
		"subjects":  density.CohortSize,
		"max_count": density.MaxCount(),
	}).Info("aggregated cohort density")

	p.enter(StateAnalyzing)
	names := p.Cfg.Analysis.Regions
	if len(names) == 0 {
		names = p.Registry.RegionNames()
	}
	records, err := overlap.AnalyzeDensity(density, p.Registry, names, p.Cfg.Analysis.Normalize)
	if err != nil {
		p.enter(StateFailed)
		result.State = p.state
		return result, err
	}
	result.Records = records

	if _, err := p.writeOutput(RegionReportFile, func(w io.Writer) error {
		return overlap.WriteRegionReport(w, records)
	}); err != nil {
		p.enter(StateFailed)
		result.State = p.state
		return result, fmt.Errorf("writing region report: %w", err)
	}
	if _, err := p.writeOutput(VolumeReportFile, func(w io.Writer) error {
		return overlap.WriteVolumeReport(w, overlap.LesionVolumes(masks))
	}); err != nil {
		p.enter(StateFailed)
		result.State = p.state
		return result, fmt.Errorf("writing volume report: %w", err)
	}

	p.enter(StateRendering)
	if err := p.render(result); err != nil {
		// Rendering errors are fatal to this step only; the tabular
		// outputs above are already on disk.
		p.enter(StateFailed)
		result.State = p.state
		return result, fmt.Errorf("rendering heatmap: %w", err)
	}

	p.enter(StateDone)
	result.State = p.state
	return result, nil
}

// render projects the density volume to the configured slice row and
// exports the density volume as NIfTI.
func (p *Pipeline) render(result *Result) error {
	label := "Number of patients"
	if p.Cfg.Analysis.Normalize {
		label = "Fraction of cohort"
	}
	proj := &heatmap.Projector{
		Template:       p.Template,
		LegendPosition: p.Cfg.Heatmap.LegendPosition,
		LegendLabel:    label,
	}

	img, err := proj.Project(result.Density, heatmap.Axis(p.Cfg.Heatmap.Axis),
		p.Cfg.Heatmap.Slices, p.Cfg.Analysis.Normalize)
	if err != nil {
		return err
	}

	path := filepath.Join(p.Cfg.Output.Dir, HeatmapFile)
	if err := heatmap.SavePNG(img, path); err != nil {
		return err
	}
	result.HeatmapPath = path
	p.logger().WithField("path", path).Info("wrote heatmap")

	// The export reuses the template header when one is configured and
	// falls back to the atlas volume's header otherwise, so the density
	// file always opens in the same space as its inputs.
	headerFrom := p.Cfg.Input.Template
	if headerFrom == "" {
		headerFrom = p.Cfg.Input.AtlasVolume
	}
	if headerFrom != "" {
		densityPath := filepath.Join(p.Cfg.Output.Dir, DensityFile)
		if err := nii.SaveDensity(densityPath, result.Density, headerFrom, p.Cfg.Analysis.Normalize); err != nil {
			return fmt.Errorf("exporting density volume: %w", err)
		}
		p.logger().WithField("path", densityPath).Info("wrote density volume")
	}
	return nil
}
