package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"lesionmap/pkg/atlas"
	"lesionmap/pkg/config"
	"lesionmap/pkg/nii"
	"lesionmap/pkg/pipeline"
)

func main() {
	// Parse command line arguments; flags override the config file.
	configPath := flag.String("config", "lesionmap.yaml", "Path to YAML configuration file")
	lesionFolder := flag.String("lesions", "", "Directory containing registered lesion masks")
	pattern := flag.String("pattern", "", "Filename suffix matching registered masks")
	template := flag.String("template", "", "Anatomical template for the heatmap underlay")
	atlasVolume := flag.String("atlas", "", "Warped atlas label volume")
	atlasLabels := flag.String("labels", "", "CSV label table for the atlas")
	atlasFormat := flag.String("format", "", "Label table format: brainstem, talairach or neudorfer")
	regions := flag.String("regions", "", "Comma-separated region names to analyze (default: all)")
	slices := flag.String("slices", "", "Comma-separated slice indices for the heatmap")
	legend := flag.String("legend", "", "Legend position: left or right")
	threads := flag.Int("threads", 0, "Worker count for parallel loading/validation")
	rawCounts := flag.Bool("raw-counts", false, "Report raw subject counts instead of cohort fractions")
	outDir := flag.String("out", "", "Output directory")
	flag.Parse()

	log := logrus.StandardLogger()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	applyFlags(cfg, *lesionFolder, *pattern, *template, *atlasVolume, *atlasLabels,
		*atlasFormat, *regions, *slices, *legend, *threads, *rawCounts, *outDir)

	if cfg.Input.LesionFolder == "" {
		flag.Usage()
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.Output.Verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	fmt.Println("================================")
	fmt.Println("VOXEL-WISE LESION-SYMPTOM MAPPING")
	fmt.Println("Cohort overlap aggregation and atlas region statistics")
	fmt.Println("================================")

	// Build the atlas registry; its grid becomes the reference grid
	// every subject mask must match.
	table, err := atlas.LoadTable(cfg.Input.AtlasFormat, cfg.Input.AtlasLabels)
	if err != nil {
		log.Fatalf("Failed to load atlas label table: %v", err)
	}
	registry, err := atlas.LoadRegistry(cfg.Input.AtlasVolume, table)
	if err != nil {
		log.Fatalf("Failed to load atlas: %v", err)
	}
	log.WithFields(logrus.Fields{
		"grid":    registry.Grid().String(),
		"regions": len(registry.RegionNames()),
	}).Info("atlas loaded")

	var tmpl *nii.Volume
	if cfg.Input.Template != "" {
		tmpl, err = nii.LoadVolume(cfg.Input.Template)
		if err != nil {
			log.Fatalf("Failed to load template: %v", err)
		}
	}

	p := &pipeline.Pipeline{
		Cfg:      cfg,
		Registry: registry,
		Template: tmpl,
		Log:      log,
	}

	fmt.Println("Starting cohort analysis...")
	startTime := time.Now()
	result, err := p.Run()
	if result != nil {
		printSummary(result)
	}
	if err != nil {
		log.Fatalf("Cohort analysis failed: %v", err)
	}

	fmt.Printf("\nAnalysis completed successfully in %.2f seconds!\n", time.Since(startTime).Seconds())
	fmt.Printf("Results written to: %s\n", cfg.Output.Dir)
}

// applyFlags copies set flags over the loaded configuration.
func applyFlags(cfg *config.Config, lesionFolder, pattern, template, atlasVolume,
	atlasLabels, atlasFormat, regions, slices, legend string, threads int,
	rawCounts bool, outDir string) {

	if lesionFolder != "" {
		cfg.Input.LesionFolder = lesionFolder
	}
	if pattern != "" {
		cfg.Input.Pattern = pattern
	}
	if template != "" {
		cfg.Input.Template = template
	}
	if atlasVolume != "" {
		cfg.Input.AtlasVolume = atlasVolume
	}
	if atlasLabels != "" {
		cfg.Input.AtlasLabels = atlasLabels
	}
	if atlasFormat != "" {
		cfg.Input.AtlasFormat = atlasFormat
	}
	if regions != "" {
		cfg.Analysis.Regions = splitList(regions)
	}
	if slices != "" {
		var idx []int
		for _, s := range splitList(slices) {
			v, err := strconv.Atoi(s)
			if err != nil {
				logrus.Fatalf("Invalid slice index %q: %v", s, err)
			}
			idx = append(idx, v)
		}
		cfg.Heatmap.Slices = idx
	}
	if legend != "" {
		cfg.Heatmap.LegendPosition = legend
	}
	if threads > 0 {
		cfg.Analysis.Threads = threads
	}
	if rawCounts {
		cfg.Analysis.Normalize = false
	}
	if outDir != "" {
		cfg.Output.Dir = outDir
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// printSummary writes the cohort outcome and region table to stdout.
func printSummary(result *pipeline.Result) {
	fmt.Printf("\nCohort summary:\n")
	fmt.Printf("===============\n")
	fmt.Printf("Subjects discovered: %d\n", result.Discovered)
	fmt.Printf("Subjects included:   %d\n", result.Valid)
	fmt.Printf("Subjects excluded:   %d\n", result.Discovered-result.Valid)

	excluded := 0
	for _, s := range result.Subjects {
		if s.Excluded() {
			if excluded == 0 {
				fmt.Printf("\nExcluded subjects:\n")
			}
			excluded++
			fmt.Printf("- %s: %v\n", s.SubjectID, s.Err)
		}
	}

	if len(result.Records) > 0 {
		fmt.Printf("\nRegion overlap (%d regions):\n", len(result.Records))
		for _, rec := range result.Records {
			if rec.Undefined {
				fmt.Printf("- %-28s %8d voxels   no data\n", rec.Region, rec.RegionVoxels)
				continue
			}
			fmt.Printf("- %-28s %8d voxels   overlap %.4f\n", rec.Region, rec.RegionVoxels, rec.Overlap)
		}
	}

	if result.HeatmapPath != "" {
		fmt.Printf("\nHeatmap: %s\n", result.HeatmapPath)
	}
}
