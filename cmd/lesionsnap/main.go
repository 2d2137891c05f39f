// Command lesionsnap renders QC snapshot grids of a single lesion mask
// over the anatomical template: one row of axial panels and one row of
// sagittal panels, titled with their physical coordinates.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"lesionmap/pkg/heatmap"
	"lesionmap/pkg/nii"
)

func main() {
	maskPath := flag.String("mask", "", "Lesion mask to snapshot (required)")
	templatePath := flag.String("template", "", "Anatomical template underlay (required)")
	axial := flag.String("axial", "132,113,93,84,73,44", "Comma-separated axial slice indices")
	sagittal := flag.String("sagittal", "91", "Comma-separated sagittal slice indices")
	title := flag.String("title", "Results of VLSM Analysis", "Figure caption")
	outPath := flag.String("out", "lesion_snapshot.png", "Output PNG path")
	flag.Parse()

	log := logrus.StandardLogger()

	if *maskPath == "" || *templatePath == "" {
		flag.Usage()
		os.Exit(1)
	}

	axialIdx, err := parseIndices(*axial)
	if err != nil {
		log.Fatalf("Invalid axial slices: %v", err)
	}
	sagittalIdx, err := parseIndices(*sagittal)
	if err != nil {
		log.Fatalf("Invalid sagittal slices: %v", err)
	}

	template, err := nii.LoadVolume(*templatePath)
	if err != nil {
		log.Fatalf("Failed to load template: %v", err)
	}
	mask, err := nii.LoadMask(*maskPath, nii.SubjectID(*maskPath, ""))
	if err != nil {
		log.Fatalf("Failed to load mask: %v", err)
	}
	log.WithFields(logrus.Fields{
		"subject": mask.SubjectID,
		"grid":    mask.Grid.String(),
		"voxels":  mask.LesionVoxels(),
	}).Info("mask loaded")

	snap := &heatmap.Snapshot{Template: template, Title: *title}
	img, err := snap.Render(mask, axialIdx, sagittalIdx)
	if err != nil {
		log.Fatalf("Failed to render snapshot: %v", err)
	}
	if err := heatmap.SavePNG(img, *outPath); err != nil {
		log.Fatalf("Failed to save snapshot: %v", err)
	}

	fmt.Printf("Snapshot written to: %s\n", *outPath)
}

func parseIndices(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		v, err := strconv.Atoi(trimmed)
		if err != nil {
			return nil, fmt.Errorf("slice index %q: %w", trimmed, err)
		}
		out = append(out, v)
	}
	return out, nil
}
