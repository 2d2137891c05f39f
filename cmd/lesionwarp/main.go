// Command lesionwarp drives FSL FLIRT to co-register a moving template
// into atlas space and warp a folder of lesion masks along with it, then
// compares each subject's lesion volume before and after warping so
// registrations that inflated or shrank a lesion stand out.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"lesionmap/internal/models"
	"lesionmap/pkg/nii"
	"lesionmap/pkg/overlap"
	"lesionmap/pkg/registration"
)

func main() {
	moving := flag.String("moving", "", "Moving template to register into atlas space")
	fixed := flag.String("fixed", "", "Fixed atlas-space reference volume (required)")
	masksDir := flag.String("masks", "", "Directory of native-space lesion masks (required)")
	pattern := flag.String("pattern", "*.nii.gz", "Glob pattern matching native masks")
	suffix := flag.String("suffix", "space-MNI152T1w1mm", "Space suffix inserted into warped filenames")
	matFile := flag.String("mat", "template_to_atlas.mat", "Transformation matrix file")
	registered := flag.String("registered", "template_in_atlas.nii.gz", "Registered template output")
	dof := flag.Int("dof", registration.DefaultDOF, "Degrees of freedom for registration")
	flirtExec := flag.String("flirt", "", "flirt executable (default: flirt on PATH)")
	report := flag.String("report", "warp_comparison.csv", "Warped-vs-native volume report; empty skips the comparison")
	flag.Parse()

	log := logrus.StandardLogger()

	if *fixed == "" || *masksDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	ctx := context.Background()
	f := &registration.FLIRT{Exec: *flirtExec, DOF: *dof, Log: log}

	// With no moving template the matrix file must already exist from an
	// earlier registration.
	if *moving != "" {
		if err := f.Register(ctx, *moving, *fixed, *matFile, *registered); err != nil {
			log.Fatalf("Registration failed: %v", err)
		}
		log.WithField("matrix", *matFile).Info("template registered")
	} else if _, err := os.Stat(*matFile); err != nil {
		log.Fatalf("No moving template given and matrix file unusable: %v", err)
	}

	warped, err := f.WarpAll(ctx, *fixed, *matFile, *masksDir, *pattern, *suffix)
	if err != nil {
		log.Fatalf("Warping failed: %v", err)
	}
	fmt.Printf("Warped %d masks into atlas space\n", len(warped))

	if *report == "" {
		return
	}

	natives, err := filepath.Glob(filepath.Join(*masksDir, *pattern))
	if err != nil {
		log.Fatalf("Listing native masks failed: %v", err)
	}
	// The glob also matches outputs of an earlier run; those are warped,
	// not native.
	natives = withoutSuffix(natives, *suffix)
	nativeMasks := loadMasks(log, natives, "")
	warpedMasks := loadMasks(log, warped, *suffix+".nii.gz")

	cmps := overlap.CompareWarped(nativeMasks, warpedMasks)
	var buf bytes.Buffer
	if err := overlap.WriteWarpReport(&buf, cmps); err != nil {
		log.Fatalf("Building warp report failed: %v", err)
	}
	if err := os.WriteFile(*report, buf.Bytes(), 0644); err != nil {
		log.Fatalf("Writing warp report failed: %v", err)
	}
	fmt.Printf("Volume comparison written to: %s\n", *report)
}

// withoutSuffix drops paths already carrying the atlas-space suffix.
func withoutSuffix(paths []string, suffix string) []string {
	var out []string
	for _, path := range paths {
		if !strings.Contains(filepath.Base(path), "_"+suffix+".") {
			out = append(out, path)
		}
	}
	return out
}

// loadMasks loads each mask, skipping unreadable files with a warning so
// one bad volume does not abort the whole comparison.
func loadMasks(log logrus.FieldLogger, paths []string, pattern string) []*models.VolumeMask {
	var masks []*models.VolumeMask
	for _, path := range paths {
		mask, err := nii.LoadMask(path, nii.SubjectID(path, pattern))
		if err != nil {
			log.WithFields(logrus.Fields{
				"path":   path,
				"reason": err.Error(),
			}).Warn("skipping unreadable mask")
			continue
		}
		masks = append(masks, mask)
	}
	return masks
}
