// Package registration drives the external FSL FLIRT toolbox to
// co-register a moving template into atlas space and warp lesion masks
// along with it. No registration arithmetic happens here: the package
// only sequences the external commands, and the rest of the repository
// consumes the already-warped masks it leaves behind.
package registration

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultDOF is the degrees of freedom used for template registration;
// 6 is a rigid-body transform.
const DefaultDOF = 6

// FLIRT wraps the FSL FLIRT command line tool.
type FLIRT struct {
	// Exec is the flirt executable; empty means "flirt" on PATH
	Exec string

	// DOF is the degrees of freedom for Register; zero means DefaultDOF
	DOF int

	// Log receives one entry per external invocation
	Log logrus.FieldLogger
}

func (f *FLIRT) executable() string {
	if f.Exec != "" {
		return f.Exec
	}
	return "flirt"
}

func (f *FLIRT) logger() logrus.FieldLogger {
	if f.Log != nil {
		return f.Log
	}
	return logrus.StandardLogger()
}

// run executes one flirt invocation, surfacing the tool's output on
// failure.
func (f *FLIRT) run(ctx context.Context, args ...string) error {
	f.logger().WithFields(logrus.Fields{
		"cmd":  f.executable(),
		"args": strings.Join(args, " "),
	}).Info("running FLIRT")

	cmd := exec.CommandContext(ctx, f.executable(), args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("flirt %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Register computes the transform from moving to fixed, writes the
// transformation matrix to matFile, and saves the registered moving image
// to outFile.
func (f *FLIRT) Register(ctx context.Context, moving, fixed, matFile, outFile string) error {
	dof := f.DOF
	if dof == 0 {
		dof = DefaultDOF
	}
	if err := f.run(ctx, "-in", moving, "-ref", fixed, "-omat", matFile, "-dof", fmt.Sprint(dof)); err != nil {
		return err
	}
	return f.run(ctx, "-in", moving, "-ref", fixed, "-applyxfm", "-init", matFile, "-out", outFile)
}

// WarpMask applies a previously computed transform to a binary mask,
// using nearest-neighbour interpolation so label values survive intact.
func (f *FLIRT) WarpMask(ctx context.Context, fixed, matFile, mask, outMask string) error {
	return f.run(ctx, "-in", mask, "-ref", fixed, "-applyxfm", "-init", matFile,
		"-out", outMask, "-interp", "nearestneighbour")
}

// WarpAll warps every mask matching pattern under dir, naming each output
// by inserting the space suffix before the extension. It returns the
// output paths of the masks that were warped.
func (f *FLIRT) WarpAll(ctx context.Context, fixed, matFile, dir, pattern, spaceSuffix string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("listing masks in %s: %w", dir, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no masks matching %q in %s", pattern, dir)
	}

	var outputs []string
	for _, mask := range matches {
		out := warpedName(mask, spaceSuffix)
		if err := f.WarpMask(ctx, fixed, matFile, mask, out); err != nil {
			return outputs, fmt.Errorf("warping %s: %w", mask, err)
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

// warpedName inserts the atlas-space suffix before the NIfTI extension,
// e.g. "sub-01.nii.gz" -> "sub-01_space-MNI152T1w1mm.nii.gz".
func warpedName(path, spaceSuffix string) string {
	for _, ext := range []string{".nii.gz", ".nii"} {
		if strings.HasSuffix(path, ext) {
			return strings.TrimSuffix(path, ext) + "_" + spaceSuffix + ext
		}
	}
	return path + "_" + spaceSuffix
}
