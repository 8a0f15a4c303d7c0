package ops

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/dicomtk/conquestdb/internal/conquest/selector"
)

// Copy duplicates the selected objects verbatim under destRoot. With
// perPatientSubdir each object lands in a subdirectory named by its patient
// key, mirroring the catalog tree layout.
func (r *Runner) Copy(ctx context.Context, set selector.SelectionSet, destRoot string, perPatientSubdir bool) []Outcome {
	outcomes := make([]Outcome, 0, len(set.Keys))
	for _, key := range set.Keys {
		out := Outcome{Key: key}
		images, err := r.imagesForKey(ctx, set.Kind, key)
		if err != nil {
			out.Err = err
			outcomes = append(outcomes, out)
			continue
		}
		for _, img := range images {
			if img.objectFile == "" {
				out.Failed++
				continue
			}
			src := filepath.Join(r.DataRoot, filepath.FromSlash(img.objectFile))
			dir := destRoot
			if perPatientSubdir {
				dir = filepath.Join(destRoot, img.patientID)
			}
			if err := copyFile(src, filepath.Join(dir, filepath.Base(img.objectFile))); err != nil {
				log.Ctx(ctx).Warn().Str("file", src).Err(err).Msg("copy failed")
				out.Failed++
				continue
			}
			out.Images++
		}
		outcomes = append(outcomes, out)
	}
	return outcomes
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
