// Package rebuild walks the data tree and (re)indexes every object it
// finds, one patient directory at a time. A rebuild interrupted halfway
// leaves the catalog valid; re-running with the default policy converges
// instead of redoing completed patients.
package rebuild

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/dicomtk/conquestdb/internal/common/apperrors"
	"github.com/dicomtk/conquestdb/internal/conquest/cqerror"
	"github.com/dicomtk/conquestdb/internal/conquest/dcm"
	"github.com/dicomtk/conquestdb/internal/conquest/extract"
	"github.com/dicomtk/conquestdb/internal/conquest/schema"
	"github.com/dicomtk/conquestdb/internal/conquest/store"
)

// Policy selects the completeness of a rebuild pass.
type Policy int

const (
	// SkipExisting skips patient directories that already have a patient
	// record.
	SkipExisting Policy = iota
	// Force recomputes every object regardless of prior state.
	Force
)

type Options struct {
	// Patient restricts the walk to one patient directory.
	Patient string
	Policy  Policy
	// ComputeHash and ROIFilter are passed through to extraction.
	ComputeHash bool
	ROIFilter   *extract.ROIFilter
}

type Result struct {
	Patients        int
	PatientsSkipped int
	Processed       int
	Skipped         int
	Failed          int
}

// Pipeline drives extract + write over the on-disk tree.
type Pipeline struct {
	catalog  *store.Catalog
	dataRoot string
	read     func(path string) (dcm.Source, error)
}

func New(c *store.Catalog, dataRoot string) *Pipeline {
	return &Pipeline{catalog: c, dataRoot: dataRoot, read: dcm.ReadFile}
}

// Rebuild processes every patient directory under the data root. Rejected or
// unreadable objects are counted as skipped, never fatal to the walk.
func (p *Pipeline) Rebuild(ctx context.Context, opts Options) (Result, apperrors.Error) {
	var res Result
	entries, err := os.ReadDir(p.dataRoot)
	if err != nil {
		return res, cqerror.ErrInvalidInput.Msg("read data root").Err(err)
	}
	mode := store.InsertMissing
	if opts.Policy == Force {
		mode = store.Recompute
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if opts.Patient != "" && entry.Name() != opts.Patient {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, cqerror.ErrInvalidInput.Msg("rebuild interrupted").Err(ctxErr)
		}
		if opts.Policy == SkipExisting {
			exists, aerr := p.catalog.HasKey(ctx, schema.TablePatients, "PatientID", entry.Name())
			if aerr != nil {
				return res, aerr
			}
			if exists {
				res.PatientsSkipped++
				continue
			}
		}
		res.Patients++
		if aerr := p.rebuildPatient(ctx, entry.Name(), mode, opts, &res); aerr != nil {
			return res, aerr
		}
	}
	log.Ctx(ctx).Info().Int("patients", res.Patients).Int("patients_skipped", res.PatientsSkipped).
		Int("objects", res.Processed).Int("skipped", res.Skipped).Int("failed", res.Failed).
		Msg("rebuild finished")
	return res, nil
}

func (p *Pipeline) rebuildPatient(ctx context.Context, patientID string, mode store.WriteMode, opts Options, res *Result) apperrors.Error {
	dir := filepath.Join(p.dataRoot, patientID)
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		p.indexFile(ctx, path, mode, opts, res)
		return nil
	})
	if walkErr != nil {
		return cqerror.ErrInvalidInput.Msg("walk patient directory " + patientID).Err(walkErr)
	}
	return nil
}

func (p *Pipeline) indexFile(ctx context.Context, path string, mode store.WriteMode, opts Options, res *Result) {
	src, err := p.read(path)
	if err != nil {
		log.Ctx(ctx).Debug().Str("file", path).Err(err).Msg("unreadable object skipped")
		res.Skipped++
		return
	}
	rel, err := filepath.Rel(p.dataRoot, path)
	if err != nil {
		rel = path
	}
	rows, err := extract.Extract(src, p.catalog.Schema(), extract.Options{
		ObjectFile:  filepath.ToSlash(rel),
		ComputeHash: opts.ComputeHash,
		ROIFilter:   opts.ROIFilter,
	})
	if err != nil {
		log.Ctx(ctx).Debug().Str("file", path).Err(err).Msg("rejected object skipped")
		res.Skipped++
		return
	}
	if _, aerr := p.catalog.WriteRows(ctx, rows, mode); aerr != nil {
		log.Ctx(ctx).Error().Str("file", path).Err(aerr).Msg("object write failed")
		res.Failed++
		return
	}
	res.Processed++
}
