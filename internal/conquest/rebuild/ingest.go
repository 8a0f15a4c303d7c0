package rebuild

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/dicomtk/conquestdb/internal/common/apperrors"
	"github.com/dicomtk/conquestdb/internal/conquest/cqerror"
	"github.com/dicomtk/conquestdb/internal/conquest/extract"
	"github.com/dicomtk/conquestdb/internal/conquest/store"
)

// StoreFile places one loose object into the patient tree as
// <dataroot>/<PatientID>/<SOPInstanceUID>.dcm and indexes it. The source
// file is removed only when removeAfterStore is set and the store succeeded.
func (p *Pipeline) StoreFile(ctx context.Context, path string, removeAfterStore bool) (string, apperrors.Error) {
	src, err := p.read(path)
	if err != nil {
		return "", cqerror.ErrRejectedObject.Msg("parse object").Err(err)
	}
	patientID, ok := src.String(0x0010, 0x0020)
	if !ok || patientID == "" {
		return "", cqerror.ErrRejectedObject.Msg("object has no patient id")
	}
	sopInstanceUID, ok := src.String(0x0008, 0x0018)
	if !ok || sopInstanceUID == "" {
		return "", cqerror.ErrRejectedObject.Msg("object has no sop instance uid")
	}

	rel := filepath.Join(patientID, sopInstanceUID+".dcm")
	final := filepath.Join(p.dataRoot, rel)
	if err := copyBytes(path, final); err != nil {
		return "", cqerror.ErrInvalidInput.Msg("store object into tree").Err(err)
	}

	rows, err := extract.Extract(src, p.catalog.Schema(), extract.Options{
		ObjectFile: filepath.ToSlash(rel),
	})
	if err != nil {
		return "", cqerror.ErrRejectedObject.Err(err)
	}
	if _, aerr := p.catalog.WriteRows(ctx, rows, store.Recompute); aerr != nil {
		return "", aerr
	}
	if removeAfterStore {
		if err := os.Remove(path); err != nil {
			log.Ctx(ctx).Warn().Str("file", path).Err(err).Msg("source removal failed")
		}
	}
	log.Ctx(ctx).Debug().Str("file", final).Msg("object stored")
	return final, nil
}

// StoreDirectory ingests every regular file under dir. Objects that cannot
// be parsed are skipped; the walk continues.
func (p *Pipeline) StoreDirectory(ctx context.Context, dir string, removeAfterStore bool) (int, apperrors.Error) {
	stored := 0
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if _, aerr := p.StoreFile(ctx, path, removeAfterStore); aerr != nil {
			log.Ctx(ctx).Debug().Str("file", path).Err(aerr).Msg("ingest skipped")
			return nil
		}
		stored++
		return nil
	})
	if walkErr != nil {
		return stored, cqerror.ErrInvalidInput.Msg("walk ingest directory").Err(walkErr)
	}
	return stored, nil
}

func copyBytes(src, dst string) error {
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
