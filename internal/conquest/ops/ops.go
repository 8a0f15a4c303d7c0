// Package ops implements the bulk operations that fan out over a resolved
// selection: delete, physical copy and network transmit. Each operation
// applies one action per selected key and accumulates per-key outcomes; a
// failing key never aborts the batch.
package ops

import (
	"context"
	"fmt"

	"github.com/dicomtk/conquestdb/internal/common/apperrors"
	"github.com/dicomtk/conquestdb/internal/conquest/schema"
	"github.com/dicomtk/conquestdb/internal/conquest/selector"
	"github.com/dicomtk/conquestdb/internal/conquest/store"
)

// Outcome reports what happened to one selected key. Images counts the
// actions that succeeded, Failed the ones that did not. A key that matches
// nothing in the catalog yields Images==0 with a nil Err.
type Outcome struct {
	Key    string
	Images int
	Failed int
	Err    apperrors.Error
}

func (o Outcome) Ok() bool {
	return o.Err == nil && o.Failed == 0
}

func (o Outcome) String() string {
	if o.Err != nil {
		return fmt.Sprintf("%s: %v", o.Key, o.Err)
	}
	return fmt.Sprintf("%s: %d ok, %d failed", o.Key, o.Images, o.Failed)
}

// Runner binds the operations to one catalog and its data tree.
type Runner struct {
	Catalog  *store.Catalog
	DataRoot string
}

type imageRec struct {
	sopInstanceUID string
	objectFile     string
	patientID      string
	seriesUID      string
}

func (r *Runner) imagesForKey(ctx context.Context, kind selector.KeyKind, key string) ([]imageRec, apperrors.Error) {
	col := "SeriesInst"
	if kind == selector.ImageKeys {
		col = "SOPInstanc"
	}
	records, _, err := r.Catalog.Query(ctx,
		fmt.Sprintf(`SELECT SOPInstanc, ObjectFile, ImagePat, SeriesInst FROM %s WHERE %s = ?`,
			schema.TableImages, col), key)
	if err != nil {
		return nil, err
	}
	images := make([]imageRec, 0, len(records))
	for _, rec := range records {
		images = append(images, imageRec{
			sopInstanceUID: asString(rec["SOPInstanc"]),
			objectFile:     asString(rec["ObjectFile"]),
			patientID:      asString(rec["ImagePat"]),
			seriesUID:      asString(rec["SeriesInst"]),
		})
	}
	return images, nil
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
