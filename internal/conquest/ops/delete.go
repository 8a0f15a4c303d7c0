package ops

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/dicomtk/conquestdb/internal/common/apperrors"
	"github.com/dicomtk/conquestdb/internal/conquest/schema"
	"github.com/dicomtk/conquestdb/internal/conquest/selector"
)

// Delete removes the selected rows from the catalog. Physical file removal
// is opt-in; catalog rows go regardless. Deleting the last series of a study
// removes the study row, and the last study of a patient removes the patient
// row.
func (r *Runner) Delete(ctx context.Context, set selector.SelectionSet, removeFiles bool) []Outcome {
	outcomes := make([]Outcome, 0, len(set.Keys))
	for _, key := range set.Keys {
		outcomes = append(outcomes, r.deleteKey(ctx, set.Kind, key, removeFiles))
	}
	return outcomes
}

func (r *Runner) deleteKey(ctx context.Context, kind selector.KeyKind, key string, removeFiles bool) Outcome {
	out := Outcome{Key: key}
	images, err := r.imagesForKey(ctx, kind, key)
	if err != nil {
		out.Err = err
		return out
	}
	seriesTouched := map[string]bool{}
	for _, img := range images {
		if removeFiles && img.objectFile != "" {
			path := filepath.Join(r.DataRoot, filepath.FromSlash(img.objectFile))
			if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
				log.Ctx(ctx).Warn().Str("file", path).Err(rmErr).Msg("file removal failed")
				out.Failed++
				continue
			}
		}
		if _, err := r.Catalog.Exec(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE SOPInstanc = ?`, schema.TableImages),
			img.sopInstanceUID); err != nil {
			out.Err = err
			return out
		}
		seriesTouched[img.seriesUID] = true
		out.Images++
	}
	if kind == selector.SeriesKeys {
		seriesTouched[key] = true
	}
	for seriesUID := range seriesTouched {
		if err := r.cascadeSeries(ctx, seriesUID); err != nil {
			out.Err = err
			return out
		}
	}
	return out
}

// cascadeSeries drops the series row once it has no images left, then walks
// up to the study and patient rows.
func (r *Runner) cascadeSeries(ctx context.Context, seriesUID string) apperrors.Error {
	if seriesUID == "" {
		return nil
	}
	remaining, err := r.Catalog.QueryColumn(ctx,
		fmt.Sprintf(`SELECT SOPInstanc FROM %s WHERE SeriesInst = ? LIMIT 1`, schema.TableImages),
		"SOPInstanc", seriesUID)
	if err != nil {
		return err
	}
	if len(remaining) > 0 {
		return nil
	}
	parents, _, err := r.Catalog.Query(ctx,
		fmt.Sprintf(`SELECT StudyInsta FROM %s WHERE SeriesInst = ?`, schema.TableSeries), seriesUID)
	if err != nil {
		return err
	}
	if _, err := r.Catalog.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE SeriesInst = ?`, schema.TableSeries), seriesUID); err != nil {
		return err
	}
	for _, p := range parents {
		if err := r.cascadeStudy(ctx, asString(p["StudyInsta"])); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) cascadeStudy(ctx context.Context, studyUID string) apperrors.Error {
	if studyUID == "" {
		return nil
	}
	remaining, err := r.Catalog.QueryColumn(ctx,
		fmt.Sprintf(`SELECT SeriesInst FROM %s WHERE StudyInsta = ? LIMIT 1`, schema.TableSeries),
		"SeriesInst", studyUID)
	if err != nil {
		return err
	}
	if len(remaining) > 0 {
		return nil
	}
	owners, _, err := r.Catalog.Query(ctx,
		fmt.Sprintf(`SELECT PatientID FROM %s WHERE StudyInsta = ?`, schema.TableStudies), studyUID)
	if err != nil {
		return err
	}
	if _, err := r.Catalog.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE StudyInsta = ?`, schema.TableStudies), studyUID); err != nil {
		return err
	}
	for _, o := range owners {
		if err := r.cascadePatient(ctx, asString(o["PatientID"])); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) cascadePatient(ctx context.Context, patientID string) apperrors.Error {
	if patientID == "" {
		return nil
	}
	remaining, err := r.Catalog.QueryColumn(ctx,
		fmt.Sprintf(`SELECT StudyInsta FROM %s WHERE PatientID = ? LIMIT 1`, schema.TableStudies),
		"StudyInsta", patientID)
	if err != nil {
		return err
	}
	if len(remaining) > 0 {
		return nil
	}
	_, err = r.Catalog.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE PatientID = ?`, schema.TablePatients), patientID)
	return err
}

// DeletePatient is the fast path for removing one patient key from every
// table without resolving a selection. Files are never touched.
func (r *Runner) DeletePatient(ctx context.Context, patientID string) (int64, apperrors.Error) {
	var total int64
	for _, d := range []struct{ table, column string }{
		{schema.TableImages, "ImagePat"},
		{schema.TableSeries, "SeriesPat"},
		{schema.TableStudies, "PatientID"},
		{schema.TablePatients, "PatientID"},
	} {
		n, err := r.Catalog.Exec(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`, d.table, d.column), patientID)
		if err != nil {
			return total, err
		}
		total += n
	}
	log.Ctx(ctx).Info().Str("patient", patientID).Int64("rows", total).Msg("patient removed from catalog")
	return total, nil
}
