// Package summary produces reporting views over the catalog: per-patient
// modality counts and CSV export of arbitrary query results.
package summary

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dicomtk/conquestdb/internal/common/apperrors"
	"github.com/dicomtk/conquestdb/internal/conquest/cqerror"
	"github.com/dicomtk/conquestdb/internal/conquest/schema"
	"github.com/dicomtk/conquestdb/internal/conquest/store"
)

// countedModalities are the series modalities broken out per patient.
var countedModalities = []string{"CT", "MR", "PT", "RTSTRUCT", "RTDOSE", "RTPLAN"}

type PatientSummary struct {
	PatientID string
	Series    int
	Counts    map[string]int
}

// SeriesSummary counts series per patient broken out by modality. orderBy
// is a modality name, "series" or empty (patient key order).
func SeriesSummary(ctx context.Context, c *store.Catalog, orderBy string) ([]PatientSummary, apperrors.Error) {
	orderCol, err := orderColumn(orderBy)
	if err != nil {
		return nil, err
	}
	// left join so patients without any series still show up with zeroes
	var b strings.Builder
	b.WriteString("SELECT p.PatientID AS SeriesPat, COUNT(s.SeriesInst) AS nrSeries")
	for _, m := range countedModalities {
		fmt.Fprintf(&b, ", TOTAL(s.Modality = '%s') AS nr%s", m, m)
	}
	fmt.Fprintf(&b, " FROM %s p LEFT JOIN %s s ON s.SeriesPat = p.PatientID GROUP BY p.PatientID ORDER BY %s",
		schema.TablePatients, schema.TableSeries, orderCol)

	records, _, aerr := c.Query(ctx, b.String())
	if aerr != nil {
		return nil, aerr
	}
	summaries := make([]PatientSummary, 0, len(records))
	for _, rec := range records {
		s := PatientSummary{
			PatientID: asString(rec["SeriesPat"]),
			Series:    asInt(rec["nrSeries"]),
			Counts:    make(map[string]int, len(countedModalities)),
		}
		for _, m := range countedModalities {
			s.Counts[m] = asInt(rec["nr"+m])
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

func orderColumn(orderBy string) (string, apperrors.Error) {
	switch {
	case orderBy == "":
		return "SeriesPat", nil
	case strings.EqualFold(orderBy, "series"):
		return "nrSeries DESC", nil
	}
	for _, m := range countedModalities {
		if strings.EqualFold(orderBy, m) {
			return "nr" + m + " DESC", nil
		}
	}
	return "", cqerror.ErrInvalidInput.Msg("unknown summary order column: " + orderBy)
}

// Write renders the summaries as an aligned text table.
func Write(w io.Writer, summaries []PatientSummary) error {
	header := append([]string{"PatientID", "Series"}, countedModalities...)
	if _, err := fmt.Fprintln(w, strings.Join(header, "\t")); err != nil {
		return err
	}
	for _, s := range summaries {
		fields := []string{s.PatientID, fmt.Sprint(s.Series)}
		for _, m := range countedModalities {
			fields = append(fields, fmt.Sprint(s.Counts[m]))
		}
		if _, err := fmt.Fprintln(w, strings.Join(fields, "\t")); err != nil {
			return err
		}
	}
	return nil
}

// ExportCSV runs a query and writes its full projection as CSV, header row
// first, in the query's natural row order.
func ExportCSV(ctx context.Context, c *store.Catalog, w io.Writer, query string, args ...any) apperrors.Error {
	records, cols, aerr := c.Query(ctx, query, args...)
	if aerr != nil {
		return aerr
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return cqerror.ErrInvalidInput.Msg("write csv header").Err(err)
	}
	row := make([]string, len(cols))
	for _, rec := range records {
		for i, col := range cols {
			row[i] = asString(rec[col])
		}
		if err := cw.Write(row); err != nil {
			return cqerror.ErrInvalidInput.Msg("write csv row").Err(err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return cqerror.ErrInvalidInput.Msg("flush csv").Err(err)
	}
	return nil
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func asInt(v any) int {
	switch t := v.(type) {
	case int64:
		return int(t)
	case float64:
		return int(t)
	default:
		return 0
	}
}
