// Package extract turns one parsed DICOM object into catalog rows, one per
// applicable table. Column values are driven by the loaded schema
// descriptors; on top of those the extractor computes the derived columns
// (content hash, cross-referenced series UID, structure and fraction
// counts). Extraction is side-effect free and safe to run concurrently on
// distinct objects.
package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/dicomtk/conquestdb/internal/conquest/cqerror"
	"github.com/dicomtk/conquestdb/internal/conquest/dcm"
	"github.com/dicomtk/conquestdb/internal/conquest/schema"
)

// Identifying tags of the patient/study/series/image hierarchy.
const (
	tagPatientID  = 0x0020
	tagSOPInst    = 0x0018
	tagStudyInst  = 0x000d
	tagSeriesInst = 0x000e
)

// Column is one named value of a catalog row.
type Column struct {
	Name  string
	Value schema.Value
}

// Row is the transient extraction result for one table. It lives until the
// writer commits it.
type Row struct {
	Table   string
	Key     string // identifying key value of this row
	Columns []Column
}

// Column returns the value of a named column and whether it is present.
func (r *Row) Column(name string) (schema.Value, bool) {
	for _, c := range r.Columns {
		if c.Name == name {
			return c.Value, true
		}
	}
	return schema.Value{}, false
}

func (r *Row) setColumn(name string, v schema.Value) {
	for i, c := range r.Columns {
		if c.Name == name {
			r.Columns[i].Value = v
			return
		}
	}
	r.Columns = append(r.Columns, Column{Name: name, Value: v})
}

// Options controls extraction behavior.
type Options struct {
	// ObjectFile is the tree-relative path recorded in the image table.
	ObjectFile string
	// ComputeHash enables the content digest for RT objects.
	ComputeHash bool
	// ROIFilter, when set, filters RTSTRUCT region names before they are
	// recorded.
	ROIFilter *ROIFilter
	// Now supplies the timestamp column; defaults to time.Now.
	Now func() time.Time
}

// Extract produces the catalog rows for one object, ordered parent first
// (patient, study, series, image). An object without its identifying tags
// yields no rows and a rejection error.
func Extract(src dcm.Source, s *schema.TableSchema, opts Options) ([]Row, error) {
	sopInstanceUID, ok := src.String(0x0008, tagSOPInst)
	if !ok || sopInstanceUID == "" {
		return nil, cqerror.ErrRejectedObject.Msg("missing SOPInstanceUID")
	}
	patientID, ok := src.String(0x0010, tagPatientID)
	if !ok || patientID == "" {
		return nil, cqerror.ErrRejectedObject.Msg("missing PatientID")
	}
	seriesUID, ok := src.String(0x0020, tagSeriesInst)
	if !ok || seriesUID == "" {
		return nil, cqerror.ErrRejectedObject.Msg("missing SeriesInstanceUID")
	}
	studyUID, ok := src.String(0x0020, tagStudyInst)
	if !ok || studyUID == "" {
		return nil, cqerror.ErrRejectedObject.Msg("missing StudyInstanceUID")
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	// rows are collected into the result slice only after the last
	// setColumn; the pointers below must stay valid across all appends
	makeRow := func(table, key string) *Row {
		if len(s.Columns(table)) == 0 {
			return nil
		}
		r := tableRow(src, s, table, key)
		return &r
	}

	patientRow := makeRow(schema.TablePatients, patientID)
	studyRow := makeRow(schema.TableStudies, studyUID)
	seriesRow := makeRow(schema.TableSeries, seriesUID)
	imageRow := makeRow(schema.TableImages, sopInstanceUID)

	if imageRow != nil {
		imageRow.setColumn("ObjectFile", schema.TextValue(opts.ObjectFile))
		imageRow.setColumn("DatabaseTimeStamp", schema.RealValue(float64(opts.Now().UnixNano())/1e9))
		derived := deriveColumns(src, opts)
		for _, c := range derived {
			imageRow.setColumn(c.Name, c.Value)
		}
		// the RTSTRUCT cross references are mirrored on the series row
		if seriesRow != nil {
			if v, ok := imageRow.Column("UniqueFOR_UID"); ok && !v.Null && v.Text != "" {
				seriesRow.setColumn("FrameOfRef", v)
			}
			if v, ok := imageRow.Column("ReferencedSeriesUID"); ok && !v.Null && v.Text != "" {
				seriesRow.setColumn("Referenced", v)
			}
		}
	}

	rows := make([]Row, 0, 4)
	for _, r := range []*Row{patientRow, studyRow, seriesRow, imageRow} {
		if r != nil {
			rows = append(rows, *r)
		}
	}
	return rows, nil
}

// tableRow builds one row by looking every descriptor of the table up in the
// object. Absent tags take the descriptor default; coercion failures become
// NULL without rejecting the object.
func tableRow(src dcm.Source, s *schema.TableSchema, table, key string) Row {
	descriptors := s.Columns(table)
	row := Row{Table: table, Key: key, Columns: make([]Column, 0, len(descriptors))}
	for _, d := range descriptors {
		raw, ok := src.String(d.Group, d.Element)
		if !ok {
			raw = d.Default
		}
		row.Columns = append(row.Columns, Column{Name: d.Column, Value: schema.Coerce(raw, d.Kind)})
	}
	return row
}

// joinConquest renders a list value the way conquest stores it: elements
// joined with backslashes.
func joinConquest(values []string) string {
	return strings.Join(values, `\`)
}

func formatCount(counts []int) schema.Value {
	if len(counts) == 1 {
		return schema.IntValue(int64(counts[0]))
	}
	parts := make([]string, len(counts))
	for i, c := range counts {
		parts[i] = fmt.Sprintf("%d", c)
	}
	return schema.TextValue(joinConquest(parts))
}
