// Package schema models the catalog's column layout. The layout is data
// driven: a conquest-style definition file maps DICOM tags to column names
// per table, and both the extractor and the writer consult the loaded
// descriptors at runtime. When no definition file is present a built-in
// default layout is used.
package schema

import (
	"fmt"
	"sort"
)

// Table names used by the catalog, matching the conquest layout.
const (
	TablePatients = "DICOMpatients"
	TableStudies  = "DICOMstudies"
	TableSeries   = "DICOMseries"
	TableImages   = "DICOMimages"
	TableWorklist = "DICOMworklist"
)

// roleToTable maps the table markers found in a definition file to table
// names.
var roleToTable = map[string]string{
	"Patient":  TablePatients,
	"Study":    TableStudies,
	"Series":   TableSeries,
	"Image":    TableImages,
	"WorkList": TableWorklist,
}

// Identifying key column per table. The column names are the conquest
// 10-character truncations.
var keyColumns = map[string]string{
	TablePatients: "PatientID",
	TableStudies:  "StudyInsta",
	TableSeries:   "SeriesInst",
	TableImages:   "SOPInstanc",
}

// ExtraImageColumns are the derived columns carried by the image table in
// addition to the tag-mapped ones.
var ExtraImageColumns = []string{
	"ObjectFile", "ElementCount", "ElementList", "Nfractions",
	"UniqueFOR_UID", "ReferencedSeriesUID", "DatabaseTimeStamp", "hash",
}

// ColumnDescriptor maps one DICOM tag to one catalog column. Immutable once
// loaded.
type ColumnDescriptor struct {
	Group   uint16    // tag group
	Element uint16    // tag element
	Column  string    // target column name
	Kind    ValueKind // value kind, KindText unless the definition says otherwise
	Default string    // value used when the tag is absent
}

// Tag returns the descriptor's tag formatted as (gggg,eeee).
func (d ColumnDescriptor) Tag() string {
	return fmt.Sprintf("(%04x,%04x)", d.Group, d.Element)
}

// TableSchema holds the ordered column descriptors of every catalog table.
type TableSchema struct {
	tables   map[string][]ColumnDescriptor
	warnings []string
}

// Columns returns the ordered descriptors of the given table's columns.
func (s *TableSchema) Columns(table string) []ColumnDescriptor {
	return s.tables[table]
}

// Tables returns the table names in a stable order.
func (s *TableSchema) Tables() []string {
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// KeyColumn returns the identifying key column of a table, or empty when the
// table has none (the worklist table is key-less).
func KeyColumn(table string) string {
	return keyColumns[table]
}

// Warnings returns the non-fatal problems collected while loading the
// definition source.
func (s *TableSchema) Warnings() []string {
	return s.warnings
}

// AddColumn appends a descriptor to a table. The change is in-memory only;
// the store adds the column to the persisted table lazily on first write.
func (s *TableSchema) AddColumn(table string, d ColumnDescriptor) error {
	if _, ok := s.tables[table]; !ok {
		return fmt.Errorf("unknown table: %s", table)
	}
	if d.Column == "" {
		return fmt.Errorf("column name is required")
	}
	s.tables[table] = append(s.tables[table], d)
	return nil
}

// Default returns the built-in schema used when no definition file exists.
// It covers the four hierarchy tables plus the worklist with the original
// conquest column set.
func Default() *TableSchema {
	return &TableSchema{tables: map[string][]ColumnDescriptor{
		TablePatients: {
			{Group: 0x0010, Element: 0x0020, Column: "PatientID"},
			{Group: 0x0010, Element: 0x0010, Column: "PatientNam"},
			{Group: 0x0010, Element: 0x0030, Column: "PatientBir"},
			{Group: 0x0010, Element: 0x0040, Column: "PatientSex"},
		},
		TableStudies: {
			{Group: 0x0020, Element: 0x000d, Column: "StudyInsta"},
			{Group: 0x0008, Element: 0x0020, Column: "StudyDate"},
			{Group: 0x0008, Element: 0x0030, Column: "StudyTime"},
			{Group: 0x0020, Element: 0x0010, Column: "StudyID"},
			{Group: 0x0008, Element: 0x1030, Column: "StudyDescr"},
			{Group: 0x0008, Element: 0x0050, Column: "AccessionN"},
			{Group: 0x0008, Element: 0x0090, Column: "ReferPhysi"},
			{Group: 0x0010, Element: 0x1010, Column: "PatientsAg"},
			{Group: 0x0010, Element: 0x1030, Column: "PatientsWe"},
			{Group: 0x0008, Element: 0x0061, Column: "StudyModal"},
			{Group: 0x0010, Element: 0x0010, Column: "PatientNam"},
			{Group: 0x0010, Element: 0x0030, Column: "PatientBir"},
			{Group: 0x0010, Element: 0x0040, Column: "PatientSex"},
			{Group: 0x0008, Element: 0x1070, Column: "OperatorsN"},
			{Group: 0x0010, Element: 0x0020, Column: "PatientID"},
		},
		TableSeries: {
			{Group: 0x0020, Element: 0x000e, Column: "SeriesInst"},
			{Group: 0x0020, Element: 0x0011, Column: "SeriesNumb"},
			{Group: 0x0008, Element: 0x0021, Column: "SeriesDate"},
			{Group: 0x0008, Element: 0x0031, Column: "SeriesTime"},
			{Group: 0x0008, Element: 0x103e, Column: "SeriesDesc"},
			{Group: 0x0008, Element: 0x0060, Column: "Modality"},
			{Group: 0x0008, Element: 0x1090, Column: "ManModelNa"},
			{Group: 0x0008, Element: 0x1155, Column: "Referenced"},
			{Group: 0x0018, Element: 0x5100, Column: "PatientPos"},
			{Group: 0x0018, Element: 0x0010, Column: "ContrastBo"},
			{Group: 0x0008, Element: 0x0070, Column: "Manufactur"},
			{Group: 0x0018, Element: 0x0015, Column: "BodyPartEx"},
			{Group: 0x0018, Element: 0x1030, Column: "ProtocolNa"},
			{Group: 0x0008, Element: 0x1010, Column: "StationNam"},
			{Group: 0x0008, Element: 0x0080, Column: "Institutio"},
			{Group: 0x0020, Element: 0x0052, Column: "FrameOfRef"},
			{Group: 0x0028, Element: 0x0008, Column: "NumberOfFr"},
			{Group: 0x3004, Element: 0x000a, Column: "DoseSummat"},
			{Group: 0x3006, Element: 0x0002, Column: "StructureS"},
			{Group: 0x0010, Element: 0x0020, Column: "SeriesPat"},
			{Group: 0x0008, Element: 0x1070, Column: "OperatorsN"},
			{Group: 0x0020, Element: 0x000d, Column: "StudyInsta"},
		},
		TableImages: {
			{Group: 0x0008, Element: 0x0018, Column: "SOPInstanc"},
			{Group: 0x0008, Element: 0x0016, Column: "SOPClassUI"},
			{Group: 0x0020, Element: 0x0013, Column: "ImageNumbe"},
			{Group: 0x0008, Element: 0x0023, Column: "ImageDate"},
			{Group: 0x0008, Element: 0x0033, Column: "ImageTime"},
			{Group: 0x0008, Element: 0x1155, Column: "Referenced"},
			{Group: 0x0018, Element: 0x0086, Column: "EchoNumber"},
			{Group: 0x0028, Element: 0x0008, Column: "NumberOfFr"},
			{Group: 0x0008, Element: 0x0022, Column: "AcqDate"},
			{Group: 0x0008, Element: 0x0032, Column: "AcqTime"},
			{Group: 0x0018, Element: 0x1250, Column: "ReceivingC"},
			{Group: 0x0020, Element: 0x0012, Column: "AcqNumber"},
			{Group: 0x0020, Element: 0x1041, Column: "SliceLocat"},
			{Group: 0x0028, Element: 0x0002, Column: "SamplesPer"},
			{Group: 0x0028, Element: 0x0004, Column: "PhotoMetri"},
			{Group: 0x0028, Element: 0x0010, Column: "Rows"},
			{Group: 0x0028, Element: 0x0011, Column: "Colums"},
			{Group: 0x0028, Element: 0x0030, Column: "PixelSpaci"},
			{Group: 0x0028, Element: 0x0101, Column: "BitsStored"},
			{Group: 0x0028, Element: 0x1052, Column: "RescaleInt"},
			{Group: 0x0028, Element: 0x1053, Column: "RescaleSlo"},
			{Group: 0x0008, Element: 0x0008, Column: "ImageType"},
			{Group: 0x0054, Element: 0x0400, Column: "ImageID"},
			{Group: 0x0010, Element: 0x0020, Column: "ImagePat"},
			{Group: 0x0018, Element: 0x0060, Column: "KVP"},
			{Group: 0x0018, Element: 0x1150, Column: "ExposureTi"},
			{Group: 0x0018, Element: 0x1151, Column: "TubeCurren"},
			{Group: 0x0018, Element: 0x1152, Column: "Exposure"},
			{Group: 0x0018, Element: 0x9345, Column: "CTDIvol"},
			{Group: 0x01f1, Element: 0x1026, Column: "Pitch"},
			{Group: 0x01f1, Element: 0x1027, Column: "RotationTi"},
			{Group: 0x01f1, Element: 0x104a, Column: "DoseRight"},
			{Group: 0x01f1, Element: 0x104b, Column: "Collimatio"},
			{Group: 0x0018, Element: 0x0050, Column: "SliceThick"},
			{Group: 0x0020, Element: 0x0037, Column: "ImageOrien"},
			{Group: 0x0008, Element: 0x0060, Column: "Modality"},
			{Group: 0x0008, Element: 0x103e, Column: "SeriesDesc"},
			{Group: 0x0020, Element: 0x0032, Column: "ImagePosit"},
			{Group: 0x0020, Element: 0x000e, Column: "SeriesInst"},
		},
		TableWorklist: {
			{Group: 0x0008, Element: 0x0050, Column: "AccessionN"},
			{Group: 0x0010, Element: 0x0020, Column: "PatientID"},
			{Group: 0x0010, Element: 0x0010, Column: "PatientNam"},
			{Group: 0x0010, Element: 0x0030, Column: "PatientBir"},
			{Group: 0x0010, Element: 0x0040, Column: "PatientSex"},
			{Group: 0x0020, Element: 0x000d, Column: "StudyInsta"},
			{Group: 0x0008, Element: 0x0060, Column: "Modality"},
			{Group: 0x0040, Element: 0x0002, Column: "StartDate"},
			{Group: 0x0040, Element: 0x0003, Column: "StartTime"},
			{Group: 0x0040, Element: 0x1001, Column: "ReqProcID"},
		},
	}}
}
