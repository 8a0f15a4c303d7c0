package extract

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dicomtk/conquestdb/internal/conquest/cqerror"
	"github.com/dicomtk/conquestdb/internal/conquest/dcm"
	"github.com/dicomtk/conquestdb/internal/conquest/schema"
)

func ctObject() *dcm.MapSource {
	return &dcm.MapSource{
		FilePath: "7654321/ct1.dcm",
		Values: map[dcm.Tag]string{
			{Group: 0x0008, Element: 0x0018}: "1.2.3.4.1",       // SOPInstanceUID
			{Group: 0x0010, Element: 0x0020}: "7654321",         // PatientID
			{Group: 0x0010, Element: 0x0010}: "DOE^JOHN",        // PatientName
			{Group: 0x0020, Element: 0x000d}: "1.2.3.4.100",     // StudyInstanceUID
			{Group: 0x0020, Element: 0x000e}: "1.2.3.4.200",     // SeriesInstanceUID
			{Group: 0x0008, Element: 0x0060}: "CT",              // Modality
			{Group: 0x0020, Element: 0x0011}: "5",               // SeriesNumber
			{Group: 0x0028, Element: 0x0030}: `0.9766\0.9766`,   // PixelSpacing, multi-valued
		},
	}
}

func rtstructObject() *dcm.MapSource {
	roi := func(name, forUID string) *dcm.MapSource {
		return &dcm.MapSource{Values: map[dcm.Tag]string{
			{Group: 0x3006, Element: 0x0026}: name,
			{Group: 0x3006, Element: 0x0024}: forUID,
		}}
	}
	refSeries := &dcm.MapSource{Values: map[dcm.Tag]string{
		{Group: 0x0020, Element: 0x000e}: "1.2.3.4.200",
	}}
	refStudy := &dcm.MapSource{Items: map[dcm.Tag][]*dcm.MapSource{
		{Group: 0x3006, Element: 0x0014}: {refSeries},
	}}
	refFrame := &dcm.MapSource{Items: map[dcm.Tag][]*dcm.MapSource{
		{Group: 0x3006, Element: 0x0012}: {refStudy},
	}}
	return &dcm.MapSource{
		FilePath: "7654321/rtstruct.dcm",
		Values: map[dcm.Tag]string{
			{Group: 0x0008, Element: 0x0018}: "1.2.3.4.2",
			{Group: 0x0010, Element: 0x0020}: "7654321",
			{Group: 0x0020, Element: 0x000d}: "1.2.3.4.100",
			{Group: 0x0020, Element: 0x000e}: "1.2.3.4.300",
			{Group: 0x0008, Element: 0x0060}: "RTSTRUCT",
		},
		Items: map[dcm.Tag][]*dcm.MapSource{
			{Group: 0x3006, Element: 0x0020}: {roi("GTV", "1.9.9"), roi("PTV", "1.9.9")},
			{Group: 0x3006, Element: 0x0010}: {refFrame},
		},
	}
}

func testOptions(file string) Options {
	return Options{
		ObjectFile: file,
		Now:        func() time.Time { return time.Unix(1700000000, 0) },
	}
}

func findRow(t *testing.T, rows []Row, table string) *Row {
	t.Helper()
	for i := range rows {
		if rows[i].Table == table {
			return &rows[i]
		}
	}
	t.Fatalf("no row for table %s", table)
	return nil
}

func TestExtractLiteralColumns(t *testing.T) {
	rows, err := Extract(ctObject(), schema.Default(), testOptions("7654321/ct1.dcm"))
	require.NoError(t, err)
	require.Len(t, rows, 4)

	// parent first ordering
	assert.Equal(t, schema.TablePatients, rows[0].Table)
	assert.Equal(t, schema.TableImages, rows[3].Table)

	patient := findRow(t, rows, schema.TablePatients)
	assert.Equal(t, "7654321", patient.Key)
	name, ok := patient.Column("PatientNam")
	require.True(t, ok)
	assert.Equal(t, "DOE^JOHN", name.Text)

	image := findRow(t, rows, schema.TableImages)
	assert.Equal(t, "1.2.3.4.1", image.Key)
	spacing, ok := image.Column("PixelSpaci")
	require.True(t, ok)
	assert.Equal(t, `0.9766\0.9766`, spacing.Text)
	objFile, ok := image.Column("ObjectFile")
	require.True(t, ok)
	assert.Equal(t, "7654321/ct1.dcm", objFile.Text)
	ts, ok := image.Column("DatabaseTimeStamp")
	require.True(t, ok)
	assert.InDelta(t, 1700000000, ts.Real, 1)

	series := findRow(t, rows, schema.TableSeries)
	assert.Equal(t, "1.2.3.4.200", series.Key)
	pat, ok := series.Column("SeriesPat")
	require.True(t, ok)
	assert.Equal(t, "7654321", pat.Text)
}

func TestExtractRejectsWithoutIdentifyingTags(t *testing.T) {
	obj := ctObject()
	delete(obj.Values, dcm.Tag{Group: 0x0008, Element: 0x0018})
	rows, err := Extract(obj, schema.Default(), testOptions(""))
	assert.Nil(t, rows)
	assert.ErrorIs(t, err, cqerror.ErrRejectedObject)

	obj = ctObject()
	delete(obj.Values, dcm.Tag{Group: 0x0010, Element: 0x0020})
	_, err = Extract(obj, schema.Default(), testOptions(""))
	assert.ErrorIs(t, err, cqerror.ErrRejectedObject)
}

func TestExtractCoercionFailureYieldsNull(t *testing.T) {
	s := schema.Default()
	require.NoError(t, s.AddColumn(schema.TableImages,
		schema.ColumnDescriptor{Group: 0x0020, Element: 0x0011, Column: "SeriesNumI", Kind: schema.KindInteger}))

	obj := ctObject()
	obj.Values[dcm.Tag{Group: 0x0020, Element: 0x0011}] = "not-a-number"
	rows, err := Extract(obj, s, testOptions(""))
	require.NoError(t, err)

	image := findRow(t, rows, schema.TableImages)
	v, ok := image.Column("SeriesNumI")
	require.True(t, ok)
	assert.True(t, v.Null)
}

func TestExtractStructureSet(t *testing.T) {
	rows, err := Extract(rtstructObject(), schema.Default(), testOptions("7654321/rtstruct.dcm"))
	require.NoError(t, err)

	image := findRow(t, rows, schema.TableImages)
	list, ok := image.Column("ElementList")
	require.True(t, ok)
	assert.Equal(t, `GTV\PTV`, list.Text)
	count, ok := image.Column("ElementCount")
	require.True(t, ok)
	assert.Equal(t, int64(2), count.Int)
	forUID, ok := image.Column("UniqueFOR_UID")
	require.True(t, ok)
	assert.Equal(t, "1.9.9", forUID.Text)
	ref, ok := image.Column("ReferencedSeriesUID")
	require.True(t, ok)
	assert.Equal(t, "1.2.3.4.200", ref.Text)

	// mirrored on the series row
	series := findRow(t, rows, schema.TableSeries)
	mirror, ok := series.Column("Referenced")
	require.True(t, ok)
	assert.Equal(t, "1.2.3.4.200", mirror.Text)
	frame, ok := series.Column("FrameOfRef")
	require.True(t, ok)
	assert.Equal(t, "1.9.9", frame.Text)
}

func TestExtractPartialSchemaKeepsSeriesMirror(t *testing.T) {
	// a definition file may declare only some of the hierarchy tables
	def := `*Series
{
	{ 0x0020, 0x000e, "SeriesInst" }
	{ 0x0008, 0x0060, "Modality" }
}
*Image
{
	{ 0x0008, 0x0018, "SOPInstanc" }
	{ 0x0020, 0x000e, "SeriesInst" }
}
`
	path := filepath.Join(t.TempDir(), "dicom.sql")
	require.NoError(t, os.WriteFile(path, []byte(def), 0o644))
	s, err := schema.Load(path, true)
	require.NoError(t, err)

	rows, err := Extract(rtstructObject(), s, testOptions("7654321/rtstruct.dcm"))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	series := findRow(t, rows, schema.TableSeries)
	mirror, ok := series.Column("Referenced")
	require.True(t, ok)
	assert.Equal(t, "1.2.3.4.200", mirror.Text)
	frame, ok := series.Column("FrameOfRef")
	require.True(t, ok)
	assert.Equal(t, "1.9.9", frame.Text)
}

func TestExtractStructureSetROIFilter(t *testing.T) {
	filter, err := NewROIFilter([]string{`^Z\d`}, nil)
	require.NoError(t, err)

	obj := rtstructObject()
	obj.Items[dcm.Tag{Group: 0x3006, Element: 0x0020}] = append(obj.Items[dcm.Tag{Group: 0x3006, Element: 0x0020}],
		&dcm.MapSource{Values: map[dcm.Tag]string{
			{Group: 0x3006, Element: 0x0026}: "Z1_helper",
			{Group: 0x3006, Element: 0x0024}: "1.9.9",
		}})

	opts := testOptions("")
	opts.ROIFilter = filter
	rows, err := Extract(obj, schema.Default(), opts)
	require.NoError(t, err)

	image := findRow(t, rows, schema.TableImages)
	list, _ := image.Column("ElementList")
	assert.Equal(t, `GTV\PTV`, list.Text)
	count, _ := image.Column("ElementCount")
	assert.Equal(t, int64(2), count.Int)
}

func TestExtractPlanCounts(t *testing.T) {
	group := func(fractions, beams string) *dcm.MapSource {
		return &dcm.MapSource{Values: map[dcm.Tag]string{
			{Group: 0x300a, Element: 0x0078}: fractions,
			{Group: 0x300a, Element: 0x0080}: beams,
		}}
	}
	obj := ctObject()
	obj.Values[dcm.Tag{Group: 0x0008, Element: 0x0060}] = "RTPLAN"
	obj.Items = map[dcm.Tag][]*dcm.MapSource{
		{Group: 0x300a, Element: 0x0070}: {group("25", "4")},
	}

	rows, err := Extract(obj, schema.Default(), testOptions(""))
	require.NoError(t, err)
	image := findRow(t, rows, schema.TableImages)
	fr, ok := image.Column("Nfractions")
	require.True(t, ok)
	assert.Equal(t, int64(25), fr.Int)
	beams, ok := image.Column("ElementCount")
	require.True(t, ok)
	assert.Equal(t, int64(4), beams.Int)

	// two fraction groups produce the conquest list rendering
	obj.Items[dcm.Tag{Group: 0x300a, Element: 0x0070}] = []*dcm.MapSource{group("25", "4"), group("5", "2")}
	rows, err = Extract(obj, schema.Default(), testOptions(""))
	require.NoError(t, err)
	image = findRow(t, rows, schema.TableImages)
	fr, _ = image.Column("Nfractions")
	assert.Equal(t, `25\5`, fr.Text)
}

func TestROIFilterIncludeExclude(t *testing.T) {
	f, err := NewROIFilter([]string{"Ext", "ISOC"}, []string{".*TV$"})
	require.NoError(t, err)
	got := f.Filter([]string{"GTV", "PTV", "External", "isocenter", "Lung_L"})
	assert.Equal(t, []string{"GTV", "PTV"}, got)
}

func TestROIFilterMatchesFromNameStart(t *testing.T) {
	f, err := NewROIFilter([]string{"NP"}, nil)
	require.NoError(t, err)
	got := f.Filter([]string{"NP boost", "Lung NP", "np_nodes"})
	assert.Equal(t, []string{"Lung NP"}, got)
}
