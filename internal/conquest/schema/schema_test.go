package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDefinition = `/*
 * catalog column layout
 */
*Patient
{
	{ 0x0010, 0x0020, "PatientID" }
	{ 0x0010, 0x0010, "PatientName" }
}
*Series
{
	{ 0x0020, 0x000e, "SeriesInstanceUID" }
	{ 0x0020, 0x0011, "SeriesNumber", int }
}
`

func writeDefinition(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dicom.sql")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefinitionFile(t *testing.T) {
	s, err := Load(writeDefinition(t, sampleDefinition), true)
	require.NoError(t, err)

	patients := s.Columns(TablePatients)
	require.Len(t, patients, 2)
	assert.Equal(t, uint16(0x0010), patients[0].Group)
	assert.Equal(t, uint16(0x0020), patients[0].Element)
	assert.Equal(t, "PatientID", patients[0].Column)

	series := s.Columns(TableSeries)
	require.Len(t, series, 2)
	// conquest truncates column names to 10 characters
	assert.Equal(t, "SeriesInst", series[0].Column)
	assert.Equal(t, "SeriesNumb", series[1].Column)
	assert.Equal(t, KindInteger, series[1].Kind)
	assert.Empty(t, s.Warnings())
}

func TestLoadWithoutTruncation(t *testing.T) {
	s, err := Load(writeDefinition(t, sampleDefinition), false)
	require.NoError(t, err)
	assert.Equal(t, "SeriesInstanceUID", s.Columns(TableSeries)[0].Column)
}

func TestLoadMissingFileUsesDefault(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "nope.sql"), true)
	require.NoError(t, err)
	assert.NotEmpty(t, s.Columns(TablePatients))
	assert.NotEmpty(t, s.Columns(TableImages))
	assert.Equal(t, "SOPInstanc", KeyColumn(TableImages))
}

func TestLoadSkipsMalformedLines(t *testing.T) {
	def := `*Patient
{
	{ 0x0010, 0x0020, "PatientID" }
	{ not, a, valid line
	{ 0xZZZZ, 0x0010, "Broken" }
}
*Bogus
{
	{ 0x0010, 0x0040, "PatientSex" }
}
`
	s, err := Load(writeDefinition(t, def), true)
	require.NoError(t, err)
	// valid line survives, malformed ones are warnings
	require.Len(t, s.Columns(TablePatients), 1)
	assert.NotEmpty(t, s.Warnings())
	// unknown table role is skipped entirely
	assert.Empty(t, s.Columns("Bogus"))
}

func TestAddColumn(t *testing.T) {
	s := Default()
	before := len(s.Columns(TableImages))
	err := s.AddColumn(TableImages, ColumnDescriptor{Group: 0x0018, Element: 0x9311, Column: "SpiralPitc", Kind: KindReal})
	require.NoError(t, err)
	assert.Len(t, s.Columns(TableImages), before+1)

	assert.Error(t, s.AddColumn("NoSuchTable", ColumnDescriptor{Column: "x"}))
	assert.Error(t, s.AddColumn(TableImages, ColumnDescriptor{}))
}

func TestDefaultImageDoseColumns(t *testing.T) {
	names := map[string]bool{}
	for _, d := range Default().Columns(TableImages) {
		names[d.Column] = true
	}
	for _, want := range []string{"CTDIvol", "Pitch", "RotationTi", "DoseRight", "Collimatio"} {
		assert.True(t, names[want], want)
	}
}

func TestCoerce(t *testing.T) {
	assert.Equal(t, int64(12), Coerce("12", KindInteger).Int)
	assert.True(t, Coerce("not a number", KindInteger).Null)
	assert.Equal(t, 1.5, Coerce("1.5", KindReal).Real)
	assert.True(t, Coerce("", KindReal).Null)
	assert.Equal(t, "CT", Coerce("CT", KindText).Text)
	assert.Nil(t, NullValue(KindText).Arg())
	assert.Equal(t, "7654321", TextValue("7654321").Arg())
}
