package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dicomtk/conquestdb/internal/conquest/dcm"
	"github.com/dicomtk/conquestdb/internal/conquest/extract"
	"github.com/dicomtk/conquestdb/internal/conquest/schema"
)

func newTestCatalog(t *testing.T) (context.Context, *Catalog) {
	t.Helper()
	ctx := log.Logger.WithContext(context.Background())
	c, aerr := Open(ctx, filepath.Join(t.TempDir(), "conquest.db"), schema.Default())
	require.Nil(t, aerr)
	t.Cleanup(func() { c.Close(ctx) })
	return ctx, c
}

func testObject(patientID, studyUID, seriesUID, sopUID string) *dcm.MapSource {
	return &dcm.MapSource{
		FilePath: patientID + "/" + sopUID + ".dcm",
		Values: map[dcm.Tag]string{
			{Group: 0x0008, Element: 0x0018}: sopUID,
			{Group: 0x0010, Element: 0x0020}: patientID,
			{Group: 0x0010, Element: 0x0010}: "DOE^JANE",
			{Group: 0x0020, Element: 0x000d}: studyUID,
			{Group: 0x0020, Element: 0x000e}: seriesUID,
			{Group: 0x0008, Element: 0x0060}: "CT",
		},
	}
}

func extractRows(t *testing.T, c *Catalog, obj *dcm.MapSource) []extract.Row {
	t.Helper()
	rows, err := extract.Extract(obj, c.Schema(), extract.Options{
		ObjectFile: obj.FilePath,
		Now:        func() time.Time { return time.Unix(1700000000, 0) },
	})
	require.NoError(t, err)
	return rows
}

func TestOpenCreatesTablesAndViews(t *testing.T) {
	ctx, c := newTestCatalog(t)

	records, _, aerr := c.Query(ctx,
		`SELECT name FROM sqlite_master WHERE type='table' ORDER BY name`)
	require.Nil(t, aerr)
	names := make([]string, 0, len(records))
	for _, r := range records {
		names = append(names, r["name"].(string))
	}
	assert.Contains(t, names, schema.TablePatients)
	assert.Contains(t, names, schema.TableStudies)
	assert.Contains(t, names, schema.TableSeries)
	assert.Contains(t, names, schema.TableImages)
	assert.Contains(t, names, schema.TableWorklist)

	views, _, aerr := c.Query(ctx, `SELECT name FROM sqlite_master WHERE type='view'`)
	require.Nil(t, aerr)
	assert.Len(t, views, 2)
}

func TestWriteRowsInsertAndSkip(t *testing.T) {
	ctx, c := newTestCatalog(t)
	rows := extractRows(t, c, testObject("PAT1", "ST1", "SE1", "IM1"))

	res, aerr := c.WriteRows(ctx, rows, InsertMissing)
	require.Nil(t, aerr)
	assert.Equal(t, 4, res.Inserted)
	assert.Zero(t, res.Updated)

	// second write of the same object inserts nothing
	res, aerr = c.WriteRows(ctx, rows, InsertMissing)
	require.Nil(t, aerr)
	assert.Zero(t, res.Inserted)
	assert.Equal(t, 4, res.Skipped)

	records, _, aerr := c.Query(ctx, `SELECT SOPInstanc, ImagePat FROM DICOMimages`)
	require.Nil(t, aerr)
	require.Len(t, records, 1)
	assert.Equal(t, "IM1", records[0]["SOPInstanc"])
	assert.Equal(t, "PAT1", records[0]["ImagePat"])
}

func TestWriteRowsRecompute(t *testing.T) {
	ctx, c := newTestCatalog(t)
	obj := testObject("PAT1", "ST1", "SE1", "IM1")
	_, aerr := c.WriteRows(ctx, extractRows(t, c, obj), InsertMissing)
	require.Nil(t, aerr)

	obj.Values[dcm.Tag{Group: 0x0010, Element: 0x0010}] = "DOE^JANE^UPDATED"
	res, aerr := c.WriteRows(ctx, extractRows(t, c, obj), Recompute)
	require.Nil(t, aerr)
	assert.Equal(t, 4, res.Updated)
	assert.Zero(t, res.Inserted)

	// no duplicate keys after recompute
	records, _, aerr := c.Query(ctx, `SELECT COUNT(*) AS n FROM DICOMimages WHERE SOPInstanc='IM1'`)
	require.Nil(t, aerr)
	assert.EqualValues(t, 1, records[0]["n"])

	records, _, aerr = c.Query(ctx, `SELECT PatientNam FROM DICOMpatients WHERE PatientID='PAT1'`)
	require.Nil(t, aerr)
	require.Len(t, records, 1)
	assert.Equal(t, "DOE^JANE^UPDATED", records[0]["PatientNam"])
}

func TestLazyColumnCreation(t *testing.T) {
	ctx, c := newTestCatalog(t)
	require.NoError(t, c.Schema().AddColumn(schema.TableImages,
		schema.ColumnDescriptor{Group: 0x0018, Element: 0x9311, Column: "SpiralPitc", Kind: schema.KindReal}))

	obj := testObject("PAT1", "ST1", "SE1", "IM1")
	obj.Values[dcm.Tag{Group: 0x0018, Element: 0x9311}] = "0.8"
	_, aerr := c.WriteRows(ctx, extractRows(t, c, obj), InsertMissing)
	require.Nil(t, aerr)

	records, _, aerr := c.Query(ctx, `SELECT SpiralPitc FROM DICOMimages WHERE SOPInstanc='IM1'`)
	require.Nil(t, aerr)
	require.Len(t, records, 1)
	assert.EqualValues(t, 0.8, records[0]["SpiralPitc"])
}

func TestQueryColumn(t *testing.T) {
	ctx, c := newTestCatalog(t)
	_, aerr := c.WriteRows(ctx, extractRows(t, c, testObject("PAT1", "ST1", "SE1", "IM1")), InsertMissing)
	require.Nil(t, aerr)
	_, aerr = c.WriteRows(ctx, extractRows(t, c, testObject("PAT1", "ST1", "SE2", "IM2")), InsertMissing)
	require.Nil(t, aerr)

	// case-insensitive column match
	keys, aerr := c.QueryColumn(ctx, `SELECT seriesinst FROM DICOMseries ORDER BY SeriesInst`, "SeriesInst")
	require.Nil(t, aerr)
	assert.Equal(t, []string{"SE1", "SE2"}, keys)

	_, aerr = c.QueryColumn(ctx, `SELECT Modality FROM DICOMseries`, "SeriesInst")
	assert.NotNil(t, aerr)
}

func TestHasKey(t *testing.T) {
	ctx, c := newTestCatalog(t)
	_, aerr := c.WriteRows(ctx, extractRows(t, c, testObject("PAT1", "ST1", "SE1", "IM1")), InsertMissing)
	require.Nil(t, aerr)

	ok, aerr := c.HasKey(ctx, schema.TablePatients, "PatientID", "PAT1")
	require.Nil(t, aerr)
	assert.True(t, ok)
	ok, aerr = c.HasKey(ctx, schema.TablePatients, "PatientID", "NOPE")
	require.Nil(t, aerr)
	assert.False(t, ok)
}
