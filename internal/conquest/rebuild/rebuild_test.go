package rebuild

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dicomtk/conquestdb/internal/conquest/cqerror"
	"github.com/dicomtk/conquestdb/internal/conquest/dcm"
	"github.com/dicomtk/conquestdb/internal/conquest/schema"
	"github.com/dicomtk/conquestdb/internal/conquest/store"
)

// fakeReader maps absolute file paths to fake parsed objects.
type fakeReader struct {
	objects map[string]map[dcm.Tag]string
}

func (f *fakeReader) read(path string) (dcm.Source, error) {
	values, ok := f.objects[path]
	if !ok {
		return nil, errors.New("not a dicom file")
	}
	return &dcm.MapSource{FilePath: path, Values: values}, nil
}

type fixture struct {
	ctx      context.Context
	catalog  *store.Catalog
	pipeline *Pipeline
	dataRoot string
	reader   *fakeReader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := log.Logger.WithContext(context.Background())
	dir := t.TempDir()
	c, aerr := store.Open(ctx, filepath.Join(dir, "conquest.db"), schema.Default())
	require.Nil(t, aerr)
	t.Cleanup(func() { c.Close(ctx) })

	reader := &fakeReader{objects: map[string]map[dcm.Tag]string{}}
	dataRoot := filepath.Join(dir, "data")
	p := New(c, dataRoot)
	p.read = reader.read
	return &fixture{ctx: ctx, catalog: c, pipeline: p, dataRoot: dataRoot, reader: reader}
}

func (f *fixture) addObject(t *testing.T, patientID, studyUID, seriesUID, sopUID string) string {
	t.Helper()
	path := filepath.Join(f.dataRoot, patientID, sopUID+".dcm")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	f.reader.objects[path] = map[dcm.Tag]string{
		{Group: 0x0008, Element: 0x0018}: sopUID,
		{Group: 0x0008, Element: 0x0060}: "CT",
		{Group: 0x0010, Element: 0x0020}: patientID,
		{Group: 0x0020, Element: 0x000d}: studyUID,
		{Group: 0x0020, Element: 0x000e}: seriesUID,
	}
	return path
}

func TestRebuildIndexesTree(t *testing.T) {
	f := newFixture(t)
	f.addObject(t, "PAT1", "ST1", "SE1", "IM1")
	f.addObject(t, "PAT1", "ST1", "SE1", "IM2")
	f.addObject(t, "PAT2", "ST2", "SE2", "IM3")

	res, aerr := f.pipeline.Rebuild(f.ctx, Options{})
	require.Nil(t, aerr)
	assert.Equal(t, 2, res.Patients)
	assert.Equal(t, 3, res.Processed)
	assert.Zero(t, res.Skipped)

	keys, aerr := f.catalog.QueryColumn(f.ctx,
		`SELECT PatientID FROM DICOMpatients ORDER BY PatientID`, "PatientID")
	require.Nil(t, aerr)
	assert.Equal(t, []string{"PAT1", "PAT2"}, keys)
}

func TestRebuildSecondPassSkipsPatients(t *testing.T) {
	f := newFixture(t)
	f.addObject(t, "PAT1", "ST1", "SE1", "IM1")

	_, aerr := f.pipeline.Rebuild(f.ctx, Options{})
	require.Nil(t, aerr)

	res, aerr := f.pipeline.Rebuild(f.ctx, Options{Policy: SkipExisting})
	require.Nil(t, aerr)
	assert.Zero(t, res.Processed)
	assert.Equal(t, 1, res.PatientsSkipped)
}

func TestRebuildForceRecomputes(t *testing.T) {
	f := newFixture(t)
	path := f.addObject(t, "PAT1", "ST1", "SE1", "IM1")
	_, aerr := f.pipeline.Rebuild(f.ctx, Options{})
	require.Nil(t, aerr)

	f.reader.objects[path][dcm.Tag{Group: 0x0010, Element: 0x0010}] = "DOE^JANE"
	res, aerr := f.pipeline.Rebuild(f.ctx, Options{Policy: Force})
	require.Nil(t, aerr)
	assert.Equal(t, 1, res.Processed)

	// still exactly one image record per key
	n, aerr := f.catalog.QueryColumn(f.ctx,
		`SELECT SOPInstanc FROM DICOMimages WHERE SOPInstanc='IM1'`, "SOPInstanc")
	require.Nil(t, aerr)
	assert.Len(t, n, 1)
}

func TestRebuildSinglePatientScope(t *testing.T) {
	f := newFixture(t)
	f.addObject(t, "PAT1", "ST1", "SE1", "IM1")
	f.addObject(t, "PAT2", "ST2", "SE2", "IM2")

	res, aerr := f.pipeline.Rebuild(f.ctx, Options{Patient: "PAT2"})
	require.Nil(t, aerr)
	assert.Equal(t, 1, res.Patients)
	assert.Equal(t, 1, res.Processed)

	ok, aerr := f.catalog.HasKey(f.ctx, schema.TablePatients, "PatientID", "PAT1")
	require.Nil(t, aerr)
	assert.False(t, ok)
}

func TestRebuildCountsRejectedAsSkipped(t *testing.T) {
	f := newFixture(t)
	f.addObject(t, "PAT1", "ST1", "SE1", "IM1")
	// a stray non-dicom file in the patient directory
	stray := filepath.Join(f.dataRoot, "PAT1", "notes.txt")
	require.NoError(t, os.WriteFile(stray, []byte("hello"), 0o644))
	// a parseable object missing its identifying tags
	rejected := filepath.Join(f.dataRoot, "PAT1", "broken.dcm")
	require.NoError(t, os.WriteFile(rejected, []byte("x"), 0o644))
	f.reader.objects[rejected] = map[dcm.Tag]string{{Group: 0x0008, Element: 0x0060}: "CT"}

	res, aerr := f.pipeline.Rebuild(f.ctx, Options{})
	require.Nil(t, aerr)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 2, res.Skipped)
	assert.Zero(t, res.Failed)
}

func TestStoreFilePlacesAndIndexes(t *testing.T) {
	f := newFixture(t)
	loose := filepath.Join(t.TempDir(), "loose.dcm")
	require.NoError(t, os.WriteFile(loose, []byte("object"), 0o644))
	f.reader.objects[loose] = map[dcm.Tag]string{
		{Group: 0x0008, Element: 0x0018}: "IM9",
		{Group: 0x0010, Element: 0x0020}: "PAT9",
		{Group: 0x0020, Element: 0x000d}: "ST9",
		{Group: 0x0020, Element: 0x000e}: "SE9",
	}

	final, aerr := f.pipeline.StoreFile(f.ctx, loose, true)
	require.Nil(t, aerr)
	assert.Equal(t, filepath.Join(f.dataRoot, "PAT9", "IM9.dcm"), final)
	assert.FileExists(t, final)
	assert.NoFileExists(t, loose)

	ok, aerr := f.catalog.HasKey(f.ctx, schema.TableImages, "SOPInstanc", "IM9")
	require.Nil(t, aerr)
	assert.True(t, ok)
}

func TestStoreFileRejectsUnidentifiedObject(t *testing.T) {
	f := newFixture(t)
	loose := filepath.Join(t.TempDir(), "loose.dcm")
	require.NoError(t, os.WriteFile(loose, []byte("object"), 0o644))
	f.reader.objects[loose] = map[dcm.Tag]string{{Group: 0x0008, Element: 0x0018}: "IM9"}

	_, aerr := f.pipeline.StoreFile(f.ctx, loose, false)
	require.NotNil(t, aerr)
	assert.ErrorIs(t, aerr, cqerror.ErrRejectedObject)
	assert.FileExists(t, loose)
}

func TestStoreDirectorySkipsUnparseable(t *testing.T) {
	f := newFixture(t)
	src := t.TempDir()
	good := filepath.Join(src, "a.dcm")
	require.NoError(t, os.WriteFile(good, []byte("object"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "junk.bin"), []byte("junk"), 0o644))
	f.reader.objects[good] = map[dcm.Tag]string{
		{Group: 0x0008, Element: 0x0018}: "IM1",
		{Group: 0x0010, Element: 0x0020}: "PAT1",
		{Group: 0x0020, Element: 0x000d}: "ST1",
		{Group: 0x0020, Element: 0x000e}: "SE1",
	}

	stored, aerr := f.pipeline.StoreDirectory(f.ctx, src, false)
	require.Nil(t, aerr)
	assert.Equal(t, 1, stored)
}
