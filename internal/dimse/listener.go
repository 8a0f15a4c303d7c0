package dimse

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/grailbio/go-dicom"
	"github.com/grailbio/go-dicom/dicomio"
	"github.com/grailbio/go-dicom/dicomtag"
	"github.com/grailbio/go-netdicom"
	netdimse "github.com/grailbio/go-netdicom/dimse"
	"github.com/rs/zerolog/log"

	"github.com/dicomtk/conquestdb/internal/common/apperrors"
	"github.com/dicomtk/conquestdb/internal/conquest/cqerror"
	"github.com/dicomtk/conquestdb/internal/conquest/dcm"
)

// IndexFunc indexes one stored object into the catalog.
type IndexFunc func(ctx context.Context, path string) apperrors.Error

type ListenerParams struct {
	AETitle        string
	Port           int
	DataRoot       string
	WriteToCatalog bool
}

// Listener accepts inbound c-store associations and files each received
// object under <dataroot>/<PatientID>/<SOPInstanceUID>.dcm. Indexing is
// best-effort: a failure is logged and the association stays open.
type Listener struct {
	params ListenerParams
	index  IndexFunc
	parse  func(path string) (dcm.Source, error)

	ln     net.Listener
	ctx    context.Context
	wg     sync.WaitGroup
	closed atomic.Bool
}

func NewListener(params ListenerParams, index IndexFunc) *Listener {
	return &Listener{params: params, index: index, parse: dcm.ReadFile}
}

func (l *Listener) Start(ctx context.Context) apperrors.Error {
	if err := os.MkdirAll(l.params.DataRoot, 0o755); err != nil {
		return cqerror.ErrTransport.Msg("create data root").Err(err)
	}
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", l.params.Port))
	if err != nil {
		return cqerror.ErrTransport.Msg("listen").Err(err)
	}
	l.ln = ln
	l.ctx = ctx
	log.Ctx(ctx).Info().Str("ae_title", l.params.AETitle).
		Str("addr", ln.Addr().String()).Bool("write_to_catalog", l.params.WriteToCatalog).
		Msg("scp listening")
	go l.acceptLoop(ctx)
	return nil
}

// Stop closes the listening socket and waits for in-flight associations to
// drain.
func (l *Listener) Stop(ctx context.Context) {
	l.closed.Store(true)
	if l.ln != nil {
		l.ln.Close()
	}
	l.wg.Wait()
	log.Ctx(ctx).Info().Msg("scp stopped")
}

func (l *Listener) acceptLoop(ctx context.Context) {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if !l.closed.Load() {
				log.Ctx(ctx).Error().Err(err).Msg("accept failed")
			}
			return
		}
		assocID := uuid.New().String()
		log.Ctx(ctx).Debug().Str("association", assocID).
			Str("remote", conn.RemoteAddr().String()).Msg("association accepted")
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			netdicom.RunProviderForConn(conn, l.providerParams(ctx, assocID))
			log.Ctx(ctx).Debug().Str("association", assocID).Msg("association closed")
		}()
	}
}

func (l *Listener) providerParams(ctx context.Context, assocID string) netdicom.ServiceProviderParams {
	return netdicom.ServiceProviderParams{
		AETitle: l.params.AETitle,
		CStore: func(connState netdicom.ConnectionState, transferSyntaxUID, sopClassUID, sopInstanceUID string, data []byte) netdimse.Status {
			fileBytes, err := encodeFileObject(transferSyntaxUID, sopClassUID, sopInstanceUID, data)
			if err != nil {
				log.Ctx(ctx).Error().Str("association", assocID).
					Str("sop_instance", sopInstanceUID).Err(err).Msg("encode received object")
				return netdimse.Status{Status: netdimse.CStoreOutOfResources}
			}
			if aerr := l.handleObject(ctx, sopInstanceUID, fileBytes); aerr != nil {
				log.Ctx(ctx).Error().Str("association", assocID).
					Str("sop_instance", sopInstanceUID).Err(aerr).Msg("store received object")
				return netdimse.Status{Status: netdimse.CStoreOutOfResources}
			}
			return netdimse.Status{Status: netdimse.StatusSuccess}
		},
	}
}

// encodeFileObject prepends the file meta group so the stored bytes form a
// valid part-10 file.
func encodeFileObject(transferSyntaxUID, sopClassUID, sopInstanceUID string, data []byte) ([]byte, error) {
	e := dicomio.NewBytesEncoder(nil, dicomio.UnknownVR)
	dicom.WriteFileHeader(e, []*dicom.Element{
		dicom.MustNewElement(dicomtag.TransferSyntaxUID, transferSyntaxUID),
		dicom.MustNewElement(dicomtag.MediaStorageSOPClassUID, sopClassUID),
		dicom.MustNewElement(dicomtag.MediaStorageSOPInstanceUID, sopInstanceUID),
	})
	e.WriteBytes(data)
	if err := e.Error(); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

// handleObject writes the object to a temp file, reads its patient key to
// decide the final path, and moves it into place. Indexing failures leave
// the file stored.
func (l *Listener) handleObject(ctx context.Context, sopInstanceUID string, fileBytes []byte) apperrors.Error {
	tmp := filepath.Join(l.params.DataRoot, "incoming-"+uuid.New().String()+".dcm")
	if err := os.WriteFile(tmp, fileBytes, 0o644); err != nil {
		return cqerror.ErrTransport.Msg("write temp object").Err(err)
	}
	src, err := l.parse(tmp)
	if err != nil {
		os.Remove(tmp)
		return cqerror.ErrRejectedObject.Msg("parse received object").Err(err)
	}
	patientID, ok := src.String(0x0010, 0x0020)
	if !ok || patientID == "" {
		os.Remove(tmp)
		return cqerror.ErrRejectedObject.Msg("received object has no patient id")
	}
	dir := filepath.Join(l.params.DataRoot, patientID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		os.Remove(tmp)
		return cqerror.ErrTransport.Msg("create patient directory").Err(err)
	}
	final := filepath.Join(dir, sopInstanceUID+".dcm")
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return cqerror.ErrTransport.Msg("move received object").Err(err)
	}
	log.Ctx(ctx).Info().Str("patient", patientID).Str("file", final).Msg("object received")
	if l.params.WriteToCatalog && l.index != nil {
		if aerr := l.index(ctx, final); aerr != nil {
			log.Ctx(ctx).Warn().Str("file", final).Err(aerr).Msg("index of received object failed")
		}
	}
	return nil
}
