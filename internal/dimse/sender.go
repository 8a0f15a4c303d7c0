package dimse

import (
	"context"

	"github.com/grailbio/go-dicom"
	"github.com/grailbio/go-netdicom"
	"github.com/grailbio/go-netdicom/sopclass"
	"github.com/rs/zerolog/log"

	"github.com/dicomtk/conquestdb/internal/common/apperrors"
	"github.com/dicomtk/conquestdb/internal/conquest/cqerror"
)

// NetSender opens real associations over TCP. The zero value is usable.
type NetSender struct{}

var _ Sender = NetSender{}

func (NetSender) Open(ctx context.Context, peer Peer) (Association, apperrors.Error) {
	su, err := netdicom.NewServiceUser(netdicom.ServiceUserParams{
		CalledAETitle:  peer.CalledAETitle,
		CallingAETitle: peer.CallingAETitle,
		SOPClasses:     sopclass.StorageClasses,
	})
	if err != nil {
		return nil, cqerror.ErrTransport.Msg("create service user").Err(err)
	}
	su.Connect(peer.Addr())
	log.Ctx(ctx).Debug().Str("peer", peer.Addr()).Str("called_ae", peer.CalledAETitle).
		Msg("association opened")
	return &netAssociation{su: su}, nil
}

type netAssociation struct {
	su *netdicom.ServiceUser
}

func (a *netAssociation) Store(ctx context.Context, path string) apperrors.Error {
	ds, err := dicom.ReadDataSetFromFile(path, dicom.ReadOptions{})
	if err != nil {
		return cqerror.ErrTransport.Msg("read object for transmit").Err(err)
	}
	if err := a.su.CStore(ds); err != nil {
		return cqerror.ErrTransport.Msg("c-store failed").Err(err)
	}
	return nil
}

func (a *netAssociation) Release() {
	a.su.Release()
}
