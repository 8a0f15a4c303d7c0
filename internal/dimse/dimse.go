// Package dimse wraps the external DICOM association transport. Everything
// that touches the wire lives here; the rest of the catalog sees only the
// Peer, Sender and Association types, so operations and their tests run
// against fakes.
package dimse

import (
	"context"
	"fmt"

	"github.com/dicomtk/conquestdb/internal/common/apperrors"
)

// Peer identifies the remote endpoint of an association. Both application
// entity titles are required by the handshake.
type Peer struct {
	Host           string `json:"host" validate:"required"`
	Port           int    `json:"port" validate:"required,gt=0,lt=65536"`
	CalledAETitle  string `json:"calledAETitle" validate:"required,max=16"`
	CallingAETitle string `json:"callingAETitle" validate:"required,max=16"`
}

func (p Peer) Addr() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// Sender opens outbound associations.
type Sender interface {
	Open(ctx context.Context, peer Peer) (Association, apperrors.Error)
}

// Association is one negotiated session. Store transmits a single on-disk
// object; Release closes the session and is safe to call after a failed
// Store.
type Association interface {
	Store(ctx context.Context, path string) apperrors.Error
	Release()
}
