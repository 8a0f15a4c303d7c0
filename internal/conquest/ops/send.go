package ops

import (
	"context"
	"path/filepath"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"

	"github.com/dicomtk/conquestdb/internal/common/apperrors"
	"github.com/dicomtk/conquestdb/internal/conquest/cqerror"
	"github.com/dicomtk/conquestdb/internal/conquest/selector"
	"github.com/dicomtk/conquestdb/internal/dimse"
)

const assocOpenAttempts = 3

// Send transmits the selected objects to a peer, one association per key.
// Association setup is retried; a transmit failure on one image does not
// stop the remaining images of the same key.
func (r *Runner) Send(ctx context.Context, set selector.SelectionSet, peer dimse.Peer, sender dimse.Sender) []Outcome {
	outcomes := make([]Outcome, 0, len(set.Keys))
	for _, key := range set.Keys {
		outcomes = append(outcomes, r.sendKey(ctx, set.Kind, key, peer, sender))
	}
	return outcomes
}

func (r *Runner) sendKey(ctx context.Context, kind selector.KeyKind, key string, peer dimse.Peer, sender dimse.Sender) Outcome {
	out := Outcome{Key: key}
	images, err := r.imagesForKey(ctx, kind, key)
	if err != nil {
		out.Err = err
		return out
	}
	if len(images) == 0 {
		return out
	}
	assoc, err := openWithRetry(ctx, sender, peer)
	if err != nil {
		out.Err = err
		return out
	}
	defer assoc.Release()
	for _, img := range images {
		path := filepath.Join(r.DataRoot, filepath.FromSlash(img.objectFile))
		if err := assoc.Store(ctx, path); err != nil {
			log.Ctx(ctx).Warn().Str("sop_instance", img.sopInstanceUID).
				Str("peer", peer.Addr()).Err(err).Msg("transmit failed")
			out.Failed++
			continue
		}
		out.Images++
	}
	return out
}

func openWithRetry(ctx context.Context, sender dimse.Sender, peer dimse.Peer) (dimse.Association, apperrors.Error) {
	var assoc dimse.Association
	err := retry.Do(
		func() error {
			var aerr apperrors.Error
			assoc, aerr = sender.Open(ctx, peer)
			if aerr != nil {
				return aerr
			}
			return nil
		},
		retry.Attempts(assocOpenAttempts),
		retry.Delay(200*time.Millisecond),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, cqerror.ErrTransport.Msg("open association to " + peer.Addr()).Err(err)
	}
	return assoc, nil
}
