package cli

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dicomtk/conquestdb/internal/common/apperrors"
	"github.com/dicomtk/conquestdb/internal/conquest/config"
	"github.com/dicomtk/conquestdb/internal/conquest/cqerror"
	"github.com/dicomtk/conquestdb/internal/conquest/dcm"
	"github.com/dicomtk/conquestdb/internal/conquest/extract"
	"github.com/dicomtk/conquestdb/internal/conquest/store"
	"github.com/dicomtk/conquestdb/internal/dimse"
)

func newListenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Accept inbound DICOM transmissions",
		Long: `Run the DICOM listener. Received objects are stored under the data
tree and, unless disabled in the configuration, indexed into the catalog.
Stops on SIGINT or SIGTERM after draining in-flight receives.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			c, err := openCatalog(ctx)
			if err != nil {
				return err
			}
			defer c.Close(ctx)

			cfg := config.Config()
			listener := dimse.NewListener(dimse.ListenerParams{
				AETitle:        cfg.SCP.AETitle,
				Port:           cfg.SCP.Port,
				DataRoot:       cfg.DataDir,
				WriteToCatalog: cfg.SCP.WriteToCatalog,
			}, catalogIndexer(c, cfg))
			if aerr := listener.Start(ctx); aerr != nil {
				return aerr
			}

			shutdown := make(chan os.Signal, 1)
			signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
			sig := <-shutdown
			log.Ctx(ctx).Info().Str("signal", sig.String()).Msg("shutdown signal received")
			listener.Stop(ctx)
			return nil
		},
	}
}

// catalogIndexer builds the listener's index callback: parse the stored
// file, extract its rows and write them in recompute mode.
func catalogIndexer(c *store.Catalog, cfg *config.ConfigParam) dimse.IndexFunc {
	return func(ctx context.Context, path string) apperrors.Error {
		src, err := dcm.ReadFile(path)
		if err != nil {
			return cqerror.ErrRejectedObject.Msg("parse stored object").Err(err)
		}
		rel, err := filepath.Rel(cfg.DataDir, path)
		if err != nil {
			rel = path
		}
		rows, err := extract.Extract(src, c.Schema(), extract.Options{
			ObjectFile:  filepath.ToSlash(rel),
			ComputeHash: cfg.ComputeHash,
		})
		if err != nil {
			return cqerror.ErrRejectedObject.Err(err)
		}
		_, aerr := c.WriteRows(ctx, rows, store.Recompute)
		return aerr
	}
}
