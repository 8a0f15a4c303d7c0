package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dicomtk/conquestdb/internal/conquest/config"
	"github.com/dicomtk/conquestdb/internal/conquest/server"
	"github.com/dicomtk/conquestdb/internal/dimse"
)

func newServeCmd() *cobra.Command {
	var withSCP bool

	cmd := &cobra.Command{
		Use:   "serve [flags]",
		Short: "Run the catalog HTTP server",
		Long: `Run the admin HTTP server (version, readiness, summary, query and
rebuild endpoints). --with-scp also runs the DICOM listener in the same
process. Stops on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			c, err := openCatalog(ctx)
			if err != nil {
				return err
			}
			defer c.Close(ctx)

			cfg := config.Config()
			s := server.CreateNewServer(c, cfg.DataDir)
			s.MountHandlers()

			srv := &http.Server{
				Addr:              cfg.Server.HostName + ":" + cfg.Server.Port,
				Handler:           s.Router,
				ReadHeaderTimeout: 5 * time.Second,
			}
			serverErrors := make(chan error, 1)
			go func() {
				log.Ctx(ctx).Info().Str("addr", srv.Addr).Msg("server started")
				serverErrors <- srv.ListenAndServe()
			}()

			var listener *dimse.Listener
			if withSCP {
				listener = dimse.NewListener(dimse.ListenerParams{
					AETitle:        cfg.SCP.AETitle,
					Port:           cfg.SCP.Port,
					DataRoot:       cfg.DataDir,
					WriteToCatalog: cfg.SCP.WriteToCatalog,
				}, catalogIndexer(c, cfg))
				if aerr := listener.Start(ctx); aerr != nil {
					return aerr
				}
			}

			stopServer := func() {
				shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					log.Ctx(ctx).Error().Err(err).Msg("could not stop server gracefully")
					srv.Close()
				}
			}

			shutdown := make(chan os.Signal, 1)
			signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

			select {
			case err := <-serverErrors:
				if listener != nil {
					listener.Stop(ctx)
				}
				return fmt.Errorf("server error: %w", err)
			case sig := <-shutdown:
				log.Ctx(ctx).Info().Str("signal", sig.String()).Msg("shutdown signal received")
				if listener != nil {
					listener.Stop(ctx)
				}
				stopServer()
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withSCP, "with-scp", false, "Also run the DICOM listener")
	return cmd
}
