package cli

import (
	"github.com/spf13/cobra"

	"github.com/dicomtk/conquestdb/internal/conquest/config"
	"github.com/dicomtk/conquestdb/internal/conquest/ops"
	"github.com/dicomtk/conquestdb/internal/conquest/selector"
	"github.com/dicomtk/conquestdb/internal/dimse"
)

func newSendCmd() *cobra.Command {
	var flags selectionFlags
	var peer dimse.Peer

	cmd := &cobra.Command{
		Use:   "send [flags]",
		Short: "Transmit selected objects to a remote DICOM node",
		Long: `Open one association per selected key and c-store every image under
it. A failed image does not stop the remaining images of the same key.

Examples:
  conquest send --series 1.2.840.1.1 --host pacs.local --port 104 --called-ae PACS`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			spec, err := flags.spec()
			if err != nil {
				return err
			}
			c, err := openCatalog(ctx)
			if err != nil {
				return err
			}
			defer c.Close(ctx)

			set, aerr := selector.Resolve(ctx, c, spec)
			if aerr != nil {
				return aerr
			}
			if peer.CallingAETitle == "" {
				peer.CallingAETitle = config.Config().SCP.AETitle
			}
			runner := &ops.Runner{Catalog: c, DataRoot: config.Config().DataDir}
			printOutcomes(runner.Send(ctx, set, peer, dimse.NetSender{}))
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&peer.Host, "host", "", "Remote host")
	cmd.Flags().IntVar(&peer.Port, "port", 104, "Remote port")
	cmd.Flags().StringVar(&peer.CalledAETitle, "called-ae", "", "Remote application entity title")
	cmd.Flags().StringVar(&peer.CallingAETitle, "calling-ae", "", "Local application entity title (defaults to the configured scp.ae_title)")
	cmd.MarkFlagRequired("host")
	cmd.MarkFlagRequired("called-ae")
	return cmd
}
