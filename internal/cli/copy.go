package cli

import (
	"github.com/spf13/cobra"

	"github.com/dicomtk/conquestdb/internal/conquest/config"
	"github.com/dicomtk/conquestdb/internal/conquest/ops"
	"github.com/dicomtk/conquestdb/internal/conquest/selector"
)

func newCopyCmd() *cobra.Command {
	var flags selectionFlags
	var dest string
	var flat bool

	cmd := &cobra.Command{
		Use:   "copy [flags]",
		Short: "Copy selected objects to a destination directory",
		Long: `Copy the selected objects byte for byte to a destination root. By
default each object lands in a subdirectory named by its patient key;
--flat puts everything directly under the destination.

Examples:
  conquest copy --series 1.2.840.1.1 --dest /mnt/export
  conquest copy --query "SELECT SeriesInst FROM DICOMseries WHERE Modality='RTDOSE'" --dest /tmp/doses --flat`,
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
			runner := &ops.Runner{Catalog: c, DataRoot: config.Config().DataDir}
			printOutcomes(runner.Copy(ctx, set, dest, !flat))
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&dest, "dest", "", "Destination root directory")
	cmd.Flags().BoolVar(&flat, "flat", false, "Do not create per-patient subdirectories")
	cmd.MarkFlagRequired("dest")
	return cmd
}
