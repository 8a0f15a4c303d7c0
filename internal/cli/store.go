package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/dicomtk/conquestdb/internal/conquest/config"
	"github.com/dicomtk/conquestdb/internal/conquest/rebuild"
)

func newStoreCmd() *cobra.Command {
	var remove bool

	cmd := &cobra.Command{
		Use:   "store PATH [flags]",
		Short: "Place loose DICOM files into the data tree and index them",
		Long: `Copy a loose DICOM file, or every file under a directory, into the
patient tree as <data_dir>/<PatientID>/<SOPInstanceUID>.dcm and index it.
--remove deletes the source after a successful store.

Examples:
  conquest store /tmp/incoming/img.dcm
  conquest store /tmp/incoming --remove`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			c, err := openCatalog(ctx)
			if err != nil {
				return err
			}
			defer c.Close(ctx)
			pipeline := rebuild.New(c, config.Config().DataDir)

			info, err := os.Stat(args[0])
			if err != nil {
				return err
			}
			if info.IsDir() {
				stored, aerr := pipeline.StoreDirectory(ctx, args[0], remove)
				if aerr != nil {
					return aerr
				}
				okLabel.Printf("stored %d objects\n", stored)
				return nil
			}
			final, aerr := pipeline.StoreFile(ctx, args[0], remove)
			if aerr != nil {
				return aerr
			}
			okLabel.Println("stored " + final)
			return nil
		},
	}
	cmd.Flags().BoolVar(&remove, "remove", false, "Remove source files after a successful store")
	return cmd
}
