package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dicomtk/conquestdb/internal/conquest/config"
	"github.com/dicomtk/conquestdb/internal/conquest/ops"
	"github.com/dicomtk/conquestdb/internal/conquest/selector"
)

func newDeleteCmd() *cobra.Command {
	var flags selectionFlags
	var patient string
	var removeFiles bool

	cmd := &cobra.Command{
		Use:   "delete [flags]",
		Short: "Remove selected series from the catalog",
		Long: `Remove catalog rows for the selected series. Files on disk are kept
unless --remove-files is given. Studies and patients left without children
are removed as well. --patient removes one patient key from every table
directly, without touching files.

Examples:
  # Remove one series, orphaning its files
  conquest delete --series 1.2.840.1.1

  # Remove two series in one run
  conquest delete --series 1.2.840.1.1 --series 1.2.840.1.2

  # Remove all CT series and their files
  conquest delete --query "SELECT SeriesInst FROM DICOMseries WHERE Modality='CT'" --remove-files

  # Remove a patient from the catalog
  conquest delete --patient 7654321`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			c, err := openCatalog(ctx)
			if err != nil {
				return err
			}
			defer c.Close(ctx)
			runner := &ops.Runner{Catalog: c, DataRoot: config.Config().DataDir}

			if patient != "" {
				if len(flags.series) > 0 || flags.query != "" {
					return fmt.Errorf("--patient cannot be combined with --series or --query")
				}
				n, aerr := runner.DeletePatient(ctx, patient)
				if aerr != nil {
					return aerr
				}
				if jsonOutput {
					printJSON(map[string]any{"patient": patient, "rows": n})
					return nil
				}
				okLabel.Printf("removed %d rows for patient %s\n", n, patient)
				return nil
			}

			spec, err := flags.spec()
			if err != nil {
				return err
			}
			set, aerr := selector.Resolve(ctx, c, spec)
			if aerr != nil {
				return aerr
			}
			printOutcomes(runner.Delete(ctx, set, removeFiles))
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&patient, "patient", "", "Remove one patient key from every table")
	cmd.Flags().BoolVar(&removeFiles, "remove-files", false, "Also remove the objects from disk")
	return cmd
}
