package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dicomtk/conquestdb/internal/conquest/config"
	"github.com/dicomtk/conquestdb/internal/conquest/rebuild"
)

func newRebuildCmd() *cobra.Command {
	var patient string
	var force bool

	cmd := &cobra.Command{
		Use:   "rebuild [flags]",
		Short: "Index the data tree into the catalog",
		Long: `Walk the data tree one patient directory at a time and index every
object. By default patients that already have a catalog record are skipped;
--force recomputes everything.

Examples:
  # Index new patients only
  conquest rebuild

  # Recompute the whole catalog
  conquest rebuild --force

  # Reindex one patient
  conquest rebuild --patient 7654321 --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			c, err := openCatalog(ctx)
			if err != nil {
				return err
			}
			defer c.Close(ctx)

			cfg := config.Config()
			opts := rebuild.Options{
				Patient:     patient,
				ComputeHash: cfg.ComputeHash,
			}
			if force {
				opts.Policy = rebuild.Force
			}
			res, aerr := rebuild.New(c, cfg.DataDir).Rebuild(ctx, opts)
			if aerr != nil {
				return aerr
			}
			if jsonOutput {
				printJSON(res)
				return nil
			}
			okLabel.Printf("indexed %d objects (%d patients", res.Processed, res.Patients)
			fmt.Printf(", %d patients skipped, %d objects skipped, %d failed)\n",
				res.PatientsSkipped, res.Skipped, res.Failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&patient, "patient", "", "Restrict the rebuild to one patient directory")
	cmd.Flags().BoolVar(&force, "force", false, "Recompute every object regardless of prior state")
	return cmd
}
