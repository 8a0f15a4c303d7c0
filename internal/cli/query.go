package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/dicomtk/conquestdb/internal/conquest/summary"
)

func newQueryCmd() *cobra.Command {
	var csvOut string

	cmd := &cobra.Command{
		Use:   "query SQL [flags]",
		Short: "Run a SQL query against the catalog",
		Long: `Run a free-form SQL query against the catalog and print the result.
--csv writes the full projection to a CSV file instead.

Examples:
  conquest query "SELECT PatientID, PatientNam FROM DICOMpatients"
  conquest query "SELECT * FROM v_series" --csv series.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			c, err := openCatalog(ctx)
			if err != nil {
				return err
			}
			defer c.Close(ctx)

			if csvOut != "" {
				f, err := os.Create(csvOut)
				if err != nil {
					return err
				}
				defer f.Close()
				if aerr := summary.ExportCSV(ctx, c, f, args[0]); aerr != nil {
					return aerr
				}
				return nil
			}
			if aerr := summary.ExportCSV(ctx, c, os.Stdout, args[0]); aerr != nil {
				return aerr
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&csvOut, "csv", "", "Write the result to this CSV file")
	return cmd
}
