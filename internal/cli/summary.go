package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/dicomtk/conquestdb/internal/conquest/summary"
)

func newSummaryCmd() *cobra.Command {
	var orderBy string

	cmd := &cobra.Command{
		Use:   "summary [flags]",
		Short: "Show per-patient series counts by modality",
		Long: `Show one line per patient with series counts broken out by modality
(CT, MR, PT, RTSTRUCT, RTDOSE, RTPLAN).

Examples:
  conquest summary
  conquest summary --orderby CT`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			c, err := openCatalog(ctx)
			if err != nil {
				return err
			}
			defer c.Close(ctx)

			summaries, aerr := summary.SeriesSummary(ctx, c, orderBy)
			if aerr != nil {
				return aerr
			}
			if jsonOutput {
				printJSON(summaries)
				return nil
			}
			return summary.Write(os.Stdout, summaries)
		},
	}
	cmd.Flags().StringVar(&orderBy, "orderby", "", "Order patients by a modality count or 'series'")
	return cmd
}
