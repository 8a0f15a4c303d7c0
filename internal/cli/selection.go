package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dicomtk/conquestdb/internal/conquest/ops"
	"github.com/dicomtk/conquestdb/internal/conquest/selector"
)

// selectionFlags are the shared --series/--query selection flags of the
// fan-out commands.
type selectionFlags struct {
	series []string
	query  string
}

func (f *selectionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.series, "series", nil, "Select a series by SeriesInstanceUID (repeatable)")
	cmd.Flags().StringVar(&f.query, "query", "", "Select through a SQL query projecting SeriesInst or SOPInstanc")
}

func (f *selectionFlags) spec() (selector.Spec, error) {
	switch {
	case len(f.series) > 0 && f.query != "":
		return selector.Spec{}, fmt.Errorf("--series and --query are mutually exclusive")
	case len(f.series) == 1:
		return selector.ByKey(f.series[0]), nil
	case len(f.series) > 1:
		return selector.ByKeys(f.series), nil
	case f.query != "":
		return selector.ByQuery(f.query), nil
	}
	return selector.Spec{}, fmt.Errorf("one of --series or --query is required")
}

func printOutcomes(outcomes []ops.Outcome) {
	if jsonOutput {
		type outcomeRsp struct {
			Key    string `json:"key"`
			Images int    `json:"images"`
			Failed int    `json:"failed"`
			Error  string `json:"error,omitempty"`
		}
		rsp := make([]outcomeRsp, 0, len(outcomes))
		for _, o := range outcomes {
			r := outcomeRsp{Key: o.Key, Images: o.Images, Failed: o.Failed}
			if o.Err != nil {
				r.Error = o.Err.Error()
			}
			rsp = append(rsp, r)
		}
		printJSON(rsp)
		return
	}
	for _, o := range outcomes {
		if o.Ok() {
			okLabel.Printf("%s\n", o.String())
		} else {
			errorLabel.Printf("%s\n", o.String())
		}
	}
}
