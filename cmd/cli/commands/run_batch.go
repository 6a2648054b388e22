package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppamtools/shift-assigner/pkg/core/services"
	"github.com/ppamtools/shift-assigner/pkg/core/timeutil"
)

type batchFlags struct {
	daysAhead int
	from      string
	to        string
	maxShifts int
	asJSON    bool
}

func (f batchFlags) request() (services.BatchRequest, error) {
	var req services.BatchRequest
	if (f.from == "") != (f.to == "") {
		return req, fmt.Errorf("--from and --to must be given together")
	}
	if f.from != "" && f.daysAhead > 0 {
		return req, fmt.Errorf("--days-ahead cannot be combined with --from/--to")
	}

	if f.from != "" {
		from, err := timeutil.ParseDate(f.from)
		if err != nil {
			return req, fmt.Errorf("invalid --from: %w", err)
		}
		to, err := timeutil.ParseDate(f.to)
		if err != nil {
			return req, fmt.Errorf("invalid --to: %w", err)
		}
		req.From, req.To = &from, &to
	}

	req.DaysAhead = f.daysAhead
	req.MaxShifts = f.maxShifts
	return req, nil
}

// RunBatchCmd creates the runBatch command
func RunBatchCmd(app *AppContext) *cobra.Command {
	var flags batchFlags

	cmd := &cobra.Command{
		Use:   "runBatch",
		Short: "Assign every open shift in a date range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request()
			if err != nil {
				return err
			}

			result := app.Engine.RunBatch(app.Ctx, req)

			if flags.asJSON {
				if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
			} else {
				renderBatch(cmd.OutOrStdout(), result)
			}

			if !result.OK {
				return fmt.Errorf("batch %s finished with errors", result.RunID)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&flags.daysAhead, "days-ahead", 0, "Horizon in days from today (defaults to bot.daysAhead)")
	cmd.Flags().StringVar(&flags.from, "from", "", "First shift date, YYYY-MM-DD")
	cmd.Flags().StringVar(&flags.to, "to", "", "Last shift date, YYYY-MM-DD")
	cmd.Flags().IntVar(&flags.maxShifts, "max-shifts", 0, "Cap on shifts processed (defaults to bot.maxAssignPerRun)")
	cmd.Flags().BoolVar(&flags.asJSON, "json", false, "Print the result as JSON")
	return cmd
}
