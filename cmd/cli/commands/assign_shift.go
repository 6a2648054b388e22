package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ppamtools/shift-assigner/pkg/core/services"
)

// AssignShiftCmd creates the assignShift command
func AssignShiftCmd(app *AppContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "assignShift <shift_id>",
		Short: "Fill the open slots of a single shift",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			shiftID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("shift_id must be a number: %w", err)
			}

			result := app.Engine.AssignShift(app.Ctx, services.ShiftID(shiftID))

			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
			} else {
				renderResult(cmd.OutOrStdout(), result)
				if result.PipelineFile != "" {
					dimColor.Fprintf(cmd.OutOrStdout(), "Pipeline: %s\n", result.PipelineFile)
				}
			}

			if !result.OK {
				return fmt.Errorf("shift %d failed: %s", shiftID, result.Error)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}
