package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/autobuilder/internal/db"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent stage runs",
	Long: `Lists the most recent stage invocations recorded by autobuilder, newest
first. Use --run to show every stage of one pipeline run in execution order.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openHistory()
		if err != nil {
			return err
		}
		defer d.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		runID, _ := cmd.Flags().GetString("run")

		var runs []db.StageRun
		if runID != "" {
			runs, err = d.RunStages(runID)
		} else {
			runs, err = d.RecentRuns(limit)
		}
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			if runs == nil {
				runs = []db.StageRun{}
			}
			data, err := json.MarshalIndent(runs, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal json: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tRUN\tSTAGE\tTRIGGER\tRESULT\tDURATION")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%dms\n",
				r.Timestamp, shortID(r.RunID), r.Stage, r.Trigger, result(r), r.DurationMs)
		}
		return w.Flush()
	},
}

// result summarises how a stage run ended.
func result(r db.StageRun) string {
	switch {
	case r.Cancelled:
		return "cancelled"
	case r.Error != "":
		return "error: " + truncate(r.Error, 40)
	case r.ExitCode == nil:
		return "-"
	case *r.ExitCode == 0:
		return "ok"
	default:
		return "exit " + strconv.Itoa(*r.ExitCode)
	}
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	historyCmd.Flags().Int("limit", 20, "Maximum number of stage runs to show")
	historyCmd.Flags().String("run", "", "Show the stages of one run (full run id)")
	historyCmd.Flags().String("format", "text", "Output format: text or json")
}
