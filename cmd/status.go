package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/BaCuaBan77/Portfolio-generator/internal/models"
	"github.com/BaCuaBan77/Portfolio-generator/internal/output"
	"github.com/BaCuaBan77/Portfolio-generator/internal/store"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show sync history",
	Long: `Show recent sync runs from the history database.

Without arguments, shows a summary table of the latest runs followed by the
per-repository outcomes of the most recent one. With a run ID, shows that
run's outcomes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return statusRunRun(args[0])
		}
		return statusOverviewRun()
	},
}

func init() {
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "l", 10, "Number of runs to show")
	rootCmd.AddCommand(statusCmd)
}

func statusOverviewRun() error {
	h, err := getHistory()
	if err != nil {
		return err
	}
	defer closeHistory()
	ctx := context.Background()

	runs, err := h.ListSyncRuns(ctx, statusLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		ui.Info("No sync runs recorded. Run 'portfolio sync' or 'portfolio serve'.")
		return nil
	}

	table := ui.Table([]string{"Run", "Trigger", "Status", "Repos", "Added", "Updated", "Skipped", "Failed", "Started", "Took"})
	for _, r := range runs {
		_ = table.Append([]string{
			r.ID,
			r.Trigger,
			output.RunStatusColor(string(r.Status)),
			strconv.Itoa(r.ReposTotal),
			strconv.Itoa(r.Added),
			strconv.Itoa(r.Updated),
			strconv.Itoa(r.Skipped),
			strconv.Itoa(r.Failed),
			timeAgo(r.StartedAt),
			runDuration(r),
		})
	}
	_ = table.Render()

	latest := runs[0]
	if latest.Error != "" {
		fmt.Fprintln(ui.Out)
		ui.Error("Last run failed: %s", latest.Error)
	}
	fmt.Fprintln(ui.Out)
	return printRunOutcomes(ctx, h, latest.ID)
}

func statusRunRun(id string) error {
	h, err := getHistory()
	if err != nil {
		return err
	}
	defer closeHistory()
	ctx := context.Background()

	run, err := h.GetSyncRun(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s\n", output.Cyan(run.ID))
	fmt.Fprintf(ui.Out, "  Trigger:    %s\n", run.Trigger)
	fmt.Fprintf(ui.Out, "  Status:     %s\n", output.RunStatusColor(string(run.Status)))
	fmt.Fprintf(ui.Out, "  Started:    %s\n", run.StartedAt.Local().Format(time.DateTime))
	fmt.Fprintf(ui.Out, "  Took:       %s\n", runDuration(run))
	fmt.Fprintf(ui.Out, "  Projects:   %d professional, %d personal\n", run.Professional, run.Personal)
	if run.Error != "" {
		fmt.Fprintf(ui.Out, "  Error:      %s\n", output.Red(run.Error))
	}
	fmt.Fprintln(ui.Out)
	return printRunOutcomes(ctx, h, run.ID)
}

func printRunOutcomes(ctx context.Context, h store.HistoryStore, runID string) error {
	outcomes, err := h.ListRepoOutcomes(ctx, runID)
	if err != nil {
		return err
	}
	if len(outcomes) == 0 {
		ui.Info("No repository outcomes recorded for run %s", runID)
		return nil
	}

	table := ui.Table([]string{"ID", "Repository", "Outcome", "Reason"})
	for _, o := range outcomes {
		_ = table.Append([]string{
			strconv.FormatInt(o.RepoID, 10),
			o.RepoName,
			output.OutcomeColor(string(o.Outcome)),
			truncate(o.Reason, 60),
		})
	}
	_ = table.Render()
	return nil
}

func runDuration(r *models.SyncRun) string {
	if r.FinishedAt == nil {
		return "-"
	}
	return r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
}
