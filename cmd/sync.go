package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/BaCuaBan77/Portfolio-generator/internal/output"
	"github.com/BaCuaBan77/Portfolio-generator/internal/refresh"
	"github.com/BaCuaBan77/Portfolio-generator/internal/scheduler"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one GitHub sync now",
	Long: `Fetch the configured user's repositories, rebuild the personal project
list from their READMEs and rewrite projects.json. Professional projects are
kept as they are.

A rate-limit error from GitHub aborts the run and leaves projects.json
untouched. With --dry-run the repositories are still fetched and the
outcomes shown, but nothing is written.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return syncRun(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func syncRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	d := newSyncDeps()
	defer closeHistory()

	res, err := d.service.Sync(ctx, scheduler.TriggerManual)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	printOutcomes(ui, res.Outcomes)
	fmt.Fprintln(ui.Out)
	if res.DryRun {
		ui.DryRunMsg("Would write %d projects (%d professional, %d personal) to %s",
			res.Professional+res.Personal, res.Professional, res.Personal, d.config.Dir)
		return nil
	}
	ui.Success("Wrote %d projects (%d professional, %d personal) from %d repositories in %s",
		res.Professional+res.Personal, res.Professional, res.Personal, res.Total, res.Duration.Round(time.Millisecond))
	ui.Info("added %d, updated %d, skipped %d, failed %d",
		res.Added, res.Updated, res.Skipped, res.Failed)
	ui.VerboseLog("GitHub quota remaining: %s", output.RateLimitColor(d.gh.RateLimit().Remaining))
	return nil
}

// printOutcomes renders one row per repository in processing order.
func printOutcomes(u *output.UI, outcomes []refresh.Outcome) {
	if len(outcomes) == 0 {
		u.Info("No repositories processed")
		return
	}

	table := u.Table([]string{"ID", "REPOSITORY", "OUTCOME", "REASON"})
	for _, o := range outcomes {
		reason := o.Reason
		if o.Err != nil && reason == "" {
			reason = o.Err.Error()
		}
		_ = table.Append([]string{
			strconv.FormatInt(o.RepoID, 10),
			o.RepoName,
			output.OutcomeColor(string(o.Kind)),
			truncate(reason, 60),
		})
	}
	_ = table.Render()
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
