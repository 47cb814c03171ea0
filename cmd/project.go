package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/BaCuaBan77/Portfolio-generator/internal/models"
	"github.com/BaCuaBan77/Portfolio-generator/internal/output"
)

var (
	projectCategory string
	projectJSON     bool
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Inspect portfolio projects",
	Long:  "List and show the projects stored in projects.json.",
}

var projectListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List projects in display order",
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectListRun()
	},
}

var projectShowCmd = &cobra.Command{
	Use:   "show <id|name>",
	Short: "Show detailed project information",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectShowRun(args[0])
	},
}

func init() {
	projectListCmd.Flags().StringVarP(&projectCategory, "category", "c", "", "Filter by category (professional|personal)")
	projectShowCmd.Flags().BoolVar(&projectJSON, "json", false, "Print the raw projects.json record")

	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectShowCmd)
	rootCmd.AddCommand(projectCmd)
}

func projectListRun() error {
	category := models.ProjectCategory(projectCategory)
	if category != "" && !category.Valid() {
		return fmt.Errorf("invalid category %q: want professional or personal", projectCategory)
	}

	projects, err := getConfigStore().ReadProjects(context.Background())
	if err != nil {
		return err
	}

	table := ui.Table([]string{"ID", "Name", "Category", "Stars", "Language", "Updated"})
	n := 0
	for _, p := range models.SortForDisplay(projects) {
		if category != "" && p.Category != category {
			continue
		}
		n++
		_ = table.Append([]string{
			p.ID,
			output.Cyan(p.Name),
			output.CategoryColor(string(p.Category)),
			fmt.Sprintf("%d", p.Stars),
			p.Language,
			updatedAgo(p.UpdatedAt),
		})
	}

	if n == 0 {
		ui.Info("No projects found. Run 'portfolio sync' to import them from GitHub.")
		return nil
	}
	_ = table.Render()
	return nil
}

func projectShowRun(key string) error {
	projects, err := getConfigStore().ReadProjects(context.Background())
	if err != nil {
		return err
	}
	p, ok := models.FindProject(projects, key)
	if !ok {
		return fmt.Errorf("project not found: %s", key)
	}

	if projectJSON {
		data, err := p.MarshalJSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(ui.Out, string(data))
		return nil
	}

	fmt.Fprintf(ui.Out, "%s\n", output.Cyan(p.Name))
	fmt.Fprintf(ui.Out, "  ID:         %s\n", p.ID)
	fmt.Fprintf(ui.Out, "  Category:   %s\n", output.CategoryColor(string(p.Category)))
	if p.Description != "" {
		fmt.Fprintf(ui.Out, "  Desc:       %s\n", p.Description)
	}
	if p.Language != "" {
		fmt.Fprintf(ui.Out, "  Language:   %s\n", p.Language)
	}
	if p.Stars > 0 {
		fmt.Fprintf(ui.Out, "  Stars:      %d\n", p.Stars)
	}
	if p.GitHubURL != "" {
		fmt.Fprintf(ui.Out, "  GitHub:     %s\n", p.GitHubURL)
	}
	if p.LiveURL != "" {
		fmt.Fprintf(ui.Out, "  Live:       %s\n", p.LiveURL)
	}
	if p.Image != "" {
		fmt.Fprintf(ui.Out, "  Image:      %s\n", p.Image)
	}
	if len(p.Technologies) > 0 {
		fmt.Fprintf(ui.Out, "  Tech:       %s\n", strings.Join(p.Technologies, ", "))
	}
	if len(p.Topics) > 0 {
		fmt.Fprintf(ui.Out, "  Topics:     %s\n", strings.Join(p.Topics, ", "))
	}
	if p.UpdatedAt != "" {
		fmt.Fprintf(ui.Out, "  Updated:    %s\n", updatedAgo(p.UpdatedAt))
	}

	if summary := p.Summary(); summary != "" {
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, summary)
	}
	return nil
}

// updatedAgo renders an RFC 3339 timestamp relative to now, or the raw value
// when it does not parse.
func updatedAgo(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return timeAgo(t)
}

func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	}
}
