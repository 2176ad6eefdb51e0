package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/DrSkyle/faultline/pkg/engine/risk"
	"github.com/DrSkyle/faultline/pkg/engine/timectx"
)

func newRiskCmd(o *rootOptions) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:     "risk <resource-id>",
		Short:   "Score the failure risk of one resource",
		Args:    cobra.ExactArgs(1),
		Example: `  faultline risk orders-db --demo --at 2024-11-29T15:00:00Z`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := parseTime(at)
			if err != nil {
				return err
			}
			a, err := o.bootstrap(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			r, err := a.Store.GetResource(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			assessment := a.Scorer.Assess(r)
			adj := a.Adjuster.Adjust(assessment.Score, ts)

			if o.json() {
				return printJSON(cmd.OutOrStdout(), struct {
					Assessment  risk.Assessment    `json:"assessment"`
					TimeContext timectx.Adjustment `json:"time_context"`
				}{assessment, adj})
			}
			renderAssessment(cmd.OutOrStdout(), assessment, &adj)
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "evaluate the time context at this RFC 3339 instant (default now)")
	return cmd
}

func newBlastCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "blast <resource-id>",
		Short:   "Show what fails if a resource fails",
		Args:    cobra.ExactArgs(1),
		Example: `  faultline blast orders-db --demo`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.bootstrap(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			ctx := cmd.Context()
			r, err := a.Store.GetResource(ctx, args[0])
			if err != nil {
				return err
			}
			br, err := a.Analyzer.CalculateBlastRadius(ctx, r.ID, r.Name)
			if err != nil {
				return err
			}
			if o.json() {
				return printJSON(cmd.OutOrStdout(), br)
			}
			renderBlast(cmd.OutOrStdout(), br)
			return nil
		},
	}
}

func newWindowCmd(o *rootOptions) *cobra.Command {
	var (
		from  string
		days  int
		limit int
	)
	cmd := &cobra.Command{
		Use:   "window",
		Short: "Suggest low-risk deployment windows",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseTime(from)
			if err != nil {
				return err
			}
			a, err := o.bootstrap(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			windows := a.Adjuster.SuggestDeploymentWindows(start, days)
			if limit > 0 && len(windows) > limit {
				windows = windows[:limit]
			}
			if o.json() {
				return printJSON(cmd.OutOrStdout(), windows)
			}
			fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render("DEPLOYMENT WINDOWS"))
			t := newTable("START", "END", "DAY", "WINDOW", "MULTIPLIER")
			for _, w := range windows {
				t.Row(w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339), string(w.DayType), string(w.TimeWindow), fmt.Sprintf("%.2f", w.Multiplier))
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "search start, RFC 3339 (default now)")
	cmd.Flags().IntVar(&days, "days", 7, "days ahead to search")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum windows to print")
	return cmd
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now(), nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC 3339", raw)
	}
	return ts, nil
}
