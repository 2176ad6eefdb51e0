package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/DrSkyle/faultline/pkg/engine/accuracy"
)

func newPredictCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Record failure predictions and score them against outcomes",
		Long: `Record failure predictions and score them against outcomes.

Predictions persist only with predictions.backend set to dynamodb.`,
	}
	cmd.AddCommand(newPredictRecordCmd(o), newPredictValidateCmd(o), newPredictListCmd(o), newPredictAccuracyCmd(o))
	return cmd
}

func newPredictRecordCmd(o *rootOptions) *cobra.Command {
	var in accuracy.Input
	cmd := &cobra.Command{
		Use:     "record",
		Short:   "Record a failure prediction",
		Example: `  faultline predict record --resource orders-db --probability 0.8 --model baseline`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.bootstrap(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			p, err := a.Tracker.RecordPrediction(cmd.Context(), in)
			if err != nil {
				return err
			}
			if o.json() {
				return printJSON(cmd.OutOrStdout(), p)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recorded prediction %s for %s (p=%.2f)\n", p.ID, p.ResourceID, p.FailureProbability)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.ResourceID, "resource", "", "resource id")
	cmd.Flags().Float64Var(&in.FailureProbability, "probability", 0, "predicted failure probability in [0,1]")
	cmd.Flags().StringVar(&in.Model, "model", "", "name of the predicting model")
	cmd.Flags().StringVar(&in.Horizon, "horizon", "", "prediction horizon, e.g. 24h")
	cmd.Flags().StringVar(&in.Notes, "notes", "", "free-form notes")
	_ = cmd.MarkFlagRequired("resource")
	return cmd
}

func newPredictValidateCmd(o *rootOptions) *cobra.Command {
	var outcome string
	cmd := &cobra.Command{
		Use:   "validate <prediction-id>",
		Short: "Attach the observed outcome to a prediction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actual, err := accuracy.ParseOutcome(outcome)
			if err != nil {
				return err
			}
			a, err := o.bootstrap(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			p, err := a.Tracker.ValidatePrediction(cmd.Context(), args[0], actual)
			if err != nil {
				return err
			}
			if o.json() {
				return printJSON(cmd.OutOrStdout(), p)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "prediction %s validated: %s\n", p.ID, p.OutcomeType)
			return nil
		},
	}
	cmd.Flags().StringVar(&outcome, "outcome", "", "observed outcome: failed or no_failure")
	_ = cmd.MarkFlagRequired("outcome")
	return cmd
}

func newPredictListCmd(o *rootOptions) *cobra.Command {
	var (
		resourceID string
		status     string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded predictions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.bootstrap(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			list, err := a.Tracker.ListPredictions(cmd.Context(), accuracy.Filter{ResourceID: resourceID, Status: accuracy.Status(status)})
			if err != nil {
				return err
			}
			if o.json() {
				return printJSON(cmd.OutOrStdout(), list)
			}
			t := newTable("ID", "RESOURCE", "PROBABILITY", "STATUS", "OUTCOME", "CREATED")
			for _, p := range list {
				t.Row(p.ID, p.ResourceID, fmt.Sprintf("%.2f", p.FailureProbability), string(p.Status), string(p.OutcomeType), p.CreatedAt.Format(time.RFC3339))
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return nil
		},
	}
	cmd.Flags().StringVar(&resourceID, "resource", "", "only this resource")
	cmd.Flags().StringVar(&status, "status", "", "pending or validated")
	return cmd
}

func newPredictAccuracyCmd(o *rootOptions) *cobra.Command {
	var (
		resourceID string
		since      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "accuracy",
		Short: "Score validated predictions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.bootstrap(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			f := accuracy.Filter{ResourceID: resourceID}
			if since > 0 {
				f.Since = time.Now().Add(-since)
			}
			report, err := a.Tracker.GetAccuracyMetrics(cmd.Context(), f)
			if err != nil {
				return err
			}
			if o.json() {
				return printJSON(cmd.OutOrStdout(), report)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render("PREDICTION ACCURACY"))
			field(out, "Validated", report.ValidatedCount)
			field(out, "Pending", report.PendingCount)
			field(out, "Precision", fmt.Sprintf("%.4f", report.Metrics.Precision))
			field(out, "Recall", fmt.Sprintf("%.4f", report.Metrics.Recall))
			field(out, "Accuracy", fmt.Sprintf("%.4f", report.Metrics.Accuracy))
			return nil
		},
	}
	cmd.Flags().StringVar(&resourceID, "resource", "", "only this resource")
	cmd.Flags().DurationVar(&since, "since", 0, "only predictions recorded within this duration")
	return cmd
}
