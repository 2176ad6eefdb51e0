package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DrSkyle/faultline/pkg/engine/verify"
)

func newVerifyCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "verify <source-id> <target-id>",
		Short:   "Cross-validate one dependency edge against its evidence",
		Args:    cobra.ExactArgs(2),
		Example: `  faultline verify checkout-api orders-db --demo`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.bootstrap(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			v, err := a.Verifier.CrossValidate(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if o.json() {
				return printJSON(cmd.OutOrStdout(), v)
			}
			renderVerifications(cmd.OutOrStdout(), []verify.Verification{v})
			return nil
		},
	}
}

func newDecayCmd(o *rootOptions) *cobra.Command {
	var (
		rate float64
		days int
	)
	cmd := &cobra.Command{
		Use:   "decay",
		Short: "Lower the confidence of dependencies that have not been seen recently",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.bootstrap(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			if !cmd.Flags().Changed("rate") {
				rate = a.Config.Verifier.DecayRate
			}
			if !cmd.Flags().Changed("days") {
				days = a.Config.Verifier.DecayAfterDays
			}
			if rate < 0 || rate > 1 {
				return fmt.Errorf("rate must be within [0,1], got %g", rate)
			}
			n, err := a.Verifier.ApplyConfidenceDecay(cmd.Context(), rate, days)
			if err != nil {
				return err
			}
			if o.json() {
				return printJSON(cmd.OutOrStdout(), map[string]any{"updated": n, "rate": rate, "days_threshold": days})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "decayed %d dependencies (rate %.2f, older than %d days)\n", n, rate, days)
			return nil
		},
	}
	cmd.Flags().Float64Var(&rate, "rate", 0, "fraction of confidence removed (default verifier.decay_rate)")
	cmd.Flags().IntVar(&days, "days", 0, "only decay edges unseen for this many days (default verifier.decay_after_days)")
	return cmd
}

func newStaleCmd(o *rootOptions) *cobra.Command {
	var maxAge int
	cmd := &cobra.Command{
		Use:   "stale",
		Short: "List dependencies whose evidence is older than the cut-off",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.bootstrap(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			if !cmd.Flags().Changed("max-age-days") {
				maxAge = a.Config.Verifier.StaleAfterDays
			}
			stale, err := a.Verifier.ValidateStaleDependencies(cmd.Context(), maxAge)
			if err != nil {
				return err
			}
			if o.json() {
				return printJSON(cmd.OutOrStdout(), stale)
			}
			if len(stale) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(fmt.Sprintf("No dependencies older than %d days.", maxAge)))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render(fmt.Sprintf("STALE DEPENDENCIES (> %d days)", maxAge)))
			renderVerifications(cmd.OutOrStdout(), stale)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxAge, "max-age-days", 0, "age cut-off in days (default verifier.stale_after_days)")
	return cmd
}
