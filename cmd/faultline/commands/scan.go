package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DrSkyle/faultline/internal/app"
	"github.com/DrSkyle/faultline/pkg/engine/spof"
)

func newScanCmd(o *rootOptions) *cobra.Command {
	var collect bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Detect single points of failure once",
		Long: `Run one SPOF scan over the topology and print the result.

With --collect the configured evidence sources run first.`,
		Example: `  faultline scan --demo
  faultline scan --collect -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.bootstrap(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			snap, changes, err := runScan(cmd, a, collect)
			if err != nil {
				return err
			}
			if o.json() {
				return printJSON(cmd.OutOrStdout(), map[string]any{"snapshot": snap, "changes": changes})
			}
			renderSnapshot(cmd.OutOrStdout(), snap, changes)
			return nil
		},
	}
	cmd.Flags().BoolVar(&collect, "collect", false, "collect dependency evidence before scanning")
	return cmd
}

// runScan optionally restores the last snapshot and collects evidence, then scans.
func runScan(cmd *cobra.Command, a *app.App, collect bool) (spof.Snapshot, []spof.Change, error) {
	ctx := cmd.Context()
	if a.Config.Monitor.RestoreOnStart {
		if _, err := a.Monitor.Restore(ctx); err != nil {
			a.Logger.Warn("could not restore previous snapshot", "error", err)
		}
	}
	if collect {
		res, err := a.CollectEvidence(ctx)
		if err != nil {
			a.Logger.Warn("evidence collection incomplete", "error", err)
		}
		for src, n := range res.Recorded {
			fmt.Fprintf(cmd.ErrOrStderr(), "collected %d edges from %s\n", n, src)
		}
	}
	return a.Monitor.Scan(ctx)
}
