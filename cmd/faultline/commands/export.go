package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DrSkyle/faultline/pkg/engine/impact"
	"github.com/DrSkyle/faultline/pkg/engine/report"
)

func newExportCmd(o *rootOptions) *cobra.Command {
	var (
		format string
		target string
		blast  bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Scan and write the SPOF snapshot to a directory or S3 bucket",
		Example: `  faultline export --demo --format csv --target ./out
  faultline export --target s3://reports/faultline --blast`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.bootstrap(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			if format == "" {
				format = a.Config.Export.Format
			}
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			if target == "" {
				target = a.Config.Export.Target
			}
			ctx := cmd.Context()
			store, err := a.ExportStore(ctx, target)
			if err != nil {
				return err
			}

			snap, _, err := a.Monitor.Scan(ctx)
			if err != nil {
				return err
			}
			keys := []string{}
			key, err := report.PublishSnapshot(ctx, store, f, snap)
			if err != nil {
				return err
			}
			keys = append(keys, key)

			if blast {
				radii := make([]impact.BlastRadius, 0, len(snap.SPOFs))
				for _, e := range snap.SPOFs {
					br, err := a.Analyzer.CalculateBlastRadius(ctx, e.ResourceID, e.ResourceName)
					if err != nil {
						return fmt.Errorf("blast radius of %s: %w", e.ResourceID, err)
					}
					radii = append(radii, *br)
				}
				key, err := report.PublishBlastRadii(ctx, store, f, radii, snap.Timestamp)
				if err != nil {
					return err
				}
				keys = append(keys, key)
			}

			if o.json() {
				return printJSON(cmd.OutOrStdout(), map[string]any{"target": target, "keys": keys})
			}
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s/%s\n", target, k)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "json or csv (default export.format)")
	cmd.Flags().StringVar(&target, "target", "", "directory or s3://bucket/prefix (default export.target)")
	cmd.Flags().BoolVar(&blast, "blast", false, "also export the blast radius of every SPOF")
	return cmd
}
