package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/DrSkyle/faultline/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (commit %s, %s %s/%s)\n",
				version.AppName, version.Current, version.Commit, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
