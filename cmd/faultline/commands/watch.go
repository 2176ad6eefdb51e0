package commands

import (
	"context"
	"io"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/DrSkyle/faultline/internal/app"
	"github.com/DrSkyle/faultline/pkg/tui"
)

func newWatchCmd(o *rootOptions) *cobra.Command {
	var (
		interval time.Duration
		refresh  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live terminal view of the SPOF monitor",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Logs would corrupt the alternate screen.
			quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
			a, err := o.bootstrap(cmd, app.WithLogger(quiet))
			if err != nil {
				return err
			}
			defer closeApp(a)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if interval <= 0 {
				interval = a.Config.Monitor.Interval
			}
			go a.Monitor.Run(ctx, interval)

			p := tea.NewProgram(tui.NewModel(a.Monitor, refresh), tea.WithAltScreen(), tea.WithContext(ctx))
			_, err = p.Run()
			return err
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "scan interval (default monitor.interval)")
	cmd.Flags().DurationVar(&refresh, "refresh", 2*time.Second, "screen refresh interval")
	return cmd
}
