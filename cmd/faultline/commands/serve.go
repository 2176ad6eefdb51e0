package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/DrSkyle/faultline/internal/app"
	"github.com/DrSkyle/faultline/pkg/api"
)

const trendWindow = 24

func newServeCmd(o *rootOptions) *cobra.Command {
	var (
		addr     string
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with scheduled scans and evidence collection",
		Example: `  faultline serve --addr :8080
  faultline serve --demo --interval 1m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.bootstrap(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if a.Config.Monitor.RestoreOnStart {
				if _, err := a.Monitor.Restore(ctx); err != nil {
					a.Logger.Warn("could not restore previous snapshot", "error", err)
				}
			}
			if interval <= 0 {
				interval = a.Config.Monitor.Interval
			}
			go a.Monitor.Run(ctx, interval)
			go a.RunEvidence(ctx, 0)
			go watchTrends(ctx, a, interval)

			if addr == "" {
				addr = a.Config.API.ListenAddr
			}
			srv := api.NewServer(a.APIDeps(), a.Config.API.Mode, api.WithLogger(a.Logger))
			return srv.Run(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default api.listen_addr)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "scan interval (default monitor.interval)")
	return cmd
}

func watchTrends(ctx context.Context, a *app.App, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.CheckTrends(ctx, trendWindow); err != nil {
				a.Logger.Warn("trend analysis failed", "error", err)
			}
		}
	}
}
