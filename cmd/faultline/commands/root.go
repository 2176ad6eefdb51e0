// Package commands implements the faultline CLI.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/DrSkyle/faultline/internal/app"
	"github.com/DrSkyle/faultline/pkg/config"
	"github.com/DrSkyle/faultline/pkg/version"
)

type rootOptions struct {
	cfgFile  string
	demo     bool
	logLevel string
	output   string
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	o := &rootOptions{}
	root := &cobra.Command{
		Use:   "faultline",
		Short: "Risk and dependency-impact analysis",
		Long: `Faultline - Risk & Dependency-Impact Analysis

Score. Trace the blast radius. Catch the single points of failure.`,
		Version:       version.Current,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch o.output {
			case "text", "json":
				return nil
			}
			return fmt.Errorf("unknown output %q: want text or json", o.output)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&o.cfgFile, "config", "c", "", "config file (default $HOME/.faultline/faultline.yaml or ./faultline.yaml)")
	flags.BoolVar(&o.demo, "demo", false, "analyze the built-in demo topology")
	flags.StringVar(&o.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	flags.StringVarP(&o.output, "output", "o", "text", "output format: text or json")

	root.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		renderHelp(cmd)
	})

	root.AddCommand(
		newScanCmd(o),
		newServeCmd(o),
		newRiskCmd(o),
		newBlastCmd(o),
		newVerifyCmd(o),
		newDecayCmd(o),
		newStaleCmd(o),
		newWindowCmd(o),
		newPredictCmd(o),
		newWatchCmd(o),
		newExportCmd(o),
		newVersionCmd(),
		newCompletionCmd(),
	)
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context) int {
	root := NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), danger.Render("error: ")+err.Error())
		if errors.Is(err, config.ErrInvalidConfig) {
			return 2
		}
		return 1
	}
	return 0
}

// bootstrap loads configuration and builds the engines.
func (o *rootOptions) bootstrap(cmd *cobra.Command, opts ...app.Option) (*app.App, error) {
	cfg, err := config.Load(o.cfgFile)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
		if err := config.Validate(cfg); err != nil {
			return nil, err
		}
	}
	base := []app.Option{
		app.WithDemo(o.demo),
		app.WithLogger(app.NewLogger(cfg.Log, cmd.ErrOrStderr())),
	}
	a, err := app.New(cmd.Context(), cfg, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(a.Logger)
	return a, nil
}

func (o *rootOptions) json() bool { return o.output == "json" }

func closeApp(a *app.App) {
	if err := a.Close(context.Background()); err != nil {
		a.Logger.Warn("shutdown incomplete", "error", err)
	}
}

func renderHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	flagStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))

	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("FAULTLINE %s", version.Current)))
	if cmd.Long != "" {
		fmt.Fprintln(out, cmd.Long)
	} else {
		fmt.Fprintln(out, cmd.Short)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, titleStyle.Render("USAGE"))
	fmt.Fprintf(out, "  %s\n\n", cmd.UseLine())

	if cmd.HasAvailableSubCommands() {
		fmt.Fprintln(out, titleStyle.Render("COMMANDS"))
		for _, c := range cmd.Commands() {
			if c.IsAvailableCommand() {
				fmt.Fprintf(out, "  %-12s %s\n", c.Name(), c.Short)
			}
		}
		fmt.Fprintln(out)
	}

	if cmd.Example != "" {
		fmt.Fprintln(out, titleStyle.Render("EXAMPLES"))
		fmt.Fprintln(out, cmd.Example)
		fmt.Fprintln(out)
	}

	fmt.Fprintln(out, titleStyle.Render("FLAGS"))
	printFlags(out, flagStyle, cmd.LocalFlags())
	if cmd.HasAvailableInheritedFlags() {
		printFlags(out, flagStyle, cmd.InheritedFlags())
	}
	fmt.Fprintln(out)
}

func printFlags(out io.Writer, style lipgloss.Style, fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		line := fmt.Sprintf("  --%-16s %s", f.Name, f.Usage)
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "[]" {
			line += fmt.Sprintf(" (default %s)", f.DefValue)
		}
		fmt.Fprintln(out, style.Render(line))
	})
}
