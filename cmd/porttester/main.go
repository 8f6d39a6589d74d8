// cmd/porttester/main.go
// Outbound port tester - main entry point

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/aspnmy/porttester/internal/app"
	"github.com/aspnmy/porttester/internal/core"
	"github.com/aspnmy/porttester/internal/output"
	"github.com/aspnmy/porttester/internal/prober"
	"github.com/aspnmy/porttester/internal/scanner"
	"github.com/aspnmy/porttester/pkg/logger"
	"github.com/aspnmy/porttester/pkg/portrange"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", describe(err))
		os.Exit(1)
	}
}

// describe keeps an aborted run clearly apart from a run that found nothing
func describe(err error) string {
	switch {
	case errors.Is(err, scanner.ErrInterrupted):
		return "port test interrupted, no result: " + err.Error()
	case errors.Is(err, core.ErrInvalidConfig):
		return err.Error()
	default:
		return "port test failed: " + err.Error()
	}
}

// flagKeys maps flag names to configuration keys
var flagKeys = map[string]string{
	"protocol":     "target.protocol",
	"host":         "target.host",
	"path":         "target.path",
	"concurrent":   "probe.concurrent",
	"timeout":      "probe.timeout",
	"fromport":     "range.from",
	"toport":       "range.to",
	"range":        "range",
	"debug":        "output.debug",
	"list-blocked": "output.list_blocked",
	"format":       "output.format",
	"outcomes":     "output.outcomes_file",
	"no-progress":  "output.progress",
	"no-color":     "output.color",
	"verbose":      "log.level",
	"log-format":   "log.format",
	"log-file":     "log.file",
}

func newRootCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "porttester",
		Short: "Find which outbound TCP ports this network lets through",
		Long: `Probe every port of a range on a cooperative test server that answers
on all ports (portquiz.net by default) and list the ports that got an answer.

Configuration priority: defaults < --config file < PORTTEST_ env < flags.`,
		Example: `  porttester -N 200
  porttester -N 500 -r 1-1024 -t 5 -B
  porttester -N 100 --protocol tcp --host portquiz.net -f json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := overridesFrom(cmd.Flags())
			if err != nil {
				return err
			}

			cfg, err := core.Load(configFile, overrides)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.String("protocol", "http", "Probe protocol (http, https, tcp)")
	flags.String("host", "portquiz.net", "Test server answering on every port")
	flags.String("path", "", "Request path appended to every URL")
	flags.IntP("concurrent", "N", 0, "Max probes in flight (required)")
	flags.IntP("timeout", "t", 120, "Per-probe timeout in seconds, 0 = none")
	flags.IntP("fromport", "m", portrange.MinPort, "First port of the range")
	flags.IntP("toport", "M", portrange.MaxPort, "Last port of the range")
	flags.StringP("range", "r", "", `Port range "FROM-TO" or "PORT", overrides -m/-M`)
	flags.BoolP("debug", "d", false, "Print the open ports after every completion")
	flags.BoolP("list-blocked", "B", false, "List the ports that did not answer instead")
	flags.StringP("format", "f", "list", "Result format (list, table, json)")
	flags.String("outcomes", "", "Write every probe outcome to this JSONL file")
	flags.Bool("no-progress", false, "Disable the progress bar")
	flags.Bool("no-color", false, "Disable colored output")
	flags.BoolP("verbose", "v", false, "Verbose logging (debug level)")
	flags.String("log-format", "console", "Log format (console, json)")
	flags.String("log-file", "", "Write logs to this file instead of stderr")
	flags.StringVar(&configFile, "config", "", "Config file path (yaml)")

	cmd.AddCommand(newVersionCmd())
	return cmd
}

// overridesFrom turns explicitly set flags into configuration overrides, so
// unset flags never shadow the config file or the environment.
func overridesFrom(flags *pflag.FlagSet) (map[string]interface{}, error) {
	overrides := make(map[string]interface{})
	var (
		err       error
		rangeFlag *pflag.Flag
	)

	flags.Visit(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || err != nil {
			return
		}
		value := f.Value.String()

		switch f.Name {
		case "timeout":
			secs, convErr := strconv.Atoi(value)
			if convErr != nil {
				err = fmt.Errorf("%w: timeout %q", core.ErrInvalidConfig, value)
				return
			}
			overrides[key] = fmt.Sprintf("%ds", secs)
		case "range":
			rangeFlag = f
		case "no-progress", "no-color":
			on, _ := strconv.ParseBool(value)
			overrides[key] = !on
		case "verbose":
			if on, _ := strconv.ParseBool(value); on {
				overrides[key] = "debug"
			}
		default:
			overrides[key] = value
		}
	})
	if err != nil {
		return nil, err
	}

	// applied last so it wins over -m/-M whatever the visit order
	if rangeFlag != nil {
		r, parseErr := portrange.Parse(rangeFlag.Value.String())
		if parseErr != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrInvalidConfig, parseErr)
		}
		overrides["range.from"] = r.From
		overrides["range.to"] = r.To
	}
	return overrides, nil
}

// run wires the tester from cfg and executes one port test
func run(ctx context.Context, cfg *core.Config, stdout io.Writer) error {
	if err := logger.Init(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	r := cfg.PortRange()
	if size := portrange.CheckSize(r, cfg.Probe.Concurrent, cfg.Probe.Timeout); size.Warning != "" {
		logger.Warn("Large port range",
			logger.String("warning", size.Warning),
			logger.Int("ports", size.Total),
			logger.Duration("worst_case", size.WorstCase),
		)
	}

	p, err := prober.Get(cfg.Target.Protocol, prober.Options{Timeout: cfg.Probe.Timeout})
	if err != nil {
		return err
	}

	var outcomes *output.OutcomeWriter
	if cfg.Output.OutcomesFile != "" {
		outcomes, err = output.NewOutcomeFile(cfg.Output.OutcomesFile)
		if err != nil {
			p.Close()
			return fmt.Errorf("failed to create outcomes file: %w", err)
		}
	}

	tester := app.NewTester(app.TesterDeps{
		Config:    cfg,
		Prober:    p,
		Reporter:  newReporter(cfg, stdout),
		Presenter: output.NewPresenter(cfg.Output.Format, cfg.Output.Color, stdout),
		Outcomes:  outcomes,
	})
	defer func() {
		if err := tester.Close(); err != nil {
			logger.Error("Failed to release resources", logger.Err(err))
		}
	}()

	_, err = tester.Run(ctx)
	return err
}

// newReporter builds the progress output. JSON results own stdout, so
// progress moves to stderr for that format.
func newReporter(cfg *core.Config, stdout io.Writer) output.ProgressReporter {
	w := stdout
	if cfg.Output.Format == "json" {
		w = os.Stderr
	}

	var reporters []output.ProgressReporter
	if cfg.Output.Progress {
		interactive, cols := false, 0
		if f, ok := w.(*os.File); ok && output.IsTerminal(f) {
			// debug lines would land in the middle of an in-place bar
			interactive = !cfg.Output.Debug
			cols, _ = output.TerminalColumns(f)
		}
		width := cfg.Output.ProgressWidth
		if interactive {
			width = output.FitWidth(cols, cfg.PortRange().Count(), width)
		}
		reporters = append(reporters, output.NewProgressBar(w, output.ProgressBarConfig{
			Width:       width,
			Refresh:     cfg.Output.Refresh,
			Color:       cfg.Output.Color,
			Interactive: interactive,
		}))
	}
	if cfg.Output.Debug {
		reporters = append(reporters, output.NewDebugReporter(w, cfg.Output.Color))
	}

	if len(reporters) == 0 {
		return nil
	}
	return output.NewMultiReporter(reporters...)
}
