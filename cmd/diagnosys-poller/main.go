package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/term"

	"diagnosys-poller/internal/config"
	"diagnosys-poller/internal/diagnosis"
	"diagnosys-poller/internal/errors"
	"diagnosys-poller/internal/logger"
	"diagnosys-poller/internal/transport"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type cli struct {
	v          *viper.Viper
	configPath string
	noColor    bool

	cfg    *config.Config
	logger *zap.SugaredLogger
}

func newRootCmd() *cobra.Command {
	c := &cli{v: config.NewViper()}

	root := &cobra.Command{
		Use:   "diagnosys-poller",
		Short: "Poll sensor readings and submit them for fault diagnosis",
		Long: `diagnosys-poller fetches the latest sensor readings for each configured asset,
submits them to a diagnosis backend and reports the outcome.

With poll_interval_ms = 0 it runs a single cycle and exits; otherwise it keeps
polling until interrupted.

Examples:
  diagnosys-poller run --assets M1,M2 --interval-ms 5000
  diagnosys-poller once --backend process
  diagnosys-poller check --config diagnosys.toml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return c.init()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, false)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "config file (TOML or YAML)")
	flags.BoolVar(&c.noColor, "no-color", false, "disable coloured output")
	flags.String("base-url", "", "base URL of the data provider and diagnosis engine")
	flags.StringSlice("assets", nil, "assets to poll (comma separated)")
	flags.Int64("interval-ms", 0, "poll interval in milliseconds, 0 runs once")
	flags.Duration("timeout", 0, "per-request timeout")
	flags.String("backend", "", "diagnosis backend: remote or process")
	flags.String("policy", "", "remote diagnosis failure policy: degraded or strict")
	flags.String("command", "", "command line of the local inference process")
	flags.String("status-addr", "", "listen address of the status API, empty disables it")
	flags.String("history", "", "SQLite report history path, empty disables it")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "log as JSON")

	for key, flag := range map[string]string{
		"base_url":         "base-url",
		"assets":           "assets",
		"poll_interval_ms": "interval-ms",
		"timeout":          "timeout",
		"diagnose.backend": "backend",
		"diagnose.policy":  "policy",
		"diagnose.command": "command",
		"status.addr":      "status-addr",
		"history.path":     "history",
		"log.level":        "log-level",
		"log.json":         "log-json",
	} {
		// Only flags the user actually set override file and env values.
		_ = c.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Poll once or continuously, depending on the configured interval",
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.run(cmd, false)
			},
		},
		&cobra.Command{
			Use:   "once",
			Short: "Run a single cycle per asset and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.run(cmd, true)
			},
		},
		&cobra.Command{
			Use:   "check",
			Short: "Validate the configuration and print it",
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.check(cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "diagnosys-poller %s\n", version)
			},
		},
	)
	return root
}

func (c *cli) init() error {
	cfg, err := config.Load(c.v, c.configPath)
	if err != nil {
		return err
	}
	l, err := logger.New(cfg.LoggerOptions())
	if err != nil {
		return errors.Wrap(err, "failed to initialize logger")
	}
	c.cfg, c.logger = cfg, l
	return nil
}

func (c *cli) run(cmd *cobra.Command, once bool) error {
	defer c.logger.Sync() //nolint:errcheck

	if once {
		c.cfg.PollIntervalMS = 0
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	color := c.useColor(out)
	if !color {
		pterm.DisableColor()
	}

	a, err := newApp(ctx, c.cfg, c.logger, out, color)
	if err != nil {
		return err
	}
	defer a.close()

	return a.run(ctx)
}

func (c *cli) useColor(out io.Writer) bool {
	if c.noColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// check builds the diagnosis backend without running it, so command lines
// that cannot be parsed are reported too.
func (c *cli) check(out io.Writer) error {
	client := transport.NewClient(c.cfg.TransportOptions())
	if _, err := diagnosis.New(c.cfg.Diagnosis(), client, c.logger); err != nil {
		return err
	}

	settings := c.v.AllSettings()
	if redis, ok := settings["redis"].(map[string]interface{}); ok {
		if pw, _ := redis["password"].(string); pw != "" {
			redis["password"] = "********"
		}
	}
	settings["assets"] = c.cfg.Assets

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to format configuration")
	}
	fmt.Fprintln(out, string(data))
	pterm.Fprintln(out, pterm.Green("configuration OK"))
	return nil
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if hint := errors.FlattenHints(err); hint != "" {
			fmt.Fprintln(os.Stderr, "hint:", hint)
		}
		os.Exit(1)
	}
}
