package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/benzoXdev/debatch/internal/config"
	"github.com/benzoXdev/debatch/internal/engine"
)

func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   "print the version",
	}
}

// exitError prints err with an optional hint and maps it to exit code 1.
func exitError(err error) cli.ExitCoder {
	msg := fmt.Sprintf("Error: %v", err)
	if hint := engine.ErrorHint(err); hint != "" {
		msg += "\nHint: " + hint
	}
	return cli.Exit(msg, 1)
}

// loadOptions reads --config (or DEBATCH_CONFIG) and lets flags override it.
func loadOptions(c *cli.Context) (engine.Options, error) {
	var opts engine.Options

	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return opts, err
		}
	}
	if err := config.Validate(cfg); err != nil {
		return opts, errors.Wrap(err, "config")
	}
	if err := cfg.Apply(&opts); err != nil {
		return opts, err
	}

	if c.IsSet("caret") {
		caret, err := engine.ParseCaretMode(c.String("caret"))
		if err != nil {
			return opts, err
		}
		opts.Caret = caret
	}
	if c.IsSet("stages") {
		opts.Stages = c.String("stages")
	}
	if c.Bool("no-host-env") {
		opts.HostEnv = false
	}
	opts.OutputFile = c.String("output")
	opts.UseStdout = c.Bool("stdout")
	opts.Verbose = c.Bool("verbose")
	opts.Quiet = c.Bool("quiet")
	opts.DryRun = c.Bool("dry-run")
	opts.Report = c.Bool("report")
	opts.ReportJSON = c.String("report-json")
	return opts, nil
}

func deobfuscate(c *cli.Context) error {
	if c.NArg() < 1 {
		_ = cli.ShowAppHelp(c)
		return cli.Exit("", 1)
	}

	opts, err := loadOptions(c)
	if err != nil {
		return exitError(err)
	}
	opts.InputFile = c.Args().First()

	start := time.Now()
	if err := engine.Run(opts, c.App.Writer, c.App.ErrWriter); err != nil {
		return exitError(err)
	}
	if !opts.Quiet {
		w := c.App.Writer
		if opts.UseStdout {
			w = c.App.ErrWriter
		}
		fmt.Fprintf(w, "Done in %s\n", time.Since(start).Round(time.Millisecond))
	}
	return nil
}

func analyze(c *cli.Context) error {
	if c.NArg() < 1 {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}

	opts, err := loadOptions(c)
	if err != nil {
		return exitError(err)
	}

	f, err := engine.AnalyzeFile(c.Args().First(), opts)
	if err != nil {
		return exitError(err)
	}
	engine.PrintAnalysis(c.App.Writer, f)
	return nil
}

func rules(c *cli.Context) error {
	table := tablewriter.NewWriter(c.App.Writer)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetHeader([]string{"Name", "Category", "Pattern"})

	for _, r := range engine.DefaultRules() {
		pattern := r.Pattern
		if !c.Bool("verbose") && len(pattern) > 60 {
			pattern = pattern[:57] + "..."
		}
		table.Append([]string{r.Name, r.Category, pattern})
	}

	table.Render()
	return nil
}

func showConfig(c *cli.Context) error {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return exitError(err)
		}
	}

	b, err := config.Marshal(cfg)
	if err != nil {
		return exitError(err)
	}
	_, err = c.App.Writer.Write(b)
	return err
}

func newApp(stdout, stderr io.Writer) *cli.App {
	app := cli.NewApp()

	app.Name = "debatch"
	app.Usage = "Deobfuscate batch scripts produced by SomalifuscatorV2"
	app.UsageText = "debatch [global options] INPUT"
	app.Version = engine.Version()
	app.Writer = stdout
	app.ErrWriter = stderr
	app.Action = deobfuscate

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "write the result to `FILE` (default: <stem>_deobf<ext> next to INPUT)",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "increase verbosity",
		},
		&cli.BoolFlag{
			Name:    "quiet",
			Aliases: []string{"q"},
			Usage:   "only print warnings and errors",
		},
		&cli.BoolFlag{
			Name:  "stdout",
			Usage: "write the result to standard output, progress to standard error",
		},
		&cli.StringFlag{
			Name:    "config",
			Usage:   "read configuration from `FILE`",
			EnvVars: []string{"DEBATCH_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "stages",
			Usage: "comma-separated `LIST` of resolve,scramble,junk,final (default: all)",
		},
		&cli.StringFlag{
			Name:  "caret",
			Usage: "meaning of '^' in dispatch math: unsupported, xor or pow",
		},
		&cli.BoolFlag{
			Name:  "no-host-env",
			Usage: "never take variable values from the current environment",
		},
		&cli.BoolFlag{
			Name:  "report",
			Usage: "print a summary table after the run",
		},
		&cli.StringFlag{
			Name:  "report-json",
			Usage: "write a JSON report to `FILE`",
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "analyze only, write nothing",
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:      "analyze",
			Usage:     "Report the obfuscation features found in a script",
			ArgsUsage: "INPUT",
			Action:    analyze,
		},
		{
			Name:   "rules",
			Usage:  "List the bundled junk-line rules",
			Action: rules,
		},
		{
			Name:   "config",
			Usage:  "Print the effective configuration as YAML",
			Action: showConfig,
		},
	}

	return app
}

func main() {
	// Clean exit on Ctrl+C
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		fmt.Fprintln(os.Stderr, "\nInterrupted.")
		os.Exit(130)
	}()

	app := newApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
