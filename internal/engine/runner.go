package engine

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrInputMissing is returned when the input file does not exist.
	ErrInputMissing = errors.New("input file not found")
	// ErrSamePath is returned when input and output resolve to the same file.
	ErrSamePath = errors.New("input and output are the same file")
)

// Run is the command-line entry point: one input, one output, progress and
// warnings on logw. Diagnostics go to stderr instead when the result itself
// is written to stdout.
func Run(opts Options, stdout, stderr io.Writer) error {
	logw := stdout
	if opts.UseStdout {
		logw = stderr
	}
	c := paletteFor(logw)
	if !opts.Quiet {
		fmt.Fprintln(logw, banner(c))
	}

	if opts.InputFile == "" {
		return errors.New("missing input file (usage: debatch [flags] INPUT)")
	}
	if opts.DryRun && opts.UseStdout {
		return errors.New("cannot use --dry-run with --stdout")
	}
	if !opts.UseStdout && !opts.DryRun && opts.OutputFile == "" {
		opts.OutputFile = DefaultOutputPath(opts.InputFile)
	}

	data, err := readInput(opts.InputFile)
	if err != nil {
		return err
	}
	if opts.DryRun {
		return runDryRun(opts, data, logw)
	}
	if !opts.UseStdout && samePath(opts.InputFile, opts.OutputFile) {
		return errors.Wrap(ErrSamePath, opts.OutputFile)
	}

	printer := newEventPrinter(logw, opts.Quiet)
	forward := opts.OnEvent
	opts.OnEvent = func(e Event) {
		printer.print(e)
		if forward != nil {
			forward(e)
		}
	}

	start := time.Now()
	res, err := Deobfuscate(data, opts)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	if opts.UseStdout {
		if _, err := io.WriteString(stdout, res.Text); err != nil {
			return errors.Wrap(err, "writing output")
		}
	} else {
		if err := writeOutput(opts.OutputFile, res.Text); err != nil {
			return err
		}
		if !opts.Quiet {
			fmt.Fprintf(logw, "%sDeobfuscation complete.%s Output saved to: %s\n", c.Green, c.Reset, opts.OutputFile)
		}
	}

	if !opts.Quiet {
		if n := countLevel(res.Events, LevelWarn); n > 0 {
			fmt.Fprintf(logw, "%sCompleted with %d warning(s).%s\n", c.Yellow, n, c.Reset)
		}
		if opts.Verbose {
			printMetrics(logw, c, "Input", ComputeMetrics(decodedText(data, opts.LegacyCharset)))
			printMetrics(logw, c, "Output", ComputeMetrics(res.Text))
		}
	}

	if opts.Report || opts.ReportJSON != "" {
		r := newReport(&opts, data, res, elapsed)
		if opts.Report {
			PrintReport(logw, r)
		}
		if opts.ReportJSON != "" {
			b, err := r.ToJSON()
			if err != nil {
				return errors.Wrap(err, "encoding report")
			}
			if err := writeOutput(opts.ReportJSON, string(b)+"\n"); err != nil {
				return errors.Wrap(err, "report")
			}
		}
	}
	return nil
}

func runDryRun(opts Options, data []byte, logw io.Writer) error {
	c := paletteFor(logw)
	doc := DecodeDocument(data, opts.LegacyCharset)
	fmt.Fprintf(logw, "%sDry-run:%s analyzing %s%s%s (%d bytes, %s)\n", c.Cyan, c.Reset, c.Green, opts.InputFile, c.Reset, len(data), doc.Encoding)
	PrintAnalysis(logw, AnalyzeScript(doc.Lines, opts))
	fmt.Fprintf(logw, "%sNo deobfuscation or output (dry-run).%s\n", c.Gray, c.Reset)
	return nil
}

// AnalyzeFile reads and analyzes one script without deobfuscating it.
func AnalyzeFile(path string, opts Options) (*ScriptFeatures, error) {
	data, err := readInput(path)
	if err != nil {
		return nil, err
	}
	doc := DecodeDocument(data, opts.LegacyCharset)
	return AnalyzeScript(doc.Lines, opts), nil
}

// DeobfuscateFile is the quiet form of Run for embedding: it refuses to
// overwrite its input and writes out only once the whole result exists.
func DeobfuscateFile(in, out string, opts Options) (*Result, error) {
	if _, err := os.Stat(in); os.IsNotExist(err) {
		return nil, errors.Wrap(ErrInputMissing, in)
	}
	if out == "" {
		out = DefaultOutputPath(in)
	}
	if samePath(in, out) {
		return nil, errors.Wrap(ErrSamePath, out)
	}
	data, err := readInput(in)
	if err != nil {
		return nil, err
	}
	res, err := Deobfuscate(data, opts)
	if err != nil {
		return nil, err
	}
	if err := writeOutput(out, res.Text); err != nil {
		return nil, err
	}
	return res, nil
}

func countLevel(events []Event, level Level) int {
	n := 0
	for _, e := range events {
		if e.Level == level {
			n++
		}
	}
	return n
}
