package engine

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
)

// Report holds deobfuscation session data for reporting.
type Report struct {
	InputPath  string        `json:"inputPath"`
	OutputPath string        `json:"outputPath"`
	Encoding   string        `json:"encoding"`
	Stages     []string      `json:"stages"`
	Caret      CaretMode     `json:"caret"`
	Stats      Stats         `json:"stats"`
	Input      Metrics       `json:"input"`
	Output     Metrics       `json:"output"`
	Warnings   []Event       `json:"warnings,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// ToJSON returns the report as indented JSON (for CI/CD integration).
func (r *Report) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

func newReport(opts *Options, in []byte, res *Result, elapsed time.Duration) Report {
	inputPath := opts.InputFile
	outputPath := opts.OutputFile
	if opts.UseStdout {
		outputPath = "<stdout>"
	}
	stages := splitCSV(opts.Stages)
	if len(stages) == 0 {
		stages = StageNames
	}
	r := Report{
		InputPath:  inputPath,
		OutputPath: outputPath,
		Encoding:   res.Encoding,
		Stages:     stages,
		Caret:      opts.Caret,
		Stats:      res.Stats,
		Input:      ComputeMetrics(decodedText(in, opts.LegacyCharset)),
		Output:     ComputeMetrics(res.Text),
		Duration:   elapsed,
	}
	for _, e := range res.Events {
		if e.Level >= LevelWarn {
			r.Warnings = append(r.Warnings, e)
		}
	}
	return r
}

// decodedText decodes data the way the pipeline does, so input metrics are
// computed on characters rather than raw UTF-16 bytes.
func decodedText(data []byte, legacy string) string {
	doc := DecodeDocument(data, legacy)
	return Serialize(doc.Lines)
}

// PrintReport writes the summary table.
func PrintReport(w io.Writer, r Report) {
	c := paletteFor(w)
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%s%s=== debatch Report ===%s\n", c.Bold, c.Cyan, c.Reset)

	table := tablewriter.NewWriter(w)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetTablePadding(" ")
	table.SetNoWhiteSpace(true)

	s := r.Stats
	table.Append([]string{"Input:", r.InputPath})
	table.Append([]string{"Output:", r.OutputPath})
	table.Append([]string{"Encoding:", r.Encoding})
	table.Append([]string{"Caret mode:", string(r.Caret)})
	table.Append([]string{"Lines read:", strconv.Itoa(s.LinesRead)})
	table.Append([]string{"Cipher entries:", strconv.Itoa(s.CipherEntries)})
	table.Append([]string{"Aux value found:", strconv.FormatBool(s.AuxFound)})
	table.Append([]string{"Lines resolved:", strconv.Itoa(s.LinesResolved)})
	table.Append([]string{"Pass bounds hit:", strconv.Itoa(s.BoundHits)})
	table.Append([]string{"Blocks parsed:", fmt.Sprintf("%d (%d failed)", s.BlocksParsed, s.BlocksFailed)})
	table.Append([]string{"Jumps replaced:", fmt.Sprintf("%d (%d removed)", s.JumpsReplaced, s.JumpsFailed)})
	table.Append([]string{"Junk removed:", strconv.Itoa(s.JunkRemoved)})
	table.Append([]string{"Lines out:", strconv.Itoa(s.LinesOut)})
	table.Append([]string{"Residual tokens:", fmt.Sprintf("%d -> %d", r.Input.ResidualTokens, r.Output.ResidualTokens)})
	table.Append([]string{"Warnings:", strconv.Itoa(len(r.Warnings))})
	if r.Duration > 0 {
		table.Append([]string{"Duration:", r.Duration.Round(time.Millisecond).String()})
	}
	table.Render()

	if len(s.RuleHits) > 0 {
		fmt.Fprintln(w, "")
		hits := tablewriter.NewWriter(w)
		hits.SetBorder(false)
		hits.SetCenterSeparator("")
		hits.SetColumnSeparator("")
		hits.SetHeader([]string{"Rule", "Lines"})
		names := make([]string, 0, len(s.RuleHits))
		for n := range s.RuleHits {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			hits.Append([]string{n, strconv.Itoa(s.RuleHits[n])})
		}
		hits.Render()
	}
	fmt.Fprintf(w, "%s%s======================%s\n", c.Bold, c.Cyan, c.Reset)
}
