package engine

import (
	"strings"

	"github.com/pkg/errors"
)

// StageNames lists the selectable stages in execution order.
var StageNames = []string{"resolve", "scramble", "junk", "final"}

var stageTitles = map[string]string{
	"resolve":  "Deobfuscating characters",
	"scramble": "Reversing scrambling",
	"junk":     "Removing inserted code",
	"final":    "Final cleanup",
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	var out []string
	for _, p := range parts {
		pp := strings.TrimSpace(p)
		if pp != "" {
			out = append(out, pp)
		}
	}
	return out
}

// buildPipeline turns a comma-separated stage list into transforms. The
// empty list selects every stage. Stages always run in their fixed order,
// whatever order they are listed in.
func buildPipeline(list string) ([]Transform, error) {
	want := map[string]bool{}
	items := splitCSV(list)
	for _, it := range items {
		name := strings.ToLower(it)
		if !isStageName(name) {
			return nil, errors.Errorf("unknown stage: %s (valid: %s)", it, strings.Join(StageNames, ","))
		}
		want[name] = true
	}
	var out []Transform
	for _, name := range StageNames {
		if len(items) > 0 && !want[name] {
			continue
		}
		switch name {
		case "resolve":
			out = append(out, &ResolveTransform{})
		case "scramble":
			out = append(out, &ScrambleTransform{})
		case "junk":
			out = append(out, &JunkTransform{})
		case "final":
			out = append(out, &FinalizeTransform{})
		}
	}
	return out, nil
}

func isStageName(s string) bool {
	for _, n := range StageNames {
		if n == s {
			return true
		}
	}
	return false
}

// ValidateStages checks a stage list without building it.
func ValidateStages(list string) error {
	_, err := buildPipeline(list)
	return err
}

// newCtx prepares the per-run state. Nothing here outlives the run.
func newCtx(opts *Options) (*Ctx, error) {
	rules, err := buildRules(opts)
	if err != nil {
		return nil, err
	}
	if _, err := ParseCaretMode(string(opts.Caret)); err != nil {
		return nil, err
	}
	return &Ctx{
		Opts:     opts,
		Env:      NewEnvironment(hostLookup(opts), opts.ExtraEnv),
		Commands: commandSet(opts.ExtraCommands),
		Rules:    rules,
		Stats:    &Stats{},
		diag:     newDiagnostics(opts.Verbose, opts.OnEvent),
	}, nil
}

// Deobfuscate runs the pipeline over one document held in memory. Only
// configuration problems are returned as errors; everything the pipeline
// cannot undo is reported as a warning event and left in place.
func Deobfuscate(data []byte, opts Options) (*Result, error) {
	if opts.Caret == "" {
		opts.Caret = CaretUnsupported
	}
	transforms, err := buildPipeline(opts.Stages)
	if err != nil {
		return nil, err
	}
	ctx, err := newCtx(&opts)
	if err != nil {
		return nil, err
	}

	doc := DecodeDocument(data, opts.LegacyCharset)
	ctx.Stats.Encoding = doc.Encoding
	ctx.Stats.LinesRead = len(doc.Lines)
	ctx.infof("preprocess", "Read %d lines using %s encoding.", len(doc.Lines), doc.Encoding)

	steps := len(transforms) + 1
	ctx.infof("settings", "[Step 1/%d] Extracting initial settings...", steps)
	ctx.Settings = ExtractSettings(doc.Lines, ctx)

	lines := doc.Lines
	for i, t := range transforms {
		ctx.infof(t.Name(), "[Step %d/%d] %s...", i+2, steps, stageTitles[t.Name()])
		lines, err = t.Apply(lines, ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "stage %s failed", t.Name())
		}
	}

	text := Serialize(lines)
	ctx.Stats.LinesOut = strings.Count(text, LineTerminator)
	return &Result{
		Text:     text,
		Encoding: doc.Encoding,
		Settings: ctx.Settings,
		Stats:    *ctx.Stats,
		Events:   ctx.diag.Events(),
	}, nil
}
