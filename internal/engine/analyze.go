package engine

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// ScriptFeatures holds the result of static analysis on an obfuscated script.
type ScriptFeatures struct {
	LineCount     int
	HasSignature  bool // "::Made by K.Dot using SomalifuscatorV2"
	HasAux        bool // set KDOT=...
	CipherDefs    int  // set a=b lines
	EnvSlices     int  // %VAR:~i,1%
	AuxSlices     int  // %KDOT:~i,1%
	CipherRefs    int  // %c% and %c1%
	JunkWraps     int  // %junk%c%junk%
	HasBoundary   bool // dispatcher epilogue found
	DispatchSites int
	TailBlocks    int
	CaretInMath   bool // some dispatch expression uses '^'
	// JunkLines counts junk per rule category, on resolved text.
	JunkLines     map[string]int

	Complexity  int // 0-100 score
	Warnings    []string
	Suggestions []string
}

// AnalyzeScript counts the obfuscation features present in lines. It
// resolves a private copy of the lines to count junk the way the filter
// would see it; no events escape.
func AnalyzeScript(lines []string, opts Options) *ScriptFeatures {
	f := &ScriptFeatures{LineCount: len(lines), JunkLines: map[string]int{}}

	opts.OnEvent = nil
	opts.Verbose = false
	ctx, err := newCtx(&opts)
	if err != nil {
		ctx, _ = newCtx(&Options{})
	}
	ctx.Settings = ExtractSettings(lines, ctx)
	f.HasAux = ctx.Settings.HasAux

	for _, line := range lines {
		if defaultRules[0].Pattern.MatchString(line) {
			f.HasSignature = true
		}
		if reCipherDef.MatchString(line) {
			f.CipherDefs++
		}
		for _, m := range reCharToken.FindAllStringSubmatch(line, -1) {
			switch {
			case m[1] != "" && strings.EqualFold(m[1], AuxName):
				f.AuxSlices++
			case m[1] != "":
				f.EnvSlices++
			default:
				f.CipherRefs++
			}
		}
		f.JunkWraps += len(reJunkWrap.FindAllString(line, -1))
	}

	resolved := make([]string, len(lines))
	for i, line := range lines {
		resolved[i] = resolveLine(line, i+1, ctx)
	}
	boundary := findBoundary(resolved)
	f.HasBoundary = boundary >= 0
	main := resolved
	if f.HasBoundary {
		main = resolved[:boundary]
		for _, l := range resolved[boundary+1:] {
			if reBlockLabel.MatchString(l) {
				f.TailBlocks++
			}
		}
	}
	for i := 0; i < len(main); i++ {
		if expr, ok := dispatchSite(main, i); ok {
			f.DispatchSites++
			if strings.Contains(expr, "^") {
				f.CaretInMath = true
			}
			i += 2
		}
	}
	for _, l := range resolved {
		if r := matchJunk(ctx.Rules, l); r != nil {
			f.JunkLines[r.Category]++
		}
	}

	f.Complexity = f.score()
	f.computeRecommendations(opts.Caret)
	return f
}

func (f *ScriptFeatures) junkTotal() int {
	n := 0
	for _, c := range f.JunkLines {
		n += c
	}
	return n
}

func (f *ScriptFeatures) score() int {
	score := 0
	if f.CipherRefs > 0 {
		score += 20
	}
	if f.EnvSlices > 0 {
		score += 15
	}
	if f.AuxSlices > 0 {
		score += 10
	}
	if f.JunkWraps > 0 {
		score += 10
	}
	if f.DispatchSites > 0 {
		score += 25
	}
	if f.junkTotal() > 0 {
		score += 10
	}
	if f.CaretInMath {
		score += 5
	}
	if f.HasSignature {
		score += 5
	}
	if score > 100 {
		score = 100
	}
	return score
}

func (f *ScriptFeatures) computeRecommendations(caret CaretMode) {
	if f.CipherRefs > 0 && f.CipherDefs == 0 {
		f.Warnings = append(f.Warnings, "Cipher references present but no 'set a=b' definitions; letters stay unresolved")
	}
	if f.AuxSlices > 0 && !f.HasAux {
		f.Warnings = append(f.Warnings, "KDOT slices present but KDOT is never defined")
	}
	if f.DispatchSites > 0 && !f.HasBoundary {
		f.Warnings = append(f.Warnings, "Dispatch sites found but no dispatcher epilogue; scrambling cannot be reversed")
	}
	if f.HasBoundary && f.TailBlocks < f.DispatchSites {
		f.Warnings = append(f.Warnings, fmt.Sprintf("%d dispatch sites but only %d relocated blocks", f.DispatchSites, f.TailBlocks))
	}
	if f.CaretInMath && (caret == "" || caret == CaretUnsupported) {
		f.Suggestions = append(f.Suggestions, "Dispatch math uses '^'; rerun with --caret xor or --caret pow")
	}
	if f.JunkLines[CatAntiVM] > 0 || f.JunkLines[CatAntiSandbox] > 0 {
		f.Suggestions = append(f.Suggestions, "Anti-VM/anti-sandbox checks present; run the original only in an isolated lab")
	}
	if f.Complexity == 0 {
		f.Suggestions = append(f.Suggestions, "No SomalifuscatorV2 features found; output will only be normalized")
	}
}

// PrintAnalysis prints the script analysis as a table.
func PrintAnalysis(w io.Writer, f *ScriptFeatures) {
	c := paletteFor(w)
	fmt.Fprintf(w, "\n%s=== Script Analysis ===%s\n", c.Cyan, c.Reset)

	table := tablewriter.NewWriter(w)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader([]string{"Feature", "Count"})
	rows := [][]string{
		{"Lines", strconv.Itoa(f.LineCount)},
		{"Signature", strconv.FormatBool(f.HasSignature)},
		{"KDOT defined", strconv.FormatBool(f.HasAux)},
		{"Cipher definitions", strconv.Itoa(f.CipherDefs)},
		{"Cipher references", strconv.Itoa(f.CipherRefs)},
		{"Environment slices", strconv.Itoa(f.EnvSlices)},
		{"KDOT slices", strconv.Itoa(f.AuxSlices)},
		{"Junk wraps", strconv.Itoa(f.JunkWraps)},
		{"Dispatch sites", strconv.Itoa(f.DispatchSites)},
		{"Relocated blocks", strconv.Itoa(f.TailBlocks)},
		{"Caret in math", strconv.FormatBool(f.CaretInMath)},
	}
	cats := make([]string, 0, len(f.JunkLines))
	for cat := range f.JunkLines {
		cats = append(cats, cat)
	}
	sort.Strings(cats)
	for _, cat := range cats {
		rows = append(rows, []string{"Junk: " + cat, strconv.Itoa(f.JunkLines[cat])})
	}
	table.AppendBulk(rows)
	table.SetFooter([]string{"Obfuscation score", fmt.Sprintf("%d/100", f.Complexity)})
	table.Render()

	for _, warn := range f.Warnings {
		fmt.Fprintf(w, "%sWarning:%s %s\n", c.Yellow, c.Reset, warn)
	}
	for _, s := range f.Suggestions {
		fmt.Fprintf(w, "%s-> %s%s\n", c.Green, s, c.Reset)
	}
	fmt.Fprintln(w)
}
