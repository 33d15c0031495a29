package engine

import (
	"regexp"
)

type Options struct {
	InputFile     string
	OutputFile    string
	UseStdout     bool
	Verbose       bool
	Quiet         bool
	DryRun        bool   // Analyze only, no deobfuscation or output
	Report        bool   // Print a summary table after the run
	ReportJSON    string // Optional path for the JSON report (empty = disabled)
	Stages        string // Comma-separated: resolve,scramble,junk,final (empty = all)
	Caret         CaretMode
	HostEnv       bool   // Take some variable values from the executing environment
	LegacyCharset string // Fallback single-byte charset for non UTF-8 input (empty = from locale)
	ExtraEnv      map[string]string
	ExtraCommands []string
	ExtraRules    []RuleSpec
	DisabledRules []string
	// OnEvent receives every diagnostic as it is recorded. Optional.
	OnEvent func(Event)
}

// Transform is one stage of the deobfuscation pipeline. It sees the whole
// document as lines and returns the rewritten lines.
type Transform interface {
	Apply(lines []string, ctx *Ctx) ([]string, error)
	Name() string
}

// Ctx carries everything one run needs. Nothing in it is shared between runs.
type Ctx struct {
	Opts     *Options
	Settings Settings
	Env      Environment
	Commands map[string]bool
	Rules    []JunkRule
	Stats    *Stats
	diag     *Diagnostics
}

// Stats holds the per-run counters shown in progress output and reports.
type Stats struct {
	Encoding      string         `json:"encoding"`
	LinesRead     int            `json:"linesRead"`
	CipherEntries int            `json:"cipherEntries"`
	AuxFound      bool           `json:"auxFound"`
	LinesResolved int            `json:"linesResolved"`
	BoundHits     int            `json:"boundHits"`
	BlocksParsed  int            `json:"blocksParsed"`
	BlocksFailed  int            `json:"blocksFailed"`
	JumpsReplaced int            `json:"jumpsReplaced"`
	JumpsFailed   int            `json:"jumpsFailed"`
	JunkRemoved   int            `json:"junkRemoved"`
	RuleHits      map[string]int `json:"ruleHits,omitempty"`
	LinesOut      int            `json:"linesOut"`
}

// Result is what one deobfuscation run produces.
type Result struct {
	Text     string
	Encoding string
	Settings Settings
	Stats    Stats
	Events   []Event
}

var (
	// reAuxDef and reCipherDef are matched against raw, unresolved lines.
	reAuxDef    = regexp.MustCompile(`(?i)^\s*set\s+` + AuxName + `=([a-z0-9]+)`)
	reCipherDef = regexp.MustCompile(`(?i)^\s*set\s+([a-z])=([a-z])`)
	// reCharToken combines the slice form (%NAME:~IDX,1%, which covers both
	// environment and auxiliary slices; NAME may carry parentheses as in
	// PROGRAMFILES(X86)) with the cipher form (%c% or %c1%,
	// optionally followed by a junk reference). A junk name never has the
	// shape of a cipher reference, so %a%%b1% stays two references.
	reCharToken = regexp.MustCompile(`(?i)%([\w()]+):~(-?\d+),\s*1%|%([a-z])(1?)%(?:%(?:[a-z0-9]{3,}|[0-9][a-z0-9]|[a-z][a-z02-9])%)?`)
	// reJunkWrap matches a single character wrapped in two junk references.
	reJunkWrap = regexp.MustCompile(`%[a-zA-Z0-9]+%(.)%[a-zA-Z0-9]+%`)
)

// Sentinels the obfuscator leaves behind; removed unconditionally.
var leftoverMarkers = []string{"%escape%", "%STOP_OBF_HERE%"}
