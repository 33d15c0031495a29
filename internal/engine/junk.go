package engine

import (
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// RuleSpec is the uncompiled form of a junk rule, as bundled or as read
// from configuration.
type RuleSpec struct {
	Name     string `yaml:"name" json:"name"`
	Category string `yaml:"category" json:"category"`
	Pattern  string `yaml:"pattern" json:"pattern"`
}

// JunkRule recognizes one kind of injected line. Patterns match the
// resolved text, not the obfuscated one.
type JunkRule struct {
	Name     string
	Category string
	Pattern  *regexp.Regexp
}

// Rule categories.
const (
	CatSignature   = "signature"
	CatCodepage    = "codepage"
	CatCipherDef   = "cipher-def"
	CatSelfCheck   = "self-check"
	CatScrambler   = "scrambler"
	CatAntiConsole = "anti-console"
	CatAntiChanges = "anti-changes"
	CatLaunchGuard = "launch-guard"
	CatAntiSandbox = "anti-sandbox"
	CatAntiVM      = "anti-vm"
	CatDeadCode    = "dead-code"
	CatPlaceholder = "placeholder"
	CatCustom      = "custom"
)

// defaultRuleSpecs is ordered; the first matching rule gets the credit.
var defaultRuleSpecs = []RuleSpec{
	// Obfuscator boilerplate
	{"signature", CatSignature, `(?i)^\s*::Made by K\.Dot using SomalifuscatorV2`},
	{"codepage", CatCodepage, `(?i)^\s*chcp 65001 > ?nul`},
	{"cipher-definition", CatCipherDef, `(?i)^\s*set\s+[a-z]=[a-z]\s*$`},
	{"aux-definition", CatCipherDef, `(?i)^\s*set\s+KDOT=[a-z0-9]+\s*$`},
	{"self-check", CatSelfCheck, `(?i)^\s*>nul 2>&1 && exit >nul 2>&1 \|\| cls`},
	{"scrambler-eof", CatScrambler, `(?i)^\s*(goto\s+:eof|exit\s*/b\s*0)\s*$`},
	{"scrambler-goto", CatScrambler, `(?i)^\s*goto\s+%ans%\s*$`},
	{"scrambler-set", CatScrambler, `(?i)^\s*set\s+/a\s+ans\s*=`},

	// Hidden relaunch through a VBScript helper
	{"anti-console-redo-check", CatAntiConsole, `(?i)^\s*if defined redo goto :KDOTUP`},
	{"anti-console-redo-set", CatAntiConsole, `(?i)^\s*set "redo=1"`},
	{"anti-console-vbs-write", CatAntiConsole, `(?i)^\s*echo CreateObject\("Wscript\.Shell"\)\.Run "%~f0", 0, True > temp\.vbs`},
	{"anti-console-vbs-run", CatAntiConsole, `(?i)^\s*cscript //nologo temp\.vbs`},
	{"anti-console-vbs-delete", CatAntiConsole, `(?i)^\s*del temp\.vbs`},
	{"anti-console-label", CatAntiConsole, `(?i)^\s*:KDOTUP\s*$`},

	// Integrity marker file
	{"anti-changes-echo", CatAntiChanges, `(?i)^\s*echo @echo off >> kdot\w+\.bat`},
	{"anti-changes-call", CatAntiChanges, `(?i)^\s*call kdot\w+\.bat`},

	// Must be started by double click
	{"launch-guard-cmdline", CatLaunchGuard, `(?i)^\s*echo %cmdcmdline% \| find /i "%~f0" ?>nul \|\| exit /b 1`},

	// Sandbox and network checks
	{"anti-sandbox-logonserver", CatAntiSandbox, `(?i)^\s*echo %logonserver% \| findstr /i "DADDYSERVER" >nul && exit`},
	{"anti-sandbox-ping", CatAntiSandbox, `(?i)^\s*ping .* www\.google\.com .* \|\| exit`},

	// Virtual machine checks
	{"anti-vm-manufacturer", CatAntiVM, `(?i)^\s*for /f "tokens=2 delims==" %%a in \('wmic computersystem get manufacturer /value'\) do set manufacturer=%%a`},
	{"anti-vm-model", CatAntiVM, `(?i)^\s*for /f "tokens=2 delims==" %%a in \('wmic computersystem get model /value'\) do set model=%%a`},
	{"anti-vm-hyperv", CatAntiVM, `(?i)^\s*if "%manufacturer%"=="Microsoft Corporation" if "%model%"=="Virtual Machine" exit`},
	{"anti-vm-vmware", CatAntiVM, `(?i)^\s*if "%manufacturer%"=="VMware, Inc\." exit`},
	{"anti-vm-virtualbox", CatAntiVM, `(?i)^\s*if "%model%"=="VirtualBox" exit`},
	{"anti-vm-wmi", CatAntiVM, `(?i)^\s*powershell.*Get-WmiObject Win32_ComputerSystem.*Virtual.*taskkill`},
	{"anti-vm-memory", CatAntiVM, `(?i)^\s*powershell.*gcim Win32_PhysicalMemory.*sum /1gb -lt 4.*taskkill`},
	{"anti-vm-powershell", CatAntiVM, `(?i)^\s*powershell(\.exe)?\s+(-NoLogo|-NoP|-NonI|-W Hidden|-EP Bypass|-EncodedCommand|-Command)\s+`},
	{"anti-vm-wmic", CatAntiVM, `(?i)^\s*wmic\s+`},

	// Dead code: no-op commands
	{"dead-doskey-alias", CatDeadCode, `(?i)^\s*doskey\s+\w+=.*`},
	{"dead-doskey-listsize", CatDeadCode, `(?i)^\s*doskey /listsize=0\s*$`},
	{"dead-mshta", CatDeadCode, `(?i)^\s*mshta\s*$`},
	{"dead-rundll32", CatDeadCode, `(?i)^\s*rundll32\s*$`},
	{"dead-wscript", CatDeadCode, `(?i)^\s*wscript /b\s*$`},
	{"dead-timeout", CatDeadCode, `(?i)^\s*timeout \d+ >nul\s*$`},
	{"dead-echo-random", CatDeadCode, `(?i)^\s*echo %random% >nul\s*$`},
	{"dead-cd", CatDeadCode, `(?i)^\s*cd %cd%\s*$`},
	{"dead-powershell-null", CatDeadCode, `(?i)^\s*powershell(\.exe)?\s+(-nop\s+)?(-c\s+)?"Write-Host -NoNewLine \$null"\s*$`},

	// Dead code: single iteration loops and constant conditions
	{"dead-for-once", CatDeadCode, `(?i)^\s*for /l %%\w in \(\d+, ?\d+, ?\d+\) do \(.*\)`},
	{"dead-if-random", CatDeadCode, `(?i)^\s*if %random% equ \d+ \(.*\) else \(.*\)`},
	{"dead-if-not-zero", CatDeadCode, `(?i)^\s*if not 0 neq 0 \(.*\) else \(.*\)`},
	{"dead-if-zero", CatDeadCode, `(?i)^\s*if 0 equ 0 \(.*\) else \(.*\)`},
	{"dead-if-system32", CatDeadCode, `(?i)^\s*if exist C:\\Windows\\System32\s*\(.*\) else \(.*\)`},
	{"dead-if-system3", CatDeadCode, `(?i)^\s*if exist C:\\Windows\\System3\s*\(.*\) else \(.*\)`},
	{"dead-if-cd", CatDeadCode, `(?i)^\s*if %cd% == %cd% \(.*\) else \(.*\)`},
	{"dead-if-not-cd", CatDeadCode, `(?i)^\s*if not %cd% == %cd% \(.*\) else \(.*\)`},
	{"dead-if-chcp", CatDeadCode, `(?i)^\s*if chcp leq 1 \(.*\) else \(.*\)`},
	{"dead-if-cd-cd", CatDeadCode, `(?i)^\s*if %CD% == %__CD__% \(.*\) else \(.*\)`},

	// Dead code: decoy program invocations
	{"dead-call-binary", CatDeadCode, `(?i)^\s*call \w+\.(exe|dll)\s*(>nul)?\s*(2>nul)?`},
	{"dead-echo-binary", CatDeadCode, `(?i)^\s*echo \w+\.(exe|dll)\s*(>nul)?\s*(2>nul)?`},
	{"dead-forfiles", CatDeadCode, `(?i)^\s*forfiles /p %cd% /m \w+\.(exe|dll) /c 'cmd /c start @file'\s*(>nul)?\s*(2>nul)?`},

	// Markers left by test builds of the obfuscator
	{"placeholder-antichanges", CatPlaceholder, `(?i)^\s*rem ANTICHANGES MARKER`},
	{"placeholder-deadcode", CatPlaceholder, `(?i)^\s*rem DEADCODE MARKER`},
}

var defaultRules = mustCompileRules(defaultRuleSpecs)

func mustCompileRules(specs []RuleSpec) []JunkRule {
	rules, err := CompileRules(specs)
	if err != nil {
		panic(err)
	}
	return rules
}

// DefaultRules returns the bundled catalog in match order.
func DefaultRules() []RuleSpec {
	return append([]RuleSpec(nil), defaultRuleSpecs...)
}

// RuleNames returns the bundled rule names, sorted.
func RuleNames() []string {
	names := make([]string, 0, len(defaultRuleSpecs))
	for _, s := range defaultRuleSpecs {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}

// CompileRules compiles specs in order. Names must be unique and non-empty.
func CompileRules(specs []RuleSpec) ([]JunkRule, error) {
	seen := map[string]bool{}
	rules := make([]JunkRule, 0, len(specs))
	for i, s := range specs {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return nil, errors.Errorf("junk rule %d: missing name", i+1)
		}
		if seen[name] {
			return nil, errors.Errorf("junk rule %q: duplicate name", name)
		}
		seen[name] = true
		re, err := regexp.Compile(s.Pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "junk rule %q", name)
		}
		cat := s.Category
		if cat == "" {
			cat = CatCustom
		}
		rules = append(rules, JunkRule{Name: name, Category: cat, Pattern: re})
	}
	return rules, nil
}

// buildRules returns the catalog for one run: defaults minus disabled ones,
// then the extra rules in their given order.
func buildRules(opts *Options) ([]JunkRule, error) {
	disabled := map[string]bool{}
	for _, n := range opts.DisabledRules {
		disabled[strings.TrimSpace(n)] = true
	}
	for n := range disabled {
		if !isDefaultRule(n) {
			return nil, errors.Errorf("unknown junk rule: %q (see 'debatch rules')", n)
		}
	}
	var rules []JunkRule
	for _, r := range defaultRules {
		if !disabled[r.Name] {
			rules = append(rules, r)
		}
	}
	if len(opts.ExtraRules) == 0 {
		return rules, nil
	}
	for _, s := range opts.ExtraRules {
		if isDefaultRule(strings.TrimSpace(s.Name)) {
			return nil, errors.Errorf("junk rule %q: name is taken by a bundled rule", s.Name)
		}
	}
	extra, err := CompileRules(opts.ExtraRules)
	if err != nil {
		return nil, err
	}
	return append(rules, extra...), nil
}

func isDefaultRule(name string) bool {
	for _, s := range defaultRuleSpecs {
		if s.Name == name {
			return true
		}
	}
	return false
}

// matchJunk returns the first rule matching line, or nil.
func matchJunk(rules []JunkRule, line string) *JunkRule {
	for i := range rules {
		if rules[i].Pattern.MatchString(line) {
			return &rules[i]
		}
	}
	return nil
}

// JunkTransform drops lines injected by the obfuscator's anti-analysis and
// dead-code options.
type JunkTransform struct{}

func (t *JunkTransform) Name() string { return "junk" }

func (t *JunkTransform) Apply(lines []string, ctx *Ctx) ([]string, error) {
	out := make([]string, 0, len(lines))
	removed := 0
	for i, line := range lines {
		r := matchJunk(ctx.Rules, line)
		if r == nil {
			out = append(out, line)
			continue
		}
		removed++
		if ctx.Stats.RuleHits == nil {
			ctx.Stats.RuleHits = map[string]int{}
		}
		ctx.Stats.RuleHits[r.Name]++
		ctx.debugf(t.Name(), i+1, "Removed line (%s/%s): %s", r.Category, r.Name, clip(line, 80))
	}
	ctx.Stats.JunkRemoved += removed
	if removed > 0 {
		ctx.infof(t.Name(), "Removed %d known inserted/junk lines based on patterns.", removed)
	} else {
		ctx.debugf(t.Name(), 0, "No known junk lines found matching removal patterns.")
	}
	return out, nil
}
