package engine

import (
	"sort"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wmiCheck = `powershell -Command "if ((Get-WmiObject Win32_ComputerSystem).Model -match 'Virtual') { taskkill /f /im cmd.exe }"`

func TestJunkRemoved(t *testing.T) {
	cases := []struct {
		line string
		rule string
	}{
		{"doskey foo=bar", "dead-doskey-alias"},
		{"::Made by K.Dot using SomalifuscatorV2", "signature"},
		{"chcp 65001 > nul", "codepage"},
		{"set q=e", "cipher-definition"},
		{"set KDOT=ab12cd", "aux-definition"},
		{"goto :eof", "scrambler-eof"},
		{"goto %ans%", "scrambler-goto"},
		{"set /a ans=3+4", "scrambler-set"},
		{"if defined redo goto :KDOTUP", "anti-console-redo-check"},
		{":KDOTUP", "anti-console-label"},
		{"echo @echo off >> kdot1234.bat", "anti-changes-echo"},
		{`echo %cmdcmdline% | find /i "%~f0">nul || exit /b 1`, "launch-guard-cmdline"},
		{`if "%model%"=="VirtualBox" exit`, "anti-vm-virtualbox"},
		{"wmic os get caption", "anti-vm-wmic"},
		{"timeout 3 >nul", "dead-timeout"},
		{"for /l %%i in (1, 1, 1) do (echo x)", "dead-for-once"},
		{"if 0 equ 0 (echo a) else (echo b)", "dead-if-zero"},
		{`if exist C:\Windows\System32 (echo a) else (echo b)`, "dead-if-system32"},
		{"call notepad.exe >nul 2>nul", "dead-call-binary"},
		{"rem DEADCODE MARKER", "placeholder-deadcode"},
		{"   DOSKEY ls=dir", "dead-doskey-alias"},
	}
	for _, tc := range cases {
		r := matchJunk(defaultRules, tc.line)
		if assert.NotNil(t, r, tc.line) {
			assert.Equal(t, tc.rule, r.Name, tc.line)
		}
	}
}

func TestJunkKept(t *testing.T) {
	for _, line := range []string{
		"echo hello",
		"@echo off",
		"set name=value",
		"set a=bc",
		"set x=1 & echo y",
		"set /a count=count+1",
		"goto :start",
		":start",
		"if exist out.txt del out.txt",
		"echo done > log.txt",
		"powershell Get-Date",
		"call :sub",
		"",
	} {
		assert.Nil(t, matchJunk(defaultRules, line), line)
	}
}

func TestJunkTransform(t *testing.T) {
	ctx := testCtx(t, Options{})
	in := []string{"doskey foo=bar", "echo hello", "timeout 5 >nul", "doskey x=y"}
	got, err := (&JunkTransform{}).Apply(in, ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"echo hello"}, got)
	assert.Equal(t, 3, ctx.Stats.JunkRemoved)
	assert.Equal(t, map[string]int{"dead-doskey-alias": 2, "dead-timeout": 1}, ctx.Stats.RuleHits)
}

func TestJunkFirstRuleWins(t *testing.T) {
	// Both anti-vm-wmi and anti-vm-powershell match; the earlier one is
	// credited.
	r := matchJunk(defaultRules, wmiCheck)
	require.NotNil(t, r)
	assert.Equal(t, "anti-vm-wmi", r.Name)
}

func TestBuildRules(t *testing.T) {
	t.Run("disable", func(t *testing.T) {
		rules, err := buildRules(&Options{DisabledRules: []string{" anti-vm-wmi ", "dead-doskey-alias"}})
		require.NoError(t, err)
		assert.Len(t, rules, len(defaultRules)-2)
		assert.Nil(t, matchJunk(rules, "doskey foo=bar"))
		r := matchJunk(rules, wmiCheck)
		require.NotNil(t, r)
		assert.Equal(t, "anti-vm-powershell", r.Name)
	})
	t.Run("extra", func(t *testing.T) {
		rules, err := buildRules(&Options{ExtraRules: []RuleSpec{{Name: "nag", Pattern: `(?i)^\s*msg \* `}}})
		require.NoError(t, err)
		r := matchJunk(rules, "msg * hello")
		require.NotNil(t, r)
		assert.Equal(t, "nag", r.Name)
		assert.Equal(t, CatCustom, r.Category)
	})
	t.Run("unknown disabled", func(t *testing.T) {
		_, err := buildRules(&Options{DisabledRules: []string{"nope"}})
		assert.ErrorContains(t, err, "unknown junk rule")
	})
	t.Run("extra shadows bundled", func(t *testing.T) {
		_, err := buildRules(&Options{ExtraRules: []RuleSpec{{Name: "signature", Pattern: "x"}}})
		assert.ErrorContains(t, err, "taken by a bundled rule")
	})
	t.Run("bad pattern", func(t *testing.T) {
		_, err := buildRules(&Options{ExtraRules: []RuleSpec{{Name: "broken", Pattern: "(unclosed"}}})
		assert.ErrorContains(t, err, `junk rule "broken"`)
	})
}

func TestCompileRulesErrors(t *testing.T) {
	_, err := CompileRules([]RuleSpec{{Name: " ", Pattern: "x"}})
	assert.ErrorContains(t, err, "missing name")
	_, err = CompileRules([]RuleSpec{{Name: "a", Pattern: "x"}, {Name: "a", Pattern: "y"}})
	assert.ErrorContains(t, err, "duplicate name")
}

func TestRuleCatalog(t *testing.T) {
	names := RuleNames()
	assert.True(t, sort.StringsAreSorted(names))
	assert.Len(t, names, len(defaultRuleSpecs))
	for _, s := range DefaultRules() {
		assert.NotEmpty(t, s.Category, s.Name)
		assert.True(t, strings.HasPrefix(s.Pattern, "(?i)"), s.Name)
	}
	specs := DefaultRules()
	specs[0].Name = "changed"
	assert.Equal(t, "signature", defaultRuleSpecs[0].Name)
}

// Configuration errors come from pkg/errors so callers can rely on Cause
// and stack traces whichever layer produced them.
func TestConfigErrorsCarryStack(t *testing.T) {
	type stackTracer interface{ StackTrace() errors.StackTrace }

	_, err := buildRules(&Options{DisabledRules: []string{"nope"}})
	assert.Implements(t, (*stackTracer)(nil), err)

	_, err = buildRules(&Options{ExtraRules: []RuleSpec{{Name: "broken", Pattern: "(unclosed"}}})
	assert.Implements(t, (*stackTracer)(nil), err)

	_, err = buildPipeline("bogus")
	assert.Implements(t, (*stackTracer)(nil), err)

	_, err = ParseCaretMode("exp")
	assert.Implements(t, (*stackTracer)(nil), err)
}
