package engine

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyzeScript(t *testing.T) {
	r := newRand(11)
	enc := newCipherEncoder(r)
	var stmts []string
	for _, p := range plainScript {
		stmts = append(stmts, enc.encode(p))
	}
	lines := append(enc.header(), "if defined redo goto :KDOTUP", "wmic os get caption")
	lines = append(lines, scrambleScript(r, stmts)...)

	f := AnalyzeScript(lines, Options{})
	assert.Equal(t, len(lines), f.LineCount)
	assert.True(t, f.HasSignature)
	assert.True(t, f.HasAux)
	assert.Equal(t, 26, f.CipherDefs)
	assert.NotZero(t, f.CipherRefs)
	assert.True(t, f.HasBoundary)
	assert.Equal(t, len(stmts), f.DispatchSites)
	assert.Equal(t, len(stmts), f.TailBlocks)
	assert.False(t, f.CaretInMath)
	assert.Equal(t, 1, f.JunkLines[CatSignature])
	assert.Equal(t, 1, f.JunkLines[CatAntiConsole])
	assert.Equal(t, 1, f.JunkLines[CatAntiVM])
	assert.Empty(t, f.Warnings)
	assert.Contains(t, f.Suggestions, "Anti-VM/anti-sandbox checks present; run the original only in an isolated lab")
	assert.Greater(t, f.Complexity, 50)
}

func TestAnalyzeScriptFindings(t *testing.T) {
	f := AnalyzeScript([]string{
		"echo %q% %KDOT:~1,1%",
		"set /a ans=2^3",
		"goto %ans%",
		":100",
	}, Options{})
	assert.True(t, f.CaretInMath)
	assert.Equal(t, 1, f.DispatchSites)
	assert.False(t, f.HasBoundary)
	assert.Len(t, f.Warnings, 3)
	assert.Contains(t, f.Suggestions, "Dispatch math uses '^'; rerun with --caret xor or --caret pow")

	f = AnalyzeScript([]string{"set /a ans=2^3", "goto %ans%", ":100"}, Options{Caret: CaretXor})
	assert.Empty(t, f.Suggestions)

	f = AnalyzeScript([]string{"@echo off", "echo hello"}, Options{})
	assert.Zero(t, f.Complexity)
	assert.Equal(t, []string{"No SomalifuscatorV2 features found; output will only be normalized"}, f.Suggestions)
}

func TestPrintAnalysis(t *testing.T) {
	f := AnalyzeScript([]string{"::Made by K.Dot using SomalifuscatorV2", "echo %q%"}, Options{})
	var buf bytes.Buffer
	PrintAnalysis(&buf, f)
	out := buf.String()
	assert.Contains(t, out, "=== Script Analysis ===")
	assert.Contains(t, out, "Cipher references")
	assert.Contains(t, out, "Junk: signature")
	assert.Contains(t, strings.ToUpper(out), "OBFUSCATION SCORE")
	assert.Contains(t, out, "Warning: Cipher references present")
}
