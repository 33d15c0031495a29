package engine

import (
	"fmt"
	"io"
	"math"
	"regexp"
)

// reResidual matches variable references left in the text, resolved or not:
// %name% and %name:~i,1%.
var reResidual = regexp.MustCompile(`%[A-Za-z0-9_()]+(?::~-?\d+,\s*1)?%`)

// Metrics holds objective measures on a script.
type Metrics struct {
	SizeBytes      int     `json:"sizeBytes"`
	UniqueSymbols  int     `json:"uniqueSymbols"`
	Entropy        float64 `json:"entropy"`    // bits per symbol
	AlnumRatio     float64 `json:"alnumRatio"` // 0-1
	LineCount      int     `json:"lineCount"`
	ResidualTokens int     `json:"residualTokens"`
}

// ComputeMetrics computes metrics on text.
func ComputeMetrics(text string) Metrics {
	m := Metrics{SizeBytes: len(text)}
	if m.SizeBytes == 0 {
		return m
	}
	freq := make(map[rune]int)
	alnum, total := 0, 0
	for _, r := range text {
		freq[r]++
		total++
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			alnum++
		}
	}
	m.UniqueSymbols = len(freq)
	m.AlnumRatio = float64(alnum) / float64(total)
	m.LineCount = len(splitLines(text))
	m.ResidualTokens = len(reResidual.FindAllString(text, -1))
	n := float64(total)
	for _, c := range freq {
		p := float64(c) / n
		m.Entropy -= p * math.Log2(p)
	}
	return m
}

func printMetrics(w io.Writer, c palette, label string, m Metrics) {
	line := fmt.Sprintf("%s%s:%s size=%s%d%s bytes | lines=%d | unique=%d | entropy=%.2f | alnum_ratio=%.2f | %%tokens%%=%d",
		c.Cyan, label, c.Reset, c.Green, m.SizeBytes, c.Reset, m.LineCount, m.UniqueSymbols, m.Entropy, m.AlnumRatio, m.ResidualTokens)
	fmt.Fprintln(w, line)
}
