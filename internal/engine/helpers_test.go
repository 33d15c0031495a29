package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// testCtx returns a run context with settings extracted from header.
func testCtx(t *testing.T, opts Options, header ...string) *Ctx {
	t.Helper()
	if opts.Caret == "" {
		opts.Caret = CaretUnsupported
	}
	ctx, err := newCtx(&opts)
	require.NoError(t, err)
	ctx.Settings = ExtractSettings(header, ctx)
	return ctx
}

// eventCodes returns the codes of the recorded events at level.
func eventCodes(ctx *Ctx, level Level) []string {
	var codes []string
	for _, e := range ctx.diag.Events() {
		if e.Level == level {
			codes = append(codes, e.Code)
		}
	}
	return codes
}

func countCode(events []Event, code string) int {
	n := 0
	for _, e := range events {
		if e.Code == code {
			n++
		}
	}
	return n
}
