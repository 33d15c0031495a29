package engine

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/pkg/errors"
)

const version = "0.4.0"

// Version returns the version string.
func Version() string {
	return version
}

// VersionFull returns version with Go and platform info.
func VersionFull() string {
	return fmt.Sprintf("debatch v%s (%s/%s, %s)", version, runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func banner(c palette) string {
	return c.Cyan + "debatch" + c.Reset + " | v." + version + " | " + c.Gray + "SomalifuscatorV2 batch deobfuscator" + c.Reset
}

// ErrorHint returns a helpful hint for common errors.
func ErrorHint(err error) string {
	if err == nil {
		return ""
	}
	switch errors.Cause(err) {
	case ErrInputMissing:
		return "Check the input path. Use absolute paths or run from the script's directory."
	case ErrSamePath:
		return "Choose a different output with -o; the input is never overwritten."
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "unknown stage"):
		return "Valid stages: " + strings.Join(StageNames, ",") + " (empty = all)."
	case strings.Contains(msg, "caret mode"):
		return "Use --caret xor or --caret pow when dispatch expressions contain '^'."
	case strings.Contains(msg, "unknown junk rule"):
		return "List bundled rule names with: debatch rules"
	case strings.Contains(msg, "junk rule"):
		return "Check junk_rules in the config file; patterns use Go regexp syntax."
	case strings.Contains(msg, "is a directory"):
		return "Pass a .bat or .cmd file, not a directory."
	case strings.Contains(msg, "too large"):
		return "The input file exceeds the safety limit. Split large scripts or increase the limit."
	case strings.Contains(msg, "config"):
		return "Print a valid starting point with: debatch config"
	}
	return ""
}
