package engine

import (
	"os"
	"strings"
)

// AuxName is the variable the obfuscator slices as its auxiliary alphabet.
const AuxName = "KDOT"

// Environment maps upper-case variable names to the values slices are cut from.
type Environment map[string]string

// Values the obfuscator relies on when it slices well-known variables.
// SESSIONNAME only shows up when the launch-context guard is enabled.
var defaultEnvironment = map[string]string{
	"PUBLIC":                  `C:\Users\Public`,
	"COMMONPROGRAMFILES(X86)": `C:\Program Files (x86)\Common Files`,
	"PROGRAMFILES":            `C:\Program Files`,
	"PROGRAMFILES(X86)":       `C:\Program Files (x86)`,
	"DRIVERDATA":              `C:\Windows\System32\Drivers\DriverData`,
	"COMMONPROGRAMFILES":      `C:\Program Files\Common Files`,
	"COMMONPROGRAMW6432":      `C:\Program Files\Common Files`,
	"USERPROFILE":             `C:\Users\Default`,
	"TEMP":                    `C:\Users\Default\AppData\Local\Temp`,
	"TMP":                     `C:\Users\Default\AppData\Local\Temp`,
	"LOCALAPPDATA":            `C:\Users\Default\AppData\Local`,
	"APPDATA":                 `C:\Users\Default\AppData\Roaming`,
	"OS":                      "Windows_NT",
	"SYSTEMDRIVE":             "C:",
	"SESSIONNAME":             "Console",
}

// hostEnvironmentKeys may be overridden from the executing environment.
var hostEnvironmentKeys = []string{"USERPROFILE", "TEMP", "TMP", "LOCALAPPDATA", "APPDATA", "SYSTEMDRIVE"}

// DefaultEnvironment returns a fresh copy of the bundled table.
func DefaultEnvironment() Environment {
	env := make(Environment, len(defaultEnvironment))
	for k, v := range defaultEnvironment {
		env[k] = v
	}
	return env
}

// NewEnvironment builds the table for one run: bundled values, then host
// values for hostEnvironmentKeys when lookup is non-nil, then extra.
func NewEnvironment(lookup func(string) (string, bool), extra map[string]string) Environment {
	env := DefaultEnvironment()
	if lookup != nil {
		for _, k := range hostEnvironmentKeys {
			if v, ok := lookup(k); ok && v != "" {
				env[k] = v
			}
		}
	}
	for k, v := range extra {
		env[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return env
}

func hostLookup(opts *Options) func(string) (string, bool) {
	if !opts.HostEnv {
		return nil
	}
	return os.LookupEnv
}

// Lookup is case-insensitive on the variable name, like cmd.exe.
func (e Environment) Lookup(name string) (string, bool) {
	v, ok := e[strings.ToUpper(name)]
	return v, ok
}

// sliceChar returns the character at idx, counting from the end when idx
// is negative.
func sliceChar(value string, idx int) (string, bool) {
	r := []rune(value)
	if idx < 0 {
		idx += len(r)
	}
	if idx < 0 || idx >= len(r) {
		return "", false
	}
	return string(r[idx]), true
}
