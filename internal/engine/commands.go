package engine

import "strings"

// knownCommands are the cmd.exe keywords whose case is normalized when they
// open a line. Obfuscated output mixes case freely (%E1%cho), so the first
// word of a resolved line is lower-cased only when it is one of these.
var knownCommands = map[string]bool{
	// Flow and variables
	"echo": true, "set": true, "goto": true, "if": true, "for": true, "call": true,
	"exit": true, "rem": true, "pause": true, "setlocal": true, "endlocal": true,
	"shift": true,
	// Console
	"chcp": true, "cls": true, "title": true, "color": true, "mode": true, "prompt": true,
	// Files and directories
	"del": true, "copy": true, "move": true, "ren": true, "md": true, "rd": true,
	"dir": true, "type": true, "pushd": true, "popd": true, "path": true,
	"assoc": true, "ftype": true, "verify": true, "vol": true, "label": true,
	// Text
	"find": true, "findstr": true, "sort": true,
	// Processes and system
	"start": true, "net": true, "sc": true, "taskkill": true, "tasklist": true,
	"wmic": true, "powershell": true, "cscript": true,
}

// isCommand reports whether word names a known command. A leading label
// colon is ignored so ":ECHO" and "echo" are treated alike.
func isCommand(set map[string]bool, word string) bool {
	if word == "" {
		return false
	}
	return set[strings.TrimLeft(strings.ToLower(word), ":")]
}

// commandSet returns the keyword set for one run, defaults plus extra.
func commandSet(extra []string) map[string]bool {
	set := make(map[string]bool, len(knownCommands)+len(extra))
	for k := range knownCommands {
		set[k] = true
	}
	for _, k := range extra {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			set[k] = true
		}
	}
	return set
}
