package debatch

import (
	"github.com/benzoXdev/debatch/internal/engine"
)

// Config selects stages, caret handling and extra rules for one run.
type Config = engine.Options

// Event is one diagnostic reported while deobfuscating.
type Event = engine.Event

// Deobfuscate returns the recovered script as CRLF-terminated UTF-8 text.
func Deobfuscate(data []byte, cfg Config) (string, error) {
	res, err := engine.Deobfuscate(data, cfg)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// DeobfuscateFile reads in and writes the recovered script to out. An
// empty out means "<stem>_deobf<ext>" next to in.
func DeobfuscateFile(in, out string, cfg Config) error {
	_, err := engine.DeobfuscateFile(in, out, cfg)
	return err
}
