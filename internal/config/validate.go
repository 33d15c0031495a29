package config

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/benzoXdev/debatch/internal/engine"
)

// Validate checks the loaded config for unknown names and bad patterns.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if _, err := engine.ParseCaretMode(cfg.Caret); err != nil {
		return errors.Wrap(err, "caret")
	}

	if err := engine.ValidateStages(cfg.Stages); err != nil {
		return errors.Wrap(err, "stages")
	}

	for k := range cfg.Environment {
		if strings.TrimSpace(k) == "" {
			return errors.New("environment: variable name must not be empty")
		}
		if strings.ContainsAny(k, "%:=") {
			return errors.Errorf("environment: invalid variable name %q", k)
		}
	}

	for i, c := range cfg.Commands {
		if strings.TrimSpace(c) == "" || strings.ContainsAny(c, " \t") {
			return errors.Errorf("commands[%d]: invalid keyword %q", i, c)
		}
	}

	if err := validateJunkRules(cfg.JunkRules); err != nil {
		return err
	}

	known := map[string]bool{}
	for _, n := range engine.RuleNames() {
		known[n] = true
	}
	for _, n := range cfg.DisableRules {
		if !known[strings.TrimSpace(n)] {
			return errors.Errorf("disable_rules: unknown junk rule %q", n)
		}
	}

	return nil
}

func validateJunkRules(rules []engine.RuleSpec) error {
	bundled := map[string]bool{}
	for _, n := range engine.RuleNames() {
		bundled[n] = true
	}
	seen := map[string]bool{}
	for i, r := range rules {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			return errors.Errorf("junk_rules[%d]: missing name", i)
		}
		if bundled[name] || seen[name] {
			return errors.Errorf("junk_rules[%d]: duplicate junk rule name %q", i, name)
		}
		seen[name] = true
		if strings.TrimSpace(r.Pattern) == "" {
			return errors.Errorf("junk_rules[%d] (%s): missing pattern", i, name)
		}
		if _, err := regexp.Compile(r.Pattern); err != nil {
			return errors.Wrapf(err, "junk_rules[%d] (%s)", i, name)
		}
	}
	return nil
}
