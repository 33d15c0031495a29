package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/benzoXdev/debatch/internal/engine"
)

// Config holds debatch configuration.
type Config struct {
	Caret         string            `yaml:"caret"`          // unsupported | xor | pow
	HostEnv       *bool             `yaml:"host_env"`       // read USERPROFILE, TEMP, ... from the host
	LegacyCharset string            `yaml:"legacy_charset"` // e.g. "windows-1252", empty = from locale
	Stages        string            `yaml:"stages"`         // e.g. "resolve,scramble,junk,final"
	Environment   map[string]string `yaml:"environment"`    // extra or overriding slice sources
	Commands      []string          `yaml:"commands"`       // extra command keywords
	JunkRules     []engine.RuleSpec `yaml:"junk_rules"`
	DisableRules  []string          `yaml:"disable_rules"`
}

// Load reads configuration from a YAML file.
// If the file doesn't exist, it returns a default config and no error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultConfig(), nil
		}
		return nil, errors.Wrap(err, "reading config")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	hostEnv := true
	return &Config{
		Caret:        string(engine.CaretUnsupported),
		HostEnv:      &hostEnv,
		Environment:  map[string]string{},
		Commands:     []string{},
		JunkRules:    []engine.RuleSpec{},
		DisableRules: []string{},
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Caret == "" {
		cfg.Caret = string(engine.CaretUnsupported)
	}
	if cfg.HostEnv == nil {
		hostEnv := true
		cfg.HostEnv = &hostEnv
	}
	if cfg.Environment == nil {
		cfg.Environment = map[string]string{}
	}
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// Apply copies the configuration into engine options. Flags set by the
// caller afterwards take precedence.
func (c *Config) Apply(opts *engine.Options) error {
	caret, err := engine.ParseCaretMode(c.Caret)
	if err != nil {
		return err
	}
	opts.Caret = caret
	opts.HostEnv = c.HostEnv == nil || *c.HostEnv
	opts.LegacyCharset = c.LegacyCharset
	opts.Stages = c.Stages
	opts.ExtraEnv = c.Environment
	opts.ExtraCommands = c.Commands
	opts.ExtraRules = c.JunkRules
	opts.DisabledRules = c.DisableRules
	return nil
}
