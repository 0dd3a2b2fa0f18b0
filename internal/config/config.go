// Package config loads codec settings for the command line tools from a TOML
// or YAML file.
//
// Both formats use the same keys:
//
//	name = "ra-frontend"
//	base = "lightweight"        # default, lightweight or none
//	max_nesting_depth = 4
//	max_message_size = 1048576  # -1 disables the limit
//	ber_input = true
//
//	[rules.genm]
//	transaction_id = true
//	sender_nonce = false
//	protection = "forbidden"    # optional, required or forbidden
//
// Rules start from the base policy; fields left out of a rule keep the base
// value.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/goccy/go-yaml"

	cmp "github.com/mdean75/cmp-lib"
)

// Format is the syntax of a configuration file.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FormatFor picks the format from the file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("config: unsupported file extension %q", filepath.Ext(path))
}

// Config is the decoded configuration.
type Config struct {
	Policy          *cmp.Policy
	MaxNestingDepth int
	MaxMessageSize  int64
	BERInput        bool
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Policy:          cmp.DefaultPolicy(),
		MaxNestingDepth: cmp.DefaultMaxNestingDepth,
		MaxMessageSize:  cmp.DefaultMaxMessageSize,
	}
}

// Options converts c into codec options.
func (c Config) Options() []cmp.Option {
	opts := []cmp.Option{
		cmp.WithPolicy(c.Policy),
		cmp.WithMaxNestingDepth(c.MaxNestingDepth),
		cmp.WithMaxMessageSize(c.MaxMessageSize),
	}
	if c.BERInput {
		opts = append(opts, cmp.WithBERInput())
	}
	return opts
}

type ruleFile struct {
	TransactionID *bool  `toml:"transaction_id" yaml:"transaction_id"`
	SenderNonce   *bool  `toml:"sender_nonce" yaml:"sender_nonce"`
	Protection    string `toml:"protection" yaml:"protection"`
}

type fileConfig struct {
	Name            string              `toml:"name" yaml:"name"`
	Base            string              `toml:"base" yaml:"base"`
	MaxNestingDepth *int                `toml:"max_nesting_depth" yaml:"max_nesting_depth"`
	MaxMessageSize  *int64              `toml:"max_message_size" yaml:"max_message_size"`
	BERInput        bool                `toml:"ber_input" yaml:"ber_input"`
	Rules           map[string]ruleFile `toml:"rules" yaml:"rules"`
}

// Load reads the file at path, choosing the format from its extension.
func Load(path string) (Config, error) {
	format, err := FormatFor(path)
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(data, format)
	if err != nil {
		return Config{}, fmt.Errorf("load %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data in the given format. Unknown keys are rejected.
func Parse(data []byte, format Format) (Config, error) {
	var raw fileConfig
	switch format {
	case FormatTOML:
		meta, err := toml.Decode(string(data), &raw)
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("config: unknown key %q", undecoded[0].String())
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data), yaml.Strict())
		if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("config: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("config: unknown format %q", format)
	}
	return raw.resolve()
}

func (raw fileConfig) resolve() (Config, error) {
	cfg := Default()
	p, err := cmp.PolicyByName(raw.Base)
	if err != nil {
		return Config{}, err
	}
	if raw.Name != "" {
		p.Name = raw.Name
	}
	for _, name := range slices.Sorted(maps.Keys(raw.Rules)) {
		bt, err := cmp.ParseBodyType(name)
		if err != nil {
			return Config{}, fmt.Errorf("rules: %w", err)
		}
		rf := raw.Rules[name]
		rule := p.Rule(bt)
		if rf.TransactionID != nil {
			rule.TransactionID = *rf.TransactionID
		}
		if rf.SenderNonce != nil {
			rule.SenderNonce = *rf.SenderNonce
		}
		if rf.Protection != "" {
			if rule.Protection, err = cmp.ParseRequirement(rf.Protection); err != nil {
				return Config{}, fmt.Errorf("rules.%s: %w", name, err)
			}
		}
		if err := p.SetRule(bt, rule); err != nil {
			return Config{}, err
		}
	}
	cfg.Policy = p

	if raw.MaxNestingDepth != nil {
		if *raw.MaxNestingDepth < 0 {
			return Config{}, fmt.Errorf("config: max_nesting_depth must not be negative")
		}
		cfg.MaxNestingDepth = *raw.MaxNestingDepth
	}
	if raw.MaxMessageSize != nil {
		if *raw.MaxMessageSize <= 0 && *raw.MaxMessageSize != cmp.UnlimitedMessageSize {
			return Config{}, fmt.Errorf("config: max_message_size must be positive or -1")
		}
		cfg.MaxMessageSize = *raw.MaxMessageSize
	}
	cfg.BERInput = raw.BERInput
	return cfg, nil
}
