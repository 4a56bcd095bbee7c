// Package config loads the dialect policy and other CLI-tunable settings
// from a YAML config file overlaid with command-line flags, following the
// layered precedence flags > file > built-in defaults.
package config

import (
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"buildlang/internal/dialect"
)

const keyDialect = "dialect"

// Config is the fully-resolved set of settings the CLI runs with.
type Config struct {
	Dialect dialect.Policy
	JSON    bool
}

// Loader resolves a Config from a YAML file (optional), a pflag.FlagSet
// already populated by cobra's flag parsing, and built-in defaults. It
// wraps a koanf.Koanf instance so callers can extend it with further
// keys beyond Dialect/JSON without changing the Loader's surface.
type Loader struct {
	k *koanf.Koanf
}

// NewLoader creates a Loader seeded with built-in defaults.
func NewLoader() *Loader {
	k := koanf.New(".")
	_ = k.Load(confmap.Provider(map[string]interface{}{
		keyDialect: dialect.Strict.Name,
		"json":     false,
	}, "."), nil)
	return &Loader{k: k}
}

// LoadFile merges a YAML config file into the loader, if path is
// non-empty. A missing file is not an error — it simply leaves defaults
// (and any previously loaded layers) in place.
func (l *Loader) LoadFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := l.k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("config: loading %s: %w", path, err)
	}
	return nil
}

// LoadFlags merges a parsed pflag.FlagSet on top of whatever is already
// loaded, giving explicit flags precedence over the file and defaults.
func (l *Loader) LoadFlags(flags *pflag.FlagSet) error {
	if err := l.k.Load(posflag.Provider(flags, ".", l.k), nil); err != nil {
		return fmt.Errorf("config: loading flags: %w", err)
	}
	return nil
}

// Resolve materializes the final Config, resolving the configured dialect
// name against the known presets.
func (l *Loader) Resolve() (Config, error) {
	name := l.k.String(keyDialect)
	policy, ok := dialect.ByName(name)
	if !ok {
		return Config{}, fmt.Errorf("config: unknown dialect %q (want %q or %q)", name, dialect.Strict.Name, dialect.Permissive.Name)
	}
	return Config{Dialect: policy, JSON: l.k.Bool("json")}, nil
}
