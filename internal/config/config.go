// Package config loads pqsync settings from a config file, PQSYNC_*
// environment variables and command-line flags, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g.
// PQSYNC_SYNC_DEBOUNCEMS=0.
const EnvPrefix = "PQSYNC"

// ErrUnknownKey is returned by SetString for keys pqsync does not define.
var ErrUnknownKey = errors.New("unknown configuration key")

// Store is the configuration collaborator: a key/value view with
// persistence and a validated typed snapshot.
type Store struct {
	v      *viper.Viper
	path   string
	logger *slog.Logger
}

// Load reads configuration. With an explicit file, that file is used and
// may not exist yet; otherwise pqsync.{yaml,toml,json} is searched for in
// the working directory and the user config directory.
func Load(file string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "config")

	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	s := &Store{v: v, logger: logger}

	if file != "" {
		v.SetConfigFile(file)
		s.path = file
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config %s: %w", file, err)
			}
			logger.Debug("config file does not exist yet", "path", file)
		}
		return s, nil
	}

	v.SetConfigName("pqsync")
	v.AddConfigPath(".")
	if dir := Dir(); dir != "" {
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if dir := Dir(); dir != "" {
			s.path = filepath.Join(dir, "pqsync.yaml")
		}
		return s, nil
	}
	s.path = v.ConfigFileUsed()
	logger.Debug("loaded config", "path", s.path)
	return s, nil
}

// Dir is the per-user pqsync configuration directory, or "" when the
// platform has none.
func Dir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "pqsync")
}

// Path is the file Save writes to.
func (s *Store) Path() string { return s.path }

// Get returns the effective value of key.
func (s *Store) Get(key string) any { return s.v.Get(key) }

// Set overrides key for this process; Save persists it.
func (s *Store) Set(key string, value any) { s.v.Set(key, value) }

// SetString parses raw according to the type of key's default and sets it.
func (s *Store) SetString(key, raw string) error {
	def, ok := lookupDefault(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	var value any
	switch def.(type) {
	case bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%s expects true or false: %w", key, err)
		}
		value = b
	case int:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%s expects an integer: %w", key, err)
		}
		value = n
	default:
		value = raw
	}
	s.v.Set(key, value)
	return nil
}

// BindPFlag makes a command-line flag override key when it is set.
func (s *Store) BindPFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("no flag for %s", key)
	}
	return s.v.BindPFlag(key, flag)
}

// Save writes the effective settings to Path.
func (s *Store) Save() error {
	if s.path == "" {
		return errors.New("no configuration path available")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("failed to write config %s: %w", s.path, err)
	}
	s.logger.Info("saved config", "path", s.path)
	return nil
}

// All returns every effective setting as a nested map.
func (s *Store) All() map[string]any { return s.v.AllSettings() }

// Keys lists every defined key, sorted.
func Keys() []string {
	keys := make([]string, 0, len(defaults()))
	for k := range defaults() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func lookupDefault(key string) (any, bool) {
	for k, v := range defaults() {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}
