// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the environment variable consulted when no
// --config flag is given.
const EnvironmentVariable = "NM_DBUS_CONNECTION_ACTION_CONFIG"

// ConnectionConfig describes what to run for one user-declared
// connection.
type ConnectionConfig struct {
	// Name is exported to scripts as CONNECTION_NAME.
	Name string `toml:"name" yaml:"name" json:"name"`

	// Context is exported to scripts as CONNECTION_CONTEXT. Required;
	// typically used by scripts to pick a profile.
	Context string `toml:"context" yaml:"context" json:"context"`

	// UpScript runs via the shell when the connection becomes active.
	// Empty means nothing runs.
	UpScript string `toml:"up-script" yaml:"up-script" json:"up-script"`

	// DownScript runs via the shell when the connection becomes
	// inactive. Empty means nothing runs.
	DownScript string `toml:"down-script" yaml:"down-script" json:"down-script"`
}

// file is the on-disk shape. Decoded once, then copied into Config so
// callers never hold a reference to a mutable map.
type file struct {
	Connections map[string]ConnectionConfig `toml:"connections" yaml:"connections" json:"connections"`
}

// Config maps connection identifiers (UUID or name) to their
// configuration. Immutable after Load or LoadFile returns.
type Config struct {
	connections map[string]ConnectionConfig
	file        string
}

// LoadError reports a configuration that could not be located, read,
// or parsed. It is always fatal at startup.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("loading config: %v", e.Err)
	}
	return fmt.Sprintf("loading config %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ErrNoPath is returned by Path when neither the flag nor the
// environment variable names a configuration file.
var ErrNoPath = fmt.Errorf("no config provided: use -c/--config or set %s", EnvironmentVariable)

// Path returns the configuration path to load. An explicit flag value
// wins; otherwise getenv(EnvironmentVariable) is used.
func Path(flagValue string, getenv func(string) string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if value := getenv(EnvironmentVariable); value != "" {
		return value, nil
	}
	return "", &LoadError{Err: ErrNoPath}
}

// Load locates the configuration with Path and loads it with LoadFile.
func Load(flagValue string, getenv func(string) string) (*Config, error) {
	path, err := Path(flagValue, getenv)
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads, parses, and validates the configuration at path. The
// format is chosen by file extension (see package documentation).
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	config, err := Parse(data, formatForPath(path))
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	config.file = path
	return config, nil
}

// Format identifies a configuration file syntax.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

func formatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json", ".jsonc":
		return FormatJSON
	default:
		return FormatTOML
	}
}

// Parse decodes data in the given format and validates the result.
// The connections table must be present, and unknown keys are rejected
// in every format, so that an empty or truncated file or a misspelled
// "up_script" fails loudly instead of silently never running.
func Parse(data []byte, format Format) (*Config, error) {
	var decoded file

	switch format {
	case FormatTOML:
		metadata, err := toml.Decode(string(data), &decoded)
		if err != nil {
			return nil, fmt.Errorf("parsing TOML: %w", err)
		}
		if undecoded := metadata.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, key := range undecoded {
				keys[i] = key.String()
			}
			return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
		}
		if !metadata.IsDefined("connections") {
			return nil, errNoConnections
		}

	case FormatYAML:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&decoded); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("parsing YAML: file is empty")
			}
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}

	case FormatJSON:
		decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&decoded); err != nil {
			return nil, fmt.Errorf("parsing JSON: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}

	if decoded.Connections == nil {
		return nil, errNoConnections
	}
	return build(decoded.Connections)
}

var errNoConnections = errors.New("connections table is required")

// build validates entries and canonicalizes UUID keys.
func build(entries map[string]ConnectionConfig) (*Config, error) {
	config := &Config{connections: make(map[string]ConnectionConfig, len(entries))}
	origins := make(map[string]string, len(entries))

	var errs []error
	for key, entry := range entries {
		if strings.TrimSpace(key) == "" {
			errs = append(errs, fmt.Errorf("connections: empty key"))
			continue
		}
		if entry.Name == "" {
			errs = append(errs, fmt.Errorf("connections.%s: name is required", key))
		}
		if entry.Context == "" {
			errs = append(errs, fmt.Errorf("connections.%s: context is required", key))
		}

		canonical := CanonicalKey(key)
		if previous, exists := origins[canonical]; exists {
			errs = append(errs, fmt.Errorf("connections.%s: duplicates connections.%s", key, previous))
			continue
		}
		origins[canonical] = key
		config.connections[canonical] = entry
	}

	if len(errs) > 0 {
		sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
		return nil, errors.Join(errs...)
	}
	return config, nil
}

// CanonicalKey returns the lookup form of an identifier: the canonical
// lowercase hyphenated string for anything that parses as a UUID, and
// the identifier unchanged otherwise.
func CanonicalKey(identifier string) string {
	if parsed, err := uuid.Parse(identifier); err == nil {
		return parsed.String()
	}
	return identifier
}

// IsUUIDKey reports whether a key was interpreted as a UUID.
func IsUUIDKey(key string) bool {
	_, err := uuid.Parse(key)
	return err == nil
}

// Lookup finds the configuration for a connection. The UUID is tried
// first, then the name. Either may be empty. The returned key is the
// canonical configuration key that matched.
func (c *Config) Lookup(connectionUUID, name string) (ConnectionConfig, string, bool) {
	if connectionUUID != "" {
		key := CanonicalKey(connectionUUID)
		if entry, ok := c.connections[key]; ok {
			return entry, key, true
		}
	}
	if name != "" {
		if entry, ok := c.connections[name]; ok {
			return entry, name, true
		}
	}
	return ConnectionConfig{}, "", false
}

// File returns the path the configuration was loaded from, or "" if it
// came from Parse.
func (c *Config) File() string { return c.file }

// Len returns the number of configured connections.
func (c *Config) Len() int { return len(c.connections) }

// Keys returns the canonical configuration keys in sorted order.
func (c *Config) Keys() []string {
	keys := make([]string, 0, len(c.connections))
	for key := range c.connections {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Summary counts UUID-keyed and name-keyed entries, for startup logging.
func (c *Config) Summary() (byUUID, byName int) {
	for key := range c.connections {
		if IsUUIDKey(key) {
			byUUID++
		} else {
			byName++
		}
	}
	return byUUID, byName
}
