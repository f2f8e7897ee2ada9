// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const homeTOML = `
[connections.3F1F0A5E-8C1B-4A4E-9D1E-2C1A6A1E7B20]
name = "Home"
context = "default"
up-script = "echo up"
down-script = "echo down"

[connections.Office]
name = "Office"
context = "work"
up-script = "echo office up"
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestPath(t *testing.T) {
	environment := map[string]string{EnvironmentVariable: "/etc/from-env.toml"}
	getenv := func(key string) string { return environment[key] }
	empty := func(string) string { return "" }

	tests := []struct {
		name     string
		flag     string
		getenv   func(string) string
		expected string
		wantErr  bool
	}{
		{name: "flag wins", flag: "/etc/from-flag.toml", getenv: getenv, expected: "/etc/from-flag.toml"},
		{name: "environment fallback", getenv: getenv, expected: "/etc/from-env.toml"},
		{name: "neither set", getenv: empty, wantErr: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			path, err := Path(test.flag, test.getenv)
			if test.wantErr {
				if !errors.Is(err, ErrNoPath) {
					t.Fatalf("expected ErrNoPath, got %v", err)
				}
				if !strings.Contains(err.Error(), EnvironmentVariable) {
					t.Errorf("error should name %s, got %q", EnvironmentVariable, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Path() failed: %v", err)
			}
			if path != test.expected {
				t.Errorf("expected %q, got %q", test.expected, path)
			}
		})
	}
}

func TestLoad_RequiresEnvironment(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")

	_, err := Load("", os.Getenv)
	if err == nil {
		t.Fatal("expected error when environment variable is not set, got nil")
	}
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected *LoadError, got %T", err)
	}
}

func TestLoad_WithEnvironment(t *testing.T) {
	path := writeConfig(t, "actions.toml", homeTOML)
	t.Setenv(EnvironmentVariable, path)

	config, err := Load("", os.Getenv)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if config.Len() != 2 {
		t.Errorf("expected 2 connections, got %d", config.Len())
	}
	if config.File() != path {
		t.Errorf("File() = %q, want %q", config.File(), path)
	}
}

func TestLoad_FlagOverridesEnvironment(t *testing.T) {
	t.Setenv(EnvironmentVariable, filepath.Join(t.TempDir(), "absent.toml"))
	path := writeConfig(t, "actions.toml", homeTOML)

	config, err := Load(path, os.Getenv)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if config.File() != path {
		t.Errorf("File() = %q, want the flag path %q", config.File(), path)
	}
}

func TestLoadFile_TOML(t *testing.T) {
	config, err := LoadFile(writeConfig(t, "actions.toml", homeTOML))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	entry, key, ok := config.Lookup("3f1f0a5e-8c1b-4a4e-9d1e-2c1a6a1e7b20", "")
	if !ok {
		t.Fatal("expected uppercase UUID key to match canonical lowercase lookup")
	}
	if key != "3f1f0a5e-8c1b-4a4e-9d1e-2c1a6a1e7b20" {
		t.Errorf("expected canonical key, got %q", key)
	}
	if entry.Name != "Home" || entry.Context != "default" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.UpScript != "echo up" || entry.DownScript != "echo down" {
		t.Errorf("hyphenated script keys not decoded: %+v", entry)
	}

	office, _, ok := config.Lookup("", "Office")
	if !ok {
		t.Fatal("expected name lookup to match")
	}
	if office.DownScript != "" {
		t.Errorf("expected empty down-script, got %q", office.DownScript)
	}

	byUUID, byName := config.Summary()
	if byUUID != 1 || byName != 1 {
		t.Errorf("expected 1 UUID key and 1 name key, got %d and %d", byUUID, byName)
	}
}

func TestLoadFile_YAML(t *testing.T) {
	content := `
connections:
  uuid-1:
    name: Home
    context: default
    up-script: echo up
    down-script: echo down
`
	config, err := LoadFile(writeConfig(t, "actions.yaml", content))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	entry, _, ok := config.Lookup("uuid-1", "")
	if !ok {
		t.Fatal("expected uuid-1 to be configured")
	}
	if entry.UpScript != "echo up" {
		t.Errorf("expected up-script=echo up, got %q", entry.UpScript)
	}
}

func TestLoadFile_JSONC(t *testing.T) {
	content := `{
  // Laptop dock ethernet.
  "connections": {
    "Dock": {"name": "Dock", "context": "desk", "up-script": "true", "down-script": "true",},
  },
}`
	config, err := LoadFile(writeConfig(t, "actions.jsonc", content))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if _, _, ok := config.Lookup("", "Dock"); !ok {
		t.Error("expected Dock to be configured")
	}
}

func TestLoadFile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{
			name:    "malformed TOML",
			file:    "bad.toml",
			content: "[connections\n",
			want:    "parsing TOML",
		},
		{
			name:    "unknown TOML key",
			file:    "typo.toml",
			content: "[connections.Home]\nname = \"Home\"\ncontext = \"x\"\nup_script = \"echo\"\n",
			want:    "unknown keys",
		},
		{
			name:    "unknown YAML key",
			file:    "typo.yaml",
			content: "connections:\n  Home:\n    name: Home\n    upscript: echo\n",
			want:    "parsing YAML",
		},
		{
			name:    "empty YAML",
			file:    "empty.yaml",
			content: "",
			want:    "file is empty",
		},
		{
			name:    "empty TOML",
			file:    "empty.toml",
			content: "",
			want:    "connections table is required",
		},
		{
			name:    "TOML without connections table",
			file:    "comments.toml",
			content: "# connections moved to another file\n",
			want:    "connections table is required",
		},
		{
			name:    "YAML without connections",
			file:    "null.yaml",
			content: "connections:\n",
			want:    "connections table is required",
		},
		{
			name:    "empty JSON object",
			file:    "empty.json",
			content: "{}",
			want:    "connections table is required",
		},
		{
			name:    "missing name",
			file:    "noname.toml",
			content: "[connections.Home]\ncontext = \"x\"\n",
			want:    "name is required",
		},
		{
			name:    "missing context",
			file:    "nocontext.toml",
			content: "[connections.Home]\nname = \"Home\"\nup-script = \"echo up\"\n",
			want:    "connections.Home: context is required",
		},
		{
			name:    "missing context YAML",
			file:    "nocontext.yaml",
			content: "connections:\n  Home:\n    name: Home\n",
			want:    "context is required",
		},
		{
			name: "duplicate UUID spellings",
			file: "dup.toml",
			content: "[connections.3f1f0a5e-8c1b-4a4e-9d1e-2c1a6a1e7b20]\nname = \"a\"\ncontext = \"x\"\n" +
				"[connections.3F1F0A5E-8C1B-4A4E-9D1E-2C1A6A1E7B20]\nname = \"b\"\ncontext = \"x\"\n",
			want: "duplicates",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			path := writeConfig(t, test.file, test.content)
			_, err := LoadFile(path)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var loadErr *LoadError
			if !errors.As(err, &loadErr) {
				t.Fatalf("expected *LoadError, got %T: %v", err, err)
			}
			if loadErr.Path != path {
				t.Errorf("expected error path %q, got %q", path, loadErr.Path)
			}
			if !strings.Contains(err.Error(), test.want) {
				t.Errorf("expected error containing %q, got %q", test.want, err)
			}
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.toml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
}

func TestLookup_PrefersUUID(t *testing.T) {
	content := `
[connections.uuid-1]
name = "ByUUID"
context = "a"

[connections.Home]
name = "ByName"
context = "b"
`
	config, err := Parse([]byte(content), FormatTOML)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	tests := []struct {
		name     string
		uuid     string
		id       string
		expected string
		found    bool
	}{
		{name: "both match", uuid: "uuid-1", id: "Home", expected: "ByUUID", found: true},
		{name: "name fallback", uuid: "uuid-9", id: "Home", expected: "ByName", found: true},
		{name: "uuid only", uuid: "uuid-1", expected: "ByUUID", found: true},
		{name: "neither", uuid: "uuid-9", id: "Cafe", found: false},
		{name: "empty identity", found: false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			entry, _, ok := config.Lookup(test.uuid, test.id)
			if ok != test.found {
				t.Fatalf("expected found=%v, got %v", test.found, ok)
			}
			if ok && entry.Name != test.expected {
				t.Errorf("expected %s, got %s", test.expected, entry.Name)
			}
		})
	}
}

func TestKeys_Sorted(t *testing.T) {
	config, err := Parse([]byte(homeTOML), FormatTOML)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	keys := config.Keys()
	expected := []string{"3f1f0a5e-8c1b-4a4e-9d1e-2c1a6a1e7b20", "Office"}
	if len(keys) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, keys)
	}
	for i := range expected {
		if keys[i] != expected[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], expected[i])
		}
	}
}

func TestParse_ScriptsOptional(t *testing.T) {
	content := "[connections.Metered]\nname = \"Metered\"\ncontext = \"phone\"\n"
	config, err := Parse([]byte(content), FormatTOML)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	entry, _, ok := config.Lookup("", "Metered")
	if !ok {
		t.Fatal("expected Metered to be configured")
	}
	if entry.UpScript != "" || entry.DownScript != "" {
		t.Errorf("expected no scripts, got %+v", entry)
	}
}
