// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secmgr.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("environment = %s, want development", cfg.Environment)
	}
	if cfg.Policy.PackageLabelPrefix != "User::Pkg::" {
		t.Errorf("package_label_prefix = %q, want User::Pkg::", cfg.Policy.PackageLabelPrefix)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("logging = %+v, want debug/text", cfg.Logging)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoadRequiresEnvironmentVariable(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")

	_, err := Load()
	if err == nil {
		t.Fatal("Load succeeded without SECMGR_CONFIG")
	}
	if !strings.HasPrefix(err.Error(), "SECMGR_CONFIG environment variable not set") {
		t.Errorf("error = %q", err)
	}
}

func TestLoadFromEnvironmentVariable(t *testing.T) {
	path := writeConfig(t, `
environment: staging
paths:
  root: /srv/secmgr
`)
	t.Setenv(EnvironmentVariable, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Environment != Staging {
		t.Errorf("environment = %s, want staging", cfg.Environment)
	}
	if cfg.Paths.State != "/srv/secmgr/state" {
		t.Errorf("state = %q, want /srv/secmgr/state", cfg.Paths.State)
	}
	if cfg.Database.Path != "/srv/secmgr/state/privilege.db" {
		t.Errorf("database.path = %q, want /srv/secmgr/state/privilege.db", cfg.Database.Path)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
environment: staging

paths:
  root: /custom/root
  state: /var/lib/secmgr

database:
  path: ${SECMGR_STATE}/rules.db

policy:
  package_label_prefix: "pkg:"
  fetch_descriptions_on_start: true

logging:
  level: warn
  format: json
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Paths.Root != "/custom/root" {
		t.Errorf("root = %q", cfg.Paths.Root)
	}
	if cfg.Database.Path != "/var/lib/secmgr/rules.db" {
		t.Errorf("database.path = %q, want /var/lib/secmgr/rules.db", cfg.Database.Path)
	}
	if cfg.Policy.PackageLabelPrefix != "pkg:" || !cfg.Policy.FetchDescriptionsOnStart {
		t.Errorf("policy = %+v", cfg.Policy)
	}
	if cfg.Logging.Level != "warn" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFile of a missing file succeeded")
	}

	path := writeConfig(t, "paths: [not, a, mapping]\n")
	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile of malformed YAML succeeded")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
environment: development
paths:
  root: /base
development:
  paths:
    root: /dev-root
  policy:
    fetch_descriptions_on_start: true
  logging:
    level: info
production:
  paths:
    root: /prod-root
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Paths.Root != "/dev-root" {
		t.Errorf("root = %q, want /dev-root", cfg.Paths.Root)
	}
	if cfg.Paths.State != "/dev-root/state" {
		t.Errorf("state = %q, want /dev-root/state", cfg.Paths.State)
	}
	if !cfg.Policy.FetchDescriptionsOnStart {
		t.Error("development override of fetch_descriptions_on_start not applied")
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("logging = %+v, want info/text", cfg.Logging)
	}
}

func TestPolicyOverrideKeepsUnsetFields(t *testing.T) {
	path := writeConfig(t, `
environment: development
policy:
  fetch_descriptions_on_start: true
development:
  policy:
    package_label_prefix: "Dev::"
staging:
  policy:
    fetch_descriptions_on_start: false
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Policy.PackageLabelPrefix != "Dev::" {
		t.Errorf("package_label_prefix = %q, want Dev::", cfg.Policy.PackageLabelPrefix)
	}
	if !cfg.Policy.FetchDescriptionsOnStart {
		t.Error("override without fetch_descriptions_on_start reset the base value")
	}

	path = writeConfig(t, `
environment: staging
policy:
  fetch_descriptions_on_start: true
staging:
  policy:
    fetch_descriptions_on_start: false
`)
	cfg, err = LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Policy.FetchDescriptionsOnStart {
		t.Error("explicit staging override of fetch_descriptions_on_start not applied")
	}
	if cfg.Policy.PackageLabelPrefix != "User::Pkg::" {
		t.Errorf("package_label_prefix = %q, want the default", cfg.Policy.PackageLabelPrefix)
	}
}

func TestProductionDefaults(t *testing.T) {
	path := writeConfig(t, "environment: production\n")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("production logging = %+v, want info/json", cfg.Logging)
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("SECMGR_TEST_VALUE", "from-env")

	vars := map[string]string{"SECMGR_ROOT": "/root-dir"}
	tests := []struct {
		input string
		want  string
	}{
		{"${SECMGR_ROOT}/state", "/root-dir/state"},
		{"${SECMGR_TEST_VALUE}", "from-env"},
		{"${SECMGR_UNSET_VALUE:-fallback}", "fallback"},
		{"${SECMGR_UNSET_VALUE}", ""},
		{"/plain/path", "/plain/path"},
	}
	for _, test := range tests {
		if got := expandVars(test.input, vars); got != test.want {
			t.Errorf("expandVars(%q) = %q, want %q", test.input, got, test.want)
		}
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Environment = "testing"
	cfg.Database.Path = ""
	cfg.Policy.PackageLabelPrefix = ""
	cfg.Logging.Level = "loud"
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate accepted an invalid config")
	}
	for _, fragment := range []string{
		"invalid environment",
		"database.path",
		"policy.package_label_prefix",
		"logging.level",
		"logging.format",
	} {
		if !strings.Contains(err.Error(), fragment) {
			t.Errorf("error does not mention %s: %v", fragment, err)
		}
	}
}

func TestEnsurePaths(t *testing.T) {
	root := t.TempDir()
	cfg := Default()
	cfg.Paths.Root = filepath.Join(root, "secmgr")
	cfg.Paths.State = filepath.Join(root, "secmgr", "state")
	cfg.Database.Path = filepath.Join(root, "db", "privilege.db")

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths: %v", err)
	}
	for _, dir := range []string{cfg.Paths.Root, cfg.Paths.State, filepath.Join(root, "db")} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("%s not created: %v", dir, err)
		}
	}
}

func TestNewLogger(t *testing.T) {
	var buffer bytes.Buffer
	logger, err := LoggingConfig{Level: "info", Format: "json"}.NewLogger(&buffer)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	logger.Debug("hidden")
	logger.Info("visible", "app", "camera-app")

	lines := strings.Split(strings.TrimSpace(buffer.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1: %q", len(lines), buffer.String())
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if record["msg"] != "visible" || record["app"] != "camera-app" {
		t.Errorf("record = %v", record)
	}

	if _, err := (LoggingConfig{Level: "info", Format: "xml"}).NewLogger(&buffer); err == nil {
		t.Error("NewLogger accepted format xml")
	}
	if _, err := (LoggingConfig{Level: "chatty", Format: "text"}).NewLogger(&buffer); err == nil {
		t.Error("NewLogger accepted level chatty")
	}
}
