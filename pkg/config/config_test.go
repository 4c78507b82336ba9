package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

type testConf struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}

func writeConf(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConf(t, "name: eihwaz\nport: 9000\n")

	var cfg testConf
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "eihwaz" || cfg.Port != 9000 {
		t.Errorf("cfg = %+v, want {eihwaz 9000}", cfg)
	}
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("CONF_TEST_PORT", "7777")
	path := writeConf(t, "name: x\nport: ${CONF_TEST_PORT}\n")

	var cfg testConf
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 7777 {
		t.Errorf("port = %d, want 7777", cfg.Port)
	}
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := writeConf(t, "name: x\nprot: 9000\n")

	var cfg testConf
	if err := Load(path, &cfg); err == nil {
		t.Fatal("misspelled key should fail to load")
	}
}

func TestLoad_EmptyFileKeepsDefaults(t *testing.T) {
	path := writeConf(t, "")

	cfg := testConf{Name: "default", Port: 1}
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "default" || cfg.Port != 1 {
		t.Errorf("cfg = %+v, want defaults preserved", cfg)
	}
}

type validatedConf struct {
	Port int `yaml:"port"`
}

func (c *validatedConf) Validate() error {
	if c.Port <= 0 {
		return fmt.Errorf("port must be positive")
	}
	return nil
}

func TestLoad_RunsValidator(t *testing.T) {
	path := writeConf(t, "port: 0\n")

	var cfg validatedConf
	if err := Load(path, &cfg); err == nil {
		t.Fatal("validator failure should surface from Load")
	}
}

func TestLoadWithDefaults_FallsBack(t *testing.T) {
	fallback := writeConf(t, "name: fallback\nport: 2\n")

	var cfg testConf
	if err := LoadWithDefaults(filepath.Join(t.TempDir(), "missing.yaml"), fallback, &cfg); err != nil {
		t.Fatalf("LoadWithDefaults: %v", err)
	}
	if cfg.Name != "fallback" {
		t.Errorf("name = %q, want fallback", cfg.Name)
	}
}

func TestLoadWithDefaults_MissingEverything(t *testing.T) {
	var cfg testConf
	if err := LoadWithDefaults(filepath.Join(t.TempDir(), "missing.yaml"), "", &cfg); err == nil {
		t.Fatal("missing config with no fallback should fail")
	}
}
