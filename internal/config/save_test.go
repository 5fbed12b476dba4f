package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "config.json")

	if err := Save(DefaultConfig(), path, false); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file was not created: %v", err)
	}
}

func TestSaveWritesDurationsAsStrings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	if err := Save(DefaultConfig(), path, false); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var raw map[string]map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("config file contains invalid JSON: %v", err)
	}
	if got := raw["build"]["task_timeout"]; got != "30m0s" {
		t.Errorf("task_timeout = %v, want \"30m0s\"", got)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := DefaultConfig()
	cfg.Agents["backend"] = AgentConfig{Provider: "claude", Model: "big"}
	cfg.Build.TaskTimeout = Duration(45 * time.Second)
	cfg.Deploy["production"] = DeployTargetConfig{Command: "make", Args: []string{"ship"}, URL: "https://shop.example.com"}

	if err := Save(cfg, path, false); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load("", path)
	if err != nil {
		t.Fatalf("Load after Save: %v", err)
	}
	if loaded.Agents["backend"].Model != "big" {
		t.Errorf("agent model = %q", loaded.Agents["backend"].Model)
	}
	if loaded.Build.TaskTimeout.Std() != 45*time.Second {
		t.Errorf("task timeout = %v", loaded.Build.TaskTimeout.Std())
	}
	if loaded.Deploy["production"].URL != "https://shop.example.com" {
		t.Errorf("deploy = %+v", loaded.Deploy)
	}
}

func TestSaveOverwritesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	first := DefaultConfig()
	first.LogLevel = "debug"
	if err := Save(first, path, false); err != nil {
		t.Fatal(err)
	}
	second := DefaultConfig()
	second.LogLevel = "error"
	if err := Save(second, path, true); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load("", path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.LogLevel != "error" {
		t.Errorf("log level = %q, want error", loaded.LogLevel)
	}
}

func TestSaveRefusesExistingWithoutOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	first := DefaultConfig()
	first.LogLevel = "debug"
	if err := Save(first, path, false); err != nil {
		t.Fatal(err)
	}
	second := DefaultConfig()
	second.LogLevel = "error"
	if err := Save(second, path, false); !errors.Is(err, ErrExists) {
		t.Fatalf("err = %v, want ErrExists", err)
	}

	loaded, err := Load("", path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.LogLevel != "debug" {
		t.Errorf("log level = %q, existing file must be kept", loaded.LogLevel)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("directory holds %d entries, want only the config", len(entries))
	}
}
