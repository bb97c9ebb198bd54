package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/entrhq/navhistory/pkg/history"
	"github.com/entrhq/navhistory/pkg/logging"
)

func resetGlobal() {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = nil
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "navhistory.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.History.MaxEntryCount != history.DefaultMaxEntryCount {
		t.Errorf("Expected max_entry_count %d, got %d", history.DefaultMaxEntryCount, cfg.History.MaxEntryCount)
	}
	if !cfg.Browser.Headless {
		t.Error("Browser should default to headless")
	}
}

func TestLoad(t *testing.T) {
	t.Run("overrides defaults", func(t *testing.T) {
		path := writeConfig(t, `
history:
  max_entry_count: 5
site_isolation:
  isolated_patterns: ["*.is", "bank.example.com"]
browser:
  timeout: 45s
logging:
  verbosity: debug
`)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.History.MaxEntryCount != 5 {
			t.Errorf("Expected max_entry_count 5, got %d", cfg.History.MaxEntryCount)
		}
		if len(cfg.SiteIsolation.IsolatedPatterns) != 2 {
			t.Errorf("Expected 2 patterns, got %v", cfg.SiteIsolation.IsolatedPatterns)
		}
		if cfg.Browser.Timeout != 45*time.Second {
			t.Errorf("Expected timeout 45s, got %v", cfg.Browser.Timeout)
		}
		if !cfg.Browser.Headless {
			t.Error("Keys absent from the file should keep their defaults")
		}
		level, err := cfg.LogLevel()
		if err != nil || level != logging.LevelDebug {
			t.Errorf("Expected debug level, got %v (%v)", level, err)
		}
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		tests := []struct {
			name    string
			content string
			wantMsg string
		}{
			{"zero capacity", "history:\n  max_entry_count: 0\n", "history.max_entry_count"},
			{"bad verbosity", "logging:\n  verbosity: loud\n", "logging.verbosity"},
			{"negative timeout", "browser:\n  timeout: -1s\n", "browser.timeout"},
			{"empty pattern", "site_isolation:\n  isolated_patterns: [\"\"]\n", "site_isolation.isolated_patterns"},
			{"bad pattern", "site_isolation:\n  isolated_patterns: [\"[oops\"]\n", "isolation pattern"},
			{"no store path", "store:\n  path: \"\"\n", "store.path"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := Load(writeConfig(t, tt.content))
				if err == nil {
					t.Fatal("Expected validation error")
				}
				if !strings.Contains(err.Error(), tt.wantMsg) {
					t.Errorf("Expected error mentioning %q, got %v", tt.wantMsg, err)
				}
			})
		}
	})

	t.Run("in-memory store needs no path", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, "store:\n  path: \"\"\n  in_memory: true\n"))
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if !cfg.Store.InMemory {
			t.Error("Expected in_memory store")
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		if _, err := Load(writeConfig(t, "history: [")); err == nil {
			t.Error("Expected parse error")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Error("Expected read error")
		}
	})
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.History.MaxEntryCount = 7
	cfg.SiteIsolation.IsolateAll = true
	cfg.Browser.Timeout = 2 * time.Minute

	path := filepath.Join(t.TempDir(), "nested", "navhistory.yaml")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("Temp file should be renamed away")
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.History.MaxEntryCount != 7 || !loaded.SiteIsolation.IsolateAll || loaded.Browser.Timeout != 2*time.Minute {
		t.Errorf("Round trip mismatch: %+v", loaded)
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	cfg := Default()
	cfg.History.MaxEntryCount = -1
	path := filepath.Join(t.TempDir(), "navhistory.yaml")
	if err := cfg.Save(path); err == nil {
		t.Fatal("Expected validation error")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Invalid config should not be written")
	}
}

func TestHistoryOptions(t *testing.T) {
	cfg := Default()
	cfg.History.MaxEntryCount = 3

	c := history.NewController(nil, cfg.HistoryOptions()...)
	if c.MaxEntryCount() != 3 {
		t.Errorf("Expected capacity 3, got %d", c.MaxEntryCount())
	}
}

func TestStorePath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got, err := Default().StorePath()
	if err != nil {
		t.Fatalf("StorePath failed: %v", err)
	}
	if want := filepath.Join(home, ".navhistory", "sessions"); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}

	cfg := Default()
	cfg.Store.Path = "/var/lib/navhistory"
	if got, _ := cfg.StorePath(); got != "/var/lib/navhistory" {
		t.Errorf("Absolute path should be unchanged, got %s", got)
	}
}

func TestGlobal(t *testing.T) {
	resetGlobal()
	defer resetGlobal()

	if IsInitialized() {
		t.Fatal("Should not be initialized")
	}

	path := writeConfig(t, "history:\n  max_entry_count: 9\n")
	if err := Initialize(path); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if Global().History.MaxEntryCount != 9 {
		t.Errorf("Expected 9, got %d", Global().History.MaxEntryCount)
	}
}

func TestGlobalPanicsBeforeInitialize(t *testing.T) {
	resetGlobal()
	defer func() {
		if recover() == nil {
			t.Error("Expected panic")
		}
	}()
	Global()
}

func TestLoadOrDefault(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	cfg, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("LoadOrDefault failed: %v", err)
	}
	if cfg.History.MaxEntryCount != history.DefaultMaxEntryCount {
		t.Errorf("Expected defaults without a file, got %d", cfg.History.MaxEntryCount)
	}

	if err := os.WriteFile(DefaultFileName, []byte("history:\n  max_entry_count: 4\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadOrDefault("")
	if err != nil {
		t.Fatalf("LoadOrDefault failed: %v", err)
	}
	if cfg.History.MaxEntryCount != 4 {
		t.Errorf("Expected navhistory.yaml in the working directory to be used, got %d", cfg.History.MaxEntryCount)
	}
}
