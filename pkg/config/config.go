// Package config holds the navhistory configuration: history capacity,
// site isolation, session storage, the live browser and logging.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/entrhq/navhistory/pkg/history"
	"github.com/entrhq/navhistory/pkg/logging"
	"github.com/entrhq/navhistory/pkg/siteisolation"
)

// DefaultFileName is looked up in the working directory when no
// configuration file is given.
const DefaultFileName = "navhistory.yaml"

// Config is the root of navhistory.yaml.
type Config struct {
	History       HistoryConfig       `yaml:"history" json:"history"`
	SiteIsolation SiteIsolationConfig `yaml:"site_isolation" json:"site_isolation"`
	Store         StoreConfig         `yaml:"store" json:"store"`
	Browser       BrowserConfig       `yaml:"browser" json:"browser"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
}

// HistoryConfig configures every tab's history list.
type HistoryConfig struct {
	MaxEntryCount int `yaml:"max_entry_count" json:"max_entry_count" validate:"gte=1,lte=10000"`
}

// SiteIsolationConfig configures the site policy.
type SiteIsolationConfig struct {
	IsolateAll       bool     `yaml:"isolate_all" json:"isolate_all"`
	IsolatedPatterns []string `yaml:"isolated_patterns" json:"isolated_patterns" validate:"dive,required"`
}

// StoreConfig configures where saved tabs live.
type StoreConfig struct {
	Path     string `yaml:"path" json:"path"`
	InMemory bool   `yaml:"in_memory" json:"in_memory"`
}

// BrowserConfig configures the playwright-driven recorder.
type BrowserConfig struct {
	Headless bool          `yaml:"headless" json:"headless"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout" validate:"gte=0"`
}

// LoggingConfig configures log verbosity.
type LoggingConfig struct {
	Verbosity string `yaml:"verbosity" json:"verbosity" validate:"omitempty,oneof=quiet normal verbose debug"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	// Report fields by their YAML names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		History: HistoryConfig{
			MaxEntryCount: history.DefaultMaxEntryCount,
		},
		Store: StoreConfig{
			Path: filepath.Join("~", ".navhistory", "sessions"),
		},
		Browser: BrowserConfig{
			Headless: true,
			Timeout:  30 * time.Second,
		},
		Logging: LoggingConfig{
			Verbosity: "normal",
		},
	}
}

// Validate checks field constraints and the rules that span fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describe(fe))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if !c.Store.InMemory && strings.TrimSpace(c.Store.Path) == "" {
		return fmt.Errorf("invalid configuration: store.path is required unless store.in_memory is set")
	}

	// Patterns must compile before anything starts tagging sites.
	if _, err := c.SitePolicy(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func describe(fe validator.FieldError) string {
	// Namespace is "Config.section.field"; drop the root type.
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "required":
		return fmt.Sprintf("%s must not be empty", field)
	default:
		return fmt.Sprintf("%s must satisfy %s=%s, got %v", field, fe.Tag(), fe.Param(), fe.Value())
	}
}

// HistoryOptions returns the controller options the configuration implies.
func (c *Config) HistoryOptions() []history.Option {
	return []history.Option{history.WithMaxEntryCount(c.History.MaxEntryCount)}
}

// SitePolicy builds the configured site policy.
func (c *Config) SitePolicy() (*siteisolation.Policy, error) {
	return siteisolation.New(c.SiteIsolation.IsolateAll, c.SiteIsolation.IsolatedPatterns)
}

// LogLevel maps the configured verbosity onto a logging level.
func (c *Config) LogLevel() (logging.Level, error) {
	return logging.ParseLevel(c.Logging.Verbosity)
}

// StorePath returns the store directory with a leading ~ expanded.
func (c *Config) StorePath() (string, error) {
	return expandHome(c.Store.Path)
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

var (
	// global is the process-wide configuration set by Initialize.
	global   *Config
	globalMu sync.Mutex
)

// Initialize loads path (or the defaults when path is empty and no
// navhistory.yaml exists) and makes it the global configuration.
// This should be called once at application startup.
func Initialize(path string) error {
	cfg, err := LoadOrDefault(path)
	if err != nil {
		return err
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	global = cfg
	return nil
}

// Global returns the global configuration.
// Panics if Initialize has not been called.
func Global() *Config {
	globalMu.Lock()
	defer globalMu.Unlock()

	if global == nil {
		panic("config not initialized: call config.Initialize first")
	}
	return global
}

// IsInitialized returns true if the global configuration has been initialized.
func IsInitialized() bool {
	globalMu.Lock()
	defer globalMu.Unlock()
	return global != nil
}
