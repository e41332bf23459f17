// Package config defines the devstack configuration file.
package config

import (
	"fmt"
	"path/filepath"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap/zapcore"

	"github.com/hornetgit/blockedit"
	pkgconfig "github.com/hornetgit/blockedit/pkg/config"
)

// Log formats.
const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

var serviceName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// Config represents the devstack configuration.
type Config struct {
	App         AppConfig         `yaml:"app"`
	Compose     ComposeConfig     `yaml:"compose"`
	EnvFile     string            `yaml:"env_file"`
	Vars        map[string]string `yaml:"vars"`
	Services    []ServiceConfig   `yaml:"services"`
	Directories []string          `yaml:"directories"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Compose.Validate(); err != nil {
		return fmt.Errorf("compose: %w", err)
	}
	seen := make(map[string]bool, len(c.Services))
	for i := range c.Services {
		s := &c.Services[i]
		if err := s.Validate(); err != nil {
			return fmt.Errorf("services[%d]: %w", i, err)
		}
		if seen[s.Name] {
			return fmt.Errorf("services[%d]: duplicate service %q", i, s.Name)
		}
		seen[s.Name] = true
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Directories, validation.Each(validation.Required)),
	)
}

// AppConfig holds process-level settings.
type AppConfig struct {
	LogLevel  zapcore.Level `yaml:"log_level"`
	LogFormat string        `yaml:"log_format"`
}

// Validate validates the application configuration.
func (c *AppConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.LogFormat, validation.Required, validation.In(LogFormatConsole, LogFormatJSON)),
	)
}

// ComposeConfig locates the compose file and describes its layout.
type ComposeConfig struct {
	Path       string `yaml:"path"`
	Root       string `yaml:"root"`
	VolumesKey string `yaml:"volumes_key"`
	// Indent fixes the service header indentation; 0 detects it from the file.
	Indent int `yaml:"indent"`
}

// Validate validates the compose configuration.
func (c *ComposeConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Root, validation.Required, validation.Match(serviceName)),
		validation.Field(&c.VolumesKey, validation.Required, validation.Match(serviceName)),
		validation.Field(&c.Indent, validation.Min(0), validation.Max(8)),
	)
}

// ServiceConfig is one optional service toggled in the compose file.
//
// Anchor is the root-level key the service is placed relative to: the
// compose root key (e.g. "services") puts it first, any other key (e.g.
// "volumes") puts it last, right before that key.
type ServiceConfig struct {
	Name     string   `yaml:"name"`
	Enabled  bool     `yaml:"enabled"`
	Template string   `yaml:"template"`
	Anchor   string   `yaml:"anchor"`
	Volumes  []string `yaml:"volumes"`
}

// Validate validates the service configuration.
func (c *ServiceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Name, validation.Required, validation.Match(serviceName)),
		validation.Field(&c.Template, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.Anchor, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.Volumes, validation.Each(validation.Required, validation.Match(serviceName))),
	)
}

// Resolve makes relative paths absolute against baseDir, normally the
// directory holding the config file.
func (c *Config) Resolve(baseDir string) {
	c.Compose.Path = resolvePath(baseDir, c.Compose.Path)
	c.EnvFile = resolvePath(baseDir, c.EnvFile)
	for i := range c.Services {
		c.Services[i].Template = resolvePath(baseDir, c.Services[i].Template)
	}
	for i := range c.Directories {
		c.Directories[i] = resolvePath(baseDir, c.Directories[i])
	}
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// EditorOptions returns the blockedit options matching the compose layout.
func (c *Config) EditorOptions() []blockedit.Option {
	return []blockedit.Option{
		blockedit.WithRoot(c.Compose.Root),
		blockedit.WithIndent(c.Compose.Indent),
	}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			LogLevel:  zapcore.InfoLevel,
			LogFormat: LogFormatConsole,
		},
		Compose: ComposeConfig{
			Path:       "compose.yaml",
			Root:       blockedit.DefaultRoot,
			VolumesKey: "volumes",
		},
		EnvFile: ".env",
		Vars:    map[string]string{},
	}
}

// Load reads the config file at path on top of the defaults and resolves
// relative paths against its directory.
func Load(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	cfg.Resolve(filepath.Dir(abs))
	return cfg, nil
}
