package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	roterrors "github.com/systmms/rotavault/internal/errors"
	"github.com/systmms/rotavault/internal/logging"
	"gopkg.in/yaml.v3"
)

// Config holds the runtime configuration
type Config struct {
	Path           string
	Logger         *logging.Logger
	NonInteractive bool
	Definition     *Definition
}

// Definition represents the rotavault.yaml structure: per-environment
// Vault endpoints with per-application path rules, plus format-level
// defaults used when a rule leaves something unsaid.
type Definition struct {
	Version      int                       `yaml:"version"`
	Environments map[string]Environment    `yaml:"environments"`
	Formats      map[string]FormatDefaults `yaml:"formats,omitempty"`
}

// Environment names one Vault deployment and the applications whose
// secrets live in it.
type Environment struct {
	VaultURL  string         `yaml:"vault_url"`
	Namespace string         `yaml:"namespace,omitempty"`
	Apps      map[string]App `yaml:"apps,omitempty"`
}

// App groups the path rules of one application.
type App struct {
	Paths []PathRule `yaml:"paths"`
}

// PathRule associates one secret path (or path suffix) with the format of
// its embedded blob, the field holding it, and optional explicit names
// for an injected credential pair.
type PathRule struct {
	Path          string `yaml:"path"`
	Format        string `yaml:"format,omitempty"`
	Key           string `yaml:"key,omitempty"`
	AccessKeyName string `yaml:"access_key_name,omitempty"`
	SecretKeyName string `yaml:"secret_key_name,omitempty"`
}

// FormatDefaults carries format-level fallbacks: the field name that
// conventionally holds a blob of this format, default credential-pair key
// names, and path substrings that select the format when no rule matches.
type FormatDefaults struct {
	DefaultKey    string   `yaml:"default_key,omitempty"`
	AccessKeyName string   `yaml:"access_key_name,omitempty"`
	SecretKeyName string   `yaml:"secret_key_name,omitempty"`
	PathPatterns  []string `yaml:"path_patterns,omitempty"`
}

// Load reads, schema-validates and parses the rotavault.yaml file.
func (c *Config) Load() error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return roterrors.ConfigError{
				Field:      "path",
				Value:      c.Path,
				Message:    "configuration file not found",
				Suggestion: "Create a rotavault.yaml or pass --config; content-only sniffing works without one for single-path rotations",
			}
		}
		return roterrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	if err := validateSchema(data); err != nil {
		return roterrors.ConfigError{
			Field:      "definition",
			Message:    "configuration does not match the expected structure",
			Suggestion: err.Error(),
		}
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return roterrors.ConfigError{
			Field:      "definition",
			Message:    "invalid YAML syntax",
			Suggestion: err.Error(),
		}
	}

	if err := def.Validate(); err != nil {
		return err
	}

	c.Definition = &def
	return nil
}

// Validate checks semantic constraints the schema cannot express.
func (d *Definition) Validate() error {
	for envName, env := range d.Environments {
		if env.VaultURL == "" {
			return roterrors.ConfigError{
				Field:      fmt.Sprintf("environments.%s.vault_url", envName),
				Message:    "vault_url is required",
				Suggestion: "Set the Vault server address, e.g. https://vault.example.com:8200",
			}
		}
		for appName, app := range env.Apps {
			for i, rule := range app.Paths {
				if rule.Path == "" {
					return roterrors.ConfigError{
						Field:   fmt.Sprintf("environments.%s.apps.%s.paths[%d].path", envName, appName, i),
						Message: "path is required",
					}
				}
			}
		}
	}
	return nil
}

// EnvironmentNames lists configured environment names, sorted.
func (d *Definition) EnvironmentNames() []string {
	names := make([]string, 0, len(d.Environments))
	for name := range d.Environments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apps lists the applications configured for an environment, sorted.
func (d *Definition) Apps(env string) ([]string, error) {
	e, ok := d.Environments[env]
	if !ok {
		return nil, roterrors.ConfigError{
			Field:      "environment",
			Value:      env,
			Message:    "environment not found",
			Suggestion: fmt.Sprintf("Available environments: %s", strings.Join(d.EnvironmentNames(), ", ")),
		}
	}
	names := make([]string, 0, len(e.Apps))
	for name := range e.Apps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Paths returns the path rules of one app in one environment.
func (d *Definition) Paths(env, app string) ([]PathRule, error) {
	e, ok := d.Environments[env]
	if !ok {
		return nil, roterrors.ConfigError{
			Field:      "environment",
			Value:      env,
			Message:    "environment not found",
			Suggestion: fmt.Sprintf("Available environments: %s", strings.Join(d.EnvironmentNames(), ", ")),
		}
	}
	a, ok := e.Apps[app]
	if !ok {
		apps, _ := d.Apps(env)
		return nil, roterrors.ConfigError{
			Field:      "app",
			Value:      app,
			Message:    fmt.Sprintf("app not configured in environment '%s'", env),
			Suggestion: fmt.Sprintf("Available apps: %s", strings.Join(apps, ", ")),
		}
	}
	return a.Paths, nil
}

// RulesFor flattens all path rules of an environment across apps, in
// stable (app name, rule index) order, for the resolver.
func (d *Definition) RulesFor(env string) []PathRule {
	e, ok := d.Environments[env]
	if !ok {
		return nil
	}
	appNames := make([]string, 0, len(e.Apps))
	for name := range e.Apps {
		appNames = append(appNames, name)
	}
	sort.Strings(appNames)

	var rules []PathRule
	for _, name := range appNames {
		rules = append(rules, e.Apps[name].Paths...)
	}
	return rules
}
