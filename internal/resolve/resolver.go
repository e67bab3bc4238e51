package resolve

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/systmms/rotavault/internal/config"
	"github.com/systmms/rotavault/internal/format"
	"github.com/systmms/rotavault/internal/logging"
)

// Hardcoded last-resort defaults when neither rules, patterns nor live
// content say anything about a path.
const (
	DefaultAccessKeyName = "AWS_ACCESS_KEY_ID"
	DefaultSecretKeyName = "AWS_SECRET_ACCESS_KEY"
)

// Resolution is the resolver's answer for one path: the format governing
// the embedded blob, the field holding it, and (when configuration pins
// them) the key names an injected credential pair should use. Empty
// credential names mean "decide at injection time from the live keys".
type Resolution struct {
	Format        format.Format
	Field         string
	AccessKeyName string
	SecretKeyName string

	// Source records which precedence level decided the format:
	// "rule", "pattern", "sniff" or "default".
	Source string
}

// Resolver decides which format and field govern a secret path. Rules and
// format defaults come from configuration, built once at startup and
// read-only afterwards.
type Resolver struct {
	def    *config.Definition
	logger *logging.Logger
}

// New creates a resolver. def may be nil (content-only mode: everything
// is sniffed from live field values).
func New(def *config.Definition, logger *logging.Logger) *Resolver {
	return &Resolver{def: def, logger: logger}
}

// Resolve determines format, blob field and credential key names for a
// path, first match wins:
//
//  1. an explicit path rule for the environment (exact, then suffix),
//  2. format-level defaults for anything the rule leaves empty,
//  3. configured path-pattern substrings against the normalized path,
//  4. sniffing the live field values when there is no configuration,
//  5. the hardcoded ShellExport/dotenv/AWS default.
//
// fields are the secret's current top-level values, used only for
// sniffing; passing nil disables that level.
func (r *Resolver) Resolve(env, path string, fields map[string]string) Resolution {
	if rule, ok := r.matchRule(env, path); ok {
		return r.fromRule(rule)
	}

	if res, ok := r.matchPattern(path); ok {
		return res
	}

	if !r.configured() {
		if res, ok := sniff(fields); ok {
			res.Source = "sniff"
			return res
		}
	}

	if r.logger != nil {
		r.logger.Debug("No rule, pattern or sniffable content for %s; using defaults", path)
	}
	return Resolution{
		Format:        format.ShellExport,
		Field:         format.ShellExport.DefaultField(),
		AccessKeyName: DefaultAccessKeyName,
		SecretKeyName: DefaultSecretKeyName,
		Source:        "default",
	}
}

func (r *Resolver) configured() bool {
	return r.def != nil && (len(r.def.Environments) > 0 || len(r.def.Formats) > 0)
}

func (r *Resolver) matchRule(env, path string) (config.PathRule, bool) {
	if r.def == nil {
		return config.PathRule{}, false
	}
	rules := r.def.RulesFor(env)
	norm := normalizePath(path)
	for _, rule := range rules {
		if normalizePath(rule.Path) == norm {
			return rule, true
		}
	}
	for _, rule := range rules {
		if strings.HasSuffix(norm, normalizePath(rule.Path)) {
			return rule, true
		}
	}
	return config.PathRule{}, false
}

func (r *Resolver) fromRule(rule config.PathRule) Resolution {
	f := format.ShellExport
	if rule.Format != "" {
		if parsed, err := format.Parse(rule.Format); err == nil {
			f = parsed
		} else if r.logger != nil {
			r.logger.Warn("Ignoring invalid format '%s' in path rule for %s", rule.Format, rule.Path)
		}
	}

	res := Resolution{
		Format:        f,
		Field:         rule.Key,
		AccessKeyName: rule.AccessKeyName,
		SecretKeyName: rule.SecretKeyName,
		Source:        "rule",
	}
	if res.Field == "" {
		res.Field = r.defaultField(f)
	}
	// Explicit per-path names beat format-level defaults.
	if res.AccessKeyName == "" || res.SecretKeyName == "" {
		if fd, ok := r.formatDefaults(f); ok {
			if res.AccessKeyName == "" {
				res.AccessKeyName = fd.AccessKeyName
			}
			if res.SecretKeyName == "" {
				res.SecretKeyName = fd.SecretKeyName
			}
		}
	}
	return res
}

func (r *Resolver) matchPattern(path string) (Resolution, bool) {
	if r.def == nil || len(r.def.Formats) == 0 {
		return Resolution{}, false
	}
	norm := normalizePath(path)

	names := make([]string, 0, len(r.def.Formats))
	for name := range r.def.Formats {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		f, err := format.Parse(name)
		if err != nil {
			continue
		}
		fd := r.def.Formats[name]
		for _, pattern := range fd.PathPatterns {
			if pattern != "" && strings.Contains(norm, strings.ToLower(pattern)) {
				return Resolution{
					Format:        f,
					Field:         r.defaultField(f),
					AccessKeyName: fd.AccessKeyName,
					SecretKeyName: fd.SecretKeyName,
					Source:        "pattern",
				}, true
			}
		}
	}
	return Resolution{}, false
}

func (r *Resolver) defaultField(f format.Format) string {
	if fd, ok := r.formatDefaults(f); ok && fd.DefaultKey != "" {
		return fd.DefaultKey
	}
	return f.DefaultField()
}

func (r *Resolver) formatDefaults(f format.Format) (config.FormatDefaults, bool) {
	if r.def == nil {
		return config.FormatDefaults{}, false
	}
	fd, ok := r.def.Formats[string(f)]
	return fd, ok
}

// sniff infers the format from the live field values of a secret. Fields
// are walked in sorted name order so the "first field matching wins" rule
// is deterministic. Returns false when nothing matches.
func sniff(fields map[string]string) (Resolution, bool) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := fields[name]
		switch {
		case looksLikeJSONObject(value):
			return Resolution{Format: format.JSON, Field: name}, true
		case strings.Contains(value, "=") && !strings.Contains(value, "export"):
			return Resolution{Format: format.PlainKV, Field: name}, true
		case strings.Contains(value, "export"):
			return Resolution{Format: format.ShellExport, Field: name}, true
		}
	}
	return Resolution{}, false
}

func looksLikeJSONObject(value string) bool {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "{") {
		return false
	}
	var obj map[string]json.RawMessage
	return json.Unmarshal([]byte(trimmed), &obj) == nil
}

// normalizePath lower-cases a path and strips the mount prefix and the KV
// v2 "data" segment so rules and patterns match however the caller spelled
// the path.
func normalizePath(path string) string {
	p := strings.ToLower(strings.Trim(path, "/"))
	for _, mount := range []string{"kv/", "secret/"} {
		if strings.HasPrefix(p, mount) {
			p = strings.TrimPrefix(p, mount)
			break
		}
	}
	p = strings.TrimPrefix(p, "data/")
	return p
}
