package format

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	roterrors "github.com/systmms/rotavault/internal/errors"
	"github.com/systmms/rotavault/internal/logging"
)

// Format identifies how a key/value structure is embedded in a single
// secret field. Each format has a parse/format pair keyed by this tag.
type Format string

const (
	// ShellExport holds lines like `export KEY="value"` (quotes required).
	ShellExport Format = "dotenv_export"
	// PlainKV holds lines like `KEY=value`, quoted or bare.
	PlainKV Format = "dotenv_plain"
	// JSON holds a single JSON object.
	JSON Format = "json"
)

// Parse maps a configuration string onto a Format tag.
func Parse(s string) (Format, error) {
	switch Format(s) {
	case ShellExport, PlainKV, JSON:
		return Format(s), nil
	}
	return "", roterrors.ConfigError{
		Field:      "format",
		Value:      s,
		Message:    "unsupported secret format",
		Suggestion: fmt.Sprintf("Supported formats: %s, %s, %s", ShellExport, PlainKV, JSON),
	}
}

// DefaultField returns the field name that conventionally holds a blob of
// this format when no path rule says otherwise.
func (f Format) DefaultField() string {
	if f == JSON {
		return "secrets"
	}
	return "dotenv"
}

var (
	// Quotes are required around export values. The closing quote is not
	// forced to match the opening one, same as the pattern this grammar
	// descends from.
	exportLine = regexp.MustCompile(`^\s*export\s+([A-Za-z0-9_]+)=(["'])(.*)["']\s*$`)
	plainLine  = regexp.MustCompile(`^([A-Za-z0-9_]+)=(.*)$`)
)

// Codec converts between raw blob text and a key/value mapping for each
// Format. The line formats are permissive (malformed lines are skipped);
// JSON fails loudly. That asymmetry is deliberate: there is no sensible
// partial-match fallback for a structured document.
type Codec struct {
	logger *logging.Logger
}

// NewCodec creates a codec. The logger receives warnings about skipped
// malformed lines.
func NewCodec(logger *logging.Logger) *Codec {
	return &Codec{logger: logger}
}

// Decode parses text into a key/value mapping according to f.
func (c *Codec) Decode(f Format, text string) (map[string]string, error) {
	switch f {
	case ShellExport:
		return c.decodeShellExport(text), nil
	case PlainKV:
		return c.decodePlainKV(text), nil
	case JSON:
		return decodeJSON(text)
	}
	return nil, roterrors.FormatError{Format: string(f), Reason: "unknown format"}
}

// Encode serializes a mapping in format f with keys in lexicographic
// order. Round-tripping through Decode(Encode(m)) preserves key/value
// pairs, not bytes; byte preservation is the Updater's contract.
func (c *Codec) Encode(f Format, secrets map[string]string) (string, error) {
	switch f {
	case ShellExport:
		lines := make([]string, 0, len(secrets))
		for _, k := range sortedKeys(secrets) {
			lines = append(lines, fmt.Sprintf(`export %s="%s"`, k, secrets[k]))
		}
		return strings.Join(lines, "\n"), nil
	case PlainKV:
		lines := make([]string, 0, len(secrets))
		for _, k := range sortedKeys(secrets) {
			lines = append(lines, k+"="+secrets[k])
		}
		return strings.Join(lines, "\n"), nil
	case JSON:
		out, err := json.MarshalIndent(secrets, "", "  ")
		if err != nil {
			return "", roterrors.FormatError{Format: string(JSON), Reason: "encoding failed", Err: err}
		}
		return string(out), nil
	}
	return "", roterrors.FormatError{Format: string(f), Reason: "unknown format"}
}

func (c *Codec) decodeShellExport(text string) map[string]string {
	result := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		if m := exportLine.FindStringSubmatch(line); m != nil {
			result[m[1]] = m[3]
		}
		// Unmatched lines (comments, blanks, anything unquoted) are
		// dropped here; the Updater never reconstructs text from this.
	}
	return result
}

func (c *Codec) decodePlainKV(text string) map[string]string {
	result := make(map[string]string)
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m := plainLine.FindStringSubmatch(line)
		if m == nil {
			if c.logger != nil {
				c.logger.Warn("Skipping malformed line: %s", logging.Secret(line))
			}
			continue
		}
		result[m[1]] = unquote(strings.TrimSpace(m[2]))
	}
	return result
}

func decodeJSON(text string) (map[string]string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, roterrors.FormatError{Format: string(JSON), Reason: "not a JSON object", Err: err}
	}
	result := make(map[string]string, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			result[k] = s
			continue
		}
		// Non-string values keep their JSON rendering.
		result[k] = string(v)
	}
	return result, nil
}

// unquote strips one matching pair of surrounding quotes, if present.
func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
