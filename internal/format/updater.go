package format

import (
	"fmt"
	"regexp"
	"strings"

	roterrors "github.com/systmms/rotavault/internal/errors"
)

// Key extraction for the updater is looser than the decoder grammars on
// purpose: a line like `export KEY=bare` never decodes, but its value must
// still be replaceable in place.
var (
	exportKeyLine = regexp.MustCompile(`^\s*export\s+([A-Za-z0-9_]+)=(.*)$`)
	plainKeyLine  = regexp.MustCompile(`^([A-Za-z0-9_]+)=(.*)$`)
	quotedValue   = regexp.MustCompile(`^\s*(["'])(.*)["']\s*$`)
)

// Apply rewrites the value tokens of the updated keys in raw text while
// copying every other line byte for byte: comments, blank lines, ordering
// and quoting style all survive. Keys in updates that never appear are
// appended in the format's canonical syntax. The returned mapping holds
// the prior (unquoted) value of every key that existed before.
//
// Empty raw text or an empty update set returns the input unchanged.
// A key defined on several lines has every line rewritten; the old value
// reported is the one from the last matching line. JSON blobs have no
// line structure to preserve and are rejected; merge them through the
// Codec instead.
func (c *Codec) Apply(f Format, raw string, updates map[string]string) (string, map[string]string, error) {
	switch f {
	case ShellExport, PlainKV:
	case JSON:
		return "", nil, roterrors.FormatError{Format: string(JSON), Reason: "line-preserving update does not apply to JSON; merge through the codec"}
	default:
		return "", nil, roterrors.FormatError{Format: string(f), Reason: "unknown format"}
	}

	oldValues := make(map[string]string)
	if raw == "" || len(updates) == 0 {
		return raw, oldValues, nil
	}

	keyLine := plainKeyLine
	if f == ShellExport {
		keyLine = exportKeyLine
	}

	lines := strings.Split(raw, "\n")
	seen := make(map[string]bool, len(updates))

	for i, line := range lines {
		m := keyLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		key, rest := m[1], m[2]
		newValue, ok := updates[key]
		if !ok {
			continue
		}

		if qm := quotedValue.FindStringSubmatch(rest); qm != nil {
			oldValues[key] = qm[2]
			lines[i] = rewriteLine(f, key, newValue, qm[1])
		} else {
			oldValues[key] = strings.TrimSpace(rest)
			lines[i] = rewriteLine(f, key, newValue, "")
		}
		seen[key] = true
	}

	for _, key := range sortedKeys(updates) {
		if seen[key] {
			continue
		}
		appended := canonicalLine(f, key, updates[key])
		// Slot new keys in front of a trailing empty line so the text
		// keeps the trailing-newline structure it already had.
		if n := len(lines); n > 0 && lines[n-1] == "" {
			lines = append(lines[:n-1], appended, "")
		} else {
			lines = append(lines, appended)
		}
	}

	return strings.Join(lines, "\n"), oldValues, nil
}

// rewriteLine builds the replacement line for an updated key. The original
// quote character wins when one was present; otherwise ShellExport falls
// back to its canonical double quotes and PlainKV stays bare.
func rewriteLine(f Format, key, value, quote string) string {
	if quote == "" && f == ShellExport {
		quote = `"`
	}
	body := key + "=" + quote + value + quote
	if f == ShellExport {
		return "export " + body
	}
	return body
}

// canonicalLine renders a key in the syntax Encode would use.
func canonicalLine(f Format, key, value string) string {
	if f == ShellExport {
		return fmt.Sprintf(`export %s="%s"`, key, value)
	}
	return key + "=" + value
}
