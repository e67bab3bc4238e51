package format_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	roterrors "github.com/systmms/rotavault/internal/errors"
	"github.com/systmms/rotavault/internal/format"
)

func TestApplyPreservesUntouchedLines(t *testing.T) {
	t.Parallel()

	raw := "export DB_HOST=\"old\"\n# comment\nexport DB_PORT=\"5432\""
	newText, oldValues, err := newCodec().Apply(format.ShellExport, raw, map[string]string{"DB_HOST": "new"})
	require.NoError(t, err)

	assert.Equal(t, "export DB_HOST=\"new\"\n# comment\nexport DB_PORT=\"5432\"", newText)
	assert.Equal(t, map[string]string{"DB_HOST": "old"}, oldValues)
}

func TestApplyAppendsMissingKeys(t *testing.T) {
	t.Parallel()

	newText, oldValues, err := newCodec().Apply(format.PlainKV, "FOO=bar", map[string]string{"BAZ": "qux"})
	require.NoError(t, err)

	assert.Equal(t, "FOO=bar\nBAZ=qux", newText)
	assert.Empty(t, oldValues, "appended keys have no prior value")
}

func TestApplyQuoteStylePreserved(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		f       format.Format
		raw     string
		updates map[string]string
		want    string
		wantOld map[string]string
	}{
		{
			name:    "double quotes kept",
			f:       format.PlainKV,
			raw:     `PASSWORD="old-pass"`,
			updates: map[string]string{"PASSWORD": "new-pass"},
			want:    `PASSWORD="new-pass"`,
			wantOld: map[string]string{"PASSWORD": "old-pass"},
		},
		{
			name:    "single quotes kept",
			f:       format.PlainKV,
			raw:     `PASSWORD='old-pass'`,
			updates: map[string]string{"PASSWORD": "new-pass"},
			want:    `PASSWORD='new-pass'`,
			wantOld: map[string]string{"PASSWORD": "old-pass"},
		},
		{
			name:    "bare stays bare for plain kv",
			f:       format.PlainKV,
			raw:     "PASSWORD=old-pass",
			updates: map[string]string{"PASSWORD": "new-pass"},
			want:    "PASSWORD=new-pass",
			wantOld: map[string]string{"PASSWORD": "old-pass"},
		},
		{
			name:    "bare export gains canonical double quotes",
			f:       format.ShellExport,
			raw:     "export PASSWORD=old-pass",
			updates: map[string]string{"PASSWORD": "new-pass"},
			want:    `export PASSWORD="new-pass"`,
			wantOld: map[string]string{"PASSWORD": "old-pass"},
		},
		{
			name:    "export single quotes kept",
			f:       format.ShellExport,
			raw:     "export PASSWORD='old-pass'",
			updates: map[string]string{"PASSWORD": "new-pass"},
			want:    "export PASSWORD='new-pass'",
			wantOld: map[string]string{"PASSWORD": "old-pass"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			newText, oldValues, err := newCodec().Apply(tt.f, tt.raw, tt.updates)
			require.NoError(t, err)
			assert.Equal(t, tt.want, newText)
			assert.Equal(t, tt.wantOld, oldValues)
		})
	}
}

func TestApplyEmptyInputs(t *testing.T) {
	t.Parallel()

	newText, oldValues, err := newCodec().Apply(format.PlainKV, "", map[string]string{"K": "v"})
	require.NoError(t, err)
	assert.Equal(t, "", newText)
	assert.Empty(t, oldValues)

	raw := "FOO=bar\n# note"
	newText, oldValues, err = newCodec().Apply(format.PlainKV, raw, nil)
	require.NoError(t, err)
	assert.Equal(t, raw, newText)
	assert.Empty(t, oldValues)
}

func TestApplyRejectsJSON(t *testing.T) {
	t.Parallel()

	_, _, err := newCodec().Apply(format.JSON, `{"a":"1"}`, map[string]string{"a": "2"})
	var fmtErr roterrors.FormatError
	assert.ErrorAs(t, err, &fmtErr)
}

// Every line carrying an updated key is rewritten; the reported old value
// comes from the last matching line.
func TestApplyDuplicateKeyLines(t *testing.T) {
	t.Parallel()

	raw := "TOKEN=first\nOTHER=x\nTOKEN=second"
	newText, oldValues, err := newCodec().Apply(format.PlainKV, raw, map[string]string{"TOKEN": "rotated"})
	require.NoError(t, err)

	assert.Equal(t, "TOKEN=rotated\nOTHER=x\nTOKEN=rotated", newText)
	assert.Equal(t, map[string]string{"TOKEN": "second"}, oldValues)
}

func TestApplyKeepsTrailingNewline(t *testing.T) {
	t.Parallel()

	raw := "FOO=bar\n"
	newText, _, err := newCodec().Apply(format.PlainKV, raw, map[string]string{"BAZ": "qux"})
	require.NoError(t, err)
	assert.Equal(t, "FOO=bar\nBAZ=qux\n", newText)

	// No trailing newline in, none out.
	newText, _, err = newCodec().Apply(format.PlainKV, "FOO=bar", map[string]string{"FOO": "x"})
	require.NoError(t, err)
	assert.False(t, strings.HasSuffix(newText, "\n"))
}

func TestApplyIdempotent(t *testing.T) {
	t.Parallel()

	raw := "export A=\"1\"\n# keep me\nexport B='2'\nexport C=3"
	updates := map[string]string{"A": "x", "C": "y", "NEW": "z"}

	once, _, err := newCodec().Apply(format.ShellExport, raw, updates)
	require.NoError(t, err)
	twice, _, err := newCodec().Apply(format.ShellExport, once, updates)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
}

// Line preservation across a larger mixed document: every line whose key
// is not updated must appear byte-identical in the output.
func TestApplyLinePreservationProperty(t *testing.T) {
	t.Parallel()

	raw := strings.Join([]string{
		"# generated by deploy tooling",
		"",
		"DB_HOST=db.internal",
		"  # indented comment",
		"DB_PASS='hunter2'",
		"WEIRD LINE WITHOUT EQUALS",
		"DB_PORT=5432",
		"",
	}, "\n")

	newText, oldValues, err := newCodec().Apply(format.PlainKV, raw, map[string]string{"DB_PASS": "rotated"})
	require.NoError(t, err)

	oldLines := strings.Split(raw, "\n")
	newLines := strings.Split(newText, "\n")
	require.Len(t, newLines, len(oldLines))
	for i, line := range oldLines {
		if strings.HasPrefix(line, "DB_PASS=") {
			assert.Equal(t, "DB_PASS='rotated'", newLines[i])
			continue
		}
		assert.Equal(t, line, newLines[i], "line %d must be untouched", i)
	}
	assert.Equal(t, map[string]string{"DB_PASS": "hunter2"}, oldValues)
}
