package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPathNotFound is returned by the vault client when a read hits a path
// with no secret. Callers treat it as an empty mapping, not a failure.
var ErrPathNotFound = errors.New("secret path not found")

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// AuthenticationError indicates a rejected or expired store credential.
type AuthenticationError struct {
	Method string
	Err    error
}

func (e AuthenticationError) Error() string {
	msg := "authentication failed"
	if e.Method != "" {
		msg = fmt.Sprintf("%s authentication failed", e.Method)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e AuthenticationError) Unwrap() error { return e.Err }

// FormatError indicates an embedded blob that could not be decoded in its
// declared format. Only the JSON codec produces these; the line formats
// skip malformed input instead.
type FormatError struct {
	Format string
	Reason string
	Err    error
}

func (e FormatError) Error() string {
	msg := fmt.Sprintf("invalid %s content", e.Format)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e FormatError) Unwrap() error { return e.Err }

// KeyNotFoundError indicates an explicitly requested key is absent from the
// decoded blob.
type KeyNotFoundError struct {
	Key  string
	Path string
}

func (e KeyNotFoundError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("key '%s' not found in secret at %s", e.Key, e.Path)
	}
	return fmt.Sprintf("key '%s' not found in secret", e.Key)
}

// WriteConflictError indicates a check-and-set write lost a race with a
// concurrent writer. Fatal for the path; never retried here.
type WriteConflictError struct {
	Path    string
	Version int
}

func (e WriteConflictError) Error() string {
	return fmt.Sprintf("write conflict at %s: secret changed since version %d was read", e.Path, e.Version)
}

// RotationError scopes an underlying failure to one store path and
// operation so a batch can report per-path outcomes.
type RotationError struct {
	Path string
	Op   string
	Err  error
}

func (e RotationError) Error() string {
	return fmt.Sprintf("rotation failed at %s during %s: %v", e.Path, e.Op, e.Err)
}

func (e RotationError) Unwrap() error { return e.Err }

// VaultError enhances a raw vault client error with a suggestion
func VaultError(operation string, err error) error {
	return UserError{
		Message:    fmt.Sprintf("Vault error during %s", operation),
		Suggestion: vaultSuggestion(err),
		Err:        err,
	}
}

// vaultSuggestion returns helpful suggestions based on the vault error text
func vaultSuggestion(err error) string {
	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "connection refused"):
		return "Check that the Vault server is running and VAULT_ADDR points at it"
	case strings.Contains(errStr, "permission denied"):
		return "Check your token's policy grants access to this path"
	case strings.Contains(errStr, "invalid token"), strings.Contains(errStr, "expired"):
		return "Your session may be expired. Run 'rotavault login' again"
	case strings.Contains(errStr, "namespace"):
		return "Check the VAULT_NAMESPACE setting"
	case strings.Contains(errStr, "tls"):
		return "Check TLS configuration, or set tls_skip: true for testing"
	default:
		return "Check Vault connectivity and your configuration"
	}
}
