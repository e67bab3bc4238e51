package vault

import (
	"context"
	"time"
)

const (
	DefaultTimeout = 30 * time.Second

	// keyringService is the OS keyring service name under which session
	// tokens are cached, keyed by Vault address.
	keyringService = "rotavault"
)

// Secret is one version of the field mapping stored at a path. Version is
// the KV v2 metadata version used for check-and-set writes; 0 means the
// path did not exist when read.
type Secret struct {
	Data    map[string]string
	Version int
}

// Client is the store capability the rotation engine consumes. Paths are
// canonical KV v2 API paths ("kv/data/team/app"); the orchestrator
// normalizes user input before calling in.
type Client interface {
	Authenticate(ctx context.Context) error
	IsAuthenticated() bool
	Read(ctx context.Context, path string) (*Secret, error)
	Write(ctx context.Context, path string, data map[string]string, cas int) error
	Close() error
}

// Config holds Vault connection and authentication settings.
type Config struct {
	Address    string `yaml:"address"`     // Vault server address
	Token      string `yaml:"token"`       // Vault token (discouraged, use env var)
	AuthMethod string `yaml:"auth_method"` // Authentication method: token, github
	GitHubToken string `yaml:"github_token"` // For github auth (discouraged, use GITHUB_TOKEN)
	Namespace  string `yaml:"namespace"`   // Vault namespace (Vault Enterprise)
	TLSSkip    bool   `yaml:"tls_skip"`    // Skip TLS verification (not recommended)

	// DisableKeyring turns off OS keyring token caching. Tests and CI
	// runners without a keyring daemon set this.
	DisableKeyring bool `yaml:"disable_keyring"`
}
