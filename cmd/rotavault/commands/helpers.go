package commands

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/systmms/rotavault/internal/config"
	roterrors "github.com/systmms/rotavault/internal/errors"
	"github.com/systmms/rotavault/internal/resolve"
	"github.com/systmms/rotavault/internal/rotate"
	"github.com/systmms/rotavault/internal/vault"
)

// loadDefinition loads the configuration file. A missing file is fine for
// config-free rotations (the resolver falls back to content sniffing) but
// fatal when an environment is named, because environments only exist in
// configuration.
func loadDefinition(cfg *config.Config, env string) (*config.Definition, error) {
	err := cfg.Load()
	if err == nil {
		return cfg.Definition, nil
	}

	var cfgErr roterrors.ConfigError
	if env == "" && stderrors.As(err, &cfgErr) && cfgErr.Field == "path" {
		cfg.Logger.Debug("No configuration at %s; relying on content sniffing", cfg.Path)
		return nil, nil
	}
	return nil, err
}

// vaultConfigFor builds the connection settings for an environment.
// Without an environment everything comes from VAULT_ADDR and friends.
func vaultConfigFor(def *config.Definition, env string) (vault.Config, error) {
	var vc vault.Config
	if env == "" {
		return vc, nil
	}
	if def == nil {
		return vc, roterrors.ConfigError{
			Field:      "environment",
			Value:      env,
			Message:    "no configuration loaded",
			Suggestion: "Create a rotavault.yaml defining this environment, or drop --env and set VAULT_ADDR",
		}
	}
	e, ok := def.Environments[env]
	if !ok {
		return vc, roterrors.ConfigError{
			Field:      "environment",
			Value:      env,
			Message:    "environment not found",
			Suggestion: fmt.Sprintf("Available environments: %v", def.EnvironmentNames()),
		}
	}
	vc.Address = e.VaultURL
	vc.Namespace = e.Namespace
	return vc, nil
}

// connect builds and authenticates a vault client for the environment.
func connect(ctx context.Context, cfg *config.Config, def *config.Definition, env string) (vault.Client, error) {
	vc, err := vaultConfigFor(def, env)
	if err != nil {
		return nil, err
	}
	client, err := vault.NewHTTPClient(vc, cfg.Logger)
	if err != nil {
		return nil, err
	}
	if err := client.Authenticate(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// newRotator wires a rotator for the client and loaded definition.
func newRotator(cfg *config.Config, client vault.Client, def *config.Definition) *rotate.Rotator {
	return rotate.New(client, resolve.New(def, cfg.Logger), cfg.Logger)
}

// outcomeReport is the JSON shape of a rotation outcome. Err does not
// marshal, so it is mirrored into a string field.
type outcomeReport struct {
	rotate.Outcome
	Error string `json:"error,omitempty"`
}

func reportFor(outcome rotate.Outcome, showOld bool) outcomeReport {
	report := outcomeReport{Outcome: outcome}
	if outcome.Err != nil {
		report.Error = outcome.Err.Error()
	}
	if !showOld && outcome.Changes != nil {
		redacted := make(map[string]rotate.Change, len(outcome.Changes))
		for key, change := range outcome.Changes {
			if change.Old != "" {
				change.Old = "[REDACTED]"
			}
			redacted[key] = change
		}
		report.Changes = redacted
	}
	return report
}

// printJSON writes v to stdout so results stay pipeable while logs go to
// stderr.
func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// logOutcome prints one outcome through the logger.
func logOutcome(cfg *config.Config, outcome rotate.Outcome) {
	if outcome.Err != nil {
		cfg.Logger.Error("%s: %v", outcome.Path, outcome.Err)
		return
	}
	for key, change := range outcome.Changes {
		if change.Created {
			cfg.Logger.Info("%s: created %s", outcome.Path, key)
		} else {
			cfg.Logger.Info("%s: rotated %s", outcome.Path, key)
		}
	}
}
