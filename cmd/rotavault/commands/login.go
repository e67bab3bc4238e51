package commands

import (
	"bufio"
	"strings"

	"github.com/spf13/cobra"
	"github.com/systmms/rotavault/internal/config"
	roterrors "github.com/systmms/rotavault/internal/errors"
	"github.com/systmms/rotavault/internal/secure"
	"github.com/systmms/rotavault/internal/vault"
)

func NewLoginCommand(cfg *config.Config) *cobra.Command {
	var (
		envName    string
		address    string
		tokenStdin bool
		tlsSkip    bool
		noKeyring  bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate against Vault and cache the session token",
		Long: `Authenticate against the Vault server of an environment.

Authentication uses a GitHub personal access token from the GITHUB_TOKEN
environment variable, or a Vault token from VAULT_TOKEN or --token-stdin.
The resulting session token is validated with a lookup-self call and
cached in the OS keyring for later commands.

Examples:
  rotavault login --env production
  GITHUB_TOKEN=ghp_xxx rotavault login --env staging
  vault print token | rotavault login --token-stdin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := loadDefinition(cfg, envName)
			if err != nil {
				return err
			}

			vc, err := vaultConfigFor(def, envName)
			if err != nil {
				return err
			}
			if address != "" {
				vc.Address = address
			}
			vc.TLSSkip = tlsSkip
			vc.DisableKeyring = noKeyring

			if tokenStdin {
				token, err := readTokenLine(cmd)
				if err != nil {
					return err
				}
				defer token.Destroy()
				vc.Token, err = token.String()
				if err != nil {
					return err
				}
				vc.AuthMethod = "token"
			}

			client, err := vault.NewHTTPClient(vc, cfg.Logger)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Authenticate(cmd.Context()); err != nil {
				return err
			}

			cfg.Logger.Info("Authenticated to %s", vc.Address)
			return nil
		},
	}

	cmd.Flags().StringVar(&envName, "env", "", "Environment to log in to")
	cmd.Flags().StringVar(&address, "address", "", "Vault address (overrides environment and VAULT_ADDR)")
	cmd.Flags().BoolVar(&tokenStdin, "token-stdin", false, "Read a Vault token from stdin")
	cmd.Flags().BoolVar(&tlsSkip, "tls-skip", false, "Skip TLS certificate verification (testing only)")
	cmd.Flags().BoolVar(&noKeyring, "no-keyring", false, "Do not cache the session token in the OS keyring")

	return cmd
}

// readTokenLine reads one line from stdin into locked memory.
func readTokenLine(cmd *cobra.Command) (*secure.Buffer, error) {
	scanner := bufio.NewScanner(cmd.InOrStdin())
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, roterrors.UserError{
				Message:    "Failed to read token from stdin",
				Details:    err.Error(),
				Suggestion: "Pipe the token in, e.g. 'vault print token | rotavault login --token-stdin'",
				Err:        err,
			}
		}
		return nil, roterrors.UserError{
			Message:    "No token on stdin",
			Suggestion: "Pipe the token in, e.g. 'vault print token | rotavault login --token-stdin'",
		}
	}
	token := strings.TrimSpace(scanner.Text())
	if token == "" {
		return nil, roterrors.UserError{
			Message:    "Empty token on stdin",
			Suggestion: "Pipe a non-empty Vault token",
		}
	}
	return secure.NewBufferFromString(token), nil
}
