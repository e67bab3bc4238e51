package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/systmms/rotavault/internal/config"
	roterrors "github.com/systmms/rotavault/internal/errors"
	"github.com/systmms/rotavault/internal/secure"
	"github.com/systmms/rotavault/internal/verify"
)

func NewRotateCommand(cfg *config.Config) *cobra.Command {
	var (
		envName string
		jsonOut bool
		showOld bool
	)

	cmd := &cobra.Command{
		Use:   "rotate <path> <key> [value]",
		Short: "Rotate a secret value inside a Vault KV secret",
		Long: `Rotate one secret value at a Vault KV v2 path.

The key may be a top-level field of the secret or a variable inside an
embedded dotenv or JSON blob. Blob updates rewrite only the value token
of the matching line; comments, ordering, and untouched lines come back
byte for byte. When no value is given a random one is generated.

Examples:
  rotavault rotate team/app DB_PASSWORD
  rotavault rotate kv/team/app API_TOKEN s3cr3t --env production
  rotavault rotate team/app DB_PASSWORD --json | jq .changes`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, key := args[0], args[1]
			newValue := ""
			if len(args) == 3 {
				newValue = args[2]
			}

			def, err := loadDefinition(cfg, envName)
			if err != nil {
				return err
			}
			client, err := connect(cmd.Context(), cfg, def, envName)
			if err != nil {
				return err
			}
			defer client.Close()

			outcome := newRotator(cfg, client, def).RotateOne(cmd.Context(), envName, path, key, newValue)

			if jsonOut {
				if err := printJSON(cmd.OutOrStdout(), reportFor(outcome, showOld)); err != nil {
					return err
				}
			} else {
				logOutcome(cfg, outcome)
			}
			return outcome.Err
		},
	}

	cmd.Flags().StringVar(&envName, "env", "", "Environment whose Vault and path rules to use")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the outcome as JSON on stdout")
	cmd.Flags().BoolVar(&showOld, "show-old", false, "Include old values unredacted in JSON output")

	cmd.AddCommand(
		newRotatePairCommand(cfg),
		newRotateBatchCommand(cfg),
	)

	return cmd
}

func newRotatePairCommand(cfg *config.Config) *cobra.Command {
	var (
		envName     string
		accessValue string
		secretValue string
		doVerify    bool
		region      string
		jsonOut     bool
		showOld     bool
	)

	cmd := &cobra.Command{
		Use:   "pair <path>",
		Short: "Inject a rotated access/secret credential pair",
		Long: `Inject a freshly issued access/secret key pair into the secret at path.

Key names are taken from the path rule when configured; otherwise the
existing blob keys are searched for an ACCESS_KEY/SECRET_KEY naming
convention to reuse, and standard names are synthesized as a last
resort. Values come from --access-value/--secret-value or from the
ROTAVAULT_ACCESS_VALUE and ROTAVAULT_SECRET_VALUE environment variables.

With --verify the new pair is checked against AWS STS after the write.
A failed check is a warning only; new keys can take a few seconds to
propagate.

Examples:
  rotavault rotate pair team/app --access-value AKIA... --secret-value ...
  rotavault rotate pair team/app --env production --verify --region eu-west-1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			if accessValue == "" {
				accessValue = os.Getenv("ROTAVAULT_ACCESS_VALUE")
			}
			if secretValue == "" {
				secretValue = os.Getenv("ROTAVAULT_SECRET_VALUE")
			}
			if accessValue == "" || secretValue == "" {
				return roterrors.UserError{
					Message:    "Both halves of the credential pair are required",
					Suggestion: "Pass --access-value and --secret-value, or set ROTAVAULT_ACCESS_VALUE and ROTAVAULT_SECRET_VALUE",
				}
			}

			// Keep the pair in locked memory between parsing and use.
			accessBuf := secure.NewBufferFromString(accessValue)
			secretBuf := secure.NewBufferFromString(secretValue)
			defer accessBuf.Destroy()
			defer secretBuf.Destroy()

			def, err := loadDefinition(cfg, envName)
			if err != nil {
				return err
			}
			client, err := connect(cmd.Context(), cfg, def, envName)
			if err != nil {
				return err
			}
			defer client.Close()

			access, err := accessBuf.String()
			if err != nil {
				return err
			}
			secretVal, err := secretBuf.String()
			if err != nil {
				return err
			}

			outcome := newRotator(cfg, client, def).RotatePair(cmd.Context(), envName, path, access, secretVal)

			if outcome.Err == nil && doVerify {
				verifier := verify.NewAWSVerifier(region, cfg.Logger)
				arn, err := verifier.CheckKeyPair(cmd.Context(), access, secretVal)
				if err != nil {
					cfg.Logger.Warn("Pair written but verification failed: %v", err)
				} else {
					cfg.Logger.Info("Verified key pair as %s", arn)
				}
			}

			if jsonOut {
				if err := printJSON(cmd.OutOrStdout(), reportFor(outcome, showOld)); err != nil {
					return err
				}
			} else {
				logOutcome(cfg, outcome)
			}
			return outcome.Err
		},
	}

	cmd.Flags().StringVar(&envName, "env", "", "Environment whose Vault and path rules to use")
	cmd.Flags().StringVar(&accessValue, "access-value", "", "New access key value")
	cmd.Flags().StringVar(&secretValue, "secret-value", "", "New secret key value")
	cmd.Flags().BoolVar(&doVerify, "verify", false, "Verify the pair against AWS STS after writing")
	cmd.Flags().StringVar(&region, "region", "", "AWS region for --verify")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the outcome as JSON on stdout")
	cmd.Flags().BoolVar(&showOld, "show-old", false, "Include old values unredacted in JSON output")

	return cmd
}

func newRotateBatchCommand(cfg *config.Config) *cobra.Command {
	var (
		envName string
		appName string
		jsonOut bool
		showOld bool
	)

	cmd := &cobra.Command{
		Use:   "batch <key> [value]",
		Short: "Rotate a key across every configured path of an application",
		Long: `Rotate the same key on every path configured for an application.

Paths run in parallel and fail independently; the command exits non-zero
when any path failed, after reporting every outcome.

Examples:
  rotavault rotate batch DB_PASSWORD --env production --app web
  rotavault rotate batch API_TOKEN s3cr3t --env staging --app worker --json`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			newValue := ""
			if len(args) == 2 {
				newValue = args[1]
			}

			def, err := loadDefinition(cfg, envName)
			if err != nil {
				return err
			}
			if def == nil {
				return roterrors.ConfigError{
					Field:      "path",
					Value:      cfg.Path,
					Message:    "batch rotation needs a configuration file",
					Suggestion: "Create a rotavault.yaml listing the application's paths",
				}
			}
			rules, err := def.Paths(envName, appName)
			if err != nil {
				return err
			}
			paths := make([]string, len(rules))
			for i, rule := range rules {
				paths[i] = rule.Path
			}

			client, err := connect(cmd.Context(), cfg, def, envName)
			if err != nil {
				return err
			}
			defer client.Close()

			outcomes := newRotator(cfg, client, def).RotateBatch(cmd.Context(), envName, paths, key, newValue)

			failed := 0
			reports := make([]outcomeReport, len(outcomes))
			for i, outcome := range outcomes {
				reports[i] = reportFor(outcome, showOld)
				if !outcome.OK() {
					failed++
				}
				if !jsonOut {
					logOutcome(cfg, outcome)
				}
			}
			if jsonOut {
				if err := printJSON(cmd.OutOrStdout(), reports); err != nil {
					return err
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d paths failed to rotate", failed, len(outcomes))
			}
			cfg.Logger.Info("Rotated %s on %d paths", key, len(outcomes))
			return nil
		},
	}

	cmd.Flags().StringVar(&envName, "env", "", "Environment name (required)")
	cmd.Flags().StringVar(&appName, "app", "", "Application name (required)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print outcomes as JSON on stdout")
	cmd.Flags().BoolVar(&showOld, "show-old", false, "Include old values unredacted in JSON output")

	_ = cmd.MarkFlagRequired("env")
	_ = cmd.MarkFlagRequired("app")

	return cmd
}
