package commands

import (
	stderrors "errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/systmms/rotavault/internal/config"
	roterrors "github.com/systmms/rotavault/internal/errors"
	"github.com/systmms/rotavault/internal/rotate"
)

func NewPathsCommand(cfg *config.Config) *cobra.Command {
	var (
		envName string
		appName string
		check   bool
	)

	cmd := &cobra.Command{
		Use:   "paths",
		Short: "List configured secret paths",
		Long: `List the secret paths configured for an environment, with the format
and blob field each path resolves to.

With --check every path is probed with a read so you can confirm the
session token has access before rotating anything.

Examples:
  rotavault paths --env production
  rotavault paths --env production --app web --check`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := loadDefinition(cfg, envName)
			if err != nil {
				return err
			}

			apps, err := def.Apps(envName)
			if err != nil {
				return err
			}
			if appName != "" {
				apps = []string{appName}
			}

			type probe struct {
				app  string
				rule config.PathRule
			}
			var probes []probe
			for _, app := range apps {
				rules, err := def.Paths(envName, app)
				if err != nil {
					return err
				}
				for _, rule := range rules {
					probes = append(probes, probe{app: app, rule: rule})
				}
			}

			if len(probes) == 0 {
				cfg.Logger.Warn("No paths configured for environment '%s'", envName)
				return nil
			}

			out := cmd.OutOrStdout()
			for _, p := range probes {
				desc := p.rule.Path
				if p.rule.Format != "" {
					desc += fmt.Sprintf(" [%s]", p.rule.Format)
				}
				if p.rule.Key != "" {
					desc += fmt.Sprintf(" key=%s", p.rule.Key)
				}
				fmt.Fprintf(out, "%-12s %s\n", p.app, desc)
			}

			if !check {
				return nil
			}

			client, err := connect(cmd.Context(), cfg, def, envName)
			if err != nil {
				return err
			}
			defer client.Close()

			failed := 0
			for _, p := range probes {
				apiPath := rotate.NormalizePath(p.rule.Path)
				secret, err := client.Read(cmd.Context(), apiPath)
				switch {
				case stderrors.Is(err, roterrors.ErrPathNotFound):
					cfg.Logger.Warn("%s: not created yet", apiPath)
				case err != nil:
					failed++
					cfg.Logger.Error("%s: %v", apiPath, err)
				default:
					cfg.Logger.Info("%s: readable (version %d, %d fields)", apiPath, secret.Version, len(secret.Data))
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d paths are not readable", failed, len(probes))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&envName, "env", "", "Environment name (required)")
	cmd.Flags().StringVar(&appName, "app", "", "Limit to one application")
	cmd.Flags().BoolVar(&check, "check", false, "Probe read access to every path")

	_ = cmd.MarkFlagRequired("env")

	return cmd
}
