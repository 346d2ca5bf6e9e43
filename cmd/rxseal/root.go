package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hengadev/rxseal"
	"github.com/hengadev/rxseal/providers/secrets/vault"
)

type rootOptions struct {
	configPath string
	envFiles   []string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "rxseal",
		Short:         "Prescription confidentiality and integrity service",
		Long:          "rxseal encrypts and signs prescriptions, negotiates per-session keys and serves the prescription API.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return rxseal.LoadEnvFile(opts.envFiles...)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML configuration file (default: read RXSEAL_* environment variables)")
	root.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv files to load before reading configuration")

	root.AddCommand(
		newServeCmd(opts),
		newAuditCmd(opts),
		newTokenCmd(opts),
		newVersionCmd(),
	)
	return root
}

func (o *rootOptions) loadConfig() (rxseal.Config, error) {
	if o.configPath != "" {
		return rxseal.LoadConfigFile(o.configPath)
	}
	return rxseal.LoadConfigFromEnvironment()
}

func secretProvider(cfg rxseal.Config) (rxseal.SecretProvider, error) {
	switch cfg.SecretsSource {
	case "vault":
		return vault.NewKVStore(cfg.VaultAlias)
	case "env":
		return rxseal.NewEnvSecretStore(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported secrets source '%s'", rxseal.ErrInvalidConfiguration, cfg.SecretsSource)
	}
}

func (o *rootOptions) openService(ctx context.Context) (*rxseal.Service, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	provider, err := secretProvider(cfg)
	if err != nil {
		return nil, err
	}
	return rxseal.NewService(ctx, cfg, provider)
}
