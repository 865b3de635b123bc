package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/circletel/circletel/internal/config"
)

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "View the effective configuration",
		RunE:  runConfigShow, // default subcommand
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Display the configuration after env overrides and defaults, secrets masked",
		RunE:  runConfigShow,
	})
	return configCmd
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configPath := resolveConfigPath(cmd, nil, defaultConfigPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	masked := *cfg
	for _, s := range []*string{
		&masked.Auth.SupabaseJWTSecret,
		&masked.Auth.CronSecret,
		&masked.NetCash.WebhookSecret,
		&masked.NetCash.ServiceKey,
		&masked.NetCash.PCIVaultKey,
		&masked.NetCash.SoftwareVendorKey,
		&masked.NetCash.PayNowServiceKey,
		&masked.Email.ResendAPIKey,
		&masked.SMS.ClickatellAPIKey,
		&masked.Zoho.ClientSecret,
		&masked.Zoho.RefreshToken,
		&masked.Didit.WebhookSecret,
		&masked.Blob.SecretKey,
		&masked.Blob.SigningSecret,
		&masked.RateLimit.RedisPassword,
	} {
		*s = maskSecret(*s)
	}

	data, err := json.MarshalIndent(masked, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Config: %s\n\n", configPath)
	_, _ = fmt.Fprintln(out, string(data))
	return nil
}

func maskSecret(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
