package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragingest/internal/config"
	"github.com/Aman-CERP/ragingest/internal/errors"
	"github.com/Aman-CERP/ragingest/internal/notify"
)

// redacted replaces secrets in printed configuration.
const redacted = "********"

// sessionTokens builds the verifier for notification sessions from
// notify.token_secret.
func sessionTokens(cfg *config.Config) (*notify.HMACTokens, error) {
	if cfg.Notify.TokenSecret == "" {
		return nil, errors.ConfigError("notify.token_secret is not set", nil).
			WithDetail("hint", "set "+config.EnvPrefix+"NOTIFY_TOKEN_SECRET to a random string of at least 32 bytes")
	}
	tokens, err := notify.NewHMACTokens(cfg.Notify.TokenSecret)
	if err != nil {
		return nil, errors.ConfigError("invalid notify.token_secret", err)
	}
	return tokens, nil
}

func newTokenCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <owner>",
		Short: "Issue a notification session token for an owner",
		Long: `Sign a session token for owner with notify.token_secret. Websocket
clients present it to serve as ?token=<token> or an Authorization: Bearer
header, and receive notifications for that owner only.`,
		Example: `  ragingest token us-east-1:3f2a9c
  ragingest token alice --ttl 24h`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := currentConfig()
			if !cmd.Flags().Changed("ttl") {
				ttl = cfg.Notify.TokenTTL
			}
			tokens, err := sessionTokens(cfg)
			if err != nil {
				return err
			}
			token, err := tokens.Issue(args[0], ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default notify.token_ttl)")

	return cmd
}
