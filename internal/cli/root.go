// Package cli implements the llmcompare terminal client. It talks to the reasoning backend
// directly and renders the same result the web page shows.
package cli

import (
	"context"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/noah-isme/llmcompare/internal/config"
)

type ctxKey string

const configKey ctxKey = "config"

// Execute builds the root command and runs it.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd constructs the root command. Settings come from LLMCMP_* environment
// variables, a .env file, or flags.
func NewRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "llmcompare",
		Short:         "Compare a direct LLM answer with its iteratively refined version",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			v.SetEnvPrefix("LLMCMP")
			v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
			v.AutomaticEnv()

			cfg, err := config.FromViper(v)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(context.WithValue(ctx, configKey, cfg))
			return nil
		},
	}

	cmd.PersistentFlags().String("backend", "", "reasoning backend base URL (env LLMCMP_BACKEND_URL)")
	cmd.PersistentFlags().Duration("timeout", 0, "timeout per backend stage (env LLMCMP_BACKEND_TIMEOUT)")
	_ = v.BindPFlag("backend.url", cmd.PersistentFlags().Lookup("backend"))
	_ = v.BindPFlag("backend.timeout", cmd.PersistentFlags().Lookup("timeout"))

	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newValidateCmd())

	cmd.Run = func(cmd *cobra.Command, args []string) { _ = cmd.Help() }

	return cmd
}

func getConfig(cmd *cobra.Command) config.Config {
	cfg, _ := cmd.Context().Value(configKey).(config.Config)
	return cfg
}
