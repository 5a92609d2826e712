package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/noah-isme/llmcompare/internal/service"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [text]",
		Short: "Check which context URLs a submission would keep",
		Args:  cobra.MinimumNArgs(1),
		// URL checks never reach the backend, so no configuration is required.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			result := service.ValidateURLs(strings.Join(args, " "))
			out := cmd.OutOrStdout()

			for _, alert := range result.Alerts {
				fmt.Fprintln(cmd.ErrOrStderr(), alert)
			}
			for _, url := range result.Valid {
				fmt.Fprintln(out, url)
			}
			if result.Changed() {
				return fmt.Errorf("%d url(s) removed", len(result.Invalid)+len(result.Dropped))
			}
			return nil
		},
	}
}
