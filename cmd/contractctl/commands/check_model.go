package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"contractanalyzer/internal/bootstrap"
)

func newCheckModelCmd(root *rootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "check-model",
		Short: "Send a minimal request to the configured model providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.config()
			if err != nil {
				return err
			}
			client, err := bootstrap.NewAnalysisClient(cfg, root.log)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			model, err := client.Ping(ctx)
			if err != nil {
				return fmt.Errorf("model check failed: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "model reachable: %s\n", model)
			return err
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall timeout for the check")
	return cmd
}
