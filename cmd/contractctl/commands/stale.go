package commands

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"contractanalyzer/internal/bootstrap"
	"contractanalyzer/internal/domain"
	"contractanalyzer/internal/service"
)

func newStaleCmd(root *rootOptions) *cobra.Command {
	var (
		olderThan time.Duration
		reset     bool
	)
	cmd := &cobra.Command{
		Use:   "stale",
		Short: "List or reset contracts stuck in processing",
		Long: `stale lists contracts that entered processing more than --older-than ago.
Such records are left behind when a process dies mid-run. With --reset they are
returned to uploaded, and the server's sweeper schedules them again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			cfg, err := root.config()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			stores, err := bootstrap.OpenStores(ctx, cfg, afero.NewOsFs(), root.log)
			if err != nil {
				return err
			}
			defer stores.Close()

			svc := service.NewContractService(stores.Contracts, stores.Blobs, bootstrap.NewExtractor(cfg, root.log), nil, nil,
				service.ContractServiceConfig{AllowedExtensions: cfg.Storage.AllowedExtensions}, root.log)

			stale, err := svc.StaleProcessing(ctx, olderThan)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(stale) == 0 {
				_, err = fmt.Fprintf(out, "no contracts in processing for longer than %s\n", olderThan)
				return err
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tFILE\tSTARTED\tAGE")
			now := time.Now()
			for _, c := range stale {
				started, age := "-", "-"
				if c.ProcessingStartedAt != nil {
					started = c.ProcessingStartedAt.Format(time.RFC3339)
					age = now.Sub(*c.ProcessingStartedAt).Truncate(time.Second).String()
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ID, c.OriginalFilename, started, age)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if !reset {
				return nil
			}

			var resetCount int
			for _, c := range stale {
				if _, err := svc.ResetStale(ctx, c.ID); err != nil {
					if errors.Is(err, domain.ErrInvalidStatusTransition) || errors.Is(err, domain.ErrContractNotFound) {
						root.log.Info("contract left processing before reset", zap.String("contract_id", c.ID.String()))
						continue
					}
					return fmt.Errorf("reset %s: %w", c.ID, err)
				}
				resetCount++
			}
			_, err = fmt.Fprintf(out, "reset %d of %d contracts to uploaded\n", resetCount, len(stale))
			return err
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*time.Minute, "minimum time spent in processing")
	cmd.Flags().BoolVar(&reset, "reset", false, "return the listed contracts to uploaded")
	return cmd
}
