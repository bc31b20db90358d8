// Package commands implements contractctl, the operator CLI for the contract
// analysis service.
package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"contractanalyzer/internal/config"
	"contractanalyzer/internal/domain"
	"contractanalyzer/internal/logger"
)

type rootOptions struct {
	verbose bool
	log     *zap.Logger
	cfg     *config.Config
}

// NewRootCmd builds the contractctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "contractctl",
		Short: "Operator tools for the contract analysis service",
		Long: `contractctl runs the text extractor and the model analysis on local files,
checks model provider credentials, and finds or resets contracts stuck in processing.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := "warn"
			if opts.verbose {
				level = "debug"
			}
			log, err := logger.New(config.LogConfig{Level: level, Format: "console"})
			if err != nil {
				return err
			}
			opts.log = log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.log != nil {
				_ = opts.log.Sync()
			}
		},
	}
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(
		newExtractCmd(opts),
		newAnalyzeCmd(opts),
		newCheckModelCmd(opts),
		newStaleCmd(opts),
	)
	return cmd
}

// config loads the service configuration once.
func (o *rootOptions) config() (*config.Config, error) {
	if o.cfg != nil {
		return o.cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	o.cfg = cfg
	return cfg, nil
}

// readDocument loads a local contract file and resolves its type from the
// extension.
func readDocument(path string) ([]byte, domain.DocumentType, error) {
	docType, ok := domain.ParseDocumentType(filepath.Ext(path))
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", domain.ErrUnsupportedFileType, filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", path, err)
	}
	return data, docType, nil
}
