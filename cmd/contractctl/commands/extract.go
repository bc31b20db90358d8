package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"contractanalyzer/internal/extractor"
)

func newExtractCmd(root *rootOptions) *cobra.Command {
	var minFastChars int
	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Print the text extracted from a PDF or DOCX contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, docType, err := readDocument(args[0])
			if err != nil {
				return err
			}
			ext := extractor.New(extractor.WithMinFastChars(minFastChars), extractor.WithLogger(root.log))
			text, err := ext.Extract(cmd.Context(), data, docType)
			if err != nil {
				return fmt.Errorf("extract: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
			return err
		},
	}
	cmd.Flags().IntVar(&minFastChars, "min-fast-chars", extractor.DefaultMinFastChars,
		"non-whitespace characters the fast PDF pass must yield before the layout pass is skipped")
	return cmd
}
