package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"contractanalyzer/internal/bootstrap"
)

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	var fields []string
	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Extract and analyze a contract file, printing the result as JSON",
		Long: `analyze runs the text extractor and the configured model providers on a local
file without touching the record store. With --fields only the named fields are
requested from the model.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.config()
			if err != nil {
				return err
			}
			data, docType, err := readDocument(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			text, err := bootstrap.NewExtractor(cfg, root.log).Extract(ctx, data, docType)
			if err != nil {
				return fmt.Errorf("extract: %w", err)
			}
			client, err := bootstrap.NewAnalysisClient(cfg, root.log)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")

			if len(fields) > 0 {
				out, err := client.ExtractFields(ctx, text, fields)
				if err != nil {
					return fmt.Errorf("analyze: %w", err)
				}
				return enc.Encode(map[string]any{
					"model":             out.Model,
					"prompt_tokens":     out.PromptTokens,
					"completion_tokens": out.CompletionTokens,
					"fields":            out.Fields,
				})
			}

			out, err := client.Analyze(ctx, text)
			if err != nil {
				return fmt.Errorf("analyze: %w", err)
			}
			return enc.Encode(map[string]any{
				"model":             out.Model,
				"prompt_tokens":     out.PromptTokens,
				"completion_tokens": out.CompletionTokens,
				"extracted_data":    out.Data,
			})
		},
	}
	cmd.Flags().StringSliceVar(&fields, "fields", nil, "comma-separated field names for a narrow extraction")
	return cmd
}
