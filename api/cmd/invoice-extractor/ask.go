package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"invoice-extractor/api/internal/interactive"
	"invoice-extractor/api/internal/output"
)

var askEngine string

var askCmd = &cobra.Command{
	Use:   "ask <file> <question>...",
	Short: "Ask a question about a local invoice image or PDF",
	Long: `Send a local invoice to the model with a free-form question.

Examples:
  invoice-extractor ask inv.png "What is the total amount?"
  invoice-extractor ask --engine gpt bill.pdf Who is the patient`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := stderrLogger()
		cfg := *cfgMgr.Get()
		if askEngine != "" {
			cfg.Engine = askEngine
		}

		a, err := buildApp(ctx, &cfg, logger, buildOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		up := interactive.Upload{Data: data, FileName: filepath.Base(args[0])}
		ans, err := a.asker.Ask(ctx, up, strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		return output.To(cmd.OutOrStdout(), format, ans)
	},
}

func init() {
	askCmd.Flags().StringVar(&askEngine, "engine", "", "engine to use: gemini or gpt (default from config)")
	rootCmd.AddCommand(askCmd)
}
