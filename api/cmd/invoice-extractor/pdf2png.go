package main

import (
	"github.com/spf13/cobra"

	"invoice-extractor/api/internal/output"
	"invoice-extractor/api/internal/pdf"
)

var pdf2pngCmd = &cobra.Command{
	Use:   "pdf2png <input-dir> <output-dir>",
	Short: "Extract the embedded page images of every PDF in a folder",
	Long: `Write each image embedded in the PDFs of <input-dir> to <output-dir> as
<pdf name>_page<N>_img<M>.png. PDFs that cannot be read are skipped.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		written, err := pdf.ConvertDir(cmd.Context(), args[0], args[1], stderrLogger())
		if err != nil {
			return err
		}
		return output.To(cmd.OutOrStdout(), format, map[string]any{"written": written})
	},
}

func init() {
	rootCmd.AddCommand(pdf2pngCmd)
}
