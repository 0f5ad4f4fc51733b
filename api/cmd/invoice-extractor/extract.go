package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"invoice-extractor/api/internal/output"
	"invoice-extractor/api/internal/storage"
)

var extractOutDir string

var extractCmd = &cobra.Command{
	Use:   "extract <file>...",
	Short: "Extract invoice fields from local image or PDF files",
	Long: `Run the extraction pipeline on local files and print the documents.

With --out the documents are also written as <out>/<output_prefix><name>.json.

Examples:
  invoice-extractor extract scans/inv1.png
  invoice-extractor extract -o yaml --out results scans/*.jpg`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := stderrLogger()

		root := extractOutDir
		if root == "" {
			root = "."
		}
		opts := buildOptions{objects: storage.NewDirStore(root)}
		cfg := *cfgMgr.Get()
		cfg.OutputBucket = "."
		a, err := buildApp(ctx, &cfg, logger, opts)
		if err != nil {
			return err
		}
		defer a.Close()

		failed := 0
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				logger.Error("read failed", "file", path, "err", err)
				failed++
				continue
			}
			name := filepath.Base(path)
			doc, err := a.processor.Extract(ctx, name, data)
			if err != nil {
				logger.Error("extract failed", "file", path, "err", err)
				failed++
				continue
			}
			if extractOutDir != "" {
				if _, err := a.processor.Write(ctx, name, doc); err != nil {
					return err
				}
			}
			if err := output.To(cmd.OutOrStdout(), format, doc); err != nil {
				return err
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(args))
		}
		return nil
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractOutDir, "out", "", "directory to write JSON documents into")
	rootCmd.AddCommand(extractCmd)
}
