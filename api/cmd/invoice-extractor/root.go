package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"invoice-extractor/api/internal/config"
	"invoice-extractor/api/internal/output"
	"invoice-extractor/api/internal/version"
)

var (
	cfgFile      string
	outputFormat string

	cfgMgr   *config.Manager
	format   output.Format
	logLevel = new(slog.LevelVar)
)

var rootCmd = &cobra.Command{
	Use:   "invoice-extractor",
	Short: "Extract structured fields from invoice images with multimodal models",
	Long: `invoice-extractor sends invoice images to a multimodal model, turns the answer
into a fixed set of invoice fields plus any extra fields the model reports,
adds an image clarity check and stores the result as JSON.

It runs as a storage-triggered function, an HTTP API, a Telegram bot or
directly on local files.`,
	Version:       version.GitRelease,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		f, err := output.ParseFormat(outputFormat)
		if err != nil {
			return err
		}
		format = f

		if cmd.Name() == "version" {
			return nil
		}
		mgr, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfgMgr = mgr
		logLevel.Set(parseLevel(mgr.Get().LogLevel))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.invoice-extractor/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "json", "output format: json or yaml",
	)

	rootCmd.AddCommand(versionCmd)
}

// newLogger writes text logs to w at the configured level.
func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
}

func stderrLogger() *slog.Logger { return newLogger(os.Stderr) }

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
