package main

import (
	"github.com/spf13/cobra"

	"invoice-extractor/api/internal/config"
	"invoice-extractor/api/internal/handle"
	"invoice-extractor/api/internal/httpserver"
)

var (
	serveHost    string
	servePersist bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API.

Endpoints:
  GET  /healthz       - health check (pings Postgres when configured)
  POST /v1/extract    - extract fields from an uploaded image or PDF
  POST /v1/ask        - answer a question about an uploaded invoice
  POST /v1/events/s3  - process an S3 event notification

Examples:
  invoice-extractor serve                 # listen on the configured port
  invoice-extractor serve --persist=false # do not store /v1/extract documents`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := stderrLogger()
		cfg := cfgMgr.Get()

		a, err := buildApp(ctx, cfg, logger, buildOptions{withDB: true})
		if err != nil {
			return err
		}
		defer a.Close()

		cfgMgr.OnChange(func(c *config.Config) {
			logLevel.Set(parseLevel(c.LogLevel))
			logger.Info("configuration reloaded", "file", cfgMgr.ConfigFile(), "log_level", c.LogLevel)
		})
		cfgMgr.WatchConfig()

		opts := handle.Options{
			Extractor: a.processor,
			Asker:     a.asker,
			Engines:   a.engines,
			Persist:   servePersist && a.objects != nil,
			Logger:    logger,
		}
		if a.db != nil {
			opts.DB = a.db
		}
		h := handle.New(opts)
		return httpserver.Serve(ctx, serveHost+":"+cfg.Port, h.Routes(), logger)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().BoolVar(&servePersist, "persist", true, "Write documents from /v1/extract to the output bucket")
	rootCmd.AddCommand(serveCmd)
}
