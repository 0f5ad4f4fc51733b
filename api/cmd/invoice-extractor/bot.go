package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"

	"invoice-extractor/api/internal/handle"
	"invoice-extractor/api/internal/httpserver"
	"invoice-extractor/api/internal/llm"
	"invoice-extractor/api/internal/telegram"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram bot",
	Long: `Run the Telegram bot.

With telegram_webhook_url set the bot registers a webhook and serves it on the
configured port; otherwise it long-polls. /healthz is served in both modes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := stderrLogger()
		cfg := cfgMgr.Get()
		if cfg.TelegramToken == "" {
			return fmt.Errorf("telegram_token is required (or TELEGRAM_BOT_TOKEN)")
		}

		a, err := buildApp(ctx, cfg, logger, buildOptions{withDB: true})
		if err != nil {
			return err
		}
		defer a.Close()

		bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
		if err != nil {
			return err
		}
		bot.Debug = false

		r := &telegram.Router{
			Bot:        bot,
			Engines:    a.engines,
			EngManager: llm.NewManager(a.engine),
			Asker:      a.asker,
			Extractor:  a.processor,
			Logger:     logger,
		}

		hopts := handle.Options{Logger: logger}
		if a.db != nil {
			hopts.DB = a.db
		}
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", handle.New(hopts).Healthz)
		addr := "0.0.0.0:" + cfg.Port

		if webhookURL := strings.TrimSpace(cfg.TelegramWebhookURL); webhookURL != "" {
			path := "/webhook/" + shortHash(bot.Token)
			wh, err := tgbotapi.NewWebhook(strings.TrimRight(webhookURL, "/") + path)
			if err != nil {
				return err
			}
			wh.DropPendingUpdates = true
			if _, err := bot.Request(wh); err != nil {
				return err
			}
			mux.HandleFunc(path, func(w http.ResponseWriter, req *http.Request) {
				upd, err := bot.HandleUpdate(req)
				if err != nil {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				go r.HandleUpdate(ctx, *upd)
			})
			logger.Info("webhook mode", "path", path)
			return httpserver.Serve(ctx, addr, mux, logger)
		}

		go func() {
			if err := httpserver.Serve(ctx, addr, mux, logger); err != nil {
				logger.Error("health server stopped", "err", err)
			}
		}()
		logger.Info("polling mode")
		telegram.RunPolling(ctx, bot, logger, func(upd tgbotapi.Update) {
			r.HandleUpdate(ctx, upd)
		})
		return nil
	},
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

func init() {
	rootCmd.AddCommand(botCmd)
}
