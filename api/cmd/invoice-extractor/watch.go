package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"invoice-extractor/api/internal/pipeline"
	"invoice-extractor/api/internal/storage"
)

var watchOutDir string

// watchSettle is how long a file must stay unchanged before it is processed.
const watchSettle = 750 * time.Millisecond

var watchExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true, ".pdf": true,
}

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Process invoices dropped into a local directory",
	Long: `Watch <dir> and run the extraction pipeline on every image or PDF created in
it, writing documents under --out (default: <dir>/out). This mirrors the
storage trigger for local use.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := stderrLogger()
		dir := args[0]
		out := watchOutDir
		if out == "" {
			out = filepath.Join(dir, "out")
		}

		cfg := *cfgMgr.Get()
		cfg.InputBucket, cfg.OutputBucket = ".", "."
		a, err := buildApp(ctx, &cfg, logger, buildOptions{objects: storage.NewDirStore(out)})
		if err != nil {
			return err
		}
		defer a.Close()

		w, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		defer w.Close()
		if err := w.Add(dir); err != nil {
			return err
		}
		logger.Info("watching", "dir", dir, "out", out)
		return watchLoop(ctx, w, a.processor, logger)
	},
}

func watchLoop(ctx context.Context, w *fsnotify.Watcher, p *pipeline.Processor, logger *slog.Logger) error {
	var mu sync.Mutex
	timers := map[string]*time.Timer{}

	schedule := func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := timers[path]; ok {
			t.Stop()
		}
		timers[path] = time.AfterFunc(watchSettle, func() {
			mu.Lock()
			delete(timers, path)
			mu.Unlock()
			processFile(ctx, p, path, logger)
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !watchExts[strings.ToLower(filepath.Ext(ev.Name))] {
				continue
			}
			schedule(ev.Name)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "err", err)
		}
	}
}

func processFile(ctx context.Context, p *pipeline.Processor, path string, logger *slog.Logger) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		logger.Error("read failed", "file", path, "err", err)
		return
	}
	name := filepath.Base(path)
	doc, err := p.Extract(ctx, name, data)
	if err != nil {
		logger.Error("Error processing", "file", name, "err", err)
		return
	}
	key, err := p.Write(ctx, name, doc)
	if err != nil {
		logger.Error("write failed", "file", name, "err", err)
		return
	}
	logger.Info("Processed", "file", name, "output", key)
}

func init() {
	watchCmd.Flags().StringVar(&watchOutDir, "out", "", "directory to write JSON documents into")
	rootCmd.AddCommand(watchCmd)
}
