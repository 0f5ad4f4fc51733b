package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"invoice-extractor/api/internal/output"
	"invoice-extractor/api/internal/store"
)

var purgeOlderThan time.Duration

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete cached extractions older than the cache age",
	Long: `Delete rows of the extraction cache older than --older-than, which defaults
to cache_max_age. Expired rows are never served, purging only reclaims space.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := cfgMgr.Get()
		dsn := store.ResolveDSN(cfg.DatabaseURL)
		if dsn == "" {
			return errors.New("no database configured (set database_url or DATABASE_URL)")
		}
		age := purgeOlderThan
		if age <= 0 {
			age = cfg.CacheMaxAge
		}

		db, err := store.Open(ctx, dsn)
		if err != nil {
			return err
		}
		defer db.Close()
		repo := store.NewExtractionRepo(db, cfg.CacheMaxAge)
		if err := repo.Migrate(ctx); err != nil {
			return err
		}
		n, err := repo.PurgeOlderThan(ctx, age)
		if err != nil {
			return err
		}
		stderrLogger().Info("cache purged", "dsn", store.SafeDSNSummary(dsn), "older_than", age, "deleted", n)
		return output.To(cmd.OutOrStdout(), format, map[string]any{"deleted": n, "older_than": age.String()})
	},
}

func init() {
	purgeCmd.Flags().DurationVar(&purgeOlderThan, "older-than", 0, "age cutoff (default cache_max_age)")
	rootCmd.AddCommand(purgeCmd)
}
