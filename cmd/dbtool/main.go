package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/abhishinde10/healthnexus/internal/db"
	"github.com/abhishinde10/healthnexus/internal/logging"
)

func main() {
	_ = godotenv.Load()

	var dsn, logLevel string
	var timeout time.Duration

	rootCmd := &cobra.Command{
		Use:           "dbtool",
		Short:         "Database maintenance for the appointment store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", os.Getenv("POSTGRES_DSN"), "postgres connection string")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "overall command timeout")

	// withOptimizer connects, runs fn and closes the pool.
	withOptimizer := func(fn func(ctx context.Context, pool *pgxpool.Pool, opt *db.Optimizer, log zerolog.Logger) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			if dsn == "" {
				return errors.New("--dsn or POSTGRES_DSN is required")
			}
			log := logging.New("dbtool", "dev", logLevel)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			pool, err := db.ConnectPostgres(ctx, dsn)
			if err != nil {
				return err
			}
			defer pool.Close()

			return fn(ctx, pool, db.NewOptimizer(pool, 5*time.Second, log), log)
		}
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: withOptimizer(func(ctx context.Context, pool *pgxpool.Pool, _ *db.Optimizer, log zerolog.Logger) error {
			n, err := db.Migrate(ctx, pool, log)
			if err != nil {
				return err
			}
			fmt.Printf("applied %d migration(s)\n", n)
			return nil
		}),
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "indexes",
		Short: "Create missing indexes",
		RunE: withOptimizer(func(ctx context.Context, _ *pgxpool.Pool, opt *db.Optimizer, _ zerolog.Logger) error {
			report, err := opt.EnsureIndexes(ctx)
			if err != nil {
				return err
			}
			return printJSON(report)
		}),
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show database health and per-table statistics",
		RunE: withOptimizer(func(ctx context.Context, _ *pgxpool.Pool, opt *db.Optimizer, _ zerolog.Logger) error {
			stats, err := opt.CollectionStats(ctx)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"health": opt.Health(ctx),
				"tables": stats,
			})
		}),
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "compact <table>",
		Short: "VACUUM ANALYZE a managed table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOptimizer(func(ctx context.Context, _ *pgxpool.Pool, opt *db.Optimizer, _ zerolog.Logger) error {
				return opt.Compact(ctx, args[0])
			})(cmd, args)
		},
	})

	var olderThan int
	var yes bool
	cleanupCmd := &cobra.Command{
		Use:   "cleanup <table>",
		Short: "Delete rows older than the retention period",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("cleanup deletes rows from %s, pass --yes to confirm", args[0])
			}
			return withOptimizer(func(ctx context.Context, _ *pgxpool.Pool, opt *db.Optimizer, _ zerolog.Logger) error {
				n, err := opt.Cleanup(ctx, args[0], olderThan)
				if err != nil {
					return err
				}
				fmt.Printf("deleted %d row(s) from %s\n", n, args[0])
				return nil
			})(cmd, args)
		},
	}
	cleanupCmd.Flags().IntVar(&olderThan, "older-than-days", 365, "retention in days")
	cleanupCmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	rootCmd.AddCommand(cleanupCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
