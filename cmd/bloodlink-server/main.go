package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bloodlink/bloodlink/internal/config"
	"github.com/bloodlink/bloodlink/internal/domain/bloodunit"
	"github.com/bloodlink/bloodlink/internal/domain/user"
	"github.com/bloodlink/bloodlink/internal/platform/auth"
	"github.com/bloodlink/bloodlink/internal/platform/db"
	"github.com/bloodlink/bloodlink/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bloodlink-server",
		Short: "BloodLink blood bank API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(inventoryCmd())
	rootCmd.AddCommand(userCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// connect loads config and opens the pool; callers close the pool.
func connect(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

// migrationFiles prefers an on-disk directory so operators can ship extra
// migrations without a rebuild.
func migrationFiles(dir string) fs.FS {
	if dir != "" {
		if st, err := os.Stat(dir); err == nil && st.IsDir() {
			return os.DirFS(dir)
		}
	}
	return migrations.FS
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			count, err := db.NewMigrator(pool, migrationFiles(dir)).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Migrations directory (defaults to the embedded set)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			statuses, err := db.NewMigrator(pool, migrationFiles(dir)).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Migrations directory (defaults to the embedded set)")
	cmd.AddCommand(statusCmd)

	return cmd
}

// unitService builds the blood-unit service without HTTP concerns, for the
// one-shot inventory commands.
func unitService(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) *bloodunit.Service {
	return bloodunit.NewService(
		bloodunit.NewRepoPG(pool),
		db.NewTxRunner(pool),
		db.NewSequencer(pool),
		logger,
		bloodunit.Config{NearExpiryDays: cfg.NearExpiryDays, CriticalThreshold: cfg.CriticalThreshold},
	)
}

func inventoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "Blood inventory maintenance",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Mark every past-expiry Available unit as Expired",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			res, err := unitService(cfg, pool, newLogger(cfg.Env)).ExpirePass(ctx)
			if err != nil {
				return fmt.Errorf("expiry sweep: %w", err)
			}
			fmt.Printf("Expired %d blood unit(s).\n", res.Expired)
			for _, id := range res.Units {
				fmt.Println("  " + id)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reconcile",
		Short: "Recompute blood_inventory from unit rows and report drift",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			drift, err := unitService(cfg, pool, newLogger(cfg.Env)).Reconcile(ctx)
			if err != nil {
				return fmt.Errorf("reconcile: %w", err)
			}
			if len(drift) == 0 {
				fmt.Println("Inventory is consistent.")
				return nil
			}
			fmt.Printf("%-8s %-8s %s\n", "GROUP", "STORED", "ACTUAL")
			for _, d := range drift {
				fmt.Printf("%-8s %-8d %d\n", d.BloodGroup, d.Stored, d.Actual)
			}
			return nil
		},
	})

	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage application users",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Create the default admin when no users exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			revoked := auth.NewMemoryRevocationStore(time.Minute)
			defer revoked.Close()
			svc := user.NewService(user.NewRepoPG(pool), auth.NewTokenManager(cfg.JWTSecret, cfg.JWTExpiresIn), revoked, newLogger(cfg.Env))
			created, err := svc.SeedDefaultAdmin(ctx, cfg.DefaultAdminPassword)
			if err != nil {
				return err
			}
			if created {
				fmt.Printf("Created default admin %q.\n", user.DefaultAdminUsername)
			} else {
				fmt.Println("Users already exist; nothing to do.")
			}
			return nil
		},
	})

	return cmd
}
