package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ecodoppler/tsa/internal/config"
	"github.com/ecodoppler/tsa/internal/domain/archive"
	"github.com/ecodoppler/tsa/internal/domain/exam"
	"github.com/ecodoppler/tsa/internal/domain/narrative"
	"github.com/ecodoppler/tsa/internal/domain/report"
	"github.com/ecodoppler/tsa/internal/platform/db"
	"github.com/ecodoppler/tsa/internal/platform/inflight"
	"github.com/ecodoppler/tsa/migrations"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "tsa-server",
		Short:        "Carotid and vertebral ultrasound report editor",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(renderCmd())
	root.AddCommand(defaultCmd())
	root.AddCommand(migrateCmd())
	return root
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the report editor server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env)
			if cfg.ResolvedAuthMode() == config.AuthModeDevelopment {
				logger.Warn().
					Str("user_id", "dev-user").
					Msg("development auth is active: every request runs as a physician; do not expose this server")
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			b, err := openBackends(ctx, cfg, logger)
			if err != nil {
				logger.Error().Err(err).Msg("failed to open backends")
				return err
			}
			defer b.Close()

			return newServer(cfg, b, logger).run(ctx, ":"+cfg.Port, logger)
		},
	}
}

func renderCmd() *cobra.Command {
	var format, out string
	var generate bool
	cmd := &cobra.Command{
		Use:   "render [record.json|-]",
		Short: "Render an exam record as a report",
		Long: "Reads an exam record as JSON (from a file or stdin) and writes the report\n" +
			"in the chosen format: text, html, json, xlsx or dicom.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			rec := &exam.ExamRecord{}
			if err := json.NewDecoder(in).Decode(rec); err != nil {
				return fmt.Errorf("decode record: %w", err)
			}

			if generate {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				gen, err := newGenerator(cfg)
				if err != nil {
					return err
				}
				logger := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).With().Timestamp().Logger()
				if rec, err = generateConclusions(cmd.Context(), gen, rec, cfg.GeneratorTimeout, logger); err != nil {
					return err
				}
			}

			w := cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return writeReport(w, rec, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, html, json, xlsx or dicom")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	cmd.Flags().BoolVar(&generate, "generate", false, "Replace the conclusions with generated text before rendering")
	return cmd
}

// generateConclusions runs one synchronous generation on a throwaway session
// seeded with rec and returns the resulting record.
func generateConclusions(ctx context.Context, gen narrative.Generator, rec *exam.ExamRecord, timeout time.Duration, logger zerolog.Logger) (*exam.ExamRecord, error) {
	sess := exam.NewRegistry(time.Hour, nil, logger).CreateWith(rec)
	svc := narrative.NewService(gen, inflight.NewMemory(), nil, timeout, logger)
	if err := svc.Generate(ctx, sess); err != nil {
		return nil, fmt.Errorf("generate conclusions: %w", err)
	}
	return sess.Store.Current(), nil
}

func writeReport(w io.Writer, rec *exam.ExamRecord, format string) error {
	switch format {
	case "text":
		return report.WriteText(w, report.Render(rec))
	case "html":
		return report.WriteHTML(w, report.Render(rec), report.HTMLOptions{})
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report.Render(rec))
	case "xlsx":
		return report.WriteXLSX(w, report.Render(rec))
	case "dicom":
		return report.WriteDICOM(w, rec, report.DICOMOptions{})
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

func defaultCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "default",
		Short: "Print the default exam record as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			day := time.Now()
			if date != "" {
				d, err := time.Parse(exam.DateLayout, date)
				if err != nil {
					return fmt.Errorf("invalid --date: %w", err)
				}
				day = d
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(exam.DefaultRecord(day))
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Exam date (YYYY-MM-DD), default today")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run archive database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if !db.IsPostgresURL(cfg.ArchiveURL) {
				sqlDB, err := archive.OpenSQLite(ctx, cfg.ArchiveURL)
				if err != nil {
					return err
				}
				defer sqlDB.Close()
				if err := archive.MigrateSQLite(ctx, sqlDB); err != nil {
					return err
				}
				fmt.Fprintf(out, "SQLite archive schema is up to date: %s\n", cfg.ArchiveURL)
				return nil
			}

			pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.ArchiveURL, MaxConns: 2})
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Fprintf(out, "Running migrations on schema: %s\n", schema)
			count, err := db.NewMigrator(pool, migrations.FS, schema).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(out, "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "public", "Target schema for migrations")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !db.IsPostgresURL(cfg.ArchiveURL) {
				return fmt.Errorf("migration status is tracked for Postgres archives only (ARCHIVE_URL=%s)", cfg.ArchiveURL)
			}
			ctx := cmd.Context()

			pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.ArchiveURL, MaxConns: 2})
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrations.FS, schema).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatus(cmd.OutOrStdout(), schema, statuses)
			return nil
		},
	}
	statusCmd.Flags().String("schema", "public", "Target schema for migrations")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printStatus(w io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status, at := "pending", ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				at = s.AppliedAt.Format(time.RFC3339)
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, at)
	}
}
