package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/respirasense/abg/internal/config"
	"github.com/respirasense/abg/internal/domain/abg"
	"github.com/respirasense/abg/internal/platform/auth"
	"github.com/respirasense/abg/internal/platform/classifier"
	"github.com/respirasense/abg/internal/platform/db"
	"github.com/respirasense/abg/internal/platform/notification"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "abg-server",
		Short: "RespiraSense ABG analysis server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(hashPasswordCmd())
	rootCmd.AddCommand(recordsCmd())
	rootCmd.AddCommand(predictCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the ABG web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, logCloser := newLogger(cfg)
	defer logCloser.Close()

	a, err := buildApp(context.Background(), cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("startup failed")
		return err
	}
	defer a.close()

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := a.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	case <-quit:
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.echo.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// app is the wired server plus the resources it holds, released by close in
// reverse order of acquisition.
type app struct {
	echo    *echo.Echo
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// openResultsStore is replaced in tests.
var openResultsStore = openStore

// buildApp wires classifier, gate, results log, optional MQTT publisher and
// the HTTP server. On error everything already opened is closed.
func buildApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	predictor, err := buildPredictor(cfg)
	if err != nil {
		return nil, fmt.Errorf("load classifier: %w", err)
	}
	modelName := classifier.VersionOf(predictor)
	logger.Info().Str("model", modelName).Msg("classifier ready")

	verifier, err := buildVerifier(cfg)
	if err != nil {
		return nil, fmt.Errorf("configure access gate: %w", err)
	}

	handle, err := openResultsStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s results log: %w", cfg.StoreDriver, err)
	}
	a.closers = append(a.closers, handle.close)
	logger.Info().Str("driver", cfg.StoreDriver).Msg("results log ready")

	svc := abg.NewService(predictor, handle.store)
	svc.SetLogger(logger)

	if cfg.MQTTBrokerURL != "" {
		pub, err := notification.NewMQTTPublisher(notification.MQTTConfig{
			BrokerURL: cfg.MQTTBrokerURL,
			ClientID:  cfg.MQTTClientID,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
			Topic:     cfg.MQTTTopic,
		}, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pub.Close)
		svc.SetPublisher(pub)
		logger.Info().Str("topic", cfg.MQTTTopic).Msg("publishing results to MQTT")
	}

	e, err := newServer(serverDeps{
		cfg:       cfg,
		logger:    logger,
		service:   svc,
		gate:      auth.NewGate(verifier),
		sessions:  auth.NewSessionStore(cfg.SessionTTL),
		pool:      handle.pool,
		modelName: modelName,
	})
	if err != nil {
		return nil, fmt.Errorf("build server: %w", err)
	}
	if !cfg.APIEnabled() {
		logger.Info().Msg("JWT_SIGNING_KEY not set; JSON API disabled")
	}
	a.echo = e
	return a, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Prepare the results database",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()

			switch cfg.StoreDriver {
			case config.StoreSQLite:
				// The SQLite store creates its table on open.
				s, err := abg.NewSQLiteStore(cfg.SQLitePath)
				if err != nil {
					return err
				}
				defer s.Close()
				fmt.Fprintf(cmd.OutOrStdout(), "SQLite schema ready at %s.\n", cfg.SQLitePath)
				return nil
			case config.StorePostgres:
				pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
				if err != nil {
					return err
				}
				defer pool.Close()

				count, err := db.NewMigrator(pool, db.Migrations()).Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			default:
				return fmt.Errorf("migrations apply to the sqlite and postgres stores, not %q", cfg.StoreDriver)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.StoreDriver != config.StorePostgres {
				return fmt.Errorf("migration status is tracked for the postgres store only")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, db.Migrations()).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	})

	return cmd
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format(abg.TimestampLayout)
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func hashPasswordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Print a bcrypt hash for AUTH_PASSWORD_HASH",
		Long:  "Reads the password from --password or, when omitted, the first line of stdin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, _ := cmd.Flags().GetString("password")
			cost, _ := cmd.Flags().GetInt("cost")

			if password == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && err != io.EOF {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return fmt.Errorf("password is required")
			}

			hash, err := auth.HashSecret(password, cost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().String("password", "", "Password to hash")
	cmd.Flags().Int("cost", 0, "bcrypt cost (0 uses the library default)")
	return cmd
}

func recordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Inspect the results log",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print logged results in the order they were saved",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := context.Background()
			handle, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer handle.close()

			records, total, err := handle.store.List(ctx, limit, offset)
			if err != nil {
				return fmt.Errorf("list results: %w", err)
			}
			printRecords(cmd.OutOrStdout(), records, total)
			return nil
		},
	}
	listCmd.Flags().Int("limit", 0, "Maximum rows to print (0 prints all)")
	listCmd.Flags().Int("offset", 0, "Rows to skip")
	cmd.AddCommand(listCmd)

	return cmd
}

// printRecords writes a fixed-width table; Abnormal rows are red when the
// output is a terminal.
func printRecords(w io.Writer, records []abg.Record, total int) {
	abnormal := color.New(color.FgRed, color.Bold)

	header := fmt.Sprintf("%-19s  %-24s %6s %6s %6s %6s %6s  %s",
		"TIMESTAMP", "PATIENT", "PH", "PCO2", "PO2", "HCO3", "SAO2", "STATUS")
	fmt.Fprintln(w, header)
	for _, r := range records {
		line := fmt.Sprintf("%-19s  %-24s %6.2f %6.1f %6.1f %6.1f %6.1f  %s",
			r.Timestamp, r.PatientName, r.PH, r.PCO2, r.PO2, r.HCO3, r.SaO2, r.Status)
		if r.Abnormal() {
			abnormal.Fprintln(w, line)
			continue
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "%d of %d result(s)\n", len(records), total)
}

func predictCmd() *cobra.Command {
	defaults := abg.DefaultSample()
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Classify one sample without writing to the results log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			predictor, err := buildPredictor(cfg)
			if err != nil {
				return err
			}

			sample := abg.Sample{}
			flags := cmd.Flags()
			for _, p := range abg.Parameters {
				v, _ := flags.GetFloat64(p.Field)
				p.Set(&sample, v)
			}

			label, err := predictor.Predict(cmd.Context(), sample.Vector())
			if err != nil {
				return fmt.Errorf("classification failed: %w", err)
			}
			printPrediction(cmd.OutOrStdout(), classifier.VersionOf(predictor), sample, label)
			return nil
		},
	}
	for _, p := range abg.Parameters {
		cmd.Flags().Float64(p.Field, p.Value(defaults), p.Label)
	}
	return cmd
}

func printPrediction(w io.Writer, model string, s abg.Sample, label classifier.Label) {
	status := abg.StatusFromLabel(label)
	fmt.Fprintf(w, "Model:  %s\n", model)
	fmt.Fprintf(w, "Label:  %d\n", label)
	fmt.Fprintf(w, "Status: %s\n", status)
	if flagged := abg.CheckPlausibility(s).Flagged(); len(flagged) > 0 {
		fmt.Fprintf(w, "Outside reference range: %s\n", strings.Join(flagged, ", "))
	}
	g := abg.GuidanceFor(status)
	if g.Summary != "" {
		fmt.Fprintln(w, g.Summary)
	}
}
