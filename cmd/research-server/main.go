package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/DinoHorvat96/Raman-Medical-Research/internal/config"
	"github.com/DinoHorvat96/Raman-Medical-Research/internal/domain/cohort"
	"github.com/DinoHorvat96/Raman-Medical-Research/internal/domain/patient"
	"github.com/DinoHorvat96/Raman-Medical-Research/internal/domain/vocabulary"
	"github.com/DinoHorvat96/Raman-Medical-Research/internal/platform/auth"
	"github.com/DinoHorvat96/Raman-Medical-Research/internal/platform/db"
	"github.com/DinoHorvat96/Raman-Medical-Research/internal/platform/logging"
	"github.com/DinoHorvat96/Raman-Medical-Research/internal/platform/metrics"
	"github.com/DinoHorvat96/Raman-Medical-Research/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "research-server",
		Short: "Raman research cohort export server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(vocabCmd())
	rootCmd.AddCommand(patientCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the research API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Run a cohort export with operator privileges and write the file",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			mode, _ := cmd.Flags().GetString("mode")
			include, _ := cmd.Flags().GetStringSlice("include")
			filters, _ := cmd.Flags().GetStringArray("filter")
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")
			out, _ := cmd.Flags().GetString("out")

			req, err := buildExportRequest(format, mode, include, filters, from, to)
			if err != nil {
				return err
			}

			return withDatabase(func(ctx context.Context, cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool) error {
				sqlDB := db.OpenSQL(pool)
				defer sqlDB.Close()

				svc := cohort.NewService(cohort.NewStore(sqlDB), nil, logger)
				res, err := svc.Export(ctx, req)
				if err != nil {
					return err
				}

				path := filepath.Join(out, res.Filename)
				if err := os.WriteFile(path, res.Body, 0o600); err != nil {
					return fmt.Errorf("write export: %w", err)
				}
				fmt.Printf("Wrote %d patient(s), %d column(s) to %s\n", res.Patients, len(res.Columns), path)
				return nil
			})
		},
	}
	cmd.Flags().String("format", "csv", "Output format: csv or excel")
	cmd.Flags().String("mode", "anonymized", "Disclosure mode: anonymized or sensitive")
	cmd.Flags().StringSlice("include", nil, "Sections: conditions,other-conditions,surgeries,systemic,medications or all")
	cmd.Flags().StringArray("filter", nil, "Filter as key=value, repeatable (e.g. filter_glaucoma=1)")
	cmd.Flags().String("from", "", "Earliest sample collection date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "Latest sample collection date (YYYY-MM-DD)")
	cmd.Flags().String("out", ".", "Directory to write the export into")
	return cmd
}

func vocabCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vocab",
		Short: "Print the resolved export vocabulary of a category",
		RunE: func(cmd *cobra.Command, args []string) error {
			category, _ := cmd.Flags().GetString("category")
			ingredients, _ := cmd.Flags().GetBool("ingredients")

			return withDatabase(func(ctx context.Context, cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool) error {
				sqlDB := db.OpenSQL(pool)
				defer sqlDB.Close()

				svc := cohort.NewService(cohort.NewStore(sqlDB), nil, logger)
				var ids []string
				var err error
				if ingredients {
					ids, err = svc.ResolvedIngredients(ctx)
				} else {
					ids, err = svc.ResolvedVocabulary(ctx, category)
				}
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Println(id)
				}
				return nil
			})
		},
	}
	cmd.Flags().String("category", string(cohort.CategoryOcular), "icd10-ocular, icd10-systemic, surgeries or medications")
	cmd.Flags().Bool("ingredients", false, "Print the active-ingredient vocabulary instead")
	return cmd
}

func patientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patient",
		Short: "Patient identity helpers",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "next-id",
		Short: "Print the next available patient id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(func(ctx context.Context, cfg *config.Config, _ zerolog.Logger, pool *pgxpool.Pool) error {
				svc := patient.NewService(patient.NewRepoPG(pool), cfg.StartingPatientID)
				next, err := svc.NextID(ctx)
				if err != nil {
					return err
				}
				fmt.Println(next)
				return nil
			})
		},
	})
	return cmd
}

// withDatabase loads configuration, connects, and runs fn. CLI logs go to
// stderr so stdout carries only command output.
func withDatabase(fn func(ctx context.Context, cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.NewWithWriter(os.Stderr, cfg.ResolvedLogFormat(), cfg.LogLevel)
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, cfg, logger, pool)
}

var includeSections = map[string]func(*cohort.Inclusion){
	"conditions":       func(i *cohort.Inclusion) { i.Conditions = true },
	"other-conditions": func(i *cohort.Inclusion) { i.OtherConditions = true },
	"surgeries":        func(i *cohort.Inclusion) { i.Surgeries = true },
	"systemic":         func(i *cohort.Inclusion) { i.Systemic = true },
	"medications":      func(i *cohort.Inclusion) { i.Medications = true },
}

func parseInclude(names []string) (cohort.Inclusion, error) {
	var inc cohort.Inclusion
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if name == "all" {
			for _, set := range includeSections {
				set(&inc)
			}
			continue
		}
		set, ok := includeSections[name]
		if !ok {
			return inc, fmt.Errorf("unknown section %q", name)
		}
		set(&inc)
	}
	return inc, nil
}

func parseFilters(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("filter %q is not key=value", p)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}

// buildExportRequest assembles a CLI export. The operator runs with
// Administrator privileges.
func buildExportRequest(format, mode string, include, filters []string, from, to string) (cohort.Request, error) {
	f, err := cohort.ParseFormat(format)
	if err != nil {
		return cohort.Request{}, err
	}
	inc, err := parseInclude(include)
	if err != nil {
		return cohort.Request{}, err
	}
	fm, err := parseFilters(filters)
	if err != nil {
		return cohort.Request{}, err
	}
	if from != "" {
		fm[cohort.KeyDateFrom] = from
	}
	if to != "" {
		fm[cohort.KeyDateTo] = to
	}
	return cohort.Request{
		Format:  f,
		Mode:    cohort.ParseExportMode(mode),
		Include: inc,
		Filters: fm,
		Role:    auth.RoleAdministrator,
	}, nil
}

// server holds everything newServer wires into routes.
type server struct {
	cfg       *config.Config
	logger    zerolog.Logger
	pinger    db.Pinger
	poolStats func() *db.PoolStats
	metrics   *metrics.Registry
	cohort    *cohort.Service
	vocab     *vocabulary.Service
	patients  *patient.Service
}

func newServer(s *server) (*echo.Echo, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(s.logger))
	e.Use(middleware.RequestID())
	if s.metrics != nil {
		e.Use(s.metrics.Middleware())
	}
	e.Use(middleware.Logger(s.logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  s.cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders: []string{echo.HeaderContentDisposition, "X-Export-Id", "X-Export-Mode"},
	}))
	e.Use(middleware.RequestTimeout(s.cfg.RequestTimeout, func(path string) bool {
		return path == "/metrics"
	}))

	// Auth middleware
	if s.cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		key, err := s.cfg.SigningKey()
		if err != nil {
			return nil, err
		}
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     s.cfg.AuthIssuer,
			Audience:   s.cfg.AuthAudience,
			JWKSURL:    s.cfg.AuthJWKSURL,
			SigningKey: key,
			Skipper:    auth.AuthSkipper,
		}))
	}

	e.GET("/health", db.HealthHandler(s.pinger, s.poolStats))
	if s.metrics != nil {
		e.GET("/metrics", s.metrics.Handler())
	}

	apiV1 := e.Group("/api/v1")
	cohort.NewHandler(s.cohort).RegisterRoutes(apiV1)
	vocabulary.NewHandler(s.vocab, s.cohort).RegisterRoutes(apiV1)
	patient.NewHandler(s.patients).RegisterRoutes(apiV1)

	return e, nil
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Logger
	logger, err := logging.New(cfg.ResolvedLogFormat(), cfg.LogLevel)
	if err != nil {
		return err
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	sqlDB := db.OpenSQL(pool)
	defer sqlDB.Close()

	var m *metrics.Registry
	if cfg.MetricsEnabled {
		m = metrics.NewRegistry()
		if err := m.Register(collectors.NewDBStatsCollector(sqlDB, "cohort")); err != nil {
			return fmt.Errorf("register db stats collector: %w", err)
		}
	}

	e, err := newServer(&server{
		cfg:       cfg,
		logger:    logger,
		pinger:    pool,
		poolStats: func() *db.PoolStats { return db.GetPoolStats(pool) },
		metrics:   m,
		cohort:    cohort.NewService(cohort.NewStore(sqlDB), m, logger),
		vocab:     vocabulary.NewService(vocabulary.NewRepoPG(pool)),
		patients:  patient.NewService(patient.NewRepoPG(pool), cfg.StartingPatientID),
	})
	if err != nil {
		return err
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
