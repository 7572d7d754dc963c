package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/ertriage/internal/config"
	"github.com/ehr/ertriage/internal/domain/triage"
	"github.com/ehr/ertriage/internal/platform/auth"
	"github.com/ehr/ertriage/internal/platform/cache"
	"github.com/ehr/ertriage/internal/platform/db"
	"github.com/ehr/ertriage/internal/platform/fhir"
	"github.com/ehr/ertriage/internal/platform/metrics"
	"github.com/ehr/ertriage/internal/platform/middleware"
	"github.com/ehr/ertriage/internal/platform/websocket"
)

const version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "triage-server",
		Short: "Emergency department triage API",
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(classifyCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the triage API server",
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

	withMigrator := func(cmd *cobra.Command, fn func(ctx context.Context, m *db.Migrator) error) error {
		schema, _ := cmd.Flags().GetString("schema")
		dir, _ := cmd.Flags().GetString("dir")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		ctx := context.Background()
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return err
		}
		defer pool.Close()
		return fn(ctx, db.NewMigrator(pool, os.DirFS(dir), schema))
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				for _, s := range statuses {
					status, appliedAt := "pending", ""
					if s.Applied {
						status = "applied"
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
					fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	}

	for _, c := range []*cobra.Command{upCmd, statusCmd} {
		c.Flags().String("schema", "public", "Target schema for migrations")
		c.Flags().String("dir", "./migrations", "Path to migrations directory")
		cmd.AddCommand(c)
	}
	return cmd
}

// classifyCmd runs the ESI classifier offline, without a database or FHIR
// server.
func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Suggest an ESI level for a complaint and optional vitals",
		RunE: func(cmd *cobra.Command, args []string) error {
			complaint, _ := cmd.Flags().GetString("complaint")
			asJSON, _ := cmd.Flags().GetBool("json")
			conditions, _ := cmd.Flags().GetStringArray("condition")

			vitals, err := vitalsFromFlags(cmd)
			if err != nil {
				return err
			}
			history := parseConditions(conditions)

			level := triage.Classify(complaint, vitals, history)
			return printAssessment(cmd.OutOrStdout(), &triage.Assessment{
				Level:           level,
				Label:           level.String(),
				HighRiskHistory: triage.HasHighRiskHistory(history),
				RelatedHistory:  triage.RelatedHistory(complaint, history),
				History:         history,
			}, asJSON)
		},
	}
	f := cmd.Flags()
	f.String("complaint", "", "Chief complaint text")
	f.Int("hr", 0, "Heart rate (bpm)")
	f.Int("rr", 0, "Respiratory rate (breaths/min)")
	f.Int("spo2", 0, "Oxygen saturation (%)")
	f.Int("pain", 0, "Pain level (0-10)")
	f.String("bp", "", "Blood pressure, e.g. 120/80")
	f.Float64("temp", 0, "Temperature (C)")
	f.StringArray("condition", nil, "Historical condition as text[:severity], repeatable")
	f.Bool("json", false, "Print the assessment as JSON")
	return cmd
}

// vitalsFromFlags returns nil when no vital sign flag was given. Only flags
// that were set count as measured.
func vitalsFromFlags(cmd *cobra.Command) (*triage.VitalSigns, error) {
	f := cmd.Flags()
	v := &triage.VitalSigns{}
	measured := false

	ints := map[string]**int{
		"hr":   &v.HeartRate,
		"rr":   &v.RespiratoryRate,
		"spo2": &v.OxygenSaturation,
		"pain": &v.PainLevel,
	}
	for name, dst := range ints {
		if !f.Changed(name) {
			continue
		}
		n, _ := f.GetInt(name)
		*dst = &n
		measured = true
	}
	if f.Changed("temp") {
		t, _ := f.GetFloat64("temp")
		v.Temperature = &t
		measured = true
	}
	if f.Changed("bp") {
		raw, _ := f.GetString("bp")
		bp := triage.ParseBloodPressure(raw)
		if bp == nil {
			return nil, fmt.Errorf("invalid --bp %q, want systolic/diastolic", raw)
		}
		v.BloodPressure = bp
		measured = true
	}
	if !measured {
		return nil, nil
	}
	return v, nil
}

func parseConditions(raw []string) []triage.HistoricalCondition {
	out := make([]triage.HistoricalCondition, 0, len(raw))
	for _, r := range raw {
		text, severity, _ := strings.Cut(r, ":")
		if strings.TrimSpace(text) == "" {
			continue
		}
		out = append(out, triage.HistoricalCondition{
			Text:     strings.TrimSpace(text),
			Severity: strings.TrimSpace(severity),
		})
	}
	return out
}

func printAssessment(w io.Writer, a *triage.Assessment, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(a)
	}
	fmt.Fprintf(w, "ESI %d: %s\n", a.Level, a.Label)
	if a.HighRiskHistory {
		fmt.Fprintln(w, "High-risk medical history")
	}
	for _, c := range a.RelatedHistory {
		fmt.Fprintf(w, "Related history: %s\n", c.Text)
	}
	return nil
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Str("service", "triage-server").Logger()
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	triageMetrics := metrics.NewTriageMetrics(reg)

	// Clinical history: FHIR, optionally behind a Redis cache
	fhirClient := fhir.NewClient(fhir.Config{BaseURL: cfg.FHIRServerURL, Timeout: cfg.FHIRTimeout})
	var history triage.HistoryProvider = fhir.NewHistoryProvider(fhirClient, cfg.FHIRMockFallback, logger)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis unreachable, history cache will retry per request")
		}
		history = cache.NewHistoryCache(history, rdb, cfg.HistoryCacheTTL, logger)
		logger.Info().Dur("ttl", cfg.HistoryCacheTTL).Msg("history cache enabled")
	}

	hub := websocket.NewHub(logger)

	svc := triage.NewService(triage.NewPatientRepoPG(pool), triage.NewVitalsRepoPG(pool), logger)
	svc.SetHistoryProvider(history)
	svc.SetPublisher(hub)
	svc.SetMetrics(triageMetrics)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.BodyLimit("1M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))
	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: []byte(cfg.AuthSigningKey),
	}
	if cfg.IsDev() {
		apiV1.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		apiV1.Use(auth.JWTMiddleware(jwtCfg))
	}

	triage.NewHandler(svc).RegisterRoutes(apiV1)
	websocket.NewHandler(hub, cfg.CORSOrigins).RegisterRoutes(apiV1)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("fhir_server", cfg.FHIRServerURL).Msg("starting server")
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
