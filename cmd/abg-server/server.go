package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/respirasense/abg/internal/config"
	"github.com/respirasense/abg/internal/domain/abg"
	"github.com/respirasense/abg/internal/platform/auth"
	"github.com/respirasense/abg/internal/platform/classifier"
	"github.com/respirasense/abg/internal/platform/db"
	"github.com/respirasense/abg/internal/platform/logging"
	"github.com/respirasense/abg/internal/platform/middleware"
	"github.com/respirasense/abg/internal/platform/web"
)

const (
	apiPrefix   = "/api/v1"
	tokenIssuer = "abg-server"
	bodyLimit   = "64K"
)

func newLogger(cfg *config.Config) (zerolog.Logger, io.Closer) {
	return logging.New(logging.Options{
		Console:    cfg.IsDev(),
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
}

// buildPredictor prefers the remote endpoint when CLASSIFIER_URL is set.
func buildPredictor(cfg *config.Config) (classifier.Predictor, error) {
	if cfg.ClassifierURL != "" {
		return classifier.NewRemote(cfg.ClassifierURL, cfg.ClassifierTimeout), nil
	}
	svm, err := classifier.LoadSVM(cfg.ModelPath)
	if err != nil {
		return nil, err
	}
	return svm, nil
}

func buildVerifier(cfg *config.Config) (auth.Verifier, error) {
	if cfg.AuthPasswordHash != "" {
		return auth.NewBcryptVerifier(cfg.AuthEmail, cfg.AuthPasswordHash)
	}
	return auth.StaticVerifier{ID: cfg.AuthEmail, Secret: cfg.AuthPassword}, nil
}

// storeHandle is the opened results log. pool is set only for postgres.
type storeHandle struct {
	store abg.RecordStore
	pool  *pgxpool.Pool
	close func()
}

func openStore(ctx context.Context, cfg *config.Config) (*storeHandle, error) {
	switch cfg.StoreDriver {
	case config.StoreXLSX:
		return &storeHandle{store: abg.NewXLSXStore(cfg.StorePath), close: func() {}}, nil
	case config.StoreSQLite:
		s, err := abg.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &storeHandle{store: s, close: func() { _ = s.Close() }}, nil
	case config.StorePostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		return &storeHandle{store: abg.NewRecordRepo(pool), pool: pool, close: pool.Close}, nil
	case config.StoreMemory:
		return &storeHandle{store: abg.NewMemoryStore(), close: func() {}}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

type serverDeps struct {
	cfg       *config.Config
	logger    zerolog.Logger
	service   *abg.Service
	gate      *auth.Gate
	sessions  *auth.SessionStore
	pool      *pgxpool.Pool
	modelName string
}

func newServer(d serverDeps) (*echo.Echo, error) {
	renderer, err := web.NewRenderer()
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = renderer

	e.Use(middleware.Recovery(d.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(d.logger))
	e.Use(middleware.BodyLimit(bodyLimit))
	e.Use(middleware.SecurityHeaders(d.cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: d.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(skipAPI(auth.SessionMiddleware(d.sessions, auth.CookieConfig{Secure: d.cfg.IsProduction()})))
	e.Use(middleware.Audit(d.logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "ok",
			"model":  d.modelName,
			"store":  d.cfg.StoreDriver,
		})
	})
	if d.pool != nil {
		e.GET("/health/db", db.HealthHandler(d.pool))
	}

	var api *echo.Group
	var jwtCfg *auth.JWTConfig
	if d.cfg.APIEnabled() {
		jwtCfg = &auth.JWTConfig{
			Issuer:     tokenIssuer,
			SigningKey: []byte(d.cfg.JWTSigningKey),
			TTL:        d.cfg.TokenTTL,
			Skipper:    auth.AuthSkipper,
		}
		api = e.Group(apiPrefix, auth.JWTMiddleware(*jwtCfg))
	}

	auth.NewHandler(d.gate, jwtCfg, d.logger).RegisterRoutes(e, api)
	abg.NewHandler(d.service).RegisterRoutes(e, api)

	return e, nil
}

// skipAPI keeps cookie sessions off the bearer-token API.
func skipAPI(mw echo.MiddlewareFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		wrapped := mw(next)
		return func(c echo.Context) error {
			if strings.HasPrefix(c.Request().URL.Path, apiPrefix+"/") {
				return next(c)
			}
			return wrapped(c)
		}
	}
}
