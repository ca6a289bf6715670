package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ragline/ragline/config"
	"github.com/ragline/ragline/db"
	"github.com/ragline/ragline/internal/metrics"
	"github.com/ragline/ragline/internal/pipeline"
	"github.com/ragline/ragline/internal/store"
	"github.com/ragline/ragline/internal/vector"
	"github.com/ragline/ragline/provider"
)

// Run wires every dependency and serves the HTTP API until it fails.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie"},
		AllowCredentials: true,
	}))

	metrics.Register(prometheus.DefaultRegisterer)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	ctx := context.Background()
	dsn := cfg.Storage.Postgres.DSN()
	if err := db.Up(dsn); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	st, err := store.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("postgres connection failed: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port),
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed (%s:%s): %w", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port, err)
	}

	vc := vector.NewClient(vector.Config{
		Host:            cfg.Vector.Host,
		Port:            cfg.Vector.Port,
		Collection:      cfg.Vector.Collection,
		DenseModel:      cfg.Vector.DenseModel,
		SparseModel:     cfg.Vector.SparseModel,
		DenseDimensions: cfg.Vector.DenseDimensions,
		TopK:            cfg.Vector.TopK,
		Threshold:       cfg.Vector.Threshold,
		Timeout:         cfg.Vector.Timeout,
	})

	if err := cfg.LLM.Validate(); err != nil {
		return err
	}
	llm, err := provider.NewProvider(cfg.LLM)
	if err != nil {
		return err
	}

	pipe := pipeline.New(st, vc, llm, cfg.Vector.Collection, cfg.LLM.Model, cfg.Vector.TopK, cfg.Vector.Threshold)

	e.GET("/healthz", func(c echo.Context) error {
		if err := st.DB.PingContext(c.Request().Context()); err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "postgres: "+err.Error())
		}
		if err := vc.Healthy(c.Request().Context()); err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "qdrant: "+err.Error())
		}
		return c.String(http.StatusOK, "ok")
	})

	api := e.Group("/api")

	secret := []byte(cfg.Server.JWTSecret)
	if len(secret) > 0 {
		auth := &AuthHandler{Store: st, Secret: secret}
		auth.Register(api.Group("/auth"))
	}

	ch := &ChatHandler{Store: st, Pipeline: pipe, Rdb: rdb, Logger: baseLogger}
	ch.Register(api, secret)

	dh := &DashboardHandler{Store: st}
	dh.Register(api.Group("/dashboard"))

	addr := cfg.Server.Address
	if addr == "" {
		addr = ":8080"
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
