package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mvsim/internal/api/handlers"
	"mvsim/internal/api/middleware"
	"mvsim/internal/config"
	"mvsim/internal/logging"
	"mvsim/internal/metrics"
	"mvsim/internal/simulation"
	"mvsim/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("MVSIM_CONFIG"), "Path to YAML settings")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logging.Setup(cfg.Log.Level, os.Getenv("API_ENV") == "development", os.Stderr)

	st, err := store.Open(store.Options{
		Backend:   cfg.Store.Backend,
		RedisAddr: cfg.Store.RedisAddr,
		TTL:       cfg.Store.TTL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("open result store")
	}
	defer st.Close()

	engine := simulation.New(cfg, nil)
	engine.Observer = func(stage simulation.Stage, d time.Duration) {
		metrics.ObserveStage(string(stage), d)
	}

	if os.Getenv("API_ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.CORS())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorHandler())

	simHandler := handlers.NewSimulationHandler(engine, st, 10*time.Minute)
	vectorHandler := handlers.NewVectorHandler(cfg.Weights())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "backend": engine.Backend.Name()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		api.POST("/simulations", simHandler.RunSimulation)
		api.GET("/simulations/:id", simHandler.GetSimulation)
		api.POST("/sweeps", simHandler.RunSweep)
		api.POST("/validate", simHandler.ValidateConfig)
		api.GET("/energy-vectors", vectorHandler.ListVectors)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.API.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Str("store", cfg.Store.Backend).Msg("starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	log.Info().Msg("server stopped")
}
