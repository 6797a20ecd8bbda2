package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"coinchart/internal/bot"
	"coinchart/internal/cache"
	"coinchart/internal/config"
	"coinchart/internal/db"
	"coinchart/internal/domain"
	"coinchart/internal/handler"
	"coinchart/internal/job"
	"coinchart/internal/metrics"
	"coinchart/internal/provider"
	"coinchart/internal/repository"
	"coinchart/internal/service"
	"coinchart/internal/signals"
	"coinchart/pkg/logger"
	"coinchart/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "coinchart/docs"
)

var (
	loadEnvFunc          = godotenv.Load
	loadConfigFunc       = config.Load
	newLoggerFunc        = logger.New
	initPostgresFunc     = db.InitPostgres
	initRedisFunc        = cache.InitRedis
	initTracerFunc       = tracing.InitTracer
	runMigrationsFunc    = func(ctx context.Context, repo *repository.TokenRepository) error { return repo.RunMigrations(ctx) }
	startSchedulerFunc   = func(s *job.Scheduler, ctx context.Context) error { return s.Start(ctx) }
	startTelegramBotFunc = bot.StartTelegramBot
	newRouterFunc        = gin.Default
	setupSignalNotify    = signal.Notify
	waitForSignalFunc    = func(quit <-chan os.Signal, serverErr <-chan error) error {
		select {
		case <-quit:
			return nil
		case err := <-serverErr:
			return err
		}
	}
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           Coinchart API
// @version         1.0
// @description     Token market data from CookieFun, Binance and Bybit with attached trading signals.

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey  ApiKeyAuth
// @in                          header
// @name                        X-API-Key
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "coinchart: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = loadEnvFunc()
	cfg := loadConfigFunc()

	log, err := newLoggerFunc(&logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	for _, w := range cfg.Warnings {
		log.Warn(w)
	}
	if err := cfg.CheckSecrets(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := initPostgresFunc(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns); err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	defer db.Close()

	if err := initRedisFunc(ctx, cfg.RedisURL); err != nil {
		log.Warn("redis unavailable, list cache and ingest status disabled", logger.Error(err))
	}
	defer cache.Close()

	tp, tracer, err := initTracerFunc(ctx, tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		Environment: cfg.Environment,
	})
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Error("error shutting down tracer provider", logger.Error(err))
		}
	}()

	tokenRepo := repository.NewTokenRepository(db.Pool, tracer)
	userRepo := repository.NewUserRepository(db.Pool, tracer)
	if err := runMigrationsFunc(ctx, tokenRepo); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New(reg)

	var rdb service.RedisClient
	if cache.Client != nil {
		rdb = cache.Client
	}

	timeout := time.Duration(cfg.Providers.TimeoutSecs) * time.Second
	cookieFun := provider.NewCookieFunProvider(tracer, provider.Options{BaseURL: cfg.Providers.CookieFunURL, Timeout: timeout})
	binance := provider.NewBinanceProvider(tracer, provider.Options{BaseURL: cfg.Providers.BinanceURL, Timeout: timeout})
	bybit := provider.NewBybitProvider(tracer, provider.Options{BaseURL: cfg.Providers.BybitURL, Timeout: timeout})
	feed := provider.NewSignalFeedProvider(tracer, provider.Options{BaseURL: cfg.Providers.SignalsURL, Timeout: timeout}).
		WithLogger(log.With(logger.String("component", "signal-feed")))

	signalSource, err := domain.ParseSource(cfg.SignalSource)
	if err != nil {
		return fmt.Errorf("signal source: %w", err)
	}

	ingestService := service.NewIngestService(tracer, tokenRepo, rdb, rec, log.With(logger.String("component", "ingest")))
	signalService := service.NewSignalService(tracer, feed, tokenRepo, signals.NewMatcher(), signalSource, rec,
		log.With(logger.String("component", "signals")))
	tokenService := service.NewTokenService(tracer, tokenRepo, userRepo, rdb, service.TokenServiceOptions{
		MinAge:          time.Duration(cfg.TokenListMinAgeDays) * 24 * time.Hour,
		ListCacheTTL:    time.Duration(cfg.TokenListCacheSecs) * time.Second,
		FreeTierTokens:  cfg.FreeTierTokens,
		FreeTierSignals: cfg.FreeTierSignals,
	}, log.With(logger.String("component", "tokens")))

	scheduler := job.NewScheduler(tracer, rec, log.With(logger.String("component", "scheduler")))
	tasks := buildTasks(cfg, ingestService, signalService, []service.TokenSource{cookieFun, binance, bybit})
	for _, t := range tasks {
		if err := scheduler.Register(t); err != nil {
			return fmt.Errorf("register task: %w", err)
		}
	}
	if err := startSchedulerFunc(scheduler, ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer scheduler.Stop()

	tgBot, err := startTelegramBotFunc(cfg.TelegramBotToken, tokenService, log.With(logger.String("component", "telegram")))
	if err != nil {
		log.Error("telegram bot disabled", logger.Error(err))
	}
	if tgBot != nil {
		defer tgBot.Stop()
	}

	h := handler.New(tracer, tokenService, ingestService, scheduler, rec)

	r := newRouterFunc()
	r.Use(otelgin.Middleware(tracing.ServiceName))
	h.RegisterRoutes(r, handler.RouteOptions{AdminKey: cfg.AdminAPIKey, TrustWalletHeader: cfg.TrustWalletHeader})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := startHTTPServerFunc(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	log.Info("server started", logger.Int("port", cfg.HTTPPort), logger.Int("tasks", len(tasks)))

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	if err := waitForSignalFunc(quit, serverErr); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	log.Info("shutting down server")

	cancel()
	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exiting")
	return nil
}

// buildTasks returns one ingest task per source plus the signal pass.
func buildTasks(cfg *config.Config, ingest *service.IngestService, sig *service.SignalService, sources []service.TokenSource) []job.Task {
	intervals := map[domain.Source]int{
		domain.SourceCookieFun: cfg.Poll.CookieFunSecs,
		domain.SourceBinance:   cfg.Poll.BinanceSecs,
		domain.SourceBybit:     cfg.Poll.BybitSecs,
	}

	tasks := make([]job.Task, 0, len(sources)+1)
	for _, src := range sources {
		tasks = append(tasks, job.Task{
			Name:     taskName(src.Source()),
			Interval: time.Duration(intervals[src.Source()]) * time.Second,
			Run: func(ctx context.Context) error {
				_, err := ingest.Ingest(ctx, src)
				return err
			},
		})
	}
	tasks = append(tasks, job.Task{
		Name:     "signals",
		Interval: time.Duration(cfg.Poll.SignalsSecs) * time.Second,
		Run: func(ctx context.Context) error {
			_, err := sig.RunPass(ctx)
			return err
		},
	})
	return tasks
}

func taskName(src domain.Source) string {
	return "ingest-" + strings.ToLower(string(src))
}
