package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/booknova-api/api/swagger"
	"github.com/noah-isme/booknova-api/internal/handler"
	"github.com/noah-isme/booknova-api/internal/middleware"
	"github.com/noah-isme/booknova-api/internal/repository"
	"github.com/noah-isme/booknova-api/internal/service"
	"github.com/noah-isme/booknova-api/pkg/cache"
	"github.com/noah-isme/booknova-api/pkg/config"
	"github.com/noah-isme/booknova-api/pkg/database"
	"github.com/noah-isme/booknova-api/pkg/events"
	"github.com/noah-isme/booknova-api/pkg/jobs"
	"github.com/noah-isme/booknova-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/booknova-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/booknova-api/pkg/middleware/requestid"
	"github.com/noah-isme/booknova-api/pkg/storage"
	"github.com/noah-isme/booknova-api/pkg/validation"
)

// @title BookNova API
// @version 1.0.0
// @description Library management: catalogue, members, loans and fines.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		if err := database.MigrateUp(ctx, db.DB); err != nil {
			return err
		}
		logr.Info("database migrated")
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, catalogue cache disabled", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
	}

	publisher, err := newPublisher(ctx, cfg, logr)
	if err != nil {
		return err
	}
	defer publisher.Close() //nolint:errcheck

	dispatcher := events.NewDispatcher(publisher, jobs.QueueConfig{
		Workers:    cfg.Events.Workers,
		BufferSize: cfg.Events.BufferSize,
		MaxRetries: cfg.Events.MaxRetries,
		RetryDelay: cfg.Events.RetryDelay,
		Logger:     logr.Named("events"),
	})
	dispatcher.Start(ctx)

	store, err := newExportStore(ctx, cfg.Exports)
	if err != nil {
		return err
	}

	router, metricsSvc, exportSvc := buildAPI(cfg, logr, db, redisClient, dispatcher, store)
	metricsSvc.TrackPendingEvents(func() int { return dispatcher.Stats().Pending })
	exportSvc.StartCleanup(ctx, cfg.Exports.CleanupInterval)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	router.Register(r)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown", zap.Error(err))
	}
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		logr.Warn("event queue did not drain", zap.Error(err))
	}
	return nil
}

func buildAPI(cfg *config.Config, logr *zap.Logger, db *sqlx.DB, redisClient *redis.Client, dispatcher *events.Dispatcher, store storage.Store) (handler.Router, *service.MetricsService, *service.ExportService) {
	validate := validation.New()

	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	memberRepo := repository.NewMemberRepository(db)
	bookRepo := repository.NewBookRepository(db)
	loanRepo := repository.NewLoanRepository(db)
	requestRepo := repository.NewMembershipRequestRepository(db)

	metricsSvc := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr.Named("cache"))
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.CacheTTL, logr.Named("cache"), cfg.Cache.Enabled)

	authSvc := service.NewAuthService(userRepo, auditRepo, validate, logr.Named("auth"), service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		SingleSession:      cfg.JWT.SingleSession,
	})
	userSvc := service.NewUserService(userRepo, auditRepo, validate, logr.Named("users"))
	memberSvc := service.NewMemberService(memberRepo, auditRepo, validate, logr.Named("members"))
	bookSvc := service.NewBookService(bookRepo, cacheSvc, auditRepo, validate, logr.Named("books"))
	loanSvc := service.NewLoanService(loanRepo, service.LoanPolicy{
		RegularLimit:      cfg.Loans.RegularLimit,
		PremiumLimit:      cfg.Loans.PremiumLimit,
		DefaultPeriodDays: cfg.Loans.DefaultPeriodDays,
		FinePerDay:        cfg.Loans.FinePerDay,
	}, service.LoanServiceDeps{
		Members:   memberRepo,
		Catalogue: bookSvc,
		Events:    dispatcher,
		Metrics:   metricsSvc,
		Audit:     auditRepo,
		Validator: validate,
		Logger:    logr.Named("loans"),
	})
	requestSvc := service.NewMembershipRequestService(requestRepo, userRepo, memberRepo, auditRepo, validate, logr.Named("membership"))
	exportSvc := service.NewExportService(bookRepo, loanRepo, store,
		storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL),
		auditRepo,
		service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Exports.SignedURLTTL, FinePerDay: loanSvc.Policy().FinePerDay},
		logr.Named("exports"))

	return handler.Router{
		Prefix:             cfg.APIPrefix,
		Tokens:             authSvc,
		Audit:              auditRepo,
		Logger:             logr,
		Auth:               handler.NewAuthHandler(authSvc, userSvc),
		Users:              handler.NewUserHandler(userSvc),
		Members:            handler.NewMemberHandler(memberSvc, loanSvc),
		Books:              handler.NewBookHandler(bookSvc),
		Loans:              handler.NewLoanHandler(loanSvc),
		MembershipRequests: handler.NewMembershipRequestHandler(requestSvc),
		Me:                 handler.NewMeHandler(memberSvc, loanSvc),
		Exports:            handler.NewExportHandler(exportSvc),
		Metrics:            handler.NewMetricsHandler(metricsSvc, db),
	}, metricsSvc, exportSvc
}
