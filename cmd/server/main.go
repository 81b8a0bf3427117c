package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/goodnight000/kittycourt-backend/internal/ai"
	"github.com/goodnight000/kittycourt-backend/internal/config"
	"github.com/goodnight000/kittycourt-backend/internal/db"
	"github.com/goodnight000/kittycourt-backend/internal/domain/repository"
	"github.com/goodnight000/kittycourt-backend/internal/goroutine"
	httpHandlers "github.com/goodnight000/kittycourt-backend/internal/http/handlers"
	httpRouter "github.com/goodnight000/kittycourt-backend/internal/http/router"
	aiInfra "github.com/goodnight000/kittycourt-backend/internal/infrastructure/ai"
	"github.com/goodnight000/kittycourt-backend/internal/infrastructure/persistence"
	"github.com/goodnight000/kittycourt-backend/internal/logger"
	"github.com/goodnight000/kittycourt-backend/internal/service"
	"github.com/goodnight000/kittycourt-backend/internal/usecase/courtroom"
	"github.com/goodnight000/kittycourt-backend/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	if cfg.Env == "development" {
		logger.Init("debug", false)
	} else {
		logger.Init("info", true)
	}

	// Хранилище сессий: PostgreSQL, если настроена база, иначе память процесса.
	var (
		sessions repository.SessionRepository
		cases    repository.CaseRepository
		storage  = "memory"
	)
	if cfg.UsesMemoryStore() {
		memCases := persistence.NewMemoryCaseRepository()
		sessions = persistence.NewMemorySessionRepository(memCases)
		cases = memCases
		logger.Log.Warn("main: DATABASE_URL не задан, сессии хранятся в памяти")
	} else {
		dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL, db.DefaultPool)
		if err != nil {
			logger.Log.Fatalf("main: ошибка подключения к базе: %v", err)
		}
		defer safeClose(dbConn)

		if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
			logger.Log.Fatalf("main: ошибка миграций: %v", err)
		}
		sessions = persistence.NewSessionRepositoryAdapter(dbConn)
		cases = persistence.NewCaseRepositoryAdapter(dbConn)
		storage = "postgres"
	}

	// ИИ-судья. Без адреса модели шаги судьи завершаются видимой ошибкой.
	var judge courtroom.Judge
	aiClient := ai.NewClient(ai.Config{
		BaseURL: cfg.AIBaseURL,
		APIKey:  cfg.AIAPIKey,
		Model:   cfg.AIModel,
		Timeout: cfg.AITimeout,
		Retry:   ai.DefaultRetryConfig(),
	})
	if aiClient.Enabled() {
		judge = aiInfra.NewJudgeAdapter(aiClient)
	} else {
		logger.Log.Warn("main: AI_BASE_URL не задан, судья отключён")
	}

	court := courtroom.New(sessions, cases, judge, courtroom.Config{
		PendingTTL:          cfg.SessionPendingTTL,
		EvidenceTTL:         cfg.SessionEvidenceTTL,
		MaxConcurrentJudges: cfg.AIMaxConcurrent,
		JudgeTimeout:        cfg.AITimeout,
	})

	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL)

	// Вебсокеты.
	hub := ws.NewHub(ctx, court)
	court.SetNotifier(hub)
	goroutine.SafeGo(hub.Run)

	goroutine.SafeGoWithContext(ctx, func(ctx context.Context) {
		court.RunExpiry(ctx, cfg.SessionSweepInterval)
	})

	// HTTP хэндлеры.
	courtHandler := httpHandlers.NewCourtHandler(court)
	wsHandler := httpHandlers.NewWSHandler(hub, tokenManager, cfg.WSActionsPerSecond, cfg.WSActionBurst)
	healthHandler := httpHandlers.NewHealthHandler(court, storage, judge != nil)

	engine := httpRouter.SetupRouter(cfg, courtHandler, wsHandler, healthHandler, tokenManager)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Завершаем сервер при получении сигнала.
	goroutine.SafeGo(func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Log.WithError(err).Error("main: ошибка остановки http сервера")
		}
	})

	logger.Log.WithField("port", cfg.HTTPPort).WithField("storage", storage).Info("main: HTTP сервер запущен")

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}

	// Незавершённые вызовы судьи отменяются, результаты не записываются.
	court.Close()
	logger.Log.Info("main: сервер остановлен")
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		logger.Log.WithError(err).Error("main: ошибка закрытия базы")
	}
}
