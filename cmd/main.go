package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"docspace/internal/auth"
	"docspace/internal/config"
	"docspace/internal/events"
	"docspace/internal/handler"
	"docspace/internal/repository"
	"docspace/internal/service"
	"docspace/pkg/logger"
)

func connectWithRetry(cfg *config.DatabaseConfig, maxAttempts int, delay time.Duration) (*sqlx.DB, error) {
	// Сначала подключаемся к системной базе postgres, которая всегда существует
	dsn := cfg.GetDSN()
	pgDSN := strings.Replace(dsn, "dbname="+cfg.Name, "dbname=postgres", 1)
	pgDB, err := sqlx.Connect("postgres", pgDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres database: %v", err)
	}
	defer pgDB.Close()

	// Проверяем, существует ли рабочая база
	var exists bool
	err = pgDB.Get(&exists, "SELECT EXISTS(SELECT datname FROM pg_catalog.pg_database WHERE datname = $1)", cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to check database existence: %v", err)
	}

	// Если базы нет, создаем её
	if !exists {
		log.Printf("Database %s does not exist, creating...", cfg.Name)
		_, err = pgDB.Exec(fmt.Sprintf("CREATE DATABASE %s", cfg.Name))
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %v", err)
		}
	}

	var db *sqlx.DB
	for i := 0; i < maxAttempts; i++ {
		db, err = sqlx.Connect("postgres", dsn)
		if err == nil {
			return db, nil
		}

		log.Printf("Failed to connect to database (attempt %d/%d): %v", i+1, maxAttempts, err)
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %v", maxAttempts, err)
}

func runMigrations(cfg *config.Config) error {
	databaseURL := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	var m *migrate.Migrate
	var err error

	for i := 0; i < 5; i++ {
		m, err = migrate.New("file://migrations", databaseURL)
		if err == nil {
			break
		}
		log.Printf("Failed to create migrate instance (attempt %d/5): %v", i+1, err)
		time.Sleep(time.Second * 5)
	}

	if err != nil {
		return fmt.Errorf("failed to create migrate instance after retries: %w", err)
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if dirty {
		log.Printf("Found dirty database state at version %d, attempting to force version", version)
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func main() {
	// Загружаем конфигурации
	appConfig, err := config.NewConfig(".app.env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := logger.New(appConfig.Log.Env, appConfig.Log.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()
	slog := zapLogger.Sugar()

	// Подключаемся к базе данных
	db, err := connectWithRetry(&appConfig.Database, 5, time.Second*5)
	if err != nil {
		log.Fatalf("Failed to connect to database after retries: %v", err)
	}
	defer db.Close()

	if err := runMigrations(appConfig); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	verifier := auth.NewVerifier(appConfig.Auth.JWTSecret)

	// Журнал доменных событий
	auditLog := events.NewAuditLog(slog)
	defer auditLog.Close()

	// Инициализация репозиториев
	documentRepo := repository.NewDocumentRepository(db)
	collectionRepo := repository.NewCollectionRepository(db)
	teamRepo := repository.NewTeamRepository(db)
	shareRepo := repository.NewShareRepository(db)

	// Инициализация сервисов
	policyService := service.NewPolicyService()
	accessService := service.NewAccessService(documentRepo, collectionRepo, teamRepo, shareRepo, policyService, slog)
	documentService := service.NewDocumentService(documentRepo, collectionRepo, policyService, auditLog, slog)
	shareService := service.NewShareService(shareRepo, documentRepo, policyService, auditLog, slog)

	// Инициализация хендлеров
	documentHandler := handler.NewDocumentHandler(documentService, accessService, verifier, slog)
	collectionHandler := handler.NewCollectionHandler(documentService, verifier, slog)
	shareHandler := handler.NewShareHandler(shareService, verifier, slog)

	// Настройка HTTP роутера
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// HTTP маршруты
	r.Route("/v1", func(r chi.Router) {
		r.Route("/documents", func(r chi.Router) {
			r.Post("/", documentHandler.Create)
			r.Post("/resolve", documentHandler.Resolve)
			r.Put("/{id}/move", documentHandler.Move)
			r.Post("/{id}/archive", documentHandler.Archive)
			r.Post("/{id}/restore", documentHandler.Restore)
			r.Post("/{id}/unpublish", documentHandler.Unpublish)
			r.Get("/{id}/share", shareHandler.GetByDocument)
		})

		r.Route("/collections", func(r chi.Router) {
			r.Get("/{id}/structure", collectionHandler.Structure)
			r.Post("/{id}/repair-index", collectionHandler.RepairIndex)
		})

		r.Route("/shares", func(r chi.Router) {
			r.Post("/", shareHandler.Create)
			r.Put("/{id}", shareHandler.Update)
			r.Delete("/{id}", shareHandler.Revoke)
		})
	})

	// Создаем HTTP сервер
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", appConfig.Server.Port),
		Handler: r,
	}

	// Канал для сигналов завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Запускаем HTTP сервер
	go func() {
		slog.Infow("Starting HTTP server", "port", appConfig.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Ожидаем сигнал завершения
	<-quit
	slog.Infow("Shutting down server")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Errorw("HTTP server forced to shutdown", "error", err)
	}

	if err := db.Close(); err != nil {
		slog.Errorw("Error closing database connection", "error", err)
	}

	slog.Infow("Server exited properly")
}
