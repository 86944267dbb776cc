// Точка входа objektpro — API пакетной загрузки файлов объектов.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// создаёт сервисный слой и API handlers, запускает topologymetrics
// и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/objektpro/internal/api/handlers"
	"github.com/bigkaa/objektpro/internal/api/openapi"
	"github.com/bigkaa/objektpro/internal/config"
	"github.com/bigkaa/objektpro/internal/database"
	"github.com/bigkaa/objektpro/internal/domain/model"
	"github.com/bigkaa/objektpro/internal/intake"
	"github.com/bigkaa/objektpro/internal/repository"
	"github.com/bigkaa/objektpro/internal/server"
	"github.com/bigkaa/objektpro/internal/service"
	"github.com/bigkaa/objektpro/internal/token"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("objektpro запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("environment", cfg.Environment),
	)

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics.
	// Проверка идёт через общий пул и обнаруживает его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Repositories
	userRepo := repository.NewUserRepository(pool)
	facilityRepo := repository.NewFacilityRepository(pool)
	fileRepo := repository.NewFileRepository(pool)
	ingestStore := repository.NewIngestStore(pool)

	// 6. Токены и аутентификация
	issuer := token.NewIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	authSvc := service.NewAuthService(userRepo, issuer, logger)

	var bootstrapAdmin *model.User
	if cfg.HasBootstrapAdmin() {
		bootstrapAdmin, err = authSvc.ProvisionAdmin(ctx,
			cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword, cfg.BootstrapAdminName)
		if err != nil {
			logger.Error("Ошибка создания администратора", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// 7. Приём файлов
	policy := intake.DefaultPolicy()
	policy.MaxFiles = cfg.UploadMaxFiles
	policy.MaxFileSize = cfg.UploadMaxFileSize

	fileStore, err := intake.NewStore(cfg.UploadDir, cfg.UploadBatchDirs)
	if err != nil {
		logger.Error("Ошибка подготовки каталога загрузок",
			slog.String("dir", cfg.UploadDir),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	intakeSvc := intake.New(policy, fileStore, logger)

	// 8. Services
	progress := service.NewProgressRegistry(cfg.ProgressMaxEntries, cfg.ProgressTTL)
	facilitySvc := service.NewFacilityService(facilityRepo, fileRepo, logger)
	ingestSvc := service.NewIngestService(ingestStore, progress, intakeSvc, cfg.IngestWorkers, logger)

	// 9. topologymetrics — мониторинг PostgreSQL
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:     "objektpro",
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		DatabaseURL:   cfg.DatabaseURL(),
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	var deps handlers.DependencyHealth
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
	} else {
		deps = dephealthSvc
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 10. Handlers
	healthHandler := handlers.NewHealthHandler(
		database.NewReadinessChecker(pool),
		deps,
		progress,
		handlers.UploadSystemInfo{
			UploadDir:      cfg.UploadDir,
			BatchDirs:      cfg.UploadBatchDirs,
			MaxFiles:       policy.MaxFiles,
			MaxFileSize:    policy.MaxFileSize,
			SupportedTypes: policy.AllowedTypes,
			IngestWorkers:  cfg.IngestWorkers,
		},
		cfg.Environment,
	)
	apiHandler := handlers.NewAPIHandler(handlers.Deps{
		Health:     healthHandler,
		Auth:       authSvc,
		Facilities: facilitySvc,
		Ingest:     ingestSvc,
		Progress:   progress,
		Intake:     intakeSvc,
		Diagnostic: cfg.Diagnostic,
	}, logger)

	validator, err := openapi.NewValidator(ctx, logger)
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI-контракта", slog.String("error", err.Error()))
		os.Exit(1)
	}

	routerDeps := server.RouterDeps{
		API:       apiHandler,
		Guard:     newGuard(cfg, bootstrapAdmin, logger),
		Validator: validator,
	}
	if cfg.StaticDir != "" {
		routerDeps.SPA = handlers.NewSPAHandler(cfg.StaticDir)
		logger.Info("SPA подключено", slog.String("dir", cfg.StaticDir))
	}

	// 11. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, server.NewRouter(routerDeps, logger))
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 12. Остановка фоновых задач
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("objektpro остановлен")
}
