// dephealth.go — состояние PostgreSQL в графе зависимостей topologymetrics.
// Метрики app_dependency_* публикуются на /metrics рядом с метриками пакетов.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// postgresDependency — имя зависимости в метриках и ключах Health().
const postgresDependency = "postgresql"

// DephealthConfig — параметры мониторинга.
type DephealthConfig struct {
	ServiceID string
	Group     string
	// DB — адаптер пула сервиса (stdlib.OpenDBFromPool): проверка занимает
	// соединение из того же пула, что и загрузки.
	DB *sql.DB
	// DatabaseURL нужен только для лейблов host/port.
	DatabaseURL   string
	CheckInterval time.Duration
	// Registerer — nil означает глобальный registry.
	Registerer prometheus.Registerer
}

// DephealthService следит за доступностью базы, в которую пишутся пакеты.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService регистрирует PostgreSQL как критичную зависимость.
func NewDephealthService(cfg DephealthConfig, logger *slog.Logger) (*DephealthService, error) {
	if cfg.DB == nil {
		return nil, errors.New("dephealth: пул PostgreSQL не задан")
	}

	opts := []dephealth.Option{
		dephealth.WithLogger(logger),
		dephealth.AddDependency(postgresDependency, dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(cfg.DB)),
			dephealth.FromURL(cfg.DatabaseURL),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(true),
		),
	}
	if cfg.Registerer != nil {
		opts = append(opts, dephealth.WithRegisterer(cfg.Registerer))
	}

	dh, err := dephealth.New(cfg.ServiceID, cfg.Group, opts...)
	if err != nil {
		return nil, fmt.Errorf("dephealth: %w", err)
	}
	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

func (ds *DephealthService) Start(ctx context.Context) error {
	if err := ds.dh.Start(ctx); err != nil {
		return err
	}
	ds.logger.Info("Проверка PostgreSQL запущена")
	return nil
}

func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Проверка PostgreSQL остановлена")
}

// Health — состояние эндпоинтов, ключ "postgresql:<host>:<port>".
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
