// ingest.go — регистрация принятых файлов пакетной загрузки.
// Пакет записывается в upload_batches, каждый файл — в files.
// Ошибка вставки одного файла не прерывает пакет: файл попадает
// в список неудачных, остальные продолжают обрабатываться.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/objektpro/internal/domain/model"
	"github.com/bigkaa/objektpro/internal/repository"
)

// Prometheus-метрики регистрации пакетов.
var (
	ingestBatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "op_ingest_batches_total",
		Help: "Количество обработанных пакетов загрузки по результату.",
	}, []string{"result"})
	ingestFilesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "op_ingest_files_total",
		Help: "Количество зарегистрированных файлов по результату.",
	}, []string{"result"})
	ingestBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "op_ingest_batch_duration_seconds",
		Help:    "Длительность регистрации пакета загрузки.",
		Buckets: prometheus.DefBuckets,
	})
)

// extraConnWait — сколько дополнительный воркер ждёт свободное соединение.
// Не дождался — пакет обрабатывается меньшим числом воркеров.
const extraConnWait = 200 * time.Millisecond

// FileDiscarder удаляет принятые файлы с диска.
// Реализуется *intake.Intake.
type FileDiscarder interface {
	Discard(files []model.StagedFile, batchID string)
}

// IngestRequest — входные данные пакета.
type IngestRequest struct {
	BatchID    string
	FacilityID int64
	UserID     int64
	Files      []model.StagedFile
}

// BatchSummary — итоговые счётчики пакета.
type BatchSummary struct {
	ID         string
	Total      int
	Successful int
	Failed     int
}

// FailedFile — файл, который не удалось зарегистрировать.
type FailedFile struct {
	Filename string
	Error    string
}

// IngestStatistics — агрегаты по успешно зарегистрированным файлам.
type IngestStatistics struct {
	TotalSize      int64
	ProcessingTime time.Duration
	// FileTypes — различные категории MIME в порядке первого появления.
	FileTypes []string
}

// Manifest — результат регистрации пакета.
type Manifest struct {
	Batch      BatchSummary
	Successful []*model.File
	Failed     []FailedFile
	Statistics IngestStatistics
}

// IngestService — регистрация пакетов загрузки.
type IngestService struct {
	store    repository.IngestStore
	progress *ProgressRegistry
	discard  FileDiscarder
	workers  int
	connWait time.Duration
	logger   *slog.Logger
	now      func() time.Time
	remoteID func() string
}

// NewIngestService создаёт сервис регистрации пакетов.
// workers — число параллельных вставок; 1 — последовательная обработка
// на одном соединении.
func NewIngestService(
	store repository.IngestStore,
	progress *ProgressRegistry,
	discard FileDiscarder,
	workers int,
	logger *slog.Logger,
) *IngestService {
	if workers < 1 {
		workers = 1
	}
	return &IngestService{
		store:    store,
		progress: progress,
		discard:  discard,
		workers:  workers,
		connWait: extraConnWait,
		logger:   logger.With(slog.String("component", "ingest_service")),
		now:      time.Now,
		remoteID: func() string { return "pending-" + uuid.NewString() },
	}
}

// NewBatchID генерирует идентификатор пакета.
func NewBatchID() string {
	return "batch-" + uuid.NewString()
}

// Reserve регистрирует пакет в реестре прогресса до приёма файлов.
// Повторный идентификатор — ErrConflict.
func (s *IngestService) Reserve(batchID string) error {
	return s.progress.Start(batchID, 0)
}

// Abandon отмечает пакет как прерванный до регистрации (например, отказ intake).
func (s *IngestService) Abandon(batchID, reason string) {
	s.progress.Fail(batchID, reason)
	ingestBatchesTotal.WithLabelValues("rejected").Inc()
}

// Ingest регистрирует принятые файлы пакета.
// Обработка не прерывается отменой контекста запроса.
func (s *IngestService) Ingest(ctx context.Context, req IngestRequest) (*Manifest, error) {
	started := s.now()

	if len(req.Files) == 0 {
		s.Abandon(req.BatchID, ErrNoFilesUploaded.Error())
		return nil, ErrNoFilesUploaded
	}

	ctx = context.WithoutCancel(ctx)
	total := len(req.Files)
	s.progress.MarkProcessing(req.BatchID, total)

	session, err := s.store.Acquire(ctx)
	if err != nil {
		return nil, s.abort(req, fmt.Errorf("ошибка получения соединения: %w", err))
	}
	defer session.Release()

	batch := &model.UploadBatch{
		ID:         req.BatchID,
		FacilityID: req.FacilityID,
		UserID:     req.UserID,
		TotalFiles: total,
		Status:     model.BatchProcessing,
	}
	if err := session.Batches().Create(ctx, batch); err != nil {
		return nil, s.abort(req, err)
	}

	outcomes := s.insertAll(ctx, session, req)

	manifest := &Manifest{
		Batch:      BatchSummary{ID: req.BatchID, Total: total},
		Successful: make([]*model.File, 0, total),
		Failed:     make([]FailedFile, 0),
		Statistics: IngestStatistics{FileTypes: make([]string, 0, 2)},
	}
	seenTypes := map[string]bool{}
	for i, out := range outcomes {
		if out.err != nil {
			manifest.Failed = append(manifest.Failed, FailedFile{
				Filename: req.Files[i].OriginalFilename,
				Error:    out.err.Error(),
			})
			continue
		}
		manifest.Successful = append(manifest.Successful, out.file)
		manifest.Statistics.TotalSize += out.file.Size
		if category := model.MediaCategory(out.file.MimeType); !seenTypes[category] {
			seenTypes[category] = true
			manifest.Statistics.FileTypes = append(manifest.Statistics.FileTypes, category)
		}
	}
	manifest.Batch.Successful = len(manifest.Successful)
	manifest.Batch.Failed = len(manifest.Failed)

	batch.ProcessedFiles = total
	batch.SuccessfulFiles = manifest.Batch.Successful
	batch.FailedFiles = manifest.Batch.Failed
	if err := session.Batches().Complete(ctx, batch); err != nil {
		s.progress.Fail(req.BatchID, "ошибка завершения пакета")
		ingestBatchesTotal.WithLabelValues("error").Inc()
		s.logger.Error("Ошибка завершения пакета",
			slog.String("batch_id", req.BatchID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("ошибка завершения пакета %s: %w", req.BatchID, err)
	}
	s.progress.Complete(req.BatchID)

	manifest.Statistics.ProcessingTime = s.now().Sub(started)
	ingestBatchesTotal.WithLabelValues("completed").Inc()
	ingestBatchDuration.Observe(manifest.Statistics.ProcessingTime.Seconds())

	s.logger.Info("Пакет загрузки обработан",
		slog.String("batch_id", req.BatchID),
		slog.Int64("facility_id", req.FacilityID),
		slog.Int("total", total),
		slog.Int("successful", manifest.Batch.Successful),
		slog.Int("failed", manifest.Batch.Failed),
		slog.Duration("duration", manifest.Statistics.ProcessingTime),
	)
	return manifest, nil
}

// abort прерывает пакет до регистрации файлов: принятые файлы удаляются,
// реестр прогресса получает статус failed.
func (s *IngestService) abort(req IngestRequest, err error) error {
	s.discard.Discard(req.Files, req.BatchID)
	s.progress.Fail(req.BatchID, "ошибка создания пакета")
	ingestBatchesTotal.WithLabelValues("error").Inc()

	s.logger.Error("Пакет загрузки прерван",
		slog.String("batch_id", req.BatchID),
		slog.Int64("facility_id", req.FacilityID),
		slog.String("error", err.Error()),
	)

	switch {
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: пакет %s", ErrConflict, req.BatchID)
	case errors.Is(err, repository.ErrNotFound):
		return ErrFacilityNotFound
	default:
		return fmt.Errorf("ошибка создания пакета %s: %w", req.BatchID, err)
	}
}

// insertOutcome — результат вставки одного файла.
type insertOutcome struct {
	file *model.File
	err  error
}

// insertAll вставляет записи файлов. Результаты упорядочены как req.Files.
func (s *IngestService) insertAll(ctx context.Context, session repository.IngestSession, req IngestRequest) []insertOutcome {
	if s.workers == 1 || len(req.Files) == 1 {
		results := make([]insertOutcome, len(req.Files))
		for i, sf := range req.Files {
			results[i] = s.insertOne(ctx, session.Files(), req, sf)
		}
		return results
	}
	return s.insertPooled(ctx, session, req)
}

// insertPooled — ограниченный пул воркеров, читающих задачи из канала.
// Воркер 0 использует соединение пакета, остальные берут собственные.
// Дополнительное соединение ждётся не дольше connWait: при занятом пуле
// воркеров становится меньше, а пакет не блокирует пул.
func (s *IngestService) insertPooled(ctx context.Context, session repository.IngestSession, req IngestRequest) []insertOutcome {
	type result struct {
		idx int
		out insertOutcome
	}

	n := min(s.workers, len(req.Files))
	tasks := make(chan int)
	results := make(chan result, n)

	var g errgroup.Group
	for w := range n {
		files := session.Files()
		var extra repository.IngestSession
		if w > 0 {
			acquireCtx, cancel := context.WithTimeout(ctx, s.connWait)
			acquired, err := s.store.Acquire(acquireCtx)
			cancel()
			if err != nil {
				s.logger.Warn("Воркер пакета не запущен: нет соединения",
					slog.String("batch_id", req.BatchID),
					slog.Int("worker", w),
					slog.String("error", err.Error()),
				)
				break
			}
			extra = acquired
			files = extra.Files()
		}

		g.Go(func() error {
			if extra != nil {
				defer extra.Release()
			}
			for idx := range tasks {
				results <- result{idx: idx, out: s.insertOne(ctx, files, req, req.Files[idx])}
			}
			return nil
		})
	}

	go func() {
		for i := range req.Files {
			tasks <- i
		}
		close(tasks)
		_ = g.Wait()
		close(results)
	}()

	outcomes := make([]insertOutcome, len(req.Files))
	for r := range results {
		outcomes[r.idx] = r.out
	}
	return outcomes
}

// insertOne вставляет запись одного файла. При ошибке файл удаляется с диска.
func (s *IngestService) insertOne(ctx context.Context, files repository.FileRepository, req IngestRequest, sf model.StagedFile) insertOutcome {
	rec := &model.File{
		FacilityID:       req.FacilityID,
		Filename:         sf.Filename,
		OriginalFilename: sf.OriginalFilename,
		MimeType:         sf.MimeType,
		Size:             sf.Size,
		RemoteStorageID:  s.remoteID(),
		BatchID:          req.BatchID,
		UploadedBy:       req.UserID,
	}

	if err := files.Insert(ctx, rec); err != nil {
		s.logger.Warn("Ошибка регистрации файла",
			slog.String("batch_id", req.BatchID),
			slog.String("filename", sf.OriginalFilename),
			slog.String("error", err.Error()),
		)
		s.discard.Discard([]model.StagedFile{sf}, "")
		s.progress.RecordFailure(req.BatchID, sf.OriginalFilename, err.Error())
		ingestFilesTotal.WithLabelValues("failed").Inc()
		return insertOutcome{err: err}
	}

	s.progress.RecordSuccess(req.BatchID, sf.OriginalFilename)
	ingestFilesTotal.WithLabelValues("ok").Inc()
	return insertOutcome{file: rec}
}
