// progress.go — реестр прогресса пакетных загрузок.
// Незавершённые пакеты хранятся отдельно и не вытесняются. Завершённые
// уходят в hashicorp/golang-lru/v2/expirable: живут TTL после завершения,
// ёмкость ограничена.
package service

import (
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ProgressStatus — статус пакета в реестре прогресса.
type ProgressStatus string

const (
	ProgressStarting   ProgressStatus = "starting"
	ProgressProcessing ProgressStatus = "processing"
	ProgressCompleted  ProgressStatus = "completed"
	ProgressFailed     ProgressStatus = "failed"
)

// ProgressError — ошибка обработки файла или пакета.
type ProgressError struct {
	Filename  string
	Message   string
	Timestamp time.Time
}

// Progress — снимок прогресса пакета.
type Progress struct {
	BatchID     string
	Status      ProgressStatus
	Total       int
	Processed   int
	Success     int
	Failed      int
	Files       []string
	Errors      []ProgressError
	StartedAt   time.Time
	CompletedAt *time.Time
}

// Percent — доля обработанных файлов в процентах, округлённая до целого.
// Для пакета без файлов — 0.
func (p Progress) Percent() int {
	if p.Total <= 0 {
		return 0
	}
	return int(math.Round(float64(p.Processed) * 100 / float64(p.Total)))
}

// Finished сообщает, завершена ли обработка пакета.
func (p Progress) Finished() bool {
	return p.Status == ProgressCompleted || p.Status == ProgressFailed
}

func (p *Progress) clone() Progress {
	cp := *p
	cp.Files = slices.Clone(p.Files)
	cp.Errors = slices.Clone(p.Errors)
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		cp.CompletedAt = &t
	}
	return cp
}

// ProgressRegistry — реестр прогресса, создаётся при старте
// и передаётся в сервисы и обработчики.
type ProgressRegistry struct {
	mu      sync.Mutex
	running map[string]*Progress
	entries *expirable.LRU[string, *Progress]
	now     func() time.Time
}

// NewProgressRegistry создаёт реестр.
// maxEntries — ёмкость для завершённых пакетов, ttl — время жизни записи
// после завершения пакета.
func NewProgressRegistry(maxEntries int, ttl time.Duration) *ProgressRegistry {
	return &ProgressRegistry{
		running: make(map[string]*Progress),
		entries: expirable.NewLRU[string, *Progress](maxEntries, nil, ttl),
		now:     time.Now,
	}
}

// Start создаёт запись в статусе starting.
// Если запись с таким идентификатором уже есть — ErrConflict.
func (r *ProgressRegistry) Start(batchID string, total int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.lookup(batchID); ok {
		return fmt.Errorf("%w: пакет %s уже зарегистрирован", ErrConflict, batchID)
	}
	r.running[batchID] = &Progress{
		BatchID:   batchID,
		Status:    ProgressStarting,
		Total:     total,
		StartedAt: r.now(),
	}
	return nil
}

// Get возвращает снимок прогресса или ErrNotFound.
func (r *ProgressRegistry) Get(batchID string) (Progress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.lookup(batchID)
	if !ok {
		return Progress{}, fmt.Errorf("%w: пакет %s", ErrNotFound, batchID)
	}
	return p.clone(), nil
}

// MarkProcessing переводит пакет в processing с известным количеством файлов.
// Отсутствующая запись (например, вытесненная) создаётся заново.
func (r *ProgressRegistry) MarkProcessing(batchID string, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.lookup(batchID)
	if !ok {
		p = &Progress{BatchID: batchID, StartedAt: r.now()}
	}
	p.Status = ProgressProcessing
	p.Total = total
	p.CompletedAt = nil
	r.entries.Remove(batchID)
	r.running[batchID] = p
}

// RecordSuccess учитывает успешно обработанный файл.
func (r *ProgressRegistry) RecordSuccess(batchID, filename string) {
	r.update(batchID, func(p *Progress) {
		p.Processed++
		p.Success++
		p.Files = append(p.Files, filename)
	})
}

// RecordFailure учитывает файл, обработка которого завершилась ошибкой.
func (r *ProgressRegistry) RecordFailure(batchID, filename, message string) {
	now := r.now()
	r.update(batchID, func(p *Progress) {
		p.Processed++
		p.Failed++
		p.Errors = append(p.Errors, ProgressError{Filename: filename, Message: message, Timestamp: now})
	})
}

// Complete отмечает пакет завершённым. TTL записи отсчитывается заново.
func (r *ProgressRegistry) Complete(batchID string) {
	r.finish(batchID, ProgressCompleted, "")
}

// Fail отмечает пакет как прерванный с ошибкой.
func (r *ProgressRegistry) Fail(batchID, message string) {
	r.finish(batchID, ProgressFailed, message)
}

// Len возвращает количество записей в реестре.
func (r *ProgressRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.running) + r.entries.Len()
}

// Active возвращает количество незавершённых пакетов.
func (r *ProgressRegistry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.running)
}

// lookup ищет запись среди незавершённых, затем среди завершённых.
// Вызывается под r.mu.
func (r *ProgressRegistry) lookup(batchID string) (*Progress, bool) {
	if p, ok := r.running[batchID]; ok {
		return p, true
	}
	return r.entries.Peek(batchID)
}

func (r *ProgressRegistry) update(batchID string, fn func(p *Progress)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.running[batchID]; ok {
		fn(p)
	}
}

func (r *ProgressRegistry) finish(batchID string, status ProgressStatus, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.lookup(batchID)
	if !ok {
		return
	}
	now := r.now()
	p.Status = status
	p.CompletedAt = &now
	if message != "" {
		p.Errors = append(p.Errors, ProgressError{Message: message, Timestamp: now})
	}
	delete(r.running, batchID)
	r.entries.Add(batchID, p)
}
