package model

import "time"

// BatchStatus — статус пакета загрузки.
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
)

// UploadBatch — одна пакетная загрузка (1–100 файлов).
// Хранится в таблице upload_batches. Создаётся в начале пакета
// и обновляется один раз при завершении.
type UploadBatch struct {
	// ID — идентификатор пакета (batch-<uuid> или заданный клиентом)
	ID string
	// FacilityID — целевой объект
	FacilityID int64
	// UserID — инициатор загрузки
	UserID int64
	// TotalFiles — заявленное количество файлов
	TotalFiles int
	// ProcessedFiles — количество обработанных файлов
	ProcessedFiles int
	// SuccessfulFiles — количество успешно зарегистрированных
	SuccessfulFiles int
	// FailedFiles — количество файлов с ошибкой
	FailedFiles int
	// Status — pending → processing → completed
	Status BatchStatus
	// StartedAt — время начала
	StartedAt time.Time
	// CompletedAt — время завершения (nil пока пакет не завершён)
	CompletedAt *time.Time
}
