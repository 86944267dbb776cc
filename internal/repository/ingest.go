package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// IngestSession — репозитории пакета загрузки поверх одного
// выделенного соединения. Release возвращает соединение в пул.
type IngestSession interface {
	Batches() UploadBatchRepository
	Files() FileRepository
	Release()
}

// IngestStore выдаёт сессии записи пакетов.
type IngestStore interface {
	// Acquire занимает соединение из пула на время обработки пакета.
	Acquire(ctx context.Context) (IngestSession, error)
}

type poolIngestStore struct {
	pool *pgxpool.Pool
}

// NewIngestStore создаёт IngestStore поверх пула соединений.
func NewIngestStore(pool *pgxpool.Pool) IngestStore {
	return &poolIngestStore{pool: pool}
}

func (s *poolIngestStore) Acquire(ctx context.Context) (IngestSession, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения соединения из пула: %w", err)
	}
	return &connSession{
		conn:    conn,
		batches: NewUploadBatchRepository(conn),
		files:   NewFileRepository(conn),
	}, nil
}

type connSession struct {
	conn    *pgxpool.Conn
	batches UploadBatchRepository
	files   FileRepository
}

func (s *connSession) Batches() UploadBatchRepository { return s.batches }
func (s *connSession) Files() FileRepository          { return s.files }
func (s *connSession) Release()                       { s.conn.Release() }
