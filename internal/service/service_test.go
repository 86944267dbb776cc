package service

import (
	"io"
	"log/slog"
	"sync"

	"github.com/bigkaa/objektpro/internal/domain/model"
)

// testLogger — логгер, отбрасывающий вывод.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingDiscarder — FileDiscarder, запоминающий удалённые файлы.
type recordingDiscarder struct {
	mu        sync.Mutex
	discarded []string
	batchDirs []string
}

func (d *recordingDiscarder) Discard(files []model.StagedFile, batchID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, f := range files {
		d.discarded = append(d.discarded, f.OriginalFilename)
	}
	if batchID != "" {
		d.batchDirs = append(d.batchDirs, batchID)
	}
}

func (d *recordingDiscarder) names() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.discarded...)
}
