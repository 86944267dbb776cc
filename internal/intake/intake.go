// Пакет intake — приём multipart-запроса загрузки: проверка
// количества, типа и размера файлов и запись принятых файлов на диск.
// Запрос принимается или отклоняется целиком: при любом отказе
// ни один файл запроса не остаётся на диске.
package intake

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/bigkaa/objektpro/internal/domain/model"
)

// Intake — приёмник файлов загрузки.
type Intake struct {
	policy Policy
	store  *Store
	logger *slog.Logger
}

// New создаёт Intake с указанной политикой и хранилищем.
func New(policy Policy, store *Store, logger *slog.Logger) *Intake {
	return &Intake{
		policy: policy,
		store:  store,
		logger: logger.With(slog.String("component", "intake")),
	}
}

// Policy возвращает действующую политику приёма.
func (in *Intake) Policy() Policy {
	return in.policy
}

// Store возвращает хранилище принятых файлов.
func (in *Intake) Store() *Store {
	return in.store
}

// LimitBody ограничивает тело запроса размером, допустимым политикой.
func (in *Intake) LimitBody(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, in.policy.MaxRequestBytes())
}

// Accept читает multipart-тело запроса потоково и принимает файлы пакета batchID.
// Части без имени файла (обычные поля формы) пропускаются.
// Возвращает принятые файлы в порядке следования частей или *Error.
func (in *Intake) Accept(r *http.Request, batchID string) ([]model.StagedFile, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, newError(KindBadRequest, "ожидается multipart/form-data с полем %q", in.policy.FieldName)
	}

	var pending []*pendingFile
	staged := make([]model.StagedFile, 0, 8)

	reject := func(e *Error) ([]model.StagedFile, error) {
		for _, p := range pending {
			in.store.abort(p)
		}
		in.store.DiscardBatchDir(batchID)
		in.logger.Warn("Запрос загрузки отклонён",
			slog.String("batch_id", batchID),
			slog.String("kind", string(e.Kind)),
			slog.String("message", e.Message),
			slog.Int("received", len(pending)),
		)
		return nil, e
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return reject(in.readError(err))
		}

		if part.FileName() == "" {
			part.Close()
			continue
		}

		if part.FormName() != in.policy.FieldName {
			part.Close()
			return reject(newError(KindUnexpectedField,
				"неожиданное поле %q: используйте поле %q для загрузки", part.FormName(), in.policy.FieldName))
		}

		if len(pending) >= in.policy.MaxFiles {
			part.Close()
			return reject(newError(KindTooManyFiles,
				"максимум %d файлов в одном запросе", in.policy.MaxFiles))
		}

		originalName := part.FileName()
		mimeType := NormalizeType(part.Header.Get("Content-Type"))
		if !in.policy.Allows(mimeType) {
			part.Close()
			return reject(newError(KindUnsupportedType,
				"тип %q не разрешён для файла %q", mimeType, originalName))
		}

		p, err := in.store.write(part, originalName, batchID, in.policy.MaxFileSize)
		part.Close()
		if err != nil {
			if errors.Is(err, errTooLarge) {
				return reject(newError(KindFileTooLarge,
					"файл %q превышает максимальный размер %d байт", originalName, in.policy.MaxFileSize))
			}
			return reject(in.readError(err))
		}

		pending = append(pending, p)
		staged = append(staged, model.StagedFile{
			StoragePath:      p.storagePath,
			Filename:         p.filename,
			OriginalFilename: originalName,
			MimeType:         mimeType,
			Size:             p.size,
		})
	}

	// Все части прочитаны и проверены — фиксируем файлы.
	for i, p := range pending {
		if err := in.store.commit(p); err != nil {
			for _, done := range pending[:i] {
				_ = in.store.Discard(done.storagePath)
			}
			pending = pending[i+1:]
			return reject(systemError("ошибка сохранения файла", err))
		}
	}

	if len(staged) > 0 {
		in.logger.Debug("Файлы приняты",
			slog.String("batch_id", batchID),
			slog.Int("count", len(staged)),
		)
	}
	return staged, nil
}

// Discard удаляет принятые файлы с диска (например, после отказа ingestion).
func (in *Intake) Discard(files []model.StagedFile, batchID string) {
	for _, f := range files {
		if err := in.store.Discard(f.StoragePath); err != nil {
			in.logger.Warn("Не удалось удалить файл",
				slog.String("path", f.StoragePath),
				slog.String("error", err.Error()),
			)
		}
	}
	in.store.DiscardBatchDir(batchID)
}

// readError классифицирует ошибку чтения тела запроса.
func (in *Intake) readError(err error) *Error {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return newError(KindFileTooLarge, "тело запроса превышает %d байт", maxBytes.Limit)
	}
	return systemError("ошибка приёма файлов", err)
}
