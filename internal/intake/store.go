package intake

import (
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// maxBaseNameLen — предел длины очищенного имени файла.
const maxBaseNameLen = 50

// maxExtLen — предел длины расширения (без точки).
const maxExtLen = 10

// errTooLarge — файл превысил лимит размера.
var errTooLarge = errors.New("превышен лимит размера файла")

// Store — хранилище принятых файлов на диске.
// Запись двухфазная: write создаёт временный файл с fsync,
// commit атомарно переименовывает его в итоговое имя.
type Store struct {
	// root — корневая директория хранения загрузок
	root string
	// batchDirs — размещать файлы пакета в root/<batch_id>/
	batchDirs bool
	now       func() time.Time
	random    func() int
}

// pendingFile — записанный, но ещё не зафиксированный файл.
type pendingFile struct {
	tmpPath     string
	finalPath   string
	storagePath string
	filename    string
	size        int64
}

// NewStore создаёт Store. Проверяет и создаёт корневую директорию,
// если она не существует.
func NewStore(root string, batchDirs bool) (*Store, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию загрузок %s: %w", root, err)
	}
	return &Store{
		root:      root,
		batchDirs: batchDirs,
		now:       time.Now,
		random:    func() int { return rand.IntN(1_000_000_000) },
	}, nil
}

// Root возвращает корневую директорию хранения.
func (s *Store) Root() string {
	return s.root
}

// FullPath возвращает абсолютный путь файла по относительному.
func (s *Store) FullPath(storagePath string) string {
	return filepath.Join(s.root, filepath.FromSlash(storagePath))
}

// dir возвращает относительную директорию файлов пакета.
func (s *Store) dir(batchID string) string {
	if s.batchDirs && batchID != "" {
		return batchID
	}
	return ""
}

// write записывает данные из reader во временный файл.
// Не более limit байт: при превышении временный файл удаляется
// и возвращается errTooLarge.
func (s *Store) write(src io.Reader, originalName, batchID string, limit int64) (*pendingFile, error) {
	relDir := s.dir(batchID)
	absDir := filepath.Join(s.root, relDir)
	if err := os.MkdirAll(absDir, 0o750); err != nil {
		return nil, fmt.Errorf("ошибка создания директории пакета: %w", err)
	}

	var (
		f        *os.File
		filename string
		err      error
	)
	// Имя коллизионно-устойчиво; повтор на случай совпадения.
	for range 3 {
		filename = s.generateName(originalName)
		f, err = os.OpenFile(filepath.Join(absDir, filename+".tmp"), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
		if !errors.Is(err, os.ErrExist) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	p := &pendingFile{
		tmpPath:     f.Name(),
		finalPath:   filepath.Join(absDir, filename),
		storagePath: filepath.ToSlash(filepath.Join(relDir, filename)),
		filename:    filename,
	}

	size, err := io.Copy(f, io.LimitReader(src, limit+1))
	if err != nil {
		f.Close()
		os.Remove(p.tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}
	if size > limit {
		f.Close()
		os.Remove(p.tmpPath)
		return nil, errTooLarge
	}

	// fsync для гарантии записи на диск
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(p.tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(p.tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	p.size = size
	return p, nil
}

// commit атомарно переводит временный файл в итоговое имя.
func (s *Store) commit(p *pendingFile) error {
	if err := os.Rename(p.tmpPath, p.finalPath); err != nil {
		os.Remove(p.tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}
	return nil
}

// abort удаляет временный файл, если он ещё существует.
func (s *Store) abort(p *pendingFile) {
	os.Remove(p.tmpPath)
}

// Discard удаляет принятый файл с диска.
// Возвращает nil, если файл уже не существует.
func (s *Store) Discard(storagePath string) error {
	err := os.Remove(s.FullPath(storagePath))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления файла %s: %w", storagePath, err)
	}
	return nil
}

// DiscardBatchDir удаляет директорию пакета, если она пуста.
func (s *Store) DiscardBatchDir(batchID string) {
	if rel := s.dir(batchID); rel != "" {
		os.Remove(filepath.Join(s.root, rel))
	}
}

// generateName генерирует имя файла для хранения на диске.
// Формат: {unix_ms}_{random 9 цифр}_{имя ≤50}{.ext}
// Пример: 1700000000000_042137551_Foto_Halle_1.jpg
func (s *Store) generateName(originalName string) string {
	ext := sanitizeExt(filepath.Ext(originalName))
	base := sanitizeBase(strings.TrimSuffix(filepath.Base(originalName), filepath.Ext(originalName)))
	return fmt.Sprintf("%d_%09d_%s%s", s.now().UnixMilli(), s.random(), base, ext)
}

// sanitizeBase заменяет всё, кроме латинских букв и цифр, на "_"
// и обрезает результат до maxBaseNameLen символов.
func sanitizeBase(name string) string {
	var b strings.Builder
	for _, r := range name {
		if isASCIIAlnum(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
		if b.Len() == maxBaseNameLen {
			break
		}
	}
	if b.Len() == 0 {
		return "file"
	}
	return b.String()
}

// sanitizeExt оставляет в расширении только латинские буквы и цифры.
func sanitizeExt(ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	var b strings.Builder
	for _, r := range ext {
		if isASCIIAlnum(r) && b.Len() < maxExtLen {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "." + b.String()
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
