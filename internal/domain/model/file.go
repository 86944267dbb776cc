package model

import (
	"strings"
	"time"
)

// File — метаданные одного загруженного файла.
// Хранится в таблице files, создаётся ровно один раз на успешно принятый файл
// и после создания не изменяется.
type File struct {
	// ID — идентификатор записи
	ID int64
	// FacilityID — объект, к которому относится файл
	FacilityID int64
	// Filename — сгенерированное имя файла в хранилище
	Filename string
	// OriginalFilename — имя файла у клиента
	OriginalFilename string
	// MimeType — заявленный MIME-тип
	MimeType string
	// Size — размер в байтах
	Size int64
	// RemoteStorageID — идентификатор во внешнем хранилище (заглушка до интеграции)
	RemoteStorageID string
	// BatchID — пакет загрузки
	BatchID string
	// UploadedBy — ID загрузившего пользователя
	UploadedBy int64
	// CreatedAt — время создания записи
	CreatedAt time.Time
}

// StagedFile — файл, принятый intake и записанный на диск,
// но ещё не зарегистрированный в БД.
type StagedFile struct {
	// StoragePath — путь относительно корня хранилища загрузок
	StoragePath string
	// Filename — сгенерированное имя файла
	Filename string
	// OriginalFilename — имя файла у клиента
	OriginalFilename string
	// MimeType — заявленный MIME-тип части multipart
	MimeType string
	// Size — количество записанных байт
	Size int64
}

// MediaCategory возвращает верхнеуровневую категорию MIME-типа:
// "image/png" → "image". Для пустой строки возвращает "".
func MediaCategory(mimeType string) string {
	category, _, _ := strings.Cut(mimeType, "/")
	return category
}
