package intake

import (
	"mime"
	"slices"
	"strings"
)

// DefaultFieldName — имя поля multipart, в котором передаются файлы.
const DefaultFieldName = "files"

// DefaultMaxFiles — максимум файлов в одном запросе.
const DefaultMaxFiles = 100

// DefaultMaxFileSize — максимальный размер одного файла (100 MiB).
const DefaultMaxFileSize int64 = 100 * 1024 * 1024

// DefaultAllowedTypes — допустимые MIME-типы (изображения и видео).
var DefaultAllowedTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"image/bmp",
	"image/tiff",
	"video/mp4",
	"video/quicktime",
	"video/x-msvideo",
	"video/webm",
	"video/x-ms-wmv",
}

// Policy — правила приёма файлов.
type Policy struct {
	FieldName    string
	MaxFiles     int
	MaxFileSize  int64
	AllowedTypes []string
}

// DefaultPolicy возвращает политику по умолчанию.
func DefaultPolicy() Policy {
	return Policy{
		FieldName:    DefaultFieldName,
		MaxFiles:     DefaultMaxFiles,
		MaxFileSize:  DefaultMaxFileSize,
		AllowedTypes: slices.Clone(DefaultAllowedTypes),
	}
}

// Allows проверяет, входит ли MIME-тип в список допустимых.
// Параметры типа (charset и т.п.) и регистр игнорируются.
func (p Policy) Allows(mimeType string) bool {
	return slices.Contains(p.AllowedTypes, NormalizeType(mimeType))
}

// MaxRequestBytes — верхняя граница размера тела запроса:
// все файлы максимального размера плюс запас на заголовки частей.
func (p Policy) MaxRequestBytes() int64 {
	const perPartOverhead = 64 * 1024
	return int64(p.MaxFiles)*(p.MaxFileSize+perPartOverhead) + perPartOverhead
}

// NormalizeType приводит MIME-тип к виду "type/subtype" в нижнем регистре.
func NormalizeType(mimeType string) string {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(mimeType))
	}
	return mt
}
