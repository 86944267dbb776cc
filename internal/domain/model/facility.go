package model

import "time"

// Facility — объект (Anlage), к которому привязываются загруженные файлы.
// Хранится в таблице anlagen.
type Facility struct {
	// ID — идентификатор объекта
	ID int64
	// Name — название
	Name string
	// Address — адрес
	Address string
	// Description — описание (опционально)
	Description *string
	// RemoteFolderID — ссылка на папку во внешнем хранилище (опционально)
	RemoteFolderID *string
	// CreatedBy — ID пользователя, создавшего объект
	CreatedBy int64
	// Active — активен ли объект
	Active bool
	// CreatedAt — время создания
	CreatedAt time.Time
}

// FacilityStats — агрегированная статистика файлов объекта.
type FacilityStats struct {
	FacilityID int64
	TotalFiles int
	TotalSize  int64
	// ByCategory — количество файлов по верхнеуровневой категории MIME (image, video).
	ByCategory map[string]int
}
