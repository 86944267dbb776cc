// Пакет model — доменные модели сервиса objektpro.
package model

import "time"

// Role — роль пользователя.
type Role string

const (
	// RoleAdmin — администратор (создание Anlagen, все операции).
	RoleAdmin Role = "admin"
	// RoleMember — сотрудник (загрузка и просмотр файлов).
	RoleMember Role = "member"
)

// Valid проверяет, что роль входит в допустимый набор.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

// User — учётная запись пользователя.
// Хранится в таблице users. Создаётся вне запроса (provisioning).
type User struct {
	// ID — идентификатор пользователя
	ID int64
	// Email — уникальный адрес электронной почты (логин)
	Email string
	// PasswordHash — bcrypt-хэш пароля, наружу не отдаётся
	PasswordHash string
	// Name — отображаемое имя
	Name string
	// Role — роль (admin, member)
	Role Role
	// Active — активна ли учётная запись
	Active bool
	// CreatedAt — время создания записи
	CreatedAt time.Time
}

// Identity возвращает публичное представление пользователя без хэша пароля.
func (u *User) Identity() Identity {
	return Identity{
		UserID: u.ID,
		Email:  u.Email,
		Name:   u.Name,
		Role:   u.Role,
	}
}

// Identity — аутентифицированный субъект запроса.
// Помещается в контекст запроса Access Guard'ом.
type Identity struct {
	UserID int64
	Email  string
	Name   string
	Role   Role
}

// IsAdmin сообщает, обладает ли субъект ролью admin.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
