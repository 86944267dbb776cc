package repository

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/objektpro/internal/config"
	"github.com/bigkaa/objektpro/internal/database"
	"github.com/bigkaa/objektpro/internal/domain/model"
)

// setupTestDB запускает PostgreSQL контейнер, применяет миграции.
// Возвращает pgxpool.Pool и функцию очистки.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("objektpro_test"),
		postgres.WithUsername("objektpro"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	// Настраиваем env для config.Load()
	t.Setenv("OP_DB_HOST", host)
	t.Setenv("OP_DB_PORT", port.Port())
	t.Setenv("OP_DB_NAME", "objektpro_test")
	t.Setenv("OP_DB_USER", "objektpro")
	t.Setenv("OP_DB_PASSWORD", "test-password")
	t.Setenv("OP_DB_SSL_MODE", "disable")
	t.Setenv("OP_JWT_SECRET", "integration-secret-0123456789abcdef")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// Применяем миграции
	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	// Подключаемся
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

// seedUserAndFacility создаёт пользователя и объект для тестов файлов.
func seedUserAndFacility(t *testing.T, pool *pgxpool.Pool) (*model.User, *model.Facility) {
	t.Helper()
	ctx := context.Background()

	u := &model.User{
		Email:        "admin@example.com",
		PasswordHash: "$2a$10$hash",
		Name:         "Admin",
		Role:         model.RoleAdmin,
		Active:       true,
	}
	if err := NewUserRepository(pool).Upsert(ctx, u); err != nil {
		t.Fatalf("Upsert() ошибка: %v", err)
	}

	f := &model.Facility{Name: "Halle 1", Address: "Musterstraße 1", CreatedBy: u.ID}
	if err := NewFacilityRepository(pool).Create(ctx, f); err != nil {
		t.Fatalf("Create() объекта ошибка: %v", err)
	}
	return u, f
}

// --- Тесты UserRepository ---

func TestUserRepository(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewUserRepository(pool)

	u := &model.User{
		Email:        "Worker@Example.com",
		PasswordHash: "$2a$10$first",
		Name:         "Worker",
		Role:         model.RoleMember,
		Active:       true,
	}
	if err := repo.Upsert(ctx, u); err != nil {
		t.Fatalf("Upsert() ошибка: %v", err)
	}
	if u.ID == 0 {
		t.Fatal("ID не установлен")
	}

	// Поиск по точному совпадению email
	got, err := repo.GetByEmail(ctx, "Worker@Example.com")
	if err != nil {
		t.Fatalf("GetByEmail() ошибка: %v", err)
	}
	if got.ID != u.ID || got.Role != model.RoleMember {
		t.Errorf("GetByEmail() = %+v, хотели ID=%d role=member", got, u.ID)
	}
	if _, err := repo.GetByEmail(ctx, "worker@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByEmail() в другом регистре = %v, хотели ErrNotFound", err)
	}

	// Повторный Upsert обновляет запись, ID не меняется
	u2 := &model.User{
		Email:        "Worker@Example.com",
		PasswordHash: "$2a$10$second",
		Name:         "Worker 2",
		Role:         model.RoleAdmin,
		Active:       true,
	}
	if err := repo.Upsert(ctx, u2); err != nil {
		t.Fatalf("повторный Upsert() ошибка: %v", err)
	}
	if u2.ID != u.ID {
		t.Errorf("ID после Upsert = %d, хотели %d", u2.ID, u.ID)
	}

	byID, err := repo.GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if byID.PasswordHash != "$2a$10$second" || byID.Role != model.RoleAdmin {
		t.Errorf("GetByID() = %+v, ожидались обновлённые поля", byID)
	}

	if _, err := repo.GetByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByEmail() несуществующего = %v, хотели ErrNotFound", err)
	}
}

// --- Тесты FacilityRepository ---

func TestFacilityRepository(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	u, halle := seedUserAndFacility(t, pool)
	repo := NewFacilityRepository(pool)

	desc := "Lager"
	a := &model.Facility{Name: "Atelier", Address: "Weg 2", Description: &desc, CreatedBy: u.ID}
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if !a.Active || a.CreatedAt.IsZero() {
		t.Errorf("Create() не заполнил Active/CreatedAt: %+v", a)
	}

	got, err := repo.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.Description == nil || *got.Description != "Lager" {
		t.Errorf("Description = %v, хотели Lager", got.Description)
	}
	if got.RemoteFolderID != nil {
		t.Errorf("RemoteFolderID = %v, хотели nil", *got.RemoteFolderID)
	}

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(list) != 2 || list[0].ID != a.ID || list[1].ID != halle.ID {
		t.Errorf("List() вернул %d записей, ожидался порядок по имени", len(list))
	}

	if _, err := repo.GetByID(ctx, 999999); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() несуществующего = %v, хотели ErrNotFound", err)
	}

	// Несуществующий автор — нарушение внешнего ключа
	bad := &model.Facility{Name: "X", Address: "Y", CreatedBy: 999999}
	if err := repo.Create(ctx, bad); !errors.Is(err, ErrNotFound) {
		t.Errorf("Create() с несуществующим автором = %v, хотели ErrNotFound", err)
	}
}

// --- Тесты FileRepository и статистики ---

func TestFileRepository(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	u, f := seedUserAndFacility(t, pool)
	repo := NewFileRepository(pool)

	inputs := []struct {
		name string
		mime string
		size int64
	}{
		{"a.jpg", "image/jpeg", 100},
		{"b.png", "image/png", 200},
		{"c.mp4", "video/mp4", 1000},
	}
	var ids []int64
	for _, in := range inputs {
		rec := &model.File{
			FacilityID:       f.ID,
			Filename:         "1700000000000_123456789_" + in.name,
			OriginalFilename: in.name,
			MimeType:         in.mime,
			Size:             in.size,
			RemoteStorageID:  "pending-" + uuid.NewString(),
			BatchID:          "batch-1",
			UploadedBy:       u.ID,
		}
		if err := repo.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert(%s) ошибка: %v", in.name, err)
		}
		ids = append(ids, rec.ID)
	}

	list, err := repo.ListByFacility(ctx, f.ID)
	if err != nil {
		t.Fatalf("ListByFacility() ошибка: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("ListByFacility() вернул %d записей, хотели 3", len(list))
	}
	// Новые первыми
	if list[0].ID != ids[2] || list[2].ID != ids[0] {
		t.Errorf("порядок ListByFacility() = [%d %d %d], хотели обратный порядку вставки",
			list[0].ID, list[1].ID, list[2].ID)
	}

	empty, err := repo.ListByFacility(ctx, 999999)
	if err != nil {
		t.Fatalf("ListByFacility() пустого объекта ошибка: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("ListByFacility() пустого объекта вернул %d записей", len(empty))
	}

	stats, err := NewFacilityRepository(pool).Stats(ctx, f.ID)
	if err != nil {
		t.Fatalf("Stats() ошибка: %v", err)
	}
	if stats.TotalFiles != 3 || stats.TotalSize != 1300 {
		t.Errorf("Stats() = %d файлов / %d байт, хотели 3 / 1300", stats.TotalFiles, stats.TotalSize)
	}
	if stats.ByCategory["image"] != 2 || stats.ByCategory["video"] != 1 {
		t.Errorf("ByCategory = %v", stats.ByCategory)
	}

	// Файл к несуществующему объекту
	orphan := &model.File{
		FacilityID: 999999, Filename: "x", OriginalFilename: "x", MimeType: "image/png",
		RemoteStorageID: "pending-x", UploadedBy: u.ID,
	}
	if err := repo.Insert(ctx, orphan); !errors.Is(err, ErrNotFound) {
		t.Errorf("Insert() к несуществующему объекту = %v, хотели ErrNotFound", err)
	}
}

// --- Тесты UploadBatchRepository через IngestStore ---

func TestIngestSession_BatchLifecycle(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	u, f := seedUserAndFacility(t, pool)

	session, err := NewIngestStore(pool).Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() ошибка: %v", err)
	}
	defer session.Release()

	b := &model.UploadBatch{ID: "batch-" + uuid.NewString(), FacilityID: f.ID, UserID: u.ID, TotalFiles: 2}
	if err := session.Batches().Create(ctx, b); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if b.Status != model.BatchProcessing || b.StartedAt.IsZero() {
		t.Errorf("после Create() статус = %q, started_at = %v", b.Status, b.StartedAt)
	}

	// Повтор идентификатора — конфликт
	dup := &model.UploadBatch{ID: b.ID, FacilityID: f.ID, UserID: u.ID, TotalFiles: 1}
	if err := session.Batches().Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Errorf("Create() дубликата = %v, хотели ErrConflict", err)
	}

	rec := &model.File{
		FacilityID: f.ID, Filename: "f.pdf", OriginalFilename: "f.pdf", MimeType: "application/pdf",
		Size: 10, RemoteStorageID: "pending-1", BatchID: b.ID, UploadedBy: u.ID,
	}
	if err := session.Files().Insert(ctx, rec); err != nil {
		t.Fatalf("Insert() ошибка: %v", err)
	}

	b.ProcessedFiles, b.SuccessfulFiles, b.FailedFiles = 2, 1, 1
	if err := session.Batches().Complete(ctx, b); err != nil {
		t.Fatalf("Complete() ошибка: %v", err)
	}
	if b.CompletedAt == nil {
		t.Fatal("CompletedAt не установлен")
	}

	got, err := session.Batches().GetByID(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.Status != model.BatchCompleted || got.SuccessfulFiles != 1 || got.FailedFiles != 1 {
		t.Errorf("GetByID() = %+v", got)
	}

	missing := &model.UploadBatch{ID: "batch-missing"}
	if err := session.Batches().Complete(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("Complete() несуществующего = %v, хотели ErrNotFound", err)
	}
}
