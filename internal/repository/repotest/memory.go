// Пакет repotest — репозитории в памяти для unit-тестов сервисов
// и обработчиков. Повторяет контракт PostgreSQL-реализаций:
// те же sentinel-ошибки и тот же порядок выдачи.
package repotest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bigkaa/objektpro/internal/domain/model"
	"github.com/bigkaa/objektpro/internal/repository"
)

// Store — хранилище в памяти. Безопасно для конкурентного использования.
type Store struct {
	mu sync.Mutex

	users      map[int64]*model.User
	facilities map[int64]*model.Facility
	files      []*model.File
	batches    map[string]*model.UploadBatch

	nextID int64
	clock  time.Time

	openSessions int
	maxSessions  int
	// slots ограничивает число одновременных сессий (см. LimitSessions).
	slots chan struct{}

	// InsertFileErr, если задан, вызывается перед вставкой файла;
	// ненулевая ошибка прерывает вставку.
	InsertFileErr func(f *model.File) error
	// CreateBatchErr возвращается из Batches().Create, если задан.
	CreateBatchErr error
	// CompleteBatchErr возвращается из Batches().Complete, если задан.
	CompleteBatchErr error
	// AcquireErr возвращается из Acquire, если задан.
	AcquireErr error
}

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{
		users:      map[int64]*model.User{},
		facilities: map[int64]*model.Facility{},
		batches:    map[string]*model.UploadBatch{},
		clock:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// tick возвращает строго возрастающее время создания записи.
func (s *Store) tick() time.Time {
	s.clock = s.clock.Add(time.Millisecond)
	return s.clock
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// AddUser добавляет пользователя и возвращает его с заполненным ID.
func (s *Store) AddUser(u model.User) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID = s.id()
	u.CreatedAt = s.tick()
	s.users[u.ID] = &u
	cp := u
	return &cp
}

// AddFacility добавляет объект и возвращает его с заполненным ID.
func (s *Store) AddFacility(f model.Facility) *model.Facility {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.ID = s.id()
	f.CreatedAt = s.tick()
	s.facilities[f.ID] = &f
	cp := f
	return &cp
}

// FilesOf возвращает копии всех записей файлов объекта в порядке вставки.
func (s *Store) FilesOf(facilityID int64) []model.File {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.File
	for _, f := range s.files {
		if f.FacilityID == facilityID {
			out = append(out, *f)
		}
	}
	return out
}

// Batch возвращает копию пакета или false.
func (s *Store) Batch(id string) (model.UploadBatch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok {
		return model.UploadBatch{}, false
	}
	return *b, true
}

// OpenSessions — количество незакрытых сессий Acquire.
func (s *Store) OpenSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openSessions
}

// MaxSessions — максимальное число одновременно открытых сессий.
func (s *Store) MaxSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxSessions
}

// Users возвращает UserRepository поверх хранилища.
func (s *Store) Users() repository.UserRepository { return userRepo{s} }

// Facilities возвращает FacilityRepository поверх хранилища.
func (s *Store) Facilities() repository.FacilityRepository { return facilityRepo{s} }

// Files возвращает FileRepository поверх хранилища.
func (s *Store) Files() repository.FileRepository { return fileRepo{s} }

// Batches возвращает UploadBatchRepository поверх хранилища.
func (s *Store) Batches() repository.UploadBatchRepository { return batchRepo{s} }

// LimitSessions ограничивает число одновременно открытых сессий.
// Как и pgxpool, Acquire при исчерпании ждёт освобождения сессии
// или отмены контекста. Вызывается до первого Acquire.
func (s *Store) LimitSessions(n int) {
	s.slots = make(chan struct{}, n)
}

// Acquire реализует repository.IngestStore.
func (s *Store) Acquire(ctx context.Context) (repository.IngestSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	acquireErr := s.AcquireErr
	s.mu.Unlock()
	if acquireErr != nil {
		return nil, acquireErr
	}

	if s.slots != nil {
		select {
		case s.slots <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.openSessions++
	if s.openSessions > s.maxSessions {
		s.maxSessions = s.openSessions
	}
	return &session{s: s}, nil
}

type session struct {
	s        *Store
	released sync.Once
}

func (ss *session) Batches() repository.UploadBatchRepository { return batchRepo{ss.s} }
func (ss *session) Files() repository.FileRepository          { return fileRepo{ss.s} }

func (ss *session) Release() {
	ss.released.Do(func() {
		ss.s.mu.Lock()
		ss.s.openSessions--
		ss.s.mu.Unlock()
		if ss.s.slots != nil {
			<-ss.s.slots
		}
	})
}

// --- users ---

type userRepo struct{ s *Store }

func (r userRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r userRepo) GetByID(_ context.Context, id int64) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r userRepo) Upsert(_ context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if existing.Email == u.Email {
			existing.PasswordHash = u.PasswordHash
			existing.Name = u.Name
			existing.Role = u.Role
			existing.Active = u.Active
			u.ID = existing.ID
			u.CreatedAt = existing.CreatedAt
			return nil
		}
	}
	u.ID = r.s.id()
	u.CreatedAt = r.s.tick()
	cp := *u
	r.s.users[u.ID] = &cp
	return nil
}

// --- facilities ---

type facilityRepo struct{ s *Store }

func (r facilityRepo) Create(_ context.Context, f *model.Facility) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[f.CreatedBy]; !ok {
		return fmt.Errorf("%w: пользователь %d", repository.ErrNotFound, f.CreatedBy)
	}
	f.ID = r.s.id()
	f.Active = true
	f.CreatedAt = r.s.tick()
	cp := *f
	r.s.facilities[f.ID] = &cp
	return nil
}

func (r facilityRepo) GetByID(_ context.Context, id int64) (*model.Facility, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.facilities[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (r facilityRepo) List(_ context.Context) ([]*model.Facility, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Facility
	for _, f := range r.s.facilities {
		if f.Active {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r facilityRepo) Stats(_ context.Context, id int64) (*model.FacilityStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stats := &model.FacilityStats{FacilityID: id, ByCategory: map[string]int{}}
	for _, f := range r.s.files {
		if f.FacilityID != id {
			continue
		}
		stats.TotalFiles++
		stats.TotalSize += f.Size
		stats.ByCategory[model.MediaCategory(f.MimeType)]++
	}
	return stats, nil
}

// --- files ---

type fileRepo struct{ s *Store }

func (r fileRepo) Insert(_ context.Context, f *model.File) error {
	r.s.mu.Lock()
	hook := r.s.InsertFileErr
	r.s.mu.Unlock()
	if hook != nil {
		if err := hook(f); err != nil {
			return err
		}
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.facilities[f.FacilityID]; !ok {
		return fmt.Errorf("%w: объект %d", repository.ErrNotFound, f.FacilityID)
	}
	f.ID = r.s.id()
	f.CreatedAt = r.s.tick()
	cp := *f
	r.s.files = append(r.s.files, &cp)
	return nil
}

func (r fileRepo) ListByFacility(_ context.Context, facilityID int64) ([]*model.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.File
	for _, f := range r.s.files {
		if f.FacilityID == facilityID {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// --- batches ---

type batchRepo struct{ s *Store }

func (r batchRepo) Create(_ context.Context, b *model.UploadBatch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.CreateBatchErr != nil {
		return r.s.CreateBatchErr
	}
	if _, ok := r.s.batches[b.ID]; ok {
		return fmt.Errorf("%w: пакет %s", repository.ErrConflict, b.ID)
	}
	if _, ok := r.s.facilities[b.FacilityID]; !ok {
		return fmt.Errorf("%w: объект %d", repository.ErrNotFound, b.FacilityID)
	}
	if b.Status == "" {
		b.Status = model.BatchProcessing
	}
	b.StartedAt = r.s.tick()
	cp := *b
	r.s.batches[b.ID] = &cp
	return nil
}

func (r batchRepo) Complete(_ context.Context, b *model.UploadBatch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.CompleteBatchErr != nil {
		return r.s.CompleteBatchErr
	}
	stored, ok := r.s.batches[b.ID]
	if !ok {
		return repository.ErrNotFound
	}
	now := r.s.tick()
	stored.ProcessedFiles = b.ProcessedFiles
	stored.SuccessfulFiles = b.SuccessfulFiles
	stored.FailedFiles = b.FailedFiles
	stored.Status = model.BatchCompleted
	stored.CompletedAt = &now
	b.Status = model.BatchCompleted
	b.CompletedAt = &now
	return nil
}

func (r batchRepo) GetByID(_ context.Context, id string) (*model.UploadBatch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.batches[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *b
	return &cp, nil
}
