package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"io/fs"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/bigkaa/objektpro/internal/api/middleware"
	"github.com/bigkaa/objektpro/internal/domain/model"
	"github.com/bigkaa/objektpro/internal/intake"
	"github.com/bigkaa/objektpro/internal/repository/repotest"
	"github.com/bigkaa/objektpro/internal/service"
	"github.com/bigkaa/objektpro/internal/token"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

const testPassword = "geheim123"

// apiFixture — APIHandler поверх репозиториев в памяти и временного каталога загрузок.
type apiFixture struct {
	store      *repotest.Store
	progress   *service.ProgressRegistry
	issuer     *token.Issuer
	router     chi.Router
	uploadRoot string

	admin    *model.User
	member   *model.User
	facility *model.Facility
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAPIFixture(t *testing.T, policy intake.Policy) *apiFixture {
	t.Helper()
	logger := testLogger()
	store := repotest.New()

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	admin := store.AddUser(model.User{
		Email: "admin@example.com", PasswordHash: string(hash), Name: "Admin", Role: model.RoleAdmin, Active: true,
	})
	member := store.AddUser(model.User{
		Email: "member@example.com", PasswordHash: string(hash), Name: "Member", Role: model.RoleMember, Active: true,
	})
	facility := store.AddFacility(model.Facility{
		Name: "Halle Süd", Address: "Industriestraße 1", CreatedBy: admin.ID, Active: true,
	})

	uploadRoot := t.TempDir()
	fileStore, err := intake.NewStore(uploadRoot, true)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	in := intake.New(policy, fileStore, logger)

	issuer := token.NewIssuer(testSecret, "objektpro", time.Hour)
	progress := service.NewProgressRegistry(100, time.Hour)
	facilities := service.NewFacilityService(store.Facilities(), store.Files(), logger)

	api := NewAPIHandler(Deps{
		Health: NewHealthHandler(nil, nil, progress, UploadSystemInfo{
			UploadDir:      uploadRoot,
			BatchDirs:      true,
			MaxFiles:       policy.MaxFiles,
			MaxFileSize:    policy.MaxFileSize,
			SupportedTypes: policy.AllowedTypes,
			IngestWorkers:  1,
		}, "test"),
		Auth:       service.NewAuthService(store.Users(), issuer, logger),
		Facilities: facilities,
		Ingest:     service.NewIngestService(store, progress, in, 1, logger),
		Progress:   progress,
		Intake:     in,
	}, logger)

	guard := middleware.NewTokenGuard(token.NewVerifier(testSecret, "objektpro", 0), logger)

	r := chi.NewRouter()
	r.Post("/api/auth/login", api.Login)
	r.Group(func(r chi.Router) {
		r.Use(guard.Middleware())
		r.Get("/api/auth/me", api.Me)
		r.Post("/api/files/upload/{anlageId}", api.UploadFiles)
		r.Get("/api/files/{anlageId}", api.ListFiles)
		r.Get("/api/upload/progress/{batchId}", api.GetProgress)
		r.Get("/api/anlagen", api.ListFacilities)
		r.Get("/api/anlagen/{anlageId}/stats", api.FacilityStats)
		r.With(middleware.RequireAdmin()).Post("/api/anlagen", api.CreateFacility)
	})

	return &apiFixture{
		store:      store,
		progress:   progress,
		issuer:     issuer,
		router:     r,
		uploadRoot: uploadRoot,
		admin:      admin,
		member:     member,
		facility:   facility,
	}
}

// bearer выпускает токен для пользователя.
func (f *apiFixture) bearer(t *testing.T, u *model.User) string {
	t.Helper()
	tok, _, err := f.issuer.Issue(u.Identity())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return "Bearer " + tok
}

func (f *apiFixture) do(t *testing.T, req *http.Request, as *model.User) *httptest.ResponseRecorder {
	t.Helper()
	if as != nil {
		req.Header.Set("Authorization", f.bearer(t, as))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, path string, body any) *http.Request {
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// uploadPart — одна часть multipart-запроса.
type uploadPart struct {
	field    string
	filename string
	mimeType string
	content  string
}

func filePart(name, mimeType, content string) uploadPart {
	return uploadPart{field: "files", filename: name, mimeType: mimeType, content: content}
}

func uploadRequest(t *testing.T, path string, parts ...uploadPart) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, p := range parts {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="`+p.field+`"; filename="`+p.filename+`"`)
		h.Set("Content-Type", p.mimeType)
		w, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("CreatePart: %v", err)
		}
		_, _ = w.Write([]byte(p.content))
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("некорректный JSON: %v (%s)", err, rec.Body.String())
	}
	return v
}

type errorResponse struct {
	Success bool `json:"success"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	SupportedTypes []string `json:"supported_types"`
	MaxFileSize    int64    `json:"max_file_size"`
	MaxFiles       int      `json:"max_files"`
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) errorResponse {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("статус %d, ожидался %d (%s)", rec.Code, status, rec.Body.String())
	}
	resp := decode[errorResponse](t, rec)
	if resp.Success {
		t.Error("success = true в ответе с ошибкой")
	}
	if resp.Error.Code != code {
		t.Errorf("код %q, ожидался %q", resp.Error.Code, code)
	}
	return resp
}

// countUploaded — количество обычных файлов в каталоге загрузок.
func countUploaded(t *testing.T, root string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WalkDir: %v", err)
	}
	return n
}
