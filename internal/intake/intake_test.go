package intake

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// testPart — одна часть multipart-запроса.
type testPart struct {
	field    string
	filename string
	mimeType string
	content  string
}

// newUploadRequest собирает multipart-запрос из частей.
func newUploadRequest(t *testing.T, parts []testPart) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, p := range parts {
		h := textproto.MIMEHeader{}
		if p.filename != "" {
			h.Set("Content-Disposition",
				`form-data; name="`+p.field+`"; filename="`+p.filename+`"`)
			h.Set("Content-Type", p.mimeType)
		} else {
			h.Set("Content-Disposition", `form-data; name="`+p.field+`"`)
		}
		w, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("CreatePart: %v", err)
		}
		if _, err := w.Write([]byte(p.content)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/files/upload/1", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// newTestIntake создаёт Intake во временной директории.
func newTestIntake(t *testing.T, policy Policy, batchDirs bool) (*Intake, string) {
	t.Helper()
	root := t.TempDir()
	store, err := NewStore(root, batchDirs)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return New(policy, store, slog.Default()), root
}

// countFiles возвращает количество обычных файлов в дереве root.
func countFiles(t *testing.T, root string) int {
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

func TestAccept_ValidFiles(t *testing.T) {
	in, root := newTestIntake(t, DefaultPolicy(), true)

	req := newUploadRequest(t, []testPart{
		{field: "files", filename: "Foto Halle 1.jpg", mimeType: "image/jpeg", content: "jpeg-data"},
		{field: "note", content: "Kommentar"},
		{field: "files", filename: "clip.mp4", mimeType: "video/mp4", content: "mp4-data-longer"},
		{field: "files", filename: "plan.PNG", mimeType: "image/png; charset=binary", content: "png"},
	})

	staged, err := in.Accept(req, "batch-1")
	if err != nil {
		t.Fatalf("Accept() ошибка: %v", err)
	}
	if len(staged) != 3 {
		t.Fatalf("принято %d файлов, ожидалось 3", len(staged))
	}

	want := []struct {
		original string
		mime     string
		size     int64
	}{
		{"Foto Halle 1.jpg", "image/jpeg", 9},
		{"clip.mp4", "video/mp4", 15},
		{"plan.PNG", "image/png", 3},
	}
	for i, w := range want {
		f := staged[i]
		if f.OriginalFilename != w.original {
			t.Errorf("[%d] OriginalFilename = %q, ожидался %q", i, f.OriginalFilename, w.original)
		}
		if f.MimeType != w.mime {
			t.Errorf("[%d] MimeType = %q, ожидался %q", i, f.MimeType, w.mime)
		}
		if f.Size != w.size {
			t.Errorf("[%d] Size = %d, ожидался %d", i, f.Size, w.size)
		}
		if !strings.HasPrefix(f.StoragePath, "batch-1/") {
			t.Errorf("[%d] StoragePath = %q, ожидалась директория пакета", i, f.StoragePath)
		}
		info, err := os.Stat(in.Store().FullPath(f.StoragePath))
		if err != nil {
			t.Errorf("[%d] файл не записан: %v", i, err)
			continue
		}
		if info.Size() != w.size {
			t.Errorf("[%d] размер на диске = %d, ожидался %d", i, info.Size(), w.size)
		}
	}

	if !strings.HasSuffix(staged[0].Filename, "_Foto_Halle_1.jpg") {
		t.Errorf("Filename = %q, ожидался суффикс _Foto_Halle_1.jpg", staged[0].Filename)
	}
	if n := countFiles(t, root); n != 3 {
		t.Errorf("на диске %d файлов, ожидалось 3 (без временных)", n)
	}
}

func TestAccept_FlatLayout(t *testing.T) {
	in, root := newTestIntake(t, DefaultPolicy(), false)

	req := newUploadRequest(t, []testPart{
		{field: "files", filename: "a.gif", mimeType: "image/gif", content: "gif"},
	})
	staged, err := in.Accept(req, "batch-flat")
	if err != nil {
		t.Fatalf("Accept() ошибка: %v", err)
	}
	if strings.Contains(staged[0].StoragePath, "/") {
		t.Errorf("StoragePath = %q, ожидался плоский путь", staged[0].StoragePath)
	}
	if _, err := os.Stat(filepath.Join(root, "batch-flat")); !os.IsNotExist(err) {
		t.Error("директория пакета не должна создаваться в плоском режиме")
	}
}

func TestAccept_NoFiles(t *testing.T) {
	in, _ := newTestIntake(t, DefaultPolicy(), true)

	req := newUploadRequest(t, []testPart{{field: "note", content: "nur Text"}})
	staged, err := in.Accept(req, "batch-empty")
	if err != nil {
		t.Fatalf("Accept() ошибка: %v", err)
	}
	if staged == nil || len(staged) != 0 {
		t.Errorf("staged = %v, ожидался пустой срез (не nil)", staged)
	}
}

func TestAccept_Rejections(t *testing.T) {
	small := DefaultPolicy()
	small.MaxFiles = 2
	small.MaxFileSize = 10

	tests := []struct {
		name  string
		parts []testPart
		want  Kind
	}{
		{
			name: "слишком много файлов",
			parts: []testPart{
				{field: "files", filename: "1.jpg", mimeType: "image/jpeg", content: "1"},
				{field: "files", filename: "2.jpg", mimeType: "image/jpeg", content: "2"},
				{field: "files", filename: "3.jpg", mimeType: "image/jpeg", content: "3"},
			},
			want: KindTooManyFiles,
		},
		{
			name: "недопустимый тип",
			parts: []testPart{
				{field: "files", filename: "ok.png", mimeType: "image/png", content: "ok"},
				{field: "files", filename: "doc.pdf", mimeType: "application/pdf", content: "pdf"},
			},
			want: KindUnsupportedType,
		},
		{
			name: "слишком большой файл",
			parts: []testPart{
				{field: "files", filename: "ok.png", mimeType: "image/png", content: "ok"},
				{field: "files", filename: "big.png", mimeType: "image/png", content: "01234567890"},
			},
			want: KindFileTooLarge,
		},
		{
			name: "неожиданное поле",
			parts: []testPart{
				{field: "upload", filename: "a.png", mimeType: "image/png", content: "a"},
			},
			want: KindUnexpectedField,
		},
		{
			name: "тип без заголовка",
			parts: []testPart{
				{field: "files", filename: "a.png", mimeType: "", content: "a"},
			},
			want: KindUnsupportedType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, root := newTestIntake(t, small, true)

			staged, err := in.Accept(newUploadRequest(t, tt.parts), "batch-x")
			if err == nil {
				t.Fatalf("Accept() вернул %d файлов, ожидалась ошибка %s", len(staged), tt.want)
			}
			ie, ok := AsError(err)
			if !ok {
				t.Fatalf("ошибка %T не является *intake.Error", err)
			}
			if ie.Kind != tt.want {
				t.Errorf("Kind = %s, ожидался %s", ie.Kind, tt.want)
			}
			if n := countFiles(t, root); n != 0 {
				t.Errorf("после отказа на диске осталось %d файлов", n)
			}
			if _, err := os.Stat(filepath.Join(root, "batch-x")); !os.IsNotExist(err) {
				t.Error("директория пакета должна быть удалена после отказа")
			}
		})
	}
}

func TestAccept_DefaultFileLimit(t *testing.T) {
	parts := func(n int) []testPart {
		out := make([]testPart, n)
		for i := range out {
			out[i] = testPart{field: "files", filename: fmt.Sprintf("%03d.jpg", i), mimeType: "image/jpeg", content: "x"}
		}
		return out
	}

	in, root := newTestIntake(t, DefaultPolicy(), true)
	staged, err := in.Accept(newUploadRequest(t, parts(DefaultMaxFiles)), "batch-max")
	if err != nil {
		t.Fatalf("Accept() %d файлов: %v", DefaultMaxFiles, err)
	}
	if len(staged) != 100 {
		t.Errorf("принято %d файлов, ожидалось 100", len(staged))
	}
	if n := countFiles(t, root); n != 100 {
		t.Errorf("на диске %d файлов, ожидалось 100", n)
	}

	in, root = newTestIntake(t, DefaultPolicy(), true)
	_, err = in.Accept(newUploadRequest(t, parts(DefaultMaxFiles+1)), "batch-over")
	if ie, ok := AsError(err); !ok || ie.Kind != KindTooManyFiles {
		t.Fatalf("ожидалась ошибка %s, получена %v", KindTooManyFiles, err)
	}
	if n := countFiles(t, root); n != 0 {
		t.Errorf("после отказа на диске осталось %d файлов", n)
	}
}

func TestAccept_ExactSizeLimit(t *testing.T) {
	policy := DefaultPolicy()
	policy.MaxFileSize = 10
	in, _ := newTestIntake(t, policy, true)

	req := newUploadRequest(t, []testPart{
		{field: "files", filename: "edge.webp", mimeType: "image/webp", content: "0123456789"},
	})
	staged, err := in.Accept(req, "batch-edge")
	if err != nil {
		t.Fatalf("файл ровно на лимите должен приниматься: %v", err)
	}
	if staged[0].Size != 10 {
		t.Errorf("Size = %d, ожидался 10", staged[0].Size)
	}
}

func TestAccept_NotMultipart(t *testing.T) {
	in, _ := newTestIntake(t, DefaultPolicy(), true)

	req := httptest.NewRequest(http.MethodPost, "/api/files/upload/1", strings.NewReader(`{"files":[]}`))
	req.Header.Set("Content-Type", "application/json")

	_, err := in.Accept(req, "batch-json")
	ie, ok := AsError(err)
	if !ok || ie.Kind != KindBadRequest {
		t.Errorf("Accept() = %v, ожидался %s", err, KindBadRequest)
	}
}

func TestReadError(t *testing.T) {
	in, _ := newTestIntake(t, DefaultPolicy(), true)

	if e := in.readError(fmt.Errorf("чтение: %w", &http.MaxBytesError{Limit: 5})); e.Kind != KindFileTooLarge {
		t.Errorf("MaxBytesError → %s, ожидался %s", e.Kind, KindFileTooLarge)
	}
	if e := in.readError(errors.New("диск недоступен")); e.Kind != KindSystem {
		t.Errorf("прочая ошибка → %s, ожидался %s", e.Kind, KindSystem)
	}
}

func TestDiscard(t *testing.T) {
	in, root := newTestIntake(t, DefaultPolicy(), true)

	req := newUploadRequest(t, []testPart{
		{field: "files", filename: "a.bmp", mimeType: "image/bmp", content: "a"},
		{field: "files", filename: "b.tiff", mimeType: "image/tiff", content: "b"},
	})
	staged, err := in.Accept(req, "batch-d")
	if err != nil {
		t.Fatalf("Accept() ошибка: %v", err)
	}

	in.Discard(staged, "batch-d")

	if n := countFiles(t, root); n != 0 {
		t.Errorf("после Discard на диске осталось %d файлов", n)
	}
	if _, err := os.Stat(filepath.Join(root, "batch-d")); !os.IsNotExist(err) {
		t.Error("пустая директория пакета должна быть удалена")
	}
}

func TestPolicy_Allows(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		mime string
		want bool
	}{
		{"image/jpeg", true},
		{"IMAGE/PNG", true},
		{"video/quicktime", true},
		{"video/x-ms-wmv", true},
		{"image/png; name=x", true},
		{"image/jpg", false},
		{"video/mov", false},
		{"application/pdf", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			if got := p.Allows(tt.mime); got != tt.want {
				t.Errorf("Allows(%q) = %v, ожидалось %v", tt.mime, got, tt.want)
			}
		})
	}
}
