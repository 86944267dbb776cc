// static.go — раздача собранного SPA для путей вне /api.
package handlers

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"

	apierrors "github.com/bigkaa/objektpro/internal/api/errors"
)

// SPAHandler отдаёт файлы из каталога сборки фронтенда.
// Неизвестные пути получают index.html (маршрутизация на клиенте);
// пути под /api/ всегда отвечают 404 JSON.
type SPAHandler struct {
	root fs.FS
}

// NewSPAHandler создаёт обработчик поверх каталога dir.
func NewSPAHandler(dir string) *SPAHandler {
	return &SPAHandler{root: os.DirFS(dir)}
}

// NewSPAHandlerFS создаёт обработчик поверх произвольной файловой системы.
func NewSPAHandlerFS(root fs.FS) *SPAHandler {
	return &SPAHandler{root: root}
}

func (h *SPAHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/") {
		NotFoundAPI(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name == "" {
		name = "index.html"
	}

	info, err := fs.Stat(h.root, name)
	if err != nil || info.IsDir() {
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		name = "index.html"
	}

	http.ServeFileFS(w, r, h.root, name)
}

// NotFoundAPI — 404 JSON для неизвестных маршрутов API.
func NotFoundAPI(w http.ResponseWriter, r *http.Request) {
	apierrors.NotFound(w, "Маршрут не найден: "+r.Method+" "+r.URL.Path)
}
