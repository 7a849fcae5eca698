package asset

import (
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const (
	immutableCache = "public, max-age=31536000, immutable"
	revalidate     = "no-cache"
)

// Handler serves the built web client from a directory on disk.
type Handler struct {
	dir    string
	logger *slog.Logger
}

// NewHandler creates a handler rooted at dir. A missing directory is logged
// and every request then answers 404.
func NewHandler(dir string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "asset")
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		logger.Warn("web root not found, static files disabled", "dir", dir)
	}
	return &Handler{dir: dir, logger: logger}
}

// Serve returns the static file handler. Bundled files under /assets/ carry
// content hashes in their names and are cached forever; everything else is
// revalidated. Unknown extensionless paths fall back to index.html so client
// routes survive a reload.
func (h *Handler) Serve() http.Handler {
	fs := http.FileServer(http.Dir(h.dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		clean := path.Clean("/" + r.URL.Path)
		if h.exists(clean) {
			if strings.HasPrefix(clean, "/assets/") {
				w.Header().Set("Cache-Control", immutableCache)
			} else {
				w.Header().Set("Cache-Control", revalidate)
			}
			fs.ServeHTTP(w, r)
			return
		}

		if path.Ext(clean) != "" || isServerRoute(clean) || !h.exists("/index.html") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", revalidate)
		http.ServeFile(w, r, filepath.Join(h.dir, "index.html"))
	})
}

// isServerRoute reports paths owned by the API or the live feed, which must
// never fall back to the client.
func isServerRoute(p string) bool {
	return strings.HasPrefix(p, "/api/") || strings.HasPrefix(p, "/ws/")
}

func (h *Handler) exists(urlPath string) bool {
	info, err := os.Stat(filepath.Join(h.dir, filepath.FromSlash(urlPath)))
	if err != nil {
		return false
	}
	if info.IsDir() {
		_, err := os.Stat(filepath.Join(h.dir, filepath.FromSlash(urlPath), "index.html"))
		return err == nil
	}
	return true
}
