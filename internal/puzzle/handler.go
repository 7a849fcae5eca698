package puzzle

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"
)

type Handler struct {
	provider Provider
	logger   *slog.Logger
}

func NewHandler(provider Provider, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{provider: provider, logger: logger.With("component", "puzzle")}
}

// Layout serves GET /api/puzzle. The version doubles as an ETag.
func (h *Handler) Layout(w http.ResponseWriter, r *http.Request) {
	def, ok := h.definition(w)
	if !ok {
		return
	}

	etag := `"` + def.Version + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	writeJSON(w, http.StatusOK, def.Layout())
}

// Asset serves the SVG the definition was built from under its own file
// name, so the client always draws what the server validates against.
func (h *Handler) Asset(w http.ResponseWriter, r *http.Request) {
	def, ok := h.definition(w)
	if !ok {
		return
	}

	name := mux.Vars(r)["name"]
	if def.Source == "" || !strings.EqualFold(name, filepath.Base(def.Source)) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("ETag", `"`+def.Version+`"`)
	http.ServeFile(w, r, def.Source)
}

func (h *Handler) definition(w http.ResponseWriter) (*Definition, bool) {
	def, err := h.provider.Definition()
	if err != nil {
		h.logger.Error("puzzle definition unavailable", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "puzzle unavailable"})
		return nil, false
	}
	return def, true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
