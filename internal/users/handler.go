package users

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/skip2/go-qrcode"
)

const qrSize = 256

type Handler struct {
	store   Store
	baseURL string
	logger  *slog.Logger
}

// NewHandler serves profiles from store. baseURL is the public address of
// the game, used in personalised QR links.
func NewHandler(store Store, baseURL string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, baseURL: baseURL, logger: logger.With("component", "users")}
}

// Register mounts the read-only profile routes on an /api subrouter.
// Statistics are written only by the session completion flow.
func (h *Handler) Register(api *mux.Router) {
	api.HandleFunc("/users/{uid}", h.Get).Methods("GET")
	api.HandleFunc("/users/{uid}/qr.png", h.QRCode).Methods("GET")
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	uid, ok := parseUID(w, r)
	if !ok {
		return
	}

	u, err := h.store.Get(r.Context(), uid)
	if err != nil {
		h.handleStoreError(w, uid, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// QRCode renders the user's personal play link as a PNG.
func (h *Handler) QRCode(w http.ResponseWriter, r *http.Request) {
	uid, ok := parseUID(w, r)
	if !ok {
		return
	}

	if _, err := h.store.Get(r.Context(), uid); err != nil {
		h.handleStoreError(w, uid, err)
		return
	}

	png, err := QRCode(h.baseURL, uid)
	if err != nil {
		h.logger.Error("encode qr code", "user", uid, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// PlayLink is the personalised entry URL for uid.
func PlayLink(baseURL string, uid uuid.UUID) string {
	base := strings.TrimRight(baseURL, "/")
	return base + "/?" + url.Values{"uid": {uid.String()}}.Encode()
}

// QRCode encodes PlayLink as a PNG.
func QRCode(baseURL string, uid uuid.UUID) ([]byte, error) {
	return qrcode.Encode(PlayLink(baseURL, uid), qrcode.Medium, qrSize)
}

func (h *Handler) handleStoreError(w http.ResponseWriter, uid uuid.UUID, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
	default:
		h.logger.Error("user store error", "user", uid, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func parseUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	uid, err := uuid.Parse(mux.Vars(r)["uid"])
	if err != nil || uid == uuid.Nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "uid must be a valid GUID"})
		return uuid.Nil, false
	}
	return uid, true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
