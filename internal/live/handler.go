package live

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/holidaypuzzle/puzzle/backend-go/internal/auth"
	"github.com/holidaypuzzle/puzzle/backend-go/internal/session"
	"github.com/holidaypuzzle/puzzle/backend-go/internal/typeid"
)

type TicketValidator interface {
	Validate(token string) (auth.Ticket, error)
}

type SessionReader interface {
	GetSession(ctx context.Context, sessionID string) (session.Snapshot, error)
}

type Handler struct {
	hub      *Hub
	sessions SessionReader
	tickets  TicketValidator
	origins  []string
	logger   *slog.Logger
}

// NewHandler serves the live feed. origins are the allowed browser origins,
// either bare hosts or full URLs.
func NewHandler(hub *Hub, sessions SessionReader, tickets TicketValidator, origins []string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		hub:      hub,
		sessions: sessions,
		tickets:  tickets,
		origins:  OriginPatterns(origins),
		logger:   logger.With("component", "live"),
	}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/ws/users/{uid}/sessions/{sessionId}", h.ServeWS).Methods("GET")
}

// ServeWS upgrades an authorized request and streams the session's events
// until either side closes or the session is discarded.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	uid, err := uuid.Parse(vars["uid"])
	if err != nil || uid == uuid.Nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "uid must be a valid GUID"})
		return
	}
	sessionID := vars["sessionId"]
	if !typeid.ValidSession(sessionID) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sessionId is not a valid session id"})
		return
	}

	token := r.URL.Query().Get("ticket")
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing ticket"})
		return
	}
	ticket, err := h.tickets.Validate(token)
	if err != nil {
		h.logger.Debug("rejected live ticket", "error", err)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid ticket"})
		return
	}
	if ticket.UserID != uid || ticket.SessionID != sessionID {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "ticket does not grant this session"})
		return
	}

	snap, err := h.sessions.GetSession(r.Context(), sessionID)
	if errors.Is(err, session.ErrNotFound) || (err == nil && snap.UserID != uid) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found for user"})
		return
	}
	if err != nil {
		h.logger.Error("load session for live feed", "session", sessionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.logger.Error("websocket accept", "error", err)
		return
	}

	client := NewClient(h.hub, conn, uid, sessionID, typeid.NewLiveClientID())
	welcome, err := json.Marshal(WelcomePayload{Session: snap})
	if err != nil {
		h.logger.Error("marshal welcome", "error", err)
		conn.Close(websocket.StatusInternalError, "")
		return
	}
	client.Send(&Message{
		Type:      TypeWelcome,
		SessionID: sessionID,
		ClientID:  client.ClientID,
		Payload:   welcome,
	})

	h.hub.Register(client)

	ctx := r.Context()
	go client.WritePump(ctx)
	client.ReadPump(ctx)
}

// OriginPatterns reduces configured origins to the host patterns the
// websocket library matches against.
func OriginPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			o = u.Host
		}
		out = append(out, o)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
