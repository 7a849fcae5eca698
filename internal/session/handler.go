package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/holidaypuzzle/puzzle/backend-go/internal/geometry"
	"github.com/holidaypuzzle/puzzle/backend-go/internal/typeid"
	"github.com/holidaypuzzle/puzzle/backend-go/internal/users"
)

// TicketIssuer mints live-feed tickets for a started session.
type TicketIssuer interface {
	Issue(userID uuid.UUID, sessionID string) (string, error)
}

type Handler struct {
	service *Service
	tickets TicketIssuer
	logger  *slog.Logger
}

// NewHandler wires the session endpoints. tickets may be nil, in which case
// no live ticket is handed out.
func NewHandler(service *Service, tickets TicketIssuer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: service,
		tickets: tickets,
		logger:  logger.With("component", "session"),
	}
}

// Register mounts the routes on an /api subrouter.
func (h *Handler) Register(api *mux.Router) {
	api.HandleFunc("/users/{uid}/sessions", h.Start).Methods("POST")
	api.HandleFunc("/users/{uid}/sessions/{sessionId}", h.Get).Methods("GET")
	api.HandleFunc("/users/{uid}/sessions/{sessionId}", h.Discard).Methods("DELETE")
	api.HandleFunc("/users/{uid}/sessions/{sessionId}/snaps", h.Snap).Methods("POST")
	api.HandleFunc("/users/{uid}/sessions/{sessionId}/complete", h.Complete).Methods("POST")
}

type startResponse struct {
	Success       bool       `json:"success"`
	SessionID     string     `json:"sessionId,omitempty"`
	PuzzleVersion string     `json:"puzzleVersion,omitempty"`
	StartedAtUtc  *time.Time `json:"startedAtUtc,omitempty"`
	TotalPieces   *int       `json:"totalPieces,omitempty"`
	PlacedPieces  *int       `json:"placedPieces,omitempty"`
	LiveTicket    string     `json:"liveTicket,omitempty"`

	ExistingCompletedSessionID     string     `json:"existingCompletedSessionId,omitempty"`
	ExistingSessionStartTime       *time.Time `json:"existingSessionStartTime,omitempty"`
	ExistingSessionCompletedTime   *time.Time `json:"existingSessionCompletedTime,omitempty"`
	ExistingSessionDurationSeconds *float64   `json:"existingSessionDurationSeconds,omitempty"`

	Message string `json:"message,omitempty"`
}

type snapRequest struct {
	PieceID         string   `json:"pieceId"`
	AnchorX         *float64 `json:"anchorX"`
	AnchorY         *float64 `json:"anchorY"`
	ClientDistance  *float64 `json:"clientDistance"`
	ClientTolerance *float64 `json:"clientTolerance"`
}

type snapResponse struct {
	Status           SnapStatus `json:"status"`
	PieceID          string     `json:"pieceId,omitempty"`
	Distance         float64    `json:"distance"`
	AllowedDistance  float64    `json:"allowedDistance"`
	TotalPieces      int        `json:"totalPieces"`
	PlacedPieces     int        `json:"placedPieces"`
	SessionCompleted bool       `json:"sessionCompleted"`
	Message          string     `json:"message,omitempty"`
}

type completeResponse struct {
	SessionID       string      `json:"sessionId,omitempty"`
	StartedAtUtc    *time.Time  `json:"startedAtUtc,omitempty"`
	CompletedAtUtc  *time.Time  `json:"completedAtUtc,omitempty"`
	DurationSeconds *float64    `json:"durationSeconds,omitempty"`
	TotalPieces     int         `json:"totalPieces"`
	PlacedPieces    int         `json:"placedPieces"`
	AlreadySaved    bool        `json:"alreadySaved,omitempty"`
	UserData        *users.User `json:"userData"`
	Message         string      `json:"message,omitempty"`
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	uid, ok := parseUID(w, r)
	if !ok {
		return
	}

	result, err := h.service.StartSession(r.Context(), uid)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	switch res := result.(type) {
	case StartCreated:
		writeJSON(w, http.StatusOK, h.activeResponse(uid, res.Session, ""))

	case StartAlreadyActive:
		writeJSON(w, http.StatusOK, h.activeResponse(uid, res.Session, "session already active"))

	case StartUnsavedCompleted:
		s := res.Session
		duration := s.DurationSeconds()
		writeJSON(w, http.StatusConflict, startResponse{
			Success:                        false,
			ExistingCompletedSessionID:     s.ID,
			ExistingSessionStartTime:       &s.StartedAt,
			ExistingSessionCompletedTime:   s.CompletedAt,
			ExistingSessionDurationSeconds: &duration,
			Message:                        "completed session must be saved or discarded first",
		})

	default:
		h.handleServiceError(w, errors.New("unexpected start result"))
	}
}

func (h *Handler) activeResponse(uid uuid.UUID, s Snapshot, message string) startResponse {
	resp := startResponse{
		Success:       true,
		SessionID:     s.ID,
		PuzzleVersion: s.PuzzleVersion,
		StartedAtUtc:  &s.StartedAt,
		TotalPieces:   &s.TotalPieces,
		PlacedPieces:  &s.PlacedPieces,
		Message:       message,
	}
	if h.tickets != nil {
		ticket, err := h.tickets.Issue(uid, s.ID)
		if err != nil {
			h.logger.Error("issue live ticket", "session", s.ID, "error", err)
		} else {
			resp.LiveTicket = ticket
		}
	}
	return resp
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	uid, sessionID, ok := parseIDs(w, r)
	if !ok {
		return
	}

	snap, err := h.service.GetSession(r.Context(), sessionID)
	if errors.Is(err, ErrNotFound) || (err == nil && snap.UserID != uid) {
		writeSessionNotFound(w)
		return
	}
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) Snap(w http.ResponseWriter, r *http.Request) {
	uid, sessionID, ok := parseIDs(w, r)
	if !ok {
		return
	}

	var req snapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.PieceID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "pieceId is required"})
		return
	}
	if req.AnchorX == nil || req.AnchorY == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "anchorX and anchorY are required"})
		return
	}
	anchor := geometry.V(*req.AnchorX, *req.AnchorY)
	if !anchor.IsFinite() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "anchor must be finite"})
		return
	}
	if tol := req.ClientTolerance; tol != nil && (math.IsNaN(*tol) || math.IsInf(*tol, 0) || *tol < 0) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "clientTolerance must be a finite, non-negative number"})
		return
	}

	result, err := h.service.RecordPieceSnap(r.Context(), uid, sessionID, SnapRequest{
		PieceID:         req.PieceID,
		Anchor:          anchor,
		ClientDistance:  req.ClientDistance,
		ClientTolerance: req.ClientTolerance,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	switch res := result.(type) {
	case SnapAccepted:
		writeJSON(w, http.StatusOK, snapResponse{
			Status:           res.Status(),
			PieceID:          res.PieceID,
			Distance:         res.Distance,
			AllowedDistance:  res.AllowedDistance,
			TotalPieces:      res.TotalPieces,
			PlacedPieces:     res.PlacedPieces,
			SessionCompleted: res.Completed,
		})
	case SnapDuplicate:
		writeJSON(w, http.StatusOK, snapResponse{
			Status:          res.Status(),
			PieceID:         res.PieceID,
			Distance:        res.Distance,
			AllowedDistance: res.AllowedDistance,
			TotalPieces:     res.TotalPieces,
			PlacedPieces:    res.PlacedPieces,
		})
	case SnapUnknownPiece:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status": string(res.Status()),
			"error":  "unknown puzzle piece identifier",
		})
	case SnapTooFar:
		writeJSON(w, http.StatusUnprocessableEntity, snapResponse{
			Status:          res.Status(),
			PieceID:         res.PieceID,
			Distance:        res.Distance,
			AllowedDistance: res.AllowedDistance,
			Message:         "reported piece position is outside the allowed tolerance",
		})
	case SnapSessionCompleted:
		writeJSON(w, http.StatusConflict, snapResponse{
			Status:           res.Status(),
			TotalPieces:      res.TotalPieces,
			PlacedPieces:     res.PlacedPieces,
			SessionCompleted: true,
			Message:          "session already completed",
		})
	case SnapSessionNotFound:
		writeSessionNotFound(w)
	default:
		h.handleServiceError(w, errors.New("unexpected snap result"))
	}
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	uid, sessionID, ok := parseIDs(w, r)
	if !ok {
		return
	}

	result, err := h.service.CompleteSession(r.Context(), uid, sessionID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	switch res := result.(type) {
	case CompleteSucceeded:
		resp := completionResponse(res.Completion)
		resp.UserData = res.User
		writeJSON(w, http.StatusOK, resp)

	case CompleteAlreadySaved:
		resp := completionResponse(res.Completion)
		resp.AlreadySaved = true
		writeJSON(w, http.StatusOK, resp)

	case CompleteIncomplete:
		writeJSON(w, http.StatusConflict, completeResponse{
			TotalPieces:  res.TotalPieces,
			PlacedPieces: res.PlacedPieces,
			Message:      "not all pieces have been validated for this session",
		})

	case CompleteNotFound:
		writeSessionNotFound(w)

	default:
		h.handleServiceError(w, errors.New("unexpected complete result"))
	}
}

func completionResponse(c Completion) completeResponse {
	return completeResponse{
		SessionID:       c.SessionID,
		StartedAtUtc:    &c.StartedAt,
		CompletedAtUtc:  &c.CompletedAt,
		DurationSeconds: &c.DurationSeconds,
		TotalPieces:     c.TotalPieces,
		PlacedPieces:    c.PlacedPieces,
	}
}

func (h *Handler) Discard(w http.ResponseWriter, r *http.Request) {
	uid, sessionID, ok := parseIDs(w, r)
	if !ok {
		return
	}

	discarded, err := h.service.DiscardSession(r.Context(), uid, sessionID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	if !discarded {
		writeSessionNotFound(w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidUser):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "uid must be a valid GUID"})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.logger.Debug("request cancelled", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "request cancelled"})
	default:
		h.logger.Error("service error", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// writeSessionNotFound carries a status field so clients can tell a vanished
// session from an unknown user.
func writeSessionNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"status": string(StatusSessionNotFound),
		"error":  "session not found for user",
	})
}

func parseUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	uid, err := uuid.Parse(mux.Vars(r)["uid"])
	if err != nil || uid == uuid.Nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "uid must be a valid GUID"})
		return uuid.Nil, false
	}
	return uid, true
}

func parseIDs(w http.ResponseWriter, r *http.Request) (uuid.UUID, string, bool) {
	uid, ok := parseUID(w, r)
	if !ok {
		return uuid.Nil, "", false
	}
	sessionID := mux.Vars(r)["sessionId"]
	if err := typeid.Validate(sessionID, typeid.PrefixSession); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sessionId is not a valid session id"})
		return uuid.Nil, "", false
	}
	return uid, sessionID, true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
