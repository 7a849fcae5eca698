package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/holidaypuzzle/puzzle/backend-go/internal/puzzle"
	"github.com/holidaypuzzle/puzzle/backend-go/internal/typeid"
	"github.com/holidaypuzzle/puzzle/backend-go/internal/users"
)

type fakeStats struct {
	calls []users.Outcome
	err   error
}

func (f *fakeStats) ApplyOutcome(_ context.Context, uid uuid.UUID, up users.Outcome) (*users.User, error) {
	f.calls = append(f.calls, up)
	if f.err != nil {
		return nil, f.err
	}
	total := len(f.calls)
	return &users.User{UID: uid, Name: "Test", TotalPuzzlesCompleted: &total}, nil
}

type fakeTickets struct{}

func (fakeTickets) Issue(uid uuid.UUID, sessionID string) (string, error) {
	return "ticket-" + sessionID, nil
}

type handlerFixture struct {
	*fixture
	stats  *fakeStats
	router *mux.Router
}

func newHandlerFixture() *handlerFixture {
	stats := &fakeStats{}
	f := newFixture(twoPieces(), WithRecorder(stats))
	h := NewHandler(f.svc, fakeTickets{}, quietLogger())

	router := mux.NewRouter()
	h.Register(router.PathPrefix("/api").Subrouter())
	return &handlerFixture{fixture: f, stats: stats, router: router}
}

func (hf *handlerFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			if err := json.NewEncoder(&buf).Encode(b); err != nil {
				t.Fatalf("encode body: %v", err)
			}
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	hf.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func snapBody(piece string, x, y float64) map[string]interface{} {
	return map[string]interface{}{"pieceId": piece, "anchorX": x, "anchorY": y}
}

func TestHandler_FullFlow(t *testing.T) {
	hf := newHandlerFixture()
	uid := uuid.New()
	base := "/api/users/" + uid.String() + "/sessions"

	rec := hf.do(t, "POST", base, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d, body %s", rec.Code, rec.Body)
	}
	start := decode(t, rec)
	sessionID, _ := start["sessionId"].(string)
	if start["success"] != true || sessionID == "" {
		t.Fatalf("start body = %v", start)
	}
	if start["liveTicket"] != "ticket-"+sessionID {
		t.Errorf("liveTicket = %v", start["liveTicket"])
	}
	if start["totalPieces"] != float64(2) || start["puzzleVersion"] != "v1" {
		t.Errorf("start body = %v", start)
	}

	rec = hf.do(t, "POST", base, nil)
	again := decode(t, rec)
	if rec.Code != http.StatusOK || again["sessionId"] != sessionID || again["message"] != "session already active" {
		t.Errorf("second start = %d %v", rec.Code, again)
	}

	snaps := base + "/" + sessionID + "/snaps"
	rec = hf.do(t, "POST", snaps, snapBody("piece_A", 105, 105))
	body := decode(t, rec)
	if rec.Code != http.StatusOK || body["status"] != "Accepted" || body["placedPieces"] != float64(1) {
		t.Fatalf("snap A = %d %v", rec.Code, body)
	}

	rec = hf.do(t, "POST", snaps, snapBody("piece_A", 105, 105))
	body = decode(t, rec)
	if rec.Code != http.StatusOK || body["status"] != "Duplicate" {
		t.Errorf("duplicate = %d %v", rec.Code, body)
	}

	rec = hf.do(t, "POST", snaps, snapBody("piece_B", 650, 500))
	body = decode(t, rec)
	if rec.Code != http.StatusUnprocessableEntity || body["status"] != "TooFar" || body["distance"] != float64(150) {
		t.Errorf("too far = %d %v", rec.Code, body)
	}

	rec = hf.do(t, "POST", base+"/"+sessionID+"/complete", nil)
	body = decode(t, rec)
	if rec.Code != http.StatusConflict || body["placedPieces"] != float64(1) {
		t.Errorf("early complete = %d %v", rec.Code, body)
	}

	hf.clock.Advance(42 * time.Second)
	rec = hf.do(t, "POST", snaps, snapBody("piece_B", 510, 505))
	body = decode(t, rec)
	if rec.Code != http.StatusOK || body["sessionCompleted"] != true {
		t.Fatalf("snap B = %d %v", rec.Code, body)
	}

	rec = hf.do(t, "POST", snaps, snapBody("piece_B", 510, 505))
	body = decode(t, rec)
	if rec.Code != http.StatusConflict || body["status"] != "SessionCompleted" {
		t.Errorf("snap after completion = %d %v", rec.Code, body)
	}

	rec = hf.do(t, "POST", base, nil)
	body = decode(t, rec)
	if rec.Code != http.StatusConflict || body["success"] != false || body["existingCompletedSessionId"] != sessionID {
		t.Errorf("start with unsaved session = %d %v", rec.Code, body)
	}
	if body["existingSessionDurationSeconds"] != float64(42) {
		t.Errorf("existingSessionDurationSeconds = %v, want 42", body["existingSessionDurationSeconds"])
	}

	rec = hf.do(t, "POST", base+"/"+sessionID+"/complete", nil)
	body = decode(t, rec)
	if rec.Code != http.StatusOK || body["durationSeconds"] != float64(42) {
		t.Fatalf("complete = %d %v", rec.Code, body)
	}
	if user, ok := body["userData"].(map[string]interface{}); !ok || user["uid"] != uid.String() {
		t.Errorf("userData = %v", body["userData"])
	}
	if len(hf.stats.calls) != 1 {
		t.Fatalf("stats calls = %d, want 1", len(hf.stats.calls))
	}
	call := hf.stats.calls[0]
	if call.PiecesAchieved != 2 || !call.PuzzleCompleted || call.CompletionTimeSeconds == nil || *call.CompletionTimeSeconds != 42 {
		t.Errorf("stats update = %+v", call)
	}

	rec = hf.do(t, "POST", base+"/"+sessionID+"/complete", nil)
	body = decode(t, rec)
	if rec.Code != http.StatusOK || body["alreadySaved"] != true {
		t.Errorf("repeat complete = %d %v", rec.Code, body)
	}
	if len(hf.stats.calls) != 1 {
		t.Errorf("repeat complete recorded stats again")
	}

	rec = hf.do(t, "POST", base, nil)
	body = decode(t, rec)
	if rec.Code != http.StatusOK || body["sessionId"] == sessionID {
		t.Errorf("start after save = %d %v", rec.Code, body)
	}
}

func TestHandler_SnapValidation(t *testing.T) {
	hf := newHandlerFixture()
	uid := uuid.New()
	s := hf.start(t, uid)
	snaps := "/api/users/" + uid.String() + "/sessions/" + s.ID + "/snaps"

	tests := []struct {
		name   string
		body   interface{}
		status int
	}{
		{"malformed json", "{", http.StatusBadRequest},
		{"missing piece", map[string]interface{}{"anchorX": 1, "anchorY": 2}, http.StatusBadRequest},
		{"missing anchor", map[string]interface{}{"pieceId": "piece_A", "anchorX": 1}, http.StatusBadRequest},
		{"unknown piece", snapBody("piece_Q", 100, 100), http.StatusBadRequest},
		{"huge anchor", `{"pieceId":"piece_A","anchorX":1e400,"anchorY":0}`, http.StatusBadRequest},
		{"negative tolerance", `{"pieceId":"piece_A","anchorX":100,"anchorY":100,"clientTolerance":-5}`, http.StatusBadRequest},
		{"huge tolerance", `{"pieceId":"piece_A","anchorX":100,"anchorY":100,"clientTolerance":1e400}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := hf.do(t, "POST", snaps, tt.body)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body)
			}
		})
	}

	snap, _ := hf.svc.GetSession(context.Background(), s.ID)
	if snap.PlacedPieces != 0 {
		t.Errorf("invalid requests recorded %d placements", snap.PlacedPieces)
	}
}

func TestHandler_NotFoundAndBadIDs(t *testing.T) {
	hf := newHandlerFixture()
	owner := uuid.New()
	s := hf.start(t, owner)
	stranger := uuid.New()

	rec := hf.do(t, "POST", "/api/users/not-a-guid/sessions", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad uid status = %d", rec.Code)
	}
	rec = hf.do(t, "POST", "/api/users/"+uuid.Nil.String()+"/sessions", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("nil uid status = %d", rec.Code)
	}
	rec = hf.do(t, "GET", "/api/users/"+owner.String()+"/sessions/garbage", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad session id status = %d", rec.Code)
	}

	foreign := "/api/users/" + stranger.String() + "/sessions/" + s.ID
	for _, tc := range []struct{ method, path string }{
		{"GET", foreign},
		{"DELETE", foreign},
		{"POST", foreign + "/complete"},
	} {
		rec := hf.do(t, tc.method, tc.path, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s %s = %d, want 404", tc.method, tc.path, rec.Code)
		}
	}

	rec = hf.do(t, "POST", foreign+"/snaps", snapBody("piece_A", 100, 100))
	body := decode(t, rec)
	if rec.Code != http.StatusNotFound || body["status"] != "SessionNotFound" {
		t.Errorf("foreign snap = %d %v", rec.Code, body)
	}

	missing := "/api/users/" + owner.String() + "/sessions/" + typeid.NewSessionID()
	rec = hf.do(t, "GET", missing, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing session status = %d", rec.Code)
	}

	rec = hf.do(t, "GET", "/api/users/"+owner.String()+"/sessions/"+s.ID, nil)
	body = decode(t, rec)
	if rec.Code != http.StatusOK || body["sessionId"] != s.ID {
		t.Errorf("owner get = %d %v", rec.Code, body)
	}
}

func TestHandler_Discard(t *testing.T) {
	hf := newHandlerFixture()
	uid := uuid.New()
	s := hf.start(t, uid)
	path := "/api/users/" + uid.String() + "/sessions/" + s.ID

	if rec := hf.do(t, "DELETE", path, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("discard status = %d", rec.Code)
	}
	if rec := hf.do(t, "DELETE", path, nil); rec.Code != http.StatusNotFound {
		t.Errorf("second discard status = %d", rec.Code)
	}
}

func TestHandler_CompleteStatsFailures(t *testing.T) {
	finish := func(t *testing.T, hf *handlerFixture, uid uuid.UUID) string {
		s := hf.start(t, uid)
		hf.snap(t, uid, s.ID, "piece_A", 100, 100)
		hf.snap(t, uid, s.ID, "piece_B", 500, 500)
		return "/api/users/" + uid.String() + "/sessions/" + s.ID + "/complete"
	}

	t.Run("unknown user", func(t *testing.T) {
		hf := newHandlerFixture()
		hf.stats.err = users.ErrNotFound
		rec := hf.do(t, "POST", finish(t, hf, uuid.New()), nil)
		body := decode(t, rec)
		if rec.Code != http.StatusOK || body["userData"] != nil {
			t.Errorf("complete = %d %v", rec.Code, body)
		}
	})

	t.Run("store failure", func(t *testing.T) {
		hf := newHandlerFixture()
		hf.stats.err = errors.New("disk full")
		rec := hf.do(t, "POST", finish(t, hf, uuid.New()), nil)
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("complete status = %d, want 500", rec.Code)
		}
	})

	t.Run("retry after store failure persists stats", func(t *testing.T) {
		hf := newHandlerFixture()
		uid := uuid.New()
		path := finish(t, hf, uid)

		hf.stats.err = errors.New("disk full")
		rec := hf.do(t, "POST", path, nil)
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("first complete status = %d, want 500", rec.Code)
		}

		hf.stats.err = nil
		rec = hf.do(t, "POST", path, nil)
		body := decode(t, rec)
		if rec.Code != http.StatusOK || body["alreadySaved"] != nil {
			t.Fatalf("retry = %d %v", rec.Code, body)
		}
		if user, ok := body["userData"].(map[string]interface{}); !ok || user["uid"] != uid.String() {
			t.Errorf("userData = %v", body["userData"])
		}
		if len(hf.stats.calls) != 2 {
			t.Errorf("stats calls = %d, want 2", len(hf.stats.calls))
		}

		rec = hf.do(t, "POST", path, nil)
		body = decode(t, rec)
		if rec.Code != http.StatusOK || body["alreadySaved"] != true || len(hf.stats.calls) != 2 {
			t.Errorf("third complete = %d %v, stats calls %d", rec.Code, body, len(hf.stats.calls))
		}
	})
}

func TestHandler_DefinitionUnavailable(t *testing.T) {
	svc := NewService(puzzle.NewBuilder(nil, quietLogger()), NewMemoryStore(), WithLogger(quietLogger()))
	router := mux.NewRouter()
	NewHandler(svc, nil, quietLogger()).Register(router.PathPrefix("/api").Subrouter())

	req := httptest.NewRequest("POST", "/api/users/"+uuid.New().String()+"/sessions", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
