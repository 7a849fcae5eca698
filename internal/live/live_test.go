package live

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/holidaypuzzle/puzzle/backend-go/internal/auth"
	"github.com/holidaypuzzle/puzzle/backend-go/internal/geometry"
	"github.com/holidaypuzzle/puzzle/backend-go/internal/puzzle"
	"github.com/holidaypuzzle/puzzle/backend-go/internal/session"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type liveFixture struct {
	hub     *Hub
	svc     *session.Service
	tickets *auth.Tickets
	srv     *httptest.Server
}

func newLiveFixture(t *testing.T) *liveFixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(quietLogger())
	go hub.Run(ctx)

	def := puzzle.NewDefinition("test", "v1", []puzzle.PieceDefinition{
		{ID: "piece_A", Target: geometry.V(100, 100), SnapTolerance: 20},
		{ID: "piece_B", Target: geometry.V(500, 500), SnapTolerance: 20},
	})
	svc := session.NewService(puzzle.Fixed(def), session.NewMemoryStore(),
		session.WithLogger(quietLogger()),
		session.WithEvents(hub),
	)
	tickets := auth.NewTickets("live-test-secret", time.Hour)

	router := mux.NewRouter()
	NewHandler(hub, svc, tickets, nil, quietLogger()).Register(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &liveFixture{hub: hub, svc: svc, tickets: tickets, srv: srv}
}

func (f *liveFixture) start(t *testing.T, uid uuid.UUID) string {
	t.Helper()
	res, err := f.svc.StartSession(context.Background(), uid)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	return res.(session.StartCreated).Session.ID
}

func (f *liveFixture) url(uid uuid.UUID, sessionID, ticket string) string {
	u := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws/users/" + uid.String() + "/sessions/" + sessionID
	if ticket != "" {
		u += "?ticket=" + ticket
	}
	return u
}

// connect dials the feed, consumes the welcome and waits until the hub has
// registered the socket.
func (f *liveFixture) connect(t *testing.T, uid uuid.UUID, sessionID string) (*websocket.Conn, Message) {
	t.Helper()
	ticket, err := f.tickets.Issue(uid, sessionID)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, f.url(uid, sessionID, ticket), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	var welcome Message
	if err := wsjson.Read(ctx, conn, &welcome); err != nil {
		t.Fatalf("read welcome: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for f.hub.Clients(sessionID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered with the hub")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn, welcome
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var msg Message
	if err := wsjson.Read(ctx, conn, &msg); err != nil {
		t.Fatalf("read message: %v", err)
	}
	return msg
}

func TestServeWS_StreamsProgress(t *testing.T) {
	f := newLiveFixture(t)
	uid := uuid.New()
	sessionID := f.start(t, uid)

	conn, welcome := f.connect(t, uid, sessionID)
	if welcome.Type != TypeWelcome || welcome.SessionID != sessionID || welcome.ClientID == "" {
		t.Fatalf("welcome = %+v", welcome)
	}
	var wp WelcomePayload
	if err := json.Unmarshal(welcome.Payload, &wp); err != nil {
		t.Fatalf("decode welcome payload: %v", err)
	}
	if wp.Session.TotalPieces != 2 || wp.Session.PlacedPieces != 0 {
		t.Errorf("welcome session = %+v", wp.Session)
	}

	snap := func(piece string, x, y float64) {
		if _, err := f.svc.RecordPieceSnap(context.Background(), uid, sessionID, session.SnapRequest{
			PieceID: piece,
			Anchor:  geometry.V(x, y),
		}); err != nil {
			t.Fatalf("RecordPieceSnap: %v", err)
		}
	}

	snap("piece_A", 101, 101)
	msg := readMessage(t, conn)
	var progress ProgressPayload
	json.Unmarshal(msg.Payload, &progress)
	if msg.Type != TypeSnapAccepted || progress.PieceID != "piece_A" || progress.PlacedPieces != 1 {
		t.Errorf("first event = %s %+v", msg.Type, progress)
	}

	// Rejected snaps produce no event.
	snap("piece_B", 900, 900)
	snap("piece_B", 500, 500)

	if msg := readMessage(t, conn); msg.Type != TypeSnapAccepted {
		t.Errorf("second event = %s, want %s", msg.Type, TypeSnapAccepted)
	}
	msg = readMessage(t, conn)
	json.Unmarshal(msg.Payload, &progress)
	if msg.Type != TypeSessionCompleted || progress.PlacedPieces != 2 || progress.TotalPieces != 2 {
		t.Errorf("completion event = %s %+v", msg.Type, progress)
	}
}

func TestServeWS_DiscardEndsFeed(t *testing.T) {
	f := newLiveFixture(t)
	uid := uuid.New()
	sessionID := f.start(t, uid)
	conn, _ := f.connect(t, uid, sessionID)

	if ok, err := f.svc.DiscardSession(context.Background(), uid, sessionID); err != nil || !ok {
		t.Fatalf("DiscardSession = %v, %v", ok, err)
	}

	msg := readMessage(t, conn)
	var payload DiscardedPayload
	json.Unmarshal(msg.Payload, &payload)
	if msg.Type != TypeSessionDiscarded || payload.Reason != "discarded" {
		t.Errorf("discard event = %s %+v", msg.Type, payload)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, _, err := conn.Read(ctx); err == nil {
		t.Error("feed stayed open after discard")
	}
	if n := f.hub.Clients(sessionID); n != 0 {
		t.Errorf("hub still tracks %d clients", n)
	}
}

func TestServeWS_Rejects(t *testing.T) {
	f := newLiveFixture(t)
	owner := uuid.New()
	sessionID := f.start(t, owner)
	other := f.start(t, uuid.New())
	stranger := uuid.New()

	ticket := func(uid uuid.UUID, sid string) string {
		tok, err := f.tickets.Issue(uid, sid)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		return tok
	}

	tests := []struct {
		name   string
		url    string
		status int
	}{
		{"missing ticket", f.url(owner, sessionID, ""), http.StatusUnauthorized},
		{"garbage ticket", f.url(owner, sessionID, "nope"), http.StatusUnauthorized},
		{"ticket for another session", f.url(owner, sessionID, ticket(owner, other)), http.StatusForbidden},
		{"ticket for another user", f.url(owner, sessionID, ticket(stranger, sessionID)), http.StatusForbidden},
		{"session owned by someone else", f.url(stranger, sessionID, ticket(stranger, sessionID)), http.StatusNotFound},
		{"malformed session id", f.url(owner, "sess_bad", ticket(owner, "sess_bad")), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			conn, resp, err := websocket.Dial(ctx, tt.url, nil)
			if err == nil {
				conn.Close(websocket.StatusNormalClosure, "")
				t.Fatal("dial succeeded, want rejection")
			}
			if resp == nil || resp.StatusCode != tt.status {
				got := 0
				if resp != nil {
					got = resp.StatusCode
				}
				t.Errorf("status = %d, want %d", got, tt.status)
			}
		})
	}
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	hub := NewHub(quietLogger())

	done := make(chan struct{})
	go func() {
		for i := 0; i < eventBuffer*2; i++ {
			hub.Publish(session.Event{Type: session.EventSnapAccepted, SessionID: "sess_x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish blocked with no hub running")
	}
}

func TestHub_RegisterAfterStop(t *testing.T) {
	hub := NewHub(quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	c := &Client{hub: hub, logger: hub.logger, send: make(chan []byte, 1), SessionID: "sess_x", ClientID: "c"}
	hub.Register(c)
	hub.Unregister(c)
	if _, ok := <-c.send; ok {
		t.Error("send channel left open after registering with a stopped hub")
	}
	c.Send(&Message{Type: TypeWelcome})
}

func TestOriginPatterns(t *testing.T) {
	got := OriginPatterns([]string{"http://localhost:5173", " example.org ", "", "https://play.example.com"})
	want := []string{"localhost:5173", "example.org", "play.example.com"}
	if len(got) != len(want) {
		t.Fatalf("OriginPatterns = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("OriginPatterns[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
