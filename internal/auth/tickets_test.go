package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func TestTickets_IssueValidate(t *testing.T) {
	tickets := NewTickets("test-secret", time.Hour)
	uid := uuid.New()

	token, err := tickets.Issue(uid, "sess_01h455vb4pex5vsknk084sn02q")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	got, err := tickets.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got.UserID != uid || got.SessionID != "sess_01h455vb4pex5vsknk084sn02q" {
		t.Errorf("ticket = %+v", got)
	}
	if got.ExpiresAt.IsZero() {
		t.Error("ExpiresAt not set")
	}
}

func TestTickets_Rejects(t *testing.T) {
	tickets := NewTickets("test-secret", time.Hour)
	uid := uuid.New()

	other := NewTickets("other-secret", time.Hour)
	foreign, err := other.Issue(uid, "sess_x")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	expired := NewTickets("test-secret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	stale, err := expired.Issue(uid, "sess_x")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": uid.String(), "sid": "sess_x"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	noSession := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": uid.String()})
	missingSid, err := noSession.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", foreign},
		{"expired", stale},
		{"alg none", unsigned},
		{"missing session", missingSid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tickets.Validate(tt.token); !errors.Is(err, ErrInvalidTicket) {
				t.Errorf("Validate error = %v, want ErrInvalidTicket", err)
			}
		})
	}
}
