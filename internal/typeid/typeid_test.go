package typeid

import (
	"strings"
	"testing"
)

func TestNewSessionID(t *testing.T) {
	id := NewSessionID()
	if !strings.HasPrefix(id, PrefixSession+"_") {
		t.Fatalf("NewSessionID() = %q, want prefix %q", id, PrefixSession+"_")
	}
	if err := Validate(id, PrefixSession); err != nil {
		t.Errorf("Validate(%q): %v", id, err)
	}
	if id == NewSessionID() {
		t.Error("two session ids should differ")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		prefix  string
		wantErr bool
	}{
		{"session", NewSessionID(), PrefixSession, false},
		{"wrong prefix", NewLiveClientID(), PrefixSession, true},
		{"garbage", "not-an-id", PrefixSession, true},
		{"empty", "", PrefixSession, true},
		{"guid", "7b0c8d8e-3f5a-4b8e-9a43-5c1d2e3f4a5b", PrefixSession, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.id, tt.prefix)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%q, %q) error = %v, wantErr %v", tt.id, tt.prefix, err, tt.wantErr)
			}
		})
	}

	if ValidSession("sess") {
		t.Error("ValidSession accepted a bare prefix")
	}
}
