package typeid

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

const (
	PrefixSession    = "sess"
	PrefixLiveClient = "live"
)

func New(prefix string) string {
	id := typeid.MustGenerate(prefix)
	return id.String()
}

func NewSessionID() string    { return New(PrefixSession) }
func NewLiveClientID() string { return New(PrefixLiveClient) }

func Validate(id, expectedPrefix string) error {
	parsed, err := typeid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid typeid %q: %w", id, err)
	}
	if parsed.Prefix() != expectedPrefix {
		return fmt.Errorf("expected prefix %q but got %q in id %q", expectedPrefix, parsed.Prefix(), id)
	}
	return nil
}

// ValidSession reports whether id is a well-formed session id.
func ValidSession(id string) bool {
	return Validate(id, PrefixSession) == nil
}
