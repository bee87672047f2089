package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNormalizeLimit(t *testing.T) {
	if got := NormalizeLimit(0); got != DefaultLimit {
		t.Fatalf("zero limit should normalize to default, got %d", got)
	}
	if got := NormalizeLimit(500); got != MaxLimit {
		t.Fatalf("oversized limit should cap at max, got %d", got)
	}
	if got := NormalizeLimit(10); got != 10 {
		t.Fatalf("in-range limit should pass through, got %d", got)
	}
}

func TestCursorRoundTrip(t *testing.T) {
	orig := Cursor{CreatedAt: time.Now().UTC().Truncate(time.Microsecond), ID: uuid.New()}
	parsed, err := ParseCursor(EncodeCursor(orig))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed == nil || !parsed.CreatedAt.Equal(orig.CreatedAt) || parsed.ID != orig.ID {
		t.Fatalf("cursor mismatch: %+v vs %+v", parsed, orig)
	}
}

func TestParseCursorEmptyIsNil(t *testing.T) {
	parsed, err := ParseCursor("  ")
	if err != nil || parsed != nil {
		t.Fatalf("blank cursor should be nil/nil, got %v %v", parsed, err)
	}
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	if _, err := ParseCursor("not-base64!!"); err == nil {
		t.Fatal("expected decode error")
	}
}
