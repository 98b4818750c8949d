package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nutrilog/nutrilog-backend/internal/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	id := uuid.New()
	at := time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)

	token := Encode(at, id)
	if token == "" {
		t.Fatalf("Encode: empty token")
	}

	cursor, err := Decode(token)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !cursor.SortValue.Equal(at) {
		t.Fatalf("sort value: want=%s got=%s", at, cursor.SortValue)
	}
	if cursor.ID != id {
		t.Fatalf("id: want=%s got=%s", id, cursor.ID)
	}
}

func TestCursorRoundTripKeepsSubSecondPrecision(t *testing.T) {
	id := uuid.New()
	at := time.Now().UTC()

	cursor, err := Decode(Encode(at, id))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !cursor.SortValue.Equal(at) {
		t.Fatalf("sort value: want=%s got=%s", at, cursor.SortValue)
	}
}

func TestCursorDecodeRejectsMalformedTokens(t *testing.T) {
	cases := []struct {
		name  string
		token string
	}{
		{"not base64", "%%%not-base64%%%"},
		{"not json", base64.RawURLEncoding.EncodeToString([]byte("hello"))},
		{"missing fields", base64.RawURLEncoding.EncodeToString([]byte(`{}`))},
		{"bad timestamp", base64.RawURLEncoding.EncodeToString([]byte(`{"v":"yesterday","id":"` + uuid.NewString() + `"}`))},
		{"bad uuid", base64.RawURLEncoding.EncodeToString([]byte(`{"v":"2026-03-14T09:26:53Z","id":"nope"}`))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.token)
			if err == nil {
				t.Fatalf("Decode(%q): expected error", tc.token)
			}
			if !domain.IsCode(err, domain.CodeInvalidCursor) {
				t.Fatalf("Decode(%q): want code=%s got=%s", tc.token, domain.CodeInvalidCursor, domain.CodeOf(err))
			}
		})
	}
}
