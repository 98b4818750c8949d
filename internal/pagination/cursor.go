package pagination

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/nutrilog/nutrilog-backend/internal/domain"
)

// Cursor is the decoded keyset position: the sort-key value of the last
// returned row plus its id as tie-breaker. One codec serves every listing
// endpoint that sorts by a timestamp.
type Cursor struct {
	SortValue time.Time
	ID        uuid.UUID
}

type wireCursor struct {
	V  string `json:"v"`
	ID string `json:"id"`
}

// Encode is a pure function of its inputs; distinct inputs yield distinct
// tokens because the wire form round-trips both fields exactly.
func Encode(sortValue time.Time, id uuid.UUID) string {
	raw, _ := json.Marshal(wireCursor{
		V:  sortValue.UTC().Format(time.RFC3339Nano),
		ID: id.String(),
	})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Decode rejects structurally invalid tokens with an invalid_cursor error,
// never a bare parse failure.
func Decode(token string) (Cursor, error) {
	const op = "pagination.Decode"
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, domain.NewError(domain.CodeInvalidCursor, op, "cursor is not valid base64", err)
	}
	var wire wireCursor
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Cursor{}, domain.NewError(domain.CodeInvalidCursor, op, "cursor is not valid JSON", err)
	}
	if wire.V == "" || wire.ID == "" {
		return Cursor{}, domain.NewError(domain.CodeInvalidCursor, op, "cursor is missing fields", nil)
	}
	sortValue, err := time.Parse(time.RFC3339Nano, wire.V)
	if err != nil {
		return Cursor{}, domain.NewError(domain.CodeInvalidCursor, op, "cursor sort value is not a timestamp", err)
	}
	id, err := uuid.Parse(wire.ID)
	if err != nil {
		return Cursor{}, domain.NewError(domain.CodeInvalidCursor, op, "cursor id is not a uuid", err)
	}
	return Cursor{SortValue: sortValue, ID: id}, nil
}
