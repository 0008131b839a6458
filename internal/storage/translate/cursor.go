package translate

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Cursor is the decoded keyset position: the (timestamp, id) of the last
// row of the previous page.
type Cursor struct {
	Timestamp time.Time
	ID        uuid.UUID
}

// EncodeCursor produces the wire cursor: base64 of
// "<RFC 3339 nanosecond timestamp>,<row id>". The format is returned to
// external HTTP clients and re-submitted across the service boundary, so
// it must stay stable bit for bit.
func EncodeCursor(ts time.Time, id uuid.UUID) string {
	raw := ts.UTC().Format(time.RFC3339Nano) + "," + id.String()
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a wire cursor. Any malformed input yields ok=false
// and is treated as "no cursor" by the translators: pagination state is
// cosmetic and fails open, unlike filters, which fail closed.
func DecodeCursor(s string) (Cursor, bool) {
	if s == "" {
		return Cursor{}, false
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, false
	}
	tsPart, idPart, found := strings.Cut(string(raw), ",")
	if !found {
		return Cursor{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, tsPart)
	if err != nil {
		return Cursor{}, false
	}
	id, err := uuid.Parse(idPart)
	if err != nil {
		return Cursor{}, false
	}
	return Cursor{Timestamp: ts, ID: id}, true
}
