// Package journal records handled callbacks so a redelivered callback can be
// recognised. Only outcome metadata is stored, never keys or ciphertext.
package journal

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// timeLayout sorts lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrDuplicate is returned by Record when the digest was already recorded.
var ErrDuplicate = errors.New("callback already handled")

// Entry is one handled callback.
type Entry struct {
	ID          string
	Digest      string
	Kind        string
	AuthRequest string
	UserHash    string
	// Authorized is nil for logout callbacks.
	Authorized *bool
	ReceivedAt time.Time
}

// Journal persists entries in the callback_log table.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Journal {
	return &Journal{db: db, now: time.Now}
}

// Digest returns the hex BLAKE3 digest of payload. Keys are sorted and every
// key and value is length-prefixed, so the digest does not depend on map
// order and distinct payloads cannot collide by concatenation.
func Digest(payload map[string]string) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := blake3.New()
	var n [8]byte
	write := func(s string) {
		binary.BigEndian.PutUint64(n[:], uint64(len(s)))
		_, _ = h.Write(n[:])
		_, _ = h.Write([]byte(s))
	}
	for _, k := range keys {
		write(k)
		write(payload[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Record inserts e and returns its id. ReceivedAt defaults to now.
func (j *Journal) Record(ctx context.Context, e Entry) (string, error) {
	if e.Digest == "" {
		return "", fmt.Errorf("digest is empty")
	}
	if e.Kind == "" {
		return "", fmt.Errorf("kind is empty")
	}

	id := uuid.NewString()
	received := e.ReceivedAt
	if received.IsZero() {
		received = j.now()
	}

	var authorized any
	if e.Authorized != nil {
		authorized = *e.Authorized
	}

	res, err := j.db.ExecContext(ctx, `
INSERT INTO callback_log(id, digest, kind, auth_request, user_hash, authorized, received_at)
VALUES(?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(digest) DO NOTHING;
`, id, e.Digest, e.Kind, nullable(e.AuthRequest), nullable(e.UserHash), authorized,
		received.UTC().Format(timeLayout))
	if err != nil {
		return "", fmt.Errorf("record callback: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("record callback: %w", err)
	}
	if n == 0 {
		return "", ErrDuplicate
	}
	return id, nil
}

// Seen reports whether digest has been recorded.
func (j *Journal) Seen(ctx context.Context, digest string) (bool, error) {
	var one int
	err := j.db.QueryRowContext(ctx, `SELECT 1 FROM callback_log WHERE digest = ?;`, digest).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup callback: %w", err)
	}
	return true, nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT id, digest, kind, auth_request, user_hash, authorized, received_at
FROM callback_log
ORDER BY received_at DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list callbacks: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e           Entry
			authRequest sql.NullString
			userHash    sql.NullString
			authorized  sql.NullBool
			receivedAt  string
		)
		if err := rows.Scan(&e.ID, &e.Digest, &e.Kind, &authRequest, &userHash, &authorized, &receivedAt); err != nil {
			return nil, fmt.Errorf("scan callback: %w", err)
		}
		e.AuthRequest = authRequest.String
		e.UserHash = userHash.String
		if authorized.Valid {
			v := authorized.Bool
			e.Authorized = &v
		}
		t, err := time.Parse(time.RFC3339Nano, receivedAt)
		if err != nil {
			return nil, fmt.Errorf("parse received_at %q: %w", receivedAt, err)
		}
		e.ReceivedAt = t
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list callbacks: %w", err)
	}
	return out, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
