package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"

	tferrors "github.com/felixgeelhaar/tradeflow/internal/errors"
)

// SQLiteStore keeps messages in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS chat_messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		plan_id TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		metadata TEXT
	);`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_user ON chat_messages (user_id, created_at);`,
}

// NewSQLiteStore opens dsn and creates the schema if needed.
// ":memory:" gives a private in-memory database.
func NewSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, tferrors.Wrap(tferrors.ErrCodeChatStore, "open chat database", err)
	}
	// One connection keeps ":memory:" databases shared and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, q := range schema {
		if _, err := db.ExecContext(ctx, q); err != nil {
			_ = db.Close()
			return nil, tferrors.Wrap(tferrors.ErrCodeChatStore, "create chat schema", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, msg *Message) error {
	var metadata sql.NullString
	if len(msg.Metadata) > 0 {
		raw, err := json.Marshal(msg.Metadata)
		if err != nil {
			return tferrors.Wrap(tferrors.ErrCodeChatStore, "encode message metadata", err)
		}
		metadata = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (id, user_id, plan_id, type, content, created_at, metadata) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.UserID, msg.PlanID, string(msg.Type), msg.Content, msg.Timestamp.UnixNano(), metadata,
	)
	if err != nil {
		return tferrors.Wrap(tferrors.ErrCodeChatStore, "insert chat message", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, q Query) ([]Message, error) {
	q = q.normalize()

	query := `SELECT id, user_id, plan_id, type, content, created_at, metadata FROM chat_messages WHERE user_id = ?`
	args := []any{q.UserID}
	if q.PlanID != "" {
		query += ` AND plan_id = ?`
		args = append(args, q.PlanID)
	}
	query += ` ORDER BY created_at DESC, seq DESC LIMIT ? OFFSET ?`
	args = append(args, q.Limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, tferrors.Wrap(tferrors.ErrCodeChatStore, "query chat messages", err)
	}
	defer rows.Close()

	out := make([]Message, 0)
	for rows.Next() {
		var (
			m        Message
			typ      string
			nanos    int64
			metadata sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.PlanID, &typ, &m.Content, &nanos, &metadata); err != nil {
			return nil, tferrors.Wrap(tferrors.ErrCodeChatStore, "scan chat message", err)
		}
		m.Type = MessageType(typ)
		m.Timestamp = time.Unix(0, nanos).UTC()
		if metadata.Valid {
			if err := json.Unmarshal([]byte(metadata.String), &m.Metadata); err != nil {
				return nil, tferrors.Wrap(tferrors.ErrCodeChatStore, fmt.Sprintf("decode metadata of %s", m.ID), err)
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, tferrors.Wrap(tferrors.ErrCodeChatStore, "iterate chat messages", err)
	}
	return out, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_messages WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return tferrors.Wrap(tferrors.ErrCodeChatStore, "delete chat message", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return tferrors.Wrap(tferrors.ErrCodeChatStore, "delete chat message", err)
	}
	if n == 0 {
		return newMessageNotFoundError(id)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
