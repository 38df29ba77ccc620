// Package history keeps an optional SQLite transcript of answered
// conversation requests, so a later run can reply to the last message.
package history

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/google/uuid"

	"github.com/comigor/convo-go/internal/logger"
)

// ErrNotFound is returned by Last when a conversation has no recorded exchange.
var ErrNotFound = errors.New("no recorded exchange")

// Store is a SQLite-backed transcript.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the transcript database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(10000)")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS exchanges (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        id TEXT NOT NULL UNIQUE,
        conversation_id TEXT NOT NULL,
        parent_message_id TEXT,
        message_id TEXT NOT NULL,
        message TEXT,
        response TEXT,
        created_at DATETIME
    );`); err != nil {
		db.Close()
		return nil, err
	}
	logger.L.Debug("sqlite history DB initialized", "path", path)
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record persists ex. ID and CreatedAt are filled in when empty.
func (s *Store) Record(ctx context.Context, ex Exchange) (Exchange, error) {
	if ex.ID == "" {
		ex.ID = uuid.NewString()
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exchanges (id, conversation_id, parent_message_id, message_id, message, response, created_at) VALUES (?,?,?,?,?,?,?);`,
		ex.ID, ex.ConversationID, ex.ParentMessageID, ex.MessageID, ex.Message, ex.Response, ex.CreatedAt)
	if err != nil {
		return Exchange{}, err
	}
	return ex, nil
}

// Last returns the most recent exchange of a conversation.
func (s *Store) Last(ctx context.Context, conversationID string) (Exchange, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, conversation_id, parent_message_id, message_id, message, response, created_at FROM exchanges WHERE conversation_id = ? ORDER BY seq DESC LIMIT 1;`,
		conversationID)
	ex, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Exchange{}, ErrNotFound
	}
	return ex, err
}

// List returns the exchanges of a conversation in chronological order, or
// every exchange when conversationID is empty.
func (s *Store) List(ctx context.Context, conversationID string) ([]Exchange, error) {
	query := `SELECT id, conversation_id, parent_message_id, message_id, message, response, created_at FROM exchanges`
	var args []any
	if conversationID != "" {
		query += ` WHERE conversation_id = ?`
		args = append(args, conversationID)
	}
	query += ` ORDER BY seq ASC;`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Exchange
	for rows.Next() {
		ex, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(r scanner) (Exchange, error) {
	var (
		ex     Exchange
		parent sql.NullString
	)
	if err := r.Scan(&ex.ID, &ex.ConversationID, &parent, &ex.MessageID, &ex.Message, &ex.Response, &ex.CreatedAt); err != nil {
		return Exchange{}, err
	}
	ex.ParentMessageID = parent.String
	return ex, nil
}
