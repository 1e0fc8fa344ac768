package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"autoreply/internal/domain/email"
	_ "modernc.org/sqlite"
)

// ReplyRepository is the ledger of auto-replies sent.
type ReplyRepository struct {
	db *sql.DB
}

func NewReplyRepository(dbPath string) (*ReplyRepository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	schema := `
CREATE TABLE IF NOT EXISTS replies (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    recipient TEXT NOT NULL,
    thread_id TEXT,
    source_message_id TEXT,
    sent_message_id TEXT UNIQUE NOT NULL,
    label_id TEXT,
    labeled INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER
);
CREATE INDEX IF NOT EXISTS replies_recipient ON replies(recipient);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &ReplyRepository{db: db}, nil
}

func (r *ReplyRepository) Save(ctx context.Context, rec *email.ReplyRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO replies
         (recipient, thread_id, source_message_id, sent_message_id, label_id, labeled, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Recipient, rec.ThreadID, rec.SourceMessageID, rec.SentMessageID,
		rec.LabelID, rec.Labeled, rec.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("save reply: %w", err)
	}

	return nil
}

func (r *ReplyRepository) HasRepliedTo(ctx context.Context, recipient string) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM replies WHERE recipient = ? LIMIT 1`,
		recipient,
	).Scan(&exists)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check replied: %w", err)
	}

	return true, nil
}

// getBySentID returns the record of the reply with the given sent message id.
func (r *ReplyRepository) getBySentID(ctx context.Context, sentID string) (*email.ReplyRecord, error) {
	var rec email.ReplyRecord
	var createdAt int64

	err := r.db.QueryRowContext(ctx,
		`SELECT recipient, thread_id, source_message_id, sent_message_id, label_id, labeled, created_at
		 FROM replies WHERE sent_message_id = ?`,
		sentID,
	).Scan(&rec.Recipient, &rec.ThreadID, &rec.SourceMessageID, &rec.SentMessageID,
		&rec.LabelID, &rec.Labeled, &createdAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("reply not found: %s", sentID)
	}
	if err != nil {
		return nil, fmt.Errorf("query reply: %w", err)
	}

	rec.CreatedAt = time.Unix(createdAt, 0)
	return &rec, nil
}

func (r *ReplyRepository) CountReplies(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM replies`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count replies: %w", err)
	}
	return n, nil
}

func (r *ReplyRepository) Close() error {
	return r.db.Close()
}
