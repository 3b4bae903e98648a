package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/models"
)

// PostgresStore keeps conversations in PostgreSQL. The chat_scopes row of a
// scope is locked FOR UPDATE while a message is appended, which serializes
// writers per scope without a table-wide lock.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
	now  func() time.Time
}

func NewPostgresStore(pool *pgxpool.Pool, log zerolog.Logger) *PostgresStore {
	return &PostgresStore{
		pool: pool,
		log:  log.With().Str("component", "postgres_store").Logger(),
		now:  time.Now,
	}
}

const messageColumns = `
	id, scope_type, scope_key, COALESCE(scope_id, ''), seq, sender_id, COALESCE(receiver_id, ''),
	content, attachments, seen, seen_at, COALESCE(client_id, ''), created_at`

func scanMessage(row pgx.Row) (*models.Message, error) {
	var msg models.Message
	var scopeType, scopeKey string
	err := row.Scan(
		&msg.ID, &scopeType, &scopeKey, &msg.ScopeID, &msg.Seq, &msg.SenderID, &msg.ReceiverID,
		&msg.Content, &msg.Attachments, &msg.Seen, &msg.SeenAt, &msg.ClientID, &msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	msg.ScopeType = models.ScopeType(scopeType)
	msg.ScopeKey = models.ScopeKey(scopeKey)
	if msg.Attachments == nil {
		msg.Attachments = []string{}
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	return &msg, nil
}

func (s *PostgresStore) Append(ctx context.Context, draft models.Draft) (*models.Message, bool, error) {
	key := string(draft.Scope.Key())

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO chat_scopes (scope_key) VALUES ($1)
		ON CONFLICT (scope_key) DO NOTHING
	`, key); err != nil {
		return nil, false, fmt.Errorf("failed to ensure scope row: %w", err)
	}

	var lastSeq int64
	var lastAt time.Time
	if err := tx.QueryRow(ctx, `
		SELECT last_seq, last_created_at FROM chat_scopes WHERE scope_key = $1 FOR UPDATE
	`, key).Scan(&lastSeq, &lastAt); err != nil {
		return nil, false, fmt.Errorf("failed to lock scope: %w", err)
	}

	// Checked under the scope lock so two racing retries cannot both insert.
	if draft.ClientID != "" {
		existing, err := scanMessage(tx.QueryRow(ctx, `SELECT `+messageColumns+`
			FROM chat_messages WHERE scope_key = $1 AND sender_id = $2 AND client_id = $3
		`, key, draft.SenderID, draft.ClientID))
		if err == nil {
			return existing, true, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, false, err
		}
	}

	msg := draft.NewMessage()
	msg.ID = ulid.Make().String()
	msg.Seq = lastSeq + 1
	msg.CreatedAt = nextStamp(lastAt.UTC(), s.now())

	if _, err := tx.Exec(ctx, `
		INSERT INTO chat_messages (id, scope_type, scope_key, scope_id, seq, sender_id, receiver_id,
			content, attachments, client_id, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, ''), $8, $9, NULLIF($10, ''), $11)
	`, msg.ID, string(msg.ScopeType), key, msg.ScopeID, msg.Seq, msg.SenderID, msg.ReceiverID,
		msg.Content, msg.Attachments, msg.ClientID, msg.CreatedAt); err != nil {
		return nil, false, fmt.Errorf("failed to insert message: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE chat_scopes SET last_seq = $2, last_created_at = $3 WHERE scope_key = $1
	`, key, msg.Seq, msg.CreatedAt); err != nil {
		return nil, false, fmt.Errorf("failed to advance scope: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return &msg, false, nil
}

func (s *PostgresStore) List(ctx context.Context, scope models.Scope) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+messageColumns+`
		FROM chat_messages
		WHERE scope_key = $1
		ORDER BY created_at ASC, seq ASC
	`, string(scope.Key()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

func (s *PostgresStore) Get(ctx context.Context, scope models.Scope, messageID string) (*models.Message, error) {
	msg, err := scanMessage(s.pool.QueryRow(ctx, `SELECT `+messageColumns+`
		FROM chat_messages WHERE id = $1 AND scope_key = $2
	`, messageID, string(scope.Key())))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return msg, err
}

func (s *PostgresStore) MarkSeen(ctx context.Context, scope models.Scope, readerID string) (int, error) {
	if scope.IsGroup() {
		return s.advanceMark(ctx, scope, readerID)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE chat_messages SET seen = TRUE, seen_at = $3
		WHERE scope_key = $1 AND receiver_id = $2 AND seen = FALSE
	`, string(scope.Key()), readerID, s.now().UTC())
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) advanceMark(ctx context.Context, scope models.Scope, userID string) (int, error) {
	key := string(scope.Key())

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var headSeq int64
	err = tx.QueryRow(ctx, `SELECT last_seq FROM chat_scopes WHERE scope_key = $1`, key).Scan(&headSeq)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var current int64
	err = tx.QueryRow(ctx, `
		SELECT last_seq FROM chat_read_marks WHERE scope_key = $1 AND user_id = $2 FOR UPDATE
	`, key, userID).Scan(&current)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}
	if headSeq <= current {
		return 0, nil
	}

	var surviving int
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM chat_messages WHERE scope_key = $1 AND seq > $2 AND seq <= $3
	`, key, current, headSeq).Scan(&surviving); err != nil {
		return 0, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO chat_read_marks (scope_key, user_id, last_seq, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (scope_key, user_id)
		DO UPDATE SET last_seq = GREATEST(chat_read_marks.last_seq, EXCLUDED.last_seq), updated_at = EXCLUDED.updated_at
	`, key, userID, headSeq, s.now().UTC()); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return surviving, nil
}

func (s *PostgresStore) ReadMark(ctx context.Context, scope models.Scope, userID string) (int64, error) {
	var mark int64
	err := s.pool.QueryRow(ctx, `
		SELECT last_seq FROM chat_read_marks WHERE scope_key = $1 AND user_id = $2
	`, string(scope.Key()), userID).Scan(&mark)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return mark, err
}

func (s *PostgresStore) Delete(ctx context.Context, scope models.Scope, messageID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM chat_messages WHERE id = $1 AND scope_key = $2
	`, messageID, string(scope.Key()))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close is a no-op: the pool is owned by whoever opened it
func (s *PostgresStore) Close() error {
	return nil
}
