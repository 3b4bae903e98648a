package store

import (
	"context"
	"errors"
	"time"

	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/models"
)

var (
	ErrNotFound = errors.New("message not found")
	ErrClosed   = errors.New("store is closed")
)

// ConversationStore is the single writer of message records and seen-state.
// Implementations assign ID, Seq and CreatedAt on Append; within a scope Seq
// is gapless at write time and CreatedAt never decreases.
type ConversationStore interface {
	// Append persists a draft. When the draft carries a ClientID already
	// stored for the same sender and scope, the stored message is returned
	// with duplicate set and nothing is written.
	Append(ctx context.Context, draft models.Draft) (msg *models.Message, duplicate bool, err error)

	// List returns every message of the scope in ascending (CreatedAt, Seq) order.
	List(ctx context.Context, scope models.Scope) ([]models.Message, error)

	// Get returns one message of the scope, or ErrNotFound.
	Get(ctx context.Context, scope models.Scope, messageID string) (*models.Message, error)

	// MarkSeen flips unseen direct messages addressed to readerID, or advances
	// readerID's read watermark in a group scope. It returns how many messages
	// changed state.
	MarkSeen(ctx context.Context, scope models.Scope, readerID string) (int, error)

	// ReadMark returns userID's read watermark (highest seen Seq) in a group scope.
	ReadMark(ctx context.Context, scope models.Scope, userID string) (int64, error)

	// Delete removes one record. Missing records are not an error.
	Delete(ctx context.Context, scope models.Scope, messageID string) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}

// nextStamp returns a creation time that is not before the previous one in
// the same scope, truncated to the precision both backends keep.
func nextStamp(last, now time.Time) time.Time {
	now = now.UTC().Truncate(time.Microsecond)
	if now.Before(last) {
		return last
	}
	return now
}
