package chat

import (
	"context"
	"fmt"

	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/models"
	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/relations"
	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/store"
	"github.com/rs/zerolog"
)

// History serves the full persisted message list of a scope
type History struct {
	store store.ConversationStore
	log   zerolog.Logger
}

func NewHistory(st store.ConversationStore, log zerolog.Logger) *History {
	return &History{
		store: st,
		log:   log.With().Str("component", "history").Logger(),
	}
}

// Fetch returns every message of the scope in ascending (createdAt, seq)
// order. The result is never nil. In group scopes Seen is computed for the
// requester: their own messages and everything up to their read watermark.
func (h *History) Fetch(ctx context.Context, member *relations.Membership, scope models.Scope) ([]models.Message, error) {
	if err := authorize(member, scope); err != nil {
		return nil, err
	}

	messages, err := h.store.List(ctx, scope)
	if err != nil {
		h.log.Error().Err(err).Str("scope", scope.String()).Msg("history fetch failed")
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	if messages == nil {
		messages = []models.Message{}
	}

	if scope.IsGroup() {
		mark, err := h.store.ReadMark(ctx, scope, member.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to load read mark: %w", err)
		}
		for i := range messages {
			messages[i].Seen = messages[i].SenderID == member.UserID || messages[i].Seq <= mark
		}
	}

	return messages, nil
}
