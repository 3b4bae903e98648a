// Package chat validates, persists and fans out chat messages, and serves
// conversation history.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/metrics"
	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/models"
	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/relations"
	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/store"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

const DefaultPersistTimeout = 5 * time.Second

// Broadcaster fans events out to the live members of a scope. Calls must not
// block on slow connections.
type Broadcaster interface {
	Publish(msg *models.Message)
	NotifySeen(scope models.Scope, readerID string, count int, seenAt time.Time)
	NotifyDeleted(scope models.Scope, messageID string)
}

// SendRequest is one send as received from a client. The sender is the
// authenticated member, never a field of the request.
type SendRequest struct {
	Scope       models.Scope
	Content     string   `validate:"max=4000"`
	Attachments []string `validate:"max=10,dive,required,url"`
	ClientID    string   `validate:"omitempty,max=64"`
}

// SendResult is a persisted message. Duplicate is set when ClientID matched
// an earlier send; such results are confirmed to the sender only.
type SendResult struct {
	Message   *models.Message
	Duplicate bool
}

// Dispatcher runs the send, mark-seen and delete paths. Writes to one scope
// are serialized and broadcast in persisted order; different scopes proceed
// in parallel.
type Dispatcher struct {
	store          store.ConversationStore
	locks          *store.ScopeLocks
	broadcaster    Broadcaster
	limiter        RateLimiter
	validate       *validator.Validate
	persistTimeout time.Duration
	now            func() time.Time
	log            zerolog.Logger
}

// NewDispatcher wires a dispatcher. limiter may be nil.
func NewDispatcher(st store.ConversationStore, broadcaster Broadcaster, limiter RateLimiter, persistTimeout time.Duration, log zerolog.Logger) *Dispatcher {
	if persistTimeout <= 0 {
		persistTimeout = DefaultPersistTimeout
	}
	return &Dispatcher{
		store:          st,
		locks:          store.NewScopeLocks(),
		broadcaster:    broadcaster,
		limiter:        limiter,
		validate:       validator.New(),
		persistTimeout: persistTimeout,
		now:            time.Now,
		log:            log.With().Str("component", "dispatcher").Logger(),
	}
}

// authorize checks membership before shape so that outsiders learn nothing
// about a scope
func authorize(member *relations.Membership, scope models.Scope) error {
	if !member.Allows(scope) {
		return ErrUnauthorizedScope
	}
	if err := scope.Validate(); err != nil {
		return ErrMalformedScope
	}
	return nil
}

// Send validates a request, persists it and broadcasts the stored message to
// every live member of the scope, the sender included. Nothing is broadcast
// for a failed send.
func (d *Dispatcher) Send(ctx context.Context, member *relations.Membership, req SendRequest) (*SendResult, error) {
	res, err := d.send(ctx, member, req)
	if err != nil {
		metrics.SendFailures.WithLabelValues(Code(err)).Inc()
		ev := d.log.Warn()
		if Code(err) == CodeInternal {
			ev = d.log.Error()
		}
		ev.Err(err).
			Str("scope", req.Scope.String()).
			Str("client_id", req.ClientID).
			Str("user_id", memberID(member)).
			Msg("send rejected")
		return nil, err
	}
	return res, nil
}

func (d *Dispatcher) send(ctx context.Context, member *relations.Membership, req SendRequest) (*SendResult, error) {
	if strings.TrimSpace(req.Content) == "" && len(req.Attachments) == 0 {
		return nil, ErrEmptyMessage
	}
	if err := authorize(member, req.Scope); err != nil {
		return nil, err
	}
	if err := d.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	if d.limiter != nil {
		allowed, err := d.limiter.Allow(ctx, member.UserID)
		if err != nil {
			// Limiter errors fail open
			d.log.Warn().Err(err).Str("user_id", member.UserID).Msg("rate limiter unavailable")
		} else if !allowed {
			return nil, ErrRateLimited
		}
	}

	ctx, cancel := context.WithTimeout(ctx, d.persistTimeout)
	defer cancel()

	start := time.Now()
	release, err := d.locks.Acquire(ctx, req.Scope.Key())
	if err != nil {
		return nil, persistError(err)
	}
	defer release()

	msg, duplicate, err := d.store.Append(ctx, models.Draft{
		Scope:       req.Scope,
		SenderID:    member.UserID,
		Content:     req.Content,
		Attachments: req.Attachments,
		ClientID:    req.ClientID,
	})
	if err != nil {
		return nil, persistError(err)
	}
	metrics.PersistDuration.Observe(time.Since(start).Seconds())

	if duplicate {
		d.log.Debug().
			Str("scope", req.Scope.String()).
			Str("client_id", req.ClientID).
			Str("message_id", msg.ID).
			Msg("duplicate send, returning stored message")
		return &SendResult{Message: msg, Duplicate: true}, nil
	}

	metrics.MessagesPersisted.WithLabelValues(string(req.Scope.Type)).Inc()

	// Still holding the scope lock, so broadcasts leave in persisted order
	d.broadcaster.Publish(msg)

	return &SendResult{Message: msg}, nil
}

// MarkSeen marks every unseen message addressed to the member in a direct
// scope as seen, or advances the member's read watermark in a group scope.
// Repeating it changes nothing. It returns how many messages changed.
func (d *Dispatcher) MarkSeen(ctx context.Context, member *relations.Membership, scope models.Scope) (int, error) {
	if err := authorize(member, scope); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, d.persistTimeout)
	defer cancel()

	count, err := d.store.MarkSeen(ctx, scope, member.UserID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, fmt.Errorf("%w: %v", ErrPersistenceTimeout, err)
		}
		d.log.Error().Err(err).Str("scope", scope.String()).Str("user_id", member.UserID).Msg("mark seen failed")
		return 0, fmt.Errorf("%w: %v", ErrSeenFailed, err)
	}

	if count > 0 && scope.Type == models.ScopeDirect {
		d.broadcaster.NotifySeen(scope, member.UserID, count, d.now().UTC())
	}
	return count, nil
}

// Delete removes one of the member's own messages from a scope. Deleting a
// message that is already gone reports false without error. Sequence numbers
// of the remaining messages are untouched.
func (d *Dispatcher) Delete(ctx context.Context, member *relations.Membership, scope models.Scope, messageID string) (bool, error) {
	if err := authorize(member, scope); err != nil {
		return false, err
	}
	if strings.TrimSpace(messageID) == "" {
		return false, fmt.Errorf("%w: message id is required", ErrInvalidMessage)
	}

	ctx, cancel := context.WithTimeout(ctx, d.persistTimeout)
	defer cancel()

	release, err := d.locks.Acquire(ctx, scope.Key())
	if err != nil {
		return false, persistError(err)
	}
	defer release()

	msg, err := d.store.Get(ctx, scope, messageID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, persistError(err)
	}
	if msg.SenderID != member.UserID {
		return false, fmt.Errorf("%w: only the sender may delete a message", ErrUnauthorizedScope)
	}

	deleted, err := d.store.Delete(ctx, scope, messageID)
	if err != nil {
		return false, persistError(err)
	}
	if deleted {
		d.log.Info().Str("scope", scope.String()).Str("message_id", messageID).Msg("message deleted")
		d.broadcaster.NotifyDeleted(scope, messageID)
	}
	return deleted, nil
}

func persistError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrPersistenceTimeout, err)
	}
	return fmt.Errorf("failed to persist message: %w", err)
}

func memberID(member *relations.Membership) string {
	if member == nil {
		return ""
	}
	return member.UserID
}
