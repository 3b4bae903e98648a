package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/models"
)

const maxConflictRetries = 64

// BadgerStore keeps conversations in an embedded BadgerDB.
//
// Layout, where each variable segment is written as {len}:{value} so no
// id can run into the next segment:
//
//	head:{scope}                -> {seq, createdAt} of the newest message
//	msg:{scope}{seq padded 20}  -> message JSON, so a prefix scan is ordered
//	id:{messageID}              -> msg key
//	tok:{scope}{sender}{token}  -> msg key (idempotent retries)
//	mark:{scope}{user}          -> group read watermark
type BadgerStore struct {
	db  *badger.DB
	log zerolog.Logger
	now func() time.Time
}

// OpenBadger opens (or creates) a database at path. An empty path opens an
// in-memory database.
func OpenBadger(path string, log zerolog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %q: %w", path, err)
	}
	return NewBadgerStore(db, log), nil
}

func NewBadgerStore(db *badger.DB, log zerolog.Logger) *BadgerStore {
	return &BadgerStore{
		db:  db,
		log: log.With().Str("component", "badger_store").Logger(),
		now: time.Now,
	}
}

type head struct {
	Seq       int64     `json:"seq"`
	CreatedAt time.Time `json:"createdAt"`
}

// segment length-prefixes one key component
func segment(value string) string {
	return strconv.Itoa(len(value)) + ":" + value
}

func headKey(key models.ScopeKey) []byte {
	return []byte("head:" + segment(string(key)))
}

func messagePrefix(key models.ScopeKey) []byte {
	return []byte("msg:" + segment(string(key)))
}

func messageKey(key models.ScopeKey, seq int64) []byte {
	return []byte(fmt.Sprintf("msg:%s%020d", segment(string(key)), seq))
}

func idKey(messageID string) []byte {
	return []byte("id:" + messageID)
}

func tokenKey(key models.ScopeKey, senderID, clientID string) []byte {
	return []byte("tok:" + segment(string(key)) + segment(senderID) + segment(clientID))
}

func markKey(key models.ScopeKey, userID string) []byte {
	return []byte("mark:" + segment(string(key)) + segment(userID))
}

func (s *BadgerStore) Append(ctx context.Context, draft models.Draft) (*models.Message, bool, error) {
	key := draft.Scope.Key()

	var stored models.Message
	var duplicate bool
	err := s.update(ctx, func(txn *badger.Txn) error {
		duplicate = false
		if draft.ClientID != "" {
			existing, err := s.follow(txn, tokenKey(key, draft.SenderID, draft.ClientID))
			if err == nil {
				stored = *existing
				duplicate = true
				return nil
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}

		h, err := readHead(txn, key)
		if err != nil {
			return err
		}

		msg := draft.NewMessage()
		msg.ID = ulid.Make().String()
		msg.Seq = h.Seq + 1
		msg.CreatedAt = nextStamp(h.CreatedAt, s.now())

		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		mk := messageKey(key, msg.Seq)
		if err := txn.Set(mk, data); err != nil {
			return err
		}
		if err := txn.Set(idKey(msg.ID), mk); err != nil {
			return err
		}
		if msg.ClientID != "" {
			if err := txn.Set(tokenKey(key, msg.SenderID, msg.ClientID), mk); err != nil {
				return err
			}
		}
		headData, err := json.Marshal(head{Seq: msg.Seq, CreatedAt: msg.CreatedAt})
		if err != nil {
			return err
		}
		if err := txn.Set(headKey(key), headData); err != nil {
			return err
		}

		// Nothing is committed once the caller has given up.
		if err := ctx.Err(); err != nil {
			return err
		}
		stored = msg
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &stored, duplicate, nil
}

func (s *BadgerStore) List(ctx context.Context, scope models.Scope) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	messages := []models.Message{}
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(scope.Key())
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var msg models.Message
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			}); err != nil {
				return err
			}
			messages = append(messages, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *BadgerStore) Get(ctx context.Context, scope models.Scope, messageID string) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var msg *models.Message
	err := s.db.View(func(txn *badger.Txn) error {
		found, err := s.follow(txn, idKey(messageID))
		if err != nil {
			return err
		}
		msg = found
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) || (err == nil && msg.ScopeKey != scope.Key()) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *BadgerStore) MarkSeen(ctx context.Context, scope models.Scope, readerID string) (int, error) {
	if scope.IsGroup() {
		return s.advanceMark(ctx, scope, readerID)
	}

	key := scope.Key()
	var changed int
	err := s.update(ctx, func(txn *badger.Txn) error {
		changed = 0
		seenAt := s.now().UTC()

		type pending struct {
			key  []byte
			data []byte
		}
		var updates []pending

		prefix := messagePrefix(key)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var msg models.Message
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			}); err != nil {
				it.Close()
				return err
			}
			if msg.ReceiverID != readerID || msg.Seen {
				continue
			}
			msg.Seen = true
			msg.SeenAt = &seenAt
			data, err := json.Marshal(msg)
			if err != nil {
				it.Close()
				return err
			}
			updates = append(updates, pending{key: it.Item().KeyCopy(nil), data: data})
		}
		it.Close()

		for _, u := range updates {
			if err := txn.Set(u.key, u.data); err != nil {
				return err
			}
		}
		changed = len(updates)
		return ctx.Err()
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

func (s *BadgerStore) advanceMark(ctx context.Context, scope models.Scope, userID string) (int, error) {
	key := scope.Key()
	var changed int
	err := s.update(ctx, func(txn *badger.Txn) error {
		changed = 0
		h, err := readHead(txn, key)
		if err != nil {
			return err
		}
		current, err := readMark(txn, key, userID)
		if err != nil {
			return err
		}
		if h.Seq <= current {
			return nil
		}
		if err := txn.Set(markKey(key, userID), []byte(strconv.FormatInt(h.Seq, 10))); err != nil {
			return err
		}
		changed = countRange(txn, key, current+1, h.Seq)
		return ctx.Err()
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

func (s *BadgerStore) ReadMark(ctx context.Context, scope models.Scope, userID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var mark int64
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		mark, err = readMark(txn, scope.Key(), userID)
		return err
	})
	return mark, err
}

func (s *BadgerStore) Delete(ctx context.Context, scope models.Scope, messageID string) (bool, error) {
	var deleted bool
	err := s.update(ctx, func(txn *badger.Txn) error {
		deleted = false
		item, err := txn.Get(idKey(messageID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		mk, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		msg, err := readMessage(txn, mk)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return txn.Delete(idKey(messageID))
		}
		if err != nil {
			return err
		}
		if msg.ScopeKey != scope.Key() {
			return nil
		}

		if err := txn.Delete(mk); err != nil {
			return err
		}
		if err := txn.Delete(idKey(messageID)); err != nil {
			return err
		}
		if msg.ClientID != "" {
			if err := txn.Delete(tokenKey(msg.ScopeKey, msg.SenderID, msg.ClientID)); err != nil {
				return err
			}
		}
		deleted = true
		return nil
	})
	return deleted, err
}

func (s *BadgerStore) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return ErrClosed
	}
	return ctx.Err()
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// update runs fn in a read-write transaction, retrying on write conflicts
// with other transactions touching the same scope.
func (s *BadgerStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debug().Int("attempt", attempt).Msg("transaction conflict, retrying")
	}
	return badger.ErrConflict
}

// follow resolves a pointer key (id:, tok:) to the message it points at
func (s *BadgerStore) follow(txn *badger.Txn, pointer []byte) (*models.Message, error) {
	item, err := txn.Get(pointer)
	if err != nil {
		return nil, err
	}
	mk, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return readMessage(txn, mk)
}

func readMessage(txn *badger.Txn, key []byte) (*models.Message, error) {
	item, err := txn.Get(key)
	if err != nil {
		return nil, err
	}
	var msg models.Message
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &msg)
	}); err != nil {
		return nil, err
	}
	return &msg, nil
}

// countRange counts the stored messages with from <= seq <= to. Deleted
// messages leave gaps and are not counted.
func countRange(txn *badger.Txn, key models.ScopeKey, from, to int64) int {
	prefix := messagePrefix(key)
	last := messageKey(key, to)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	n := 0
	for it.Seek(messageKey(key, from)); it.ValidForPrefix(prefix); it.Next() {
		if bytes.Compare(it.Item().Key(), last) > 0 {
			break
		}
		n++
	}
	return n
}

func readHead(txn *badger.Txn, key models.ScopeKey) (head, error) {
	var h head
	item, err := txn.Get(headKey(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return h, nil
	}
	if err != nil {
		return h, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &h)
	})
	return h, err
}

func readMark(txn *badger.Txn, key models.ScopeKey, userID string) (int64, error) {
	item, err := txn.Get(markKey(key, userID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var mark int64
	err = item.Value(func(val []byte) error {
		var perr error
		mark, perr = strconv.ParseInt(string(val), 10, 64)
		return perr
	})
	return mark, err
}
