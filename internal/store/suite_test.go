package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/models"
)

// runConversationStoreSuite checks the behavior every backend must share
func runConversationStoreSuite(t *testing.T, open func(t *testing.T) ConversationStore) {
	t.Run("append assigns ids, sequence and ordered timestamps", func(t *testing.T) {
		req := require.New(t)
		s := open(t)
		ctx := context.Background()
		scope := models.Direct("u1", "u2")

		ids := map[string]bool{}
		for i := 0; i < 5; i++ {
			msg, dup, err := s.Append(ctx, models.Draft{Scope: scope, SenderID: "u1", Content: fmt.Sprintf("m%d", i)})
			req.NoError(err)
			req.False(dup)
			req.NotEmpty(msg.ID)
			req.False(ids[msg.ID])
			ids[msg.ID] = true
			req.Equal(int64(i+1), msg.Seq)
			req.Equal("u2", msg.ReceiverID)
			req.Equal(scope.Key(), msg.ScopeKey)
		}

		history, err := s.List(ctx, scope)
		req.NoError(err)
		req.Len(history, 5)
		for i := 1; i < len(history); i++ {
			req.False(history[i].CreatedAt.Before(history[i-1].CreatedAt))
			req.Less(history[i-1].Seq, history[i].Seq)
		}
		req.Equal("m0", history[0].Content)
		req.Equal("m4", history[4].Content)
	})

	t.Run("empty scope lists as empty slice", func(t *testing.T) {
		s := open(t)
		history, err := s.List(context.Background(), models.Section("brand-new"))
		require.NoError(t, err)
		require.NotNil(t, history)
		require.Empty(t, history)
	})

	t.Run("scopes are isolated", func(t *testing.T) {
		req := require.New(t)
		s := open(t)
		ctx := context.Background()

		_, _, err := s.Append(ctx, models.Draft{Scope: models.Section("s1"), SenderID: "t1", Content: "a"})
		req.NoError(err)
		_, _, err = s.Append(ctx, models.Draft{Scope: models.Section("s10"), SenderID: "t1", Content: "b"})
		req.NoError(err)

		s1, err := s.List(ctx, models.Section("s1"))
		req.NoError(err)
		req.Len(s1, 1)
		req.Equal("a", s1[0].Content)
	})

	t.Run("ids containing key separators stay in their own scope", func(t *testing.T) {
		req := require.New(t)
		s := open(t)
		ctx := context.Background()

		_, _, err := s.Append(ctx, models.Draft{Scope: models.Section("7|B"), SenderID: "t2", Content: "for 7|B"})
		req.NoError(err)
		history, err := s.List(ctx, models.Section("7"))
		req.NoError(err)
		req.Empty(history)

		plain := models.Direct("a", "b")
		piped := models.Direct("a", "b|x")
		_, _, err = s.Append(ctx, models.Draft{Scope: plain, SenderID: "a", Content: "to b"})
		req.NoError(err)
		_, _, err = s.Append(ctx, models.Draft{Scope: piped, SenderID: "a", Content: "to b|x"})
		req.NoError(err)

		history, err = s.List(ctx, plain)
		req.NoError(err)
		req.Len(history, 1)
		req.Equal("to b", history[0].Content)

		changed, err := s.MarkSeen(ctx, plain, "b")
		req.NoError(err)
		req.Equal(1, changed)
		history, err = s.List(ctx, piped)
		req.NoError(err)
		req.Len(history, 1)
		req.False(history[0].Seen)

		// sender "t1|x" with token "y" and sender "t1" with token "x|y" are different sends
		scope := models.Section("s1")
		first, dup, err := s.Append(ctx, models.Draft{Scope: scope, SenderID: "t1|x", Content: "one", ClientID: "y"})
		req.NoError(err)
		req.False(dup)
		second, dup, err := s.Append(ctx, models.Draft{Scope: scope, SenderID: "t1", Content: "two", ClientID: "x|y"})
		req.NoError(err)
		req.False(dup)
		req.NotEqual(first.ID, second.ID)
	})

	t.Run("group mark seen counts only stored messages", func(t *testing.T) {
		req := require.New(t)
		s := open(t)
		ctx := context.Background()
		scope := models.GradeLevel("g7")

		var ids []string
		for i := 0; i < 3; i++ {
			msg, _, err := s.Append(ctx, models.Draft{Scope: scope, SenderID: "t1", Content: fmt.Sprintf("m%d", i)})
			req.NoError(err)
			ids = append(ids, msg.ID)
		}
		deleted, err := s.Delete(ctx, scope, ids[1])
		req.NoError(err)
		req.True(deleted)

		changed, err := s.MarkSeen(ctx, scope, "p1")
		req.NoError(err)
		req.Equal(2, changed)

		mark, err := s.ReadMark(ctx, scope, "p1")
		req.NoError(err)
		req.Equal(int64(3), mark)
	})

	t.Run("client id makes retries idempotent", func(t *testing.T) {
		req := require.New(t)
		s := open(t)
		ctx := context.Background()
		draft := models.Draft{Scope: models.GradeLevel("g1"), SenderID: "t1", Content: "hi", ClientID: "tok-1"}

		first, dup, err := s.Append(ctx, draft)
		req.NoError(err)
		req.False(dup)
		second, dup, err := s.Append(ctx, draft)
		req.NoError(err)
		req.True(dup)
		req.Equal(first.ID, second.ID)

		// Same token from another sender is a different send.
		other := draft
		other.SenderID = "t2"
		third, dup, err := s.Append(ctx, other)
		req.NoError(err)
		req.False(dup)
		req.NotEqual(first.ID, third.ID)

		history, err := s.List(ctx, draft.Scope)
		req.NoError(err)
		req.Len(history, 2)
	})

	t.Run("direct mark seen is idempotent and receiver scoped", func(t *testing.T) {
		req := require.New(t)
		s := open(t)
		ctx := context.Background()
		scope := models.Direct("u1", "u2")

		for _, sender := range []string{"u1", "u1", "u2"} {
			_, _, err := s.Append(ctx, models.Draft{Scope: scope, SenderID: sender, Content: "x"})
			req.NoError(err)
		}

		changed, err := s.MarkSeen(ctx, scope, "u2")
		req.NoError(err)
		req.Equal(2, changed)
		after1, err := s.List(ctx, scope)
		req.NoError(err)

		changed, err = s.MarkSeen(ctx, scope, "u2")
		req.NoError(err)
		req.Zero(changed)
		after2, err := s.List(ctx, scope)
		req.NoError(err)
		req.Equal(after1, after2)

		for _, msg := range after2 {
			req.Equal(msg.ReceiverID == "u2", msg.Seen)
		}
	})

	t.Run("group mark seen advances a watermark", func(t *testing.T) {
		req := require.New(t)
		s := open(t)
		ctx := context.Background()
		scope := models.Section("s1")

		changed, err := s.MarkSeen(ctx, scope, "p1")
		req.NoError(err)
		req.Zero(changed)

		for i := 0; i < 3; i++ {
			_, _, err := s.Append(ctx, models.Draft{Scope: scope, SenderID: "t1", Content: "x"})
			req.NoError(err)
		}
		changed, err = s.MarkSeen(ctx, scope, "p1")
		req.NoError(err)
		req.Equal(3, changed)
		changed, err = s.MarkSeen(ctx, scope, "p1")
		req.NoError(err)
		req.Zero(changed)

		mark, err := s.ReadMark(ctx, scope, "p1")
		req.NoError(err)
		req.Equal(int64(3), mark)
		mark, err = s.ReadMark(ctx, scope, "p2")
		req.NoError(err)
		req.Zero(mark)
	})

	t.Run("delete is idempotent and never renumbers", func(t *testing.T) {
		req := require.New(t)
		s := open(t)
		ctx := context.Background()
		scope := models.Section("s1")

		var ids []string
		for i := 0; i < 3; i++ {
			msg, _, err := s.Append(ctx, models.Draft{Scope: scope, SenderID: "t1", Content: fmt.Sprintf("m%d", i)})
			req.NoError(err)
			ids = append(ids, msg.ID)
		}

		deleted, err := s.Delete(ctx, scope, ids[1])
		req.NoError(err)
		req.True(deleted)
		deleted, err = s.Delete(ctx, scope, ids[1])
		req.NoError(err)
		req.False(deleted)
		deleted, err = s.Delete(ctx, models.Section("other"), ids[0])
		req.NoError(err)
		req.False(deleted)

		_, err = s.Get(ctx, scope, ids[1])
		req.ErrorIs(err, ErrNotFound)
		got, err := s.Get(ctx, scope, ids[2])
		req.NoError(err)
		req.Equal(int64(3), got.Seq)

		next, _, err := s.Append(ctx, models.Draft{Scope: scope, SenderID: "t1", Content: "m3"})
		req.NoError(err)
		req.Equal(int64(4), next.Seq)

		history, err := s.List(ctx, scope)
		req.NoError(err)
		req.Len(history, 3)
		req.Equal([]int64{1, 3, 4}, []int64{history[0].Seq, history[1].Seq, history[2].Seq})
	})

	t.Run("concurrent appends to one scope stay gapless", func(t *testing.T) {
		req := require.New(t)
		s := open(t)
		ctx := context.Background()
		scope := models.Section("busy")

		const writers = 10
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, _, err := s.Append(ctx, models.Draft{Scope: scope, SenderID: fmt.Sprintf("t%d", i), Content: "x"})
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			req.NoError(err)
		}

		history, err := s.List(ctx, scope)
		req.NoError(err)
		req.Len(history, writers)
		for i, msg := range history {
			req.Equal(int64(i+1), msg.Seq)
		}
	})

	t.Run("cancelled context persists nothing", func(t *testing.T) {
		req := require.New(t)
		s := open(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, _, err := s.Append(ctx, models.Draft{Scope: models.Section("s1"), SenderID: "t1", Content: "x"})
		req.Error(err)

		history, err := s.List(context.Background(), models.Section("s1"))
		req.NoError(err)
		req.Empty(history)
	})
}
