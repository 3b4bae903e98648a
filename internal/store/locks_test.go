package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/models"
)

func TestScopeLocks_SerializesSameScope(t *testing.T) {
	req := require.New(t)
	locks := NewScopeLocks()
	key := models.Section("s1").Key()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locks.Acquire(context.Background(), key)
			if err != nil {
				t.Error(err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()

	req.Equal(int32(1), maxInside)
	req.Zero(locks.Len())
}

func TestScopeLocks_UnrelatedScopesDoNotBlock(t *testing.T) {
	req := require.New(t)
	locks := NewScopeLocks()

	release, err := locks.Acquire(context.Background(), models.Section("s1").Key())
	req.NoError(err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	other, err := locks.Acquire(ctx, models.Section("s2").Key())
	req.NoError(err)
	other()
}

func TestScopeLocks_AcquireHonorsContext(t *testing.T) {
	req := require.New(t)
	locks := NewScopeLocks()
	key := models.GradeLevel("g1").Key()

	release, err := locks.Acquire(context.Background(), key)
	req.NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locks.Acquire(ctx, key)
	req.ErrorIs(err, context.DeadlineExceeded)

	release()
	release()
	req.Zero(locks.Len())
}
