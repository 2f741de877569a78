package dlock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/harvest/testkit"
	"github.com/ceyewan/harvest/xerrors"
)

// lockerSuite 两种驱动共用的行为
func lockerSuite(t *testing.T, newLocker func(t *testing.T) Locker) {
	t.Run("try lock is exclusive", func(t *testing.T) {
		l := newLocker(t)
		ctx := context.Background()
		key := "source:" + testkit.NewID()

		ok, err := l.TryLock(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = l.TryLock(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, l.Unlock(ctx, key))
		ok, err = l.TryLock(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok)
		require.NoError(t, l.Unlock(ctx, key))
	})

	t.Run("unlock without holding", func(t *testing.T) {
		l := newLocker(t)
		err := l.Unlock(context.Background(), "never-locked")
		assert.ErrorIs(t, err, ErrLockNotHeld)
	})

	t.Run("lock waits for release", func(t *testing.T) {
		l := newLocker(t)
		ctx := context.Background()
		key := "source:" + testkit.NewID()

		ok, err := l.TryLock(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)

		go func() {
			time.Sleep(50 * time.Millisecond)
			_ = l.Unlock(ctx, key)
		}()

		wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		require.NoError(t, l.Lock(wctx, key))
		require.NoError(t, l.Unlock(ctx, key))
	})

	t.Run("lock honours context", func(t *testing.T) {
		l := newLocker(t)
		ctx := context.Background()
		key := "source:" + testkit.NewID()

		ok, err := l.TryLock(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)
		defer l.Unlock(ctx, key)

		wctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, l.Lock(wctx, key), context.DeadlineExceeded)
	})

	t.Run("concurrent try lock admits one", func(t *testing.T) {
		l := newLocker(t)
		ctx := context.Background()
		key := "source:" + testkit.NewID()

		var winners atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := l.TryLock(ctx, key)
				assert.NoError(t, err)
				if ok {
					winners.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.EqualValues(t, 1, winners.Load())
		require.NoError(t, l.Unlock(ctx, key))
	})

	t.Run("empty key", func(t *testing.T) {
		l := newLocker(t)
		_, err := l.TryLock(context.Background(), "")
		assert.ErrorIs(t, err, ErrKeyEmpty)
	})
}

func TestLocalLocker(t *testing.T) {
	lockerSuite(t, func(t *testing.T) Locker {
		l, err := New(&Config{Driver: DriverLocal, RetryInterval: 10 * time.Millisecond},
			WithLogger(testkit.NewLogger()), WithMeter(testkit.NewMeter(t)))
		require.NoError(t, err)
		return l
	})
}

func TestRedisLocker(t *testing.T) {
	conn := testkit.NewRedisConnector(t)
	prefix := "test:" + testkit.NewID() + ":"

	lockerSuite(t, func(t *testing.T) Locker {
		l, err := New(&Config{Driver: DriverRedis, Prefix: prefix, RetryInterval: 10 * time.Millisecond},
			WithRedisConnector(conn), WithLogger(testkit.NewLogger()))
		require.NoError(t, err)
		t.Cleanup(func() { _ = l.Close() })
		return l
	})

	t.Run("instances exclude each other", func(t *testing.T) {
		ctx := context.Background()
		a, err := New(&Config{Driver: DriverRedis, Prefix: prefix}, WithRedisConnector(conn))
		require.NoError(t, err)
		b, err := New(&Config{Driver: DriverRedis, Prefix: prefix}, WithRedisConnector(conn))
		require.NoError(t, err)

		ok, err := a.TryLock(ctx, "shared")
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = b.TryLock(ctx, "shared")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.ErrorIs(t, b.Unlock(ctx, "shared"), ErrLockNotHeld)

		require.NoError(t, a.Unlock(ctx, "shared"))
		ok, err = b.TryLock(ctx, "shared")
		require.NoError(t, err)
		assert.True(t, ok)
		require.NoError(t, b.Unlock(ctx, "shared"))
	})

	t.Run("watchdog keeps short ttl alive", func(t *testing.T) {
		ctx := context.Background()
		a, err := New(&Config{Driver: DriverRedis, Prefix: prefix}, WithRedisConnector(conn))
		require.NoError(t, err)
		b, err := New(&Config{Driver: DriverRedis, Prefix: prefix}, WithRedisConnector(conn))
		require.NoError(t, err)

		ok, err := a.TryLock(ctx, "renewed", WithTTL(300*time.Millisecond))
		require.NoError(t, err)
		require.True(t, ok)

		time.Sleep(time.Second)
		ok, err = b.TryLock(ctx, "renewed")
		require.NoError(t, err)
		assert.False(t, ok, "lock must still be held after several ttl periods")
		require.NoError(t, a.Unlock(ctx, "renewed"))
	})
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrConfigNil)

	_, err = New(&Config{Driver: "etcd"})
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)

	_, err = New(&Config{Driver: DriverRedis})
	assert.ErrorIs(t, err, ErrConnectorNil)
}
