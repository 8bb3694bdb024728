package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"

	"github.com/julianstephens/tipje/internal/storage"
	"github.com/julianstephens/tipje/internal/storage/storagetest"
)

func TestKeys(t *testing.T) {
	s := New("", "")
	assert.Equal(t, "tipje:doc:accounts/a", s.docKey("/accounts/a/"))
	assert.Equal(t, "tipje:col:accounts/a/kids", s.collectionKey("accounts/a/kids"))
	assert.Equal(t, "redis://tipje", s.Location())

	s = New("redis://localhost:6379/3", "custom")
	assert.Equal(t, "redis://localhost:6379/3", s.Location())
	assert.Equal(t, "custom:doc:a/b", s.docKey("a/b"))
}

func TestTranslate(t *testing.T) {
	assert.NoError(t, translate(nil))
	assert.ErrorIs(t, translate(redis.TxFailedErr), storage.ErrConflict)
	assert.ErrorIs(t, translate(errors.New("dial tcp: refused")), storage.ErrUnavailable)
	assert.ErrorIs(t, translate(context.Canceled), context.Canceled)
}

type stubHash []interface{}

func (h stubHash) HMGet(ctx context.Context, key string, fields ...string) *redis.SliceCmd {
	return redis.NewSliceResult(h, nil)
}

func TestReadDocVersion(t *testing.T) {
	s := New("", "")
	ctx := context.Background()

	snap, err := s.readDoc(ctx, stubHash{`{"n":1}`, "4"}, "a/b")
	assert.NoError(t, err)
	assert.True(t, snap.Exists)
	assert.EqualValues(t, 4, snap.Version)

	snap, err = s.readDoc(ctx, stubHash{nil, nil}, "a/b")
	assert.NoError(t, err)
	assert.False(t, snap.Exists)

	for _, v := range []string{"", "four", "99999999999999999999"} {
		_, err = s.readDoc(ctx, stubHash{`{"n":1}`, v}, "a/b")
		assert.ErrorIs(t, err, storage.ErrUnavailable, "version %q", v)
	}
}

func TestNotLoaded(t *testing.T) {
	s := New("redis://localhost:6379/0", "")
	_, err := s.Read(context.Background(), "a/b")
	assert.ErrorIs(t, err, storage.ErrNotLoaded)
}

// Set REDIS_TEST_ADDR (host:port) to run against a real server. Each test
// gets its own key prefix so runs never collide.
func TestConformance(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set, skipping Redis integration test")
	}

	n := 0
	storagetest.Run(t, func(t *testing.T) storage.Provider {
		n++
		prefix := fmt.Sprintf("tipje-test-%d-%d", os.Getpid(), n)
		s := New(fmt.Sprintf("redis://%s/15", addr), prefix)
		ctx := context.Background()
		if err := s.Init(ctx); err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		t.Cleanup(func() {
			keys, _ := s.rdb.Keys(ctx, prefix+":*").Result()
			if len(keys) > 0 {
				s.rdb.Del(ctx, keys...)
			}
			s.Close()
		})
		return s
	}, storagetest.Options{})
}
