package local

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"

	"ghusers/internal/errors"
	"ghusers/internal/vcs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *Store {
	db, err := OpenDB("", true)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := New(db, Options{})
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background(), "main"))
	return s
}

func b64(s string) []byte {
	return []byte(base64.StdEncoding.EncodeToString([]byte(s)))
}

func TestStoreRefs(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	base, err := s.GetRef(ctx, "main")
	require.NoError(t, err)
	assert.NotEmpty(t, base)

	// Init is idempotent
	require.NoError(t, s.Init(ctx, "main"))
	again, err := s.GetRef(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, base, again)

	_, err = s.GetRef(ctx, "missing")
	assert.True(t, errors.Is(err, errors.ErrorTypeRefNotFound))

	require.NoError(t, s.CreateRef(ctx, "txn-1", base))
	err = s.CreateRef(ctx, "txn-1", base)
	assert.True(t, errors.Is(err, errors.ErrorTypeRefConflict))

	err = s.CreateRef(ctx, "txn-2", "no-such-commit")
	assert.True(t, errors.Is(err, errors.ErrorTypeRefNotFound))

	refs, err := s.Refs()
	require.NoError(t, err)
	assert.Equal(t, []string{"main", "txn-1"}, refs)

	require.NoError(t, s.DeleteRef(ctx, "txn-1"))
	require.NoError(t, s.DeleteRef(ctx, "txn-1"), "deleting an absent ref succeeds")

	refs, err = s.Refs()
	require.NoError(t, err)
	assert.Equal(t, []string{"main"}, refs)
}

func TestStoreFiles(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	_, err := s.ReadFile(ctx, "data.json", "main")
	assert.True(t, errors.Is(err, errors.ErrorTypeFileNotFound))

	// Create requires an empty token.
	require.NoError(t, s.WriteFile(ctx, vcs.WriteRequest{
		Path: "data.json", Content: b64(`{"users":[]}`), Ref: "main", Message: "create",
	}))

	f, err := s.ReadFile(ctx, "data.json", "main")
	require.NoError(t, err)
	assert.Equal(t, b64(`{"users":[]}`), f.Content)

	err = s.WriteFile(ctx, vcs.WriteRequest{
		Path: "data.json", Content: b64(`{"users":[1]}`), Ref: "main", Message: "create again",
	})
	assert.True(t, errors.Is(err, errors.ErrorTypeWriteConflict))

	require.NoError(t, s.WriteFile(ctx, vcs.WriteRequest{
		Path: "data.json", Content: b64(`{"users":[2]}`), ExpectedToken: f.Token, Ref: "main", Message: "update",
	}))

	// The old token is now stale.
	err = s.WriteFile(ctx, vcs.WriteRequest{
		Path: "data.json", Content: b64(`{"users":[3]}`), ExpectedToken: f.Token, Ref: "main", Message: "stale",
	})
	assert.True(t, errors.Is(err, errors.ErrorTypeWriteConflict))

	err = s.WriteFile(ctx, vcs.WriteRequest{
		Path: "data.json", Content: []byte("%%"), Ref: "main",
	})
	assert.True(t, errors.Is(err, errors.ErrorTypeValidation))

	log, err := s.Log(ctx, "main", 0)
	require.NoError(t, err)
	require.Len(t, log, 3)
	assert.Equal(t, "update", log[0].Message)
	assert.Equal(t, "initialize main", log[2].Message)
}

func TestStoreMerge(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	base, err := s.GetRef(ctx, "main")
	require.NoError(t, err)
	require.NoError(t, s.CreateRef(ctx, "a", base))
	require.NoError(t, s.CreateRef(ctx, "b", base))

	require.NoError(t, s.WriteFile(ctx, vcs.WriteRequest{Path: "data.json", Content: b64("A"), Ref: "a", Message: "a"}))
	require.NoError(t, s.WriteFile(ctx, vcs.WriteRequest{Path: "data.json", Content: b64("B"), Ref: "b", Message: "b"}))

	t.Run("FirstMergeWins", func(t *testing.T) {
		require.NoError(t, s.MergeRef(ctx, "main", "a", "merge a"))

		f, err := s.ReadFile(ctx, "data.json", "main")
		require.NoError(t, err)
		assert.Equal(t, b64("A"), f.Content)
	})

	t.Run("DivergedBaseRefused", func(t *testing.T) {
		before, err := s.GetRef(ctx, "main")
		require.NoError(t, err)

		err = s.MergeRef(ctx, "main", "b", "merge b")
		assert.True(t, errors.Is(err, errors.ErrorTypeMergeConflict))

		after, err := s.GetRef(ctx, "main")
		require.NoError(t, err)
		assert.Equal(t, before, after, "refused merge must not move base")
	})

	t.Run("MergedHeadIsNoop", func(t *testing.T) {
		require.NoError(t, s.MergeRef(ctx, "main", "a", "merge a again"))
	})

	t.Run("BranchFromMergedBase", func(t *testing.T) {
		base, err := s.GetRef(ctx, "main")
		require.NoError(t, err)
		require.NoError(t, s.CreateRef(ctx, "c", base))

		f, err := s.ReadFile(ctx, "data.json", "c")
		require.NoError(t, err)
		require.NoError(t, s.WriteFile(ctx, vcs.WriteRequest{Path: "data.json", Content: b64("C"), ExpectedToken: f.Token, Ref: "c", Message: "c"}))
		require.NoError(t, s.MergeRef(ctx, "main", "c", "merge c"))
	})

	t.Run("MissingRefs", func(t *testing.T) {
		err := s.MergeRef(ctx, "main", "nope", "x")
		assert.True(t, errors.Is(err, errors.ErrorTypeRefNotFound))
		err = s.MergeRef(ctx, "nope", "c", "x")
		assert.True(t, errors.Is(err, errors.ErrorTypeRefNotFound))
	})
}

func TestStoreConcurrentMerges(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	base, err := s.GetRef(ctx, "main")
	require.NoError(t, err)

	const n = 8
	for i := 0; i < n; i++ {
		name := string(rune('a' + i))
		require.NoError(t, s.CreateRef(ctx, name, base))
		require.NoError(t, s.WriteFile(ctx, vcs.WriteRequest{Path: "f", Content: b64(name), Ref: name}))
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		merged int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if err := s.MergeRef(ctx, "main", name, "merge "+name); err == nil {
				mu.Lock()
				merged++
				mu.Unlock()
			} else {
				assert.True(t, errors.Is(err, errors.ErrorTypeMergeConflict), "unexpected error: %v", err)
			}
		}(string(rune('a' + i)))
	}
	wg.Wait()

	assert.Equal(t, 1, merged, "exactly one branch from the same base may merge")
}

func TestStoreContext(t *testing.T) {
	s := setupStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.GetRef(ctx, "main")
	assert.True(t, errors.Is(err, errors.ErrorTypeCanceled))
}
