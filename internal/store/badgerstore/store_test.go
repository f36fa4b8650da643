package badgerstore

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"pairchat/internal/models"
	"pairchat/internal/store"
	"pairchat/internal/store/storetest"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemStore(t *testing.T) store.Store {
	s, err := Open("", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, newMemStore)
}

func TestStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	a, b := uuid.NewString(), uuid.NewString()

	s, err := Open(dir, zerolog.Nop())
	require.NoError(t, err)
	first := &models.Message{SenderID: a, ReceiverID: b, Text: "before restart"}
	require.NoError(t, s.Append(ctx, first))
	require.NoError(t, s.Close())

	s, err = Open(dir, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()
	second := &models.Message{SenderID: b, ReceiverID: a, Text: "after restart"}
	require.NoError(t, s.Append(ctx, second))

	assert.Greater(t, second.Seq, first.Seq)
	got, err := s.ListBetween(ctx, a, b)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, second.ID, got[1].ID)
}

func TestStore_UserHashSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(dir, zerolog.Nop())
	require.NoError(t, err)
	u := &models.User{Email: "keep@example.com", FullName: "Keeper", PasswordHash: "$2a$04$stored-hash"}
	require.NoError(t, s.CreateUser(ctx, u))
	require.NoError(t, s.Close())

	s, err = Open(dir, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	byEmail, err := s.UserByEmail(ctx, "keep@example.com")
	require.NoError(t, err)
	assert.Equal(t, "$2a$04$stored-hash", byEmail.PasswordHash)
	assert.Equal(t, u.ID, byEmail.ID)
	assert.Equal(t, "Keeper", byEmail.FullName)

	// 对外的 JSON 形式仍不暴露哈希
	out, err := json.Marshal(byEmail)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "stored-hash")
}

func TestStore_ConcurrentSignupSameEmail(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		dups    int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.CreateUser(ctx, &models.User{Email: "race@example.com", FullName: "Racer", PasswordHash: "h"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case assert.ErrorIs(t, err, store.ErrDuplicateEmail):
				dups++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, n-1, dups)
}

func TestPairKey(t *testing.T) {
	assert.Equal(t, pairKey("a", "b"), pairKey("b", "a"))
	assert.Equal(t, "a|b", pairKey("b", "a"))
}
