// Package storetest 提供 store.Store 的通用一致性测试，各后端在自己的测试中调用 Run。
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"pairchat/internal/models"
	"pairchat/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory 为每个子测试返回一个全新的空 store。
type Factory func(t *testing.T) store.Store

func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndLookupUser", func(t *testing.T) { testCreateAndLookupUser(t, newStore(t)) })
	t.Run("DuplicateEmail", func(t *testing.T) { testDuplicateEmail(t, newStore(t)) })
	t.Run("EmailIsCaseSensitive", func(t *testing.T) { testEmailCaseSensitive(t, newStore(t)) })
	t.Run("ListUsersExcept", func(t *testing.T) { testListUsersExcept(t, newStore(t)) })
	t.Run("UpdateAvatar", func(t *testing.T) { testUpdateAvatar(t, newStore(t)) })
	t.Run("AppendAndListBothDirections", func(t *testing.T) { testAppendAndList(t, newStore(t)) })
	t.Run("AlternatingOrder", func(t *testing.T) { testAlternatingOrder(t, newStore(t)) })
	t.Run("StrictPairFilter", func(t *testing.T) { testStrictPairFilter(t, newStore(t)) })
	t.Run("InvalidMessageLeavesStoreUnchanged", func(t *testing.T) { testInvalidMessage(t, newStore(t)) })
	t.Run("EmptyHistory", func(t *testing.T) { testEmptyHistory(t, newStore(t)) })
	t.Run("ConcurrentAppendTotalOrder", func(t *testing.T) { testConcurrentAppend(t, newStore(t)) })
}

func newUser(email string) *models.User {
	return &models.User{Email: email, FullName: "User " + email, PasswordHash: "hash"}
}

func testCreateAndLookupUser(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := newUser("alice@example.com")
	require.NoError(t, s.CreateUser(ctx, u))
	require.NotEmpty(t, u.ID)

	byID, err := s.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", byID.Email)
	assert.Equal(t, "hash", byID.PasswordHash)

	byEmail, err := s.UserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	_, err = s.UserByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.UserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testDuplicateEmail(t *testing.T, s store.Store) {
	ctx := context.Background()
	first := newUser("dup@example.com")
	require.NoError(t, s.CreateUser(ctx, first))

	second := newUser("dup@example.com")
	second.FullName = "Impostor"
	err := s.CreateUser(ctx, second)
	require.ErrorIs(t, err, store.ErrDuplicateEmail)

	got, err := s.UserByEmail(ctx, "dup@example.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, first.FullName, got.FullName)

	others, err := s.ListUsersExcept(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Len(t, others, 1)
}

func testEmailCaseSensitive(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, newUser("bob@example.com")))
	require.NoError(t, s.CreateUser(ctx, newUser("Bob@example.com")))

	_, err := s.UserByEmail(ctx, "BOB@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testListUsersExcept(t *testing.T, s store.Store) {
	ctx := context.Background()
	a, b, c := newUser("a@example.com"), newUser("b@example.com"), newUser("c@example.com")
	for _, u := range []*models.User{a, b, c} {
		require.NoError(t, s.CreateUser(ctx, u))
	}

	users, err := s.ListUsersExcept(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, users, 2)
	ids := []string{users[0].ID, users[1].ID}
	assert.ElementsMatch(t, []string{b.ID, c.ID}, ids)
	for _, u := range users {
		assert.Equal(t, "hash", u.PasswordHash)
	}
}

func testUpdateAvatar(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := newUser("avatar@example.com")
	require.NoError(t, s.CreateUser(ctx, u))

	updated, err := s.UpdateAvatar(ctx, u.ID, "https://cdn.example.com/a.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.png", updated.AvatarURL)

	// 更新头像不得丢失口令哈希
	reread, err := s.UserByEmail(ctx, "avatar@example.com")
	require.NoError(t, err)
	assert.Equal(t, "hash", reread.PasswordHash)
	assert.Equal(t, "https://cdn.example.com/a.png", reread.AvatarURL)

	_, err = s.UpdateAvatar(ctx, uuid.NewString(), "https://cdn.example.com/b.png")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testAppendAndList(t *testing.T, s store.Store) {
	ctx := context.Background()
	a, b := uuid.NewString(), uuid.NewString()

	m := &models.Message{SenderID: a, ReceiverID: b, Text: "hello"}
	require.NoError(t, s.Append(ctx, m))
	assert.NotEmpty(t, m.ID)
	assert.False(t, m.CreatedAt.IsZero())

	ab, err := s.ListBetween(ctx, a, b)
	require.NoError(t, err)
	require.Len(t, ab, 1)
	assert.Equal(t, "hello", ab[0].Text)
	assert.Equal(t, m.ID, ab[0].ID)

	ba, err := s.ListBetween(ctx, b, a)
	require.NoError(t, err)
	require.Len(t, ba, 1)
	assert.Equal(t, m.ID, ba[0].ID)
}

func testAlternatingOrder(t *testing.T, s store.Store) {
	ctx := context.Background()
	a, b := uuid.NewString(), uuid.NewString()
	sent := []*models.Message{
		{SenderID: a, ReceiverID: b, Text: "one"},
		{SenderID: b, ReceiverID: a, Text: "two"},
		{SenderID: a, ReceiverID: b, Image: "https://cdn.example.com/three.png"},
	}
	for _, m := range sent {
		require.NoError(t, s.Append(ctx, m))
	}

	got, err := s.ListBetween(ctx, a, b)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range sent {
		assert.Equal(t, sent[i].ID, got[i].ID)
	}
	assert.Equal(t, "https://cdn.example.com/three.png", got[2].Image)
}

func testStrictPairFilter(t *testing.T, s store.Store) {
	ctx := context.Background()
	a, b, c := uuid.NewString(), uuid.NewString(), uuid.NewString()
	require.NoError(t, s.Append(ctx, &models.Message{SenderID: a, ReceiverID: b, Text: "ab"}))
	require.NoError(t, s.Append(ctx, &models.Message{SenderID: a, ReceiverID: c, Text: "ac"}))
	require.NoError(t, s.Append(ctx, &models.Message{SenderID: c, ReceiverID: b, Text: "cb"}))

	got, err := s.ListBetween(ctx, a, b)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ab", got[0].Text)
}

func testInvalidMessage(t *testing.T, s store.Store) {
	ctx := context.Background()
	a, b := uuid.NewString(), uuid.NewString()
	require.NoError(t, s.Append(ctx, &models.Message{SenderID: a, ReceiverID: b, Text: "first"}))

	err := s.Append(ctx, &models.Message{SenderID: a, ReceiverID: b})
	require.ErrorIs(t, err, store.ErrInvalidMessage)

	got, err := s.ListBetween(ctx, a, b)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func testEmptyHistory(t *testing.T, s store.Store) {
	got, err := s.ListBetween(context.Background(), uuid.NewString(), uuid.NewString())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func testConcurrentAppend(t *testing.T, s store.Store) {
	ctx := context.Background()
	a, b := uuid.NewString(), uuid.NewString()
	const perSide = 20

	var wg sync.WaitGroup
	for _, pair := range [][2]string{{a, b}, {b, a}} {
		wg.Add(1)
		go func(from, to string) {
			defer wg.Done()
			for i := 0; i < perSide; i++ {
				err := s.Append(ctx, &models.Message{SenderID: from, ReceiverID: to, Text: fmt.Sprintf("%s-%d", from[:4], i)})
				assert.NoError(t, err)
			}
		}(pair[0], pair[1])
	}
	wg.Wait()

	first, err := s.ListBetween(ctx, a, b)
	require.NoError(t, err)
	second, err := s.ListBetween(ctx, b, a)
	require.NoError(t, err)
	require.Len(t, first, 2*perSide)
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}

	// 同一发送方的消息保持各自的追加顺序
	last := map[string]int{a: -1, b: -1}
	for _, m := range first {
		var n int
		_, err := fmt.Sscanf(m.Text[5:], "%d", &n)
		require.NoError(t, err)
		assert.Greater(t, n, last[m.SenderID])
		last[m.SenderID] = n
	}
}
