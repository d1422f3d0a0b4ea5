package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedIPsFindsIPAcrossTokens(t *testing.T) {
	e, db := newTestEngine(t)
	now := time.Now().Unix()

	for tok := int64(1); tok <= 3; tok++ {
		_, err := db.Execute(context.Background(),
			`INSERT INTO logs (user_id, token_id, ip, created_at) VALUES (1, ?, '9.9.9.9', ?)`, tok, now-60)
		require.NoError(t, err)
	}

	shared, err := e.SharedIPs(context.Background(), "1h", 2, 10, true)
	require.NoError(t, err)
	require.Len(t, shared, 1)
	assert.Equal(t, "9.9.9.9", shared[0].IP)
	assert.Equal(t, int64(3), shared[0].TokenCount)
	assert.Len(t, shared[0].Tokens, 3)
}

func TestSharedIPsBelowThresholdExcluded(t *testing.T) {
	e, db := newTestEngine(t)
	now := time.Now().Unix()
	_, err := db.Execute(context.Background(),
		`INSERT INTO logs (user_id, token_id, ip, created_at) VALUES (1, 1, '9.9.9.9', ?)`, now-60)
	require.NoError(t, err)

	shared, err := e.SharedIPs(context.Background(), "1h", 2, 10, true)
	require.NoError(t, err)
	assert.Empty(t, shared)
}

func TestMultiIPTokensFindsTokenAcrossIPs(t *testing.T) {
	e, db := newTestEngine(t)
	now := time.Now().Unix()

	for i, ip := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
		_, err := db.Execute(context.Background(),
			`INSERT INTO logs (user_id, token_id, ip, created_at) VALUES (1, 7, ?, ?)`, ip, now-int64(i))
		require.NoError(t, err)
	}

	tokens, err := e.MultiIPTokens(context.Background(), "1h", 2, 10, true)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, int64(7), tokens[0].TokenID)
	assert.Equal(t, int64(3), tokens[0].IPCount)
}

func TestMultiIPUsersFindsUserAcrossIPs(t *testing.T) {
	e, db := newTestEngine(t)
	now := time.Now().Unix()

	for i, ip := range []string{"1.1.1.1", "2.2.2.2"} {
		_, err := db.Execute(context.Background(),
			`INSERT INTO logs (user_id, ip, created_at) VALUES (5, ?, ?)`, ip, now-int64(i))
		require.NoError(t, err)
	}

	users, err := e.MultiIPUsers(context.Background(), "1h", 2, 10, true)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, int64(5), users[0].UserID)
	assert.Equal(t, int64(2), users[0].IPCount)
}
