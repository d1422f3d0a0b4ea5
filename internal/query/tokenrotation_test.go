package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRotationFlagsLowRequestsPerToken(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	now := time.Now().Unix()

	insertUser(t, db, 1, "rotator")
	for tok := int64(1); tok <= 5; tok++ {
		_, err := db.Execute(ctx,
			`INSERT INTO logs (user_id, token_id, created_at) VALUES (1, ?, ?)`, tok, now-60)
		require.NoError(t, err)
	}

	users, err := e.TokenRotation(ctx, "1h", 3, 2.0, 10, true)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "rotator", users[0].Username)
	assert.Equal(t, int64(5), users[0].TokenCount)
	assert.InDelta(t, 1.0, users[0].AvgRequestsPerToken, 1e-9)
}

func TestTokenRotationExcludesHighRequestsPerToken(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	now := time.Now().Unix()

	insertUser(t, db, 1, "heavy")
	for tok := int64(1); tok <= 3; tok++ {
		for i := 0; i < 10; i++ {
			_, err := db.Execute(ctx,
				`INSERT INTO logs (user_id, token_id, created_at) VALUES (1, ?, ?)`, tok, now-int64(i))
			require.NoError(t, err)
		}
	}

	users, err := e.TokenRotation(ctx, "1h", 3, 2.0, 10, true)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestTokenRotationExcludesBelowMinTokens(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	now := time.Now().Unix()
	insertUser(t, db, 1, "single-token")
	_, err := db.Execute(ctx, `INSERT INTO logs (user_id, token_id, created_at) VALUES (1, 1, ?)`, now-60)
	require.NoError(t, err)

	users, err := e.TokenRotation(ctx, "1h", 3, 5.0, 10, true)
	require.NoError(t, err)
	assert.Empty(t, users)
}
