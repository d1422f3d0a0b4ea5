package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAffiliatedAccountsGroupsByInviter(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()

	_, err := db.Execute(ctx, `INSERT INTO users (id, username, inviter_id) VALUES (1, 'root', NULL)`)
	require.NoError(t, err)
	for i := int64(2); i <= 4; i++ {
		_, err := db.Execute(ctx, `INSERT INTO users (id, username, inviter_id) VALUES (?, ?, 1)`, i, "u")
		require.NoError(t, err)
	}

	groups, err := e.AffiliatedAccounts(ctx, 3, 10)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, int64(1), groups[0].InviterID)
	assert.Equal(t, int64(3), groups[0].Invited)
}

func TestAffiliatedAccountsBelowThresholdExcluded(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	_, err := db.Execute(ctx, `INSERT INTO users (id, username, inviter_id) VALUES (2, 'u', 1)`)
	require.NoError(t, err)

	groups, err := e.AffiliatedAccounts(ctx, 3, 10)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestSameIPRegistrationsUsesEarliestLogPerUser(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	now := time.Now().Unix()

	// user 1's first-ever log in-window is from 8.8.8.8; a later log from a
	// different IP must not count toward the same-IP cluster.
	_, err := db.Execute(ctx, `INSERT INTO logs (user_id, ip, created_at) VALUES (1, '8.8.8.8', ?)`, now-100)
	require.NoError(t, err)
	_, err = db.Execute(ctx, `INSERT INTO logs (user_id, ip, created_at) VALUES (1, '9.9.9.9', ?)`, now-50)
	require.NoError(t, err)

	_, err = db.Execute(ctx, `INSERT INTO logs (user_id, ip, created_at) VALUES (2, '8.8.8.8', ?)`, now-90)
	require.NoError(t, err)

	results, err := e.SameIPRegistrations(ctx, "1h", 2, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "8.8.8.8", results[0].IP)
	assert.Equal(t, int64(2), results[0].Users)
}
