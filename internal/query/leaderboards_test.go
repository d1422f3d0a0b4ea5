package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaderboardsFailureRateCountsOnlyFailures(t *testing.T) {
	e, db := newTestEngine(t)
	now := time.Now().Unix()
	insertUser(t, db, 1, "alice")

	insertLog(t, db, 1, 2, 10, "1.1.1.1", now-60, "gpt-4") // success
	insertLog(t, db, 1, 2, 10, "1.1.1.1", now-50, "gpt-4") // success
	insertLog(t, db, 1, 2, 10, "1.1.1.1", now-40, "gpt-4") // success
	insertLog(t, db, 1, 5, 0, "1.1.1.1", now-30, "gpt-4")  // failure

	boards, err := e.Leaderboards(context.Background(), []string{"1h"}, 10, "requests", true)
	require.NoError(t, err)
	entries := boards["1h"]
	require.Len(t, entries, 1)

	assert.Equal(t, int64(4), entries[0].RequestCount)
	assert.Equal(t, int64(1), entries[0].FailureRequests)
	assert.InDelta(t, 0.25, entries[0].FailureRate, 1e-9)
}

func TestLeaderboardsRejectsUnknownSortBy(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.Leaderboards(context.Background(), []string{"1h"}, 10, "not_a_field; DROP TABLE logs", true)
	assert.ErrorIs(t, err, ErrInvalidSort)
}

func TestLeaderboardsRejectsUnknownWindow(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.Leaderboards(context.Background(), []string{"99h"}, 10, "requests", true)
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestLeaderboardsSortByQuota(t *testing.T) {
	e, db := newTestEngine(t)
	now := time.Now().Unix()
	insertUser(t, db, 1, "alice")
	insertUser(t, db, 2, "bob")
	insertLog(t, db, 1, 2, 10, "1.1.1.1", now-60, "gpt-4")
	insertLog(t, db, 2, 2, 1000, "1.1.1.2", now-60, "gpt-4")

	boards, err := e.Leaderboards(context.Background(), []string{"1h"}, 10, "quota", true)
	require.NoError(t, err)
	entries := boards["1h"]
	require.Len(t, entries, 2)
	assert.Equal(t, "bob", entries[0].Username)
}
