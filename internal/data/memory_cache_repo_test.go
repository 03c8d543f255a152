package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheRepo_SetIfNotExists(t *testing.T) {
	clock := NewFixedTimeProvider(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	repo := NewMemoryCacheRepo(clock)
	ctx := context.Background()

	ok, err := repo.SetIfNotExists(ctx, "alert:etl__P:TIMEOUT", nil, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.SetIfNotExists(ctx, "alert:etl__P:TIMEOUT", nil, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "live key is not replaced")

	clock.AddTime(time.Minute)
	ok, err = repo.SetIfNotExists(ctx, "alert:etl__P:TIMEOUT", nil, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired key can be set again")

	deleted, err := repo.Delete(ctx, "alert:etl__P:TIMEOUT")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = repo.Delete(ctx, "alert:etl__P:TIMEOUT")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = repo.SetIfNotExists(ctx, "", nil, time.Minute)
	require.Error(t, err)
}
