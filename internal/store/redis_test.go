package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/parity-engine/internal/model"
)

// unreachableRedis points at a closed port so every command fails fast.
func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func localRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestCachedStore_WriteInvalidatesSnapshot(t *testing.T) {
	ctx := context.Background()
	mr, rdb := localRedis(t)
	primary := NewMemoryStore()
	s := NewCachedStore(primary, rdb, time.Minute)

	require.NoError(t, s.CreateMarket(ctx, &model.Market{ID: "market-eur", Currency: "EUR"}))
	require.NoError(t, s.InsertContract(ctx, &model.Contract{ID: "c1", HotelID: "H", MarketID: "market-eur", CreatedAt: t0}))

	gen, err := mr.Get(generationKey)
	require.NoError(t, err)
	assert.Equal(t, "2", gen)

	snap, err := s.Snapshot(ctx, "H")
	require.NoError(t, err)
	require.Len(t, snap.Contracts, 1)
	assert.True(t, mr.Exists("parity:snapshot:2:H"))
	assert.Equal(t, time.Minute, mr.TTL("parity:snapshot:2:H"))

	// A write that skips the cache stays invisible: the second read is a hit.
	require.NoError(t, primary.InsertContract(ctx, &model.Contract{ID: "c2", HotelID: "H", MarketID: "market-eur", CreatedAt: t0}))
	snap, err = s.Snapshot(ctx, "H")
	require.NoError(t, err)
	assert.Len(t, snap.Contracts, 1)

	// A write through the cache moves to the next generation.
	require.NoError(t, s.InsertContract(ctx, &model.Contract{ID: "c3", HotelID: "H", MarketID: "market-eur", CreatedAt: t0}))
	gen, err = mr.Get(generationKey)
	require.NoError(t, err)
	assert.Equal(t, "3", gen)
	assert.False(t, mr.Exists("parity:snapshot:3:H"))

	snap, err = s.Snapshot(ctx, "H")
	require.NoError(t, err)
	require.Len(t, snap.Contracts, 3)
	assert.Equal(t, []string{"c1", "c2", "c3"},
		[]string{snap.Contracts[0].ID, snap.Contracts[1].ID, snap.Contracts[2].ID})
	assert.True(t, mr.Exists("parity:snapshot:3:H"))
}

func TestCachedStore_SettingsAndReset(t *testing.T) {
	ctx := context.Background()
	mr, rdb := localRedis(t)
	primary := NewMemoryStore()
	s := NewCachedStore(primary, rdb, time.Minute)

	snap, err := s.Snapshot(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, snap.Settings.ReferenceMarketID)
	assert.True(t, mr.Exists("parity:snapshot:0:*"))

	wrote, err := s.InitSettings(ctx, model.Settings{ReferenceMarketID: "market-eur"})
	require.NoError(t, err)
	require.True(t, wrote)
	snap, err = s.Snapshot(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "market-eur", snap.Settings.ReferenceMarketID)

	// A second init is a no-op and keeps the generation.
	wrote, err = s.InitSettings(ctx, model.Settings{ReferenceMarketID: "market-gbp"})
	require.NoError(t, err)
	assert.False(t, wrote)
	gen, _ := mr.Get(generationKey)
	assert.Equal(t, "1", gen)

	require.NoError(t, s.Reset(ctx))
	snap, err = s.Snapshot(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, snap.Settings.ReferenceMarketID)
	gen, _ = mr.Get(generationKey)
	assert.Equal(t, "2", gen)
}

func TestCachedStore_DegradesToPrimary(t *testing.T) {
	ctx := context.Background()
	primary := NewMemoryStore()
	s := NewCachedStore(primary, unreachableRedis(t), time.Minute)

	// Writes succeed even though invalidation fails.
	require.NoError(t, s.CreateMarket(ctx, &model.Market{ID: "market-eur", Currency: "EUR"}))
	require.NoError(t, s.InsertContract(ctx, &model.Contract{ID: "c1", HotelID: "H", MarketID: "market-eur", CreatedAt: t0}))

	snap, err := s.Snapshot(ctx, "H")
	require.NoError(t, err)
	require.Len(t, snap.Contracts, 1)
	assert.Equal(t, "c1", snap.Contracts[0].ID)

	// Primary errors still surface.
	err = s.CreateMarket(ctx, &model.Market{ID: "market-eur"})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestSnapshotKey(t *testing.T) {
	assert.Equal(t, "parity:snapshot:7:hotel-aurora", snapshotKey("7", "hotel-aurora"))
	assert.Equal(t, "parity:snapshot:0:*", snapshotKey("0", ""))
}
