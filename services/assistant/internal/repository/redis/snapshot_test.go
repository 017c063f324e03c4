package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/shopassist/pkg/errors"
	"github.com/utafrali/shopassist/services/assistant/internal/domain"
)

func setupTestRedis(t *testing.T) (*SnapshotRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewSnapshotRepository(client, time.Hour), mr
}

func sampleSnapshot(version uint64) domain.Snapshot {
	p := domain.Product{
		ID:     "p1",
		Name:   "Linen Shirt",
		Price:  domain.MustParsePrice("$19.99"),
		Images: []string{"p1.jpg"},
	}
	card := domain.ProductCard{Product: p, Flags: domain.Flags{InCart: true}}
	return domain.Snapshot{
		Version:         version,
		SessionID:       "sess-1",
		Identity:        &domain.Identity{Username: "ana"},
		Recommendations: []domain.ProductCard{card},
		Cart: []domain.CartLineView{
			{ProductCard: card, Quantity: 2, Subtotal: domain.MustParsePrice("$39.98")},
		},
		CartCount:  2,
		CartTotal:  domain.MustParsePrice("$39.98"),
		Wishlist:   []domain.ProductCard{},
		Insight:    domain.StructuredInsight([]string{"linen"}, "linen shirt", "summer", nil),
		SearchMode: domain.SearchModeText,
		Prompt:     "linen shirt",
		UpdatedAt:  time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
	}
}

// priceCmp compares prices by value; decimal internals differ after a round trip.
var priceCmp = cmp.Comparer(func(a, b domain.Price) bool { return a.Equal(b) })

// ---------------------------------------------------------------------------
// Get / Save
// ---------------------------------------------------------------------------

func TestSnapshotRepository_RoundTrip(t *testing.T) {
	repo, mr := setupTestRedis(t)
	ctx := context.Background()
	snap := sampleSnapshot(3)

	require.NoError(t, repo.Save(ctx, snap))

	got, err := repo.Get(ctx, "sess-1")
	require.NoError(t, err)
	if diff := cmp.Diff(snap, *got, priceCmp); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, time.Hour, mr.TTL(keyPrefix+"sess-1"))
}

func TestSnapshotRepository_Get_NotFound(t *testing.T) {
	repo, _ := setupTestRedis(t)

	_, err := repo.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSnapshotRepository_Get_Corrupt(t *testing.T) {
	repo, mr := setupTestRedis(t)
	require.NoError(t, mr.Set(keyPrefix+"sess-1", "{not json"))

	_, err := repo.Get(context.Background(), "sess-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal snapshot")
}

func TestSnapshotRepository_Save_OlderVersionIgnored(t *testing.T) {
	repo, _ := setupTestRedis(t)
	ctx := context.Background()

	newer := sampleSnapshot(5)
	older := sampleSnapshot(4)
	older.Prompt = "stale"

	require.NoError(t, repo.Save(ctx, newer))
	require.NoError(t, repo.Save(ctx, older))

	got, err := repo.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), got.Version)
	assert.Equal(t, "linen shirt", got.Prompt)
}

func TestSnapshotRepository_Expires(t *testing.T) {
	repo, mr := setupTestRedis(t)
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, sampleSnapshot(1)))

	mr.FastForward(2 * time.Hour)

	_, err := repo.Get(ctx, "sess-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

// ---------------------------------------------------------------------------
// Delete
// ---------------------------------------------------------------------------

func TestSnapshotRepository_Delete(t *testing.T) {
	repo, mr := setupTestRedis(t)
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, sampleSnapshot(1)))

	require.NoError(t, repo.Delete(ctx, "sess-1"))

	assert.False(t, mr.Exists(keyPrefix+"sess-1"))
	assert.False(t, mr.Exists(keyPrefix+"sess-1:version"))

	// A deleted session accepts version 1 again.
	require.NoError(t, repo.Save(ctx, sampleSnapshot(1)))
}

func TestSnapshotRepository_Unavailable(t *testing.T) {
	repo, mr := setupTestRedis(t)
	mr.Close()

	err := repo.Save(context.Background(), sampleSnapshot(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis save snapshot")
}
