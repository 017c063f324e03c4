package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/utafrali/shopassist/pkg/errors"
	"github.com/utafrali/shopassist/services/assistant/internal/domain"
)

const keyPrefix = "assistant:snapshot:"

// saveIfNewer writes the snapshot only when no newer version is stored.
// KEYS[1] = snapshot key, KEYS[2] = version key; ARGV = payload, version, ttl ms.
var saveIfNewer = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[2]) or "0")
local incoming = tonumber(ARGV[2])
if incoming < current then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
return 1
`)

// SnapshotRepository implements repository.SnapshotRepository using Redis.
type SnapshotRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSnapshotRepository creates a new Redis-backed snapshot cache.
func NewSnapshotRepository(client *redis.Client, ttl time.Duration) *SnapshotRepository {
	return &SnapshotRepository{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves a session's snapshot from Redis.
func (r *SnapshotRepository) Get(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	data, err := r.client.Get(ctx, keyPrefix+sessionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("session", sessionID)
		}
		return nil, fmt.Errorf("redis get snapshot: %w", err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Save persists snap with the configured TTL. An older version never
// overwrites a newer one.
func (r *SnapshotRepository) Save(ctx context.Context, snap domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	keys := []string{keyPrefix + snap.SessionID, keyPrefix + snap.SessionID + ":version"}
	if err := saveIfNewer.Run(ctx, r.client, keys, data, snap.Version, r.ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("redis save snapshot: %w", err)
	}
	return nil
}

// Delete removes a session's snapshot from Redis.
func (r *SnapshotRepository) Delete(ctx context.Context, sessionID string) error {
	key := keyPrefix + sessionID
	if err := r.client.Del(ctx, key, key+":version").Err(); err != nil {
		return fmt.Errorf("redis del snapshot: %w", err)
	}
	return nil
}
