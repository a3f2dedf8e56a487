package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const snapshotsKey = "trivia:snapshots"

// SnapshotStore keeps one encoded session record per context in a single hash:
// HSET trivia:snapshots {contextID} {record}
type SnapshotStore struct {
	client *redis.Client
	key    string
}

func NewSnapshotStore(client *redis.Client) *SnapshotStore {
	return &SnapshotStore{client: client, key: snapshotsKey}
}

func (s *SnapshotStore) Save(ctx context.Context, contextID string, data []byte) error {
	if err := s.client.HSet(ctx, s.key, contextID, data).Err(); err != nil {
		return fmt.Errorf("save snapshot %s: %w", contextID, err)
	}
	return nil
}

func (s *SnapshotStore) LoadAll(ctx context.Context) (map[string][]byte, error) {
	raw, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}
	out := make(map[string][]byte, len(raw))
	for id, data := range raw {
		out[id] = []byte(data)
	}
	return out, nil
}

func (s *SnapshotStore) Delete(ctx context.Context, contextID string) error {
	if err := s.client.HDel(ctx, s.key, contextID).Err(); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", contextID, err)
	}
	return nil
}
