package redis

import (
	"context"
	"fmt"
)

const knownGroupsKey = "recoverer:known_groups"

// KnownGroupSet is the cross-instance set of already-sighted group ids.
// SADD is atomic, so the first writer wins the first-sighting race.
type KnownGroupSet struct {
	client *Client
}

// NewKnownGroupSet creates a Redis-backed known-group set.
func NewKnownGroupSet(client *Client) *KnownGroupSet {
	return &KnownGroupSet{client: client}
}

// Register adds a group id to the set. Returns true when this call was the
// first sighting across all instances.
func (s *KnownGroupSet) Register(ctx context.Context, groupID string) (bool, error) {
	added, err := s.client.rdb.SAdd(ctx, knownGroupsKey, groupID).Result()
	if err != nil {
		return false, fmt.Errorf("sadd failed: %w", err)
	}
	return added == 1, nil
}
