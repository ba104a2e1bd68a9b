package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// presenceEntry is the KV value recorded for each connected identity.
type presenceEntry struct {
	Online bool  `json:"online"`
	Since  int64 `json:"since"`
}

// SetOnline marks an identity as connected in the shared bucket. The write
// is immediately visible to every instance; there is no per-process cache.
func (s *Store) SetOnline(ctx context.Context, identityID string) error {
	entry := presenceEntry{Online: true, Since: time.Now().UnixMilli()}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal presence entry: %w", err)
	}
	if _, err := s.presenceKV.Put(identityID, data); err != nil {
		return fmt.Errorf("presence put: %w", err)
	}
	return nil
}

// ClearOnline removes the identity's presence entry. There is no expiry on
// the bucket: a crashed process that never called ClearOnline leaves a
// stale online entry behind.
func (s *Store) ClearOnline(ctx context.Context, identityID string) error {
	err := s.presenceKV.Delete(identityID)
	if err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("presence delete: %w", err)
	}
	return nil
}

// IsOnline reports whether the identity currently has a presence entry.
func (s *Store) IsOnline(ctx context.Context, identityID string) (bool, error) {
	entry, err := s.presenceKV.Get(identityID)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("presence get: %w", err)
	}

	var pe presenceEntry
	if err := json.Unmarshal(entry.Value(), &pe); err != nil {
		return false, fmt.Errorf("decode presence entry: %w", err)
	}
	return pe.Online, nil
}

// ListOnline filters the given ids down to the ones currently online.
func (s *Store) ListOnline(ctx context.Context, identityIDs []string) (map[string]bool, error) {
	online := make(map[string]bool, len(identityIDs))
	for _, id := range identityIDs {
		ok, err := s.IsOnline(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			online[id] = true
		}
	}
	return online, nil
}
