package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
)

// SetTimer arms (or re-arms) the assignment timer for a support room.
// Writing the key starts a fresh TTL window, so explicit operator
// engagement resets the deadline exactly like automatic assignment does.
func (s *Store) SetTimer(ctx context.Context, roomID, operatorID string) error {
	if _, err := s.assignmentKV.Put(roomID, []byte(operatorID)); err != nil {
		return fmt.Errorf("assignment put: %w", err)
	}
	return nil
}

// TimerActive reports whether the room's assignment is still within its
// grace window. Absence of the key, including TTL expiry, means the
// assignment is due for re-evaluation.
func (s *Store) TimerActive(ctx context.Context, roomID string) (bool, error) {
	_, err := s.assignmentKV.Get(roomID)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("assignment get: %w", err)
	}
	return true, nil
}

// ClearTimer disarms the timer when a room closes.
func (s *Store) ClearTimer(ctx context.Context, roomID string) error {
	err := s.assignmentKV.Delete(roomID)
	if err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("assignment delete: %w", err)
	}
	return nil
}
