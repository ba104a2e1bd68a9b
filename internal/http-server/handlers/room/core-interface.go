package room

import (
	"context"

	"StayDesk/entity"
)

// Core defines the methods required by room handlers.
type Core interface {
	Sidebar(ctx context.Context, userID string) ([]entity.RoomSummary, error)
	History(userID, roomID string, limit, offset int) ([]entity.Message, error)
}
