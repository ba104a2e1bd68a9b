package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"StayDesk/entity"
	"StayDesk/internal/lib/api/response"
	"StayDesk/internal/service/rooms"
	"StayDesk/internal/service/support"
	"StayDesk/internal/ws"
)

var errBadPayload = errors.New("invalid payload")

func decode[T any](data json.RawMessage, payload *T) error {
	if err := json.Unmarshal(data, payload); err != nil {
		return fmt.Errorf("%w: %s", errBadPayload, err)
	}
	return nil
}

func (s *Service) handleGetRooms(ctx context.Context, c ws.Session, _ json.RawMessage) (*ws.Event, error) {
	summaries, err := s.rooms.Sidebar(ctx, c.Identity().ID)
	if err != nil {
		return nil, err
	}
	return &ws.Event{Type: entity.EvRooms, Data: response.Ok(summaries)}, nil
}

func (s *Service) handleJoinRoom(ctx context.Context, c ws.Session, data json.RawMessage) (*ws.Event, error) {
	var req entity.RoomRef
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", errBadPayload, err)
	}

	if !s.rooms.IsMember(c.Identity().ID, req.RoomID) {
		return nil, rooms.ErrNotMember
	}

	s.hub.JoinRoom(c.SessionID(), req.RoomID)

	online, err := s.rooms.OnlineMembers(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}
	return &ws.Event{
		Type: entity.EvRoomOnlineMembers,
		Data: response.Ok(entity.RoomMembersPayload{RoomID: req.RoomID, OnlineMemberIDs: online}),
	}, nil
}

func (s *Service) handleCreateMessage(ctx context.Context, c ws.Session, data json.RawMessage) (*ws.Event, error) {
	var req entity.CreateMessagePayload
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", errBadPayload, err)
	}

	identity := c.Identity()
	if !s.rooms.IsMember(identity.ID, req.RoomID) {
		return nil, rooms.ErrNotMember
	}

	msg := &entity.Message{
		ConversationID: req.RoomID,
		SenderID:       identity.ID,
		SenderName:     identity.DisplayName,
		Text:           req.Text,
		FileRef:        req.FileRef,
		ReplyTo:        req.ReplyTo,
		CreatedAt:      time.Now(),
	}
	if err := s.repo.InsertMessage(msg); err != nil {
		return nil, err
	}

	s.hub.PublishToRoom(req.RoomID, &ws.Event{
		Type: entity.EvNewMessage,
		Data: msg,
	})
	s.pushUnreadCounts(req.RoomID, identity.ID)

	return &ws.Event{Type: entity.EvNewMessage, Data: response.Ok(msg)}, nil
}

func (s *Service) handleMarkRoomRead(ctx context.Context, c ws.Session, data json.RawMessage) (*ws.Event, error) {
	var req entity.RoomRef
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", errBadPayload, err)
	}

	identity := c.Identity()
	if !s.rooms.IsMember(identity.ID, req.RoomID) {
		return nil, rooms.ErrNotMember
	}

	if err := s.rooms.MarkAllRead(req.RoomID, identity.ID); err != nil {
		return nil, err
	}

	// Other sessions of the same identity see the counter drop too.
	s.hub.PublishToIdentity(identity.ID, &ws.Event{
		Type: entity.EvUnreadCountUpdated,
		Data: entity.UnreadCountPayload{RoomID: req.RoomID, Count: 0},
	})

	return &ws.Event{
		Type: entity.EvRoomMarkedRead,
		Data: response.Ok(entity.MarkedReadPayload{RoomID: req.RoomID, UserID: identity.ID}),
	}, nil
}

func (s *Service) handleGetUnreadCount(ctx context.Context, c ws.Session, data json.RawMessage) (*ws.Event, error) {
	var req entity.RoomRef
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", errBadPayload, err)
	}

	identity := c.Identity()
	if !s.rooms.IsMember(identity.ID, req.RoomID) {
		return nil, rooms.ErrNotMember
	}

	count, err := s.rooms.UnreadCount(req.RoomID, identity.ID)
	if err != nil {
		return nil, err
	}
	return &ws.Event{
		Type: entity.EvUnreadCountUpdated,
		Data: response.Ok(entity.UnreadCountPayload{RoomID: req.RoomID, Count: count}),
	}, nil
}

func (s *Service) handleRequestSupport(ctx context.Context, c ws.Session, _ json.RawMessage) (*ws.Event, error) {
	identity := c.Identity()

	conv, created, err := s.support.RequestSupport(ctx, identity)
	if err != nil {
		return nil, err
	}

	s.hub.JoinRoom(c.SessionID(), conv.ID)

	payload := entity.SupportRoomPayload{
		RoomID:     conv.ID,
		UserID:     identity.ID,
		OperatorID: conv.CurrentOperatorID,
		Pending:    conv.Pending,
	}

	if conv.Pending {
		return &ws.Event{Type: entity.EvSupportPending, Data: response.Ok(payload)}, nil
	}

	if created {
		s.hub.PublishToIdentity(conv.CurrentOperatorID, &ws.Event{
			Type: entity.EvTicketAssigned,
			Data: payload,
		})
	}
	return &ws.Event{Type: entity.EvSupportAssigned, Data: response.Ok(payload)}, nil
}

func (s *Service) handleAdminJoinSupport(ctx context.Context, c ws.Session, data json.RawMessage) (*ws.Event, error) {
	var req entity.RoomRef
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", errBadPayload, err)
	}

	identity := c.Identity()
	if !identity.IsOperator() {
		return nil, support.ErrNotAnOperator
	}

	conv, previous, err := s.support.OperatorJoin(ctx, req.RoomID, identity.ID)
	if err != nil {
		return nil, err
	}

	s.hub.JoinRoom(c.SessionID(), conv.ID)

	payload := entity.SupportRoomPayload{
		RoomID:     conv.ID,
		UserID:     conv.RequesterID(),
		OperatorID: identity.ID,
		Pending:    false,
	}

	s.hub.PublishToRoom(conv.ID, &ws.Event{
		Type: entity.EvSupportAdminJoined,
		Data: payload,
	})
	if previous != "" && previous != identity.ID {
		s.hub.PublishToRoom(conv.ID, &ws.Event{
			Type: entity.EvSupportAdminChange,
			Data: payload,
		})
	}

	return &ws.Event{Type: entity.EvSupportAdminJoined, Data: response.Ok(payload)}, nil
}

func (s *Service) handleCloseSupportRoom(ctx context.Context, c ws.Session, data json.RawMessage) (*ws.Event, error) {
	var req entity.RoomRef
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", errBadPayload, err)
	}

	identity := c.Identity()
	if !s.rooms.IsMember(identity.ID, req.RoomID) && !s.rooms.IsOperator(identity.ID, req.RoomID) {
		return nil, rooms.ErrNotMember
	}

	conv, err := s.support.CloseRoom(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}

	payload := entity.SupportRoomPayload{
		RoomID: conv.ID,
		UserID: conv.RequesterID(),
	}
	s.hub.PublishToRoom(conv.ID, &ws.Event{
		Type: entity.EvSupportClosed,
		Data: payload,
	})

	return &ws.Event{Type: entity.EvSupportClosed, Data: response.Ok(payload)}, nil
}

// pushUnreadCounts refreshes every other member's unread counter after a
// new message. Sessions of offline members simply miss the push; they
// recompute on reconnect.
func (s *Service) pushUnreadCounts(roomID, senderID string) {
	conv, err := s.repo.GetConversation(roomID)
	if err != nil || conv == nil {
		return
	}
	for _, memberID := range conv.MemberIDs {
		if memberID == senderID {
			continue
		}
		count, err := s.rooms.UnreadCount(roomID, memberID)
		if err != nil {
			continue
		}
		s.hub.PublishToIdentity(memberID, &ws.Event{
			Type: entity.EvUnreadCountUpdated,
			Data: entity.UnreadCountPayload{RoomID: roomID, Count: count},
		})
	}
}
