package chat

import (
	"context"
	"log/slog"

	"StayDesk/entity"
	"StayDesk/internal/lib/api/response"
	"StayDesk/internal/lib/sl"
	"StayDesk/internal/service/support"
	"StayDesk/internal/ws"
)

// OnConnect runs the connection lifecycle for an authenticated session:
// join known rooms, mark present, notify peers, and for operators drain
// the pending support backlog.
func (s *Service) OnConnect(c ws.Session) {
	ctx := context.Background()
	identity := c.Identity()

	roomList, err := s.rooms.ListRoomsFor(identity.ID)
	if err != nil {
		s.log.Error("listing rooms on connect", slog.String("identity", identity.ID), sl.Err(err))
		s.sendError(c, response.CodeDBError, "failed to load rooms")
		roomList = nil
	}
	for _, room := range roomList {
		s.hub.JoinRoom(c.SessionID(), room.RoomID)
	}

	// A presence-write failure degrades the session but does not kill it.
	if err := s.presence.SetOnline(ctx, identity.ID); err != nil {
		s.log.Error("presence write on connect", slog.String("identity", identity.ID), sl.Err(err))
		s.sendError(c, response.CodeStoreError, "presence unavailable")
	}

	s.hub.SendToSession(c.SessionID(), &ws.Event{
		Type: entity.EvConnectionSuccess,
		Data: response.Ok(map[string]interface{}{
			"identity": identity,
			"rooms":    roomList,
		}),
	})

	s.hub.SendToSession(c.SessionID(), &ws.Event{
		Type: entity.EvAllOnlineUsers,
		Data: response.Ok(s.onlinePeers(ctx, identity.ID, roomList)),
	})

	presenceEvent := &ws.Event{
		Type: entity.EvUserOnline,
		Data: entity.PresencePayload{UserID: identity.ID, DisplayName: identity.DisplayName},
	}
	for _, room := range roomList {
		s.hub.PublishToRoom(room.RoomID, presenceEvent)
		s.refreshOnlineMembers(ctx, room.RoomID)
	}
	s.hub.PublishToIdentity(identity.ID, presenceEvent)

	if identity.IsOperator() {
		assigned, err := s.support.DrainPending(ctx)
		if err != nil {
			s.log.Error("draining pending on operator connect", sl.Err(err))
			return
		}
		s.NotifyAssignments(assigned)
	}
}

// OnDisconnect clears presence once the identity's last session is gone
// and tells every previously-joined room.
func (s *Service) OnDisconnect(c ws.Session, roomIDs []string) {
	ctx := context.Background()
	identity := c.Identity()

	if s.hub.IdentityHasSessions(identity.ID) {
		return
	}

	if err := s.presence.ClearOnline(ctx, identity.ID); err != nil {
		s.log.Error("presence clear on disconnect", slog.String("identity", identity.ID), sl.Err(err))
	}

	offline := &ws.Event{
		Type: entity.EvUserOffline,
		Data: entity.PresencePayload{UserID: identity.ID, DisplayName: identity.DisplayName},
	}
	for _, roomID := range roomIDs {
		s.hub.PublishToRoom(roomID, offline)
		s.refreshOnlineMembers(ctx, roomID)
	}
}

// refreshOnlineMembers pushes a room's current online-member list to all
// its live sessions.
func (s *Service) refreshOnlineMembers(ctx context.Context, roomID string) {
	online, err := s.rooms.OnlineMembers(ctx, roomID)
	if err != nil {
		s.log.Warn("online member refresh", slog.String("room", roomID), sl.Err(err))
		return
	}
	s.hub.PublishToRoom(roomID, &ws.Event{
		Type: entity.EvRoomOnlineMembers,
		Data: entity.RoomMembersPayload{RoomID: roomID, OnlineMemberIDs: online},
	})
}

// onlinePeers collects the online ids across the user's rooms for the
// all_online_users snapshot sent on connect.
func (s *Service) onlinePeers(ctx context.Context, selfID string, roomList []entity.RoomInfo) []string {
	seen := map[string]bool{selfID: true}
	var peers []string
	for _, room := range roomList {
		online, err := s.rooms.OnlineMembers(ctx, room.RoomID)
		if err != nil {
			continue
		}
		for _, id := range online {
			if !seen[id] {
				seen[id] = true
				peers = append(peers, id)
			}
		}
	}
	return peers
}

// NotifyAssignments delivers the outcome of a dispatch pass: operators get
// a targeted ticket alert on their private channel, rooms learn about
// their new handler or their fall back to pending.
func (s *Service) NotifyAssignments(changed []support.Assignment) {
	for _, a := range changed {
		payload := entity.SupportRoomPayload{
			RoomID:     a.Room.ID,
			UserID:     a.Room.RequesterID(),
			OperatorID: a.OperatorID,
			Pending:    a.Pending,
		}

		if a.Pending {
			event := &ws.Event{Type: entity.EvSupportPending, Data: payload}
			s.hub.PublishToRoom(a.Room.ID, event)
			s.hub.PublishToIdentity(a.Room.RequesterID(), event)
			continue
		}

		s.hub.PublishToIdentity(a.OperatorID, &ws.Event{
			Type: entity.EvTicketAssigned,
			Data: payload,
		})
		s.hub.PublishToRoom(a.Room.ID, &ws.Event{
			Type: entity.EvSupportAssigned,
			Data: payload,
		})
		if a.PreviousID != "" && a.PreviousID != a.OperatorID {
			s.hub.PublishToRoom(a.Room.ID, &ws.Event{
				Type: entity.EvSupportAdminChange,
				Data: payload,
			})
		}
	}
}
