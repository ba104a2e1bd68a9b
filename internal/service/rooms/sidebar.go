package rooms

import (
	"context"

	"StayDesk/entity"
	"StayDesk/internal/lib/sl"
)

// Sidebar assembles the per-room summaries for a user's room list: display
// name, members, last message, unread count and who is online. It is a
// read-model built on demand, nothing here is stored.
func (s *Service) Sidebar(ctx context.Context, userID string) ([]entity.RoomSummary, error) {
	ids, err := s.repo.ListMembershipRoomIDs(userID)
	if err != nil {
		return nil, err
	}
	convs, err := s.repo.ListConversations(ids)
	if err != nil {
		return nil, err
	}

	summaries := make([]entity.RoomSummary, 0, len(convs))
	for _, conv := range convs {
		summary := entity.RoomSummary{
			RoomID:      conv.ID,
			Kind:        conv.Kind,
			DisplayName: s.displayNameFor(&conv, userID),
			Members:     conv.MemberIDs,
		}

		last, err := s.repo.LastMessage(conv.ID)
		if err != nil {
			s.log.Warn("sidebar last message", sl.Err(err))
		} else {
			summary.LastMessage = last
		}

		unread, err := s.UnreadCount(conv.ID, userID)
		if err != nil {
			s.log.Warn("sidebar unread count", sl.Err(err))
		} else {
			summary.UnreadCount = unread
		}

		online, err := s.presence.ListOnline(ctx, conv.MemberIDs)
		if err != nil {
			s.log.Warn("sidebar presence lookup", sl.Err(err))
		}
		summary.OnlineMemberIDs = make([]string, 0, len(online))
		for _, id := range conv.MemberIDs {
			if online[id] {
				summary.OnlineMemberIDs = append(summary.OnlineMemberIDs, id)
			}
		}

		summaries = append(summaries, summary)
	}

	return summaries, nil
}

// OnlineMembers resolves a room's currently online member ids.
func (s *Service) OnlineMembers(ctx context.Context, roomID string) ([]string, error) {
	conv, err := s.repo.GetConversation(roomID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, nil
	}

	online, err := s.presence.ListOnline(ctx, conv.MemberIDs)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(online))
	for _, id := range conv.MemberIDs {
		if online[id] {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
