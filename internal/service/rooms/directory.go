package rooms

import (
	"context"
	"errors"
	"log/slog"

	"StayDesk/entity"
	"StayDesk/internal/lib/sl"
)

var ErrNotMember = errors.New("not a room member")

// Repository is the persistence surface the directory needs.
type Repository interface {
	ListMembershipRoomIDs(userID string) ([]string, error)
	ListConversations(ids []string) ([]entity.Conversation, error)
	GetConversation(id string) (*entity.Conversation, error)
	IsMember(userID, conversationID string) (bool, error)
	AddMember(member entity.Membership) error
	RemoveMember(userID, conversationID string) error
	GetIdentity(id string) (*entity.Identity, error)
	LastMessage(conversationID string) (*entity.Message, error)
	ListMessages(conversationID string, limit, offset int) ([]entity.Message, error)
	CountMessages(conversationID string) (int64, error)
	CountReadReceipts(conversationID, userID string) (int64, error)
	MarkAllRead(conversationID, userID string) error
}

// Presence answers online queries against the shared store.
type Presence interface {
	ListOnline(ctx context.Context, identityIDs []string) (map[string]bool, error)
}

// Service is the room directory: persisted membership and metadata plus the
// read-models assembled from it.
type Service struct {
	repo     Repository
	presence Presence
	log      *slog.Logger
}

func NewService(repo Repository, presence Presence, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		presence: presence,
		log:      logger.With(sl.Module("rooms-service")),
	}
}

// ListRoomsFor returns the open rooms where the user holds a live
// membership row.
func (s *Service) ListRoomsFor(userID string) ([]entity.RoomInfo, error) {
	ids, err := s.repo.ListMembershipRoomIDs(userID)
	if err != nil {
		return nil, err
	}

	convs, err := s.repo.ListConversations(ids)
	if err != nil {
		return nil, err
	}

	infos := make([]entity.RoomInfo, 0, len(convs))
	for _, conv := range convs {
		infos = append(infos, entity.RoomInfo{
			RoomID: conv.ID,
			Name:   s.displayNameFor(&conv, userID),
			Kind:   conv.Kind,
		})
	}
	return infos, nil
}

// IsMember fails closed: any lookup error reads as "not a member".
func (s *Service) IsMember(userID, roomID string) bool {
	ok, err := s.repo.IsMember(userID, roomID)
	if err != nil {
		s.log.Warn("membership check failed, treating as non-member",
			slog.String("user", userID),
			slog.String("room", roomID),
			sl.Err(err),
		)
		return false
	}
	return ok
}

// IsOperator reports whether the user is among the room's assigned
// operators. Fails closed like IsMember.
func (s *Service) IsOperator(userID, roomID string) bool {
	conv, err := s.repo.GetConversation(roomID)
	if err != nil || conv == nil {
		return false
	}
	if conv.CurrentOperatorID == userID {
		return true
	}
	for _, id := range conv.AssignedOperatorIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// AddMember is idempotent: joining a room twice leaves one membership row.
func (s *Service) AddMember(userID, roomID, role string) error {
	return s.repo.AddMember(entity.NewMembership(userID, roomID, role))
}

func (s *Service) RemoveMember(userID, roomID string) error {
	return s.repo.RemoveMember(userID, roomID)
}

// History returns a page of a room's messages, newest first, for members
// only.
func (s *Service) History(userID, roomID string, limit, offset int) ([]entity.Message, error) {
	if !s.IsMember(userID, roomID) {
		return nil, ErrNotMember
	}
	return s.repo.ListMessages(roomID, limit, offset)
}

// displayNameFor resolves what the viewer should see as the room title.
// Private rooms show the other member's name, groups get a label prefix.
func (s *Service) displayNameFor(conv *entity.Conversation, viewerID string) string {
	switch conv.Kind {
	case entity.PrivateKind:
		for _, id := range conv.MemberIDs {
			if id == viewerID {
				continue
			}
			other, err := s.repo.GetIdentity(id)
			if err != nil || other == nil {
				return id
			}
			return other.DisplayName
		}
		return conv.Name
	case entity.GroupKind:
		return entity.GroupNamePrefix + conv.Name
	default:
		return conv.Name
	}
}
