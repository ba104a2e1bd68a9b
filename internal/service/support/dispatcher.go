package support

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"StayDesk/entity"
	"StayDesk/internal/lib/sl"
)

var (
	ErrNotFound        = errors.New("support room not found")
	ErrNotSupportRoom  = errors.New("not a support room")
	ErrRoomClosed      = errors.New("support room is closed")
	ErrOperatorOffline = errors.New("operator is not online")
	ErrNotAnOperator   = errors.New("identity is not an operator")
)

// Repository is the persistence surface of the dispatcher.
type Repository interface {
	OpenSupportRoomFor(userID string) (*entity.Conversation, error)
	InsertConversation(conv *entity.Conversation) error
	GetConversation(id string) (*entity.Conversation, error)
	AddMember(member entity.Membership) error
	SetOperator(roomID, operatorID string) error
	DemoteToPending(roomID string) error
	ListPendingSupportRooms() ([]entity.Conversation, error)
	ListAssignedSupportRooms() ([]entity.Conversation, error)
	OperatorLoads() (map[string]int, error)
	ListOperators() ([]entity.Identity, error)
	CloseConversation(conv *entity.Conversation) error
}

// Presence answers online queries against the shared store.
type Presence interface {
	IsOnline(ctx context.Context, identityID string) (bool, error)
	ListOnline(ctx context.Context, identityIDs []string) (map[string]bool, error)
}

// Timers is the shared dead-man's switch per assigned support room: while
// the key lives the operator is within the grace period, its absence means
// the assignment is due for re-evaluation. Writes from concurrent instances
// are last-writer-wins; the reconcile loops converge on the result.
type Timers interface {
	SetTimer(ctx context.Context, roomID, operatorID string) error
	TimerActive(ctx context.Context, roomID string) (bool, error)
	ClearTimer(ctx context.Context, roomID string) error
}

// Alerter pushes an out-of-band note to the admin channel.
type Alerter interface {
	SendMessage(msg string)
}

// Assignment reports one room whose operator changed, for the caller to
// notify affected parties.
type Assignment struct {
	Room       *entity.Conversation
	OperatorID string
	PreviousID string
	Pending    bool
}

// Service assigns unattended support rooms to the least-loaded available
// operator and re-evaluates assignments whose timer lapsed.
type Service struct {
	repo     Repository
	presence Presence
	timers   Timers
	alerter  Alerter
	log      *slog.Logger
}

func NewService(repo Repository, presence Presence, timers Timers, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		presence: presence,
		timers:   timers,
		log:      logger.With(sl.Module("support-dispatcher")),
	}
}

// SetAlerter wires the optional admin alert channel.
func (s *Service) SetAlerter(alerter Alerter) {
	s.alerter = alerter
}

// RequestSupport opens (or returns) the user's support room. A user can
// only ever have one open support room: repeating the request returns the
// same room. With no operator online the room stays pending; otherwise the
// least-loaded online operator is assigned and the grace timer armed.
// The second return reports whether the room was newly created.
func (s *Service) RequestSupport(ctx context.Context, user entity.Identity) (*entity.Conversation, bool, error) {
	existing, err := s.repo.OpenSupportRoomFor(user.ID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	conv := entity.NewSupportConversation(user.ID)

	operatorID, err := s.leastLoaded(ctx, "")
	if err != nil {
		return nil, false, err
	}

	if operatorID != "" {
		conv.Pending = false
		conv.CurrentOperatorID = operatorID
		conv.AssignedOperatorIDs = []string{operatorID}
		conv.MemberIDs = []string{user.ID, operatorID}
	}

	if err := s.repo.InsertConversation(conv); err != nil {
		return nil, false, err
	}
	if err := s.repo.AddMember(entity.NewMembership(user.ID, conv.ID, entity.MemberRole)); err != nil {
		return nil, false, err
	}

	if operatorID == "" {
		s.log.Info("support room pending, no operator online",
			slog.String("room", conv.ID),
			slog.String("user", user.ID),
		)
		if s.alerter != nil {
			s.alerter.SendMessage(fmt.Sprintf("Support request from %s is waiting: no operator online", user.DisplayName))
		}
		return conv, true, nil
	}

	if err := s.repo.AddMember(entity.NewMembership(operatorID, conv.ID, entity.RoomAdminRole)); err != nil {
		return nil, false, err
	}
	if err := s.timers.SetTimer(ctx, conv.ID, operatorID); err != nil {
		return nil, false, err
	}

	s.log.Info("support room assigned",
		slog.String("room", conv.ID),
		slog.String("user", user.ID),
		slog.String("operator", operatorID),
	)
	return conv, true, nil
}

// OperatorJoin makes the operator the room's current handler. Only online
// operators may join; the check runs before any mutation. Joining a room
// you already handle just re-arms the timer.
func (s *Service) OperatorJoin(ctx context.Context, roomID, operatorID string) (*entity.Conversation, string, error) {
	conv, err := s.repo.GetConversation(roomID)
	if err != nil {
		return nil, "", err
	}
	if conv == nil {
		return nil, "", ErrNotFound
	}
	if !conv.IsSupport() {
		return nil, "", ErrNotSupportRoom
	}
	if !conv.IsOpen() {
		return nil, "", ErrRoomClosed
	}

	online, err := s.presence.IsOnline(ctx, operatorID)
	if err != nil {
		return nil, "", err
	}
	if !online {
		return nil, "", ErrOperatorOffline
	}

	previous := conv.CurrentOperatorID
	if previous == operatorID {
		if err := s.timers.SetTimer(ctx, roomID, operatorID); err != nil {
			return nil, "", err
		}
		return conv, previous, nil
	}

	if err := s.repo.AddMember(entity.NewMembership(operatorID, roomID, entity.RoomAdminRole)); err != nil {
		return nil, "", err
	}
	if err := s.repo.SetOperator(roomID, operatorID); err != nil {
		return nil, "", err
	}
	if err := s.timers.SetTimer(ctx, roomID, operatorID); err != nil {
		return nil, "", err
	}

	conv.CurrentOperatorID = operatorID
	conv.Pending = false
	conv.AssignedOperatorIDs = appendUnique(conv.AssignedOperatorIDs, operatorID)
	if !conv.HasMember(operatorID) {
		conv.MemberIDs = append(conv.MemberIDs, operatorID)
	}

	s.log.Info("operator joined support room",
		slog.String("room", roomID),
		slog.String("operator", operatorID),
		slog.String("previous", previous),
	)
	return conv, previous, nil
}

// CloseRoom soft-closes a support room and disarms its timer.
func (s *Service) CloseRoom(ctx context.Context, roomID string) (*entity.Conversation, error) {
	conv, err := s.repo.GetConversation(roomID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrNotFound
	}
	if !conv.IsSupport() {
		return nil, ErrNotSupportRoom
	}
	if !conv.IsOpen() {
		return nil, ErrRoomClosed
	}

	if err := s.repo.CloseConversation(conv); err != nil {
		return nil, err
	}
	if err := s.timers.ClearTimer(ctx, roomID); err != nil {
		s.log.Warn("clearing assignment timer", slog.String("room", roomID), sl.Err(err))
	}

	conv.Active = false
	conv.Deleted = true
	return conv, nil
}

// leastLoaded picks the online operator currently handling the fewest
// active support rooms, skipping exclude. Ties fall to the first id in
// sorted order; exact tie behavior is deliberately unspecified beyond
// being stable. Returns "" when no operator qualifies.
func (s *Service) leastLoaded(ctx context.Context, exclude string) (string, error) {
	candidates, loads, err := s.onlineOperators(ctx, exclude)
	if err != nil {
		return "", err
	}
	return pickLeastLoaded(candidates, loads), nil
}

// onlineOperators resolves the eligible operator set and their current
// loads in one pass, for callers that assign more than one room.
func (s *Service) onlineOperators(ctx context.Context, exclude string) ([]string, map[string]int, error) {
	operators, err := s.repo.ListOperators()
	if err != nil {
		return nil, nil, err
	}
	if len(operators) == 0 {
		return nil, nil, nil
	}

	ids := make([]string, 0, len(operators))
	for _, op := range operators {
		if op.ID != exclude {
			ids = append(ids, op.ID)
		}
	}

	online, err := s.presence.ListOnline(ctx, ids)
	if err != nil {
		return nil, nil, err
	}

	candidates := make([]string, 0, len(online))
	for _, id := range ids {
		if online[id] {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return nil, nil, nil
	}
	sort.Strings(candidates)

	loads, err := s.repo.OperatorLoads()
	if err != nil {
		return nil, nil, err
	}

	return candidates, loads, nil
}

func pickLeastLoaded(candidates []string, loads map[string]int) string {
	best := ""
	bestLoad := 0
	for _, id := range candidates {
		load := loads[id]
		if best == "" || load < bestLoad {
			best = id
			bestLoad = load
		}
	}
	return best
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
