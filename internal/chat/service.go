package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"StayDesk/entity"
	"StayDesk/internal/lib/api/response"
	"StayDesk/internal/lib/sl"
	"StayDesk/internal/service/rooms"
	"StayDesk/internal/service/support"
	"StayDesk/internal/ws"
)

// Repository is the slice of persistence the chat layer touches directly.
type Repository interface {
	InsertMessage(msg *entity.Message) error
	GetConversation(id string) (*entity.Conversation, error)
}

// Presence is the shared store surface used by the lifecycle handler.
type Presence interface {
	SetOnline(ctx context.Context, identityID string) error
	ClearOnline(ctx context.Context, identityID string) error
	ListOnline(ctx context.Context, identityIDs []string) (map[string]bool, error)
}

// Fanout is the delivery surface the chat layer publishes through. The hub
// implements it; it never looks up room membership itself, callers hand it
// resolved rooms, identities or session ids.
type Fanout interface {
	JoinRoom(sessionID, roomID string)
	IdentityHasSessions(identityID string) bool
	PublishToRoom(roomID string, event *ws.Event)
	PublishToIdentity(identityID string, event *ws.Event)
	SendToSession(sessionID string, event *ws.Event)
}

// handlerFunc handles one inbound event kind and returns the reply event,
// if any. Errors are translated to an error envelope for that one event;
// they never affect other sessions.
type handlerFunc func(ctx context.Context, c ws.Session, data json.RawMessage) (*ws.Event, error)

// Service orchestrates sessions: it authenticates connects, routes inbound
// events to typed handlers and fans results out through the hub.
type Service struct {
	hub      Fanout
	rooms    *rooms.Service
	support  *support.Service
	presence Presence
	repo     Repository
	log      *slog.Logger
	handlers map[string]handlerFunc
}

func NewService(hub Fanout, roomsSvc *rooms.Service, supportSvc *support.Service, presence Presence, repo Repository, logger *slog.Logger) *Service {
	s := &Service{
		hub:      hub,
		rooms:    roomsSvc,
		support:  supportSvc,
		presence: presence,
		repo:     repo,
		log:      logger.With(sl.Module("chat-service")),
	}
	s.handlers = map[string]handlerFunc{
		entity.EvGetRooms:         s.handleGetRooms,
		entity.EvJoinRoom:         s.handleJoinRoom,
		entity.EvCreateMessage:    s.handleCreateMessage,
		entity.EvMarkRoomRead:     s.handleMarkRoomRead,
		entity.EvGetUnreadCount:   s.handleGetUnreadCount,
		entity.EvRequestSupport:   s.handleRequestSupport,
		entity.EvAdminJoinSupport: s.handleAdminJoinSupport,
		entity.EvCloseSupportRoom: s.handleCloseSupportRoom,
	}
	return s
}

// OnEvent routes one inbound frame to its handler.
func (s *Service) OnEvent(c ws.Session, eventType string, data json.RawMessage) {
	handler, ok := s.handlers[eventType]
	if !ok {
		s.sendError(c, response.CodeBadRequest, "unknown event type: "+eventType)
		return
	}

	ctx := context.Background()
	reply, err := handler(ctx, c, data)
	if err != nil {
		s.log.Warn("event handler failed",
			slog.String("event", eventType),
			slog.String("identity", c.Identity().ID),
			sl.Err(err),
		)
		s.sendError(c, codeFor(err), err.Error())
		return
	}
	if reply != nil {
		s.hub.SendToSession(c.SessionID(), reply)
	}
}

func (s *Service) sendError(c ws.Session, code, message string) {
	s.hub.SendToSession(c.SessionID(), &ws.Event{
		Type: entity.EvError,
		Data: response.ErrorCode(code, message),
	})
}

// codeFor maps service errors onto the envelope's machine-readable codes.
func codeFor(err error) string {
	switch {
	case errors.Is(err, rooms.ErrNotMember):
		return response.CodeNotMember
	case errors.Is(err, support.ErrNotFound):
		return response.CodeNotFound
	case errors.Is(err, support.ErrOperatorOffline),
		errors.Is(err, support.ErrNotSupportRoom),
		errors.Is(err, support.ErrNotAnOperator),
		errors.Is(err, support.ErrRoomClosed):
		return response.CodeNotAllowed
	case errors.Is(err, errBadPayload):
		return response.CodeBadRequest
	default:
		return response.CodeDBError
	}
}
