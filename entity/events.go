package entity

import (
	"StayDesk/internal/lib/validate"
)

// Inbound event kinds accepted over the websocket.
const (
	EvGetRooms         = "get_rooms"
	EvJoinRoom         = "join_room"
	EvCreateMessage    = "create_message"
	EvMarkRoomRead     = "mark_room_read"
	EvGetUnreadCount   = "get_unread_count"
	EvRequestSupport   = "user_request_support"
	EvAdminJoinSupport = "admin_join_support_room"
	EvCloseSupportRoom = "close_support_room"
)

// Outbound event kinds.
const (
	EvRooms              = "rooms"
	EvNewMessage         = "new_message"
	EvRoomMarkedRead     = "room_marked_read"
	EvUnreadCountUpdated = "unread_count_updated"
	EvUserOnline         = "user_online"
	EvUserOffline        = "user_offline"
	EvAllOnlineUsers     = "all_online_users"
	EvRoomOnlineMembers  = "room_online_members"
	EvSupportPending     = "support_room_pending"
	EvSupportAssigned    = "support_room_assigned"
	EvTicketAssigned     = "support_ticket_assigned"
	EvSupportAdminJoined = "support_admin_joined"
	EvSupportAdminChange = "support_admin_changed"
	EvSupportClosed      = "support_room_closed"
	EvConnectionSuccess  = "connection_success"
	EvAuthError          = "auth_error"
	EvError              = "error"
)

// RoomRef is the payload of every inbound event that targets one room.
type RoomRef struct {
	RoomID string `json:"room_id" validate:"required"`
}

func (r *RoomRef) Validate() error {
	return validate.Struct(r)
}

// CreateMessagePayload is the inbound create_message payload.
type CreateMessagePayload struct {
	RoomID  string `json:"room_id" validate:"required"`
	Text    string `json:"text" validate:"required,max=4000"`
	FileRef string `json:"file_ref" validate:"omitempty,max=512"`
	ReplyTo string `json:"reply_to" validate:"omitempty"`
}

func (p *CreateMessagePayload) Validate() error {
	return validate.Struct(p)
}

// UnreadCountPayload reports one room's unread counter to one user.
type UnreadCountPayload struct {
	RoomID string `json:"room_id"`
	Count  int    `json:"count"`
}

// PresencePayload announces an identity's presence change.
type PresencePayload struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// RoomMembersPayload refreshes a room's online-member list.
type RoomMembersPayload struct {
	RoomID          string   `json:"room_id"`
	OnlineMemberIDs []string `json:"online_member_ids"`
}

// SupportRoomPayload describes a support room state change.
type SupportRoomPayload struct {
	RoomID     string `json:"room_id"`
	UserID     string `json:"user_id"`
	OperatorID string `json:"operator_id,omitempty"`
	Pending    bool   `json:"pending"`
}

// MarkedReadPayload confirms a mark_room_read request.
type MarkedReadPayload struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}
