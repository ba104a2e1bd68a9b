package entity

import (
	"time"

	"github.com/google/uuid"
)

const (
	PrivateKind = "private"
	GroupKind   = "group"
	SupportKind = "support"
)

const (
	MemberRole      = "member"
	RoomAdminRole   = "admin"
	GroupNamePrefix = "Group: "
)

// Conversation is a set of identities that can exchange messages.
type Conversation struct {
	ID                  string     `json:"id" bson:"_id"`
	Kind                string     `json:"kind" bson:"kind"`
	Name                string     `json:"name" bson:"name"`
	MemberIDs           []string   `json:"member_ids" bson:"member_ids"`
	AssignedOperatorIDs []string   `json:"assigned_operator_ids" bson:"assigned_operator_ids"`
	CurrentOperatorID   string     `json:"current_operator_id,omitempty" bson:"current_operator_id,omitempty"`
	Pending             bool       `json:"pending" bson:"pending"`
	Active              bool       `json:"active" bson:"active"`
	Deleted             bool       `json:"deleted" bson:"deleted"`
	CreatedBy           string     `json:"created_by" bson:"created_by"`
	CreatedAt           time.Time  `json:"created_at" bson:"created_at"`
	DeletedAt           *time.Time `json:"deleted_at,omitempty" bson:"deleted_at,omitempty"`
}

// NewSupportConversation builds a support room for a single requesting user.
// With no operator it starts pending; assigning an operator clears that.
func NewSupportConversation(userID string) *Conversation {
	return &Conversation{
		ID:        uuid.NewString(),
		Kind:      SupportKind,
		Name:      "Support",
		MemberIDs: []string{userID},
		Pending:   true,
		Active:    true,
		CreatedBy: userID,
		CreatedAt: time.Now(),
	}
}

// NewPrivateConversation builds a two-party room. Private rooms carry
// exactly two distinct members and no operator fields.
func NewPrivateConversation(creatorID, otherID string) *Conversation {
	return &Conversation{
		ID:        uuid.NewString(),
		Kind:      PrivateKind,
		MemberIDs: []string{creatorID, otherID},
		Active:    true,
		CreatedBy: creatorID,
		CreatedAt: time.Now(),
	}
}

// NewGroupConversation builds a named multi-party room.
func NewGroupConversation(creatorID, name string, memberIDs []string) *Conversation {
	return &Conversation{
		ID:        uuid.NewString(),
		Kind:      GroupKind,
		Name:      name,
		MemberIDs: memberIDs,
		Active:    true,
		CreatedBy: creatorID,
		CreatedAt: time.Now(),
	}
}

func (c *Conversation) IsSupport() bool {
	return c.Kind == SupportKind
}

// IsOpen reports whether the conversation still accepts traffic.
func (c *Conversation) IsOpen() bool {
	return c.Active && !c.Deleted
}

// HasMember checks the persisted member list, not live sessions.
func (c *Conversation) HasMember(userID string) bool {
	for _, id := range c.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// RequesterID returns the non-operator member of a support room, the user
// the ticket was opened for.
func (c *Conversation) RequesterID() string {
	if c.Kind != SupportKind {
		return ""
	}
	return c.CreatedBy
}

// Membership is one row per (user, conversation) pair. Duplicates are a
// defect: writes go through an idempotent upsert, never a blind insert.
type Membership struct {
	UserID         string    `json:"user_id" bson:"user_id"`
	ConversationID string    `json:"conversation_id" bson:"conversation_id"`
	Role           string    `json:"role" bson:"role"`
	JoinedAt       time.Time `json:"joined_at" bson:"joined_at"`
}

func NewMembership(userID, conversationID, role string) Membership {
	return Membership{
		UserID:         userID,
		ConversationID: conversationID,
		Role:           role,
		JoinedAt:       time.Now(),
	}
}

// RoomSummary is the sidebar read-model for one room, assembled on demand.
type RoomSummary struct {
	RoomID          string   `json:"room_id"`
	Kind            string   `json:"kind"`
	DisplayName     string   `json:"display_name"`
	Members         []string `json:"members"`
	LastMessage     *Message `json:"last_message,omitempty"`
	UnreadCount     int      `json:"unread_count"`
	OnlineMemberIDs []string `json:"online_member_ids"`
}

// RoomInfo is the compact room listing returned on get_rooms.
type RoomInfo struct {
	RoomID string `json:"room_id"`
	Name   string `json:"name"`
	Kind   string `json:"kind"`
}
