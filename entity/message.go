package entity

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message is immutable once created, except for soft-delete.
type Message struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ConversationID string             `json:"conversation_id" bson:"conversation_id"`
	SenderID       string             `json:"sender_id" bson:"sender_id"`
	SenderName     string             `json:"sender_name" bson:"sender_name"`
	Text           string             `json:"text" bson:"text"`
	FileRef        string             `json:"file_ref,omitempty" bson:"file_ref,omitempty"`
	ReplyTo        string             `json:"reply_to,omitempty" bson:"reply_to,omitempty"`
	CreatedAt      time.Time          `json:"created_at" bson:"created_at"`
	Deleted        bool               `json:"deleted" bson:"deleted"`
}

// ReadReceipt tracks one user's read state for one message. One row per
// (message, user); mark-all-read bulk-upserts them.
type ReadReceipt struct {
	MessageID      primitive.ObjectID `json:"message_id" bson:"message_id"`
	ConversationID string             `json:"conversation_id" bson:"conversation_id"`
	UserID         string             `json:"user_id" bson:"user_id"`
	Read           bool               `json:"read" bson:"read"`
	ReadAt         time.Time          `json:"read_at" bson:"read_at"`
}
