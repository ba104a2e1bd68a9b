package repository

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"StayDesk/entity"
)

// InsertMessage persists a message and fills in its generated id.
func (m *MongoDB) InsertMessage(msg *entity.Message) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(messagesCollection)

	result, err := collection.InsertOne(m.ctx, msg)
	if err != nil {
		return fmt.Errorf("mongodb insert message: %w", err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		msg.ID = oid
	}
	return nil
}

// ListMessages returns non-deleted messages for a room, newest first.
func (m *MongoDB) ListMessages(conversationID string, limit, offset int) ([]entity.Message, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(messagesCollection)

	filter := bson.D{{Key: "conversation_id", Value: conversationID}, {Key: "deleted", Value: false}}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	cursor, err := collection.Find(m.ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb find messages: %w", err)
	}
	defer cursor.Close(m.ctx)

	var messages []entity.Message
	if err = cursor.All(m.ctx, &messages); err != nil {
		return nil, fmt.Errorf("mongodb decode messages: %w", err)
	}

	return messages, nil
}

// LastMessage returns the newest non-deleted message in a room, or nil.
func (m *MongoDB) LastMessage(conversationID string) (*entity.Message, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(messagesCollection)

	filter := bson.D{{Key: "conversation_id", Value: conversationID}, {Key: "deleted", Value: false}}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})

	var msg entity.Message
	err = collection.FindOne(m.ctx, filter, opts).Decode(&msg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("mongodb find last message: %w", err)
	}

	return &msg, nil
}

// CountMessages counts a room's non-deleted messages.
func (m *MongoDB) CountMessages(conversationID string) (int64, error) {
	connection, err := m.connect()
	if err != nil {
		return 0, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(messagesCollection)
	filter := bson.D{{Key: "conversation_id", Value: conversationID}, {Key: "deleted", Value: false}}

	count, err := collection.CountDocuments(m.ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("mongodb count messages: %w", err)
	}
	return count, nil
}

// SoftDeleteMessage hides a message without removing the row.
func (m *MongoDB) SoftDeleteMessage(id primitive.ObjectID) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(messagesCollection)
	filter := bson.D{{Key: "_id", Value: id}}
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "deleted", Value: true}}}}

	_, err = collection.UpdateOne(m.ctx, filter, update)
	if err != nil {
		return fmt.Errorf("mongodb soft delete message: %w", err)
	}
	return nil
}
