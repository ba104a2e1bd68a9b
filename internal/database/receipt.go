package repository

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"StayDesk/entity"
)

// MarkAllRead upserts a read receipt for every non-deleted message in the
// room. Keyed on (message_id, user_id), so repeating the call is a no-op.
func (m *MongoDB) MarkAllRead(conversationID, userID string) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	db := connection.Database(m.database)

	msgFilter := bson.D{{Key: "conversation_id", Value: conversationID}, {Key: "deleted", Value: false}}
	msgOpts := options.Find().SetProjection(bson.D{{Key: "_id", Value: 1}})
	cursor, err := db.Collection(messagesCollection).Find(m.ctx, msgFilter, msgOpts)
	if err != nil {
		return fmt.Errorf("mongodb find messages for receipts: %w", err)
	}
	defer cursor.Close(m.ctx)

	var rows []entity.Message
	if err = cursor.All(m.ctx, &rows); err != nil {
		return fmt.Errorf("mongodb decode message ids: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	now := time.Now()
	models := make([]mongo.WriteModel, 0, len(rows))
	for _, row := range rows {
		receipt := entity.ReadReceipt{
			MessageID:      row.ID,
			ConversationID: conversationID,
			UserID:         userID,
			Read:           true,
			ReadAt:         now,
		}
		filter := bson.D{{Key: "message_id", Value: row.ID}, {Key: "user_id", Value: userID}}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(filter).
			SetUpdate(bson.D{{Key: "$set", Value: receipt}}).
			SetUpsert(true))
	}

	opts := options.BulkWrite().SetOrdered(false)
	if _, err = db.Collection(readReceiptsCollection).BulkWrite(m.ctx, models, opts); err != nil {
		return fmt.Errorf("mongodb bulk upsert receipts: %w", err)
	}

	return nil
}

// CountReadReceipts counts the messages of a room the user has marked read.
func (m *MongoDB) CountReadReceipts(conversationID, userID string) (int64, error) {
	connection, err := m.connect()
	if err != nil {
		return 0, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(readReceiptsCollection)
	filter := bson.D{
		{Key: "conversation_id", Value: conversationID},
		{Key: "user_id", Value: userID},
		{Key: "read", Value: true},
	}

	count, err := collection.CountDocuments(m.ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("mongodb count receipts: %w", err)
	}
	return count, nil
}
