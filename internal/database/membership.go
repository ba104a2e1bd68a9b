package repository

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"StayDesk/entity"
)

// AddMember records room membership. The write is an upsert keyed on
// (user_id, conversation_id): concurrent joins land on the same row instead
// of duplicating it. The conversation's member list is kept in step with
// an $addToSet for the same reason.
func (m *MongoDB) AddMember(member entity.Membership) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	db := connection.Database(m.database)

	filter := bson.D{
		{Key: "user_id", Value: member.UserID},
		{Key: "conversation_id", Value: member.ConversationID},
	}
	update := bson.D{{Key: "$setOnInsert", Value: member}}
	opts := options.Update().SetUpsert(true)

	if _, err = db.Collection(membershipsCollection).UpdateOne(m.ctx, filter, update, opts); err != nil {
		return fmt.Errorf("mongodb upsert membership: %w", err)
	}

	convFilter := bson.D{{Key: "_id", Value: member.ConversationID}}
	convUpdate := bson.D{{Key: "$addToSet", Value: bson.D{{Key: "member_ids", Value: member.UserID}}}}
	if _, err = db.Collection(conversationsCollection).UpdateOne(m.ctx, convFilter, convUpdate); err != nil {
		return fmt.Errorf("mongodb add member id: %w", err)
	}

	return nil
}

// RemoveMember drops a membership row; removing a non-member is a no-op.
func (m *MongoDB) RemoveMember(userID, conversationID string) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	db := connection.Database(m.database)

	filter := bson.D{
		{Key: "user_id", Value: userID},
		{Key: "conversation_id", Value: conversationID},
	}
	if _, err = db.Collection(membershipsCollection).DeleteOne(m.ctx, filter); err != nil {
		return fmt.Errorf("mongodb delete membership: %w", err)
	}

	convFilter := bson.D{{Key: "_id", Value: conversationID}}
	convUpdate := bson.D{{Key: "$pull", Value: bson.D{{Key: "member_ids", Value: userID}}}}
	if _, err = db.Collection(conversationsCollection).UpdateOne(m.ctx, convFilter, convUpdate); err != nil {
		return fmt.Errorf("mongodb pull member id: %w", err)
	}

	return nil
}

// IsMember reports whether a live membership row exists.
func (m *MongoDB) IsMember(userID, conversationID string) (bool, error) {
	connection, err := m.connect()
	if err != nil {
		return false, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(membershipsCollection)
	filter := bson.D{
		{Key: "user_id", Value: userID},
		{Key: "conversation_id", Value: conversationID},
	}

	count, err := collection.CountDocuments(m.ctx, filter)
	if err != nil {
		return false, fmt.Errorf("mongodb count membership: %w", err)
	}

	return count > 0, nil
}

// ListMembershipRoomIDs returns the ids of every room the user holds a
// membership row in.
func (m *MongoDB) ListMembershipRoomIDs(userID string) ([]string, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(membershipsCollection)
	filter := bson.D{{Key: "user_id", Value: userID}}

	cursor, err := collection.Find(m.ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("mongodb find memberships: %w", err)
	}
	defer cursor.Close(m.ctx)

	var rows []entity.Membership
	if err = cursor.All(m.ctx, &rows); err != nil {
		return nil, fmt.Errorf("mongodb decode memberships: %w", err)
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ConversationID)
	}
	return ids, nil
}
