package repository

import (
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"StayDesk/entity"
)

// InsertConversation persists a newly created room.
func (m *MongoDB) InsertConversation(conv *entity.Conversation) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(conversationsCollection)
	_, err = collection.InsertOne(m.ctx, conv)
	if err != nil {
		return fmt.Errorf("mongodb insert conversation: %w", err)
	}
	return nil
}

// GetConversation returns a room by id, or nil when unknown.
func (m *MongoDB) GetConversation(id string) (*entity.Conversation, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(conversationsCollection)
	filter := bson.D{{Key: "_id", Value: id}}

	var conv entity.Conversation
	err = collection.FindOne(m.ctx, filter).Decode(&conv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("mongodb find conversation: %w", err)
	}

	return &conv, nil
}

// OpenSupportRoomFor returns the user's open support room, or nil.
// A user can only ever have one open support room at a time.
func (m *MongoDB) OpenSupportRoomFor(userID string) (*entity.Conversation, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(conversationsCollection)
	filter := bson.D{
		{Key: "kind", Value: entity.SupportKind},
		{Key: "member_ids", Value: userID},
		{Key: "active", Value: true},
		{Key: "deleted", Value: false},
	}

	var conv entity.Conversation
	err = collection.FindOne(m.ctx, filter).Decode(&conv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("mongodb find support room: %w", err)
	}

	return &conv, nil
}

// ListConversations returns the open rooms for a set of ids.
func (m *MongoDB) ListConversations(ids []string) ([]entity.Conversation, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(conversationsCollection)
	filter := bson.D{
		{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}},
		{Key: "active", Value: true},
		{Key: "deleted", Value: false},
	}

	cursor, err := collection.Find(m.ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("mongodb find conversations: %w", err)
	}
	defer cursor.Close(m.ctx)

	var convs []entity.Conversation
	if err = cursor.All(m.ctx, &convs); err != nil {
		return nil, fmt.Errorf("mongodb decode conversations: %w", err)
	}

	return convs, nil
}

// ListPendingSupportRooms returns every open support room with no operator.
func (m *MongoDB) ListPendingSupportRooms() ([]entity.Conversation, error) {
	return m.listSupportRooms(bson.D{
		{Key: "kind", Value: entity.SupportKind},
		{Key: "pending", Value: true},
		{Key: "active", Value: true},
		{Key: "deleted", Value: false},
	})
}

// ListAssignedSupportRooms returns every open support room with a current
// operator, the candidates for timeout reconciliation.
func (m *MongoDB) ListAssignedSupportRooms() ([]entity.Conversation, error) {
	return m.listSupportRooms(bson.D{
		{Key: "kind", Value: entity.SupportKind},
		{Key: "pending", Value: false},
		{Key: "active", Value: true},
		{Key: "deleted", Value: false},
		{Key: "current_operator_id", Value: bson.D{{Key: "$exists", Value: true}, {Key: "$ne", Value: ""}}},
	})
}

func (m *MongoDB) listSupportRooms(filter bson.D) ([]entity.Conversation, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(conversationsCollection)

	cursor, err := collection.Find(m.ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("mongodb find support rooms: %w", err)
	}
	defer cursor.Close(m.ctx)

	var convs []entity.Conversation
	if err = cursor.All(m.ctx, &convs); err != nil {
		return nil, fmt.Errorf("mongodb decode support rooms: %w", err)
	}

	return convs, nil
}

// SetOperator makes operatorID the current operator of a support room and
// clears its pending flag. Repeating the call is a no-op.
func (m *MongoDB) SetOperator(roomID, operatorID string) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(conversationsCollection)
	filter := bson.D{{Key: "_id", Value: roomID}}
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "current_operator_id", Value: operatorID},
			{Key: "pending", Value: false},
		}},
		{Key: "$addToSet", Value: bson.D{{Key: "assigned_operator_ids", Value: operatorID}}},
	}

	_, err = collection.UpdateOne(m.ctx, filter, update)
	if err != nil {
		return fmt.Errorf("mongodb set operator: %w", err)
	}
	return nil
}

// DemoteToPending drops a support room back to the unassigned state.
func (m *MongoDB) DemoteToPending(roomID string) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(conversationsCollection)
	filter := bson.D{{Key: "_id", Value: roomID}}
	update := bson.D{
		{Key: "$set", Value: bson.D{{Key: "pending", Value: true}}},
		{Key: "$unset", Value: bson.D{{Key: "current_operator_id", Value: ""}}},
	}

	_, err = collection.UpdateOne(m.ctx, filter, update)
	if err != nil {
		return fmt.Errorf("mongodb demote to pending: %w", err)
	}
	return nil
}

// CloseConversation soft-closes a room. Support rooms cascade: membership,
// message and receipt rows are removed outright. Other kinds keep history
// and only record the deletion timestamp.
func (m *MongoDB) CloseConversation(conv *entity.Conversation) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	db := connection.Database(m.database)
	now := time.Now()

	filter := bson.D{{Key: "_id", Value: conv.ID}}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "active", Value: false},
		{Key: "deleted", Value: true},
		{Key: "deleted_at", Value: now},
	}}}
	if _, err = db.Collection(conversationsCollection).UpdateOne(m.ctx, filter, update); err != nil {
		return fmt.Errorf("mongodb close conversation: %w", err)
	}

	if conv.Kind != entity.SupportKind {
		return nil
	}

	roomFilter := bson.D{{Key: "conversation_id", Value: conv.ID}}
	if _, err = db.Collection(membershipsCollection).DeleteMany(m.ctx, roomFilter); err != nil {
		return fmt.Errorf("mongodb cascade memberships: %w", err)
	}
	if _, err = db.Collection(messagesCollection).DeleteMany(m.ctx, roomFilter); err != nil {
		return fmt.Errorf("mongodb cascade messages: %w", err)
	}
	if _, err = db.Collection(readReceiptsCollection).DeleteMany(m.ctx, roomFilter); err != nil {
		return fmt.Errorf("mongodb cascade receipts: %w", err)
	}

	return nil
}

// OperatorLoads counts, per operator, the support rooms they are actively
// handling right now. Pending and closed rooms do not count.
func (m *MongoDB) OperatorLoads() (map[string]int, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(conversationsCollection)

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "kind", Value: entity.SupportKind},
			{Key: "pending", Value: false},
			{Key: "active", Value: true},
			{Key: "deleted", Value: false},
			{Key: "current_operator_id", Value: bson.D{{Key: "$exists", Value: true}, {Key: "$ne", Value: ""}}},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$current_operator_id"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cursor, err := collection.Aggregate(m.ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("mongodb aggregate operator loads: %w", err)
	}
	defer cursor.Close(m.ctx)

	loads := make(map[string]int)
	for cursor.Next(m.ctx) {
		var row struct {
			ID    string `bson:"_id"`
			Count int    `bson:"count"`
		}
		if err := cursor.Decode(&row); err != nil {
			continue
		}
		loads[row.ID] = row.Count
	}

	return loads, nil
}
