package repository

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"StayDesk/entity"
)

// GetIdentity returns the identity record by id, or nil when unknown.
// Identities are written by the external identity subsystem.
func (m *MongoDB) GetIdentity(id string) (*entity.Identity, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(usersCollection)
	filter := bson.D{{Key: "_id", Value: id}}

	var identity entity.Identity
	err = collection.FindOne(m.ctx, filter).Decode(&identity)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("mongodb find identity: %w", err)
	}

	return &identity, nil
}

// ListOperators returns every identity carrying the operator role.
func (m *MongoDB) ListOperators() ([]entity.Identity, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(usersCollection)
	filter := bson.D{{Key: "role", Value: entity.OperatorRole}}

	cursor, err := collection.Find(m.ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("mongodb find operators: %w", err)
	}
	defer cursor.Close(m.ctx)

	var operators []entity.Identity
	if err = cursor.All(m.ctx, &operators); err != nil {
		return nil, fmt.Errorf("mongodb decode operators: %w", err)
	}

	return operators, nil
}
