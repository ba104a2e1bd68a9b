package entity

const (
	UserRole     = "user"
	OperatorRole = "operator"
)

// Identity is an authenticated participant. Owned by the external identity
// subsystem; referenced here, never mutated.
type Identity struct {
	ID          string `json:"id" bson:"_id"`
	DisplayName string `json:"display_name" bson:"display_name"`
	Role        string `json:"role" bson:"role"`
}

func (i *Identity) IsOperator() bool {
	return i.Role == OperatorRole
}
