package security

import "github.com/google/uuid"

// Principal is the authenticated caller on whose behalf a transfer runs.
// The transfer engine never decides identity; it is handed one of these.
type Principal struct {
	UserID uuid.UUID
}

func (p Principal) Valid() bool {
	return p.UserID != uuid.Nil
}
