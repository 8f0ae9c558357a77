package models

import "github.com/google/uuid"

// ensureID assigns a v4 id client-side so inserts do not depend on a
// database-side uuid default.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
