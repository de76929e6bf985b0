package domain

import "github.com/google/uuid"

// ConnectionID identifies one live transport session. A user may own any
// number of simultaneous connections (multiple tabs, devices).
type ConnectionID string

func NewConnectionID() ConnectionID { return ConnectionID(uuid.NewString()) }
