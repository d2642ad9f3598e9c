// internal/types/ids.go
package types

import "github.com/google/uuid"

type CallID string
type EventID string

func NewEventID() EventID {
	return EventID(uuid.New().String())
}
