// Package event turns recorded modifications into authorizable lifecycle
// events and delivers them to subscribers.
package event

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"nakamura/internal/authorizable"
	"nakamura/internal/change"
)

// Delivery errors.
var (
	ErrBusClosed = errors.New("event bus is closed")
	ErrBusFull   = errors.New("event bus queue is full")
)

// Operation is the lifecycle operation an event reports.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// Topics. Subscribers match on prefixes, so TopicPrefix receives everything.
const (
	TopicPrefix       = "authorizable/"
	TopicCreated      = "authorizable/created"
	TopicUpdated      = "authorizable/updated"
	TopicDeleted      = "authorizable/deleted"
	TopicGroupUpdated = "authorizable/group/updated"
)

var operationTopics = map[Operation]string{
	OperationCreate: TopicCreated,
	OperationUpdate: TopicUpdated,
	OperationDelete: TopicDeleted,
}

// Event reports one change to a user or group.
type Event struct {
	ID           uuid.UUID           `json:"id"`
	Topic        string              `json:"topic"`
	Operation    Operation           `json:"operation"`
	ActingUser   string              `json:"acting_user"`
	TargetID     string              `json:"target_id"`
	Modification change.Modification `json:"modification"`
	CreatedAt    time.Time           `json:"created_at"`
}

// NewAuthorizableEvent creates an event about the authorizable targetID.
func NewAuthorizableEvent(op Operation, actingUser, targetID string, m change.Modification) Event {
	return Event{
		ID:           uuid.New(),
		Topic:        operationTopics[op],
		Operation:    op,
		ActingUser:   actingUser,
		TargetID:     targetID,
		Modification: m,
		CreatedAt:    time.Now().UTC(),
	}
}

// NewGroupEvent creates a "group updated" event. The target is the group
// named by the modification path.
func NewGroupEvent(actingUser string, m change.Modification) Event {
	groupID, _, _, _ := authorizable.ParsePath(m.Path())
	return Event{
		ID:           uuid.New(),
		Topic:        TopicGroupUpdated,
		Operation:    OperationUpdate,
		ActingUser:   actingUser,
		TargetID:     groupID,
		Modification: m,
		CreatedAt:    time.Now().UTC(),
	}
}
