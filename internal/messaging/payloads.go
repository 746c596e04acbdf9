package messaging

import (
	"time"

	"github.com/google/uuid"
)

// TurnEventType names what happened to a session.
type TurnEventType string

const (
	TurnEventSessionStarted   TurnEventType = "session_started"
	TurnEventSessionContinued TurnEventType = "session_continued"
)

// TurnEventPayload is published after a turn has been committed.
type TurnEventPayload struct {
	EventID    string        `json:"event_id"`
	EventType  TurnEventType `json:"event_type"`
	SessionID  string        `json:"session_id"`
	BlockID    int64         `json:"block_id"`
	Choice     string        `json:"choice"`
	Turn       int           `json:"turn"` // длина истории после хода
	OccurredAt time.Time     `json:"occurred_at"`
}

// NewTurnEvent fills in the event id and timestamp.
func NewTurnEvent(eventType TurnEventType, sessionID uuid.UUID, blockID int64, choice string, turn int) TurnEventPayload {
	return TurnEventPayload{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		SessionID:  sessionID.String(),
		BlockID:    blockID,
		Choice:     choice,
		Turn:       turn,
		OccurredAt: time.Now().UTC(),
	}
}
