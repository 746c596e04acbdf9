package handler

import (
	"time"

	"storytrain/internal/models"
)

// APIError представляет стандартизированный ответ об ошибке.
type APIError struct {
	Message string `json:"message"`
}

// ContinueSessionRequest is the body of POST /session/:id/continue.
type ContinueSessionRequest struct {
	Choice string `json:"choice" validate:"required,min=1,max=32"`
}

// StoryBlockResponse is a block as returned to clients.
type StoryBlockResponse struct {
	ID      int64             `json:"id"`
	Text    string            `json:"text"`
	Options map[string]string `json:"options"`
}

// SessionStartResponse is returned by POST /session/start.
type SessionStartResponse struct {
	SessionID string             `json:"session_id"`
	Block     StoryBlockResponse `json:"block"`
}

// HistoryEntryDTO is one turn of a session.
type HistoryEntryDTO struct {
	BlockID int64  `json:"block_id"`
	Choice  string `json:"choice"`
}

// SessionResponse is returned by GET /session/:id.
type SessionResponse struct {
	ID             string            `json:"id"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	CurrentBlockID int64             `json:"current_block_id"`
	History        []HistoryEntryDTO `json:"history"`
}

func toBlockResponse(b *models.StoryBlock) StoryBlockResponse {
	return StoryBlockResponse{ID: b.ID, Text: b.Text, Options: b.Options}
}

func toSessionResponse(s *models.StorySession) SessionResponse {
	history := make([]HistoryEntryDTO, 0, len(s.History))
	for _, entry := range s.History {
		history = append(history, HistoryEntryDTO{BlockID: entry.BlockID, Choice: entry.Choice})
	}
	return SessionResponse{
		ID:             s.ID.String(),
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
		CurrentBlockID: s.CurrentBlockID,
		History:        history,
	}
}
