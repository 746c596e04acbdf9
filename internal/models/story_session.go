package models

import (
	"time"

	"github.com/google/uuid"
)

// StartChoice marks the history entry produced by the opening turn.
const StartChoice = "start"

// HistoryEntry records one turn: the block it produced and the choice that led to it.
type HistoryEntry struct {
	BlockID int64  `db:"block_id" json:"block_id"`
	Choice  string `db:"choice" json:"choice"`
}

// StorySession tracks one child's progression through a story.
type StorySession struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
	CurrentBlockID int64          `db:"current_block_id" json:"current_block_id"`
	History        []HistoryEntry `db:"-" json:"history"`
}

// Turns returns the number of blocks produced for the session so far.
func (s *StorySession) Turns() int {
	return len(s.History)
}

// LastEntry returns the most recent history entry.
func (s *StorySession) LastEntry() (HistoryEntry, bool) {
	if len(s.History) == 0 {
		return HistoryEntry{}, false
	}
	return s.History[len(s.History)-1], true
}

// Consistent reports whether the current block pointer matches the tail of the history.
func (s *StorySession) Consistent() bool {
	last, ok := s.LastEntry()
	return ok && last.BlockID == s.CurrentBlockID
}

// AppendTurn returns a copy of the history with one more entry.
// The receiver's slice is never modified so loaded sessions can be shared safely.
func (s *StorySession) AppendTurn(blockID int64, choice string) []HistoryEntry {
	next := make([]HistoryEntry, 0, len(s.History)+1)
	next = append(next, s.History...)
	return append(next, HistoryEntry{BlockID: blockID, Choice: choice})
}
