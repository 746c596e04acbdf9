package models

import "time"

// StoryBlock is one generated narrative paragraph plus the labeled choices that follow it.
// Blocks are written once and never updated or deleted.
type StoryBlock struct {
	ID        int64             `db:"id" json:"id"`
	Text      string            `db:"text" json:"text"`
	Options   map[string]string `db:"options" json:"options"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
}

// HasOption reports whether label is one of the block's choice keys.
func (b *StoryBlock) HasOption(label string) bool {
	if b == nil {
		return false
	}
	_, ok := b.Options[label]
	return ok
}

// GeneratedBlock is the normalized output of a generation call before it is persisted.
type GeneratedBlock struct {
	Text    string
	Options map[string]string
}

// Validate checks the shape every persisted block must have.
func (g *GeneratedBlock) Validate() error {
	if g == nil || g.Text == "" {
		return ErrInvalidBlock
	}
	if len(g.Options) == 0 {
		return ErrInvalidBlock
	}
	for label := range g.Options {
		if label == "" {
			return ErrInvalidBlock
		}
	}
	return nil
}
