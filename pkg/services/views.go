package services

import (
	"time"

	"BranchChat/models"
)

type MessageView struct {
	ID        string    `json:"id"`
	VersionID string    `json:"version_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type VersionView struct {
	ID              string        `json:"id"`
	ConversationID  string        `json:"conversation_id"`
	ParentVersionID *string       `json:"parent_version_id"`
	RootMessageID   *string       `json:"root_message_id"`
	CreatedAt       time.Time     `json:"created_at"`
	Messages        []MessageView `json:"messages"`
}

type ConversationView struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Summary         string    `json:"summary"`
	ActiveVersionID *string   `json:"active_version_id"`
	CreatedAt       time.Time `json:"created_at"`
	ModifiedAt      time.Time `json:"modified_at"`
}

type ConversationDetail struct {
	ConversationView
	Versions []VersionView `json:"versions"`
}

// BranchedVersion is one node of the branched tree view.
type BranchedVersion struct {
	ID              string  `json:"id"`
	ParentVersionID *string `json:"parent_version_id"`
	RootMessageID   *string `json:"root_message_id"`
	Active          bool    `json:"active"`
	// CreatedAt is the root message's timestamp, or the conversation's
	// creation time for a version without one.
	CreatedAt time.Time `json:"created_at"`
	// Lineage lists ancestor version ids, oldest first.
	Lineage  []string      `json:"lineage"`
	Children []string      `json:"children"`
	Messages []MessageView `json:"messages"`
}

type BranchedConversation struct {
	ConversationView
	Roots    []string          `json:"roots"`
	Versions []BranchedVersion `json:"versions"`
}

type SummaryView struct {
	ConversationID string    `json:"conversation_id"`
	Title          string    `json:"title"`
	Summary        string    `json:"summary"`
	ModifiedAt     time.Time `json:"modified_at"`
}

// NewMessage is caller input for a message to append.
type NewMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func toMessageView(m models.Message) MessageView {
	return MessageView{
		ID:        m.ID,
		VersionID: m.VersionID,
		Role:      m.Role.Name,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

func toMessageViews(msgs []models.Message) []MessageView {
	out := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageView(m))
	}
	return out
}

func toVersionView(v models.Version) VersionView {
	return VersionView{
		ID:              v.ID,
		ConversationID:  v.ConversationID,
		ParentVersionID: v.ParentVersionID,
		RootMessageID:   v.RootMessageID,
		CreatedAt:       v.CreatedAt,
		Messages:        toMessageViews(v.Messages),
	}
}

func toConversationView(c models.Conversation) ConversationView {
	return ConversationView{
		ID:              c.ID,
		Title:           c.Title,
		Summary:         c.Summary,
		ActiveVersionID: c.ActiveVersionID,
		CreatedAt:       c.CreatedAt,
		ModifiedAt:      c.UpdatedAt,
	}
}
