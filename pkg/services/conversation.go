package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"BranchChat/models"
	"BranchChat/pkg/logger"
	"BranchChat/pkg/realtime"
)

const maxTitleRunes = 100

// ConversationService owns conversation lifecycle and the active version
// pointer: creation, renaming, soft deletion, appends and switches.
type ConversationService struct {
	db        *gorm.DB
	summaries SummaryDispatcher
	events    EventPublisher
	cache     SummaryCache
	log       *logger.Logger

	Now func() time.Time
}

func NewConversationService(db *gorm.DB, summaries SummaryDispatcher, cache SummaryCache, events EventPublisher, log *logger.Logger) *ConversationService {
	if events == nil {
		events = nopPublisher{}
	}
	return &ConversationService{
		db:        db,
		summaries: summaries,
		events:    events,
		cache:     cache,
		log:       log.With("service", "conversation"),
		Now:       time.Now,
	}
}

// List returns the owner's non-deleted conversations, most recently modified first.
func (s *ConversationService) List(ctx context.Context, ownerID uint) ([]ConversationView, error) {
	var convs []models.Conversation
	err := s.db.WithContext(ctx).Scopes(liveConversations(ownerID)).
		Order("conversations.updated_at DESC, conversations.id DESC").
		Find(&convs).Error
	if err != nil {
		return nil, storageError(err, "list conversations")
	}
	out := make([]ConversationView, 0, len(convs))
	for _, c := range convs {
		out = append(out, toConversationView(c))
	}
	return out, nil
}

// Get returns a conversation with every version and its ordered messages.
func (s *ConversationService) Get(ctx context.Context, ownerID uint, id string) (*ConversationDetail, error) {
	return loadDetail(s.db.WithContext(ctx), ownerID, id)
}

func loadDetail(db *gorm.DB, ownerID uint, id string) (*ConversationDetail, error) {
	var conv models.Conversation
	err := db.Scopes(liveConversations(ownerID)).
		Preload("Versions", versionsInOrder).
		Preload("Versions.Messages", messagesInOrder).
		Preload("Versions.Messages.Role").
		Where("conversations.id = ?", id).
		Take(&conv).Error
	if err != nil {
		if isRecordNotFound(err) {
			return nil, notFound("conversation", id)
		}
		return nil, storageError(err, "load conversation")
	}
	detail := &ConversationDetail{ConversationView: toConversationView(conv)}
	detail.Versions = make([]VersionView, 0, len(conv.Versions))
	for _, v := range conv.Versions {
		detail.Versions = append(detail.Versions, toVersionView(v))
	}
	return detail, nil
}

// Create stores a new conversation with a root version holding the initial
// messages, and makes that version active.
func (s *ConversationService) Create(ctx context.Context, ownerID uint, title string, initial []NewMessage) (*ConversationDetail, error) {
	title, err := normalizeTitle(title)
	if err != nil {
		return nil, err
	}
	for _, m := range initial {
		if strings.TrimSpace(m.Content) == "" {
			return nil, invalid("content", "message content must not be empty")
		}
	}

	var convID, versionID string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()
		conv := models.Conversation{UserID: ownerID, Title: title, CreatedAt: now, UpdatedAt: now}
		if err := tx.Create(&conv).Error; err != nil {
			return storageError(err, "create conversation")
		}
		root := models.Version{ConversationID: conv.ID, CreatedAt: now}
		if err := tx.Create(&root).Error; err != nil {
			return storageError(err, "create version")
		}
		for _, m := range initial {
			if _, err := appendInTx(tx, &root, m.Role, m.Content, now); err != nil {
				return err
			}
		}
		if err := tx.Model(&conv).UpdateColumn("active_version_id", root.ID).Error; err != nil {
			return storageError(err, "activate version")
		}
		convID, versionID = conv.ID, root.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("conversation created", "conversation_id", convID, "user_id", ownerID, "messages", len(initial))
	if len(initial) > 0 {
		s.summaries.Dispatch(ctx, versionID)
	}
	return s.Get(ctx, ownerID, convID)
}

func (s *ConversationService) Rename(ctx context.Context, ownerID uint, id, title string) (*ConversationView, error) {
	title, err := normalizeTitle(title)
	if err != nil {
		return nil, err
	}
	var out ConversationView
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv, err := findConversation(tx, ownerID, id, true)
		if err != nil {
			return err
		}
		now := s.now()
		if err := tx.Model(conv).Updates(map[string]any{"title": title, "updated_at": now}).Error; err != nil {
			return storageError(err, "rename conversation")
		}
		conv.Title, conv.UpdatedAt = title, now
		out = toConversationView(*conv)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SoftDelete hides the conversation from every read path. The data stays
// until the retention sweep removes it.
func (s *ConversationService) SoftDelete(ctx context.Context, ownerID uint, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv, err := findConversation(tx, ownerID, id, true)
		if err != nil {
			return err
		}
		if err := tx.Model(conv).UpdateColumn("deleted_at", s.now()).Error; err != nil {
			return storageError(err, "soft delete conversation")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.cache.InvalidateSummary(ctx, id)
	s.log.Info("conversation soft deleted", "conversation_id", id, "user_id", ownerID)
	return nil
}

// AppendMessage appends to the conversation's active version.
func (s *ConversationService) AppendMessage(ctx context.Context, ownerID uint, conversationID, role, content string) (*MessageView, error) {
	if strings.TrimSpace(content) == "" {
		return nil, invalid("content", "message content must not be empty")
	}
	var msg *MessageView
	var versionID string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv, err := findConversation(tx, ownerID, conversationID, true)
		if err != nil {
			return err
		}
		if conv.ActiveVersionID == nil {
			return conflict("conversation has no active version")
		}
		var v models.Version
		if err := tx.Clauses(forUpdate).Take(&v, "id = ? AND conversation_id = ?", *conv.ActiveVersionID, conv.ID).Error; err != nil {
			if isRecordNotFound(err) {
				return conflict("active version does not belong to conversation")
			}
			return storageError(err, "load active version")
		}
		msg, err = appendInTx(tx, &v, role, content, s.now())
		versionID = v.ID
		return err
	})
	if err != nil {
		return nil, err
	}
	s.afterAppend(ctx, conversationID, versionID, msg)
	return msg, nil
}

// AppendToVersion appends to any version of an owned conversation.
func (s *ConversationService) AppendToVersion(ctx context.Context, ownerID uint, versionID, role, content string) (*MessageView, error) {
	if strings.TrimSpace(content) == "" {
		return nil, invalid("content", "message content must not be empty")
	}
	var msg *MessageView
	var conversationID string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		v, err := findVersion(tx.Clauses(forUpdate), ownerID, versionID)
		if err != nil {
			return err
		}
		msg, err = appendInTx(tx, v, role, content, s.now())
		conversationID = v.ConversationID
		return err
	})
	if err != nil {
		return nil, err
	}
	s.afterAppend(ctx, conversationID, versionID, msg)
	return msg, nil
}

func (s *ConversationService) afterAppend(ctx context.Context, conversationID, versionID string, msg *MessageView) {
	s.events.Publish(realtime.Event{
		Type:           realtime.EventMessageAppended,
		ConversationID: conversationID,
		VersionID:      versionID,
		Data:           msg,
	})
	s.summaries.Dispatch(ctx, versionID)
}

// appendInTx writes one message at the end of v. Its timestamp is strictly
// after every existing message of v and its seq is the next in v.
func appendInTx(tx *gorm.DB, v *models.Version, roleName, content string, now time.Time) (*MessageView, error) {
	if strings.TrimSpace(content) == "" {
		return nil, invalid("content", "message content must not be empty")
	}
	role, err := findRole(tx, roleName)
	if err != nil {
		return nil, err
	}

	createdAt := now.UTC().Truncate(time.Millisecond)
	var last models.Message
	err = tx.Where("version_id = ?", v.ID).Order("seq DESC").Limit(1).Take(&last).Error
	switch {
	case err == nil:
		if !createdAt.After(last.CreatedAt) {
			createdAt = last.CreatedAt.Add(time.Millisecond)
		}
	case isRecordNotFound(err):
	default:
		return nil, storageError(err, "load last message")
	}

	if err := tx.Model(&models.Version{}).Where("id = ?", v.ID).
		UpdateColumn("next_seq", gorm.Expr("next_seq + ?", 1)).Error; err != nil {
		return nil, storageError(err, "advance sequence")
	}
	var seq int64
	if err := tx.Model(&models.Version{}).Where("id = ?", v.ID).Select("next_seq").Scan(&seq).Error; err != nil {
		return nil, storageError(err, "read sequence")
	}
	v.NextSeq = seq

	m := models.Message{
		VersionID: v.ID,
		Seq:       seq,
		RoleID:    role.ID,
		Content:   content,
		CreatedAt: createdAt,
	}
	if err := tx.Omit(clause.Associations).Create(&m).Error; err != nil {
		return nil, storageError(err, "create message")
	}
	if err := tx.Model(&models.Conversation{}).Where("id = ?", v.ConversationID).
		UpdateColumn("updated_at", createdAt).Error; err != nil {
		return nil, storageError(err, "touch conversation")
	}
	m.Role = *role
	view := toMessageView(m)
	return &view, nil
}

// SwitchActive points the conversation at versionID. Switching to the
// version that is already active changes nothing.
func (s *ConversationService) SwitchActive(ctx context.Context, ownerID uint, conversationID, versionID string) (*ConversationView, error) {
	var out ConversationView
	changed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv, err := findConversation(tx, ownerID, conversationID, true)
		if err != nil {
			return err
		}
		var n int64
		if err := tx.Model(&models.Version{}).Where("id = ? AND conversation_id = ?", versionID, conv.ID).Count(&n).Error; err != nil {
			return storageError(err, "check version")
		}
		if n == 0 {
			return notFound("version", versionID)
		}
		if conv.ActiveVersionID == nil || *conv.ActiveVersionID != versionID {
			if err := setActive(tx, conv, versionID, s.now()); err != nil {
				return err
			}
			changed = true
		}
		out = toConversationView(*conv)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.log.Info("active version switched", "conversation_id", conversationID, "version_id", versionID)
		s.cache.InvalidateSummary(ctx, conversationID)
		s.events.Publish(realtime.Event{
			Type:           realtime.EventActiveVersionChanged,
			ConversationID: conversationID,
			VersionID:      versionID,
		})
		s.summaries.Dispatch(ctx, versionID)
	}
	return &out, nil
}

func setActive(tx *gorm.DB, conv *models.Conversation, versionID string, now time.Time) error {
	if err := tx.Model(conv).Updates(map[string]any{"active_version_id": versionID, "updated_at": now}).Error; err != nil {
		return storageError(err, "switch active version")
	}
	conv.ActiveVersionID = &versionID
	conv.UpdatedAt = now
	return nil
}

// EditMessage corrects the role and/or content of a message. Its timestamp
// and position are unchanged.
func (s *ConversationService) EditMessage(ctx context.Context, ownerID uint, messageID string, role, content *string) (*MessageView, error) {
	if role == nil && content == nil {
		return nil, invalid("", "nothing to update")
	}
	if content != nil && strings.TrimSpace(*content) == "" {
		return nil, invalid("content", "message content must not be empty")
	}
	var out MessageView
	var conversationID string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := findMessage(tx, ownerID, messageID)
		if err != nil {
			return err
		}
		updates := map[string]any{}
		if role != nil {
			r, err := findRole(tx, *role)
			if err != nil {
				return err
			}
			updates["role_id"] = r.ID
		}
		if content != nil {
			updates["content"] = *content
		}
		if err := tx.Model(&models.Message{}).Where("id = ?", m.ID).UpdateColumns(updates).Error; err != nil {
			return storageError(err, "edit message")
		}
		if err := tx.Preload("Role").Take(m, "id = ?", m.ID).Error; err != nil {
			return storageError(err, "reload message")
		}
		var v models.Version
		if err := tx.Select("conversation_id").Take(&v, "id = ?", m.VersionID).Error; err != nil {
			return storageError(err, "load version")
		}
		conversationID = v.ConversationID
		out = toMessageView(*m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("message edited", "message_id", messageID, "conversation_id", conversationID)
	s.summaries.Dispatch(ctx, out.VersionID)
	return &out, nil
}

func (s *ConversationService) now() time.Time {
	return s.Now().UTC()
}

func normalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", invalid("title", "title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleRunes {
		return "", invalid("title", "title must be at most 100 characters")
	}
	return title, nil
}
