package services

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"BranchChat/models"
	"BranchChat/pkg/logger"
	"BranchChat/pkg/realtime"
)

// BranchService forks versions and renders the version tree.
type BranchService struct {
	db        *gorm.DB
	summaries SummaryDispatcher
	events    EventPublisher
	log       *logger.Logger

	Now func() time.Time
}

func NewBranchService(db *gorm.DB, summaries SummaryDispatcher, events EventPublisher, log *logger.Logger) *BranchService {
	if events == nil {
		events = nopPublisher{}
	}
	return &BranchService{
		db:        db,
		summaries: summaries,
		events:    events,
		log:       log.With("service", "branch"),
		Now:       time.Now,
	}
}

// CreateBranch forks a new version at rootMessageID and makes it active, in
// one transaction. The new version's parent is the root message's version and
// it starts with copies of every message of that version created strictly
// before the root message, keeping their timestamps and order.
func (s *BranchService) CreateBranch(ctx context.Context, ownerID uint, conversationID, rootMessageID string) (*VersionView, error) {
	var created models.Version
	var copied int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv, err := findConversation(tx, ownerID, conversationID, true)
		if err != nil {
			return err
		}
		var root models.Message
		if err := tx.Take(&root, "id = ?", rootMessageID).Error; err != nil {
			if isRecordNotFound(err) {
				return notFound("message", rootMessageID)
			}
			return storageError(err, "load root message")
		}
		var source models.Version
		if err := tx.Take(&source, "id = ?", root.VersionID).Error; err != nil {
			return storageError(err, "load source version")
		}
		if source.ConversationID != conv.ID {
			return ErrInvalidBranchPoint
		}

		var prefix []models.Message
		if err := tx.Scopes(messagesInOrder).
			Where("version_id = ? AND created_at < ?", source.ID, root.CreatedAt).
			Find(&prefix).Error; err != nil {
			return storageError(err, "load branch prefix")
		}

		now := s.Now().UTC()
		created = models.Version{
			ConversationID:  conv.ID,
			ParentVersionID: &source.ID,
			RootMessageID:   &root.ID,
			NextSeq:         int64(len(prefix)),
			CreatedAt:       now,
		}
		if err := tx.Create(&created).Error; err != nil {
			return storageError(err, "create version")
		}
		if len(prefix) > 0 {
			copies := make([]models.Message, 0, len(prefix))
			for i, m := range prefix {
				copies = append(copies, models.Message{
					VersionID: created.ID,
					Seq:       int64(i + 1),
					RoleID:    m.RoleID,
					Content:   m.Content,
					CreatedAt: m.CreatedAt,
				})
			}
			if err := tx.Omit(clause.Associations).CreateInBatches(&copies, 100).Error; err != nil {
				return storageError(err, "copy branch prefix")
			}
		}
		copied = len(prefix)
		return setActive(tx, conv, created.ID, now)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("branch created",
		"conversation_id", conversationID,
		"version_id", created.ID,
		"parent_version_id", *created.ParentVersionID,
		"root_message_id", rootMessageID,
		"copied", copied)

	view, err := s.loadVersion(ctx, created.ID)
	if err != nil {
		return nil, err
	}
	s.events.Publish(realtime.Event{Type: realtime.EventVersionCreated, ConversationID: conversationID, VersionID: created.ID, Data: view})
	s.events.Publish(realtime.Event{Type: realtime.EventActiveVersionChanged, ConversationID: conversationID, VersionID: created.ID})
	s.summaries.Dispatch(ctx, created.ID)
	return view, nil
}

func (s *BranchService) loadVersion(ctx context.Context, id string) (*VersionView, error) {
	var v models.Version
	err := s.db.WithContext(ctx).
		Preload("Messages", messagesInOrder).
		Preload("Messages.Role").
		Take(&v, "id = ?", id).Error
	if err != nil {
		return nil, storageError(err, "load version")
	}
	view := toVersionView(v)
	return &view, nil
}

// RenderBranchedTree returns every version of a conversation annotated with
// whether it is active, its effective creation time and its lineage.
func (s *BranchService) RenderBranchedTree(ctx context.Context, ownerID uint, conversationID string) (*BranchedConversation, error) {
	trees, err := s.branched(ctx, ownerID, func(db *gorm.DB) *gorm.DB {
		return db.Where("conversations.id = ?", conversationID)
	})
	if err != nil {
		return nil, err
	}
	if len(trees) == 0 {
		return nil, notFound("conversation", conversationID)
	}
	return &trees[0], nil
}

// ListBranched renders the tree of every non-deleted conversation of the
// owner, most recently modified first.
func (s *BranchService) ListBranched(ctx context.Context, ownerID uint) ([]BranchedConversation, error) {
	return s.branched(ctx, ownerID, func(db *gorm.DB) *gorm.DB {
		return db.Order("conversations.updated_at DESC, conversations.id DESC")
	})
}

func (s *BranchService) branched(ctx context.Context, ownerID uint, scope func(*gorm.DB) *gorm.DB) ([]BranchedConversation, error) {
	db := s.db.WithContext(ctx)
	var convs []models.Conversation
	err := db.Scopes(liveConversations(ownerID), scope).
		Preload("Versions", versionsInOrder).
		Preload("Versions.Messages", messagesInOrder).
		Preload("Versions.Messages.Role").
		Find(&convs).Error
	if err != nil {
		return nil, storageError(err, "load conversations")
	}

	var rootIDs []string
	for _, c := range convs {
		for _, v := range c.Versions {
			if v.RootMessageID != nil {
				rootIDs = append(rootIDs, *v.RootMessageID)
			}
		}
	}
	rootTimes := make(map[string]time.Time, len(rootIDs))
	if len(rootIDs) > 0 {
		var roots []models.Message
		if err := db.Select("id", "created_at").Where("id IN ?", rootIDs).Find(&roots).Error; err != nil {
			return nil, storageError(err, "load root messages")
		}
		for _, m := range roots {
			rootTimes[m.ID] = m.CreatedAt
		}
	}

	out := make([]BranchedConversation, 0, len(convs))
	for _, c := range convs {
		out = append(out, buildTree(c, rootTimes))
	}
	return out, nil
}

func buildTree(c models.Conversation, rootTimes map[string]time.Time) BranchedConversation {
	parents := make(map[string]*string, len(c.Versions))
	children := make(map[string][]string, len(c.Versions))
	for _, v := range c.Versions {
		parents[v.ID] = v.ParentVersionID
	}
	tree := BranchedConversation{ConversationView: toConversationView(c)}
	for _, v := range c.Versions {
		if p := v.ParentVersionID; p != nil {
			if _, ok := parents[*p]; ok {
				children[*p] = append(children[*p], v.ID)
				continue
			}
		}
		tree.Roots = append(tree.Roots, v.ID)
	}

	tree.Versions = make([]BranchedVersion, 0, len(c.Versions))
	for _, v := range c.Versions {
		effective := c.CreatedAt
		if v.RootMessageID != nil {
			if t, ok := rootTimes[*v.RootMessageID]; ok {
				effective = t
			}
		}
		kids := children[v.ID]
		if kids == nil {
			kids = []string{}
		}
		tree.Versions = append(tree.Versions, BranchedVersion{
			ID:              v.ID,
			ParentVersionID: v.ParentVersionID,
			RootMessageID:   v.RootMessageID,
			Active:          c.ActiveVersionID != nil && *c.ActiveVersionID == v.ID,
			CreatedAt:       effective,
			Lineage:         lineage(v.ID, parents),
			Children:        kids,
			Messages:        toMessageViews(v.Messages),
		})
	}
	if tree.Roots == nil {
		tree.Roots = []string{}
	}
	return tree
}

// lineage walks parent ids by lookup and returns the ancestors of id, oldest
// first. A parent outside the table ends the walk; so does a repeated id.
func lineage(id string, parents map[string]*string) []string {
	var up []string
	seen := map[string]bool{id: true}
	cur := parents[id]
	for cur != nil {
		if seen[*cur] {
			break
		}
		if _, ok := parents[*cur]; !ok {
			break
		}
		seen[*cur] = true
		up = append(up, *cur)
		cur = parents[*cur]
	}
	out := make([]string, len(up))
	for i, v := range up {
		out[len(up)-1-i] = v
	}
	return out
}
