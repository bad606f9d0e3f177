package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/studyhive/studyhive/internal/model"
)

type IMessageRepository interface {
	Create(ctx context.Context, message *model.Message) error
	FindByID(ctx context.Context, id int64) (*model.Message, error)
	// UpdateCAS writes every mutable field of message, guarded by the
	// version it was loaded at. It reports false when another writer got
	// there first; callers reload and retry.
	UpdateCAS(ctx context.Context, message *model.Message) (bool, error)
	// ListByGroup returns non-deleted messages newest-first. beforeID and
	// afterID are exclusive ID cursors; zero disables them. offset applies
	// to plain page-based listing.
	ListByGroup(ctx context.Context, groupID string, limit, offset int, beforeID, afterID int64) ([]*model.Message, error)
	ListPinned(ctx context.Context, groupID string) ([]*model.Message, error)
	Search(ctx context.Context, groupID, text string, limit, offset int) ([]*model.Message, int64, error)
	CountPinned(ctx context.Context, groupID string) (int64, error)
	// Transaction runs fn against a transaction-bound repository, for
	// mutations that must observe group-wide state (the pin limit).
	Transaction(ctx context.Context, fn func(repo IMessageRepository) error) error
}

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) IMessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, message *model.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *MessageRepository) FindByID(ctx context.Context, id int64) (*model.Message, error) {
	var message model.Message
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&message).Error; err != nil {
		return nil, err
	}
	return &message, nil
}

// mutableColumns are the fields UpdateCAS is allowed to touch. Identity,
// sender and creation time are immutable once written.
var mutableColumns = []string{
	"content", "reactions", "is_pinned", "is_edited", "edit_history",
	"is_deleted", "deleted_at", "deleted_by", "read_by", "version", "updated_at",
}

func (r *MessageRepository) UpdateCAS(ctx context.Context, message *model.Message) (bool, error) {
	loadedVersion := message.Version
	message.Version = loadedVersion + 1
	message.UpdatedAt = time.Now()

	res := r.db.WithContext(ctx).Model(&model.Message{}).
		Where("id = ? AND version = ?", message.ID, loadedVersion).
		Select(mutableColumns).
		Updates(message)
	if res.Error != nil {
		message.Version = loadedVersion
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		message.Version = loadedVersion
		return false, nil
	}
	return true, nil
}

func (r *MessageRepository) ListByGroup(ctx context.Context, groupID string, limit, offset int, beforeID, afterID int64) ([]*model.Message, error) {
	query := r.db.WithContext(ctx).
		Where("group_id = ? AND is_deleted = ?", groupID, false)
	if beforeID > 0 {
		query = query.Where("id < ?", beforeID)
	}
	if afterID > 0 {
		query = query.Where("id > ?", afterID)
	}

	var messages []*model.Message
	err := query.Order("id DESC").Limit(limit).Offset(offset).Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *MessageRepository) ListPinned(ctx context.Context, groupID string) ([]*model.Message, error) {
	var messages []*model.Message
	err := r.db.WithContext(ctx).
		Where("group_id = ? AND is_pinned = ? AND is_deleted = ?", groupID, true, false).
		Order("id DESC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *MessageRepository) Search(ctx context.Context, groupID, text string, limit, offset int) ([]*model.Message, int64, error) {
	needle := "%" + escapeLike(strings.ToLower(text)) + "%"
	query := r.db.WithContext(ctx).Model(&model.Message{}).
		Where(`group_id = ? AND is_deleted = ? AND LOWER(content) LIKE ? ESCAPE '\'`, groupID, false, needle)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var messages []*model.Message
	err := query.Order("id DESC").Limit(limit).Offset(offset).Find(&messages).Error
	if err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

func (r *MessageRepository) CountPinned(ctx context.Context, groupID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Message{}).
		Where("group_id = ? AND is_pinned = ? AND is_deleted = ?", groupID, true, false).
		Count(&count).Error
	return count, err
}

func (r *MessageRepository) Transaction(ctx context.Context, fn func(repo IMessageRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&MessageRepository{db: tx})
	})
}
