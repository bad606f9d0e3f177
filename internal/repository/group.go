package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/studyhive/studyhive/internal/model"
)

// GroupFilters narrows and orders a group listing.
type GroupFilters struct {
	Category   model.Category
	Visibility model.Visibility
	// Query matches title, description or a tag, case-insensitively.
	Query string
	Tag   string
	// HasSpace keeps only groups below capacity.
	HasSpace bool

	SortBy   string // created_at, current_member_count or title
	SortDesc bool

	Page  int
	Limit int
}

type IGroupRepository interface {
	// CreateWithLeader persists the group and its leader's membership row as
	// one transaction; a group never exists without its leader membership.
	CreateWithLeader(ctx context.Context, group *model.Group, leader *model.Membership) error
	FindByID(ctx context.Context, id string) (*model.Group, error)
	JoinCodeExists(ctx context.Context, code string) (bool, error)
	Update(ctx context.Context, group *model.Group) error
	// SoftDelete marks the group inactive, zeroes its member counter and
	// flips every membership to inactive, atomically.
	SoftDelete(ctx context.Context, groupID string) error
	List(ctx context.Context, filters GroupFilters) ([]*model.Group, int64, error)
}

type GroupRepository struct {
	db *gorm.DB
}

func NewGroupRepository(db *gorm.DB) IGroupRepository {
	return &GroupRepository{db: db}
}

func (r *GroupRepository) CreateWithLeader(ctx context.Context, group *model.Group, leader *model.Membership) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(group).Error; err != nil {
			return err
		}
		return tx.Create(leader).Error
	})
}

func (r *GroupRepository) FindByID(ctx context.Context, id string) (*model.Group, error) {
	var group model.Group
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&group).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *GroupRepository) JoinCodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Group{}).
		Where("join_code = ?", code).
		Count(&count).Error
	return count > 0, err
}

func (r *GroupRepository) Update(ctx context.Context, group *model.Group) error {
	return r.db.WithContext(ctx).Save(group).Error
}

func (r *GroupRepository) SoftDelete(ctx context.Context, groupID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&model.Group{}).
			Where("id = ?", groupID).
			Updates(map[string]any{"is_active": false, "current_member_count": 0}).Error
		if err != nil {
			return err
		}
		return tx.Model(&model.Membership{}).
			Where("group_id = ? AND status = ?", groupID, model.StatusActive).
			Update("status", model.StatusInactive).Error
	})
}

func (r *GroupRepository) List(ctx context.Context, filters GroupFilters) ([]*model.Group, int64, error) {
	query := r.db.WithContext(ctx).Model(&model.Group{}).Where("is_active = ?", true)

	if filters.Category != "" {
		query = query.Where("category = ?", filters.Category)
	}
	if filters.Visibility != "" {
		query = query.Where("visibility = ?", filters.Visibility)
	}
	if filters.Query != "" {
		needle := "%" + escapeLike(strings.ToLower(filters.Query)) + "%"
		query = query.Where(
			`LOWER(title) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\' OR LOWER(tags) LIKE ? ESCAPE '\'`,
			needle, needle, needle,
		)
	}
	if filters.Tag != "" {
		// Tags serialize to a JSON array, so an exact tag is a quoted token.
		query = query.Where(`tags LIKE ? ESCAPE '\'`, `%"`+escapeLike(filters.Tag)+`"%`)
	}
	if filters.HasSpace {
		query = query.Where("current_member_count < capacity")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order(orderClause(filters.SortBy, filters.SortDesc)).
		Limit(filters.Limit).
		Offset((filters.Page - 1) * filters.Limit)

	var groups []*model.Group
	if err := query.Find(&groups).Error; err != nil {
		return nil, 0, err
	}
	return groups, total, nil
}

// orderClause whitelists sortable columns so client input never reaches SQL.
func orderClause(sortBy string, desc bool) string {
	col := "created_at"
	switch sortBy {
	case "current_member_count", "title":
		col = sortBy
	}
	if desc {
		return col + " DESC"
	}
	return col + " ASC"
}

// likeEscaper neutralizes LIKE metacharacters so user text matches as a
// literal substring. Queries using it carry a matching ESCAPE clause.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
