package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/studyhive/studyhive/internal/model"
)

// Sentinels for invariant violations detected inside a membership
// transaction. The service layer maps them onto the caller-facing taxonomy.
var (
	ErrCapacityReached    = errors.New("group capacity reached")
	ErrAlreadyMember      = errors.New("already an active member")
	ErrMembershipBanned   = errors.New("membership is banned")
	ErrNoActiveMembership = errors.New("no active membership")
)

type IMembershipRepository interface {
	FindByGroupAndUser(ctx context.Context, groupID, userID string) (*model.Membership, error)
	ListActiveByGroup(ctx context.Context, groupID string) ([]*model.Membership, error)
	CountActiveByGroup(ctx context.Context, groupID string) (int64, error)
	// Join atomically re-checks the ban/conflict state, claims a capacity
	// slot and writes the membership row. A prior inactive row is reused
	// with a refreshed JoinedAt.
	Join(ctx context.Context, groupID, userID string, role model.Role) (*model.Membership, error)
	// Remove atomically deletes the active membership row and releases its
	// capacity slot. The counter never goes below zero.
	Remove(ctx context.Context, groupID, userID string) error
	// Ban marks the membership banned so future joins are rejected. An
	// active row releases its capacity slot; a missing row is created
	// directly in the banned state.
	Ban(ctx context.Context, groupID, userID string) error
	UpdateRole(ctx context.Context, groupID, userID string, role model.Role) error
	TouchLastActive(ctx context.Context, groupID, userID string) error
}

type MembershipRepository struct {
	db *gorm.DB
}

func NewMembershipRepository(db *gorm.DB) IMembershipRepository {
	return &MembershipRepository{db: db}
}

func (r *MembershipRepository) FindByGroupAndUser(ctx context.Context, groupID, userID string) (*model.Membership, error) {
	var membership model.Membership
	err := r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		First(&membership).Error
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

func (r *MembershipRepository) ListActiveByGroup(ctx context.Context, groupID string) ([]*model.Membership, error) {
	var memberships []*model.Membership
	err := r.db.WithContext(ctx).
		Where("group_id = ? AND status = ?", groupID, model.StatusActive).
		Preload("User").
		Order("joined_at ASC").
		Find(&memberships).Error
	if err != nil {
		return nil, err
	}
	return memberships, nil
}

func (r *MembershipRepository) CountActiveByGroup(ctx context.Context, groupID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Membership{}).
		Where("group_id = ? AND status = ?", groupID, model.StatusActive).
		Count(&count).Error
	return count, err
}

func (r *MembershipRepository) Join(ctx context.Context, groupID, userID string, role model.Role) (*model.Membership, error) {
	var joined *model.Membership

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.Membership
		err := tx.Where("group_id = ? AND user_id = ?", groupID, userID).
			First(&existing).Error
		switch {
		case err == nil:
			if existing.Status == model.StatusBanned {
				return ErrMembershipBanned
			}
			if existing.Status == model.StatusActive {
				return ErrAlreadyMember
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			// First join for this pair.
		default:
			return err
		}

		// Claim a capacity slot. The WHERE clause is the capacity check, so
		// concurrent joins can never push the counter past capacity.
		claim := tx.Model(&model.Group{}).
			Where("id = ? AND is_active = ? AND current_member_count < capacity", groupID, true).
			Update("current_member_count", gorm.Expr("current_member_count + 1"))
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			return ErrCapacityReached
		}

		now := time.Now()
		if existing.ID != "" {
			// Rejoin: reuse the row, refresh JoinedAt.
			existing.Status = model.StatusActive
			existing.Role = role
			existing.JoinedAt = now
			existing.LastActive = now
			if err := tx.Save(&existing).Error; err != nil {
				return err
			}
			joined = &existing
			return nil
		}

		membership := &model.Membership{
			ID:         uuid.New().String(),
			GroupID:    groupID,
			UserID:     userID,
			Role:       role,
			Status:     model.StatusActive,
			JoinedAt:   now,
			LastActive: now,
		}
		if err := tx.Create(membership).Error; err != nil {
			return err
		}
		joined = membership
		return nil
	})
	if err != nil {
		return nil, err
	}
	return joined, nil
}

func (r *MembershipRepository) Remove(ctx context.Context, groupID, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("group_id = ? AND user_id = ? AND status = ?",
			groupID, userID, model.StatusActive).
			Delete(&model.Membership{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNoActiveMembership
		}

		return tx.Model(&model.Group{}).
			Where("id = ? AND current_member_count > 0", groupID).
			Update("current_member_count", gorm.Expr("current_member_count - 1")).Error
	})
}

func (r *MembershipRepository) Ban(ctx context.Context, groupID, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.Membership
		err := tx.Where("group_id = ? AND user_id = ?", groupID, userID).
			First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&model.Membership{
				ID:      uuid.New().String(),
				GroupID: groupID,
				UserID:  userID,
				Role:    model.RoleMember,
				Status:  model.StatusBanned,
			}).Error
		}
		if err != nil {
			return err
		}

		wasActive := existing.Status == model.StatusActive
		existing.Status = model.StatusBanned
		existing.Role = model.RoleMember
		if err := tx.Save(&existing).Error; err != nil {
			return err
		}
		if !wasActive {
			return nil
		}
		return tx.Model(&model.Group{}).
			Where("id = ? AND current_member_count > 0", groupID).
			Update("current_member_count", gorm.Expr("current_member_count - 1")).Error
	})
}

func (r *MembershipRepository) UpdateRole(ctx context.Context, groupID, userID string, role model.Role) error {
	res := r.db.WithContext(ctx).Model(&model.Membership{}).
		Where("group_id = ? AND user_id = ? AND status = ?", groupID, userID, model.StatusActive).
		Update("role", role)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNoActiveMembership
	}
	return nil
}

func (r *MembershipRepository) TouchLastActive(ctx context.Context, groupID, userID string) error {
	return r.db.WithContext(ctx).Model(&model.Membership{}).
		Where("group_id = ? AND user_id = ? AND status = ?", groupID, userID, model.StatusActive).
		Update("last_active", time.Now()).Error
}
