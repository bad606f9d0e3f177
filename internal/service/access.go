package service

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/studyhive/studyhive/internal/apperr"
	"github.com/studyhive/studyhive/internal/model"
	"github.com/studyhive/studyhive/internal/repository"
)

// AccessLevel is the closed classification the guard assigns to a
// (group, user) pair. Every role-gated operation starts from one of these.
type AccessLevel int

const (
	LevelNonMember AccessLevel = iota
	LevelBanned
	LevelMember
	LevelAdmin
	LevelLeader
)

func (l AccessLevel) String() string {
	switch l {
	case LevelBanned:
		return "banned"
	case LevelMember:
		return "member"
	case LevelAdmin:
		return "admin"
	case LevelLeader:
		return "leader"
	default:
		return "non-member"
	}
}

// Access bundles the classification with the rows it was derived from, so
// callers don't re-read the group they just authorized against.
type Access struct {
	Group      *model.Group
	Membership *model.Membership
	Level      AccessLevel
}

// IsMember reports an active membership of any role.
func (a *Access) IsMember() bool {
	return a.Level == LevelMember || a.Level == LevelAdmin || a.Level == LevelLeader
}

// IsStaff reports leader or admin standing.
func (a *Access) IsStaff() bool {
	return a.Level == LevelAdmin || a.Level == LevelLeader
}

func (a *Access) IsLeader() bool {
	return a.Level == LevelLeader
}

// AccessGuard derives authorization decisions from the group directory and
// the membership ledger. It holds no state and is re-evaluated per request:
// roles and statuses may change between calls.
type AccessGuard struct {
	groupRepo      repository.IGroupRepository
	membershipRepo repository.IMembershipRepository
}

func NewAccessGuard(groupRepo repository.IGroupRepository, membershipRepo repository.IMembershipRepository) *AccessGuard {
	return &AccessGuard{groupRepo: groupRepo, membershipRepo: membershipRepo}
}

// Classify resolves userID's standing in groupID. A missing or soft-deleted
// group is NotFound; an empty userID classifies as non-member.
func (g *AccessGuard) Classify(ctx context.Context, groupID, userID string) (*Access, error) {
	group, err := g.groupRepo.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("group not found")
		}
		return nil, apperr.Internal("load group", fmt.Errorf("classify %s: %w", groupID, err))
	}
	if !group.IsActive {
		return nil, apperr.NotFound("group not found")
	}

	access := &Access{Group: group, Level: LevelNonMember}
	if userID == "" {
		return access, nil
	}
	if group.LeaderID == userID {
		access.Level = LevelLeader
	}

	membership, err := g.membershipRepo.FindByGroupAndUser(ctx, groupID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return access, nil
		}
		return nil, apperr.Internal("load membership", fmt.Errorf("classify %s/%s: %w", groupID, userID, err))
	}
	access.Membership = membership

	if access.Level == LevelLeader {
		return access, nil
	}
	switch {
	case membership.Status == model.StatusBanned:
		access.Level = LevelBanned
	case membership.Status != model.StatusActive:
		access.Level = LevelNonMember
	case membership.Role == model.RoleAdmin:
		access.Level = LevelAdmin
	default:
		access.Level = LevelMember
	}
	return access, nil
}
