package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/studyhive/studyhive/internal/apperr"
	"github.com/studyhive/studyhive/internal/model"
	"github.com/studyhive/studyhive/internal/pkg/events"
	"github.com/studyhive/studyhive/internal/pkg/redis"
	"github.com/studyhive/studyhive/internal/repository"
	"github.com/studyhive/studyhive/middleware/log"
)

// memberCountTTL bounds staleness of the public member-count cache.
const memberCountTTL = 30 * time.Second

// MemberCountView is the public occupancy summary of a group.
type MemberCountView struct {
	Count          int `json:"count"`
	Capacity       int `json:"capacity"`
	AvailableSlots int `json:"available_slots"`
}

type IMembershipService interface {
	Join(ctx context.Context, groupID, userID, suppliedCode string) (*model.Membership, error)
	Leave(ctx context.Context, groupID, userID string) error
	AddMember(ctx context.Context, groupID, requesterID, targetUserID string) (*model.Membership, error)
	RemoveMember(ctx context.Context, groupID, requesterID, targetUserID string) error
	BanMember(ctx context.Context, groupID, requesterID, targetUserID string) error
	UpdateMemberRole(ctx context.Context, groupID, requesterID, targetUserID string, role model.Role) error
	ListMembers(ctx context.Context, groupID, requesterID string) ([]*model.Membership, error)
	MemberCount(ctx context.Context, groupID string) (*MemberCountView, error)
}

type MembershipService struct {
	groupRepo      repository.IGroupRepository
	membershipRepo repository.IMembershipRepository
	userRepo       repository.IUserRepository
	guard          *AccessGuard
	cache          redis.RedisClient
	publisher      *events.Publisher
	logger         *logger.Logger
}

func NewMembershipService(
	groupRepo repository.IGroupRepository,
	membershipRepo repository.IMembershipRepository,
	userRepo repository.IUserRepository,
	guard *AccessGuard,
	cache redis.RedisClient,
	publisher *events.Publisher,
	log *logger.Logger,
) IMembershipService {
	return &MembershipService{
		groupRepo:      groupRepo,
		membershipRepo: membershipRepo,
		userRepo:       userRepo,
		guard:          guard,
		cache:          cache,
		publisher:      publisher,
		logger:         log,
	}
}

// Join admits userID into the group. The capacity, conflict and ban checks
// run inside the same transaction as the counter increment and the
// membership write, so concurrent joins can never overshoot capacity.
func (s *MembershipService) Join(ctx context.Context, groupID, userID, suppliedCode string) (*model.Membership, error) {
	group, err := s.loadActiveGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.IsPrivate() && suppliedCode != group.JoinCode {
		return nil, apperr.BadRequest("invalid join code")
	}

	membership, err := s.membershipRepo.Join(ctx, groupID, userID, model.RoleMember)
	if err != nil {
		return nil, s.mapJoinError(ctx, "join", groupID, userID, err)
	}

	s.invalidateMemberCount(ctx, groupID)
	s.publisher.Publish(events.Event{Type: events.MemberJoined, GroupID: groupID, ActorID: userID})
	return membership, nil
}

func (s *MembershipService) Leave(ctx context.Context, groupID, userID string) error {
	group, err := s.loadActiveGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group.LeaderID == userID {
		return apperr.BadRequest("the leader cannot leave; delete or transfer the group first")
	}

	if err := s.membershipRepo.Remove(ctx, groupID, userID); err != nil {
		if errors.Is(err, repository.ErrNoActiveMembership) {
			return apperr.NotFound("no active membership in this group")
		}
		s.logger.WithOperation("leave", userID).ErrorContext(ctx, "remove failed",
			zap.String("group_id", groupID), zap.Error(err))
		return apperr.Internal("leave group", err)
	}

	s.invalidateMemberCount(ctx, groupID)
	s.publisher.Publish(events.Event{Type: events.MemberLeft, GroupID: groupID, ActorID: userID})
	return nil
}

// AddMember admits targetUserID on a leader's or admin's behalf; the target
// bypasses the join code but every other join rule applies.
func (s *MembershipService) AddMember(ctx context.Context, groupID, requesterID, targetUserID string) (*model.Membership, error) {
	access, err := s.guard.Classify(ctx, groupID, requesterID)
	if err != nil {
		return nil, err
	}
	if !access.IsStaff() {
		return nil, apperr.Forbidden("only the leader or an admin can add members")
	}

	target, err := s.userRepo.FindByID(ctx, targetUserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Internal("load user", err)
	}
	if !target.IsActive {
		return nil, apperr.BadRequest("user account is deactivated")
	}

	membership, err := s.membershipRepo.Join(ctx, groupID, targetUserID, model.RoleMember)
	if err != nil {
		return nil, s.mapJoinError(ctx, "addMember", groupID, requesterID, err)
	}

	s.invalidateMemberCount(ctx, groupID)
	s.publisher.Publish(events.Event{
		Type: events.MemberJoined, GroupID: groupID, ActorID: requesterID, TargetID: targetUserID,
	})
	return membership, nil
}

func (s *MembershipService) RemoveMember(ctx context.Context, groupID, requesterID, targetUserID string) error {
	access, err := s.guard.Classify(ctx, groupID, requesterID)
	if err != nil {
		return err
	}
	if !access.IsStaff() {
		return apperr.Forbidden("only the leader or an admin can remove members")
	}
	if access.Group.LeaderID == targetUserID {
		return apperr.BadRequest("the leader cannot be removed")
	}

	if err := s.membershipRepo.Remove(ctx, groupID, targetUserID); err != nil {
		if errors.Is(err, repository.ErrNoActiveMembership) {
			return apperr.NotFound("no active membership in this group")
		}
		s.logger.WithOperation("removeMember", requesterID).ErrorContext(ctx, "remove failed",
			zap.String("group_id", groupID), zap.String("target_id", targetUserID), zap.Error(err))
		return apperr.Internal("remove member", err)
	}

	s.invalidateMemberCount(ctx, groupID)
	s.publisher.Publish(events.Event{
		Type: events.MemberRemoved, GroupID: groupID, ActorID: requesterID, TargetID: targetUserID,
	})
	return nil
}

// BanMember marks the target banned so they cannot rejoin. An active
// membership loses its seat at the same time.
func (s *MembershipService) BanMember(ctx context.Context, groupID, requesterID, targetUserID string) error {
	access, err := s.guard.Classify(ctx, groupID, requesterID)
	if err != nil {
		return err
	}
	if !access.IsStaff() {
		return apperr.Forbidden("only the leader or an admin can ban members")
	}
	if access.Group.LeaderID == targetUserID {
		return apperr.BadRequest("the leader cannot be banned")
	}

	if err := s.membershipRepo.Ban(ctx, groupID, targetUserID); err != nil {
		s.logger.WithOperation("banMember", requesterID).ErrorContext(ctx, "ban failed",
			zap.String("group_id", groupID), zap.String("target_id", targetUserID), zap.Error(err))
		return apperr.Internal("ban member", err)
	}

	s.invalidateMemberCount(ctx, groupID)
	s.publisher.Publish(events.Event{
		Type: events.MemberBanned, GroupID: groupID, ActorID: requesterID, TargetID: targetUserID,
	})
	return nil
}

// UpdateMemberRole promotes or demotes between member and admin. Leadership
// is not assignable here; it moves only with the group itself.
func (s *MembershipService) UpdateMemberRole(ctx context.Context, groupID, requesterID, targetUserID string, role model.Role) error {
	access, err := s.guard.Classify(ctx, groupID, requesterID)
	if err != nil {
		return err
	}
	if !access.IsLeader() {
		return apperr.Forbidden("only the leader can change member roles")
	}
	if role != model.RoleAdmin && role != model.RoleMember {
		return apperr.BadRequest("role must be admin or member")
	}
	if access.Group.LeaderID == targetUserID {
		return apperr.BadRequest("the leader's role cannot be changed")
	}

	if err := s.membershipRepo.UpdateRole(ctx, groupID, targetUserID, role); err != nil {
		if errors.Is(err, repository.ErrNoActiveMembership) {
			return apperr.NotFound("no active membership in this group")
		}
		return apperr.Internal("update member role", err)
	}

	s.publisher.Publish(events.Event{
		Type: events.MemberRoleChanged, GroupID: groupID, ActorID: requesterID, TargetID: targetUserID,
	})
	return nil
}

func (s *MembershipService) ListMembers(ctx context.Context, groupID, requesterID string) ([]*model.Membership, error) {
	access, err := s.guard.Classify(ctx, groupID, requesterID)
	if err != nil {
		return nil, err
	}
	if access.Group.IsPrivate() && !access.IsMember() {
		return nil, apperr.Forbidden("group is private")
	}

	memberships, err := s.membershipRepo.ListActiveByGroup(ctx, groupID)
	if err != nil {
		return nil, apperr.Internal("list members", err)
	}
	return memberships, nil
}

// MemberCount serves the public occupancy summary through the cache.
func (s *MembershipService) MemberCount(ctx context.Context, groupID string) (*MemberCountView, error) {
	if cached, err := s.cache.GetMemberCount(ctx, groupID); err == nil && cached != nil {
		return &MemberCountView{
			Count:          cached.Count,
			Capacity:       cached.Capacity,
			AvailableSlots: cached.Capacity - cached.Count,
		}, nil
	}

	group, err := s.loadActiveGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetMemberCount(ctx, groupID, redis.MemberCount{
		Count:    group.CurrentMemberCount,
		Capacity: group.Capacity,
	}, memberCountTTL); err != nil {
		// Cache trouble degrades to direct reads.
		s.logger.WarnContext(ctx, "member count cache write failed",
			zap.String("group_id", groupID), zap.Error(err))
	}

	return &MemberCountView{
		Count:          group.CurrentMemberCount,
		Capacity:       group.Capacity,
		AvailableSlots: group.Capacity - group.CurrentMemberCount,
	}, nil
}

func (s *MembershipService) loadActiveGroup(ctx context.Context, groupID string) (*model.Group, error) {
	group, err := s.groupRepo.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("group not found")
		}
		return nil, apperr.Internal("load group", err)
	}
	if !group.IsActive {
		return nil, apperr.NotFound("group not found")
	}
	return group, nil
}

func (s *MembershipService) mapJoinError(ctx context.Context, op, groupID, requesterID string, err error) error {
	switch {
	case errors.Is(err, repository.ErrCapacityReached):
		return apperr.Forbidden("group capacity reached")
	case errors.Is(err, repository.ErrAlreadyMember):
		return apperr.Conflict("already an active member of this group")
	case errors.Is(err, repository.ErrMembershipBanned):
		return apperr.Forbidden("banned from this group")
	default:
		s.logger.WithOperation(op, requesterID).ErrorContext(ctx, "join transaction failed",
			zap.String("group_id", groupID), zap.Error(err))
		return apperr.Internal("join group", err)
	}
}

func (s *MembershipService) invalidateMemberCount(ctx context.Context, groupID string) {
	if err := s.cache.InvalidateMemberCount(ctx, groupID); err != nil {
		s.logger.WarnContext(ctx, "member count invalidation failed",
			zap.String("group_id", groupID), zap.Error(err))
	}
}
