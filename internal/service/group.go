package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/studyhive/studyhive/internal/apperr"
	"github.com/studyhive/studyhive/internal/model"
	"github.com/studyhive/studyhive/internal/pkg/events"
	"github.com/studyhive/studyhive/internal/repository"
	"github.com/studyhive/studyhive/middleware/log"
	"github.com/studyhive/studyhive/utils/joincode"
)

// joinCodeAttempts bounds how many candidates the generator tries before
// giving up; collisions at 36^8 codes make even a second attempt rare.
const joinCodeAttempts = 5

// CreateGroupRequest carries the validated creation payload.
type CreateGroupRequest struct {
	Title         string           `json:"title" binding:"required,min=1,max=100"`
	Description   string           `json:"description" binding:"max=2000"`
	Category      model.Category   `json:"category" binding:"required"`
	Visibility    model.Visibility `json:"visibility"`
	Capacity      int              `json:"capacity"`
	GoalHours     *int             `json:"goal_hours"`
	Tags          []string         `json:"tags"`
	JoinCode      string           `json:"join_code"`
	AvatarURL     string           `json:"avatar_url"`
	CoverImageURL string           `json:"cover_image_url"`
}

// UpdateGroupRequest is a partial patch; nil fields stay untouched.
type UpdateGroupRequest struct {
	Title         *string           `json:"title"`
	Description   *string           `json:"description"`
	Category      *model.Category   `json:"category"`
	Visibility    *model.Visibility `json:"visibility"`
	Capacity      *int              `json:"capacity"`
	GoalHours     *int              `json:"goal_hours"`
	Tags          *[]string         `json:"tags"`
	AvatarURL     *string           `json:"avatar_url"`
	CoverImageURL *string           `json:"cover_image_url"`
}

// GroupView is a group as one viewer sees it: JoinCode is populated only
// for the leader and active members.
type GroupView struct {
	*model.Group
	JoinCode string `json:"join_code,omitempty"`
}

// ListGroupsRequest mirrors repository.GroupFilters with paging defaults
// applied by the service.
type ListGroupsRequest struct {
	Category   model.Category
	Visibility model.Visibility
	Query      string
	Tag        string
	HasSpace   bool
	SortBy     string
	SortDesc   bool
	Page       int
	Limit      int
}

type IGroupService interface {
	CreateGroup(ctx context.Context, leaderID string, req *CreateGroupRequest) (*GroupView, error)
	UpdateGroup(ctx context.Context, groupID, requesterID string, req *UpdateGroupRequest) (*GroupView, error)
	DeleteGroup(ctx context.Context, groupID, requesterID string) error
	GetGroup(ctx context.Context, groupID, requesterID string) (*GroupView, error)
	ListGroups(ctx context.Context, req *ListGroupsRequest, requesterID string) ([]*model.Group, int64, error)
}

type GroupService struct {
	groupRepo      repository.IGroupRepository
	membershipRepo repository.IMembershipRepository
	guard          *AccessGuard
	publisher      *events.Publisher
	codeFilter     *joincode.Filter
	logger         *logger.Logger
}

func NewGroupService(
	groupRepo repository.IGroupRepository,
	membershipRepo repository.IMembershipRepository,
	guard *AccessGuard,
	publisher *events.Publisher,
	log *logger.Logger,
) IGroupService {
	return &GroupService{
		groupRepo:      groupRepo,
		membershipRepo: membershipRepo,
		guard:          guard,
		publisher:      publisher,
		codeFilter:     joincode.NewFilter(1<<20, 5),
		logger:         log,
	}
}

// CreateGroup creates the group and its leader membership as one atomic
// unit; the creator is the first member, so the counter starts at 1.
func (s *GroupService) CreateGroup(ctx context.Context, leaderID string, req *CreateGroupRequest) (*GroupView, error) {
	group := &model.Group{
		ID:                 uuid.New().String(),
		Title:              strings.TrimSpace(req.Title),
		Description:        req.Description,
		Category:           req.Category,
		Visibility:         req.Visibility,
		Capacity:           req.Capacity,
		CurrentMemberCount: 1,
		LeaderID:           leaderID,
		GoalHours:          req.GoalHours,
		Tags:               req.Tags,
		AvatarURL:          req.AvatarURL,
		CoverImageURL:      req.CoverImageURL,
		IsActive:           true,
	}
	if group.Visibility == "" {
		group.Visibility = model.VisibilityPublic
	}
	if group.Capacity == 0 {
		group.Capacity = model.DefaultCapacity
	}
	if err := validateGroupFields(group); err != nil {
		return nil, err
	}

	if group.IsPrivate() {
		code, err := s.resolveJoinCode(ctx, req.JoinCode)
		if err != nil {
			return nil, err
		}
		group.JoinCode = code
	}

	now := timeNow()
	leader := &model.Membership{
		ID:         uuid.New().String(),
		GroupID:    group.ID,
		UserID:     leaderID,
		Role:       model.RoleLeader,
		Status:     model.StatusActive,
		JoinedAt:   now,
		LastActive: now,
	}

	if err := s.groupRepo.CreateWithLeader(ctx, group, leader); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict("join code already in use")
		}
		s.logger.WithOperation("createGroup", leaderID).ErrorContext(ctx, "create failed", zap.Error(err))
		return nil, apperr.Internal("create group", err)
	}

	s.publisher.Publish(events.Event{Type: events.GroupCreated, GroupID: group.ID, ActorID: leaderID})
	return &GroupView{Group: group, JoinCode: group.JoinCode}, nil
}

func (s *GroupService) UpdateGroup(ctx context.Context, groupID, requesterID string, req *UpdateGroupRequest) (*GroupView, error) {
	access, err := s.guard.Classify(ctx, groupID, requesterID)
	if err != nil {
		return nil, err
	}
	if !access.IsLeader() {
		return nil, apperr.Forbidden("only the group leader can update the group")
	}
	group := access.Group

	if req.Capacity != nil && *req.Capacity < group.CurrentMemberCount {
		return nil, apperr.BadRequest("capacity cannot be below the current member count")
	}

	if req.Title != nil {
		group.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		group.Description = *req.Description
	}
	if req.Category != nil {
		group.Category = *req.Category
	}
	if req.Capacity != nil {
		group.Capacity = *req.Capacity
	}
	if req.GoalHours != nil {
		group.GoalHours = req.GoalHours
	}
	if req.Tags != nil {
		group.Tags = *req.Tags
	}
	if req.AvatarURL != nil {
		group.AvatarURL = *req.AvatarURL
	}
	if req.CoverImageURL != nil {
		group.CoverImageURL = *req.CoverImageURL
	}
	if req.Visibility != nil && *req.Visibility != group.Visibility {
		group.Visibility = *req.Visibility
		if group.IsPrivate() {
			code, err := s.resolveJoinCode(ctx, "")
			if err != nil {
				return nil, err
			}
			group.JoinCode = code
		} else {
			group.JoinCode = ""
		}
	}
	if err := validateGroupFields(group); err != nil {
		return nil, err
	}

	if err := s.groupRepo.Update(ctx, group); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict("join code already in use")
		}
		s.logger.WithOperation("updateGroup", requesterID).ErrorContext(ctx, "update failed",
			zap.String("group_id", groupID), zap.Error(err))
		return nil, apperr.Internal("update group", err)
	}

	s.publisher.Publish(events.Event{Type: events.GroupUpdated, GroupID: groupID, ActorID: requesterID})
	return &GroupView{Group: group, JoinCode: group.JoinCode}, nil
}

// DeleteGroup soft-deletes the group: memberships cascade to inactive, the
// counter drops to zero, message history stays.
func (s *GroupService) DeleteGroup(ctx context.Context, groupID, requesterID string) error {
	access, err := s.guard.Classify(ctx, groupID, requesterID)
	if err != nil {
		return err
	}
	if !access.IsLeader() {
		return apperr.Forbidden("only the group leader can delete the group")
	}

	if err := s.groupRepo.SoftDelete(ctx, groupID); err != nil {
		s.logger.WithOperation("deleteGroup", requesterID).ErrorContext(ctx, "delete failed",
			zap.String("group_id", groupID), zap.Error(err))
		return apperr.Internal("delete group", err)
	}

	s.publisher.Publish(events.Event{Type: events.GroupDeleted, GroupID: groupID, ActorID: requesterID})
	return nil
}

func (s *GroupService) GetGroup(ctx context.Context, groupID, requesterID string) (*GroupView, error) {
	access, err := s.guard.Classify(ctx, groupID, requesterID)
	if err != nil {
		return nil, err
	}
	if access.Group.IsPrivate() && !access.IsMember() {
		return nil, apperr.Forbidden("group is private")
	}

	view := &GroupView{Group: access.Group}
	if access.IsMember() {
		view.JoinCode = access.Group.JoinCode
	}
	return view, nil
}

func (s *GroupService) ListGroups(ctx context.Context, req *ListGroupsRequest, requesterID string) ([]*model.Group, int64, error) {
	filters := repository.GroupFilters{
		Category:   req.Category,
		Visibility: req.Visibility,
		Query:      req.Query,
		Tag:        req.Tag,
		HasSpace:   req.HasSpace,
		SortBy:     req.SortBy,
		SortDesc:   req.SortDesc,
		Page:       req.Page,
		Limit:      req.Limit,
	}
	// Anonymous browsing never sees private groups.
	if requesterID == "" {
		filters.Visibility = model.VisibilityPublic
	}
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.Limit < 1 {
		filters.Limit = 20
	}
	if filters.Limit > 100 {
		filters.Limit = 100
	}

	groups, total, err := s.groupRepo.List(ctx, filters)
	if err != nil {
		s.logger.WithOperation("listGroups", requesterID).ErrorContext(ctx, "list failed", zap.Error(err))
		return nil, 0, apperr.Internal("list groups", err)
	}
	return groups, total, nil
}

// resolveJoinCode validates a supplied code or generates a fresh unique one.
// Supplied codes are always checked against the directory; the bloom filter
// is process-local, so it only short-circuits probes for generated codes.
func (s *GroupService) resolveJoinCode(ctx context.Context, supplied string) (string, error) {
	if supplied != "" {
		supplied = strings.ToUpper(supplied)
		if !joincode.Valid(supplied) {
			return "", apperr.BadRequest("join code must be 8 uppercase letters or digits")
		}
		taken, err := s.groupRepo.JoinCodeExists(ctx, supplied)
		if err != nil {
			return "", apperr.Internal("check join code", err)
		}
		if taken {
			return "", apperr.Conflict("join code already in use")
		}
		s.codeFilter.Add(supplied)
		return supplied, nil
	}

	for i := 0; i < joinCodeAttempts; i++ {
		code, err := joincode.Generate()
		if err != nil {
			return "", apperr.Internal("generate join code", err)
		}
		taken, err := s.joinCodeTaken(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			s.codeFilter.Add(code)
			return code, nil
		}
	}
	return "", apperr.Internal("generate join code", errors.New("exhausted attempts"))
}

func (s *GroupService) joinCodeTaken(ctx context.Context, code string) (bool, error) {
	if !s.codeFilter.MayContain(code) {
		return false, nil
	}
	taken, err := s.groupRepo.JoinCodeExists(ctx, code)
	if err != nil {
		return false, apperr.Internal("check join code", err)
	}
	return taken, nil
}

func validateGroupFields(group *model.Group) error {
	if group.Title == "" || len(group.Title) > 100 {
		return apperr.BadRequest("title must be between 1 and 100 characters")
	}
	if !group.Category.Valid() {
		return apperr.BadRequest(fmt.Sprintf("invalid category %q", group.Category))
	}
	if group.Visibility != model.VisibilityPublic && group.Visibility != model.VisibilityPrivate {
		return apperr.BadRequest(fmt.Sprintf("invalid visibility %q", group.Visibility))
	}
	if group.Capacity < model.MinCapacity || group.Capacity > model.MaxCapacity {
		return apperr.BadRequest(fmt.Sprintf("capacity must be between %d and %d", model.MinCapacity, model.MaxCapacity))
	}
	if group.GoalHours != nil && (*group.GoalHours < 1 || *group.GoalHours > 24) {
		return apperr.BadRequest("goal hours must be between 1 and 24")
	}
	if len(group.Tags) > model.MaxTags {
		return apperr.BadRequest(fmt.Sprintf("at most %d tags are allowed", model.MaxTags))
	}
	return nil
}
