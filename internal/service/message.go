package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/studyhive/studyhive/internal/apperr"
	"github.com/studyhive/studyhive/internal/model"
	"github.com/studyhive/studyhive/internal/pkg/events"
	"github.com/studyhive/studyhive/internal/repository"
	"github.com/studyhive/studyhive/middleware/log"
	"github.com/studyhive/studyhive/utils/snowflake"
)

const (
	defaultListLimit   = 50
	maxListLimit       = 100
	defaultSearchLimit = 20

	// casRetries bounds the reload-and-retry loop on version conflicts.
	casRetries = 3
)

// SendMessageRequest is the payload for posting a message.
type SendMessageRequest struct {
	Content  string            `json:"content" binding:"required,max=2000"`
	MsgType  model.MessageType `json:"message_type"`
	FileURL  string            `json:"file_url"`
	FileName string            `json:"file_name"`
	FileSize int64             `json:"file_size"`
	ReplyTo  *int64            `json:"reply_to"`
}

// ListMessagesRequest pages through a group's history. Before and After are
// exclusive message-ID cursors; Page applies when neither cursor is set.
type ListMessagesRequest struct {
	Page   int
	Limit  int
	Before int64
	After  int64
}

// ReadStatusView reports who has read a message. Readers carries the
// resolved identities in read order; IDs with no matching user record are
// listed in UserIDs only.
type ReadStatusView struct {
	Count   int          `json:"count"`
	UserIDs []string     `json:"user_ids"`
	Readers []ReaderView `json:"readers"`
}

// ReaderView is the public slice of a reader's identity.
type ReaderView struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
}

type IMessageService interface {
	Send(ctx context.Context, groupID, senderID string, req *SendMessageRequest) (*model.Message, error)
	Edit(ctx context.Context, messageID int64, requesterID, newContent string) (*model.Message, error)
	SoftDelete(ctx context.Context, messageID int64, requesterID string) error
	React(ctx context.Context, messageID int64, userID, emoji string) (*model.Message, error)
	TogglePin(ctx context.Context, messageID int64, requesterID string) (*model.Message, error)
	MarkRead(ctx context.Context, messageID int64, userID string) error
	ReadStatus(ctx context.Context, messageID int64, requesterID string) (*ReadStatusView, error)
	List(ctx context.Context, groupID, requesterID string, req *ListMessagesRequest) ([]*model.Message, error)
	ListPinned(ctx context.Context, groupID, requesterID string) ([]*model.Message, error)
	Search(ctx context.Context, groupID, requesterID, text string, page, limit int) ([]*model.Message, int64, error)
}

type MessageService struct {
	messageRepo    repository.IMessageRepository
	membershipRepo repository.IMembershipRepository
	userRepo       repository.IUserRepository
	guard          *AccessGuard
	idGen          *snowflake.Generator
	publisher      *events.Publisher
	logger         *logger.Logger
}

func NewMessageService(
	messageRepo repository.IMessageRepository,
	membershipRepo repository.IMembershipRepository,
	userRepo repository.IUserRepository,
	guard *AccessGuard,
	idGen *snowflake.Generator,
	publisher *events.Publisher,
	log *logger.Logger,
) IMessageService {
	return &MessageService{
		messageRepo:    messageRepo,
		membershipRepo: membershipRepo,
		userRepo:       userRepo,
		guard:          guard,
		idGen:          idGen,
		publisher:      publisher,
		logger:         log,
	}
}

// Send posts a message to the group's chat. The sender must be an active
// member; a reply target must be a message of the same group.
func (s *MessageService) Send(ctx context.Context, groupID, senderID string, req *SendMessageRequest) (*model.Message, error) {
	access, err := s.guard.Classify(ctx, groupID, senderID)
	if err != nil {
		return nil, err
	}
	if !access.IsMember() {
		return nil, apperr.Forbidden("only group members can send messages")
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, apperr.BadRequest("message content is required")
	}
	if utf8.RuneCountInString(content) > model.MaxContentLength {
		return nil, apperr.BadRequest(fmt.Sprintf("message content exceeds %d characters", model.MaxContentLength))
	}
	msgType := req.MsgType
	if msgType == "" {
		msgType = model.MessageText
	}
	if !msgType.Valid() {
		return nil, apperr.BadRequest(fmt.Sprintf("invalid message type %q", msgType))
	}

	if req.ReplyTo != nil {
		parent, err := s.messageRepo.FindByID(ctx, *req.ReplyTo)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperr.BadRequest("reply target does not exist")
			}
			return nil, apperr.Internal("load reply target", err)
		}
		if parent.GroupID != groupID {
			return nil, apperr.BadRequest("reply target belongs to another group")
		}
	}

	id, err := s.idGen.Next()
	if err != nil {
		return nil, apperr.Internal("generate message id", err)
	}

	now := timeNow()
	message := &model.Message{
		ID:        id,
		GroupID:   groupID,
		SenderID:  senderID,
		Content:   content,
		MsgType:   msgType,
		FileURL:   req.FileURL,
		FileName:  req.FileName,
		FileSize:  req.FileSize,
		ReplyToID: req.ReplyTo,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.messageRepo.Create(ctx, message); err != nil {
		s.logger.WithOperation("sendMessage", senderID).ErrorContext(ctx, "create failed",
			zap.String("group_id", groupID), zap.Error(err))
		return nil, apperr.Internal("send message", err)
	}

	if err := s.membershipRepo.TouchLastActive(ctx, groupID, senderID); err != nil {
		s.logger.WarnContext(ctx, "last active update failed",
			zap.String("group_id", groupID), zap.Error(err))
	}

	s.publisher.Publish(events.Event{
		Type: events.MessageSent, GroupID: groupID, ActorID: senderID, MessageID: id,
	})
	return message, nil
}

// Edit replaces the content within the 15-minute window, archiving the
// pre-edit content first. Only the sender may edit; deleted messages are
// frozen.
func (s *MessageService) Edit(ctx context.Context, messageID int64, requesterID, newContent string) (*model.Message, error) {
	newContent = strings.TrimSpace(newContent)
	if newContent == "" || utf8.RuneCountInString(newContent) > model.MaxContentLength {
		return nil, apperr.BadRequest(fmt.Sprintf("message content must be between 1 and %d characters", model.MaxContentLength))
	}

	message, err := s.mutate(ctx, messageID, func(m *model.Message) error {
		if m.SenderID != requesterID {
			return apperr.Forbidden("only the sender can edit a message")
		}
		if m.IsDeleted {
			return apperr.BadRequest("message has been deleted")
		}
		if timeNow().Sub(m.CreatedAt) >= model.EditWindow {
			return apperr.BadRequest("edit window has expired")
		}

		m.EditHistory = append(m.EditHistory, model.EditRecord{
			Content:  m.Content,
			EditedAt: timeNow(),
		})
		m.Content = newContent
		m.IsEdited = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(events.Event{
		Type: events.MessageEdited, GroupID: message.GroupID, ActorID: requesterID, MessageID: messageID,
	})
	return message, nil
}

// SoftDelete hides the message and freezes all further mutation. Allowed
// for the sender and the group leader; content is retained for audit.
func (s *MessageService) SoftDelete(ctx context.Context, messageID int64, requesterID string) error {
	message, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return err
	}

	access, err := s.guard.Classify(ctx, message.GroupID, requesterID)
	if err != nil {
		return err
	}
	if message.SenderID != requesterID && !access.IsLeader() {
		return apperr.Forbidden("only the sender or the leader can delete a message")
	}

	if _, err := s.mutate(ctx, messageID, func(m *model.Message) error {
		if m.IsDeleted {
			return apperr.NotFound("message not found")
		}
		now := timeNow()
		m.IsDeleted = true
		m.DeletedAt = &now
		m.DeletedBy = requesterID
		return nil
	}); err != nil {
		return err
	}

	s.publisher.Publish(events.Event{
		Type: events.MessageDeleted, GroupID: message.GroupID, ActorID: requesterID, MessageID: messageID,
	})
	return nil
}

// React toggles userID's reaction: present removes it (dropping the emoji
// entry once its user set empties), absent adds it.
func (s *MessageService) React(ctx context.Context, messageID int64, userID, emoji string) (*model.Message, error) {
	if emoji == "" {
		return nil, apperr.BadRequest("emoji is required")
	}

	message, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, message.GroupID, userID); err != nil {
		return nil, err
	}

	message, err = s.mutate(ctx, messageID, func(m *model.Message) error {
		if m.IsDeleted {
			return apperr.BadRequest("message has been deleted")
		}
		m.Reactions = toggleReaction(m.Reactions, emoji, userID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(events.Event{
		Type: events.ReactionToggled, GroupID: message.GroupID, ActorID: userID, MessageID: messageID,
	})
	return message, nil
}

// TogglePin flips the pinned flag. Pinning is leader-only and capped at
// five pinned messages per group, checked inside the same transaction as
// the flip.
func (s *MessageService) TogglePin(ctx context.Context, messageID int64, requesterID string) (*model.Message, error) {
	message, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	access, err := s.guard.Classify(ctx, message.GroupID, requesterID)
	if err != nil {
		return nil, err
	}
	if !access.IsLeader() {
		return nil, apperr.Forbidden("only the leader can pin or unpin messages")
	}

	var updated *model.Message
	err = s.messageRepo.Transaction(ctx, func(repo repository.IMessageRepository) error {
		m, err := repo.FindByID(ctx, messageID)
		if err != nil {
			return apperr.Internal("load message", err)
		}
		if m.IsDeleted {
			return apperr.BadRequest("message has been deleted")
		}
		if !m.IsPinned {
			pinned, err := repo.CountPinned(ctx, m.GroupID)
			if err != nil {
				return apperr.Internal("count pinned", err)
			}
			if pinned >= model.MaxPinnedPerGroup {
				return apperr.BadRequest(fmt.Sprintf("at most %d messages can be pinned", model.MaxPinnedPerGroup))
			}
		}
		m.IsPinned = !m.IsPinned
		ok, err := repo.UpdateCAS(ctx, m)
		if err != nil {
			return apperr.Internal("update message", err)
		}
		if !ok {
			return apperr.Conflict("message was modified concurrently")
		}
		updated = m
		return nil
	})
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperr.Internal("toggle pin", err)
	}

	s.publisher.Publish(events.Event{
		Type: events.MessagePinToggle, GroupID: message.GroupID, ActorID: requesterID, MessageID: messageID,
	})
	return updated, nil
}

// MarkRead records userID in the read set. Idempotent: a repeat call is a
// no-op.
func (s *MessageService) MarkRead(ctx context.Context, messageID int64, userID string) error {
	message, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if err := s.requireMember(ctx, message.GroupID, userID); err != nil {
		return err
	}
	if message.HasRead(userID) {
		return nil
	}

	_, err = s.mutate(ctx, messageID, func(m *model.Message) error {
		if m.IsDeleted {
			return apperr.BadRequest("message has been deleted")
		}
		if m.HasRead(userID) {
			return nil
		}
		m.ReadBy = append(m.ReadBy, userID)
		return nil
	})
	return err
}

func (s *MessageService) ReadStatus(ctx context.Context, messageID int64, requesterID string) (*ReadStatusView, error) {
	message, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, message.GroupID, requesterID); err != nil {
		return nil, err
	}

	users, err := s.userRepo.FindByIDs(ctx, message.ReadBy)
	if err != nil {
		return nil, apperr.Internal("resolve readers", err)
	}
	byID := make(map[string]*model.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	readers := make([]ReaderView, 0, len(message.ReadBy))
	for _, id := range message.ReadBy {
		if u, ok := byID[id]; ok {
			readers = append(readers, ReaderView{ID: u.ID, Username: u.Username, AvatarURL: u.AvatarURL})
		}
	}

	return &ReadStatusView{Count: len(message.ReadBy), UserIDs: message.ReadBy, Readers: readers}, nil
}

// List pages the group's chat newest-first, then reverses so the caller
// renders oldest-first.
func (s *MessageService) List(ctx context.Context, groupID, requesterID string, req *ListMessagesRequest) ([]*model.Message, error) {
	if err := s.requireMember(ctx, groupID, requesterID); err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit < 1 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := 0
	if req.Before == 0 && req.After == 0 && req.Page > 1 {
		offset = (req.Page - 1) * limit
	}

	messages, err := s.messageRepo.ListByGroup(ctx, groupID, limit, offset, req.Before, req.After)
	if err != nil {
		s.logger.WithOperation("listMessages", requesterID).ErrorContext(ctx, "list failed",
			zap.String("group_id", groupID), zap.Error(err))
		return nil, apperr.Internal("list messages", err)
	}

	// Oldest first for display.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (s *MessageService) ListPinned(ctx context.Context, groupID, requesterID string) ([]*model.Message, error) {
	if err := s.requireMember(ctx, groupID, requesterID); err != nil {
		return nil, err
	}

	messages, err := s.messageRepo.ListPinned(ctx, groupID)
	if err != nil {
		return nil, apperr.Internal("list pinned messages", err)
	}
	return messages, nil
}

func (s *MessageService) Search(ctx context.Context, groupID, requesterID, text string, page, limit int) ([]*model.Message, int64, error) {
	if strings.TrimSpace(text) == "" {
		return nil, 0, apperr.BadRequest("search text is required")
	}
	if err := s.requireMember(ctx, groupID, requesterID); err != nil {
		return nil, 0, err
	}

	if limit < 1 {
		limit = defaultSearchLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if page < 1 {
		page = 1
	}

	messages, total, err := s.messageRepo.Search(ctx, groupID, text, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, apperr.Internal("search messages", err)
	}
	return messages, total, nil
}

// mutate runs the CAS loop: reload, apply fn, attempt the guarded write.
func (s *MessageService) mutate(ctx context.Context, messageID int64, fn func(*model.Message) error) (*model.Message, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		message, err := s.loadMessage(ctx, messageID)
		if err != nil {
			return nil, err
		}
		if err := fn(message); err != nil {
			return nil, err
		}

		ok, err := s.messageRepo.UpdateCAS(ctx, message)
		if err != nil {
			return nil, apperr.Internal("update message", err)
		}
		if ok {
			return message, nil
		}
	}
	return nil, apperr.Conflict("message was modified concurrently, retry")
}

func (s *MessageService) loadMessage(ctx context.Context, messageID int64) (*model.Message, error) {
	message, err := s.messageRepo.FindByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("message not found")
		}
		return nil, apperr.Internal("load message", err)
	}
	return message, nil
}

func (s *MessageService) requireMember(ctx context.Context, groupID, userID string) error {
	access, err := s.guard.Classify(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !access.IsMember() {
		return apperr.Forbidden("only group members can access the chat")
	}
	return nil
}

// toggleReaction applies the toggle semantics: the emoji entry exists iff
// at least one user reacts with it.
func toggleReaction(reactions []model.Reaction, emoji, userID string) []model.Reaction {
	for i := range reactions {
		if reactions[i].Emoji != emoji {
			continue
		}
		for j, id := range reactions[i].UserIDs {
			if id == userID {
				reactions[i].UserIDs = append(reactions[i].UserIDs[:j], reactions[i].UserIDs[j+1:]...)
				if len(reactions[i].UserIDs) == 0 {
					return append(reactions[:i], reactions[i+1:]...)
				}
				return reactions
			}
		}
		reactions[i].UserIDs = append(reactions[i].UserIDs, userID)
		return reactions
	}
	return append(reactions, model.Reaction{Emoji: emoji, UserIDs: []string{userID}})
}
