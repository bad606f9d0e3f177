package service

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhive/studyhive/internal/apperr"
	"github.com/studyhive/studyhive/internal/model"
)

type chatEnv struct {
	*env
	leader *model.User
	member *model.User
	group  *model.Group
}

func newChatEnv(t *testing.T) *chatEnv {
	t.Helper()
	e := newEnv(t)
	leader := e.seedUser(t, "leader")
	member := e.seedUser(t, "member")
	group := e.seedGroup(t, leader.ID, model.VisibilityPublic, 10)
	e.seedMember(t, group.ID, member.ID, model.RoleMember)
	return &chatEnv{env: e, leader: leader, member: member, group: group}
}

func (e *chatEnv) send(t *testing.T, senderID, content string) *model.Message {
	t.Helper()
	message, err := e.messages.Send(t.Context(), e.group.ID, senderID, &SendMessageRequest{Content: content})
	require.NoError(t, err)
	return message
}

func TestSendMessage(t *testing.T) {
	e := newChatEnv(t)
	ctx := t.Context()

	message := e.send(t, e.member.ID, "anyone solved problem 4?")
	assert.Equal(t, model.MessageText, message.MsgType)
	assert.False(t, message.IsEdited)
	assert.False(t, message.IsPinned)
	assert.False(t, message.IsDeleted)
	assert.Empty(t, message.Reactions)

	stranger := e.seedUser(t, "stranger")
	_, err := e.messages.Send(ctx, e.group.ID, stranger.ID, &SendMessageRequest{Content: "hi"})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = e.messages.Send(ctx, e.group.ID, e.member.ID, &SendMessageRequest{Content: "   "})
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
}

func TestSendReplyValidation(t *testing.T) {
	e := newChatEnv(t)
	ctx := t.Context()

	parent := e.send(t, e.leader.ID, "original")
	reply, err := e.messages.Send(ctx, e.group.ID, e.member.ID, &SendMessageRequest{
		Content: "agreed", ReplyTo: &parent.ID,
	})
	require.NoError(t, err)
	require.NotNil(t, reply.ReplyToID)
	assert.Equal(t, parent.ID, *reply.ReplyToID)

	missing := parent.ID + 12345
	_, err = e.messages.Send(ctx, e.group.ID, e.member.ID, &SendMessageRequest{
		Content: "to nothing", ReplyTo: &missing,
	})
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))

	// A message of another group is not a valid reply target.
	other := e.seedGroup(t, e.leader.ID, model.VisibilityPublic, 10)
	foreign, err := e.messages.Send(ctx, other.ID, e.leader.ID, &SendMessageRequest{Content: "elsewhere"})
	require.NoError(t, err)
	_, err = e.messages.Send(ctx, e.group.ID, e.member.ID, &SendMessageRequest{
		Content: "cross reply", ReplyTo: &foreign.ID,
	})
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
}

func TestEditMessage(t *testing.T) {
	e := newChatEnv(t)
	ctx := t.Context()

	message := e.send(t, e.member.ID, "first draft")

	edited, err := e.messages.Edit(ctx, message.ID, e.member.ID, "second draft")
	require.NoError(t, err)
	assert.Equal(t, "second draft", edited.Content)
	assert.True(t, edited.IsEdited)
	require.Len(t, edited.EditHistory, 1)
	assert.Equal(t, "first draft", edited.EditHistory[0].Content)

	edited, err = e.messages.Edit(ctx, message.ID, e.member.ID, "third draft")
	require.NoError(t, err)
	require.Len(t, edited.EditHistory, 2)
	assert.Equal(t, "second draft", edited.EditHistory[1].Content)

	// Only the sender may edit, even the leader can't.
	_, err = e.messages.Edit(ctx, message.ID, e.leader.ID, "hijacked")
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestEditWindow(t *testing.T) {
	e := newChatEnv(t)
	ctx := t.Context()

	start := time.Now().Round(time.Second)
	setClock(t, start)
	message := e.send(t, e.member.ID, "just in time")

	// One second inside the window edits fine.
	setClock(t, start.Add(model.EditWindow-time.Second))
	_, err := e.messages.Edit(ctx, message.ID, e.member.ID, "still editable")
	require.NoError(t, err)

	// Exactly at the boundary the window has closed.
	setClock(t, start.Add(model.EditWindow))
	_, err = e.messages.Edit(ctx, message.ID, e.member.ID, "nope")
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
}

func TestContentLengthCountsRunes(t *testing.T) {
	e := newChatEnv(t)
	ctx := t.Context()

	// Multibyte runes: 2000 Devanagari characters are 6000 bytes.
	message := e.send(t, e.member.ID, strings.Repeat("\u0915", model.MaxContentLength))

	_, err := e.messages.Send(ctx, e.group.ID, e.member.ID,
		&SendMessageRequest{Content: strings.Repeat("\u0915", model.MaxContentLength+1)})
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))

	edited, err := e.messages.Edit(ctx, message.ID, e.member.ID, strings.Repeat("\u091c", model.MaxContentLength))
	require.NoError(t, err)
	assert.True(t, edited.IsEdited)

	_, err = e.messages.Edit(ctx, message.ID, e.member.ID, strings.Repeat("\u091c", model.MaxContentLength+1))
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
}

func TestSoftDelete(t *testing.T) {
	e := newChatEnv(t)
	ctx := t.Context()

	message := e.send(t, e.member.ID, "regrettable")

	// A plain member cannot delete someone else's message.
	other := e.seedUser(t, "other")
	e.seedMember(t, e.group.ID, other.ID, model.RoleMember)
	err := e.messages.SoftDelete(ctx, message.ID, other.ID)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	// The leader can.
	require.NoError(t, e.messages.SoftDelete(ctx, message.ID, e.leader.ID))

	var stored model.Message
	require.NoError(t, e.db.First(&stored, "id = ?", message.ID).Error)
	assert.True(t, stored.IsDeleted)
	assert.Equal(t, e.leader.ID, stored.DeletedBy)
	require.NotNil(t, stored.DeletedAt)
	assert.Equal(t, "regrettable", stored.Content)

	// Deleted messages are frozen.
	_, err = e.messages.Edit(ctx, message.ID, e.member.ID, "undo")
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
	_, err = e.messages.React(ctx, message.ID, e.member.ID, "👍")
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
	_, err = e.messages.TogglePin(ctx, message.ID, e.leader.ID)
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
	err = e.messages.MarkRead(ctx, message.ID, e.member.ID)
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
}

func TestReactToggle(t *testing.T) {
	e := newChatEnv(t)
	ctx := t.Context()

	message := e.send(t, e.leader.ID, "poll: morning or evening?")

	after, err := e.messages.React(ctx, message.ID, e.member.ID, "🌅")
	require.NoError(t, err)
	assert.True(t, after.HasReaction("🌅", e.member.ID))

	after, err = e.messages.React(ctx, message.ID, e.leader.ID, "🌅")
	require.NoError(t, err)
	require.Len(t, after.Reactions, 1)
	assert.Len(t, after.Reactions[0].UserIDs, 2)

	// Toggling off removes the user; the last user removes the entry.
	after, err = e.messages.React(ctx, message.ID, e.member.ID, "🌅")
	require.NoError(t, err)
	assert.False(t, after.HasReaction("🌅", e.member.ID))
	after, err = e.messages.React(ctx, message.ID, e.leader.ID, "🌅")
	require.NoError(t, err)
	assert.Empty(t, after.Reactions)

	stranger := e.seedUser(t, "stranger")
	_, err = e.messages.React(ctx, message.ID, stranger.ID, "🔥")
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestPinLimit(t *testing.T) {
	e := newChatEnv(t)
	ctx := t.Context()

	var messages []*model.Message
	for i := 0; i <= model.MaxPinnedPerGroup; i++ {
		messages = append(messages, e.send(t, e.leader.ID, fmt.Sprintf("notice %d", i)))
	}

	for i := 0; i < model.MaxPinnedPerGroup; i++ {
		pinned, err := e.messages.TogglePin(ctx, messages[i].ID, e.leader.ID)
		require.NoError(t, err)
		assert.True(t, pinned.IsPinned)
	}

	// The sixth pin is rejected.
	_, err := e.messages.TogglePin(ctx, messages[model.MaxPinnedPerGroup].ID, e.leader.ID)
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))

	// Unpinning frees a slot.
	unpinned, err := e.messages.TogglePin(ctx, messages[0].ID, e.leader.ID)
	require.NoError(t, err)
	assert.False(t, unpinned.IsPinned)
	_, err = e.messages.TogglePin(ctx, messages[model.MaxPinnedPerGroup].ID, e.leader.ID)
	require.NoError(t, err)

	// Pinning is leader-only.
	_, err = e.messages.TogglePin(ctx, messages[0].ID, e.member.ID)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestMarkReadIdempotent(t *testing.T) {
	e := newChatEnv(t)
	ctx := t.Context()

	message := e.send(t, e.leader.ID, "please read the syllabus")

	require.NoError(t, e.messages.MarkRead(ctx, message.ID, e.member.ID))
	require.NoError(t, e.messages.MarkRead(ctx, message.ID, e.member.ID))

	status, err := e.messages.ReadStatus(ctx, message.ID, e.leader.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Count)
	assert.Equal(t, []string{e.member.ID}, status.UserIDs)
	require.Len(t, status.Readers, 1)
	assert.Equal(t, e.member.ID, status.Readers[0].ID)
	assert.Equal(t, "member", status.Readers[0].Username)
}

func TestListMessages(t *testing.T) {
	e := newChatEnv(t)
	ctx := t.Context()

	var sent []*model.Message
	for i := 0; i < 7; i++ {
		sent = append(sent, e.send(t, e.member.ID, fmt.Sprintf("msg %d", i)))
	}
	deleted := sent[3]
	require.NoError(t, e.messages.SoftDelete(ctx, deleted.ID, e.member.ID))

	t.Run("default listing is ascending and skips deleted", func(t *testing.T) {
		messages, err := e.messages.List(ctx, e.group.ID, e.member.ID, &ListMessagesRequest{})
		require.NoError(t, err)
		require.Len(t, messages, 6)
		for i := 1; i < len(messages); i++ {
			assert.Less(t, messages[i-1].ID, messages[i].ID)
		}
		for _, m := range messages {
			assert.NotEqual(t, deleted.ID, m.ID)
		}
	})

	t.Run("before cursor", func(t *testing.T) {
		messages, err := e.messages.List(ctx, e.group.ID, e.member.ID, &ListMessagesRequest{
			Before: sent[2].ID, Limit: 10,
		})
		require.NoError(t, err)
		require.Len(t, messages, 2)
		assert.Equal(t, sent[0].ID, messages[0].ID)
		assert.Equal(t, sent[1].ID, messages[1].ID)
	})

	t.Run("after cursor", func(t *testing.T) {
		messages, err := e.messages.List(ctx, e.group.ID, e.member.ID, &ListMessagesRequest{
			After: sent[4].ID, Limit: 10,
		})
		require.NoError(t, err)
		require.Len(t, messages, 2)
		assert.Equal(t, sent[5].ID, messages[0].ID)
		assert.Equal(t, sent[6].ID, messages[1].ID)
	})

	t.Run("page two", func(t *testing.T) {
		messages, err := e.messages.List(ctx, e.group.ID, e.member.ID, &ListMessagesRequest{
			Page: 2, Limit: 4,
		})
		require.NoError(t, err)
		require.Len(t, messages, 2)
		assert.Equal(t, sent[0].ID, messages[0].ID)
	})

	t.Run("non-members cannot read", func(t *testing.T) {
		stranger := e.seedUser(t, "stranger")
		_, err := e.messages.List(ctx, e.group.ID, stranger.ID, &ListMessagesRequest{})
		assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	})
}

func TestListPinned(t *testing.T) {
	e := newChatEnv(t)
	ctx := t.Context()

	plain := e.send(t, e.leader.ID, "plain")
	pinned := e.send(t, e.leader.ID, "pinned")
	_, err := e.messages.TogglePin(ctx, pinned.ID, e.leader.ID)
	require.NoError(t, err)
	_ = plain

	messages, err := e.messages.ListPinned(ctx, e.group.ID, e.member.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, pinned.ID, messages[0].ID)
}

func TestSearchMessages(t *testing.T) {
	e := newChatEnv(t)
	ctx := t.Context()

	e.send(t, e.member.ID, "the mock test is on Friday")
	e.send(t, e.member.ID, "bring your Mock papers")
	gone := e.send(t, e.member.ID, "mock results are out")
	require.NoError(t, e.messages.SoftDelete(ctx, gone.ID, e.member.ID))
	e.send(t, e.member.ID, "unrelated chatter")

	messages, total, err := e.messages.Search(ctx, e.group.ID, e.member.ID, "mock", 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, messages, 2)

	_, _, err = e.messages.Search(ctx, e.group.ID, e.member.ID, "   ", 1, 20)
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
}

// TestReactionToggleProperty checks that any sequence of toggles keeps the
// reaction set consistent: an even number of toggles by a user leaves no
// trace, an odd number leaves exactly one, and no emoji entry is ever empty.
func TestReactionToggleProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	emojis := []string{"👍", "🔥", "🎯"}
	users := []string{"u1", "u2", "u3"}

	properties.Property("toggle parity decides presence", prop.ForAll(
		func(steps []int) bool {
			var reactions []model.Reaction
			counts := map[[2]int]int{}
			for _, s := range steps {
				e, u := s%len(emojis), (s/len(emojis))%len(users)
				reactions = toggleReaction(reactions, emojis[e], users[u])
				counts[[2]int{e, u}]++
			}

			for _, r := range reactions {
				if len(r.UserIDs) == 0 {
					return false
				}
			}
			probe := &model.Message{Reactions: reactions}
			for key, n := range counts {
				has := probe.HasReaction(emojis[key[0]], users[key[1]])
				if has != (n%2 == 1) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, len(emojis)*len(users)-1)),
	))

	properties.TestingRun(t)
}
