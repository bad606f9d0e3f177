// Package events publishes the state transitions of groups, memberships and
// messages. A realtime layer consumes these to broadcast changes; the core
// itself never blocks on delivery.
package events

import "time"

type Type string

const (
	GroupCreated Type = "group.created"
	GroupUpdated Type = "group.updated"
	GroupDeleted Type = "group.deleted"

	MemberJoined      Type = "member.joined"
	MemberLeft        Type = "member.left"
	MemberRemoved     Type = "member.removed"
	MemberBanned      Type = "member.banned"
	MemberRoleChanged Type = "member.role_changed"

	MessageSent      Type = "message.sent"
	MessageEdited    Type = "message.edited"
	MessageDeleted   Type = "message.deleted"
	MessagePinToggle Type = "message.pin_toggled"
	ReactionToggled  Type = "message.reaction_toggled"
)

// Event is the wire payload. GroupID keys the Kafka partition so one
// group's transitions stay ordered.
type Event struct {
	Type      Type      `json:"type"`
	GroupID   string    `json:"group_id"`
	ActorID   string    `json:"actor_id,omitempty"`
	TargetID  string    `json:"target_id,omitempty"`
	MessageID int64     `json:"message_id,omitempty"`
	At        time.Time `json:"at"`
}
