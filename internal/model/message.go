package model

import "time"

// MessageType distinguishes chat payload kinds.
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageFile   MessageType = "file"
	MessageVoice  MessageType = "voice"
	MessageVideo  MessageType = "video"
	MessageSystem MessageType = "system"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageFile, MessageVoice, MessageVideo, MessageSystem:
		return true
	}
	return false
}

const (
	// MaxContentLength bounds message content.
	MaxContentLength = 2000

	// EditWindow is how long after creation the sender may still edit.
	EditWindow = 15 * time.Minute

	// MaxPinnedPerGroup caps simultaneously pinned messages in one group.
	MaxPinnedPerGroup = 5
)

// Reaction is one emoji with the set of users who reacted with it. The user
// set is never empty: the entry is dropped when the last user toggles off.
type Reaction struct {
	Emoji   string   `json:"emoji"`
	UserIDs []string `json:"user_ids"`
}

// EditRecord archives the pre-edit content of a message.
type EditRecord struct {
	Content  string    `json:"content"`
	EditedAt time.Time `json:"edited_at"`
}

// Message is a chat message. IDs are snowflake int64s, so ID order is
// creation order and drives cursor pagination. Messages are never hard
// deleted; IsDeleted hides them from listings and freezes all mutation.
// Version backs the compare-and-swap used for single-document mutations.
type Message struct {
	ID       int64       `gorm:"primaryKey" json:"id"`
	GroupID  string      `gorm:"not null;type:varchar(64);index:idx_messages_group_created" json:"group_id"`
	SenderID string      `gorm:"index;not null;type:varchar(64)" json:"sender_id"`
	Content  string      `gorm:"not null;type:text" json:"content"`
	MsgType  MessageType `gorm:"not null;type:varchar(8);default:text" json:"message_type"`

	FileURL  string `json:"file_url,omitempty"`
	FileName string `json:"file_name,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`

	// ReplyToID references a message in the same group, or nil.
	ReplyToID *int64 `gorm:"index" json:"reply_to_id,omitempty"`

	Reactions   []Reaction   `gorm:"serializer:json;type:text" json:"reactions"`
	IsPinned    bool         `gorm:"index;not null;default:false" json:"is_pinned"`
	IsEdited    bool         `gorm:"not null;default:false" json:"is_edited"`
	EditHistory []EditRecord `gorm:"serializer:json;type:text" json:"edit_history,omitempty"`

	IsDeleted bool       `gorm:"index;not null;default:false" json:"is_deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy string     `gorm:"type:varchar(64)" json:"deleted_by,omitempty"`

	ReadBy []string `gorm:"serializer:json;type:text" json:"read_by"`

	Version int `gorm:"not null;default:0" json:"-"`

	CreatedAt time.Time `gorm:"not null;index:idx_messages_group_created" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Message) TableName() string {
	return "messages"
}

// HasReaction reports whether userID currently reacts to the message with
// emoji.
func (m *Message) HasReaction(emoji, userID string) bool {
	for _, r := range m.Reactions {
		if r.Emoji != emoji {
			continue
		}
		for _, id := range r.UserIDs {
			if id == userID {
				return true
			}
		}
	}
	return false
}

// HasRead reports whether userID is in the read set.
func (m *Message) HasRead(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}
