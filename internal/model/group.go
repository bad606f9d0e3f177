package model

import "time"

// Category classifies a group by what its members are studying for.
type Category string

const (
	CategoryJEE     Category = "jee"
	CategoryNEET    Category = "neet"
	CategoryCollege Category = "college"
	CategoryWorking Category = "working"
	CategoryOther   Category = "other"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryJEE, CategoryNEET, CategoryCollege, CategoryWorking, CategoryOther:
		return true
	}
	return false
}

// Visibility controls who can discover and join a group.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

const (
	// Capacity bounds for a group.
	MinCapacity     = 2
	MaxCapacity     = 100
	DefaultCapacity = 50

	// MaxTags is the most tags a group may carry.
	MaxTags = 10
)

// Group is a study group. CurrentMemberCount is a denormalized aggregate
// over the membership ledger; every committed membership mutation keeps it
// equal to the number of active membership rows and never above Capacity.
type Group struct {
	ID                 string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Title              string     `gorm:"not null;type:varchar(100)" json:"title"`
	Description        string     `gorm:"type:text" json:"description"`
	Category           Category   `gorm:"index;not null;type:varchar(16)" json:"category"`
	Visibility         Visibility `gorm:"index;not null;type:varchar(8);default:public" json:"visibility"`
	Capacity           int        `gorm:"not null;default:50" json:"capacity"`
	CurrentMemberCount int        `gorm:"not null;default:0" json:"current_member_count"`
	LeaderID           string     `gorm:"index;not null;type:varchar(64)" json:"leader_id"`
	GoalHours          *int       `json:"goal_hours,omitempty"`
	Tags               []string   `gorm:"serializer:json;type:text" json:"tags"`
	// JoinCode is set only for private groups: 8 uppercase alphanumerics,
	// unique across all groups that have one.
	JoinCode      string `gorm:"uniqueIndex:idx_groups_join_code,where:join_code <> '';type:varchar(8)" json:"-"`
	AvatarURL     string `json:"avatar_url"`
	CoverImageURL string `json:"cover_image_url"`
	IsActive      bool   `gorm:"index;not null;default:true" json:"is_active"`

	CreatedAt time.Time `gorm:"index;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Group) TableName() string {
	return "groups"
}

// IsPrivate reports whether joining requires the join code.
func (g *Group) IsPrivate() bool {
	return g.Visibility == VisibilityPrivate
}
