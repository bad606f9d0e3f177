package model

import "time"

// Role is a member's standing inside a group.
type Role string

const (
	RoleLeader Role = "leader"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// MembershipStatus tracks the lifecycle of a (group, user) pair.
type MembershipStatus string

const (
	StatusActive   MembershipStatus = "active"
	StatusInactive MembershipStatus = "inactive"
	StatusBanned   MembershipStatus = "banned"
)

// Membership is the single source of truth for "is this user in this group".
// At most one row exists per (group, user) pair; the row is reused across
// join/leave/rejoin cycles by toggling Status, and deleted outright only
// when a member leaves or is removed.
type Membership struct {
	ID       string           `gorm:"primaryKey;type:varchar(64)" json:"id"`
	GroupID  string           `gorm:"not null;type:varchar(64);uniqueIndex:idx_memberships_group_user;index" json:"group_id"`
	UserID   string           `gorm:"not null;type:varchar(64);uniqueIndex:idx_memberships_group_user;index" json:"user_id"`
	Role     Role             `gorm:"not null;type:varchar(8);default:member" json:"role"`
	Status   MembershipStatus `gorm:"index;not null;type:varchar(8);default:active" json:"status"`
	JoinedAt time.Time        `gorm:"not null" json:"joined_at"`

	LastActive time.Time `gorm:"not null" json:"last_active"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (Membership) TableName() string {
	return "memberships"
}
