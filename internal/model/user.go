package model

import "time"

// User is a read-only shadow of the identity provider's record. The core
// never touches credentials; it only needs to know whether an opaque user ID
// resolves to an active account.
type User struct {
	ID        string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Username  string `gorm:"not null;type:varchar(64)" json:"username"`
	Email     string `gorm:"uniqueIndex;not null;type:varchar(255)" json:"email"`
	AvatarURL string `json:"avatar_url"`
	IsActive  bool   `gorm:"not null;default:true" json:"is_active"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (User) TableName() string {
	return "users"
}
