package models

import (
	"time"

	"gorm.io/gorm"
)

/** --------------------ENTITIES-------------------- */

// User is an account holder. Online/offline is derived from live sessions;
// the persisted flag only mirrors the latest transition for clients that
// query over HTTP.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Username  string         `gorm:"uniqueIndex;not null" json:"username"`
	Email     string         `gorm:"uniqueIndex;not null" json:"email"`
	Password  string         `gorm:"not null" json:"-"`
	Muted     bool           `gorm:"default:false" json:"muted"`
	Online    bool           `gorm:"default:false" json:"online"`
	LastSeen  *time.Time     `json:"lastSeen,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"-"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Contact is a one-directional "added" relation; either direction is enough
// for two users to call each other.
type Contact struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index:idx_contact_pair,unique" json:"userId"`
	ContactID uint      `gorm:"not null;index:idx_contact_pair,unique" json:"contactId"`
	CreatedAt time.Time `json:"createdAt"`

	User    User `gorm:"foreignKey:UserID" json:"-"`
	Contact User `gorm:"foreignKey:ContactID" json:"-"`
}

/** -------------------- DTOs -------------------- */

// UserStatus is the presence snapshot sent in users:init and presence
// broadcasts.
type UserStatus struct {
	UserID     uint   `json:"userId"`
	Username   string `json:"username"`
	Status     string `json:"status"`
	Muted      bool   `json:"muted"`
	LastSeen   int64  `json:"lastSeen,omitempty"`
	AppVersion string `json:"appVersion,omitempty"`
}
