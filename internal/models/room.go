package models

import (
	"time"

	"gorm.io/gorm"
)

/** --------------------ENTITIES-------------------- */

// Room is a persisted conversation: a group, a one-to-one chat, or the
// default open lobby every user belongs to.
type Room struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"not null" json:"name"`
	Kind      string         `gorm:"not null;default:group" json:"kind"` // group || direct || lobby
	OwnerID   uint           `json:"ownerId"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Members []RoomMember `gorm:"foreignKey:RoomID" json:"members,omitempty"`
}

// RoomMember is the persisted many-to-many user<->room relation. A session
// unsubscribing from a room's broadcast group does not touch this table.
type RoomMember struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	RoomID   uint      `gorm:"not null;index:idx_room_member,unique" json:"roomId"`
	UserID   uint      `gorm:"not null;index:idx_room_member,unique" json:"userId"`
	JoinedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"joinedAt"`

	Room Room `gorm:"foreignKey:RoomID" json:"-"`
	User User `gorm:"foreignKey:UserID" json:"-"`
}

/** -------------------- DTOs -------------------- */

type CreateRoomRequest struct {
	Name      string `json:"name" binding:"required"`
	Kind      string `json:"kind" binding:"omitempty,oneof=group direct lobby"`
	MemberIDs []uint `json:"memberIds"`
}

type UpdateRoomRequest struct {
	Name      string `json:"name"`
	MemberIDs []uint `json:"memberIds"`
}
