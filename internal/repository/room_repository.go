package repository

import (
	"context"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"homechat/internal/models"
)

type RoomRepository interface {
	RoomsForUser(ctx context.Context, userID uint) ([]uint, error)
	MemberIDs(ctx context.Context, roomID uint) ([]uint, error)
	IsMember(ctx context.Context, roomID, userID uint) (bool, error)
	ShareRoom(ctx context.Context, userA, userB uint) (bool, error)
	Create(ctx context.Context, room *models.Room, memberIDs []uint) error
	Update(ctx context.Context, room *models.Room) error
	Delete(ctx context.Context, roomID uint) error
	SetMembers(ctx context.Context, roomID uint, memberIDs []uint) error
	GetByID(ctx context.Context, roomID uint) (*models.Room, error)
}

type roomRepository struct {
	db *gorm.DB
}

func NewRoomRepository(db *gorm.DB) RoomRepository {
	return &roomRepository{db: db}
}

func (r *roomRepository) RoomsForUser(ctx context.Context, userID uint) ([]uint, error) {
	var members []models.RoomMember
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return lo.Map(members, func(m models.RoomMember, _ int) uint { return m.RoomID }), nil
}

func (r *roomRepository) MemberIDs(ctx context.Context, roomID uint) ([]uint, error) {
	var members []models.RoomMember
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return lo.Map(members, func(m models.RoomMember, _ int) uint { return m.UserID }), nil
}

func (r *roomRepository) IsMember(ctx context.Context, roomID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.RoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&count).Error
	return count > 0, err
}

// ShareRoom reports whether two users are members of at least one common room.
func (r *roomRepository) ShareRoom(ctx context.Context, userA, userB uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.RoomMember{}).
		Where("user_id = ? AND room_id IN (?)", userA,
			r.db.Model(&models.RoomMember{}).Select("room_id").Where("user_id = ?", userB)).
		Count(&count).Error
	return count > 0, err
}

func (r *roomRepository) Create(ctx context.Context, room *models.Room, memberIDs []uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			return err
		}
		ids := lo.Uniq(append(memberIDs, room.OwnerID))
		members := lo.Map(ids, func(id uint, _ int) models.RoomMember {
			return models.RoomMember{RoomID: room.ID, UserID: id}
		})
		return tx.Create(&members).Error
	})
}

func (r *roomRepository) Update(ctx context.Context, room *models.Room) error {
	return r.db.WithContext(ctx).Save(room).Error
}

func (r *roomRepository) Delete(ctx context.Context, roomID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", roomID).Delete(&models.RoomMember{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Room{}, roomID).Error
	})
}

func (r *roomRepository) SetMembers(ctx context.Context, roomID uint, memberIDs []uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", roomID).Delete(&models.RoomMember{}).Error; err != nil {
			return err
		}
		if len(memberIDs) == 0 {
			return nil
		}
		members := lo.Map(lo.Uniq(memberIDs), func(id uint, _ int) models.RoomMember {
			return models.RoomMember{RoomID: roomID, UserID: id}
		})
		return tx.Create(&members).Error
	})
}

func (r *roomRepository) GetByID(ctx context.Context, roomID uint) (*models.Room, error) {
	var room models.Room
	err := r.db.WithContext(ctx).Preload("Members").First(&room, roomID).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}
