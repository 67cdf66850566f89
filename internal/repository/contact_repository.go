package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"homechat/internal/models"
)

type ContactRepository interface {
	AddContact(ctx context.Context, userID, contactID uint) error
	RemoveContact(ctx context.Context, userID, contactID uint) error
	IsContact(ctx context.Context, userA, userB uint) (bool, error)
}

type contactRepository struct {
	db *gorm.DB
}

func NewContactRepository(db *gorm.DB) ContactRepository {
	return &contactRepository{db: db}
}

func (r *contactRepository) AddContact(ctx context.Context, userID, contactID uint) error {
	if userID == contactID {
		return errors.New("cannot add self as a contact")
	}
	if ok, _ := r.IsContact(ctx, userID, contactID); ok {
		return errors.New("already a contact")
	}
	return r.db.WithContext(ctx).Create(&models.Contact{
		UserID:    userID,
		ContactID: contactID,
	}).Error
}

func (r *contactRepository) RemoveContact(ctx context.Context, userID, contactID uint) error {
	return r.db.WithContext(ctx).
		Where("(user_id = ? AND contact_id = ?) OR (user_id = ? AND contact_id = ?)",
			userID, contactID, contactID, userID).
		Delete(&models.Contact{}).Error
}

// IsContact is true if either user added the other.
func (r *contactRepository) IsContact(ctx context.Context, userA, userB uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Contact{}).
		Where("(user_id = ? AND contact_id = ?) OR (user_id = ? AND contact_id = ?)",
			userA, userB, userB, userA).
		Count(&count).Error
	return count > 0, err
}
