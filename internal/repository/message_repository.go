package repository

import (
	"context"
	"errors"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"homechat/internal/models"
)

type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	Delete(ctx context.Context, roomID uint, messageID string) error
	GetByID(ctx context.Context, messageID string) (*models.Message, error)
	MarkRead(ctx context.Context, userID uint, messageIDs []string) error
	UnreadCount(ctx context.Context, roomID, userID uint) (int64, error)
	ToggleReaction(ctx context.Context, messageID string, userID uint, emoji string) (models.ReactionOutcome, error)
}

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, msg *models.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *messageRepository) Delete(ctx context.Context, roomID uint, messageID string) error {
	res := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Delete(&models.Message{ID: messageID})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *messageRepository) GetByID(ctx context.Context, messageID string) (*models.Message, error) {
	var msg models.Message
	err := r.db.WithContext(ctx).
		Preload("ReadBy").
		Preload("Reactions").
		First(&msg, "id = ?", messageID).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkRead inserts read records for the given messages, skipping ones the
// user already read so bulk-read is idempotent.
func (r *messageRepository) MarkRead(ctx context.Context, userID uint, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []models.MessageRead
		if err := tx.Where("user_id = ? AND message_id IN ?", userID, messageIDs).
			Find(&existing).Error; err != nil {
			return err
		}
		seen := lo.SliceToMap(existing, func(mr models.MessageRead) (string, bool) {
			return mr.MessageID, true
		})
		fresh := lo.FilterMap(messageIDs, func(id string, _ int) (models.MessageRead, bool) {
			if seen[id] {
				return models.MessageRead{}, false
			}
			return models.MessageRead{MessageID: id, UserID: userID}, true
		})
		if len(fresh) == 0 {
			return nil
		}
		return tx.Create(&fresh).Error
	})
}

// UnreadCount is the number of the room's messages not sent by the user and
// not yet read by them. Computed on demand, never cached.
func (r *messageRepository) UnreadCount(ctx context.Context, roomID, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("room_id = ? AND sender_id <> ?", roomID, userID).
		Where("id NOT IN (?)",
			r.db.Model(&models.MessageRead{}).Select("message_id").Where("user_id = ?", userID)).
		Count(&count).Error
	return count, err
}

// ToggleReaction enforces one reaction per user per message: same emoji
// removes it, a different emoji replaces it, none adds it.
func (r *messageRepository) ToggleReaction(ctx context.Context, messageID string, userID uint, emoji string) (models.ReactionOutcome, error) {
	var outcome models.ReactionOutcome
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Reaction
		err := tx.Where("message_id = ? AND user_id = ?", messageID, userID).
			First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			outcome = models.ReactionAdded
			return tx.Create(&models.Reaction{
				MessageID: messageID,
				UserID:    userID,
				Emoji:     emoji,
			}).Error
		case err != nil:
			return err
		case existing.Emoji == emoji:
			outcome = models.ReactionRemoved
			return tx.Delete(&existing).Error
		default:
			outcome = models.ReactionReplaced
			return tx.Model(&existing).Update("emoji", emoji).Error
		}
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}
