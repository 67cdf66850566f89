package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"homechat/internal/models"
)

type PresenceRepository interface {
	SetOnline(ctx context.Context, userID uint, clientType, appVersion string) error
	SetOffline(ctx context.Context, userID uint) error
	GetStatus(ctx context.Context, userID uint) (*models.UserStatus, error)
	GetStatuses(ctx context.Context, userIDs []uint) ([]models.UserStatus, error)
}

// presenceRepository keeps the derived online/last-seen state in redis and
// mirrors transitions into the users table. Redis data is rebuildable cache:
// a restart loses nothing but live presence.
type presenceRepository struct {
	client *redis.Client
	db     *gorm.DB
}

func NewPresenceRepository(client *redis.Client, db *gorm.DB) PresenceRepository {
	return &presenceRepository{client: client, db: db}
}

func statusKey(userID uint) string {
	return fmt.Sprintf("presence:%d", userID)
}

func (r *presenceRepository) SetOnline(ctx context.Context, userID uint, clientType, appVersion string) error {
	now := time.Now()

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, statusKey(userID), map[string]interface{}{
		"status":      "online",
		"last_seen":   now.Unix(),
		"client_type": clientType,
		"app_version": appVersion,
	})
	pipe.Expire(ctx, statusKey(userID), 24*time.Hour)
	pipe.SAdd(ctx, "online_users", strconv.Itoa(int(userID)))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set user online: %w", err)
	}

	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{"online": true, "last_seen": now}).Error
}

func (r *presenceRepository) SetOffline(ctx context.Context, userID uint) error {
	now := time.Now()

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, statusKey(userID), map[string]interface{}{
		"status":    "offline",
		"last_seen": now.Unix(),
	})
	pipe.Expire(ctx, statusKey(userID), 24*time.Hour)
	pipe.SRem(ctx, "online_users", strconv.Itoa(int(userID)))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set user offline: %w", err)
	}

	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{"online": false, "last_seen": now}).Error
}

func (r *presenceRepository) GetStatus(ctx context.Context, userID uint) (*models.UserStatus, error) {
	fields, err := r.client.HGetAll(ctx, statusKey(userID)).Result()
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := r.db.WithContext(ctx).Select("id", "username", "muted").
		First(&user, userID).Error; err != nil {
		return nil, err
	}

	status := &models.UserStatus{
		UserID:     userID,
		Username:   user.Username,
		Status:     "offline",
		Muted:      user.Muted,
		AppVersion: fields["app_version"],
	}
	if s, ok := fields["status"]; ok && s != "" {
		status.Status = s
	}
	if ls, ok := fields["last_seen"]; ok {
		if ts, err := strconv.ParseInt(ls, 10, 64); err == nil {
			status.LastSeen = ts
		}
	}
	return status, nil
}

func (r *presenceRepository) GetStatuses(ctx context.Context, userIDs []uint) ([]models.UserStatus, error) {
	statuses := make([]models.UserStatus, 0, len(userIDs))
	for _, id := range userIDs {
		status, err := r.GetStatus(ctx, id)
		if err != nil {
			continue
		}
		statuses = append(statuses, *status)
	}
	return statuses, nil
}
