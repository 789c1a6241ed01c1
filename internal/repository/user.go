package repository

import (
	"context"
	"errors"

	"postpilot/internal/cache"
	"postpilot/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	IsAdmin(ctx context.Context, id string) (bool, error)
	Upsert(ctx context.Context, user *models.User) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("User", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

// IsAdmin reports the admin capability, cached in Redis for a few minutes.
// Unknown users are not admins.
func (r *userRepository) IsAdmin(ctx context.Context, id string) (bool, error) {
	var isAdmin bool
	err := cache.Aside(ctx, cache.AdminKey(id), &isAdmin, cache.AdminTTL, func() error {
		var user models.User
		err := r.db.WithContext(ctx).Select("id", "is_admin").Where("id = ?", id).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			isAdmin = false
			return nil
		}
		if err != nil {
			return err
		}
		isAdmin = user.IsAdmin
		return nil
	})
	if err != nil {
		return false, err
	}
	return isAdmin, nil
}

func (r *userRepository) Upsert(ctx context.Context, user *models.User) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "is_admin", "updated_at"}),
	}).Create(user).Error
	if err == nil {
		cache.InvalidateAdmin(ctx, user.ID)
	}
	return err
}
