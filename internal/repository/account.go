package repository

import (
	"context"
	"errors"
	"time"

	"postpilot/internal/models"
	"postpilot/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AccountRepository reads and writes users' posting gateway accounts.
type AccountRepository interface {
	// GetByUserID returns nil, nil when the user has no account.
	GetByUserID(ctx context.Context, userID string) (*models.PostingAccount, error)
	Upsert(ctx context.Context, account *models.PostingAccount) error
}

type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository returns a new AccountRepository implementation.
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) GetByUserID(ctx context.Context, userID string) (*models.PostingAccount, error) {
	defer observability.TrackQuery("get_by_user", "posting_accounts")()

	var account models.PostingAccount
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) Upsert(ctx context.Context, account *models.PostingAccount) error {
	if account.Connected && account.ConnectedAt == nil {
		now := time.Now().UTC()
		account.ConnectedAt = &now
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"profile_key", "connected", "connected_at", "updated_at"}),
	}).Create(account).Error
}
