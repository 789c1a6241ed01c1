package database

import "postpilot/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.PostingAccount{},
		&models.Post{},
		&models.DeliveryAttempt{},
	}
}
