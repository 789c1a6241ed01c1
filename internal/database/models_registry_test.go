package database

import (
	"testing"

	modelspkg "postpilot/internal/models"

	"github.com/stretchr/testify/require"
)

func TestPersistentModels_IncludesDispatchTables(t *testing.T) {
	var hasPost, hasAccount, hasAttempt bool
	for _, model := range PersistentModels() {
		switch model.(type) {
		case *modelspkg.Post:
			hasPost = true
		case *modelspkg.PostingAccount:
			hasAccount = true
		case *modelspkg.DeliveryAttempt:
			hasAttempt = true
		}
	}
	require.True(t, hasPost, "PersistentModels should include Post")
	require.True(t, hasAccount, "PersistentModels should include PostingAccount")
	require.True(t, hasAttempt, "PersistentModels should include DeliveryAttempt")
}
