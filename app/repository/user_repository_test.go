package repository

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CaptionFox/app/models"
)

func TestUserRepository_ResetMonthlyUsage(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	user := createTestUser(t, db)

	lastReset := time.Date(2026, time.September, 15, 10, 0, 0, 0, time.UTC)
	user.LastUsageReset = &lastReset
	user.CurrentMonthPhotos = 12
	user.CurrentMonthCaptions = 30
	require.NoError(t, repo.Update(user))

	now := time.Date(2026, time.October, 2, 9, 0, 0, 0, time.UTC)
	monthStart := time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC)

	reset, err := repo.ResetMonthlyUsage(user.ID, monthStart, now)
	require.NoError(t, err)
	assert.True(t, reset)

	reset, err = repo.ResetMonthlyUsage(user.ID, monthStart, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, reset)

	stored, err := repo.GetByID(user.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.CurrentMonthPhotos)
	assert.Zero(t, stored.CurrentMonthCaptions)
	require.NotNil(t, stored.LastUsageReset)
	assert.True(t, stored.LastUsageReset.Equal(now))
}

func TestUserRepository_IncrementColumnConcurrent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	user := createTestUser(t, db)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.IncrementColumn(user.ID, "current_month_captions", 1))
		}()
	}
	wg.Wait()

	stored, err := repo.GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, stored.CurrentMonthCaptions)
}

func TestUserRepository_IncrementColumnRejectsUnknownColumn(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	user := createTestUser(t, db)

	err := repo.IncrementColumn(user.ID, "fair_use_violations; DROP TABLE users", 1)
	assert.Error(t, err)
}

func TestUserRepository_RecordWarning(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	user := createTestUser(t, db)
	sentAt := time.Date(2026, time.October, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.RecordWarning(user.ID, 2, sentAt, false))
	require.NoError(t, repo.RecordWarning(user.ID, 4, sentAt.Add(time.Hour), true))

	stored, err := repo.GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.UsageWarningsSent)
	assert.Equal(t, 4, stored.LastWarningLevel)
	assert.Equal(t, 1, stored.FairUseViolations)
	require.NotNil(t, stored.LastWarningSentAt)
	assert.True(t, stored.LastWarningSentAt.Equal(sentAt.Add(time.Hour)))
}

func TestSubscriptionRepository_GetActiveForUser(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubscriptionRepository(db)
	user := createTestUser(t, db)
	now := time.Now()
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	require.NoError(t, db.Create(&models.Subscription{UserID: user.ID, ProviderSubscriptionID: "sub_old", Status: models.SubscriptionStatusActive, CurrentPeriodEnd: &past}).Error)

	sub, err := repo.GetActiveForUser(user.ID, now)
	require.NoError(t, err)
	assert.Nil(t, sub)

	require.NoError(t, db.Create(&models.Subscription{UserID: user.ID, ProviderSubscriptionID: "sub_new", Status: models.SubscriptionStatusTrialing, CurrentPeriodEnd: &future}).Error)

	sub, err = repo.GetActiveForUser(user.ID, now)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, "sub_new", sub.ProviderSubscriptionID)
}
