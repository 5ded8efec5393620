package usage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CaptionFox/app/models"
	"github.com/ManuelReschke/CaptionFox/app/repository"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/database"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/usercontext"
)

type sentMail struct {
	Template string
	UserID   uint
	Data     map[string]interface{}
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeMailer) Send(_ context.Context, template string, user *models.User, data map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{Template: template, UserID: user.ID, Data: data})
	return nil
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	db     *gorm.DB
	repos  *repository.Repositories
	clock  *clock
	mailer *fakeMailer
	ledger *Ledger
	mon    *Monitor
}

func newFixture(t *testing.T, policy Policy) *fixture {
	t.Helper()
	db, err := database.OpenTestDB()
	require.NoError(t, err)

	repos := repository.NewRepositories(db)
	clk := &clock{now: time.Date(2026, time.October, 19, 12, 0, 0, 0, time.UTC)}
	mailer := &fakeMailer{}
	ledger := NewLedger(repos.User, repos.Photo, repos.Caption, policy).WithClock(clk.Now)

	return &fixture{
		db:     db,
		repos:  repos,
		clock:  clk,
		mailer: mailer,
		ledger: ledger,
		mon:    NewMonitor(ledger, repos.User, mailer),
	}
}

// createUser stores a user whose monthly counters were reset at the start of the current month.
func (f *fixture) createUser(t *testing.T, tier entitlements.AccessTier, monthPhotos int) (*models.User, usercontext.UserContext) {
	t.Helper()
	reset := monthStart(f.clock.Now())
	legacy := models.TierStarter
	status := models.TierStatusTrial
	if tier.IsProLevel() {
		legacy = string(tier)
		status = models.TierStatusActive
	}
	user := &models.User{
		Email:               "coach@example.com",
		SubscriptionTier:    legacy,
		SubscriptionStatus:  status,
		CurrentMonthPhotos:  monthPhotos,
		MonthlyPhotoLimit:   models.DefaultMonthlyPhotoLimit,
		MonthlyCaptionLimit: models.DefaultMonthlyCaptionLimit,
		LastUsageReset:      &reset,
	}
	require.NoError(t, f.repos.User.Create(user))
	return user, usercontext.UserContext{UserID: user.ID, Email: user.Email, IsLoggedIn: true, Tier: tier}
}

func (f *fixture) reload(t *testing.T, id uint) *models.User {
	t.Helper()
	user, err := f.repos.User.GetByID(id)
	require.NoError(t, err)
	return user
}

func (f *fixture) setMonthPhotos(t *testing.T, id uint, n int) {
	t.Helper()
	require.NoError(t, f.db.Model(&models.User{}).Where("id = ?", id).Update("current_month_photos", n).Error)
}
