package usage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CaptionFox/app/models"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/CaptionFox/internal/pkg/mail"
)

func TestLevelForPercentage(t *testing.T) {
	tests := []struct {
		pct  int
		want WarningLevel
	}{
		{0, WarningNone},
		{79, WarningNone},
		{80, WarningGentle},
		{94, WarningGentle},
		{95, WarningApproaching},
		{99, WarningApproaching},
		{100, WarningExceeded},
		{109, WarningExceeded},
		{110, WarningHardLimit},
		{150, WarningHardLimit},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelForPercentage(tt.pct), "pct=%d", tt.pct)
	}
}

func TestMonitor_ApproachingWarningSentOnce(t *testing.T) {
	f := newFixture(t, PolicyMonthlyCounter)
	user, uc := f.createUser(t, entitlements.TierPro, 238) // 95%

	level, sent, err := f.mon.CheckMonthlyUsageAndWarn(context.Background(), uc)
	require.NoError(t, err)
	assert.Equal(t, WarningApproaching, level)
	assert.True(t, sent)
	require.Equal(t, 1, f.mailer.count())
	assert.Equal(t, mail.TemplateApproachingLimit, f.mailer.sent[0].Template)

	stored := f.reload(t, user.ID)
	assert.Equal(t, 1, stored.UsageWarningsSent)
	assert.Equal(t, int(WarningApproaching), stored.LastWarningLevel)

	f.clock.Advance(time.Hour)
	level, sent, err = f.mon.CheckMonthlyUsageAndWarn(context.Background(), uc)
	require.NoError(t, err)
	assert.Equal(t, WarningNone, level)
	assert.False(t, sent)
	assert.Equal(t, 1, f.mailer.count())
}

func TestMonitor_WarningEscalates(t *testing.T) {
	f := newFixture(t, PolicyMonthlyCounter)
	user, uc := f.createUser(t, entitlements.TierPro, 200) // 80%

	_, sent, err := f.mon.CheckMonthlyUsageAndWarn(context.Background(), uc)
	require.NoError(t, err)
	assert.True(t, sent)

	f.clock.Advance(time.Hour)
	f.setMonthPhotos(t, user.ID, 250)
	level, sent, err := f.mon.CheckMonthlyUsageAndWarn(context.Background(), uc)
	require.NoError(t, err)
	assert.Equal(t, WarningExceeded, level)
	assert.True(t, sent, "a higher band is sent even inside the cooldown")

	require.Equal(t, 2, f.mailer.count())
	assert.Equal(t, mail.TemplateGentleWarning, f.mailer.sent[0].Template)
	assert.Equal(t, mail.TemplateLimitExceeded, f.mailer.sent[1].Template)
	assert.Equal(t, 2, f.reload(t, user.ID).UsageWarningsSent)
}

func TestMonitor_HardLimitRecordsViolation(t *testing.T) {
	f := newFixture(t, PolicyMonthlyCounter)
	user, uc := f.createUser(t, entitlements.TierPro, 275) // 110%

	level, sent, err := f.mon.CheckMonthlyUsageAndWarn(context.Background(), uc)
	require.NoError(t, err)
	assert.Equal(t, WarningHardLimit, level)
	assert.True(t, sent)
	assert.Equal(t, 1, f.reload(t, user.ID).FairUseViolations)

	d, err := f.mon.CanUploadPhoto(uc)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonHardLimit, d.Reason)
	assert.Contains(t, d.Message, "maximum usage limit")
}

func TestMonitor_MailFailureDoesNotFailAccounting(t *testing.T) {
	f := newFixture(t, PolicyMonthlyCounter)
	f.mailer.err = errors.New("smtp down")
	user, uc := f.createUser(t, entitlements.TierPro, 200)

	level, sent, err := f.mon.CheckMonthlyUsageAndWarn(context.Background(), uc)
	require.NoError(t, err)
	assert.Equal(t, WarningGentle, level)
	assert.True(t, sent)
	assert.Equal(t, 1, f.reload(t, user.ID).UsageWarningsSent)
}

func TestMonitor_StarterNeverWarned(t *testing.T) {
	f := newFixture(t, PolicyMonthlyCounter)
	_, uc := f.createUser(t, entitlements.TierStarter, 8)

	level, sent, err := f.mon.CheckMonthlyUsageAndWarn(context.Background(), uc)
	require.NoError(t, err)
	assert.Equal(t, WarningNone, level)
	assert.False(t, sent)
	assert.Zero(t, f.mailer.count())
}

func TestMonitor_GracePeriodAllowsUpload(t *testing.T) {
	f := newFixture(t, PolicyMonthlyCounter)
	_, uc := f.createUser(t, entitlements.TierPro, 260) // 104%

	d, err := f.mon.CanUploadPhoto(uc)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Contains(t, d.Warning, "grace period")
}

func TestMonitor_DailyLimit(t *testing.T) {
	f := newFixture(t, PolicyMonthlyCounter)
	user, uc := f.createUser(t, entitlements.TierPro, 0)

	for i := 0; i < entitlements.ProDailyPhotoLimit; i++ {
		d, err := f.mon.CanUploadPhoto(uc)
		require.NoError(t, err)
		require.True(t, d.Allowed, "upload %d", i+1)
		require.NoError(t, f.mon.IncrementDailyUsage(uc))
	}

	d, err := f.mon.CanUploadPhoto(uc)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonDailyLimit, d.Reason)

	f.clock.Advance(24 * time.Hour)
	d, err = f.mon.CanUploadPhoto(uc)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Zero(t, f.reload(t, user.ID).DailyPhotosUploaded)
}

func TestMonitor_StarterUpgradeRequired(t *testing.T) {
	f := newFixture(t, PolicyMonthlyCounter)
	_, uc := f.createUser(t, entitlements.TierStarter, models.DefaultMonthlyPhotoLimit)

	d, err := f.mon.CanUploadPhoto(uc)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonUpgradeRequired, d.Reason)

	// Starter users are never daily-gated.
	require.NoError(t, f.mon.IncrementDailyUsage(uc))
	ok, err := f.mon.CheckDailyLimitBeforeUpload(uc)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestShouldSendWarning(t *testing.T) {
	now := time.Date(2026, time.October, 19, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time { t := now.Add(-d); return &t }

	tests := []struct {
		name  string
		user  *models.User
		level WarningLevel
		want  bool
	}{
		{"none never sent", &models.User{}, WarningNone, false},
		{"first warning", &models.User{}, WarningGentle, true},
		{"same band this month", &models.User{LastWarningSentAt: at(10 * 24 * time.Hour), LastWarningLevel: int(WarningGentle)}, WarningGentle, false},
		{"higher band this month", &models.User{LastWarningSentAt: at(time.Hour), LastWarningLevel: int(WarningGentle)}, WarningApproaching, true},
		{"lower band this month", &models.User{LastWarningSentAt: at(time.Hour), LastWarningLevel: int(WarningExceeded)}, WarningGentle, false},
		{"previous month outside cooldown", &models.User{LastWarningSentAt: at(25 * 24 * time.Hour), LastWarningLevel: int(WarningExceeded)}, WarningGentle, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldSendWarning(tt.user, tt.level, now))
		})
	}

	// Sent on the last day of last month, checked on the first of this month.
	first := time.Date(2026, time.November, 1, 9, 0, 0, 0, time.UTC)
	sentAt := time.Date(2026, time.October, 31, 20, 0, 0, 0, time.UTC)
	u := &models.User{LastWarningSentAt: &sentAt, LastWarningLevel: int(WarningApproaching)}
	assert.False(t, ShouldSendWarning(u, WarningApproaching, first), "cooldown spans the month rollover")
	assert.True(t, ShouldSendWarning(u, WarningExceeded, first))
}

func TestDaysUntilReset(t *testing.T) {
	assert.Equal(t, 13, daysUntilReset(time.Date(2026, time.October, 19, 23, 0, 0, 0, time.UTC)))
	assert.Equal(t, 1, daysUntilReset(time.Date(2026, time.February, 28, 1, 0, 0, 0, time.UTC)))
}
