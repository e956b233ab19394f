package notification

import (
	"context"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/edefter-tracker/internal/application/tracking"
	"github.com/turtacn/edefter-tracker/internal/config"
	"github.com/turtacn/edefter-tracker/internal/domain/company"
	"github.com/turtacn/edefter-tracker/internal/domain/deadline"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/messaging/smtp"
	"github.com/turtacn/edefter-tracker/internal/testutil"
	"github.com/turtacn/edefter-tracker/pkg/errors"
)

// On 2025-06-09 Anadolu (corporate, Feb due 2025-06-16) has 7 days left and
// Çınar (income tax, Feb due 2025-06-10) has 1.
var alertMorning = time.Date(2025, time.June, 9, 6, 0, 0, 0, time.UTC)

type fakeMailer struct {
	mu   sync.Mutex
	sent []smtp.Mail
	err  error
}

func (m *fakeMailer) Send(_ context.Context, mail smtp.Mail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, mail)
	return nil
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type fakePublisher struct {
	alerts []kafka.DeadlineAlertPayload
	err    error
}

func (p *fakePublisher) PublishDeadlineAlerts(_ context.Context, alerts []kafka.DeadlineAlertPayload) (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	p.alerts = append(p.alerts, alerts...)
	return len(alerts), nil
}

type fakeLocker struct {
	held     bool
	released bool
}

func (l *fakeLocker) TryLock(context.Context, string, time.Duration) (func(context.Context) error, bool, error) {
	if l.held {
		return nil, false, nil
	}
	return func(context.Context) error { l.released = true; return nil }, true, nil
}

type harness struct {
	mailer *fakeMailer
	sent   *testutil.MemorySentAlerts
	logger *testutil.MockLogger
	svc    tracking.Service
}

func newHarness(t *testing.T, ref time.Time) *harness {
	t.Helper()
	anadolu, err := company.NewCompany("Anadolu Gıda", "1111111111", deadline.RegimeCorporateTax, deadline.CadenceMonthly)
	require.NoError(t, err)
	cinar, err := company.NewCompany("Çınar Eczanesi", "10000000146", deadline.RegimeIncomeTax, deadline.CadenceMonthly)
	require.NoError(t, err)
	isik, err := company.NewCompany("Işık Tekstil", "3333333333", deadline.RegimeCorporateTax, deadline.CadenceMonthly)
	require.NoError(t, err)

	uploads := testutil.NewMemoryUploadRepo()
	uploads.AddFiled("1111111111", deadline.Period{Year: 2025, Month: 1})
	uploads.AddFiled("10000000146", deadline.Period{Year: 2025, Month: 1})
	uploads.AddFiled("3333333333", deadline.Period{Year: 2025, Month: 1}, deadline.Period{Year: 2025, Month: 2})

	log := testutil.NewMockLogger()
	svc := tracking.NewService(deadline.NewEngine(), testutil.NewMemoryCompanyRepo(anadolu, cinar, isik), uploads, log,
		tracking.WithClock(func() time.Time { return ref }), tracking.WithLocation(time.UTC))

	return &harness{mailer: &fakeMailer{}, sent: testutil.NewMemorySentAlerts(), logger: log, svc: svc}
}

func (h *harness) scheduler(opts ...Option) *Scheduler {
	cfg := Config{
		AlertTimes: []config.ClockTime{{Hour: 6}, {Hour: 18}},
		Thresholds: []int{7, 3, 1, 0},
		Recipients: []string{"muhasebe@example.com"},
		Location:   time.UTC,
	}
	return NewScheduler(cfg, h.svc, h.mailer, h.sent, h.logger, opts...)
}

func TestCheck_SendsOneDigestWithSectionPerThreshold(t *testing.T) {
	h := newHarness(t, alertMorning)
	ctx := context.Background()

	res, err := h.scheduler().Check(ctx, alertMorning)
	require.NoError(t, err)

	assert.Equal(t, StatusSent, res.Status)
	assert.Equal(t, "2025-06-09", res.Date)
	assert.Equal(t, map[int]int{7: 1, 1: 1}, res.Matched)
	require.Len(t, res.Digest.Sections, 2)
	assert.Equal(t, 7, res.Digest.Sections[0].Threshold)
	assert.Equal(t, "Anadolu Gıda", res.Digest.Sections[0].Rows[0].CompanyName)
	assert.Equal(t, 1, res.Digest.Sections[1].Threshold)
	assert.Equal(t, "Çınar Eczanesi", res.Digest.Sections[1].Rows[0].CompanyName)

	require.Equal(t, 1, h.mailer.count())
	mail := h.mailer.sent[0]
	assert.Equal(t, []string{"muhasebe@example.com"}, mail.To)
	assert.Equal(t, config.DefaultNotificationSubject, mail.Subject)
	assert.Contains(t, mail.HTMLBody, "Son güne 7 gün kaldı")
	assert.Contains(t, mail.HTMLBody, "Yarın son gün")
	assert.Contains(t, mail.HTMLBody, "16.06.2025")
	assert.NotContains(t, mail.HTMLBody, "Işık Tekstil")

	for _, th := range []int{7, 1} {
		was, err := h.sent.WasSent(ctx, deadline.Date{Year: 2025, Month: time.June, Day: 9}, th)
		require.NoError(t, err)
		assert.True(t, was, "threshold %d", th)
	}
}

func TestCheck_UsesReferenceTimeNotTrackingClock(t *testing.T) {
	h := newHarness(t, time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC))

	res, err := h.scheduler().Check(context.Background(), alertMorning)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, res.Status)
	assert.Equal(t, "2025-06-09", res.Date)
	assert.Equal(t, map[int]int{7: 1, 1: 1}, res.Matched)

	prev, err := h.scheduler().Preview(context.Background(), alertMorning)
	require.NoError(t, err)
	assert.Equal(t, map[int]int{7: 1, 1: 1}, prev.Matched)
}

func TestCheck_WithoutSentRegistry(t *testing.T) {
	h := newHarness(t, alertMorning)
	cfg := Config{
		AlertTimes: []config.ClockTime{{Hour: 6}},
		Thresholds: []int{7, 1},
		Recipients: []string{"muhasebe@example.com"},
		Location:   time.UTC,
	}
	s := NewScheduler(cfg, h.svc, h.mailer, nil, h.logger)

	res, err := s.Check(context.Background(), alertMorning)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, res.Status)
	assert.Equal(t, 1, h.mailer.count())
	assert.Equal(t, 0, h.logger.Count("error"))
}

func TestCheck_SameDayIsNotRepeated(t *testing.T) {
	h := newHarness(t, alertMorning)
	s := h.scheduler()
	ctx := context.Background()

	_, err := s.Check(ctx, alertMorning)
	require.NoError(t, err)

	evening := alertMorning.Add(12 * time.Hour)
	res, err := s.Check(ctx, evening)
	require.NoError(t, err)

	assert.Equal(t, StatusEmpty, res.Status)
	assert.Equal(t, []int{7, 1}, res.AlreadySent)
	assert.Equal(t, 1, h.mailer.count())
}

func TestCheck_NothingMatched(t *testing.T) {
	ref := time.Date(2025, time.June, 11, 6, 0, 0, 0, time.UTC)
	h := newHarness(t, ref)

	res, err := h.scheduler().Check(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, StatusEmpty, res.Status)
	assert.Nil(t, res.Digest)
	assert.Equal(t, 0, h.mailer.count())
}

func TestCheck_DeliveryFailureRecordsNothing(t *testing.T) {
	h := newHarness(t, alertMorning)
	h.mailer.err = errors.New(errors.ErrCodeNotificationDeliveryFailed, "smtp down")

	_, err := h.scheduler().Check(context.Background(), alertMorning)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotificationDeliveryFailed))

	was, err := h.sent.WasSent(context.Background(), deadline.Date{Year: 2025, Month: time.June, Day: 9}, 7)
	require.NoError(t, err)
	assert.False(t, was)
}

func TestCheck_NoMailerConfigured(t *testing.T) {
	h := newHarness(t, alertMorning)
	s := NewScheduler(Config{Location: time.UTC}, h.svc, nil, h.sent, nil)

	_, err := s.Check(context.Background(), alertMorning)
	assert.True(t, errors.IsCode(err, errors.ErrCodeFeatureDisabled))
}

func TestReconfigure_AppliesToNextCheck(t *testing.T) {
	h := newHarness(t, alertMorning)
	s := h.scheduler()

	s.Reconfigure(Config{
		AlertTimes: []config.ClockTime{{Hour: 9}},
		Thresholds: []int{1},
		Recipients: []string{"ofis@example.com"},
	})

	res, err := s.Check(context.Background(), alertMorning)
	require.NoError(t, err)
	require.Len(t, res.Digest.Sections, 1)
	assert.Equal(t, 1, res.Digest.Sections[0].Threshold)
	require.Equal(t, 1, h.mailer.count())
	assert.Equal(t, []string{"ofis@example.com"}, h.mailer.sent[0].To)
	assert.Equal(t, config.DefaultNotificationSubject, h.mailer.sent[0].Subject)

	assert.False(t, s.due(alertMorning))
	assert.True(t, s.due(alertMorning.Add(3*time.Hour)))
}

func TestCheck_PublishesOneEventPerCompany(t *testing.T) {
	h := newHarness(t, alertMorning)
	pub := &fakePublisher{}

	res, err := h.scheduler(WithPublisher(pub)).Check(context.Background(), alertMorning)
	require.NoError(t, err)

	assert.Equal(t, 2, res.EventsPublished)
	require.Len(t, pub.alerts, 2)
	first := pub.alerts[0]
	assert.Equal(t, "1111111111", first.CompanyKey)
	assert.Equal(t, 7, first.Threshold)
	assert.Equal(t, "2025-06-16", first.DeadlineDate)
	assert.Equal(t, "2025-02", first.Period)
	assert.Equal(t, "2025-06-09", first.AlertDate)
	assert.Equal(t, string(deadline.RegimeIncomeTax), pub.alerts[1].Regime)
}

func TestCheck_PublishFailureDoesNotFailDigest(t *testing.T) {
	h := newHarness(t, alertMorning)
	pub := &fakePublisher{err: errors.New(errors.ErrCodeEventPublishFailed, "broker down")}

	res, err := h.scheduler(WithPublisher(pub)).Check(context.Background(), alertMorning)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, res.Status)
	assert.Equal(t, 1, h.logger.Count("warn"))
}

func TestCheck_LockHeldElsewhere(t *testing.T) {
	h := newHarness(t, alertMorning)

	res, err := h.scheduler(WithLocker(&fakeLocker{held: true})).Check(context.Background(), alertMorning)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Equal(t, 0, h.mailer.count())

	lock := &fakeLocker{}
	_, err = h.scheduler(WithLocker(lock)).Check(context.Background(), alertMorning)
	require.NoError(t, err)
	assert.True(t, lock.released)
	assert.Equal(t, 1, h.mailer.count())
}

func TestPreview_DoesNotSendOrRecord(t *testing.T) {
	h := newHarness(t, alertMorning)

	res, err := h.scheduler().Preview(context.Background(), alertMorning)
	require.NoError(t, err)
	assert.Equal(t, StatusPreview, res.Status)
	assert.Contains(t, res.HTML, "Anadolu Gıda")
	assert.Equal(t, 0, h.mailer.count())

	was, err := h.sent.WasSent(context.Background(), deadline.Date{Year: 2025, Month: time.June, Day: 9}, 7)
	require.NoError(t, err)
	assert.False(t, was)
}

func TestRun_FiresOncePerAlertMinute(t *testing.T) {
	h := newHarness(t, alertMorning)
	s := h.scheduler(
		WithClock(func() time.Time { return alertMorning.Add(30 * time.Second) }),
		WithTickInterval(5*time.Millisecond),
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return h.mailer.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, h.mailer.count())

	cancel()
	require.NoError(t, <-done)
}

func TestRun_IgnoresOtherMinutes(t *testing.T) {
	h := newHarness(t, alertMorning)
	s := h.scheduler(
		WithClock(func() time.Time { return alertMorning.Add(-time.Minute) }),
		WithTickInterval(5*time.Millisecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))
	assert.Equal(t, 0, h.mailer.count())
}

func TestRenderDigest_EscapesNames(t *testing.T) {
	d := &Digest{
		Date: alertMorning,
		Sections: []Section{{Threshold: 0, Rows: []tracking.Row{{
			CompanyName: "<b>Kötü</b> Ltd",
			Regime:      deadline.RegimeCorporateTax,
			PeriodLabel: "2025-Q1",
			Result: deadline.Result{
				CompanyKey:   "1111111111",
				Cadence:      deadline.CadenceQuarterly,
				DeadlineDate: time.Date(2025, 7, 14, 0, 0, 0, 0, time.UTC),
				Status:       deadline.StatusDueSoon,
			},
		}}}},
	}
	html, err := RenderDigest(d)
	require.NoError(t, err)
	assert.Contains(t, html, "&lt;b&gt;Kötü&lt;/b&gt; Ltd")
	assert.Contains(t, html, "Bugün son gün")
	assert.Contains(t, html, "Kurumlar Vergisi / 3 Aylık")
	assert.Contains(t, html, "Yaklaşıyor")
	assert.Contains(t, html, "#ef6c00")
	assert.Equal(t, 1, d.Total())
}

func TestConfigFrom(t *testing.T) {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Notification.Recipients = []string{"a@example.com"}

	sc, err := ConfigFrom(cfg)
	require.NoError(t, err)
	assert.Equal(t, []config.ClockTime{{Hour: 6}, {Hour: 18}}, sc.AlertTimes)
	assert.Equal(t, []int{7, 3, 1, 0}, sc.Thresholds)
	assert.Equal(t, "Europe/Istanbul", sc.Location.String())

	cfg.Notification.AlertTimes = []string{"25:00"}
	_, err = ConfigFrom(cfg)
	assert.Error(t, err)
}
