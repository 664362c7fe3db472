package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/goodbreeze/breeze/internal/domain"
	"github.com/goodbreeze/breeze/internal/repository"
)

// =============================================================================
// In-memory fake store
// =============================================================================

// fakeReportStore mirrors the repository's single-transaction failure
// semantics: the terminal-status guard and the refund move together.
type fakeReportStore struct {
	mu            sync.Mutex
	reports       map[uuid.UUID]*domain.Report
	credits       map[uuid.UUID]*domain.Credit
	subs          map[uuid.UUID]*domain.Subscription
	jobs          []repository.Job
	notifications []domain.Notification

	failEnqueue bool
	failRefund  bool
}

func newFakeReportStore() *fakeReportStore {
	return &fakeReportStore{
		reports: make(map[uuid.UUID]*domain.Report),
		credits: make(map[uuid.UUID]*domain.Credit),
		subs:    make(map[uuid.UUID]*domain.Subscription),
	}
}

func (f *fakeReportStore) addPackReport(userID uuid.UUID, createdAt time.Time) (*domain.Report, *domain.Credit) {
	f.mu.Lock()
	defer f.mu.Unlock()
	credit := &domain.Credit{ID: uuid.New(), UserID: userID, Balance: 0, InitialSize: 1, Product: domain.CreditProductPack}
	f.credits[credit.ID] = credit
	r := &domain.Report{
		ID:            uuid.New(),
		UserID:        &userID,
		Type:          domain.ReportTypeSEOAudit,
		Subject:       "example.com",
		Status:        domain.ReportStatusPending,
		DebitSource:   domain.DebitSourcePack,
		DebitedCredit: &credit.ID,
		CreatedAt:     createdAt,
	}
	f.reports[r.ID] = r
	return r, credit
}

func (f *fakeReportStore) GetReport(ctx context.Context, id uuid.UUID) (*domain.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeReportStore) ListReportsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Report
	for _, r := range f.reports {
		if r.UserID != nil && *r.UserID == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeReportStore) DeleteReport(ctx context.Context, reportID, userID uuid.UUID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[reportID]
	if !ok || r.UserID == nil || *r.UserID != userID {
		return "", repository.ErrNotFound
	}
	delete(f.reports, reportID)
	return r.PDFURL, nil
}

func (f *fakeReportStore) MarkProcessing(ctx context.Context, reportID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[reportID]
	if !ok || r.Status != domain.ReportStatusPending {
		return repository.ErrGuardFailed
	}
	r.Status = domain.ReportStatusProcessing
	return nil
}

func (f *fakeReportStore) CompleteReport(ctx context.Context, reportID uuid.UUID, pdfURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[reportID]
	if !ok || r.Status.IsTerminal() {
		return repository.ErrGuardFailed
	}
	now := time.Now()
	expiry := now.Add(domain.ReportRetention)
	r.Status = domain.ReportStatusCompleted
	r.PDFURL = pdfURL
	r.CompletedAt = &now
	r.ExpiresAt = &expiry
	return nil
}

func (f *fakeReportStore) FailReport(ctx context.Context, reportID uuid.UUID, failureMessage string) (repository.FailOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[reportID]
	if !ok || r.Status.IsTerminal() {
		return repository.FailOutcome{}, repository.ErrGuardFailed
	}
	if f.failRefund {
		// Refund write failed: the whole transition rolls back.
		return repository.FailOutcome{}, errors.New("refund credit: connection reset")
	}
	r.Status = domain.ReportStatusFailed
	r.FailureMessage = failureMessage
	out := repository.FailOutcome{Source: r.DebitSource, UserID: r.UserID}
	switch r.DebitSource {
	case domain.DebitSourcePack:
		if c, ok := f.credits[*r.DebitedCredit]; ok {
			c.Balance++
		}
		out.Refunded = true
	case domain.DebitSourceSubscription:
		if sub, ok := f.subs[*r.DebitedSub]; ok {
			sub.CreditsRemaining++
		}
		out.Refunded = true
	}
	if out.Refunded {
		now := time.Now()
		r.RefundedAt = &now
	}
	return out, nil
}

func (f *fakeReportStore) ListStaleReports(ctx context.Context, olderThan time.Time) ([]domain.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Report
	for _, r := range f.reports {
		if !r.Status.IsTerminal() && r.CreatedAt.Before(olderThan) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeReportStore) EnqueueJob(ctx context.Context, p repository.EnqueueJobParams) (repository.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failEnqueue {
		return repository.Job{}, errors.New("queue insert failed")
	}
	j := repository.Job{ID: uuid.New(), JobType: p.JobType, Payload: p.Payload, Status: repository.JobStatusPending}
	f.jobs = append(f.jobs, j)
	return j, nil
}

func (f *fakeReportStore) CreateNotification(ctx context.Context, userID uuid.UUID, typ domain.NotificationType, message string) (*domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := domain.Notification{ID: uuid.New(), UserID: userID, Type: typ, Message: message, CreatedAt: time.Now()}
	f.notifications = append(f.notifications, n)
	return &n, nil
}

func (f *fakeReportStore) countNotifications(typ domain.NotificationType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for i := range f.notifications {
		if f.notifications[i].Type == typ {
			n++
		}
	}
	return n
}

// =============================================================================
// Tests
// =============================================================================

func TestFail_RefundsExactlyOnce(t *testing.T) {
	store := newFakeReportStore()
	report, credit := store.addPackReport(uuid.New(), time.Now())
	svc := NewReportService(store, nil, testLogger())

	if err := svc.Fail(context.Background(), report.ID, "model error"); err != nil {
		t.Fatalf("first Fail() error = %v", err)
	}
	if credit.Balance != 1 {
		t.Fatalf("credit balance = %d after refund, want 1", credit.Balance)
	}

	// Second failure must be a no-op, not a second refund.
	if err := svc.Fail(context.Background(), report.ID, "model error again"); err != nil {
		t.Fatalf("second Fail() error = %v", err)
	}
	if credit.Balance != 1 {
		t.Errorf("credit balance = %d after duplicate Fail, want 1", credit.Balance)
	}
	if got := store.countNotifications(domain.NotificationRefundIssued); got != 1 {
		t.Errorf("refund notifications = %d, want 1", got)
	}
}

func TestFail_ConcurrentCallsOneRefund(t *testing.T) {
	store := newFakeReportStore()
	report, credit := store.addPackReport(uuid.New(), time.Now())
	svc := NewReportService(store, nil, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = svc.Fail(context.Background(), report.ID, "race")
		}()
	}
	wg.Wait()

	if credit.Balance != 1 {
		t.Errorf("credit balance = %d, want exactly 1", credit.Balance)
	}
}

func TestFail_CompletedReportNotRefunded(t *testing.T) {
	store := newFakeReportStore()
	report, credit := store.addPackReport(uuid.New(), time.Now())
	svc := NewReportService(store, nil, testLogger())

	if err := svc.Complete(context.Background(), report.ID, "https://cdn.example/report.pdf"); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if err := svc.Fail(context.Background(), report.ID, "late failure"); err != nil {
		t.Fatalf("Fail() after completion error = %v", err)
	}

	got, _ := store.GetReport(context.Background(), report.ID)
	if got.Status != domain.ReportStatusCompleted {
		t.Errorf("status = %s, completed report must stay completed", got.Status)
	}
	if credit.Balance != 0 {
		t.Errorf("credit balance = %d, completed report must not refund", credit.Balance)
	}
}

func TestFail_RefundWriteFailureLeavesReportRetryable(t *testing.T) {
	store := newFakeReportStore()
	report, credit := store.addPackReport(uuid.New(), time.Now())
	store.failRefund = true
	svc := NewReportService(store, nil, testLogger())

	if err := svc.Fail(context.Background(), report.ID, "model error"); err == nil {
		t.Fatal("expected error when the refund write fails")
	}

	got, _ := store.GetReport(context.Background(), report.ID)
	if got.Status.IsTerminal() {
		t.Errorf("status = %s, rollback must leave the report non-terminal", got.Status)
	}
	if credit.Balance != 0 {
		t.Errorf("credit balance = %d, want 0 after rollback", credit.Balance)
	}

	// The retry (here, the sweep's next pass) succeeds.
	store.failRefund = false
	if err := svc.Fail(context.Background(), report.ID, "model error"); err != nil {
		t.Fatalf("retried Fail() error = %v", err)
	}
	if credit.Balance != 1 {
		t.Errorf("credit balance = %d after retry, want 1", credit.Balance)
	}
}

func TestSweepStale(t *testing.T) {
	store := newFakeReportStore()
	userID := uuid.New()
	stale, staleCredit := store.addPackReport(userID, time.Now().Add(-4*time.Hour))
	fresh, freshCredit := store.addPackReport(userID, time.Now().Add(-time.Hour))
	svc := NewReportService(store, nil, testLogger())

	swept, err := svc.SweepStale(context.Background())
	if err != nil {
		t.Fatalf("SweepStale() error = %v", err)
	}
	if swept != 1 {
		t.Fatalf("swept = %d, want 1", swept)
	}

	gotStale, _ := store.GetReport(context.Background(), stale.ID)
	if gotStale.Status != domain.ReportStatusFailed {
		t.Errorf("stale report status = %s, want failed", gotStale.Status)
	}
	if staleCredit.Balance != 1 {
		t.Errorf("stale report credit = %d, want refunded to 1", staleCredit.Balance)
	}

	gotFresh, _ := store.GetReport(context.Background(), fresh.ID)
	if gotFresh.Status != domain.ReportStatusPending {
		t.Errorf("fresh report status = %s, want pending", gotFresh.Status)
	}
	if freshCredit.Balance != 0 {
		t.Errorf("fresh report credit = %d, want untouched 0", freshCredit.Balance)
	}

	// A second sweep finds nothing and refunds nothing.
	swept, err = svc.SweepStale(context.Background())
	if err != nil {
		t.Fatalf("second SweepStale() error = %v", err)
	}
	if swept != 0 {
		t.Errorf("second sweep = %d, want 0", swept)
	}
	if staleCredit.Balance != 1 {
		t.Errorf("credit balance = %d after second sweep, want 1", staleCredit.Balance)
	}
}

func TestComplete_SetsRetentionWindow(t *testing.T) {
	store := newFakeReportStore()
	userID := uuid.New()
	report, _ := store.addPackReport(userID, time.Now())
	svc := NewReportService(store, nil, testLogger())

	if err := svc.Complete(context.Background(), report.ID, "https://cdn.example/report.pdf"); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	got, err := svc.Get(context.Background(), report.ID, userID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.PDFURL == "" {
		t.Error("PDF URL missing inside the retention window")
	}
	if got.ExpiresAt == nil {
		t.Fatal("retention expiry not set")
	}
	wantExpiry := time.Now().Add(domain.ReportRetention)
	if got.ExpiresAt.Before(wantExpiry.Add(-time.Minute)) || got.ExpiresAt.After(wantExpiry.Add(time.Minute)) {
		t.Errorf("ExpiresAt = %v, want about %v", got.ExpiresAt, wantExpiry)
	}
	if got := store.countNotifications(domain.NotificationReportReady); got != 1 {
		t.Errorf("report-ready notifications = %d, want 1", got)
	}
}

func TestGet_ExpiredPDFHidden(t *testing.T) {
	store := newFakeReportStore()
	userID := uuid.New()
	report, _ := store.addPackReport(userID, time.Now())
	svc := NewReportService(store, nil, testLogger())

	if err := svc.Complete(context.Background(), report.ID, "https://cdn.example/report.pdf"); err != nil {
		t.Fatal(err)
	}

	// Age the download past retention.
	store.mu.Lock()
	past := time.Now().Add(-time.Hour)
	store.reports[report.ID].ExpiresAt = &past
	store.mu.Unlock()

	got, err := svc.Get(context.Background(), report.ID, userID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.PDFURL != "" {
		t.Error("PDF URL still exposed past the retention window")
	}
	if got.Status != domain.ReportStatusCompleted {
		t.Errorf("status = %s, the record itself must survive expiry", got.Status)
	}
}

func TestGet_OtherUsersReportHidden(t *testing.T) {
	store := newFakeReportStore()
	owner := uuid.New()
	report, _ := store.addPackReport(owner, time.Now())
	svc := NewReportService(store, nil, testLogger())

	_, err := svc.Get(context.Background(), report.ID, uuid.New())
	if domain.ErrorCode(err) != domain.ENOTFOUND {
		t.Errorf("error code = %s, want not_found for foreign report", domain.ErrorCode(err))
	}
}

func TestRequest_EnqueueFailureRefunds(t *testing.T) {
	userID := uuid.New()
	entStore := newFakeEntitlementStore()
	entStore.credits = []domain.Credit{
		{ID: uuid.New(), UserID: userID, Balance: 1, Product: domain.CreditProductPack, PurchasedAt: time.Now()},
	}
	entSvc := NewEntitlementService(entStore, testLogger())

	store := newFakeReportStore()
	store.failEnqueue = true
	// Share the report map so Fail sees the admitted report.
	store.reports = entStore.reports
	svc := NewReportService(store, entSvc, testLogger())

	_, _, err := svc.Request(context.Background(), &userID, domain.ReportTypeSEOAudit, "example.com")
	if err == nil {
		t.Fatal("expected error when enqueue fails")
	}

	// The admitted report must have been failed so its debit refunds.
	for _, r := range entStore.reports {
		if !r.Status.IsTerminal() {
			t.Errorf("report %s left in %s after enqueue failure", r.ID, r.Status)
		}
	}
}
