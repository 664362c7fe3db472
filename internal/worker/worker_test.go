package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/goodbreeze/breeze/internal/repository"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeJobStore is an in-memory queue for worker tests.
type fakeJobStore struct {
	mu        sync.Mutex
	jobs      []repository.Job
	completed []uuid.UUID
	failed    []failCall
	recovered int64
}

type failCall struct {
	jobID     uuid.UUID
	message   string
	permanent bool
}

func (f *fakeJobStore) push(job repository.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
}

func (f *fakeJobStore) DequeueJob(ctx context.Context) (repository.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.jobs) == 0 {
		return repository.Job{}, repository.ErrNotFound
	}
	job := f.jobs[0]
	f.jobs = f.jobs[1:]
	job.Attempts++
	return job, nil
}

func (f *fakeJobStore) CompleteJob(ctx context.Context, jobID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, jobID)
	return nil
}

func (f *fakeJobStore) FailJob(ctx context.Context, jobID uuid.UUID, errorMessage string, permanent bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, failCall{jobID: jobID, message: errorMessage, permanent: permanent})
	return nil
}

func (f *fakeJobStore) RecoverStaleJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recovered, nil
}

func (f *fakeJobStore) snapshot() (completed []uuid.UUID, failed []failCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.completed...), append([]failCall(nil), f.failed...)
}

// recordingHandler counts invocations and returns a configured error.
type recordingHandler struct {
	jobType string
	err     error

	mu    sync.Mutex
	calls int
}

func (h *recordingHandler) Type() string { return h.jobType }

func (h *recordingHandler) Handle(ctx context.Context, payload []byte) error {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	return h.err
}

func (h *recordingHandler) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Concurrency = 1
	cfg.PollInterval = 10 * time.Millisecond
	cfg.JobTimeout = time.Second
	cfg.ShutdownTimeout = time.Second
	return cfg
}

func runUntil(t *testing.T, w *Worker, cond func() bool) {
	t.Helper()
	w.Start(context.Background())
	defer w.Stop()

	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("condition not reached before deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestWorkerCompletesJob(t *testing.T) {
	store := &fakeJobStore{}
	jobID := uuid.New()
	store.push(repository.Job{ID: jobID, JobType: "test_job", Payload: []byte(`{}`), MaxAttempts: 3})

	handler := &recordingHandler{jobType: "test_job"}
	w, err := New(store, testConfig(), newTestLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.Register(handler)

	runUntil(t, w, func() bool {
		completed, _ := store.snapshot()
		return len(completed) == 1
	})

	completed, failed := store.snapshot()
	if completed[0] != jobID {
		t.Errorf("completed = %v, want [%s]", completed, jobID)
	}
	if len(failed) != 0 {
		t.Errorf("failed = %v, want none", failed)
	}
	if handler.callCount() != 1 {
		t.Errorf("handler calls = %d, want 1", handler.callCount())
	}
}

func TestWorkerRetryableFailure(t *testing.T) {
	store := &fakeJobStore{}
	jobID := uuid.New()
	store.push(repository.Job{ID: jobID, JobType: "test_job", Payload: []byte(`{}`), MaxAttempts: 3})

	handler := &recordingHandler{jobType: "test_job", err: errors.New("upstream flaked")}
	w, err := New(store, testConfig(), newTestLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.Register(handler)

	runUntil(t, w, func() bool {
		_, failed := store.snapshot()
		return len(failed) == 1
	})

	_, failed := store.snapshot()
	if failed[0].jobID != jobID {
		t.Errorf("failed job = %s, want %s", failed[0].jobID, jobID)
	}
	if failed[0].permanent {
		t.Error("transient error must not be recorded as permanent")
	}
}

func TestWorkerPermanentFailure(t *testing.T) {
	store := &fakeJobStore{}
	store.push(repository.Job{ID: uuid.New(), JobType: "test_job", Payload: []byte(`{}`), MaxAttempts: 3})

	handler := &recordingHandler{
		jobType: "test_job",
		err:     NewPermanentError(errors.New("payload is nonsense")),
	}
	w, err := New(store, testConfig(), newTestLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.Register(handler)

	runUntil(t, w, func() bool {
		_, failed := store.snapshot()
		return len(failed) == 1
	})

	_, failed := store.snapshot()
	if !failed[0].permanent {
		t.Error("permanent error must be recorded as permanent")
	}
}

func TestWorkerUnknownJobTypeIsPermanent(t *testing.T) {
	store := &fakeJobStore{}
	store.push(repository.Job{ID: uuid.New(), JobType: "no_such_type", Payload: []byte(`{}`), MaxAttempts: 3})

	w, err := New(store, testConfig(), newTestLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	runUntil(t, w, func() bool {
		_, failed := store.snapshot()
		return len(failed) == 1
	})

	_, failed := store.snapshot()
	if !failed[0].permanent {
		t.Error("missing handler must fail the job permanently")
	}
}

func TestWorkerDrainsQueue(t *testing.T) {
	store := &fakeJobStore{}
	for i := 0; i < 5; i++ {
		store.push(repository.Job{ID: uuid.New(), JobType: "test_job", Payload: []byte(`{}`), MaxAttempts: 3})
	}

	handler := &recordingHandler{jobType: "test_job"}
	w, err := New(store, testConfig(), newTestLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.Register(handler)

	runUntil(t, w, func() bool {
		completed, _ := store.snapshot()
		return len(completed) == 5
	})
}

func TestIsPermanent(t *testing.T) {
	plain := errors.New("plain")
	if IsPermanent(plain) {
		t.Error("plain error should not be permanent")
	}

	perm := NewPermanentError(plain)
	if !IsPermanent(perm) {
		t.Error("wrapped error should be permanent")
	}
	if !errors.Is(perm, plain) {
		t.Error("permanent error should unwrap to the cause")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	bad := DefaultConfig()
	bad.Concurrency = 0
	if err := bad.Validate(); err == nil {
		t.Error("zero concurrency should fail validation")
	}
}
