package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/storeline/storeline/internal/statements"
)

type fakeScanner struct {
	asOf    time.Time
	flagged int
	err     error
}

func (f *fakeScanner) OverdueScan(ctx context.Context, asOf time.Time) (int, error) {
	f.asOf = asOf
	return f.flagged, f.err
}

type fakeGenerator struct {
	mu       sync.Mutex
	accounts []statements.AccountRef
	failFor  map[int64]error
	calls    map[int64][2]time.Time
}

func newFakeGenerator(accounts ...statements.AccountRef) *fakeGenerator {
	return &fakeGenerator{
		accounts: accounts,
		failFor:  make(map[int64]error),
		calls:    make(map[int64][2]time.Time),
	}
}

func (f *fakeGenerator) ListActiveAccounts(ctx context.Context) ([]statements.AccountRef, error) {
	return f.accounts, nil
}

func (f *fakeGenerator) Generate(ctx context.Context, businessID, accountID int64, start, end time.Time) (*statements.AccountStatement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[accountID] = [2]time.Time{start, end}
	if err, ok := f.failFor[accountID]; ok {
		return nil, err
	}
	return &statements.AccountStatement{BusinessID: businessID, AccountID: accountID}, nil
}

type recordingSender struct {
	to, subject, body string
	err               error
}

func (s *recordingSender) Send(ctx context.Context, to, subject, body string) error {
	s.to, s.subject, s.body = to, subject, body
	return s.err
}

type fakeCleaner struct {
	olderThan time.Duration
	pruned    int64
}

func (f *fakeCleaner) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	f.olderThan = olderThan
	return f.pruned, nil
}

func TestPreviousMonth(t *testing.T) {
	now := time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)
	start, end := PreviousMonth(now)
	require.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), start)
	require.Equal(t, time.March, end.Month())
	require.True(t, end.Before(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))

	// Year rollover.
	start, _ = PreviousMonth(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	require.Equal(t, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), start)
}

func TestHandleOverdueScan(t *testing.T) {
	scanner := &fakeScanner{flagged: 3}
	handlers := NewHandlers(scanner, nil, nil, nil, nil, nil)

	at := time.Date(2026, 6, 1, 2, 0, 0, 0, time.UTC)
	task, err := NewOverdueScanTask(at)
	require.NoError(t, err)
	require.NoError(t, handlers.HandleOverdueScan(context.Background(), task))
	require.Equal(t, at, scanner.asOf)

	scanner.err = errors.New("db down")
	require.Error(t, handlers.HandleOverdueScan(context.Background(), task))

	bad := asynq.NewTask(TaskOverdueScan, []byte("{"))
	require.ErrorIs(t, handlers.HandleOverdueScan(context.Background(), bad), asynq.SkipRetry)
}

func TestHandleStatementRunIsolatesFailures(t *testing.T) {
	generator := newFakeGenerator(
		statements.AccountRef{BusinessID: 1, AccountID: 10},
		statements.AccountRef{BusinessID: 1, AccountID: 11},
		statements.AccountRef{BusinessID: 2, AccountID: 20},
	)
	generator.failFor[11] = errors.New("account broken")
	generator.failFor[20] = statements.ErrAlreadyExists
	handlers := NewHandlers(nil, generator, nil, nil, nil, nil)

	task, err := NewStatementRunTask(StatementRunPayload{})
	require.NoError(t, err)

	// One hard failure and one already-generated period: the run still
	// completes and every account was attempted.
	require.NoError(t, handlers.HandleStatementRun(context.Background(), task))
	require.Len(t, generator.calls, 3)

	expectedStart, expectedEnd := PreviousMonth(time.Now())
	period := generator.calls[10]
	require.Equal(t, expectedStart, period[0])
	require.Equal(t, expectedEnd, period[1])
}

func TestHandleStatementRunExplicitPeriod(t *testing.T) {
	generator := newFakeGenerator(statements.AccountRef{BusinessID: 1, AccountID: 10})
	handlers := NewHandlers(nil, generator, nil, nil, nil, nil)

	start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 4, 30, 23, 59, 59, 0, time.UTC)
	task, err := NewStatementRunTask(StatementRunPayload{PeriodStart: start, PeriodEnd: end})
	require.NoError(t, err)
	require.NoError(t, handlers.HandleStatementRun(context.Background(), task))

	period := generator.calls[10]
	require.Equal(t, start, period[0])
	require.Equal(t, end, period[1])
}

func TestHandleSendMail(t *testing.T) {
	sender := &recordingSender{}
	handlers := NewHandlers(nil, nil, sender, nil, nil, nil)

	task, err := NewSendMailTask(SendMailPayload{To: "owner@example.com", Subject: "Statement", Body: "hello"})
	require.NoError(t, err)
	require.NoError(t, handlers.HandleSendMail(context.Background(), task))
	require.Equal(t, "owner@example.com", sender.to)
	require.Equal(t, "Statement", sender.subject)

	sender.err = errors.New("relay refused")
	require.Error(t, handlers.HandleSendMail(context.Background(), task))
}

func TestHandleIdempotencyCleanupDefaultsRetention(t *testing.T) {
	cleaner := &fakeCleaner{pruned: 12}
	handlers := NewHandlers(nil, nil, nil, cleaner, nil, nil)

	task, err := NewIdempotencyCleanupTask(0)
	require.NoError(t, err)
	require.NoError(t, handlers.HandleIdempotencyCleanup(context.Background(), task))
	require.Equal(t, 48*time.Hour, cleaner.olderThan)

	task, err = NewIdempotencyCleanupTask(6)
	require.NoError(t, err)
	require.NoError(t, handlers.HandleIdempotencyCleanup(context.Background(), task))
	require.Equal(t, 6*time.Hour, cleaner.olderThan)
}
