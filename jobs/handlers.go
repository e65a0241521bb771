package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/storeline/storeline/internal/observability"
	"github.com/storeline/storeline/internal/statements"
)

// statementRunConcurrency bounds the statement fan-out so one run
// cannot monopolise the database pool.
const statementRunConcurrency = 4

// InvoiceScanner is the slice of the invoices service the overdue scan
// handler needs.
type InvoiceScanner interface {
	OverdueScan(ctx context.Context, asOf time.Time) (int, error)
}

// StatementGenerator is the slice of the statements service the
// statement run handler needs.
type StatementGenerator interface {
	ListActiveAccounts(ctx context.Context) ([]statements.AccountRef, error)
	Generate(ctx context.Context, businessID, accountID int64, periodStart, periodEnd time.Time) (*statements.AccountStatement, error)
}

// MailSender delivers one outbound mail.
type MailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// KeyCleaner prunes expired idempotency keys.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Handlers bundles the task handlers with their dependencies.
type Handlers struct {
	invoices   InvoiceScanner
	statements StatementGenerator
	mail       MailSender
	cleaner    KeyCleaner
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewHandlers constructs the task handler set. A nil mail sender falls
// back to log-only delivery.
func NewHandlers(invoices InvoiceScanner, stmts StatementGenerator, mail MailSender, cleaner KeyCleaner, metrics *observability.Metrics, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	if mail == nil {
		mail = &logMailSender{logger: logger}
	}
	return &Handlers{
		invoices:   invoices,
		statements: stmts,
		mail:       mail,
		cleaner:    cleaner,
		metrics:    metrics,
		logger:     logger,
	}
}

// HandleOverdueScan flags posted invoices past due across every
// business.
func (h *Handlers) HandleOverdueScan(ctx context.Context, t *asynq.Task) error {
	var payload OverdueScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	asOf := payload.ScheduledFor
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	flagged, err := h.invoices.OverdueScan(ctx, asOf)
	h.metrics.ObserveJob(TaskOverdueScan, err)
	if err != nil {
		return fmt.Errorf("overdue scan: %w", err)
	}
	h.logger.Info("overdue scan finished",
		slog.Int("flagged", flagged),
		slog.Time("as_of", asOf))
	return nil
}

// HandleStatementRun generates a statement for every active account.
// Accounts fail independently; a period already generated counts as
// done, so the run is safe to repeat.
func (h *Handlers) HandleStatementRun(ctx context.Context, t *asynq.Task) error {
	var payload StatementRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	start, end := payload.PeriodStart, payload.PeriodEnd
	if start.IsZero() || end.IsZero() {
		start, end = PreviousMonth(time.Now())
	}

	accounts, err := h.statements.ListActiveAccounts(ctx)
	if err != nil {
		h.metrics.ObserveJob(TaskStatementRun, err)
		return fmt.Errorf("statement run: list accounts: %w", err)
	}

	var generated, failed int64
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(statementRunConcurrency)
	results := make([]error, len(accounts))
	for i, ref := range accounts {
		group.Go(func() error {
			_, err := h.statements.Generate(groupCtx, ref.BusinessID, ref.AccountID, start, end)
			results[i] = err
			return nil
		})
	}
	_ = group.Wait()

	for i, err := range results {
		switch {
		case err == nil:
			generated++
		case isAlreadyGenerated(err):
			generated++
		default:
			failed++
			h.logger.Error("statement run: account failed",
				slog.Int64("business_id", accounts[i].BusinessID),
				slog.Int64("account_id", accounts[i].AccountID),
				slog.Any("error", err))
		}
	}

	h.metrics.ObserveJob(TaskStatementRun, nil)
	h.logger.Info("statement run finished",
		slog.Time("period_start", start),
		slog.Time("period_end", end),
		slog.Int64("generated", generated),
		slog.Int64("failed", failed))
	return nil
}

// HandleSendMail delivers one queued mail.
func (h *Handlers) HandleSendMail(ctx context.Context, t *asynq.Task) error {
	var payload SendMailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	err := h.mail.Send(ctx, payload.To, payload.Subject, payload.Body)
	h.metrics.ObserveJob(TaskSendMail, err)
	if err != nil {
		return fmt.Errorf("send mail to %s: %w", payload.To, err)
	}
	return nil
}

// HandleIdempotencyCleanup prunes idempotency keys older than the
// retention window.
func (h *Handlers) HandleIdempotencyCleanup(ctx context.Context, t *asynq.Task) error {
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	retention := time.Duration(payload.RetentionHours) * time.Hour
	if retention <= 0 {
		retention = 48 * time.Hour
	}
	pruned, err := h.cleaner.Cleanup(ctx, retention)
	h.metrics.ObserveJob(TaskIdempotencyCleanup, err)
	if err != nil {
		return fmt.Errorf("idempotency cleanup: %w", err)
	}
	h.logger.Info("idempotency cleanup finished", slog.Int64("pruned", pruned))
	return nil
}

func isAlreadyGenerated(err error) bool {
	return errors.Is(err, statements.ErrAlreadyExists)
}

// logMailSender is the development delivery path: it records the mail
// instead of handing it to a relay.
type logMailSender struct {
	logger *slog.Logger
}

func (s *logMailSender) Send(ctx context.Context, to, subject, body string) error {
	s.logger.Info("mail dispatched",
		slog.String("to", to),
		slog.String("subject", subject),
		slog.Int("body_bytes", len(body)))
	return nil
}
