package statements

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/storeline/storeline/internal/shared"
)

// RepositoryPort defines statement persistence plus the ledger reads
// the generator needs.
type RepositoryPort interface {
	BalanceBefore(ctx context.Context, businessID, accountID int64, at time.Time) (decimal.Decimal, error)
	PeriodTotals(ctx context.Context, businessID, accountID int64, start, end time.Time) (charges, payments decimal.Decimal, err error)
	OutstandingCharges(ctx context.Context, businessID, accountID int64) ([]OutstandingCharge, error)
	InsertStatement(ctx context.Context, statement AccountStatement) (int64, error)
	Get(ctx context.Context, businessID, statementID int64) (*AccountStatement, error)
	List(ctx context.Context, businessID, accountID int64, limit, offset int) ([]AccountStatement, error)
	MarkSent(ctx context.Context, businessID, statementID int64, at time.Time) error
	ListActiveAccounts(ctx context.Context) ([]AccountRef, error)
}

// MailPort enqueues outbound mail.
type MailPort interface {
	EnqueueMail(ctx context.Context, to, subject, body string) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service generates and sends account statements.
type Service struct {
	repo     RepositoryPort
	mail     MailPort
	audit    AuditPort
	renderer *Renderer
}

// NewService builds a Service.
func NewService(repo RepositoryPort, mail MailPort, audit AuditPort, renderer *Renderer) *Service {
	if renderer == nil {
		renderer = NewRenderer("USD")
	}
	return &Service{repo: repo, mail: mail, audit: audit, renderer: renderer}
}

// Generate snapshots an account over [start, end]. The snapshot is
// immutable once written; regenerating the same period is a conflict.
func (s *Service) Generate(ctx context.Context, businessID, accountID int64, periodStart, periodEnd time.Time) (*AccountStatement, error) {
	if businessID == 0 {
		return nil, shared.ErrTenantRequired
	}
	if !periodEnd.After(periodStart) {
		return nil, ErrInvalidPeriod
	}

	opening, err := s.repo.BalanceBefore(ctx, businessID, accountID, periodStart)
	if err != nil {
		return nil, fmt.Errorf("statements: opening balance: %w", err)
	}
	charges, payments, err := s.repo.PeriodTotals(ctx, businessID, accountID, periodStart, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("statements: period totals: %w", err)
	}
	closing := opening.Add(charges).Sub(payments)

	outstanding, err := s.repo.OutstandingCharges(ctx, businessID, accountID)
	if err != nil {
		return nil, fmt.Errorf("statements: outstanding charges: %w", err)
	}
	current, d30, d60, d90 := bucketOutstanding(periodEnd, outstanding)

	// The buckets cover outstanding charges only; credits, unallocated
	// payments and adjustments land in the residue. Folding it into the
	// current bucket keeps bucket sum == closing balance exactly.
	residue := closing.Sub(current.Add(d30).Add(d60).Add(d90))
	current = current.Add(residue)

	statement := AccountStatement{
		BusinessID:     businessID,
		AccountID:      accountID,
		Number:         statementNumber(),
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		OpeningBalance: opening,
		TotalCharges:   charges,
		TotalPayments:  payments,
		ClosingBalance: closing,
		AgingCurrent:   current,
		AgingDays30:    d30,
		AgingDays60:    d60,
		AgingDays90:    d90,
	}
	id, err := s.repo.InsertStatement(ctx, statement)
	if err != nil {
		return nil, fmt.Errorf("statements: insert: %w", err)
	}
	s.recordAudit(ctx, businessID, "statement:generate", id, map[string]any{
		"account_id":   accountID,
		"period_start": periodStart.Format("2006-01-02"),
		"period_end":   periodEnd.Format("2006-01-02"),
	})
	return s.repo.Get(ctx, businessID, id)
}

// Send renders the statement, enqueues the mail and stamps SentAt.
// Amounts are never touched after generation.
func (s *Service) Send(ctx context.Context, businessID, statementID int64, recipient string) (*AccountStatement, error) {
	statement, err := s.repo.Get(ctx, businessID, statementID)
	if err != nil {
		return nil, err
	}
	if statement.SentAt != nil {
		return nil, ErrAlreadySent
	}
	body := s.renderer.Render(*statement)
	if s.mail != nil {
		subject := fmt.Sprintf("Account statement %s", statement.Number)
		if err := s.mail.EnqueueMail(ctx, recipient, subject, body); err != nil {
			return nil, fmt.Errorf("statements: enqueue mail: %w", err)
		}
	}
	now := time.Now().UTC()
	if err := s.repo.MarkSent(ctx, businessID, statementID, now); err != nil {
		return nil, fmt.Errorf("statements: mark sent: %w", err)
	}
	s.recordAudit(ctx, businessID, "statement:send", statementID, map[string]any{"recipient": recipient})
	return s.repo.Get(ctx, businessID, statementID)
}

// Render returns the plain-text statement body.
func (s *Service) Render(ctx context.Context, businessID, statementID int64) (string, error) {
	statement, err := s.repo.Get(ctx, businessID, statementID)
	if err != nil {
		return "", err
	}
	return s.renderer.Render(*statement), nil
}

// Get fetches one statement.
func (s *Service) Get(ctx context.Context, businessID, statementID int64) (*AccountStatement, error) {
	return s.repo.Get(ctx, businessID, statementID)
}

// List lists statements for an account.
func (s *Service) List(ctx context.Context, businessID, accountID int64, limit, offset int) ([]AccountStatement, error) {
	return s.repo.List(ctx, businessID, accountID, limit, offset)
}

// ListActiveAccounts feeds the monthly statement run.
func (s *Service) ListActiveAccounts(ctx context.Context) ([]AccountRef, error) {
	return s.repo.ListActiveAccounts(ctx)
}

// bucketOutstanding ages outstanding charges relative to asOf:
// not yet due, 1–30, 31–60, 61+ days overdue.
func bucketOutstanding(asOf time.Time, charges []OutstandingCharge) (current, d30, d60, d90 decimal.Decimal) {
	current, d30, d60, d90 = decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	for _, charge := range charges {
		outstanding := charge.Outstanding()
		if !outstanding.IsPositive() {
			continue
		}
		due := charge.CreatedAt
		if charge.DueAt != nil {
			due = *charge.DueAt
		}
		days := int(asOf.Sub(due).Hours() / 24)
		switch {
		case days <= 0:
			current = current.Add(outstanding)
		case days <= 30:
			d30 = d30.Add(outstanding)
		case days <= 60:
			d60 = d60.Add(outstanding)
		default:
			d90 = d90.Add(outstanding)
		}
	}
	return current, d30, d60, d90
}

func (s *Service) recordAudit(ctx context.Context, businessID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		BusinessID: businessID,
		ActorID:    shared.ActorFromContext(ctx),
		Action:     action,
		Entity:     "account_statement",
		EntityID:   fmt.Sprintf("%d", id),
		Meta:       meta,
	})
}

func statementNumber() string {
	return "STMT-" + strings.ToUpper(uuid.NewString()[:8])
}
