package invoices

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/storeline/storeline/internal/accounts"
	"github.com/storeline/storeline/internal/shared"
)

// LedgerPort is the slice of the accounts service invoicing needs.
type LedgerPort interface {
	GetAccount(ctx context.Context, businessID, accountID int64) (*accounts.CustomerAccount, error)
	CreateCharge(ctx context.Context, businessID, accountID int64, req accounts.ChargeRequest) (*accounts.AccountTransaction, error)
	CreateAdjustment(ctx context.Context, businessID, accountID int64, req accounts.AdjustmentRequest) (*accounts.AccountTransaction, error)
	ChargeOutstanding(ctx context.Context, businessID, accountID, transactionID int64) (decimal.Decimal, error)
	LogCollectionActivity(ctx context.Context, businessID, accountID int64, req accounts.CollectionActivityRequest) (*accounts.CollectionActivity, error)
}

// RepositoryPort defines invoice persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, businessID, invoiceID int64) (*Invoice, error)
	List(ctx context.Context, businessID int64, req ListInvoicesRequest) ([]Invoice, int, error)
	// ListOverdueCandidates spans all businesses: posted invoices whose
	// due date has passed.
	ListOverdueCandidates(ctx context.Context, asOf time.Time) ([]Invoice, error)
}

// TxRepository exposes the transactional invoice operations.
type TxRepository interface {
	InsertInvoice(ctx context.Context, invoice Invoice) (int64, error)
	GetInvoiceForUpdate(ctx context.Context, businessID, invoiceID int64) (*Invoice, error)
	// TransitionStatus updates status only when the row is still in
	// from; it returns ErrInvalidTransition otherwise.
	TransitionStatus(ctx context.Context, invoiceID int64, from, to InvoiceStatus) error
	MarkPosted(ctx context.Context, invoiceID, transactionID int64, dueAt *time.Time, issuedAt time.Time) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages on-account invoices.
type Service struct {
	repo   RepositoryPort
	ledger LedgerPort
	audit  AuditPort
	log    *slog.Logger
}

// NewService builds a Service.
func NewService(repo RepositoryPort, ledger LedgerPort, audit AuditPort, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, ledger: ledger, audit: audit, log: log}
}

// Create opens a draft invoice. Drafts carry no ledger effect until
// posted.
func (s *Service) Create(ctx context.Context, businessID int64, req CreateInvoiceRequest) (*Invoice, error) {
	if businessID == 0 {
		return nil, shared.ErrTenantRequired
	}
	if !req.Total.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if _, err := s.ledger.GetAccount(ctx, businessID, req.AccountID); err != nil {
		return nil, fmt.Errorf("invoices: resolve account: %w", err)
	}

	invoice := Invoice{
		BusinessID: businessID,
		AccountID:  req.AccountID,
		Number:     invoiceNumber(),
		Total:      req.Total,
		Status:     InvoiceStatusDraft,
		Note:       req.Note,
		CreatedBy:  shared.ActorFromContext(ctx),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertInvoice(ctx, invoice)
		if err != nil {
			return err
		}
		invoice.ID = id
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("invoices: create: %w", err)
	}
	s.recordAudit(ctx, businessID, "invoice:create", invoice.ID, map[string]any{
		"number": invoice.Number,
		"total":  invoice.Total.String(),
	})
	return s.repo.Get(ctx, businessID, invoice.ID)
}

// Post writes the invoice total to the account ledger as one charge
// and stamps the due date the ledger derived from the account's terms.
func (s *Service) Post(ctx context.Context, businessID, invoiceID int64) (*Invoice, error) {
	invoice, err := s.repo.Get(ctx, businessID, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status != InvoiceStatusDraft {
		return nil, ErrNotDraft
	}

	charge, err := s.ledger.CreateCharge(ctx, businessID, invoice.AccountID, accounts.ChargeRequest{
		Amount:    invoice.Total,
		Reference: invoice.Number,
		Note:      "invoice",
	})
	if err != nil {
		return nil, fmt.Errorf("invoices: post charge: %w", err)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.GetInvoiceForUpdate(ctx, businessID, invoiceID)
		if err != nil {
			return err
		}
		if locked.Status != InvoiceStatusDraft {
			return ErrNotDraft
		}
		return tx.MarkPosted(ctx, invoiceID, charge.ID, charge.DueAt, time.Now().UTC())
	})
	if err != nil {
		// The charge already landed; reverse it before surfacing.
		if _, rerr := s.ledger.CreateAdjustment(ctx, businessID, invoice.AccountID, accounts.AdjustmentRequest{
			Amount: invoice.Total.Neg(),
			Reason: fmt.Sprintf("invoice %s post rolled back", invoice.Number),
		}); rerr != nil {
			return nil, fmt.Errorf("invoices: post compensation: %w", rerr)
		}
		return nil, fmt.Errorf("invoices: post: %w", err)
	}

	s.recordAudit(ctx, businessID, "invoice:post", invoiceID, map[string]any{
		"charge_transaction_id": charge.ID,
	})
	return s.repo.Get(ctx, businessID, invoiceID)
}

// Void cancels an invoice. Drafts void freely; a posted invoice voids
// only while its charge is still fully unallocated, in which case the
// charge is reversed.
func (s *Service) Void(ctx context.Context, businessID, invoiceID int64) (*Invoice, error) {
	invoice, err := s.repo.Get(ctx, businessID, invoiceID)
	if err != nil {
		return nil, err
	}
	switch invoice.Status {
	case InvoiceStatusDraft:
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return tx.TransitionStatus(ctx, invoiceID, InvoiceStatusDraft, InvoiceStatusVoid)
		})
		if err != nil {
			return nil, fmt.Errorf("invoices: void: %w", err)
		}
	case InvoiceStatusPosted:
		outstanding, err := s.ledger.ChargeOutstanding(ctx, businessID, invoice.AccountID, invoice.ChargeTransactionID)
		if err != nil {
			return nil, fmt.Errorf("invoices: charge outstanding: %w", err)
		}
		if !outstanding.Equal(invoice.Total) {
			return nil, ErrChargeAllocated
		}
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return tx.TransitionStatus(ctx, invoiceID, InvoiceStatusPosted, InvoiceStatusVoid)
		})
		if err != nil {
			return nil, fmt.Errorf("invoices: void: %w", err)
		}
		if _, err := s.ledger.CreateAdjustment(ctx, businessID, invoice.AccountID, accounts.AdjustmentRequest{
			Amount: invoice.Total.Neg(),
			Reason: fmt.Sprintf("invoice %s voided", invoice.Number),
		}); err != nil {
			return nil, fmt.Errorf("invoices: reverse charge: %w", err)
		}
	default:
		return nil, ErrInvalidTransition
	}

	s.recordAudit(ctx, businessID, "invoice:void", invoiceID, nil)
	return s.repo.Get(ctx, businessID, invoiceID)
}

// MarkPaid closes out an invoice whose charge has been fully
// allocated. Both posted and overdue invoices qualify.
func (s *Service) MarkPaid(ctx context.Context, businessID, invoiceID int64) (*Invoice, error) {
	invoice, err := s.repo.Get(ctx, businessID, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status != InvoiceStatusPosted && invoice.Status != InvoiceStatusOverdue {
		return nil, ErrNotPosted
	}
	outstanding, err := s.ledger.ChargeOutstanding(ctx, businessID, invoice.AccountID, invoice.ChargeTransactionID)
	if err != nil {
		return nil, fmt.Errorf("invoices: charge outstanding: %w", err)
	}
	if outstanding.IsPositive() {
		return nil, ErrNotSettled
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.TransitionStatus(ctx, invoiceID, invoice.Status, InvoiceStatusPaid)
	})
	if err != nil {
		return nil, fmt.Errorf("invoices: mark paid: %w", err)
	}
	s.recordAudit(ctx, businessID, "invoice:mark_paid", invoiceID, nil)
	return s.repo.Get(ctx, businessID, invoiceID)
}

// Get fetches one invoice.
func (s *Service) Get(ctx context.Context, businessID, invoiceID int64) (*Invoice, error) {
	return s.repo.Get(ctx, businessID, invoiceID)
}

// List lists invoices.
func (s *Service) List(ctx context.Context, businessID int64, req ListInvoicesRequest) ([]Invoice, int, error) {
	return s.repo.List(ctx, businessID, req)
}

// OverdueScan flags every posted invoice past its due date and logs a
// collection activity on its account. One bad record never stops the
// batch; flagged reports how many invoices actually transitioned.
func (s *Service) OverdueScan(ctx context.Context, asOf time.Time) (flagged int, err error) {
	candidates, err := s.repo.ListOverdueCandidates(ctx, asOf)
	if err != nil {
		return 0, fmt.Errorf("invoices: overdue candidates: %w", err)
	}
	for _, invoice := range candidates {
		txErr := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return tx.TransitionStatus(ctx, invoice.ID, InvoiceStatusPosted, InvoiceStatusOverdue)
		})
		if txErr != nil {
			s.log.Error("overdue scan: flag invoice",
				slog.Int64("invoice_id", invoice.ID),
				slog.Int64("business_id", invoice.BusinessID),
				slog.Any("error", txErr))
			continue
		}
		flagged++
		if _, actErr := s.ledger.LogCollectionActivity(ctx, invoice.BusinessID, invoice.AccountID, accounts.CollectionActivityRequest{
			Kind: "overdue_notice",
			Note: fmt.Sprintf("invoice %s overdue", invoice.Number),
		}); actErr != nil {
			s.log.Error("overdue scan: collection activity",
				slog.Int64("invoice_id", invoice.ID),
				slog.Int64("account_id", invoice.AccountID),
				slog.Any("error", actErr))
		}
	}
	return flagged, nil
}

func (s *Service) recordAudit(ctx context.Context, businessID int64, action string, invoiceID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		BusinessID: businessID,
		ActorID:    shared.ActorFromContext(ctx),
		Action:     action,
		Entity:     "invoice",
		EntityID:   fmt.Sprintf("%d", invoiceID),
		Meta:       meta,
	})
}

func invoiceNumber() string {
	return "INV-" + strings.ToUpper(uuid.NewString()[:8])
}
