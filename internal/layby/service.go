package layby

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/storeline/storeline/internal/accounts"
	"github.com/storeline/storeline/internal/inventory"
	"github.com/storeline/storeline/internal/shared"
)

// LedgerPort is the slice of the accounts service the layby flow needs.
type LedgerPort interface {
	GetAccountByCustomer(ctx context.Context, businessID, customerID int64) (*accounts.CustomerAccount, error)
	CreateCharge(ctx context.Context, businessID, accountID int64, req accounts.ChargeRequest) (*accounts.AccountTransaction, error)
	CreateAdjustment(ctx context.Context, businessID, accountID int64, req accounts.AdjustmentRequest) (*accounts.AccountTransaction, error)
	ChargeOutstanding(ctx context.Context, businessID, accountID, transactionID int64) (decimal.Decimal, error)
}

// StockPort is the slice of the inventory service the layby flow needs.
type StockPort interface {
	ReserveAll(ctx context.Context, businessID int64, inputs []inventory.MovementInput) ([]inventory.StockMovement, error)
	Release(ctx context.Context, businessID int64, input inventory.MovementInput) (inventory.StockMovement, error)
	Collect(ctx context.Context, businessID int64, input inventory.MovementInput) (inventory.StockMovement, error)
}

// RepositoryPort defines layby persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, businessID, laybyID int64) (*Layby, error)
	List(ctx context.Context, businessID int64, req ListLaybysRequest) ([]Layby, int, error)
}

// TxRepository exposes the transactional layby operations.
type TxRepository interface {
	InsertLayby(ctx context.Context, layby Layby) (int64, error)
	InsertLine(ctx context.Context, line LaybyLine) (int64, error)
	UpsertReservation(ctx context.Context, reservation StockReservation) (int64, error)
	GetLaybyForUpdate(ctx context.Context, businessID, laybyID int64) (*Layby, error)
	UpdateLaybyStatus(ctx context.Context, laybyID int64, status LaybyStatus) error
	SetChargeTransaction(ctx context.Context, laybyID, transactionID int64) error
	ListReservationsForUpdate(ctx context.Context, laybyID int64) ([]StockReservation, error)
	// TransitionReservation moves a reservation out of RESERVED only;
	// it returns ErrReservationFinal when the row is already terminal.
	TransitionReservation(ctx context.Context, reservationID int64, to ReservationStatus) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates the layby lifecycle across the stock and ledger
// services.
type Service struct {
	repo   RepositoryPort
	ledger LedgerPort
	stock  StockPort
	audit  AuditPort
}

// NewService builds a Service.
func NewService(repo RepositoryPort, ledger LedgerPort, stock StockPort, audit AuditPort) *Service {
	return &Service{repo: repo, ledger: ledger, stock: stock, audit: audit}
}

// Create opens a layby: stock for every line is reserved atomically
// (all lines or none), the layby and its reservations are written, and
// the total is posted to the customer's account as one charge.
func (s *Service) Create(ctx context.Context, businessID int64, req CreateLaybyRequest) (*Layby, error) {
	if businessID == 0 {
		return nil, shared.ErrTenantRequired
	}
	if len(req.Lines) == 0 {
		return nil, ErrNoLines
	}
	total := decimal.Zero
	for _, line := range req.Lines {
		if !line.Qty.IsPositive() || !line.UnitPrice.IsPositive() {
			return nil, ErrInvalidLine
		}
		total = total.Add(line.Qty.Mul(line.UnitPrice))
	}

	account, err := s.ledger.GetAccountByCustomer(ctx, businessID, req.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("layby: resolve account: %w", err)
	}

	number := laybyNumber()
	merged := mergeLines(req.Lines)
	inputs := make([]inventory.MovementInput, 0, len(merged))
	for _, m := range merged {
		inputs = append(inputs, inventory.MovementInput{
			LocationID: m.LocationID,
			ProductID:  m.ProductID,
			Quantity:   m.Qty,
			Reference:  number,
		})
	}
	if _, err := s.stock.ReserveAll(ctx, businessID, inputs); err != nil {
		return nil, fmt.Errorf("layby: reserve stock: %w", err)
	}

	layby := Layby{
		BusinessID: businessID,
		CustomerID: req.CustomerID,
		AccountID:  account.ID,
		Number:     number,
		Status:     LaybyStatusOpen,
		Total:      total,
		Note:       req.Note,
		CreatedBy:  shared.ActorFromContext(ctx),
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertLayby(ctx, layby)
		if err != nil {
			return err
		}
		layby.ID = id
		for _, line := range req.Lines {
			if _, err := tx.InsertLine(ctx, LaybyLine{
				LaybyID:    id,
				ProductID:  line.ProductID,
				LocationID: line.LocationID,
				Qty:        line.Qty,
				UnitPrice:  line.UnitPrice,
			}); err != nil {
				return err
			}
		}
		for _, m := range merged {
			if _, err := tx.UpsertReservation(ctx, StockReservation{
				LaybyID:    id,
				ProductID:  m.ProductID,
				LocationID: m.LocationID,
				Qty:        m.Qty,
				Status:     ReservationStatusReserved,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.releaseStock(ctx, businessID, number, merged)
		return nil, fmt.Errorf("layby: create: %w", err)
	}

	charge, err := s.ledger.CreateCharge(ctx, businessID, account.ID, accounts.ChargeRequest{
		Amount:    total,
		Reference: number,
		Note:      "layby",
	})
	if err != nil {
		// Compensate: free the stock and void the shell before
		// surfacing the error.
		s.releaseStock(ctx, businessID, number, merged)
		_ = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			reservations, rerr := tx.ListReservationsForUpdate(ctx, layby.ID)
			if rerr != nil {
				return rerr
			}
			for _, res := range reservations {
				if rerr := tx.TransitionReservation(ctx, res.ID, ReservationStatusReleased); rerr != nil {
					return rerr
				}
			}
			return tx.UpdateLaybyStatus(ctx, layby.ID, LaybyStatusCancelled)
		})
		return nil, fmt.Errorf("layby: post charge: %w", err)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetChargeTransaction(ctx, layby.ID, charge.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("layby: link charge: %w", err)
	}

	s.recordAudit(ctx, businessID, "layby:create", layby.ID, map[string]any{
		"number": number,
		"total":  total.String(),
	})
	return s.repo.Get(ctx, businessID, layby.ID)
}

// Cancel releases every reservation back to available stock and
// reverses whatever is still outstanding on the layby's charge.
func (s *Service) Cancel(ctx context.Context, businessID, laybyID int64) (*Layby, error) {
	var cancelled *Layby
	var released []StockReservation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		layby, err := tx.GetLaybyForUpdate(ctx, businessID, laybyID)
		if err != nil {
			return err
		}
		if layby.Status != LaybyStatusOpen {
			return ErrLaybyNotOpen
		}
		reservations, err := tx.ListReservationsForUpdate(ctx, laybyID)
		if err != nil {
			return err
		}
		for _, res := range reservations {
			if res.Status != ReservationStatusReserved {
				continue
			}
			if err := tx.TransitionReservation(ctx, res.ID, ReservationStatusReleased); err != nil {
				return err
			}
			released = append(released, res)
		}
		if err := tx.UpdateLaybyStatus(ctx, laybyID, LaybyStatusCancelled); err != nil {
			return err
		}
		cancelled = layby
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("layby: cancel: %w", err)
	}

	for _, res := range released {
		if _, err := s.stock.Release(ctx, businessID, inventory.MovementInput{
			LocationID: res.LocationID,
			ProductID:  res.ProductID,
			Quantity:   res.Qty,
			Reference:  cancelled.Number,
			Note:       "layby cancelled",
		}); err != nil {
			return nil, fmt.Errorf("layby: release stock: %w", err)
		}
	}

	if cancelled.ChargeTransactionID != 0 {
		outstanding, err := s.ledger.ChargeOutstanding(ctx, businessID, cancelled.AccountID, cancelled.ChargeTransactionID)
		if err != nil {
			return nil, fmt.Errorf("layby: charge outstanding: %w", err)
		}
		if outstanding.IsPositive() {
			if _, err := s.ledger.CreateAdjustment(ctx, businessID, cancelled.AccountID, accounts.AdjustmentRequest{
				Amount: outstanding.Neg(),
				Reason: fmt.Sprintf("layby %s cancelled", cancelled.Number),
			}); err != nil {
				return nil, fmt.Errorf("layby: reverse charge: %w", err)
			}
		}
	}

	s.recordAudit(ctx, businessID, "layby:cancel", laybyID, nil)
	return s.repo.Get(ctx, businessID, laybyID)
}

// Complete hands the goods over: only paid-off laybys qualify, every
// reservation transitions to collected and the stock leaves inventory.
func (s *Service) Complete(ctx context.Context, businessID, laybyID int64) (*Layby, error) {
	layby, err := s.repo.Get(ctx, businessID, laybyID)
	if err != nil {
		return nil, err
	}
	if layby.Status != LaybyStatusOpen {
		return nil, ErrLaybyNotOpen
	}
	outstanding, err := s.ledger.ChargeOutstanding(ctx, businessID, layby.AccountID, layby.ChargeTransactionID)
	if err != nil {
		return nil, fmt.Errorf("layby: charge outstanding: %w", err)
	}
	if outstanding.IsPositive() {
		return nil, ErrNotPaidOff
	}

	var collected []StockReservation
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.GetLaybyForUpdate(ctx, businessID, laybyID)
		if err != nil {
			return err
		}
		if locked.Status != LaybyStatusOpen {
			return ErrLaybyNotOpen
		}
		reservations, err := tx.ListReservationsForUpdate(ctx, laybyID)
		if err != nil {
			return err
		}
		for _, res := range reservations {
			if res.Status != ReservationStatusReserved {
				continue
			}
			if err := tx.TransitionReservation(ctx, res.ID, ReservationStatusCollected); err != nil {
				return err
			}
			collected = append(collected, res)
		}
		return tx.UpdateLaybyStatus(ctx, laybyID, LaybyStatusCompleted)
	})
	if err != nil {
		return nil, fmt.Errorf("layby: complete: %w", err)
	}

	for _, res := range collected {
		if _, err := s.stock.Collect(ctx, businessID, inventory.MovementInput{
			LocationID: res.LocationID,
			ProductID:  res.ProductID,
			Quantity:   res.Qty,
			Reference:  layby.Number,
			Note:       "layby collected",
		}); err != nil {
			return nil, fmt.Errorf("layby: collect stock: %w", err)
		}
	}

	s.recordAudit(ctx, businessID, "layby:complete", laybyID, nil)
	return s.repo.Get(ctx, businessID, laybyID)
}

// Get fetches one layby with lines and reservations.
func (s *Service) Get(ctx context.Context, businessID, laybyID int64) (*Layby, error) {
	return s.repo.Get(ctx, businessID, laybyID)
}

// List lists laybys.
func (s *Service) List(ctx context.Context, businessID int64, req ListLaybysRequest) ([]Layby, int, error) {
	return s.repo.List(ctx, businessID, req)
}

// mergeLines folds duplicate (product, location) lines into a single
// reservation quantity. The stored lines keep their original shape.
func mergeLines(lines []LineInput) []StockReservation {
	index := make(map[string]int)
	var merged []StockReservation
	for _, line := range lines {
		key := fmt.Sprintf("%d:%d", line.ProductID, line.LocationID)
		if i, ok := index[key]; ok {
			merged[i].Qty = merged[i].Qty.Add(line.Qty)
			continue
		}
		index[key] = len(merged)
		merged = append(merged, StockReservation{
			ProductID:  line.ProductID,
			LocationID: line.LocationID,
			Qty:        line.Qty,
			Status:     ReservationStatusReserved,
		})
	}
	return merged
}

func (s *Service) releaseStock(ctx context.Context, businessID int64, number string, merged []StockReservation) {
	for _, m := range merged {
		_, _ = s.stock.Release(ctx, businessID, inventory.MovementInput{
			LocationID: m.LocationID,
			ProductID:  m.ProductID,
			Quantity:   m.Qty,
			Reference:  number,
			Note:       "layby create rolled back",
		})
	}
}

func (s *Service) recordAudit(ctx context.Context, businessID int64, action string, laybyID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		BusinessID: businessID,
		ActorID:    shared.ActorFromContext(ctx),
		Action:     action,
		Entity:     "layby",
		EntityID:   fmt.Sprintf("%d", laybyID),
		Meta:       meta,
	})
}

func laybyNumber() string {
	return "LBY-" + strings.ToUpper(uuid.NewString()[:8])
}
