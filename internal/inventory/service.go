package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/storeline/storeline/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBalance(ctx context.Context, businessID, locationID, productID int64) (StockBalance, error)
	ListBalances(ctx context.Context, businessID, locationID int64, limit, offset int) ([]StockBalance, error)
	ListMovements(ctx context.Context, businessID int64, filter MovementFilter) ([]StockMovement, error)
}

// TxRepository exposes the transactional operations used by movements.
type TxRepository interface {
	GetBalanceForUpdate(ctx context.Context, businessID, locationID, productID int64) (StockBalance, error)
	UpsertBalance(ctx context.Context, balance StockBalance) error
	InsertMovement(ctx context.Context, movement StockMovement) (int64, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates stock movements. Every operation funnels through
// postMovement so the movement ledger and the balance always change
// together.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
}

// NewService builds a Service.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem}
}

// MovementInput describes a requested stock movement.
type MovementInput struct {
	LocationID int64
	ProductID  int64
	Quantity   decimal.Decimal
	Reference  string
	Note       string
}

// Receive records inbound stock.
func (s *Service) Receive(ctx context.Context, businessID int64, input MovementInput) (StockMovement, error) {
	if !input.Quantity.IsPositive() {
		return StockMovement{}, ErrInvalidQuantity
	}
	return s.postMovement(ctx, businessID, MovementTypeIn, input)
}

// Issue records outbound stock, e.g. a counter sale. The quantity must
// fit within available stock.
func (s *Service) Issue(ctx context.Context, businessID int64, input MovementInput) (StockMovement, error) {
	if !input.Quantity.IsPositive() {
		return StockMovement{}, ErrInvalidQuantity
	}
	return s.postMovement(ctx, businessID, MovementTypeOut, input)
}

// Adjust records a signed manual correction.
func (s *Service) Adjust(ctx context.Context, businessID int64, input MovementInput) (StockMovement, error) {
	if input.Quantity.IsZero() {
		return StockMovement{}, ErrInvalidQuantity
	}
	return s.postMovement(ctx, businessID, MovementTypeAdjust, input)
}

// Reserve holds stock against a layby without moving it.
func (s *Service) Reserve(ctx context.Context, businessID int64, input MovementInput) (StockMovement, error) {
	if !input.Quantity.IsPositive() {
		return StockMovement{}, ErrInvalidQuantity
	}
	return s.postMovement(ctx, businessID, MovementTypeReserve, input)
}

// Release returns held stock to available.
func (s *Service) Release(ctx context.Context, businessID int64, input MovementInput) (StockMovement, error) {
	if !input.Quantity.IsPositive() {
		return StockMovement{}, ErrInvalidQuantity
	}
	return s.postMovement(ctx, businessID, MovementTypeRelease, input)
}

// Collect removes held stock on customer pickup: both on-hand and
// reserved drop.
func (s *Service) Collect(ctx context.Context, businessID int64, input MovementInput) (StockMovement, error) {
	if !input.Quantity.IsPositive() {
		return StockMovement{}, ErrInvalidQuantity
	}
	return s.postMovement(ctx, businessID, MovementTypeCollect, input)
}

// GetBalance fetches one stock balance.
func (s *Service) GetBalance(ctx context.Context, businessID, locationID, productID int64) (StockBalance, error) {
	return s.repo.GetBalance(ctx, businessID, locationID, productID)
}

// ListBalances lists balances for a business, optionally scoped to a
// location.
func (s *Service) ListBalances(ctx context.Context, businessID, locationID int64, limit, offset int) ([]StockBalance, error) {
	return s.repo.ListBalances(ctx, businessID, locationID, limit, offset)
}

// ListMovements lists movement ledger lines.
func (s *Service) ListMovements(ctx context.Context, businessID int64, filter MovementFilter) ([]StockMovement, error) {
	return s.repo.ListMovements(ctx, businessID, filter)
}

// ReserveAll atomically reserves every line or none: availability is
// checked for all lines under lock before the first reservation is
// written.
func (s *Service) ReserveAll(ctx context.Context, businessID int64, inputs []MovementInput) ([]StockMovement, error) {
	for _, input := range inputs {
		if !input.Quantity.IsPositive() {
			return nil, ErrInvalidQuantity
		}
	}
	var movements []StockMovement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		balances := make([]StockBalance, len(inputs))
		for i, input := range inputs {
			balance, err := s.lockBalance(ctx, tx, businessID, input)
			if err != nil {
				return err
			}
			if input.Quantity.GreaterThan(balance.Available()) {
				return fmt.Errorf("%w: product %d at location %d", ErrInsufficientStock, input.ProductID, input.LocationID)
			}
			balances[i] = balance
		}
		now := time.Now().UTC()
		for i, input := range inputs {
			balance := balances[i]
			balance.Reserved = balance.Reserved.Add(input.Quantity)
			movement, err := s.writeMovement(ctx, tx, balance, MovementTypeReserve, input, now)
			if err != nil {
				return err
			}
			movements = append(movements, movement)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return movements, nil
}

func (s *Service) postMovement(ctx context.Context, businessID int64, movementType MovementType, input MovementInput) (StockMovement, error) {
	if businessID == 0 {
		return StockMovement{}, shared.ErrTenantRequired
	}
	if input.ProductID == 0 {
		return StockMovement{}, errors.New("inventory: product required")
	}

	insertedKey := false
	key := fmt.Sprintf("%s:%s:%d:%d:%d", movementType, input.Reference, businessID, input.LocationID, input.ProductID)
	if s.idempotency != nil && input.Reference != "" {
		if err := s.idempotency.CheckAndInsert(ctx, key, "inventory"); err != nil {
			return StockMovement{}, err
		}
		insertedKey = true
	}

	var movement StockMovement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		balance, err := s.lockBalance(ctx, tx, businessID, input)
		if err != nil {
			return err
		}
		switch movementType {
		case MovementTypeIn:
			balance.OnHand = balance.OnHand.Add(input.Quantity)
		case MovementTypeOut:
			if input.Quantity.GreaterThan(balance.Available()) {
				return ErrInsufficientStock
			}
			balance.OnHand = balance.OnHand.Sub(input.Quantity)
		case MovementTypeAdjust:
			newOnHand := balance.OnHand.Add(input.Quantity)
			if newOnHand.LessThan(balance.Reserved) {
				return ErrInsufficientStock
			}
			balance.OnHand = newOnHand
		case MovementTypeReserve:
			if input.Quantity.GreaterThan(balance.Available()) {
				return ErrInsufficientStock
			}
			balance.Reserved = balance.Reserved.Add(input.Quantity)
		case MovementTypeRelease:
			if input.Quantity.GreaterThan(balance.Reserved) {
				return ErrReservedExceeded
			}
			balance.Reserved = balance.Reserved.Sub(input.Quantity)
		case MovementTypeCollect:
			if input.Quantity.GreaterThan(balance.Reserved) {
				return ErrReservedExceeded
			}
			balance.Reserved = balance.Reserved.Sub(input.Quantity)
			balance.OnHand = balance.OnHand.Sub(input.Quantity)
		default:
			return fmt.Errorf("inventory: unknown movement type %q", movementType)
		}
		movement, err = s.writeMovement(ctx, tx, balance, movementType, input, time.Now().UTC())
		return err
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return StockMovement{}, err
	}
	s.recordAudit(ctx, businessID, movementType, input)
	return movement, nil
}

func (s *Service) lockBalance(ctx context.Context, tx TxRepository, businessID int64, input MovementInput) (StockBalance, error) {
	balance, err := tx.GetBalanceForUpdate(ctx, businessID, input.LocationID, input.ProductID)
	if err != nil {
		if errors.Is(err, ErrBalanceNotFound) {
			return StockBalance{
				BusinessID: businessID,
				LocationID: input.LocationID,
				ProductID:  input.ProductID,
				OnHand:     decimal.Zero,
				Reserved:   decimal.Zero,
			}, nil
		}
		return StockBalance{}, err
	}
	return balance, nil
}

func (s *Service) writeMovement(ctx context.Context, tx TxRepository, balance StockBalance, movementType MovementType, input MovementInput, now time.Time) (StockMovement, error) {
	if err := tx.UpsertBalance(ctx, balance); err != nil {
		return StockMovement{}, err
	}
	movement := StockMovement{
		BusinessID:    balance.BusinessID,
		LocationID:    balance.LocationID,
		ProductID:     balance.ProductID,
		Type:          movementType,
		Quantity:      input.Quantity,
		OnHandAfter:   balance.OnHand,
		ReservedAfter: balance.Reserved,
		Reference:     input.Reference,
		Note:          input.Note,
		CreatedBy:     shared.ActorFromContext(ctx),
		CreatedAt:     now,
	}
	id, err := tx.InsertMovement(ctx, movement)
	if err != nil {
		return StockMovement{}, err
	}
	movement.ID = id
	return movement, nil
}

func (s *Service) recordAudit(ctx context.Context, businessID int64, movementType MovementType, input MovementInput) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		BusinessID: businessID,
		ActorID:    shared.ActorFromContext(ctx),
		Action:     fmt.Sprintf("inventory:%s", movementType),
		Entity:     "stock_movement",
		EntityID:   fmt.Sprintf("%d:%d", input.LocationID, input.ProductID),
		Meta: map[string]any{
			"location_id": input.LocationID,
			"product_id":  input.ProductID,
			"qty":         input.Quantity.String(),
			"note":        input.Note,
		},
	})
}
