package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storeline/storeline/internal/platform/db"
)

// Repository persists stock balances and movements in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const balanceColumns = `business_id, location_id, product_id, on_hand, reserved, updated_at`

const movementColumns = `id, business_id, location_id, product_id, type, quantity,
       on_hand_after, reserved_after, reference, note, created_by, created_at`

func scanBalance(row pgx.Row) (StockBalance, error) {
	var b StockBalance
	err := row.Scan(&b.BusinessID, &b.LocationID, &b.ProductID, &b.OnHand, &b.Reserved, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockBalance{}, ErrBalanceNotFound
		}
		return StockBalance{}, err
	}
	return b, nil
}

func (r *Repository) GetBalance(ctx context.Context, businessID, locationID, productID int64) (StockBalance, error) {
	query := fmt.Sprintf(`SELECT %s FROM stock_balances
		WHERE business_id = $1 AND location_id = $2 AND product_id = $3`, balanceColumns)
	return scanBalance(r.pool.QueryRow(ctx, query, businessID, locationID, productID))
}

func (r *Repository) ListBalances(ctx context.Context, businessID, locationID int64, limit, offset int) ([]StockBalance, error) {
	if limit <= 0 {
		limit = 200
	}
	query := fmt.Sprintf(`SELECT %s FROM stock_balances WHERE business_id = $1`, balanceColumns)
	args := []interface{}{businessID}
	if locationID != 0 {
		query += " AND location_id = $2"
		args = append(args, locationID)
	}
	query += fmt.Sprintf(" ORDER BY location_id, product_id LIMIT %d OFFSET %d", limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []StockBalance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

func (r *Repository) ListMovements(ctx context.Context, businessID int64, filter MovementFilter) ([]StockMovement, error) {
	conditions := []string{"business_id = $1"}
	args := []interface{}{businessID}
	argPos := 2

	if filter.LocationID != 0 {
		conditions = append(conditions, fmt.Sprintf("location_id = $%d", argPos))
		args = append(args, filter.LocationID)
		argPos++
	}
	if filter.ProductID != 0 {
		conditions = append(conditions, fmt.Sprintf("product_id = $%d", argPos))
		args = append(args, filter.ProductID)
		argPos++
	}
	if filter.Type != nil {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argPos))
		args = append(args, string(*filter.Type))
		argPos++
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argPos))
		args = append(args, filter.From)
		argPos++
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", argPos))
		args = append(args, filter.To)
		argPos++
	}

	whereClause := "WHERE " + conditions[0]
	for i := 1; i < len(conditions); i++ {
		whereClause += " AND " + conditions[i]
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}

	query := fmt.Sprintf(`SELECT %s FROM stock_movements %s
		ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`,
		movementColumns, whereClause, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []StockMovement
	for rows.Next() {
		var m StockMovement
		err := rows.Scan(
			&m.ID, &m.BusinessID, &m.LocationID, &m.ProductID, &m.Type, &m.Quantity,
			&m.OnHandAfter, &m.ReservedAfter, &m.Reference, &m.Note, &m.CreatedBy, &m.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

type txRepo struct {
	tx pgx.Tx
}

func (r *txRepo) GetBalanceForUpdate(ctx context.Context, businessID, locationID, productID int64) (StockBalance, error) {
	query := fmt.Sprintf(`SELECT %s FROM stock_balances
		WHERE business_id = $1 AND location_id = $2 AND product_id = $3
		FOR UPDATE`, balanceColumns)
	return scanBalance(r.tx.QueryRow(ctx, query, businessID, locationID, productID))
}

func (r *txRepo) UpsertBalance(ctx context.Context, balance StockBalance) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO stock_balances (business_id, location_id, product_id, on_hand, reserved, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (business_id, location_id, product_id)
		DO UPDATE SET on_hand = EXCLUDED.on_hand, reserved = EXCLUDED.reserved, updated_at = NOW()`,
		balance.BusinessID, balance.LocationID, balance.ProductID, balance.OnHand, balance.Reserved)
	return err
}

func (r *txRepo) InsertMovement(ctx context.Context, movement StockMovement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO stock_movements (
			business_id, location_id, product_id, type, quantity,
			on_hand_after, reserved_after, reference, note, created_by, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id`,
		movement.BusinessID, movement.LocationID, movement.ProductID, string(movement.Type),
		movement.Quantity, movement.OnHandAfter, movement.ReservedAfter,
		movement.Reference, movement.Note, movement.CreatedBy, movement.CreatedAt,
	).Scan(&id)
	return id, err
}
