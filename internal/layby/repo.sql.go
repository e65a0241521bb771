package layby

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storeline/storeline/internal/platform/db"
)

// Repository persists laybys, lines and reservations in PostgreSQL.
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

const laybyColumns = `id, business_id, customer_id, account_id, number, status, total,
       COALESCE(charge_transaction_id, 0), note, created_by, created_at, updated_at`

func scanLayby(row pgx.Row) (*Layby, error) {
	var l Layby
	err := row.Scan(
		&l.ID, &l.BusinessID, &l.CustomerID, &l.AccountID, &l.Number, &l.Status,
		&l.Total, &l.ChargeTransactionID, &l.Note, &l.CreatedBy, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (r *Repository) Get(ctx context.Context, businessID, laybyID int64) (*Layby, error) {
	query := fmt.Sprintf(`SELECT %s FROM laybys WHERE business_id = $1 AND id = $2`, laybyColumns)
	layby, err := scanLayby(r.pool.QueryRow(ctx, query, businessID, laybyID))
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, layby_id, product_id, location_id, qty, unit_price
		FROM layby_lines WHERE layby_id = $1 ORDER BY id`, laybyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var line LaybyLine
		if err := rows.Scan(&line.ID, &line.LaybyID, &line.ProductID, &line.LocationID, &line.Qty, &line.UnitPrice); err != nil {
			return nil, err
		}
		layby.Lines = append(layby.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	resRows, err := r.pool.Query(ctx, `
		SELECT id, layby_id, product_id, location_id, qty, status, created_at, updated_at
		FROM stock_reservations WHERE layby_id = $1 ORDER BY id`, laybyID)
	if err != nil {
		return nil, err
	}
	defer resRows.Close()
	for resRows.Next() {
		var res StockReservation
		if err := resRows.Scan(&res.ID, &res.LaybyID, &res.ProductID, &res.LocationID, &res.Qty, &res.Status, &res.CreatedAt, &res.UpdatedAt); err != nil {
			return nil, err
		}
		layby.Reservations = append(layby.Reservations, res)
	}
	return layby, resRows.Err()
}

func (r *Repository) List(ctx context.Context, businessID int64, req ListLaybysRequest) ([]Layby, int, error) {
	conditions := []string{"business_id = $1"}
	args := []interface{}{businessID}
	argPos := 2

	if req.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, string(*req.Status))
		argPos++
	}
	if req.CustomerID != 0 {
		conditions = append(conditions, fmt.Sprintf("customer_id = $%d", argPos))
		args = append(args, req.CustomerID)
		argPos++
	}

	whereClause := "WHERE " + conditions[0]
	for i := 1; i < len(conditions); i++ {
		whereClause += " AND " + conditions[i]
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM laybys %s", whereClause)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM laybys %s
		ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`,
		laybyColumns, whereClause, limit, req.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var laybys []Layby
	for rows.Next() {
		l, err := scanLayby(rows)
		if err != nil {
			return nil, 0, err
		}
		laybys = append(laybys, *l)
	}
	return laybys, total, rows.Err()
}

type txRepo struct {
	tx pgx.Tx
}

func (r *txRepo) InsertLayby(ctx context.Context, layby Layby) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO laybys (business_id, customer_id, account_id, number, status, total, note, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id`,
		layby.BusinessID, layby.CustomerID, layby.AccountID, layby.Number,
		string(layby.Status), layby.Total, layby.Note, layby.CreatedBy,
	).Scan(&id)
	return id, err
}

func (r *txRepo) InsertLine(ctx context.Context, line LaybyLine) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO layby_lines (layby_id, product_id, location_id, qty, unit_price)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id`,
		line.LaybyID, line.ProductID, line.LocationID, line.Qty, line.UnitPrice,
	).Scan(&id)
	return id, err
}

// UpsertReservation inserts or accumulates onto the unique
// (layby, product, location) row.
func (r *txRepo) UpsertReservation(ctx context.Context, reservation StockReservation) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO stock_reservations (layby_id, product_id, location_id, qty, status)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (layby_id, product_id, location_id)
		DO UPDATE SET qty = stock_reservations.qty + EXCLUDED.qty, updated_at = NOW()
		RETURNING id`,
		reservation.LaybyID, reservation.ProductID, reservation.LocationID,
		reservation.Qty, string(reservation.Status),
	).Scan(&id)
	return id, err
}

func (r *txRepo) GetLaybyForUpdate(ctx context.Context, businessID, laybyID int64) (*Layby, error) {
	query := fmt.Sprintf(`SELECT %s FROM laybys
		WHERE business_id = $1 AND id = $2 FOR UPDATE`, laybyColumns)
	return scanLayby(r.tx.QueryRow(ctx, query, businessID, laybyID))
}

func (r *txRepo) UpdateLaybyStatus(ctx context.Context, laybyID int64, status LaybyStatus) error {
	_, err := r.tx.Exec(ctx,
		`UPDATE laybys SET status = $1, updated_at = NOW() WHERE id = $2`,
		string(status), laybyID)
	return err
}

func (r *txRepo) SetChargeTransaction(ctx context.Context, laybyID, transactionID int64) error {
	_, err := r.tx.Exec(ctx,
		`UPDATE laybys SET charge_transaction_id = $1, updated_at = NOW() WHERE id = $2`,
		transactionID, laybyID)
	return err
}

func (r *txRepo) ListReservationsForUpdate(ctx context.Context, laybyID int64) ([]StockReservation, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT id, layby_id, product_id, location_id, qty, status, created_at, updated_at
		FROM stock_reservations WHERE layby_id = $1 ORDER BY id FOR UPDATE`, laybyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reservations []StockReservation
	for rows.Next() {
		var res StockReservation
		if err := rows.Scan(&res.ID, &res.LaybyID, &res.ProductID, &res.LocationID, &res.Qty, &res.Status, &res.CreatedAt, &res.UpdatedAt); err != nil {
			return nil, err
		}
		reservations = append(reservations, res)
	}
	return reservations, rows.Err()
}

// TransitionReservation leaves RESERVED only; terminal rows are never
// rewritten.
func (r *txRepo) TransitionReservation(ctx context.Context, reservationID int64, to ReservationStatus) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE stock_reservations SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'RESERVED'`,
		string(to), reservationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrReservationFinal
	}
	return nil
}
