package invoices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storeline/storeline/internal/platform/db"
)

// Repository persists invoices in PostgreSQL.
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

const invoiceColumns = `id, business_id, account_id, number, total, status,
       COALESCE(charge_transaction_id, 0), due_at, issued_at, note, created_by, created_at, updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(
		&inv.ID, &inv.BusinessID, &inv.AccountID, &inv.Number, &inv.Total, &inv.Status,
		&inv.ChargeTransactionID, &inv.DueAt, &inv.IssuedAt, &inv.Note, &inv.CreatedBy,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func (r *Repository) Get(ctx context.Context, businessID, invoiceID int64) (*Invoice, error) {
	query := fmt.Sprintf(`SELECT %s FROM invoices WHERE business_id = $1 AND id = $2`, invoiceColumns)
	return scanInvoice(r.pool.QueryRow(ctx, query, businessID, invoiceID))
}

func (r *Repository) List(ctx context.Context, businessID int64, req ListInvoicesRequest) ([]Invoice, int, error) {
	conditions := []string{"business_id = $1"}
	args := []interface{}{businessID}
	argPos := 2

	if req.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, string(*req.Status))
		argPos++
	}
	if req.AccountID != 0 {
		conditions = append(conditions, fmt.Sprintf("account_id = $%d", argPos))
		args = append(args, req.AccountID)
		argPos++
	}

	whereClause := "WHERE " + conditions[0]
	for i := 1; i < len(conditions); i++ {
		whereClause += " AND " + conditions[i]
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM invoices %s", whereClause)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM invoices %s
		ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`,
		invoiceColumns, whereClause, limit, req.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, total, rows.Err()
}

// ListOverdueCandidates feeds the overdue scan. It deliberately ignores
// tenancy: the scan runs for every business.
func (r *Repository) ListOverdueCandidates(ctx context.Context, asOf time.Time) ([]Invoice, error) {
	query := fmt.Sprintf(`SELECT %s FROM invoices
		WHERE status = 'POSTED' AND due_at IS NOT NULL AND due_at < $1
		ORDER BY business_id, id`, invoiceColumns)
	rows, err := r.pool.Query(ctx, query, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

type txRepo struct {
	tx pgx.Tx
}

func (r *txRepo) InsertInvoice(ctx context.Context, invoice Invoice) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO invoices (business_id, account_id, number, total, status, note, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id`,
		invoice.BusinessID, invoice.AccountID, invoice.Number, invoice.Total,
		string(invoice.Status), invoice.Note, invoice.CreatedBy,
	).Scan(&id)
	return id, err
}

func (r *txRepo) GetInvoiceForUpdate(ctx context.Context, businessID, invoiceID int64) (*Invoice, error) {
	query := fmt.Sprintf(`SELECT %s FROM invoices
		WHERE business_id = $1 AND id = $2 FOR UPDATE`, invoiceColumns)
	return scanInvoice(r.tx.QueryRow(ctx, query, businessID, invoiceID))
}

// TransitionStatus moves the row only when it still holds from.
func (r *txRepo) TransitionStatus(ctx context.Context, invoiceID int64, from, to InvoiceStatus) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE invoices SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		string(to), invoiceID, string(from))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func (r *txRepo) MarkPosted(ctx context.Context, invoiceID, transactionID int64, dueAt *time.Time, issuedAt time.Time) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE invoices
		SET status = 'POSTED', charge_transaction_id = $1, due_at = $2, issued_at = $3, updated_at = NOW()
		WHERE id = $4 AND status = 'DRAFT'`,
		transactionID, dueAt, issuedAt, invoiceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotDraft
	}
	return nil
}
