package statements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopspring/decimal"
)

// Repository persists statements and reads the account ledger for
// generation.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// BalanceBefore sums ledger amounts strictly before the cutoff.
func (r *Repository) BalanceBefore(ctx context.Context, businessID, accountID int64, at time.Time) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(t.amount), 0)
		FROM account_transactions t
		JOIN customer_accounts a ON a.id = t.account_id
		WHERE a.business_id = $1 AND t.account_id = $2 AND t.created_at < $3`,
		businessID, accountID, at,
	).Scan(&balance)
	return balance, err
}

// PeriodTotals splits the period's ledger rows by sign: positive rows
// are charges, negated negative rows are payments.
func (r *Repository) PeriodTotals(ctx context.Context, businessID, accountID int64, start, end time.Time) (decimal.Decimal, decimal.Decimal, error) {
	var charges, payments decimal.Decimal
	err := r.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(t.amount) FILTER (WHERE t.amount > 0), 0),
			COALESCE(-SUM(t.amount) FILTER (WHERE t.amount < 0), 0)
		FROM account_transactions t
		JOIN customer_accounts a ON a.id = t.account_id
		WHERE a.business_id = $1 AND t.account_id = $2
		  AND t.created_at >= $3 AND t.created_at <= $4`,
		businessID, accountID, start, end,
	).Scan(&charges, &payments)
	return charges, payments, err
}

// OutstandingCharges lists charges with an unallocated remainder.
func (r *Repository) OutstandingCharges(ctx context.Context, businessID, accountID int64) ([]OutstandingCharge, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.id, t.amount, COALESCE(SUM(pa.amount), 0) AS allocated, t.due_at, t.created_at
		FROM account_transactions t
		JOIN customer_accounts a ON a.id = t.account_id
		LEFT JOIN payment_allocations pa ON pa.transaction_id = t.id
		WHERE a.business_id = $1 AND t.account_id = $2 AND t.type = 'CHARGE'
		GROUP BY t.id, t.amount, t.due_at, t.created_at
		HAVING t.amount > COALESCE(SUM(pa.amount), 0)
		ORDER BY t.created_at, t.id`,
		businessID, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var charges []OutstandingCharge
	for rows.Next() {
		var c OutstandingCharge
		if err := rows.Scan(&c.TransactionID, &c.Amount, &c.Allocated, &c.DueAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		charges = append(charges, c)
	}
	return charges, rows.Err()
}

const statementColumns = `id, business_id, account_id, number, period_start, period_end,
       opening_balance, total_charges, total_payments, closing_balance,
       aging_current, aging_days_30, aging_days_60, aging_days_90_plus,
       created_at, sent_at`

func scanStatement(row pgx.Row) (*AccountStatement, error) {
	var s AccountStatement
	err := row.Scan(
		&s.ID, &s.BusinessID, &s.AccountID, &s.Number, &s.PeriodStart, &s.PeriodEnd,
		&s.OpeningBalance, &s.TotalCharges, &s.TotalPayments, &s.ClosingBalance,
		&s.AgingCurrent, &s.AgingDays30, &s.AgingDays60, &s.AgingDays90,
		&s.CreatedAt, &s.SentAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *Repository) InsertStatement(ctx context.Context, statement AccountStatement) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO account_statements (
			business_id, account_id, number, period_start, period_end,
			opening_balance, total_charges, total_payments, closing_balance,
			aging_current, aging_days_30, aging_days_60, aging_days_90_plus
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id`,
		statement.BusinessID, statement.AccountID, statement.Number,
		statement.PeriodStart, statement.PeriodEnd,
		statement.OpeningBalance, statement.TotalCharges, statement.TotalPayments,
		statement.ClosingBalance, statement.AgingCurrent, statement.AgingDays30,
		statement.AgingDays60, statement.AgingDays90,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrAlreadyExists
		}
		return 0, err
	}
	return id, nil
}

func (r *Repository) Get(ctx context.Context, businessID, statementID int64) (*AccountStatement, error) {
	query := fmt.Sprintf(`SELECT %s FROM account_statements
		WHERE business_id = $1 AND id = $2`, statementColumns)
	return scanStatement(r.pool.QueryRow(ctx, query, businessID, statementID))
}

func (r *Repository) List(ctx context.Context, businessID, accountID int64, limit, offset int) ([]AccountStatement, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM account_statements
		WHERE business_id = $1 AND account_id = $2
		ORDER BY period_end DESC, id DESC LIMIT %d OFFSET %d`,
		statementColumns, limit, offset)

	rows, err := r.pool.Query(ctx, query, businessID, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var statements []AccountStatement
	for rows.Next() {
		s, err := scanStatement(rows)
		if err != nil {
			return nil, err
		}
		statements = append(statements, *s)
	}
	return statements, rows.Err()
}

// MarkSent stamps sent_at once; a second send is a conflict.
func (r *Repository) MarkSent(ctx context.Context, businessID, statementID int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE account_statements SET sent_at = $1
		WHERE business_id = $2 AND id = $3 AND sent_at IS NULL`,
		at, businessID, statementID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadySent
	}
	return nil
}

// ListActiveAccounts returns every active account across businesses.
func (r *Repository) ListActiveAccounts(ctx context.Context) ([]AccountRef, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT business_id, id FROM customer_accounts
		WHERE status = 'ACTIVE' ORDER BY business_id, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []AccountRef
	for rows.Next() {
		var ref AccountRef
		if err := rows.Scan(&ref.BusinessID, &ref.AccountID); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
