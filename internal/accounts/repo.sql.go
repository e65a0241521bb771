package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for the ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx wraps the callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("accounts: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("accounts: commit tx: %w", err)
	}
	return nil
}

const accountColumns = `id, business_id, customer_id, credit_limit, current_balance, payment_terms_days, status, created_at, updated_at`

func scanAccount(row pgx.Row) (*CustomerAccount, error) {
	var a CustomerAccount
	err := row.Scan(&a.ID, &a.BusinessID, &a.CustomerID, &a.CreditLimit, &a.CurrentBalance, &a.PaymentTermsDays, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAccount fetches one account scoped to a business.
func (r *Repository) GetAccount(ctx context.Context, businessID, accountID int64) (*CustomerAccount, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM customer_accounts WHERE business_id=$1 AND id=$2`, businessID, accountID)
	return scanAccount(row)
}

// GetAccountByCustomer fetches the customer's account.
func (r *Repository) GetAccountByCustomer(ctx context.Context, businessID, customerID int64) (*CustomerAccount, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM customer_accounts WHERE business_id=$1 AND customer_id=$2`, businessID, customerID)
	return scanAccount(row)
}

// ListAccounts returns accounts for a business with an optional status filter.
func (r *Repository) ListAccounts(ctx context.Context, businessID int64, req ListAccountsRequest) ([]CustomerAccount, int, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	args := []any{businessID}
	query := `SELECT ` + accountColumns + ` FROM customer_accounts WHERE business_id=$1`
	countQuery := `SELECT COUNT(*) FROM customer_accounts WHERE business_id=$1`
	if req.Status != nil {
		args = append(args, *req.Status)
		query += ` AND status=$2`
		countQuery += ` AND status=$2`
	}
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query += fmt.Sprintf(` ORDER BY id LIMIT %d OFFSET %d`, limit, req.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var accounts []CustomerAccount
	for rows.Next() {
		var a CustomerAccount
		if err := rows.Scan(&a.ID, &a.BusinessID, &a.CustomerID, &a.CreditLimit, &a.CurrentBalance, &a.PaymentTermsDays, &a.Status, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, 0, err
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return accounts, total, nil
}

const transactionColumns = `t.id, t.account_id, t.type, t.amount, t.balance_after, t.reference, t.note, t.due_at, t.created_by, t.created_at`

// ListTransactions returns ledger lines for an account, oldest first.
func (r *Repository) ListTransactions(ctx context.Context, businessID, accountID int64, req ListTransactionsRequest) ([]AccountTransaction, int, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	args := []any{businessID, accountID}
	filter := `FROM account_transactions t
JOIN customer_accounts a ON a.id = t.account_id
WHERE a.business_id=$1 AND t.account_id=$2`
	if req.Type != nil {
		args = append(args, *req.Type)
		filter += ` AND t.type=$3`
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) `+filter, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + transactionColumns + ` ` + filter + fmt.Sprintf(` ORDER BY t.created_at, t.id LIMIT %d OFFSET %d`, limit, req.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var txns []AccountTransaction
	for rows.Next() {
		var t AccountTransaction
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Type, &t.Amount, &t.BalanceAfter, &t.Reference, &t.Note, &t.DueAt, &t.CreatedBy, &t.CreatedAt); err != nil {
			return nil, 0, err
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

const openChargeQuery = `SELECT ` + transactionColumns + `, COALESCE(SUM(pa.amount), 0) AS allocated
FROM account_transactions t
JOIN customer_accounts a ON a.id = t.account_id
LEFT JOIN payment_allocations pa ON pa.transaction_id = t.id
WHERE a.business_id=$1 AND t.account_id=$2 AND t.type='CHARGE'
GROUP BY t.id
HAVING t.amount > COALESCE(SUM(pa.amount), 0)
ORDER BY t.created_at, t.id`

// ListOpenCharges returns under-allocated charges, oldest first.
func (r *Repository) ListOpenCharges(ctx context.Context, businessID, accountID int64) ([]OpenCharge, error) {
	rows, err := r.pool.Query(ctx, openChargeQuery, businessID, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOpenCharges(rows)
}

func collectOpenCharges(rows pgx.Rows) ([]OpenCharge, error) {
	var charges []OpenCharge
	for rows.Next() {
		var c OpenCharge
		t := &c.Transaction
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Type, &t.Amount, &t.BalanceAfter, &t.Reference, &t.Note, &t.DueAt, &t.CreatedBy, &t.CreatedAt, &c.Allocated); err != nil {
			return nil, err
		}
		charges = append(charges, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return charges, nil
}

const paymentColumns = `id, account_id, number, amount, method, reference, received_at, created_at`

// GetPayment returns a payment with allocations fully materialized.
func (r *Repository) GetPayment(ctx context.Context, businessID, paymentID int64) (*AccountPayment, error) {
	row := r.pool.QueryRow(ctx, `SELECT p.id, p.account_id, p.number, p.amount, p.method, p.reference, p.received_at, p.created_at
FROM account_payments p
JOIN customer_accounts a ON a.id = p.account_id
WHERE a.business_id=$1 AND p.id=$2`, businessID, paymentID)
	var p AccountPayment
	err := row.Scan(&p.ID, &p.AccountID, &p.Number, &p.Amount, &p.Method, &p.Reference, &p.ReceivedAt, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, payment_id, transaction_id, amount, created_at FROM payment_allocations WHERE payment_id=$1 ORDER BY id`, p.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var a PaymentAllocation
		if err := rows.Scan(&a.ID, &a.PaymentID, &a.TransactionID, &a.Amount, &a.CreatedAt); err != nil {
			return nil, err
		}
		p.Allocations = append(p.Allocations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &p, nil
}

// InsertCollectionActivity persists a collection attempt. The
// both-or-neither promise rule is also backed by a table check
// constraint; a 23514 violation maps back to the domain error.
func (r *Repository) InsertCollectionActivity(ctx context.Context, businessID int64, activity CollectionActivity) (*CollectionActivity, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO collection_activities (account_id, kind, note, promise_date, promise_amount, created_by, created_at)
SELECT $2, $3, $4, $5, $6, $7, NOW()
FROM customer_accounts a WHERE a.business_id=$1 AND a.id=$2
RETURNING id, created_at`,
		businessID, activity.AccountID, activity.Kind, activity.Note, activity.PromiseDate, activity.PromiseAmount, activity.CreatedBy)
	if err := row.Scan(&activity.ID, &activity.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, mapPgError(err)
	}
	return &activity, nil
}

// ListCollectionActivities lists collection attempts, newest first.
func (r *Repository) ListCollectionActivities(ctx context.Context, businessID, accountID int64, limit, offset int) ([]CollectionActivity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT c.id, c.account_id, c.kind, c.note, c.promise_date, c.promise_amount, c.created_by, c.created_at
FROM collection_activities c
JOIN customer_accounts a ON a.id = c.account_id
WHERE a.business_id=$1 AND c.account_id=$2
ORDER BY c.created_at DESC, c.id DESC
LIMIT $3 OFFSET $4`, businessID, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var activities []CollectionActivity
	for rows.Next() {
		var c CollectionActivity
		if err := rows.Scan(&c.ID, &c.AccountID, &c.Kind, &c.Note, &c.PromiseDate, &c.PromiseAmount, &c.CreatedBy, &c.CreatedAt); err != nil {
			return nil, err
		}
		activities = append(activities, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return activities, nil
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) InsertAccount(ctx context.Context, account CustomerAccount) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO customer_accounts (business_id, customer_id, credit_limit, current_balance, payment_terms_days, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW()) RETURNING id`,
		account.BusinessID, account.CustomerID, account.CreditLimit, account.CurrentBalance, account.PaymentTermsDays, account.Status).Scan(&id)
	if err != nil {
		return 0, mapPgError(err)
	}
	return id, nil
}

func (t *txRepo) GetAccountForUpdate(ctx context.Context, businessID, accountID int64) (*CustomerAccount, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM customer_accounts WHERE business_id=$1 AND id=$2 FOR UPDATE`, businessID, accountID)
	return scanAccount(row)
}

func (t *txRepo) UpdateAccount(ctx context.Context, account CustomerAccount) error {
	tag, err := t.tx.Exec(ctx, `UPDATE customer_accounts SET credit_limit=$1, current_balance=$2, payment_terms_days=$3, status=$4, updated_at=NOW() WHERE id=$5`,
		account.CreditLimit, account.CurrentBalance, account.PaymentTermsDays, account.Status, account.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) InsertTransaction(ctx context.Context, txn AccountTransaction) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO account_transactions (account_id, type, amount, balance_after, reference, note, due_at, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		txn.AccountID, txn.Type, txn.Amount, txn.BalanceAfter, txn.Reference, txn.Note, txn.DueAt, txn.CreatedBy, txn.CreatedAt).Scan(&id)
	if err != nil {
		return 0, mapPgError(err)
	}
	return id, nil
}

func (t *txRepo) InsertPayment(ctx context.Context, payment AccountPayment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO account_payments (account_id, number, amount, method, reference, received_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		payment.AccountID, payment.Number, payment.Amount, payment.Method, payment.Reference, payment.ReceivedAt, payment.CreatedAt).Scan(&id)
	if err != nil {
		return 0, mapPgError(err)
	}
	return id, nil
}

func (t *txRepo) InsertAllocation(ctx context.Context, alloc PaymentAllocation) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO payment_allocations (payment_id, transaction_id, amount, created_at)
VALUES ($1, $2, $3, $4) RETURNING id`,
		alloc.PaymentID, alloc.TransactionID, alloc.Amount, alloc.CreatedAt).Scan(&id)
	if err != nil {
		return 0, mapPgError(err)
	}
	return id, nil
}

func (t *txRepo) ListOpenChargesForUpdate(ctx context.Context, accountID int64) ([]OpenCharge, error) {
	// The account row is already locked by the caller; charge rows are
	// immutable so locking the aggregate is unnecessary.
	rows, err := t.tx.Query(ctx, `SELECT `+transactionColumns+`, COALESCE(SUM(pa.amount), 0) AS allocated
FROM account_transactions t
LEFT JOIN payment_allocations pa ON pa.transaction_id = t.id
WHERE t.account_id=$1 AND t.type='CHARGE'
GROUP BY t.id
HAVING t.amount > COALESCE(SUM(pa.amount), 0)
ORDER BY t.created_at, t.id`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOpenCharges(rows)
}

func (t *txRepo) GetTransactionsWithAllocated(ctx context.Context, txIDs []int64) (map[int64]OpenCharge, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+transactionColumns+`, COALESCE(SUM(pa.amount), 0) AS allocated
FROM account_transactions t
LEFT JOIN payment_allocations pa ON pa.transaction_id = t.id
WHERE t.id = ANY($1)
GROUP BY t.id`, txIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	charges, err := collectOpenCharges(rows)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]OpenCharge, len(charges))
	for _, c := range charges {
		byID[c.Transaction.ID] = c
	}
	return byID, nil
}

func (t *txRepo) GetPaymentForUpdate(ctx context.Context, businessID, paymentID int64) (*AccountPayment, error) {
	row := t.tx.QueryRow(ctx, `SELECT p.id, p.account_id, p.number, p.amount, p.method, p.reference, p.received_at, p.created_at
FROM account_payments p
JOIN customer_accounts a ON a.id = p.account_id
WHERE a.business_id=$1 AND p.id=$2
FOR UPDATE OF p`, businessID, paymentID)
	var p AccountPayment
	err := row.Scan(&p.ID, &p.AccountID, &p.Number, &p.Amount, &p.Method, &p.Reference, &p.ReceivedAt, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rows, err := t.tx.Query(ctx, `SELECT id, payment_id, transaction_id, amount, created_at FROM payment_allocations WHERE payment_id=$1 ORDER BY id`, p.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var a PaymentAllocation
		if err := rows.Scan(&a.ID, &a.PaymentID, &a.TransactionID, &a.Amount, &a.CreatedAt); err != nil {
			return nil, err
		}
		p.Allocations = append(p.Allocations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &p, nil
}

// mapPgError translates constraint violations into domain errors.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrAlreadyExists, pgErr.ConstraintName)
		case "23514":
			if pgErr.ConstraintName == "collection_promise_pair" {
				return ErrPromiseDateRequired
			}
			return fmt.Errorf("%w: %s", ErrInvalidAmount, pgErr.ConstraintName)
		}
	}
	return err
}
