package customers

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storeline/storeline/internal/platform/db"
)

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, businessID, id int64) (*Customer, error)
	GetByCode(ctx context.Context, businessID int64, code string) (*Customer, error)
	List(ctx context.Context, businessID int64, req ListCustomersRequest) ([]Customer, int, error)
	Create(ctx context.Context, customer Customer) (int64, error)
	Update(ctx context.Context, businessID, id int64, updates map[string]interface{}) error
	SoftDelete(ctx context.Context, businessID, id int64) error
	GenerateCode(ctx context.Context, businessID int64) (string, error)
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const customerColumns = `id, business_id, code, name, email, phone, tax_id,
       address_line1, address_line2, city, state, postal_code, country,
       is_active, notes, created_by, created_at, updated_at, deleted_at`

func scanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer
	err := row.Scan(
		&c.ID, &c.BusinessID, &c.Code, &c.Name, &c.Email, &c.Phone, &c.TaxID,
		&c.AddressLine1, &c.AddressLine2, &c.City, &c.State, &c.PostalCode, &c.Country,
		&c.IsActive, &c.Notes, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *repository) Get(ctx context.Context, businessID, id int64) (*Customer, error) {
	query := fmt.Sprintf(`SELECT %s FROM customers
		WHERE business_id = $1 AND id = $2 AND deleted_at IS NULL`, customerColumns)
	return scanCustomer(r.db.QueryRow(ctx, query, businessID, id))
}

func (r *repository) GetByCode(ctx context.Context, businessID int64, code string) (*Customer, error) {
	query := fmt.Sprintf(`SELECT %s FROM customers
		WHERE business_id = $1 AND code = $2 AND deleted_at IS NULL`, customerColumns)
	return scanCustomer(r.db.QueryRow(ctx, query, businessID, code))
}

func (r *repository) List(ctx context.Context, businessID int64, req ListCustomersRequest) ([]Customer, int, error) {
	conditions := []string{"business_id = $1", "deleted_at IS NULL"}
	args := []interface{}{businessID}
	argPos := 2

	if req.IsActive != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", argPos))
		args = append(args, *req.IsActive)
		argPos++
	}
	if req.Search != nil && *req.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(code ILIKE $%d OR name ILIKE $%d OR email ILIKE $%d)", argPos, argPos, argPos))
		args = append(args, "%"+*req.Search+"%")
		argPos++
	}

	whereClause := "WHERE " + conditions[0]
	for i := 1; i < len(conditions); i++ {
		whereClause += " AND " + conditions[i]
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM customers %s", whereClause)
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM customers %s
		ORDER BY code LIMIT $%d OFFSET $%d`, customerColumns, whereClause, argPos, argPos+1)
	args = append(args, req.Limit, req.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		customers = append(customers, *c)
	}
	return customers, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, customer Customer) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO customers (
			business_id, code, name, email, phone, tax_id,
			address_line1, address_line2, city, state, postal_code, country,
			is_active, notes, created_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING id`,
		customer.BusinessID, customer.Code, customer.Name, customer.Email,
		customer.Phone, customer.TaxID, customer.AddressLine1, customer.AddressLine2,
		customer.City, customer.State, customer.PostalCode, customer.Country,
		customer.IsActive, customer.Notes, customer.CreatedBy,
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

// Update applies a partial column map built by the service. Keys are
// trusted column names, never caller input.
func (r *repository) Update(ctx context.Context, businessID, id int64, updates map[string]interface{}) error {
	query := "UPDATE customers SET updated_at = NOW()"
	var args []interface{}
	argPos := 1

	for _, col := range []string{
		"name", "email", "phone", "tax_id",
		"address_line1", "address_line2", "city", "state", "postal_code",
		"country", "is_active", "notes",
	} {
		if v, ok := updates[col]; ok {
			query += fmt.Sprintf(", %s = $%d", col, argPos)
			args = append(args, v)
			argPos++
		}
	}

	query += fmt.Sprintf(" WHERE business_id = $%d AND id = $%d AND deleted_at IS NULL", argPos, argPos+1)
	args = append(args, businessID, id)

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) SoftDelete(ctx context.Context, businessID, id int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE customers SET deleted_at = NOW(), is_active = FALSE, updated_at = NOW()
		WHERE business_id = $1 AND id = $2 AND deleted_at IS NULL`,
		businessID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GenerateCode suggests the next customer code. Best effort: the unique
// constraint on (business_id, code) is the real guard.
func (r *repository) GenerateCode(ctx context.Context, businessID int64) (string, error) {
	var count int64
	err := r.db.QueryRow(ctx,
		"SELECT count(*) FROM customers WHERE business_id = $1", businessID,
	).Scan(&count)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CUST-%05d", count+1), nil
}
