package customers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryCustomerRepo struct {
	customers map[int64]*Customer
	nextID    int64
}

func newMemoryCustomerRepo() *memoryCustomerRepo {
	return &memoryCustomerRepo{customers: make(map[int64]*Customer)}
}

func (r *memoryCustomerRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, r)
}

func (r *memoryCustomerRepo) Get(ctx context.Context, businessID, id int64) (*Customer, error) {
	c, ok := r.customers[id]
	if !ok || c.BusinessID != businessID || c.DeletedAt != nil {
		return nil, ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (r *memoryCustomerRepo) GetByCode(ctx context.Context, businessID int64, code string) (*Customer, error) {
	for _, c := range r.customers {
		if c.BusinessID == businessID && c.Code == code && c.DeletedAt == nil {
			copied := *c
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryCustomerRepo) List(ctx context.Context, businessID int64, req ListCustomersRequest) ([]Customer, int, error) {
	var out []Customer
	for _, c := range r.customers {
		if c.BusinessID != businessID || c.DeletedAt != nil {
			continue
		}
		if req.IsActive != nil && c.IsActive != *req.IsActive {
			continue
		}
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (r *memoryCustomerRepo) Create(ctx context.Context, customer Customer) (int64, error) {
	for _, existing := range r.customers {
		if existing.BusinessID == customer.BusinessID && existing.Code == customer.Code {
			return 0, ErrAlreadyExists
		}
	}
	r.nextID++
	customer.ID = r.nextID
	customer.CreatedAt = time.Now().UTC()
	customer.UpdatedAt = customer.CreatedAt
	r.customers[customer.ID] = &customer
	return customer.ID, nil
}

func (r *memoryCustomerRepo) Update(ctx context.Context, businessID, id int64, updates map[string]interface{}) error {
	c, ok := r.customers[id]
	if !ok || c.BusinessID != businessID || c.DeletedAt != nil {
		return ErrNotFound
	}
	if v, ok := updates["name"]; ok {
		c.Name = v.(string)
	}
	if v, ok := updates["is_active"]; ok {
		c.IsActive = v.(bool)
	}
	if v, ok := updates["email"]; ok {
		email := v.(string)
		c.Email = &email
	}
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *memoryCustomerRepo) SoftDelete(ctx context.Context, businessID, id int64) error {
	c, ok := r.customers[id]
	if !ok || c.BusinessID != businessID || c.DeletedAt != nil {
		return ErrNotFound
	}
	now := time.Now().UTC()
	c.DeletedAt = &now
	c.IsActive = false
	return nil
}

func (r *memoryCustomerRepo) GenerateCode(ctx context.Context, businessID int64) (string, error) {
	count := 0
	for _, c := range r.customers {
		if c.BusinessID == businessID {
			count++
		}
	}
	return fmt.Sprintf("CUST-%05d", count+1), nil
}

const testBusinessID = int64(7)

func TestCreateCustomerGeneratesCode(t *testing.T) {
	svc := NewService(newMemoryCustomerRepo(), nil)
	created, err := svc.Create(context.Background(), testBusinessID, CreateCustomerRequest{
		Name:    "Acme Hardware",
		Country: "AU",
	})
	require.NoError(t, err)
	require.Equal(t, "CUST-00001", created.Code)
	require.True(t, created.IsActive)
}

func TestCreateCustomerDuplicateCodeRejected(t *testing.T) {
	svc := NewService(newMemoryCustomerRepo(), nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, testBusinessID, CreateCustomerRequest{Code: "CUST-A", Name: "First", Country: "AU"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, testBusinessID, CreateCustomerRequest{Code: "CUST-A", Name: "Second", Country: "AU"})
	require.ErrorIs(t, err, ErrAlreadyExists)

	// Same code in another business is fine.
	_, err = svc.Create(ctx, testBusinessID+1, CreateCustomerRequest{Code: "CUST-A", Name: "Other", Country: "AU"})
	require.NoError(t, err)
}

func TestUpdateCustomerPartial(t *testing.T) {
	svc := NewService(newMemoryCustomerRepo(), nil)
	ctx := context.Background()
	created, err := svc.Create(ctx, testBusinessID, CreateCustomerRequest{Name: "Before", Country: "AU"})
	require.NoError(t, err)

	name := "After"
	updated, err := svc.Update(ctx, testBusinessID, created.ID, UpdateCustomerRequest{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "After", updated.Name)
	require.Equal(t, created.Code, updated.Code)

	// Empty patch is a no-op, not an error.
	same, err := svc.Update(ctx, testBusinessID, created.ID, UpdateCustomerRequest{})
	require.NoError(t, err)
	require.Equal(t, "After", same.Name)
}

func TestSoftDeletedCustomerDisappears(t *testing.T) {
	svc := NewService(newMemoryCustomerRepo(), nil)
	ctx := context.Background()
	created, err := svc.Create(ctx, testBusinessID, CreateCustomerRequest{Name: "Ghost", Country: "AU"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, testBusinessID, created.ID))

	_, err = svc.Get(ctx, testBusinessID, created.ID)
	require.ErrorIs(t, err, ErrNotFound)

	customers, total, err := svc.List(ctx, testBusinessID, ListCustomersRequest{Limit: 50})
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, customers)

	require.ErrorIs(t, svc.Delete(ctx, testBusinessID, created.ID), ErrNotFound)
}

func TestGetCustomerScopedToBusiness(t *testing.T) {
	svc := NewService(newMemoryCustomerRepo(), nil)
	ctx := context.Background()
	created, err := svc.Create(ctx, testBusinessID, CreateCustomerRequest{Name: "Scoped", Country: "AU"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, testBusinessID+1, created.ID)
	require.ErrorIs(t, err, ErrNotFound)
}
